// Content-moderation gateway — main entry point.
//
// Wires configuration, metrics, tracing, the analyzer client pool, the
// breaker registry, and the C1-C5 pipeline into an HTTP server with
// graceful shutdown.
//
// To run:
//
//	go run ./cmd/server
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lattice-run/modgate/internal/aggregator"
	"github.com/lattice-run/modgate/internal/api"
	"github.com/lattice-run/modgate/internal/breaker"
	"github.com/lattice-run/modgate/internal/client"
	"github.com/lattice-run/modgate/internal/config"
	"github.com/lattice-run/modgate/internal/executor"
	"github.com/lattice-run/modgate/internal/metrics"
	"github.com/lattice-run/modgate/internal/normalizer"
	"github.com/lattice-run/modgate/internal/telemetry"
)

var draining = false

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	log.WithFields(logrus.Fields{
		"host":                      cfg.Host,
		"port":                      cfg.Port,
		"analyzer_urls":             cfg.AnalyzerURLs(),
		"per_call_timeout":          cfg.PerCallTimeout,
		"global_deadline":           cfg.GlobalDeadline,
		"breaker_failure_threshold": cfg.BreakerFailureThreshold,
		"breaker_window":            cfg.BreakerWindow,
	}).Info("starting modgate")

	shutdownTracer, err := telemetry.InitTracer("modgate", log)
	if err != nil {
		log.WithError(err).Warn("tracer init failed, continuing without tracing")
		shutdownTracer = func(context.Context) error { return nil }
	}

	m := metrics.New()
	clients := client.NewPool(cfg)
	breakers := breaker.NewRegistry(breaker.Policy{
		FailureThreshold: cfg.BreakerFailureThreshold,
		Window:           cfg.BreakerWindow,
		RatioThreshold:   cfg.BreakerRatioThreshold,
		MinimumSamples:   cfg.BreakerMinimumSamples,
		Cooldown:         cfg.BreakerCooldown,
	})

	norm := normalizer.New(cfg.GatewayAPIKeys, cfg.MaxTextBytes)
	ex := executor.New(cfg, clients, breakers, m, log)
	agg := aggregator.New(cfg.MaskToken)

	handler := api.New(norm, ex, agg, breakers, m, log, &draining)
	router := handler.NewRouter()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.GlobalDeadline + 2*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("addr", addr).Info("listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutdown initiated")
	draining = true

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("server shutdown error")
	}

	clients.CloseAll()

	if err := shutdownTracer(ctx); err != nil {
		log.WithError(err).Error("tracer shutdown error")
	}

	log.Info("shutdown complete")
}
