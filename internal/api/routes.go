// Package api wires the gateway's HTTP surface: POST /validate, POST
// /{analyzer}, GET /health, GET /debug/breakers, and GET /metrics,
// replacing the teacher's raw http.ServeMux routes with a chi.Mux per §6.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/lattice-run/modgate/internal/aggregator"
	"github.com/lattice-run/modgate/internal/breaker"
	"github.com/lattice-run/modgate/internal/executor"
	appmw "github.com/lattice-run/modgate/internal/middleware"
	"github.com/lattice-run/modgate/internal/metrics"
	"github.com/lattice-run/modgate/internal/normalizer"
	"github.com/lattice-run/modgate/internal/router"
	"github.com/lattice-run/modgate/internal/schema"
)

// Handler holds every dependency a request handler needs.
type Handler struct {
	normalizer *normalizer.Normalizer
	executor   *executor.Executor
	aggregator *aggregator.Aggregator
	breakers   *breaker.Registry
	metrics    *metrics.Metrics
	log        *logrus.Logger
	draining   *bool
}

// New creates the Handler.
func New(n *normalizer.Normalizer, ex *executor.Executor, agg *aggregator.Aggregator, breakers *breaker.Registry, m *metrics.Metrics, log *logrus.Logger, draining *bool) *Handler {
	return &Handler{
		normalizer: n,
		executor:   ex,
		aggregator: agg,
		breakers:   breakers,
		metrics:    m,
		log:        log,
		draining:   draining,
	}
}

// NewRouter builds the chi.Mux with the full middleware chain installed, per
// §6's ambient-stack expansion: request ID, structured logging, panic
// recovery, the shutdown gate, HTTP metrics, and otelhttp tracing, in that
// order.
func (h *Handler) NewRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(appmw.RequestID)
	r.Use(appmw.Logging(h.log))
	r.Use(chimw.Recoverer)
	r.Use(appmw.ShuttingDown(h.draining))
	r.Use(h.metrics.Middleware)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "modgate")
	})

	r.Post("/validate", h.handleValidate)
	r.Post("/{analyzer}", h.handleSingleAnalyzer)
	r.Get("/health", h.handleHealth)
	r.Get("/debug/breakers", h.handleDebugBreakers)
	r.Get("/metrics", h.metrics.Handler().ServeHTTP)

	return r
}

// handleValidate handles POST /validate: the full pipeline with the
// request's own checks (or the router's default set) selecting analyzers.
func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	h.validate(w, r, nil)
}

// handleSingleAnalyzer handles POST /{analyzer}: exactly one analyzer is
// forced on, per §6.
func (h *Handler) handleSingleAnalyzer(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "analyzer")
	if !schema.KnownAnalyzer(name) {
		writeError(w, http.StatusNotFound, "INVALID_INPUT", "unknown analyzer: "+name)
		return
	}
	h.validate(w, r, normalizer.ForceAnalyzer(name))
}

func (h *Handler) validate(w http.ResponseWriter, r *http.Request, forcedChecks map[string]bool) {
	req, rej := h.normalizer.Normalize(r, forcedChecks)
	if rej != nil {
		if rej.Code == schema.CodeUnauthenticated {
			w.WriteHeader(rej.Status)
			return
		}
		writeError(w, rej.Status, string(rej.Code), rej.Reason)
		return
	}

	plan := router.Route(req)
	results := h.executor.Execute(r.Context(), plan, req)
	resp := h.aggregator.Aggregate(req.RequestID, req.Text, plan.ActionOnFail, results)

	h.metrics.RequestTotal.WithLabelValues(string(resp.Status)).Inc()
	writeJSON(w, http.StatusOK, resp)
}

// handleHealth handles GET /health: liveness plus a breaker snapshot, per
// §6's supplemental observability surface.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	snapshot := h.breakers.Snapshot()
	breakers := make([]schema.HealthBreaker, 0, len(snapshot))
	for name, state := range snapshot {
		breakers = append(breakers, schema.HealthBreaker{Name: name, State: state})
	}
	writeJSON(w, http.StatusOK, schema.HealthResponse{Status: "healthy", Breakers: breakers})
}

// handleDebugBreakers handles GET /debug/breakers: the raw per-analyzer
// breaker snapshot, added as a supplemental (non-excluded) operator
// surface.
func (h *Handler) handleDebugBreakers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.breakers.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, reason string) {
	writeJSON(w, status, schema.ErrorBody{
		Status: "error",
		Error:  schema.ErrorDetail{Code: code, Reason: reason},
	})
}
