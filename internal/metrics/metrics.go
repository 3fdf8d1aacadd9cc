// Package metrics exposes Prometheus instrumentation for the gateway,
// generalized from the teacher's (go-common) NewGuardrailMetrics from a
// fixed four-model list to the nine-analyzer set, and folding in the
// HTTP-layer metrics that teacher's package kept in a separate module.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lattice-run/modgate/internal/schema"
)

var (
	httpLatencyBuckets   = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	callLatencyBuckets   = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	fanoutLatencyBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
)

// Metrics holds every Prometheus collector the gateway registers, on its
// own registry rather than the global default — so a process (or a test)
// can construct more than one Metrics without a duplicate-registration
// panic.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestDuration *prometheus.HistogramVec
	RequestTotal        *prometheus.CounterVec
	InFlightRequests    prometheus.Gauge

	AnalyzerCallLatency *prometheus.HistogramVec
	AnalyzerRetries     *prometheus.CounterVec
	AnalyzerOutcomes    *prometheus.CounterVec
	FanoutLatency       prometheus.Histogram
	BreakerState        *prometheus.GaugeVec
}

// New creates and registers the gateway's metrics.
func New() *Metrics {
	m := &Metrics{
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_http_request_duration_seconds",
			Help:    "Full HTTP request/response duration.",
			Buckets: httpLatencyBuckets,
		}, []string{"method", "path", "status"}),

		RequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total moderation requests by overall status.",
		}, []string{"status"}),

		InFlightRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_in_flight_requests",
			Help: "Number of requests currently being processed.",
		}),

		AnalyzerCallLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_analyzer_call_latency_seconds",
			Help:    "Latency of individual analyzer calls.",
			Buckets: callLatencyBuckets,
		}, []string{"analyzer"}),

		AnalyzerRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_analyzer_retries_total",
			Help: "Total analyzer call retries.",
		}, []string{"analyzer"}),

		AnalyzerOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_analyzer_outcomes_total",
			Help: "Total analyzer verdicts by outcome.",
		}, []string{"analyzer", "outcome"}),

		FanoutLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gateway_fanout_latency_seconds",
			Help:    "Latency of the full fan-out across analyzers.",
			Buckets: fanoutLatencyBuckets,
		}),

		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gateway_breaker_state",
			Help: "Breaker state per analyzer (0=closed, 1=half_open, 2=open).",
		}, []string{"analyzer"}),
	}

	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(
		m.HTTPRequestDuration,
		m.RequestTotal,
		m.InFlightRequests,
		m.AnalyzerCallLatency,
		m.AnalyzerRetries,
		m.AnalyzerOutcomes,
		m.FanoutLatency,
		m.BreakerState,
	)

	for _, name := range schema.PriorityOrder {
		m.AnalyzerCallLatency.WithLabelValues(name)
		m.BreakerState.WithLabelValues(name).Set(0)
	}

	return m
}

// Handler returns this instance's /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCall records an analyzer call's latency.
func (m *Metrics) ObserveCall(analyzer string, d time.Duration) {
	m.AnalyzerCallLatency.WithLabelValues(analyzer).Observe(d.Seconds())
}

// IncRetry records a retried analyzer call.
func (m *Metrics) IncRetry(analyzer string) {
	m.AnalyzerRetries.WithLabelValues(analyzer).Inc()
}

// IncOutcome records a verdict outcome for an analyzer.
func (m *Metrics) IncOutcome(analyzer, outcome string) {
	m.AnalyzerOutcomes.WithLabelValues(analyzer, outcome).Inc()
}

// ObserveFanout records the full fan-out latency for a request.
func (m *Metrics) ObserveFanout(d time.Duration) {
	m.FanoutLatency.Observe(d.Seconds())
}

// SetBreakerState records a breaker's numeric state (0=closed,
// 1=half_open, 2=open) for an analyzer.
func (m *Metrics) SetBreakerState(analyzer, state string) {
	var v float64
	switch state {
	case "CLOSED":
		v = 0
	case "HALF_OPEN":
		v = 1
	case "OPEN":
		v = 2
	}
	m.BreakerState.WithLabelValues(analyzer).Set(v)
}

// responseWriter wraps http.ResponseWriter to capture the status code,
// ground on the teacher's (go-common) metrics.responseWriter.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Middleware records HTTP request duration, reused verbatim in shape from
// the teacher's MetricsMiddleware.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		m.InFlightRequests.Inc()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			m.InFlightRequests.Dec()
			m.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(wrapped.status)).Observe(time.Since(start).Seconds())
		}()

		next.ServeHTTP(wrapped, r)
	})
}
