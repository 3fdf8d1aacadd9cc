package metrics_test

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lattice-run/modgate/internal/metrics"
)

func TestNew_CanBeConstructedMoreThanOnce(t *testing.T) {
	// Setup/Test: each instance owns its own registry, so constructing a
	// second Metrics must not panic on duplicate collector registration.
	assert.NotPanics(t, func() {
		metrics.New()
		metrics.New()
	})
}

func TestMetrics_HandlerExposesRegisteredSeries(t *testing.T) {
	// Setup
	m := metrics.New()
	m.IncOutcome("policy", "pass")
	m.ObserveCall("policy", 10*time.Millisecond)

	// Test
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	// Assert
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "gateway_analyzer_outcomes_total")
}

func TestMetrics_SetBreakerStateMapsStatesToNumbers(t *testing.T) {
	// Setup
	m := metrics.New()

	// Test
	m.SetBreakerState("policy", "OPEN")

	// Assert: reachable through the exported registry via the handler body.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)
	assert.Contains(t, rec.Body.String(), `gateway_breaker_state{analyzer="policy"} 2`)
}
