package client_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lattice-run/modgate/internal/client"
	"github.com/lattice-run/modgate/internal/config"
	"github.com/lattice-run/modgate/internal/schema"
)

func testConfig() *config.Config {
	return &config.Config{
		PerCallTimeout: 4 * time.Second,
		Analyzers: map[string]config.AnalyzerConfig{
			schema.AnalyzerPolicy: {Name: schema.AnalyzerPolicy, URL: "http://policy:8000"},
			schema.AnalyzerPII:    {Name: schema.AnalyzerPII, URL: "http://pii:8000", APIKey: "pii-key", PerCallTimeout: 1500 * time.Millisecond},
		},
	}
}

func TestPool_TimeoutFallsBackToGlobalPerCallTimeout(t *testing.T) {
	// Setup
	p := client.NewPool(testConfig())

	// Test/Assert: policy has no override, so it inherits the global default.
	assert.Equal(t, 4*time.Second, p.Timeout(schema.AnalyzerPolicy))
}

func TestPool_TimeoutUsesPerAnalyzerOverride(t *testing.T) {
	// Setup
	p := client.NewPool(testConfig())

	// Test/Assert
	assert.Equal(t, 1500*time.Millisecond, p.Timeout(schema.AnalyzerPII))
}

func TestPool_GetIsIdempotentPerAnalyzer(t *testing.T) {
	// Setup
	p := client.NewPool(testConfig())

	// Test
	first := p.Get(schema.AnalyzerPolicy)
	second := p.Get(schema.AnalyzerPolicy)

	// Assert: same underlying *http.Client instance, not recreated per call.
	assert.Same(t, first, second)
}

func TestPool_GetBuildsDistinctClientsPerAnalyzer(t *testing.T) {
	// Setup
	p := client.NewPool(testConfig())

	// Test
	policy := p.Get(schema.AnalyzerPolicy)
	pii := p.Get(schema.AnalyzerPII)

	// Assert
	assert.NotSame(t, policy, pii)
}

func TestPool_BaseURLAndAPIKeyReflectConfig(t *testing.T) {
	// Setup
	p := client.NewPool(testConfig())

	// Test/Assert
	assert.Equal(t, "http://pii:8000", p.BaseURL(schema.AnalyzerPII))
	assert.Equal(t, "pii-key", p.APIKey(schema.AnalyzerPII))
	assert.Equal(t, "", p.APIKey(schema.AnalyzerPolicy))
}

func TestPool_BaseURLIsEmptyForUnknownAnalyzer(t *testing.T) {
	// Setup
	p := client.NewPool(testConfig())

	// Test/Assert
	assert.Equal(t, "", p.BaseURL("unknown"))
}

func TestPool_CloseAllClearsTheClientMap(t *testing.T) {
	// Setup
	p := client.NewPool(testConfig())
	first := p.Get(schema.AnalyzerPolicy)

	// Test
	p.CloseAll()
	second := p.Get(schema.AnalyzerPolicy)

	// Assert: a fresh client is built after CloseAll, not reused.
	assert.NotSame(t, first, second)
}
