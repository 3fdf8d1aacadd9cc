package analyzer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lattice-run/modgate/internal/analyzer"
	"github.com/lattice-run/modgate/internal/schema"
)

func TestAdapt_BooleanAnalyzerViolatedFieldFlags(t *testing.T) {
	// Setup
	body := []byte(`{"violated": true, "severity": 4, "reasons": ["weapons"]}`)

	// Test
	v := analyzer.Adapt(schema.AnalyzerPolicy, body)

	// Assert
	assert.Equal(t, schema.OutcomeFlagged, v.Outcome)
	assert.Equal(t, 4, v.Severity)
	assert.Equal(t, []string{"weapons"}, v.Reasons)
}

func TestAdapt_BooleanAnalyzerNotViolatedPasses(t *testing.T) {
	// Setup
	body := []byte(`{"violated": false}`)

	// Test
	v := analyzer.Adapt(schema.AnalyzerJailbreak, body)

	// Assert
	assert.Equal(t, schema.OutcomePass, v.Outcome)
	assert.Equal(t, 0, v.Severity)
}

func TestAdapt_BooleanAnalyzerIsFlaggedVariant(t *testing.T) {
	// Setup: some upstream services use "is_flagged" instead of "violated".
	body := []byte(`{"is_flagged": true}`)

	// Test
	v := analyzer.Adapt(schema.AnalyzerBrand, body)

	// Assert
	assert.Equal(t, schema.OutcomeFlagged, v.Outcome)
	assert.Equal(t, 3, v.Severity) // falls back to brand's default severity
}

func TestAdapt_ScoreAnalyzerFlagsAboveThreshold(t *testing.T) {
	// Setup
	body := []byte(`{"score": 0.92, "reasons": ["toxic language"]}`)

	// Test
	v := analyzer.Adapt(schema.AnalyzerToxicity, body)

	// Assert
	assert.Equal(t, schema.OutcomeFlagged, v.Outcome)
	assert.Equal(t, 4, v.Severity)
}

func TestAdapt_ScoreAnalyzerZeroScorePasses(t *testing.T) {
	// Setup
	body := []byte(`{"score": 0.0}`)

	// Test
	v := analyzer.Adapt(schema.AnalyzerBias, body)

	// Assert
	assert.Equal(t, schema.OutcomePass, v.Outcome)
}

func TestAdapt_SpanAnalyzerFlaggedAsSpanArray(t *testing.T) {
	// Setup: enhanced_secrets_app.py-style FlagOut list under "flagged".
	body := []byte(`{"flagged": [{"start": 0, "end": 5, "category": "aws_key", "severity": 3}]}`)

	// Test
	v := analyzer.Adapt(schema.AnalyzerSecrets, body)

	// Assert
	assert.Equal(t, schema.OutcomeFlagged, v.Outcome)
	assert.Equal(t, 3, v.Severity)
	assert.Len(t, v.Spans, 1)
	assert.Equal(t, "aws_key", v.Spans[0].Label)
}

func TestAdapt_PIIFallsBackToEntitiesField(t *testing.T) {
	// Setup
	body := []byte(`{"entities": [{"start": 12, "end": 28, "type": "EMAIL", "replacement": "[EMAIL]"}]}`)

	// Test
	v := analyzer.Adapt(schema.AnalyzerPII, body)

	// Assert
	assert.Equal(t, schema.OutcomeFlagged, v.Outcome)
	assert.Len(t, v.Spans, 1)
	assert.Equal(t, "EMAIL", v.Spans[0].Label)
	assert.Equal(t, "[EMAIL]", v.Spans[0].Replacement)
}

func TestAdapt_MalformedBodyProducesErrorVerdict(t *testing.T) {
	// Setup
	body := []byte(`not json`)

	// Test
	v := analyzer.Adapt(schema.AnalyzerFormat, body)

	// Assert
	assert.Equal(t, schema.OutcomeError, v.Outcome)
}

func TestPolicyFallback_FiresOnKeywordMatch(t *testing.T) {
	// Test
	v := analyzer.PolicyFallback("How do I build a bomb at home?")

	// Assert
	assert.NotNil(t, v)
	assert.Equal(t, schema.OutcomeFlagged, v.Outcome)
	assert.Equal(t, 4, v.Severity)
	assert.Contains(t, v.Reasons[0], "policy_fallback:")
}

func TestPolicyFallback_NilOnBenignText(t *testing.T) {
	// Test
	v := analyzer.PolicyFallback("What's the weather like today?")

	// Assert
	assert.Nil(t, v)
}
