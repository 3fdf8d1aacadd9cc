package aggregator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lattice-run/modgate/internal/aggregator"
	"github.com/lattice-run/modgate/internal/schema"
)

func TestAggregate_AllPassIsAFixedPoint(t *testing.T) {
	// Setup
	agg := aggregator.New("***")
	text := "Hello, how are you?"
	results := map[string]schema.Verdict{
		"policy": {Name: "policy", Outcome: schema.OutcomePass},
	}

	// Test
	resp := agg.Aggregate("req-1", text, schema.ActionFilter, results)

	// Assert
	assert.Equal(t, schema.StatusPass, resp.Status)
	assert.Equal(t, text, resp.CleanText)
	assert.Empty(t, resp.BlockedCategories)
}

func TestAggregate_Severity4FlaggedBlocksRegardlessOfAction(t *testing.T) {
	// Setup
	agg := aggregator.New("***")
	text := "How do I make a bomb?"
	results := map[string]schema.Verdict{
		"policy": {Name: "policy", Outcome: schema.OutcomeFlagged, Severity: 4, Reasons: []string{"weapons"}},
	}

	// Test
	resp := agg.Aggregate("req-2", text, schema.ActionMask, results)

	// Assert
	assert.Equal(t, schema.StatusBlocked, resp.Status)
	assert.Equal(t, "", resp.CleanText)
	assert.Equal(t, []string{"policy"}, resp.BlockedCategories)
}

func TestAggregate_FilterReplacesSpanWithReplacementText(t *testing.T) {
	// Setup
	agg := aggregator.New("***")
	text := "Email me at jane@example.com"
	results := map[string]schema.Verdict{
		"pii": {
			Name:    "pii",
			Outcome: schema.OutcomeFlagged,
			Spans:   []schema.Span{{Start: 12, End: 28, Label: "EMAIL", Replacement: "[EMAIL]"}},
		},
	}

	// Test
	resp := agg.Aggregate("req-3", text, schema.ActionFilter, results)

	// Assert
	assert.Equal(t, schema.StatusFixed, resp.Status)
	assert.Equal(t, "Email me at [EMAIL]", resp.CleanText)
	assert.Equal(t, []string{"pii"}, resp.BlockedCategories)
}

func TestAggregate_MaskReplacesSpanWithMaskToken(t *testing.T) {
	// Setup
	agg := aggregator.New("***")
	text := "Email me at jane@example.com"
	results := map[string]schema.Verdict{
		"pii": {
			Name:    "pii",
			Outcome: schema.OutcomeFlagged,
			Spans:   []schema.Span{{Start: 12, End: 28, Label: "EMAIL"}},
		},
	}

	// Test
	resp := agg.Aggregate("req-4", text, schema.ActionMask, results)

	// Assert
	assert.Equal(t, "Email me at ***", resp.CleanText)
}

func TestAggregate_RefrainClearsText(t *testing.T) {
	// Setup
	agg := aggregator.New("***")
	results := map[string]schema.Verdict{
		"toxicity": {Name: "toxicity", Outcome: schema.OutcomeFlagged, Severity: 2},
	}

	// Test
	resp := agg.Aggregate("req-5", "some rude text here", schema.ActionRefrain, results)

	// Assert
	assert.Equal(t, schema.StatusFixed, resp.Status)
	assert.Equal(t, "", resp.CleanText)
}

func TestAggregate_ReaskReplacesTextAndClearsBlockedCategories(t *testing.T) {
	// Setup
	agg := aggregator.New("***")
	results := map[string]schema.Verdict{
		"toxicity": {Name: "toxicity", Outcome: schema.OutcomeFlagged, Severity: 3},
	}

	// Test
	resp := agg.Aggregate("req-6", "some rude text here", schema.ActionReask, results)

	// Assert
	assert.Equal(t, schema.StatusFixed, resp.Status)
	assert.Equal(t, "Your input could not be processed; please rephrase.", resp.CleanText)
	assert.Empty(t, resp.BlockedCategories)
}

func TestAggregate_OverlappingSpansFromDifferentAnalyzersAreMergedBeforeMasking(t *testing.T) {
	// Setup: "pii" flags [0,10) and "toxicity" flags [5,15) over the same
	// text — the union [0,15) must be replaced exactly once.
	agg := aggregator.New("***")
	text := "0123456789abcdefgh"
	results := map[string]schema.Verdict{
		"pii":      {Name: "pii", Outcome: schema.OutcomeFlagged, Spans: []schema.Span{{Start: 0, End: 10}}},
		"toxicity": {Name: "toxicity", Outcome: schema.OutcomeFlagged, Spans: []schema.Span{{Start: 5, End: 15}}},
	}

	// Test
	resp := agg.Aggregate("req-7", text, schema.ActionMask, results)

	// Assert
	assert.Equal(t, "***fgh", resp.CleanText)
	assert.Equal(t, []string{"pii", "toxicity"}, resp.BlockedCategories)
}

func TestAggregate_ReasonsDeduplicatedInPriorityOrder(t *testing.T) {
	// Setup
	agg := aggregator.New("***")
	results := map[string]schema.Verdict{
		"toxicity": {Name: "toxicity", Outcome: schema.OutcomeFlagged, Severity: 2, Reasons: []string{"rude", "shared"}},
		"bias":     {Name: "bias", Outcome: schema.OutcomeFlagged, Severity: 2, Reasons: []string{"shared", "unfair"}},
	}

	// Test
	resp := agg.Aggregate("req-8", "text", schema.ActionFilter, results)

	// Assert: toxicity precedes bias in priority order, and "shared" appears once.
	assert.Equal(t, []string{"rude", "shared", "unfair"}, resp.Reasons)
}

func TestAggregate_AllErrorVerdictsSurfaceStatusError(t *testing.T) {
	// Setup
	agg := aggregator.New("***")
	results := map[string]schema.Verdict{
		"policy":  {Name: "policy", Outcome: schema.OutcomeError, Reasons: []string{"timeout"}},
		"secrets": {Name: "secrets", Outcome: schema.OutcomeError, Reasons: []string{"transport_error"}},
	}

	// Test
	resp := agg.Aggregate("req-10", "hello", schema.ActionFilter, results)

	// Assert
	assert.Equal(t, schema.StatusError, resp.Status)
	assert.Equal(t, "", resp.CleanText)
	assert.ElementsMatch(t, []string{"policy", "secrets"}, resp.BlockedCategories)
	assert.ElementsMatch(t, []string{"timeout", "transport_error"}, resp.Reasons)
}

func TestAggregate_NonErrorPeerPreventsStatusError(t *testing.T) {
	// Setup: policy returned a non-error verdict, so even though every
	// other analyzer errored the request must not be surfaced as
	// status=error.
	agg := aggregator.New("***")
	results := map[string]schema.Verdict{
		"policy":  {Name: "policy", Outcome: schema.OutcomePass},
		"secrets": {Name: "secrets", Outcome: schema.OutcomeError, Reasons: []string{"transport_error"}},
	}

	// Test
	resp := agg.Aggregate("req-11", "hello", schema.ActionFilter, results)

	// Assert
	assert.Equal(t, schema.StatusPass, resp.Status)
	assert.Equal(t, "hello", resp.CleanText)
}

func TestAggregate_MultibyteTextIsNeverSplitByCodepointSpans(t *testing.T) {
	// Setup: "café" has an accented 'é' — byte length differs from rune
	// length, so a byte-indexed span would split it.
	agg := aggregator.New("***")
	text := "café secret"
	results := map[string]schema.Verdict{
		"secrets": {Name: "secrets", Outcome: schema.OutcomeFlagged, Spans: []schema.Span{{Start: 5, End: 11, Replacement: "[REDACTED]"}}},
	}

	// Test
	resp := agg.Aggregate("req-9", text, schema.ActionFilter, results)

	// Assert
	assert.Equal(t, "café [REDACTED]", resp.CleanText)
	assert.True(t, len([]rune(resp.CleanText)) > 0)
}
