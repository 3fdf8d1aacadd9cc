// Package aggregator implements C5: folding a set of per-analyzer
// Verdicts into one overall status (Stage A) and sanitizing the original
// text into clean_text under the request's chosen mitigation action
// (Stage B), per §4.5.
package aggregator

import (
	"sort"
	"strings"

	"github.com/lattice-run/modgate/internal/schema"
)

// reaskPrompt is returned verbatim as clean_text under action_on_fail =
// reask, per §4.5 Stage B rule 3.
const reaskPrompt = "Your input could not be processed; please rephrase."

// Aggregator turns a plan's verdicts into a unified Response.
type Aggregator struct {
	maskToken string
}

// New creates an Aggregator that masks flagged spans with maskToken.
func New(maskToken string) *Aggregator {
	if maskToken == "" {
		maskToken = "***"
	}
	return &Aggregator{maskToken: maskToken}
}

// Aggregate runs both stages and assembles the unified Response for one
// request.
func (a *Aggregator) Aggregate(requestID, text string, actionOnFail schema.Action, results map[string]schema.Verdict) schema.Response {
	status, blocked, contributing := stageA(results)
	cleanText := a.stageB(text, status, actionOnFail, contributing)

	// reask retains status=fixed but clears blocked_categories: the
	// fixed prompt already tells the caller to rephrase, so naming which
	// analyzers were unhappy would be redundant (§9 open question).
	if status == schema.StatusFixed && actionOnFail == schema.ActionReask {
		blocked = []string{}
	}

	return schema.Response{
		RequestID:         requestID,
		Status:            status,
		CleanText:         cleanText,
		BlockedCategories: blocked,
		Reasons:           assembleReasons(contributing),
		Results:           results,
	}
}

// stageA implements §4.5 Stage A. It returns the overall status, the
// blocked_categories list, and the subset of verdicts that contributed to
// a non-pass status — both ordered by the fixed analyzer-priority order so
// the response is byte-stable for identical inputs.
func stageA(results map[string]schema.Verdict) (schema.Status, []string, []schema.Verdict) {
	ordered := orderedVerdicts(results)

	blocked := false
	fixed := false
	allError := len(ordered) > 0
	var contributing []schema.Verdict

	for _, v := range ordered {
		if v.Outcome != schema.OutcomeError {
			allError = false
		}
		switch {
		case v.Severity == 4 && (v.Outcome == schema.OutcomeFlagged || v.Outcome == schema.OutcomeShortCircuited):
			blocked = true
			contributing = append(contributing, v)
		case v.Outcome == schema.OutcomeFlagged && (len(v.Spans) > 0 || v.Severity >= 2):
			fixed = true
			contributing = append(contributing, v)
		}
	}

	// Every analyzer errored and the policy fallback never fired (it would
	// have left a non-error verdict behind), per §7's error-surfacing rule.
	status := schema.StatusPass
	switch {
	case allError:
		status = schema.StatusError
		contributing = ordered
	case blocked:
		status = schema.StatusBlocked
	case fixed:
		status = schema.StatusFixed
	}

	names := make([]string, 0, len(contributing))
	for _, v := range contributing {
		names = append(names, v.Name)
	}

	return status, names, contributing
}

// stageB implements §4.5 Stage B: exactly one mitigation action applied to
// the original text.
func (a *Aggregator) stageB(text string, status schema.Status, action schema.Action, contributing []schema.Verdict) string {
	switch status {
	case schema.StatusBlocked, schema.StatusError:
		return ""
	case schema.StatusPass:
		return text
	}

	switch action {
	case schema.ActionPass, "":
		return text
	case schema.ActionRefrain:
		return ""
	case schema.ActionReask:
		return reaskPrompt
	case schema.ActionMask:
		return applySpans(text, mergeSpans(collectSpans(contributing)), a.maskToken, false)
	case schema.ActionFilter:
		return collapseWhitespace(applySpans(text, mergeSpans(collectSpans(contributing)), "", true))
	default:
		return text
	}
}

// assembleReasons concatenates each contributing verdict's reasons in
// analyzer-priority order, de-duplicating while preserving first
// occurrence, per §4.5's closing rule.
func assembleReasons(contributing []schema.Verdict) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range contributing {
		for _, r := range v.Reasons {
			if r == "" || seen[r] {
				continue
			}
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}

func orderedVerdicts(results map[string]schema.Verdict) []schema.Verdict {
	out := make([]schema.Verdict, 0, len(results))
	for _, v := range results {
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return schema.PriorityIndex(out[i].Name) < schema.PriorityIndex(out[j].Name)
	})
	return out
}

func collectSpans(contributing []schema.Verdict) []schema.Span {
	var spans []schema.Span
	for _, v := range contributing {
		spans = append(spans, v.Spans...)
	}
	return spans
}

// mergeSpans sorts spans by start ascending and merges overlapping or
// adjacent ranges into one, per §4.5's "unioned before masking" rule. The
// merged span keeps the first-encountered replacement text, since filter
// only needs one, and mask ignores it entirely.
func mergeSpans(spans []schema.Span) []schema.Span {
	if len(spans) == 0 {
		return nil
	}

	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].Start != spans[j].Start {
			return spans[i].Start < spans[j].Start
		}
		return spans[i].End < spans[j].End
	})

	merged := []schema.Span{spans[0]}
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.Start <= last.End {
			if s.End > last.End {
				last.End = s.End
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// applySpans rebuilds text as a slice of runes (UTF-8 code points, per
// §4.5), replacing each merged span with either the mask token or, when
// useReplacement is set, the span's own replacement text (falling back to
// the empty string for filter when none was supplied).
func applySpans(text string, spans []schema.Span, replacement string, useReplacement bool) string {
	if len(spans) == 0 {
		return text
	}

	runes := []rune(text)
	var b strings.Builder
	cursor := 0

	for _, s := range spans {
		start, end := s.Start, s.End
		if start < 0 {
			start = 0
		}
		if end > len(runes) {
			end = len(runes)
		}
		if start >= end || start < cursor {
			continue
		}

		b.WriteString(string(runes[cursor:start]))
		if useReplacement {
			b.WriteString(s.Replacement)
		} else {
			b.WriteString(replacement)
		}
		cursor = end
	}

	if cursor < len(runes) {
		b.WriteString(string(runes[cursor:]))
	}
	return b.String()
}

func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
