// Package analyzer implements the per-analyzer adapters described in §9:
// one small function per upstream analyzer that translates its own JSON
// response shape into the gateway's common schema.Verdict. Adapters never
// throw — anything malformed produces an error Verdict, per §4.4.
package analyzer

import (
	"encoding/json"

	"github.com/lattice-run/modgate/internal/schema"
)

// OutboundRequest is the JSON body posted to every analyzer (§4.4, §6).
type OutboundRequest struct {
	Text         string        `json:"text"`
	ReturnSpans  bool          `json:"return_spans"`
	ActionOnFail schema.Action `json:"action_on_fail"`
	Entities     []string      `json:"entities,omitempty"`
}

// rawSpan covers the field-name variants seen across the upstream fleet's
// span-bearing responses (enhanced_secrets_app.py's FlagOut uses
// start/end/category/severity/score; PII-style services tend to use
// type/label instead of category).
type rawSpan struct {
	Start       int     `json:"start"`
	End         int     `json:"end"`
	Label       string  `json:"label"`
	Category    string  `json:"category"`
	Type        string  `json:"type"`
	Replacement string  `json:"replacement"`
	Severity    *int    `json:"severity"`
	Score       float64 `json:"score"`
}

func (s rawSpan) label() string {
	switch {
	case s.Label != "":
		return s.Label
	case s.Category != "":
		return s.Category
	default:
		return s.Type
	}
}

// genericBody is a superset decode target covering every field-name
// variant this fleet's analyzers use for block/flag status, score, and
// spans. Each per-analyzer adapter reads only the fields relevant to that
// analyzer's own schema, per §9's closing note ("adapters must paper over
// this without leaking the differences into C5").
type genericBody struct {
	Status   string          `json:"status"`
	Violated *bool           `json:"violated"`
	Flagged  json.RawMessage `json:"flagged"`
	IsFlag   *bool           `json:"is_flagged"`
	Score    float64         `json:"score"`
	Severity *int            `json:"severity"`
	Reasons  []string        `json:"reasons"`
	Details  []string        `json:"details"`
	Spans    []rawSpan       `json:"spans"`
	Entities []rawSpan       `json:"entities"`
}

func decodeGeneric(body []byte) (genericBody, error) {
	var g genericBody
	if err := json.Unmarshal(body, &g); err != nil {
		return genericBody{}, err
	}
	return g, nil
}

// flaggedBool interprets the "flagged" field as a bare boolean, when the
// analyzer uses that shape rather than a span array.
func (g genericBody) flaggedBool() (bool, bool) {
	if len(g.Flagged) == 0 {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(g.Flagged, &b); err == nil {
		return b, true
	}
	return false, false
}

// flaggedSpans interprets the "flagged" field as a span array, when the
// analyzer uses that shape (enhanced_secrets_app.py's FlagOut list).
func (g genericBody) flaggedSpans() ([]rawSpan, bool) {
	if len(g.Flagged) == 0 {
		return nil, false
	}
	var spans []rawSpan
	if err := json.Unmarshal(g.Flagged, &spans); err == nil {
		return spans, true
	}
	return nil, false
}

// reasons merges the Reasons/Details variants, preserving order,
// de-duplicating.
func (g genericBody) reasons() []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(g.Reasons)+len(g.Details))
	for _, list := range [][]string{g.Reasons, g.Details} {
		for _, r := range list {
			if r == "" || seen[r] {
				continue
			}
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}

// severityFromScore derives a [0,4] severity when the analyzer did not
// supply one explicitly, per §9's adapter design note.
func severityFromScore(score float64) int {
	switch {
	case score >= 0.9:
		return 4
	case score >= 0.7:
		return 3
	case score >= 0.4:
		return 2
	case score > 0:
		return 1
	default:
		return 0
	}
}

func toSpans(raw []rawSpan) []schema.Span {
	if len(raw) == 0 {
		return nil
	}
	out := make([]schema.Span, 0, len(raw))
	for _, s := range raw {
		out = append(out, schema.Span{
			Start:       s.Start,
			End:         s.End,
			Label:       s.label(),
			Replacement: s.Replacement,
		})
	}
	return out
}

func maxSeverity(raw []rawSpan, fallbackScore float64) int {
	best := 0
	found := false
	for _, s := range raw {
		found = true
		sev := 0
		if s.Severity != nil {
			sev = *s.Severity
		} else {
			sev = severityFromScore(s.Score)
		}
		if sev > best {
			best = sev
		}
	}
	if !found {
		return severityFromScore(fallbackScore)
	}
	return best
}

func errorVerdict(name, reason string) schema.Verdict {
	return schema.Verdict{Name: name, Outcome: schema.OutcomeError, Reasons: []string{reason}}
}
