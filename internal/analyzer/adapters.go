package analyzer

import (
	"encoding/json"

	"github.com/lattice-run/modgate/internal/schema"
)

// Adapter translates one analyzer's raw JSON response body into the
// common Verdict shape. Adapters never throw; malformed input produces an
// error Verdict.
type Adapter func(name string, body []byte) schema.Verdict

// Adapters maps analyzer name to its adapter, per §9's "one adapter, one
// config entry, no change to C3/C4/C5" design.
var Adapters = map[string]Adapter{
	schema.AnalyzerPolicy:    booleanAdapter(4),
	schema.AnalyzerSecrets:   spanAdapter,
	schema.AnalyzerPII:       piiAdapter,
	schema.AnalyzerJailbreak: booleanAdapter(4),
	schema.AnalyzerToxicity:  scoreAdapter,
	schema.AnalyzerBias:      scoreAdapter,
	schema.AnalyzerBrand:     booleanAdapter(3),
	schema.AnalyzerGibberish: scoreAdapter,
	schema.AnalyzerFormat:    booleanAdapter(2),
}

// Adapt dispatches to the analyzer's registered adapter, falling back to
// a generic score-style parse for any analyzer not in the fixed list
// (e.g. one added only via an explicit check).
func Adapt(name string, body []byte) schema.Verdict {
	if a, ok := Adapters[name]; ok {
		return a(name, body)
	}
	return scoreAdapter(name, body)
}

func withRaw(v schema.Verdict, body []byte) schema.Verdict {
	v.Raw = json.RawMessage(body)
	return v
}

// booleanAdapter builds an adapter for analyzers whose response is a
// single block/flag boolean plus a score (policy, jailbreak, brand,
// format — jailbreak_detection_api.py / format_service.py's shape).
// defaultSeverity is used when the analyzer flags but supplies neither an
// explicit severity nor a usable score.
func booleanAdapter(defaultSeverity int) Adapter {
	return func(name string, body []byte) schema.Verdict {
		g, err := decodeGeneric(body)
		if err != nil {
			return withRaw(errorVerdict(name, "malformed analyzer response"), body)
		}

		flagged := false
		if g.Violated != nil {
			flagged = *g.Violated
		} else if g.IsFlag != nil {
			flagged = *g.IsFlag
		} else if b, ok := g.flaggedBool(); ok {
			flagged = b
		} else if g.Status == "blocked" || g.Status == "fixed" {
			flagged = true
		}

		if !flagged {
			return withRaw(schema.Verdict{Name: name, Outcome: schema.OutcomePass, Reasons: g.reasons()}, body)
		}

		severity := defaultSeverity
		if g.Severity != nil {
			severity = *g.Severity
		} else if g.Score > 0 {
			severity = severityFromScore(g.Score)
		}

		return withRaw(schema.Verdict{
			Name:     name,
			Outcome:  schema.OutcomeFlagged,
			Severity: severity,
			Reasons:  g.reasons(),
		}, body)
	}
}

// scoreAdapter builds an adapter for analyzers whose response is a
// continuous score with no explicit block boolean (toxicity, bias,
// gibberish). A verdict is flagged whenever its severity is non-zero: an
// explicit severity above 0, or else any positive score (which
// severityFromScore maps to at least 1).
func scoreAdapter(name string, body []byte) schema.Verdict {
	g, err := decodeGeneric(body)
	if err != nil {
		return withRaw(errorVerdict(name, "malformed analyzer response"), body)
	}

	severity := 0
	if g.Severity != nil {
		severity = *g.Severity
	} else {
		severity = severityFromScore(g.Score)
	}

	if b, ok := g.flaggedBool(); ok && !b {
		severity = 0
	}

	if severity == 0 {
		return withRaw(schema.Verdict{Name: name, Outcome: schema.OutcomePass, Reasons: g.reasons()}, body)
	}

	return withRaw(schema.Verdict{
		Name:     name,
		Outcome:  schema.OutcomeFlagged,
		Severity: severity,
		Reasons:  g.reasons(),
	}, body)
}

// spanAdapter builds an adapter for analyzers that report a list of
// flagged spans (secrets — enhanced_secrets_app.py's FlagOut list).
func spanAdapter(name string, body []byte) schema.Verdict {
	g, err := decodeGeneric(body)
	if err != nil {
		return withRaw(errorVerdict(name, "malformed analyzer response"), body)
	}

	raw, ok := g.flaggedSpans()
	if !ok {
		raw = g.Spans
	}

	if len(raw) == 0 {
		return withRaw(schema.Verdict{Name: name, Outcome: schema.OutcomePass, Reasons: g.reasons()}, body)
	}

	return withRaw(schema.Verdict{
		Name:     name,
		Outcome:  schema.OutcomeFlagged,
		Severity: maxSeverity(raw, g.Score),
		Reasons:  g.reasons(),
		Spans:    toSpans(raw),
	}, body)
}

// piiAdapter is spanAdapter with a fallback to the "entities" field name
// some PII services use instead of "flagged"/"spans".
func piiAdapter(name string, body []byte) schema.Verdict {
	g, err := decodeGeneric(body)
	if err != nil {
		return withRaw(errorVerdict(name, "malformed analyzer response"), body)
	}

	raw, ok := g.flaggedSpans()
	if !ok {
		raw = g.Spans
	}
	if len(raw) == 0 {
		raw = g.Entities
	}

	if len(raw) == 0 {
		return withRaw(schema.Verdict{Name: name, Outcome: schema.OutcomePass, Reasons: g.reasons()}, body)
	}

	return withRaw(schema.Verdict{
		Name:     name,
		Outcome:  schema.OutcomeFlagged,
		Severity: maxSeverity(raw, g.Score),
		Reasons:  g.reasons(),
		Spans:    toSpans(raw),
	}, body)
}
