// Package schema holds the wire and domain types shared by every stage of
// the gateway: inbound requests, per-analyzer verdicts, and the unified
// response body.
package schema

// AnalyzerName identifies one of the fixed upstream analyzers.
type AnalyzerName = string

// The fixed analyzer set and their priority order (§4.2). Index determines
// tie-break ordering for reasons/blocked_categories assembly.
const (
	AnalyzerPolicy    AnalyzerName = "policy"
	AnalyzerSecrets   AnalyzerName = "secrets"
	AnalyzerPII       AnalyzerName = "pii"
	AnalyzerJailbreak AnalyzerName = "jailbreak"
	AnalyzerToxicity  AnalyzerName = "toxicity"
	AnalyzerBias      AnalyzerName = "bias"
	AnalyzerBrand     AnalyzerName = "brand"
	AnalyzerGibberish AnalyzerName = "gibberish"
	AnalyzerFormat    AnalyzerName = "format"
)

// PriorityOrder is the stable analyzer ordering from §4.2, used to
// tie-break reasons/blocked_categories assembly and as the canonical list
// of every analyzer the gateway knows about.
var PriorityOrder = []AnalyzerName{
	AnalyzerPolicy,
	AnalyzerSecrets,
	AnalyzerPII,
	AnalyzerJailbreak,
	AnalyzerToxicity,
	AnalyzerBias,
	AnalyzerBrand,
	AnalyzerGibberish,
	AnalyzerFormat,
}

// PriorityIndex maps an analyzer name to its position in PriorityOrder, for
// sorting. Unknown names sort last.
func PriorityIndex(name AnalyzerName) int {
	for i, n := range PriorityOrder {
		if n == name {
			return i
		}
	}
	return len(PriorityOrder)
}

// KnownAnalyzer reports whether name is one of the fixed analyzers.
func KnownAnalyzer(name string) bool {
	for _, n := range PriorityOrder {
		if n == name {
			return true
		}
	}
	return false
}
