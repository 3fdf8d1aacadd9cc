package analyzer

import (
	"fmt"
	"strings"

	"github.com/lattice-run/modgate/internal/schema"
)

// policyFallbackRules is the keyword classifier that runs synchronously
// against text when the policy breaker has short-circuited (§4.4). It is
// deliberately crude — a safety net for the one analyzer whose absence
// the gateway cannot tolerate silently, not a replacement for the real
// model.
var policyFallbackRules = []struct {
	name     string
	keywords []string
}{
	{"weapons", []string{"bomb", "explosive", "detonat"}},
	{"violence", []string{"kill", "murder", "massacre"}},
	{"self_harm", []string{"suicide", "self-harm", "self harm"}},
	{"csam", []string{"child sexual", "child porn"}},
}

// PolicyFallback inspects text for the sentinel keyword rules and, if any
// fire, returns a flagged severity-4 Verdict with a
// "policy_fallback:<rule>" reason (§4.4). It returns nil when no rule
// fires, in which case the caller keeps the benign short-circuit verdict.
func PolicyFallback(text string) *schema.Verdict {
	lower := strings.ToLower(text)
	for _, rule := range policyFallbackRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return &schema.Verdict{
					Name:     schema.AnalyzerPolicy,
					Outcome:  schema.OutcomeFlagged,
					Severity: 4,
					Reasons:  []string{fmt.Sprintf("policy_fallback:%s", rule.name)},
				}
			}
		}
	}
	return nil
}
