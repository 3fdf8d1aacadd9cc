// Package router implements C2: given a normalized request, chooses the
// set of analyzers to invoke and the effective mitigation action, per §4.2.
package router

import (
	"strings"
	"unicode"

	"github.com/lattice-run/modgate/internal/schema"
)

// credentialKeywords are the heuristic triggers for including pii/secrets
// when checks is unset.
var credentialKeywords = []string{"key", "token", "password", "secret", "sk-", "api"}

// jailbreakSentinels are the heuristic triggers for including jailbreak.
var jailbreakSentinels = []string{"ignore", "previous instructions", "system prompt", "dan", "developer mode"}

// Route builds the Plan for a normalized request per the routing policy
// in §4.2: explicit checks win over the heuristic default set, and if the
// result would otherwise be empty the plan falls back to {policy} alone.
func Route(req *schema.NormalizedRequest) schema.Plan {
	selected := defaultSet(req.Text)

	for name, enabled := range req.Checks {
		if enabled {
			selected[name] = true
		} else {
			delete(selected, name)
		}
	}

	if len(selected) == 0 {
		selected[schema.AnalyzerPolicy] = true
	}

	ordered := make([]string, 0, len(selected))
	for _, name := range schema.PriorityOrder {
		if selected[name] {
			ordered = append(ordered, name)
		}
	}
	// Explicit checks may name analyzers outside the fixed priority list;
	// append them after the known set so they are never silently dropped.
	// Their order relative to each other is not defined.
	for name, enabled := range req.Checks {
		if enabled && !schema.KnownAnalyzer(name) && !contains(ordered, name) {
			ordered = append(ordered, name)
		}
	}

	return schema.Plan{Analyzers: ordered, ActionOnFail: req.ActionOnFail}
}

// defaultSet computes the heuristic default analyzer set from text alone,
// before any explicit checks are applied (§4.2 rule 2). format and brand
// are never included by heuristic — explicit request only.
func defaultSet(text string) map[string]bool {
	set := map[string]bool{schema.AnalyzerPolicy: true}

	lower := strings.ToLower(text)

	if looksLikeCredentialBearing(text, lower) {
		set[schema.AnalyzerPII] = true
		set[schema.AnalyzerSecrets] = true
	}

	if hasAlphabeticWords(text) && tokenCount(text) >= 3 {
		set[schema.AnalyzerToxicity] = true
		set[schema.AnalyzerBias] = true
	}

	if containsAny(lower, jailbreakSentinels) || len([]rune(text)) >= 80 {
		set[schema.AnalyzerJailbreak] = true
	}

	if nonWhitespaceLen := nonWhitespaceRuneCount(text); len([]rune(text)) >= 8 && nonWhitespaceLen < 200 {
		set[schema.AnalyzerGibberish] = true
	}

	return set
}

func looksLikeCredentialBearing(text, lower string) bool {
	if strings.Contains(text, "@") {
		return true
	}
	if hasThreeConsecutiveDigits(text) {
		return true
	}
	if containsAny(lower, credentialKeywords) {
		return true
	}
	return len([]rune(text)) > 40
}

func hasThreeConsecutiveDigits(text string) bool {
	run := 0
	for _, r := range text {
		if unicode.IsDigit(r) {
			run++
			if run >= 3 {
				return true
			}
		} else {
			run = 0
		}
	}
	return false
}

func hasAlphabeticWords(text string) bool {
	for _, r := range text {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func tokenCount(text string) int {
	return len(strings.Fields(text))
}

func nonWhitespaceRuneCount(text string) int {
	n := 0
	for _, r := range text {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

func containsAny(haystack string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
