// Package normalizer implements C1: inbound JSON validation, API-key
// authentication, and canonicalization of the request into the immutable
// value the Router consumes. Its only I/O is reading the request body, and
// apart from the random request ID it assigns, its result depends only on
// the request.
package normalizer

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/lattice-run/modgate/internal/schema"
)

// Normalizer validates and normalizes inbound requests per §4.1.
type Normalizer struct {
	apiKeys      map[string][]byte
	maxTextBytes int
}

// New creates a Normalizer from the configured API-key allow-list and text
// size cap.
func New(apiKeys []string, maxTextBytes int) *Normalizer {
	keys := make(map[string][]byte, len(apiKeys))
	for _, k := range apiKeys {
		keys[k] = []byte(k)
	}
	return &Normalizer{apiKeys: keys, maxTextBytes: maxTextBytes}
}

// Normalize validates the API key and request body and produces a
// NormalizedRequest, or a Rejection describing why the request cannot
// proceed. forcedChecks, when non-nil, overrides req.Checks entirely —
// used by the per-analyzer POST /{analyzer} routes (§6).
func (n *Normalizer) Normalize(r *http.Request, forcedChecks map[string]bool) (*schema.NormalizedRequest, *schema.Rejection) {
	if rej := n.authenticate(r); rej != nil {
		return nil, rej
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, int64(n.maxTextBytes)+4096))
	if err != nil {
		return nil, &schema.Rejection{Code: schema.CodeInvalidInput, Reason: "unable to read request body", Status: http.StatusBadRequest}
	}

	var req schema.Request
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, &schema.Rejection{Code: schema.CodeInvalidInput, Reason: "invalid JSON body", Status: http.StatusBadRequest}
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, &schema.Rejection{Code: schema.CodeInvalidInput, Reason: "text is required", Status: http.StatusBadRequest}
	}
	if len(req.Text) > n.maxTextBytes {
		return nil, &schema.Rejection{Code: schema.CodeInvalidInput, Reason: "text exceeds maximum size", Status: http.StatusBadRequest}
	}

	action := req.ActionOnFail
	if action == "" {
		action = schema.ActionFilter
	}
	if !schema.ValidAction(action) {
		return nil, &schema.Rejection{Code: schema.CodeInvalidInput, Reason: "invalid action_on_fail", Status: http.StatusBadRequest}
	}

	checks := req.Checks
	if forcedChecks != nil {
		checks = forcedChecks
	}

	return &schema.NormalizedRequest{
		Text:         req.Text,
		Checks:       checks,
		ActionOnFail: action,
		ReturnSpans:  req.ReturnSpans,
		Entities:     req.Entities,
		RequestID:    uuid.New().String(),
	}, nil
}

// authenticate checks X-API-Key against the configured allow-list using a
// constant-time comparison, per §4.1.
func (n *Normalizer) authenticate(r *http.Request) *schema.Rejection {
	key := r.Header.Get("X-API-Key")
	if key == "" {
		return &schema.Rejection{Code: schema.CodeUnauthenticated, Reason: "missing API key", Status: http.StatusUnauthorized}
	}
	if !n.allowed(key) {
		return &schema.Rejection{Code: schema.CodeUnauthenticated, Reason: "invalid API key", Status: http.StatusUnauthorized}
	}
	return nil
}

// allowed reports whether key matches one of the configured API keys,
// comparing every candidate (not short-circuiting on the first match) to
// keep the check's timing independent of which entry, if any, matches.
func (n *Normalizer) allowed(key string) bool {
	candidate := []byte(key)
	match := false
	for _, stored := range n.apiKeys {
		if len(stored) == len(candidate) && subtle.ConstantTimeCompare(stored, candidate) == 1 {
			match = true
		}
	}
	return match
}

// ForceAnalyzer builds the forced-checks map used by POST /{analyzer}: the
// named analyzer is enabled and every other known analyzer is disabled
// (§6).
func ForceAnalyzer(name string) map[string]bool {
	checks := make(map[string]bool, len(schema.PriorityOrder))
	for _, n := range schema.PriorityOrder {
		checks[n] = n == name
	}
	return checks
}
