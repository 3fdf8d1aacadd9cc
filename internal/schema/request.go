package schema

// Action is one of the five mitigation actions a request may select.
// Matches the Python analyzer fleet's own action_on_fail enum
// (enhanced_secrets_app.py: refrain|filter|mask|reask, extended with pass).
type Action string

const (
	ActionPass    Action = "pass"
	ActionMask    Action = "mask"
	ActionFilter  Action = "filter"
	ActionRefrain Action = "refrain"
	ActionReask   Action = "reask"
)

// ValidAction reports whether a is one of the enumerated actions.
func ValidAction(a Action) bool {
	switch a {
	case ActionPass, ActionMask, ActionFilter, ActionRefrain, ActionReask:
		return true
	default:
		return false
	}
}

// Request is the inbound JSON body for POST /validate and POST /{analyzer}.
type Request struct {
	Text         string          `json:"text"`
	Checks       map[string]bool `json:"checks,omitempty"`
	ActionOnFail Action          `json:"action_on_fail,omitempty"`
	ReturnSpans  bool            `json:"return_spans,omitempty"`
	Entities     []string        `json:"entities,omitempty"`
}

// NormalizedRequest is the immutable value C1 hands to C2. Checks that were
// absent in the inbound JSON are left undefined (nil map lookup yields
// "not set", distinct from explicit false) so the Router can apply its
// default policy per §4.1.
type NormalizedRequest struct {
	Text         string
	Checks       map[string]bool
	ActionOnFail Action
	ReturnSpans  bool
	Entities     []string
	RequestID    string
}

// RejectionCode is the error taxonomy from §7 that C1 may raise.
type RejectionCode string

const (
	CodeUnauthenticated RejectionCode = "UNAUTHENTICATED"
	CodeInvalidInput    RejectionCode = "INVALID_INPUT"
)

// Rejection is returned by the normalizer when a request cannot proceed.
type Rejection struct {
	Code   RejectionCode
	Reason string
	Status int
}

func (r *Rejection) Error() string { return r.Reason }
