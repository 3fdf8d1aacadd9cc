// Package breaker implements C3: one circuit breaker per analyzer,
// gating calls and transitioning between CLOSED/OPEN/HALF_OPEN per §4.3.
//
// The state machine and the "exactly one probe admitted in HALF_OPEN"
// guarantee are delegated to sony/gobreaker's TwoStepCircuitBreaker, which
// already returns the (done func(success bool), error) pair the spec's
// Ticket/record contract needs. The trip decision itself — a trailing
// window of the last N completions, tripping on either an absolute
// failure count or a failure ratio with a minimum sample size — is
// spec-specific and is implemented with a small ring buffer that
// gobreaker's own ReadyToTrip callback consults instead of its built-in,
// interval-reset Counts.
package breaker

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// Outcome is what Record reports for a completed call.
type Outcome int

const (
	Success Outcome = iota
	Failure
)

// Ticket is returned by Admit and must be passed back to Record exactly
// once.
type Ticket struct {
	done func(success bool)
}

// ErrShortCircuited is returned by Admit when the breaker refuses the
// call (§7: ANALYZER_UNAVAILABLE).
var ErrShortCircuited = gobreakerShortCircuitedSentinel{}

type gobreakerShortCircuitedSentinel struct{}

func (gobreakerShortCircuitedSentinel) Error() string { return "breaker: short-circuited" }

// ring is a fixed-capacity trailing window of the last N outcomes.
type ring struct {
	mu      sync.Mutex
	buf     []bool // true = success
	size    int
	cursor  int
	count   int // total samples recorded (saturates at size)
	failCnt int // failures currently present in buf
}

func newRing(size int) *ring {
	if size < 1 {
		size = 1
	}
	return &ring{buf: make([]bool, size), size: size}
}

func (r *ring) add(success bool) (samples, failures int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count >= r.size {
		// overwriting the oldest sample; remove its contribution first.
		if !r.buf[r.cursor] {
			r.failCnt--
		}
	} else {
		r.count++
	}

	r.buf[r.cursor] = success
	if !success {
		r.failCnt++
	}
	r.cursor = (r.cursor + 1) % r.size

	return r.count, r.failCnt
}

func (r *ring) snapshot() (samples, failures int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count, r.failCnt
}

// Policy holds the trip thresholds from §4.3.
type Policy struct {
	FailureThreshold int
	Window           int
	RatioThreshold   float64
	MinimumSamples   int
	Cooldown         time.Duration
}

// Breaker is a single analyzer's circuit breaker.
type Breaker struct {
	name   string
	policy Policy
	window *ring
	cb     *gobreaker.TwoStepCircuitBreaker
}

// New creates a Breaker for one analyzer.
func New(name string, policy Policy) *Breaker {
	b := &Breaker{
		name:   name,
		policy: policy,
		window: newRing(policy.Window),
	}

	b.cb = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     policy.Cooldown,
		ReadyToTrip: func(_ gobreaker.Counts) bool {
			samples, failures := b.window.snapshot()
			if failures >= policy.FailureThreshold {
				return true
			}
			if samples >= policy.MinimumSamples && float64(failures)/float64(samples) > policy.RatioThreshold {
				return true
			}
			return false
		},
	})

	return b
}

// Admit requests permission to call the analyzer. It returns
// ErrShortCircuited when the breaker is OPEN, or when it is HALF_OPEN and
// a probe is already in flight.
func (b *Breaker) Admit() (*Ticket, error) {
	done, err := b.cb.Allow()
	if err != nil {
		return nil, ErrShortCircuited
	}
	return &Ticket{done: done}, nil
}

// Record reports the outcome of a call admitted by Admit. It updates the
// trailing window before invoking gobreaker's completion callback so the
// ReadyToTrip closure observes the latest sample.
func (b *Breaker) Record(t *Ticket, outcome Outcome) {
	success := outcome == Success
	b.window.add(success)
	t.done(success)
}

// State returns the breaker's current state as one of
// "CLOSED"/"OPEN"/"HALF_OPEN" per §4.3's observability contract.
func (b *Breaker) State() string {
	switch b.cb.State() {
	case gobreaker.StateClosed:
		return "CLOSED"
	case gobreaker.StateHalfOpen:
		return "HALF_OPEN"
	case gobreaker.StateOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

// Name returns the analyzer name this breaker guards.
func (b *Breaker) Name() string { return b.name }
