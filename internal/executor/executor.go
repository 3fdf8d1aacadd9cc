// Package executor implements C4: the concurrent fan-out across the
// analyzers in a Plan, under a per-call timeout nested inside a global
// deadline, gated by per-analyzer circuit breakers.
//
// Grounded on the teacher's callModelsParallel/callModel (goroutine per
// call plus sync.WaitGroup, a breaker check ahead of every call). Two
// deliberate narrowings from the teacher: retries fire at most once and
// only on a transport-level error or a 5xx response, never on a timeout
// or a 4xx (teacher retried on any error); and one analyzer's failure
// never cancels its siblings — only the shared global deadline does.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lattice-run/modgate/internal/analyzer"
	"github.com/lattice-run/modgate/internal/breaker"
	"github.com/lattice-run/modgate/internal/client"
	"github.com/lattice-run/modgate/internal/config"
	"github.com/lattice-run/modgate/internal/metrics"
	"github.com/lattice-run/modgate/internal/schema"
)

// Executor runs a Plan's analyzer calls concurrently.
type Executor struct {
	cfg      *config.Config
	pool     *client.Pool
	registry *breaker.Registry
	metrics  *metrics.Metrics
	log      *logrus.Logger
}

// New creates an Executor.
func New(cfg *config.Config, pool *client.Pool, registry *breaker.Registry, m *metrics.Metrics, log *logrus.Logger) *Executor {
	return &Executor{cfg: cfg, pool: pool, registry: registry, metrics: m, log: log}
}

// Execute fans the plan's analyzers out concurrently and returns a
// name->Verdict map covering every analyzer in plan.Analyzers, per §4.4.
// It applies the configured global deadline on top of ctx; a call still
// in flight when the deadline elapses completes as an error Verdict with
// reason "timeout" without affecting its siblings.
func (e *Executor) Execute(ctx context.Context, plan schema.Plan, req *schema.NormalizedRequest) map[string]schema.Verdict {
	start := time.Now()
	globalCtx, cancel := context.WithTimeout(ctx, e.cfg.GlobalDeadline)
	defer cancel()

	results := make(map[string]schema.Verdict, len(plan.Analyzers))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, name := range plan.Analyzers {
		name := name
		wg.Add(1)
		go func() {
			defer wg.Done()
			v := e.call(globalCtx, name, req, plan.ActionOnFail)
			mu.Lock()
			results[name] = v
			mu.Unlock()
		}()
	}

	wg.Wait()
	e.metrics.ObserveFanout(time.Since(start))
	return results
}

func (e *Executor) call(ctx context.Context, name string, req *schema.NormalizedRequest, actionOnFail schema.Action) schema.Verdict {
	cb := e.registry.Get(name)
	e.metrics.SetBreakerState(name, cb.State())

	ticket, err := cb.Admit()
	if err != nil {
		return e.onShortCircuit(name, req.Text)
	}

	perCallTimeout := e.pool.Timeout(name)
	callCtx, cancel := context.WithTimeout(ctx, perCallTimeout)
	defer cancel()

	start := time.Now()
	status, body, callErr := e.doWithRetry(callCtx, name, req, actionOnFail)
	e.metrics.ObserveCall(name, time.Since(start))

	if callErr != nil {
		cb.Record(ticket, breaker.Failure)
		reason := "transport_error"
		if isTimeout(callCtx, callErr) {
			reason = "timeout"
		}
		e.log.WithFields(logrus.Fields{"analyzer": name, "request_id": req.RequestID, "reason": reason}).Warn("analyzer call failed")
		v := schema.Verdict{Name: name, Outcome: schema.OutcomeError, Reasons: []string{reason}}
		e.metrics.IncOutcome(name, string(v.Outcome))
		return v
	}

	if status < 200 || status > 299 {
		cb.Record(ticket, breaker.Failure)
		v := schema.Verdict{Name: name, Outcome: schema.OutcomeError, Reasons: []string{fmt.Sprintf("analyzer_http_%d", status)}}
		e.metrics.IncOutcome(name, string(v.Outcome))
		return v
	}

	v := analyzer.Adapt(name, body)
	if v.Outcome == schema.OutcomeError {
		cb.Record(ticket, breaker.Failure)
	} else {
		cb.Record(ticket, breaker.Success)
	}
	e.metrics.IncOutcome(name, string(v.Outcome))
	return v
}

// onShortCircuit handles a breaker-denied call (§4.4). The policy analyzer
// is the one the gateway cannot silently drop, so it gets a keyword
// fallback; every other analyzer short-circuits to a benign verdict that
// excludes it from the aggregation without blocking the request on its
// unavailability.
func (e *Executor) onShortCircuit(name, text string) schema.Verdict {
	if name == schema.AnalyzerPolicy {
		if v := analyzer.PolicyFallback(text); v != nil {
			e.metrics.IncOutcome(name, string(v.Outcome))
			return *v
		}
	}
	v := schema.Verdict{Name: name, Outcome: schema.OutcomeShortCircuited, Reasons: []string{"breaker_open"}}
	e.metrics.IncOutcome(name, string(v.Outcome))
	return v
}

func (e *Executor) doWithRetry(ctx context.Context, name string, req *schema.NormalizedRequest, actionOnFail schema.Action) (int, []byte, error) {
	outbound := analyzer.OutboundRequest{
		Text:         req.Text,
		ReturnSpans:  req.ReturnSpans,
		ActionOnFail: actionOnFail,
	}
	if name == schema.AnalyzerPII {
		outbound.Entities = req.Entities
	}

	body, err := json.Marshal(outbound)
	if err != nil {
		return 0, nil, err
	}

	status, respBody, callErr := e.doOnce(ctx, name, body)
	if shouldRetry(ctx, callErr, status) {
		e.metrics.IncRetry(name)
		status, respBody, callErr = e.doOnce(ctx, name, body)
	}
	return status, respBody, callErr
}

func (e *Executor) doOnce(ctx context.Context, name string, body []byte) (int, []byte, error) {
	url := e.pool.BaseURL(name)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if key := e.pool.APIKey(name); key != "" {
		httpReq.Header.Set("X-API-Key", key)
	}

	resp, err := e.pool.Get(name).Do(httpReq)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, respBody, nil
}

// shouldRetry implements §4.4/§9's narrowed retry predicate: at most one
// retry, only for a transport-level error or a 5xx response. A context
// deadline or cancellation, or a transport timeout, is never retried.
func shouldRetry(ctx context.Context, err error, status int) bool {
	if err != nil {
		if isTimeout(ctx, err) {
			return false
		}
		return true
	}
	return status >= 500
}

func isDeadlineErr(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(ctx.Err(), context.Canceled)
}

// isTimeout reports whether a failed call ran out of time: either its
// context ended, or the transport itself gave up waiting (for example the
// client's response-header timeout).
func isTimeout(ctx context.Context, err error) bool {
	if isDeadlineErr(ctx) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
