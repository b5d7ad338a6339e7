package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/OFFIS-RIT/proteus/backend/internal/util"
	"github.com/OFFIS-RIT/proteus/backend/pkg/agent"
	"github.com/OFFIS-RIT/proteus/backend/pkg/analysis"
	"github.com/OFFIS-RIT/proteus/backend/pkg/logger"
	"github.com/tidwall/gjson"
)

// Agent is the hosted agent as seen by the poller.
type Agent interface {
	Submit(ctx context.Context, agentID, message string) ([]byte, error)
	RunStatus(ctx context.Context, runID string) (string, error)
	RunMessages(ctx context.Context, runID string) ([]byte, error)
}

// RunState is the lifecycle position of a submitted run.
type RunState string

const (
	StateSubmitted RunState = "SUBMITTED"
	StatePolling   RunState = "POLLING"
	StateCompleted RunState = "COMPLETED"
	StateFailed    RunState = "FAILED"
	StateTimedOut  RunState = "TIMED_OUT"
)

// Terminal reports whether no further transition can happen.
func (s RunState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateTimedOut
}

// RunHandle tracks one submission until it reaches a terminal state.
// It is never persisted.
type RunHandle struct {
	RunID string
	State RunState
}

var (
	completedTokens = []string{"completed", "finished", "succeeded"}
	failedTokens    = []string{"failed", "error"}
)

type statusClass int

const (
	statusPending statusClass = iota
	statusCompleted
	statusFailed
)

func classifyStatus(status string) statusClass {
	token := strings.ToLower(strings.TrimSpace(status))
	for _, t := range completedTokens {
		if token == t {
			return statusCompleted
		}
	}
	for _, t := range failedTokens {
		if token == t {
			return statusFailed
		}
	}
	return statusPending
}

type PollerConfig struct {
	// Interval is waited before every status check.
	Interval time.Duration
	// Deadline bounds the whole polling phase.
	Deadline time.Duration
	// CallTimeout bounds every single call to the agent.
	CallTimeout time.Duration
	// SubmitAttempts is how often a submission failing at the transport level
	// is tried. Protocol errors are never retried.
	SubmitAttempts   int
	SubmitRetryDelay time.Duration
}

func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:         3 * time.Second,
		Deadline:         1200 * time.Second,
		CallTimeout:      30 * time.Second,
		SubmitAttempts:   1,
		SubmitRetryDelay: time.Second,
	}
}

// Completion is the outcome of a run. Handle is filled in on failure too.
type Completion struct {
	Handle     RunHandle
	Candidate  gjson.Result
	Strategy   Strategy
	Provenance analysis.Provenance
}

// Poller drives a submission through SUBMITTED, POLLING and a terminal state.
type Poller struct {
	agent Agent
	cfg   PollerConfig
	now   func() time.Time
}

func NewPoller(a Agent, cfg PollerConfig) *Poller {
	defaults := DefaultPollerConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = defaults.Interval
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = defaults.Deadline
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaults.CallTimeout
	}
	if cfg.SubmitAttempts <= 0 {
		cfg.SubmitAttempts = defaults.SubmitAttempts
	}
	return &Poller{agent: a, cfg: cfg, now: time.Now}
}

// Run submits message to the agent and waits for a candidate analysis.
// An inline answer short-circuits polling. Cancelling ctx abandons the run
// and returns ctx.Err().
func (p *Poller) Run(ctx context.Context, agentID, message string, log logger.Entry) (Completion, error) {
	c := Completion{Handle: RunHandle{State: StateSubmitted}}

	raw, err := p.submit(ctx, agentID, message)
	if err != nil {
		return c, err
	}
	if !gjson.ValidBytes(raw) {
		return c, &agent.UpstreamProtocolError{Op: "submit", Body: agent.TruncateBody(raw), Err: errors.New("response is not valid JSON")}
	}
	doc := gjson.ParseBytes(raw)

	if candidate, strategy, ok := ExtractInline(doc); ok {
		c.Handle.State = StateCompleted
		c.Candidate = candidate
		c.Strategy = strategy
		c.Provenance = analysis.ProvenanceAgentSync
		log.Info("Agent answered inline", "strategy", strategy)
		return c, nil
	}

	runID, ok := RunIdentifier(doc)
	if !ok {
		return c, ErrMissingRunIdentifier
	}
	c.Handle.RunID = runID
	c.Handle.State = StatePolling
	log = log.With("run_id", runID)
	log.Info("Polling agent run", "interval", p.cfg.Interval, "deadline", p.cfg.Deadline)

	return p.poll(ctx, c, log)
}

func (p *Poller) submit(ctx context.Context, agentID, message string) ([]byte, error) {
	raw, err := util.RetryWithContext(ctx, p.cfg.SubmitAttempts, p.cfg.SubmitRetryDelay, func(ctx context.Context) ([]byte, error) {
		callCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
		defer cancel()

		raw, err := p.agent.Submit(callCtx, agentID, message)
		switch {
		case err == nil:
			return raw, nil
		case errors.Is(err, agent.ErrUpstreamProtocol):
			return nil, util.Permanent(err)
		case ctx.Err() == nil && callCtx.Err() != nil:
			return nil, fmt.Errorf("submit timed out after %s", p.cfg.CallTimeout)
		default:
			return nil, err
		}
	})
	if err == nil {
		return raw, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if errors.Is(err, agent.ErrUpstreamProtocol) {
		return nil, err
	}
	return nil, &agent.UpstreamProtocolError{Op: "submit", Err: err}
}

func (p *Poller) poll(ctx context.Context, c Completion, log logger.Entry) (Completion, error) {
	runID := c.Handle.RunID
	deadline := p.now().Add(p.cfg.Deadline)
	checks := 0

	for {
		wait := min(p.cfg.Interval, deadline.Sub(p.now()))
		if wait <= 0 {
			break
		}
		if err := sleep(ctx, wait); err != nil {
			log.Warn("Polling cancelled", "checks", checks)
			return c, err
		}
		if !p.now().Before(deadline) {
			break
		}

		checks++
		status, err := p.status(ctx, runID, deadline)
		if err != nil {
			if ctx.Err() != nil {
				return c, ctx.Err()
			}
			log.Warn("Run status check failed, retrying", "err", err)
			continue
		}

		switch classifyStatus(status) {
		case statusFailed:
			c.Handle.State = StateFailed
			log.Error("Agent run failed", "status", status)
			return c, fmt.Errorf("run %s reported %q: %w", runID, status, ErrRunFailed)
		case statusCompleted:
			raw, err := p.messages(ctx, runID, deadline)
			if err != nil {
				if ctx.Err() != nil {
					return c, ctx.Err()
				}
				log.Warn("Fetching run messages failed, retrying", "err", err)
				continue
			}
			c.Handle.State = StateCompleted
			candidate, strategy, err := Extract(gjson.ParseBytes(raw))
			if err != nil {
				log.Error("Run completed without an analysis")
				return c, fmt.Errorf("run %s: %w", runID, err)
			}
			c.Candidate = candidate
			c.Strategy = strategy
			c.Provenance = analysis.ProvenanceAgentPolled
			log.Info("Agent run completed", "checks", checks, "strategy", strategy)
			return c, nil
		default:
			log.Debug("Agent run still in progress", "status", status)
		}
	}

	c.Handle.State = StateTimedOut
	log.Error("Agent run timed out", "checks", checks)
	return c, fmt.Errorf("run %s not finished after %s: %w", runID, p.cfg.Deadline, ErrRunTimedOut)
}

// callContext bounds a call by the per-call timeout and the polling deadline,
// whichever comes first.
func (p *Poller) callContext(ctx context.Context, deadline time.Time) (context.Context, context.CancelFunc) {
	callDeadline := p.now().Add(p.cfg.CallTimeout)
	if deadline.Before(callDeadline) {
		callDeadline = deadline
	}
	return context.WithDeadline(ctx, callDeadline)
}

func (p *Poller) status(ctx context.Context, runID string, deadline time.Time) (string, error) {
	callCtx, cancel := p.callContext(ctx, deadline)
	defer cancel()
	return p.agent.RunStatus(callCtx, runID)
}

func (p *Poller) messages(ctx context.Context, runID string, deadline time.Time) ([]byte, error) {
	callCtx, cancel := p.callContext(ctx, deadline)
	defer cancel()
	raw, err := p.agent.RunMessages(callCtx, runID)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(raw) {
		return nil, &agent.UpstreamProtocolError{Op: "messages", Body: agent.TruncateBody(raw), Err: errors.New("response is not valid JSON")}
	}
	return raw, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
