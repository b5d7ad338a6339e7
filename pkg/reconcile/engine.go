// Package reconcile turns the unpredictable replies of a hosted agent into a
// validated analysis: it submits the trigger, polls asynchronous runs,
// extracts a candidate from whatever shape comes back and stores the result.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/proteus/backend/pkg/analysis"
	"github.com/OFFIS-RIT/proteus/backend/pkg/logger"
	"github.com/OFFIS-RIT/proteus/backend/pkg/store"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// DefaultTriggerMessage asks the agent for a fresh analysis.
const DefaultTriggerMessage = "Analyze the latest notebook state and return the structured protein-edit analysis as JSON."

// StoreHook observes every successfully stored snapshot. Each hook receives
// its own copy of the result.
type StoreHook func(ctx context.Context, snapshot store.Snapshot)

type Config struct {
	Poller         PollerConfig
	TriggerMessage string
}

type Option func(*Engine)

// WithStoreHook registers h to run after each successful store.
func WithStoreHook(h StoreHook) Option {
	return func(e *Engine) {
		e.hooks = append(e.hooks, h)
	}
}

// Engine runs analyses against an agent and keeps the latest good result.
type Engine struct {
	poller  *Poller
	results store.ResultStorage
	trigger string
	hooks   []StoreHook
}

func NewEngine(a Agent, results store.ResultStorage, cfg Config, opts ...Option) *Engine {
	trigger := strings.TrimSpace(cfg.TriggerMessage)
	if trigger == "" {
		trigger = DefaultTriggerMessage
	}
	e := &Engine{
		poller:  NewPoller(a, cfg.Poller),
		results: results,
		trigger: trigger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunAnalysis asks agentID for an analysis, validates it and stores it.
// Nothing is stored when any step fails.
func (e *Engine) RunAnalysis(ctx context.Context, agentID string) (store.Snapshot, error) {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return store.Snapshot{}, ErrMissingAgent
	}

	log := logger.With("analysis_id", newAnalysisID(), "agent_id", agentID)
	log.Info("Starting analysis run")

	completion, err := e.poller.Run(ctx, agentID, e.trigger, log)
	if err != nil {
		log.Error("Analysis run failed", "state", completion.Handle.State, "err", err)
		return store.Snapshot{}, err
	}

	var candidate map[string]any
	if err := json.Unmarshal([]byte(completion.Candidate.Raw), &candidate); err != nil {
		return store.Snapshot{}, fmt.Errorf("decode candidate: %w", err)
	}
	result, err := analysis.Validate(candidate)
	if err != nil {
		log.Warn("Agent analysis rejected", "strategy", completion.Strategy, "err", err)
		return store.Snapshot{}, err
	}

	return e.store(ctx, log, result, completion.Provenance), nil
}

// SubmitExternalResult validates a result pushed by a caller and stores it
// with external-submit provenance.
func (e *Engine) SubmitExternalResult(ctx context.Context, raw []byte) (store.Snapshot, error) {
	log := logger.With("analysis_id", newAnalysisID())

	result, err := analysis.ParseCandidate(raw)
	if err != nil {
		log.Warn("External analysis rejected", "err", err)
		return store.Snapshot{}, err
	}
	return e.store(ctx, log, result, analysis.ProvenanceExternalSubmit), nil
}

// LatestResult returns the last stored snapshot or store.ErrNotFound.
func (e *Engine) LatestResult() (store.Snapshot, error) {
	return e.results.Get()
}

func (e *Engine) store(ctx context.Context, log logger.Entry, result *analysis.AnalysisResult, provenance analysis.Provenance) store.Snapshot {
	snapshot := e.results.Put(result, provenance)
	log.Info("Stored analysis result",
		"provenance", provenance,
		"nodes", len(result.Graph.Nodes),
		"edges", len(result.Graph.Edges),
	)
	for _, h := range e.hooks {
		h(ctx, snapshot.Clone())
	}
	return snapshot
}

func newAnalysisID() string {
	id, err := gonanoid.New()
	if err != nil {
		return "unknown"
	}
	return id
}
