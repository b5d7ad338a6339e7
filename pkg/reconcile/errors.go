package reconcile

import "errors"

var (
	// ErrMissingAgent is returned when no agent id was given or remembered.
	ErrMissingAgent = errors.New("no agent id available")
	// ErrMissingRunIdentifier is returned when a submission carried neither
	// an inline analysis nor a run id to poll.
	ErrMissingRunIdentifier = errors.New("agent response carried neither an analysis nor a run id")
	ErrRunFailed            = errors.New("agent run failed")
	ErrRunTimedOut          = errors.New("agent run did not finish before the deadline")
	// ErrNoAnalysisFound is returned when a completed run's messages hold
	// nothing that looks like an analysis.
	ErrNoAnalysisFound = errors.New("no analysis found in agent response")
)
