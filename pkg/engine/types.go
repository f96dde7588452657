// Package engine implements the cognition pipeline: event validation,
// state integration, value scoring, coherence, deliberation, execution,
// and adaptation, with per-domain plugins dispatched through a registry.
package engine

import (
	"context"

	"github.com/pce-project/pce/pkg/models"
)

// ValueModel scores an event against domain values.
type ValueModel interface {
	Name() string
	Matches(state map[string]any, ev *models.Event) bool
	// Evaluate returns a value score in [0,1] plus violated value tags.
	Evaluate(ctx context.Context, state map[string]any, ev *models.Event) (float64, []string, error)
}

// Integrator merges an event into its domain slice of the candidate state.
// Implementations mutate the candidate snapshot and must be total: bad input
// is clamped, never surfaced as an error to the caller of the pipeline.
type Integrator interface {
	Name() string
	Matches(state map[string]any, ev *models.Event) bool
	Integrate(ctx context.Context, state map[string]any, ev *models.Event) error
}

// DecisionInput carries everything a decision plugin may consult.
type DecisionInput struct {
	State      map[string]any
	Event      *models.Event
	ValueScore float64
	CCI        *models.CCIResult
}

// DecisionPlugin deliberates an action plan for events it matches.
type DecisionPlugin interface {
	Name() string
	Matches(state map[string]any, ev *models.Event) bool
	Decide(ctx context.Context, in *DecisionInput) (*models.ActionPlan, error)
}

// Executor carries out an action plan and reports the observed outcome.
type Executor interface {
	Name() string
	Matches(state map[string]any, plan *models.ActionPlan) bool
	Execute(ctx context.Context, state map[string]any, plan *models.ActionPlan, ev *models.Event) (*models.ExecutionResult, error)
}

// AdaptationInput carries the full decision context into feedback handling.
type AdaptationInput struct {
	State      map[string]any
	Event      *models.Event
	Plan       *models.ActionPlan
	Result     *models.ExecutionResult
	Violations []string
}

// AdaptationPlugin folds execution outcomes back into domain memory.
// Implementations mutate the state snapshot; the pipeline persists it.
type AdaptationPlugin interface {
	Name() string
	Matches(state map[string]any, ev *models.Event) bool
	Adapt(ctx context.Context, in *AdaptationInput) error
}

// StateApplier mutates durable domain substate after an action executed.
// Unlike Integrator it runs post-gate, so suspended actions never reach it.
type StateApplier interface {
	Name() string
	Matches(state map[string]any, ev *models.Event) bool
	Apply(ctx context.Context, state map[string]any, ev *models.Event, result *models.ExecutionResult) error
}

// TranscriptSink receives transcript items as the pipeline produces them.
// The store satisfies it directly; the broadcaster wraps the store and fans
// items out to live subscribers as well.
type TranscriptSink interface {
	AppendTranscript(ctx context.Context, item *models.TranscriptItem) (int64, error)
}
