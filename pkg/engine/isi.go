package engine

import (
	"context"

	"dario.cat/mergo"

	"github.com/pce-project/pce/pkg/models"
)

// integrationClampedKey flags a domain slice that had to be rebuilt because
// the stored value was not a mapping. The value evaluator reports it as a
// violation downstream; integration itself never fails the pipeline.
const integrationClampedKey = "integration_clamped"

// coreIntegrator merges the event payload into the state[domain] slice and
// stamps last_event_id / last_event_type. It is the fallback when no domain
// plugin registered its own merge.
type coreIntegrator struct{}

func (coreIntegrator) Name() string { return "core_integrator" }

func (coreIntegrator) Matches(map[string]any, *models.Event) bool { return true }

func (coreIntegrator) Integrate(_ context.Context, state map[string]any, ev *models.Event) error {
	domain := ev.Domain()
	merged := make(map[string]any)
	clamped := false
	if existing, ok := state[domain]; ok {
		if slice, ok := existing.(map[string]any); ok {
			for k, v := range slice {
				merged[k] = v
			}
		} else {
			clamped = true
		}
	}
	if err := mergo.Merge(&merged, ev.Payload, mergo.WithOverride); err != nil {
		// Merge rules are total: an unmergeable payload degrades to a
		// flagged overwrite instead of failing integration.
		clamped = true
		for k, v := range ev.Payload {
			merged[k] = v
		}
	}
	if clamped {
		merged[integrationClampedKey] = true
	}
	merged["last_event_id"] = ev.EventID
	merged["last_event_type"] = ev.EventType
	state[domain] = merged
	return nil
}

// integrate produces the candidate snapshot for an event: a copy of the
// current state with the domain plugin's merge (or the core merge) applied.
// The caller persists the candidate; integration never writes.
func (e *Engine) integrate(ctx context.Context, state map[string]any, ev *models.Event) (map[string]any, error) {
	candidate := cloneState(state)
	integrator := e.registry.IntegratorFor(candidate, ev)
	if integrator == nil {
		return candidate, coreIntegrator{}.Integrate(ctx, candidate, ev)
	}
	if err := integrator.Integrate(ctx, candidate, ev); err != nil {
		e.logger.Warn("domain integrator failed, using core merge",
			"integrator", integrator.Name(), "event_type", ev.EventType, "error", err)
		candidate = cloneState(state)
		return candidate, coreIntegrator{}.Integrate(ctx, candidate, ev)
	}
	return candidate, nil
}

// cloneState deep-copies the mapping layers of a snapshot so candidate
// mutation never leaks into the stored state. Non-map values are shared,
// which is safe because pipeline stages replace rather than mutate them.
func cloneState(state map[string]any) map[string]any {
	out := make(map[string]any, len(state))
	for k, v := range state {
		if nested, ok := v.(map[string]any); ok {
			out[k] = cloneState(nested)
			continue
		}
		if list, ok := v.([]any); ok {
			copied := make([]any, len(list))
			for i, item := range list {
				if nested, ok := item.(map[string]any); ok {
					copied[i] = cloneState(nested)
				} else {
					copied[i] = item
				}
			}
			out[k] = copied
			continue
		}
		out[k] = v
	}
	return out
}
