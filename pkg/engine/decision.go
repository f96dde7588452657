package engine

import (
	"context"
	"fmt"

	"github.com/pce-project/pce/pkg/models"
)

// overrideReasonPluginError is recorded when a decision plugin fails and the
// pipeline downgrades to the core default.
const overrideReasonPluginError = "plugin_error"

// coreDecision is the fallback plan when no domain plugin claims the event:
// a priority-1 observe action. Expected impact blends the value score with
// current coherence so the predictive-accuracy component stays meaningful.
func coreDecision(in *DecisionInput) *models.ActionPlan {
	expected := clamp01(0.55*in.ValueScore + 0.45*in.CCI.Score)
	return &models.ActionPlan{
		ActionType: "observe",
		Priority:   1,
		Rationale: fmt.Sprintf("no decision plugin for domain %q; observing (value=%.2f, cci=%.2f)",
			in.Event.Domain(), in.ValueScore, in.CCI.Score),
		Metadata: map[string]any{
			"expected_impact": expected,
			"state_keys":      len(in.State),
			"explain": map[string]any{
				"de": map[string]any{"selected_by": "core_default"},
			},
		},
	}
}

// decide dispatches deliberation to the matching plugin and normalizes the
// resulting plan. A failing plugin downgrades to the core default with
// override_reason=plugin_error; it never fails the pipeline.
func (e *Engine) decide(ctx context.Context, in *DecisionInput) *models.ActionPlan {
	var plan *models.ActionPlan
	plugin := e.registry.DecisionPluginFor(in.State, in.Event)
	if plugin != nil {
		decided, err := plugin.Decide(ctx, in)
		if err != nil {
			e.logger.Warn("decision plugin failed, using core default",
				"plugin", plugin.Name(), "event_type", in.Event.EventType, "error", err)
			plan = coreDecision(in)
			deBag(plan)["override_reason"] = overrideReasonPluginError
		} else {
			plan = decided
		}
	}
	if plan == nil {
		plan = coreDecision(in)
	}

	if plan.ActionType == "" {
		plan.ActionType = "observe"
	}
	if plan.Priority < 1 {
		plan.Priority = 1
	} else if plan.Priority > 5 {
		plan.Priority = 5
	}
	plan.Explain()["cci"] = map[string]any{
		"score":      in.CCI.Score,
		"components": in.CCI.Components,
	}
	return plan
}

// deBag returns the decision-engine section of the plan's explain bag.
func deBag(plan *models.ActionPlan) map[string]any {
	explain := plan.Explain()
	section, ok := explain["de"].(map[string]any)
	if !ok {
		section = make(map[string]any)
		explain["de"] = section
	}
	return section
}
