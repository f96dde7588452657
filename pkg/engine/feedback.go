package engine

import (
	"context"
)

// coreAdapt folds an execution outcome into the shared model slice and
// reweights strategic values. Violated values get a contradiction penalty,
// the rest drift with the outcome; weights stay inside [0.2, 1.5].
func coreAdapt(in *AdaptationInput) {
	model, ok := in.State["model"].(map[string]any)
	if !ok {
		model = make(map[string]any)
	}
	learningRate := 0.1
	if v, ok := asFloat(model["learning_rate"]); ok {
		learningRate = v
	}

	outcome := in.Result.ObservedImpact
	if !in.Result.Success {
		outcome = -outcome
	}
	bias, _ := asFloat(model["coherence_bias"])
	model["coherence_bias"] = bias + learningRate*outcome
	model["last_action"] = in.Result.ActionType

	values := strategicValuesFrom(in.State)
	weights := map[string]float64{
		"safety":                   values.Safety,
		"efficiency":               values.Efficiency,
		"financial_responsibility": values.FinancialResponsibility,
		"long_term_coherence":      values.LongTermCoherence,
	}
	contradictionPenalty := 0.0
	if len(in.Violations) > 0 {
		contradictionPenalty = 0.05
	}
	feedbackBoost := 0.03 * clampRange(outcome, -1.0, 1.0)

	adjusted := make(map[string]any, len(weights))
	for key, weight := range weights {
		if contains(in.Violations, key) {
			weight += contradictionPenalty
		} else {
			weight += feedbackBoost
		}
		adjusted[key] = clampRange(weight, 0.2, 1.5)
	}

	in.State["model"] = model
	in.State["strategic_values"] = adjusted
}

// adapt dispatches feedback folding to the matching plugin, falling back to
// the core adaptation. Plugin failures degrade, never abort.
func (e *Engine) adapt(ctx context.Context, in *AdaptationInput) {
	plugin := e.registry.AdaptationPluginFor(in.State, in.Event)
	if plugin == nil {
		coreAdapt(in)
		return
	}
	if err := plugin.Adapt(ctx, in); err != nil {
		e.logger.Warn("adaptation plugin failed, using core adaptation",
			"plugin", plugin.Name(), "event_type", in.Event.EventType, "error", err)
		coreAdapt(in)
	}
}
