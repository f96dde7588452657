package engine

import (
	"context"

	"github.com/pce-project/pce/pkg/models"
)

// StrategicValues are the weights the core value model scores against.
// State may override individual weights through the "strategic_values" key;
// adaptation nudges them over time.
type StrategicValues struct {
	Safety                  float64
	Efficiency              float64
	FinancialResponsibility float64
	LongTermCoherence       float64
}

func DefaultStrategicValues() StrategicValues {
	return StrategicValues{
		Safety:                  1.0,
		Efficiency:              0.8,
		FinancialResponsibility: 0.9,
		LongTermCoherence:       1.0,
	}
}

// strategicValuesFrom resolves the active weights, applying any numeric
// overrides stored under state["strategic_values"].
func strategicValuesFrom(state map[string]any) StrategicValues {
	values := DefaultStrategicValues()
	override, ok := state["strategic_values"].(map[string]any)
	if !ok {
		return values
	}
	if v, ok := asFloat(override["safety"]); ok {
		values.Safety = v
	}
	if v, ok := asFloat(override["efficiency"]); ok {
		values.Efficiency = v
	}
	if v, ok := asFloat(override["financial_responsibility"]); ok {
		values.FinancialResponsibility = v
	}
	if v, ok := asFloat(override["long_term_coherence"]); ok {
		values.LongTermCoherence = v
	}
	return values
}

// coreValueModel scores alignment from event tags against the strategic
// values: consistency of tags, non-destructive defaults, budget positivity.
type coreValueModel struct{}

func (coreValueModel) Name() string { return "core_values" }

func (coreValueModel) Matches(map[string]any, *models.Event) bool { return true }

func (coreValueModel) Evaluate(_ context.Context, state map[string]any, ev *models.Event) (float64, []string, error) {
	values := strategicValuesFrom(state)

	score := 0.0
	if ev.HasTag("safe") {
		score += values.Safety
	} else {
		score += values.Safety * 0.4
	}
	if ev.HasTag("efficient") {
		score += values.Efficiency
	} else {
		score += values.Efficiency * 0.5
	}
	if ev.HasTag("budget-aware") {
		score += values.FinancialResponsibility
	} else {
		score += values.FinancialResponsibility * 0.6
	}
	if ev.HasTag("strategic") {
		score += values.LongTermCoherence
	} else {
		score += 0.5
	}
	score = clamp01(score / 4.0)

	var violations []string
	if slice, ok := state[ev.Domain()].(map[string]any); ok {
		if flagged, _ := slice[integrationClampedKey].(bool); flagged {
			violations = append(violations, "state_integrity")
		}
	}
	return score, violations, nil
}

// evaluateValue runs the matching value model, downgrading to the core model
// when a plugin fails. The coherence floor violation is appended here so the
// recorded action always reflects a sub-floor score.
func (e *Engine) evaluateValue(ctx context.Context, state map[string]any, ev *models.Event) (float64, []string) {
	model := e.registry.ValueModelFor(state, ev)
	if model == nil {
		model = coreValueModel{}
	}
	score, violations, err := model.Evaluate(ctx, state, ev)
	if err != nil {
		e.logger.Warn("value model failed, using core scoring",
			"model", model.Name(), "event_type", ev.EventType, "error", err)
		score, violations, _ = coreValueModel{}.Evaluate(ctx, state, ev)
	}
	score = clamp01(score)
	if score < valueViolationFloor && !contains(violations, "long_term_coherence") {
		violations = append(violations, "long_term_coherence")
	}
	return score, violations
}

// valueViolationFloor is the score under which an action is recorded as
// violating long-term coherence.
const valueViolationFloor = 0.6

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func contains(list []string, want string) bool {
	for _, item := range list {
		if item == want {
			return true
		}
	}
	return false
}
