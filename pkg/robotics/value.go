package robotics

import (
	"context"

	"github.com/pce-project/pce/pkg/models"
)

var riskPenalties = map[string]float64{
	"LOW":    0.0,
	"MEDIUM": 0.15,
	"HIGH":   0.35,
}

var phaseBonuses = map[string]float64{
	"planning":    0.1,
	"procurement": 0.05,
	"integration": 0.0,
	"testing":     0.05,
}

// ValueModel scores os.robotics events budget-first, adjusted by project
// phase and current risk level.
type ValueModel struct{}

func (ValueModel) Name() string { return "os_robotics_value" }

func (ValueModel) Matches(state map[string]any, ev *models.Event) bool {
	return ev.Domain() == "os.robotics"
}

func (ValueModel) Evaluate(ctx context.Context, state map[string]any, ev *models.Event) (float64, []string, error) {
	twin := LoadTwin(state)

	budgetTotal := twin.BudgetTotal
	if budgetTotal == 0 {
		budgetTotal = 1.0
	}
	budgetScore := clamp01(twin.BudgetRemaining / budgetTotal)

	riskPenalty, ok := riskPenalties[twin.RiskLevel]
	if !ok {
		riskPenalty = 0.1
	}
	phaseBonus := phaseBonuses[twin.Phase]

	return clamp01(0.65*budgetScore + phaseBonus - riskPenalty + 0.25), nil, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
