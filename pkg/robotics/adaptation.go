package robotics

import (
	"context"
	"log/slog"
	"math"

	"github.com/pce-project/pce/pkg/engine"
	"github.com/pce-project/pce/pkg/models"
)

// Adaptation applies bounded shifts to the twin's cost projection when test
// results arrive: a pass raises confidence and trims the cost estimate, a
// failure does the opposite and raises the risk level.
type Adaptation struct {
	logger *slog.Logger
}

func (a *Adaptation) Name() string { return "os_robotics_adaptation" }

func (a *Adaptation) Matches(state map[string]any, ev *models.Event) bool {
	return ev.Domain() == "os.robotics"
}

func (a *Adaptation) Adapt(ctx context.Context, in *engine.AdaptationInput) error {
	ev := in.Event
	if ev.EventType != "test.result.recorded" {
		return nil
	}

	twin := LoadTwin(in.State)
	passed, _ := ev.PayloadBool("passed")

	confidenceShift := -0.08
	costShift := 0.04
	nextRisk := "MEDIUM"
	if passed {
		confidenceShift = 0.05
		costShift = -0.02
		nextRisk = "LOW"
	}

	nextConfidence := math.Max(0.1, math.Min(0.95, twin.CostProjection.Confidence+confidenceShift))
	nextCost := math.Max(0, twin.CostProjection.ProjectedTotalCost*(1+costShift))
	twin.CostProjection.Confidence = round2(nextConfidence)
	twin.CostProjection.ProjectedTotalCost = round2(nextCost)
	twin.RiskLevel = nextRisk
	twin.WriteTo(in.State)

	a.logger.Info("Twin projection adapted",
		"passed", passed,
		"confidence", twin.CostProjection.Confidence,
		"projected_total_cost", twin.CostProjection.ProjectedTotalCost,
		"risk_level", twin.RiskLevel)
	return nil
}
