package rover

import (
	"context"

	"github.com/pce-project/pce/pkg/models"
)

// ValueModel scores robotics events on safety (front clearance), progress
// toward the goal, and step efficiency. Feedback events carry no sensor
// block, so they score safety zero; the shaping lives in the reward term.
type ValueModel struct{}

func (ValueModel) Name() string { return "robotics_value" }

func (ValueModel) Matches(state map[string]any, ev *models.Event) bool {
	return ev.Domain() == "robotics"
}

func (ValueModel) Evaluate(_ context.Context, state map[string]any, ev *models.Event) (float64, []string, error) {
	observation, _ := ev.Payload["observation"].(map[string]any)
	sensors, _ := observation["sensors"].(map[string]any)

	front := intFrom(sensors["front"], 0)
	distance := telemetryDistance(ev, observation)
	stepReward := -0.01
	if v, ok := ev.PayloadFloat("reward"); ok {
		stepReward = v
	}

	safety := 1.0
	if front == 0 {
		safety = 0.0
	}
	progress := clampUnit(1.0 - distance/20.0)
	efficiency := clampUnit(1.0 + minFloat(0.0, stepReward))
	score := 0.5*safety + 0.35*progress + 0.15*efficiency
	return clampUnit(score), nil, nil
}

// telemetryDistance prefers the feedback payload's distance and falls back
// to the Manhattan distance implied by the observation.
func telemetryDistance(ev *models.Event, observation map[string]any) float64 {
	if v, ok := ev.PayloadFloat("distance"); ok {
		return v
	}
	if observation == nil {
		return 0
	}
	dx := intFrom(observation["goal_x"], 0) - intFrom(observation["x"], 0)
	dy := intFrom(observation["goal_y"], 0) - intFrom(observation["y"], 0)
	return float64(abs(dx) + abs(dy))
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
