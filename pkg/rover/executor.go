package rover

import (
	"context"

	"github.com/pce-project/pce/pkg/models"
)

// Executor acknowledges robot command plans. The command itself is carried
// back to the simulator in the response's action payload; nothing runs
// server-side, so the observed impact stays neutral until feedback lands.
type Executor struct{}

func (Executor) Name() string { return "robotics_executor" }

func (Executor) Matches(state map[string]any, plan *models.ActionPlan) bool {
	return plan.ActionType == "robotics.action"
}

func (Executor) Execute(_ context.Context, state map[string]any, plan *models.ActionPlan, ev *models.Event) (*models.ExecutionResult, error) {
	var command any
	if plan.Metadata != nil {
		command = plan.Metadata["action_payload"]
	}
	return &models.ExecutionResult{
		ActionType:     plan.ActionType,
		Success:        true,
		ObservedImpact: 0.0,
		Notes:          "robot command emitted",
		Metadata: map[string]any{
			"execution_mode": "emitted",
			"robot_action":   command,
		},
	}, nil
}
