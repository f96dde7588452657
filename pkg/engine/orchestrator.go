package engine

import (
	"context"
	"time"

	"github.com/pce-project/pce/pkg/models"
)

// coreExecute performs the deterministic default execution: every action
// succeeds except collect_more_data, which reports a weak outcome.
func coreExecute(plan *models.ActionPlan, clock func() time.Time) *models.ExecutionResult {
	success := plan.ActionType != "collect_more_data"
	impact := 0.8
	if !success {
		impact = 0.3
	}
	return &models.ExecutionResult{
		ActionType:     plan.ActionType,
		Success:        success,
		ObservedImpact: impact,
		Notes:          plan.Rationale,
		Metadata: map[string]any{
			"executed_at": clock().UTC().Format(time.RFC3339Nano),
			"priority":    plan.Priority,
		},
	}
}

// execute dispatches the plan to the matching executor, downgrading to the
// core execution when the plugin fails.
func (e *Engine) execute(ctx context.Context, state map[string]any, plan *models.ActionPlan, ev *models.Event) *models.ExecutionResult {
	executor := e.registry.ExecutorFor(state, plan)
	if executor == nil {
		return coreExecute(plan, e.clock)
	}
	result, err := executor.Execute(ctx, state, plan, ev)
	if err != nil || result == nil {
		e.logger.Warn("executor failed, using core execution",
			"executor", executor.Name(), "action_type", plan.ActionType, "error", err)
		return coreExecute(plan, e.clock)
	}
	return result
}
