package trader

import (
	"context"
	"time"

	"github.com/pce-project/pce/pkg/models"
)

// Executor is the deterministic broker simulator. It prices the fill with
// slippage and fees but never touches the portfolio; the applier folds
// the fill in after the gate stage.
type Executor struct{}

func (Executor) Name() string { return "trader_executor" }

func (Executor) Matches(state map[string]any, plan *models.ActionPlan) bool {
	return plan.ActionType == "trader.trade"
}

func (Executor) Execute(ctx context.Context, state map[string]any, plan *models.ActionPlan, ev *models.Event) (*models.ExecutionResult, error) {
	action := stringOr(plan.Metadata, "action", "NO_TRADE")
	qty := featureFloat(plan.Metadata, "qty", 0)
	symbol := stringOr(plan.Metadata, "symbol", "")
	decisionID := stringOr(plan.Metadata, "decision_id", "")

	if action != "BUY" || qty <= 0 {
		return &models.ExecutionResult{
			ActionType:     "trader.trade",
			Success:        true,
			ObservedImpact: 0.2,
			Notes:          "execution skipped",
			Metadata: map[string]any{
				"status":      "skipped",
				"decision_id": decisionID,
				"symbol":      symbol,
				"reason":      plan.Rationale,
			},
		}, nil
	}

	mark := featureFloat(plan.Metadata, "price", 0)
	execPrice := mark * (1 + slippageBps/10_000)
	gross := execPrice * qty
	fee := gross * feeBps / 10_000

	return &models.ExecutionResult{
		ActionType:     "trader.trade",
		Success:        true,
		ObservedImpact: 0.6,
		Notes:          "execution fill",
		Metadata: map[string]any{
			"status":      "fill",
			"decision_id": decisionID,
			"symbol":      symbol,
			"side":        action,
			"qty":         qty,
			"price":       execPrice,
			"fee":         fee,
			"total_cost":  gross + fee,
			"timestamp":   ev.Timestamp.UTC().Format(time.RFC3339Nano),
		},
	}, nil
}
