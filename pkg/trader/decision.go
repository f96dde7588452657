package trader

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pce-project/pce/pkg/config"
	"github.com/pce-project/pce/pkg/engine"
	"github.com/pce-project/pce/pkg/models"
)

// Decision applies the macro, model, and guardrail gates in fixed order
// and emits a trade plan. Every gate outcome lands in the explain bag, so
// a vetoed trade is as auditable as an executed one.
type Decision struct {
	cfg    *config.TraderConfig
	logger *slog.Logger
	clock  func() time.Time
	newID  func() string
}

func (d *Decision) Name() string { return "trader_decision" }

// Matches restricts deliberation to execution-timeframe candles. Macro
// candles shape state through the integrator and fall back to the core
// observe plan.
func (d *Decision) Matches(state map[string]any, ev *models.Event) bool {
	return ev.Domain() == "trader" &&
		ev.EventType == "market_signal" &&
		ev.PayloadString("timeframe") == executionTimeframe
}

func (d *Decision) Decide(ctx context.Context, in *engine.DecisionInput) (*models.ActionPlan, error) {
	ev := in.Event
	symbol := ev.PayloadString("symbol")
	slice, _ := in.State["trader"].(map[string]any)

	features, regime, ok := featuresFor(slice, symbol, executionTimeframe)
	if !ok {
		features = map[string]any{}
		regime = "sideways"
	}
	pWin, uncertainty := modelPredict(features, regime)
	threshold := featureFloat(slice, "dynamic_threshold", d.cfg.PWinThreshold)

	macroRegime := "sideways"
	if _, mr, ok := featuresFor(slice, symbol, macroTimeframe); ok {
		macroRegime = mr
	}
	macroPass := macroRegime != "bear" && macroRegime != "invalid"

	modelPass := pWin >= threshold && uncertainty <= d.cfg.MaxUncertainty

	lockEntries := !featureBool(features, "integrity_ok", true)
	metrics, _ := slice["metrics"].(map[string]any)
	mode := stringOr(metrics, "mode", "cautious")
	limits, _ := slice["limits"].(map[string]any)
	perAsset, _ := limits["trades_by_asset_day"].(map[string]any)
	guardrailsPass := !lockEntries &&
		int(featureFloat(limits, "trades_total_day", 0)) < d.cfg.MaxTradesPerDay &&
		int(featureFloat(perAsset, symbol, 0)) < d.cfg.MaxTradesPerAssetDay &&
		featureFloat(slice, "dd_day", 0) < d.cfg.DailyDrawdownLimit &&
		featureFloat(slice, "dd_month", 0) < d.cfg.MonthlyDrawdownLimit &&
		mode != "locked"

	gates := []any{
		map[string]any{"gate": "macro_4h", "passed": macroPass, "value": macroRegime},
		map[string]any{"gate": "model", "passed": modelPass, "value": map[string]any{
			"p_win":       pWin,
			"uncertainty": uncertainty,
			"threshold":   threshold,
		}},
		map[string]any{"gate": "guardrails", "passed": guardrailsPass},
	}

	allow := macroPass && modelPass && guardrailsPass
	action := "NO_TRADE"
	priority := 3
	qty := 0.0
	if allow {
		action = "BUY"
		priority = 2
		portfolio, _ := slice["portfolio"].(map[string]any)
		equity := featureFloat(portfolio, "equity", startingCash)
		qty = suggestedQty(equity, featureFloat(features, "atr", 0), featureFloat(features, "last_close", 0))
	}

	decisionID := fmt.Sprintf("dec-%s-%s", d.clock().UTC().Format("20060102150405"), d.newID())
	plan := &models.ActionPlan{
		ActionType: "trader.trade",
		Rationale:  gateReason(gates),
		Priority:   priority,
		Metadata: map[string]any{
			"decision_id": decisionID,
			"symbol":      symbol,
			"timeframe":   executionTimeframe,
			"action":      action,
			"qty":         qty,
			"p_win":       pWin,
			"uncertainty": uncertainty,
			"threshold":   threshold,
			"mode":        mode,
			"price":       featureFloat(features, "last_close", 0),
		},
	}
	explain := plan.Explain()
	explain["gates"] = gates
	explain["regime"] = map[string]any{"execution": regime, "macro": macroRegime}
	explain["limits_snapshot"] = map[string]any{
		"trades_total_day":    int(featureFloat(limits, "trades_total_day", 0)),
		"trades_by_asset_day": featureFloat(perAsset, symbol, 0),
		"dd_day":              featureFloat(slice, "dd_day", 0),
		"dd_month":            featureFloat(slice, "dd_month", 0),
	}
	dims := map[string]any{"value_score": in.ValueScore}
	if in.CCI != nil {
		dims["cci"] = in.CCI.Score
	}
	explain["value_dimensions"] = dims

	d.logger.Info("Trade deliberated",
		"decision_id", decisionID,
		"symbol", symbol,
		"action", action,
		"qty", qty,
		"reason", plan.Rationale)
	return plan, nil
}

// gateReason renders the gate outcomes into the fixed-order PASS/FAIL
// summary line used as the plan rationale.
func gateReason(gates []any) string {
	parts := make([]string, 0, len(gates))
	for _, raw := range gates {
		gate, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		verdict := "FAIL"
		if passed, _ := gate["passed"].(bool); passed {
			verdict = "PASS"
		}
		name, _ := gate["gate"].(string)
		parts = append(parts, name+"="+verdict)
	}
	return strings.Join(parts, "; ")
}

func stringOr(m map[string]any, key, fallback string) string {
	if m == nil {
		return fallback
	}
	if s, ok := m[key].(string); ok && s != "" {
		return s
	}
	return fallback
}
