package trader

import (
	"context"

	"github.com/pce-project/pce/pkg/models"
)

// Applier folds broker fills into the durable portfolio: cash, weighted
// average entry price, guardrail counters, and the refreshed equity and
// drawdown snapshot.
type Applier struct{}

func (Applier) Name() string { return "trader_applier" }

func (Applier) Matches(state map[string]any, ev *models.Event) bool {
	return ev.Domain() == "trader"
}

func (Applier) Apply(ctx context.Context, state map[string]any, ev *models.Event, result *models.ExecutionResult) error {
	if result == nil || stringOr(result.Metadata, "status", "") != "fill" {
		return nil
	}
	symbol := stringOr(result.Metadata, "symbol", "")
	if symbol == "" {
		return nil
	}
	slice := ensureMap(state, "trader")
	portfolio := ensurePortfolio(slice)

	qty := featureFloat(result.Metadata, "qty", 0)
	price := featureFloat(result.Metadata, "price", 0)
	total := featureFloat(result.Metadata, "total_cost", 0)

	portfolio["cash"] = featureFloat(portfolio, "cash", startingCash) - total

	positions := ensureMap(portfolio, "positions")
	position := ensureMap(positions, symbol)
	prevQty := featureFloat(position, "qty", 0)
	newQty := prevQty + qty
	if newQty == 0 {
		position["avg_price"] = 0.0
	} else {
		position["avg_price"] = (featureFloat(position, "avg_price", 0)*prevQty + price*qty) / newQty
	}
	position["qty"] = newQty

	limits := ensureLimits(slice)
	limits["trades_total_day"] = int(featureFloat(limits, "trades_total_day", 0)) + 1
	byAsset := ensureMap(limits, "trades_by_asset_day")
	byAsset[symbol] = int(featureFloat(byAsset, symbol, 0)) + 1

	// Re-mark so the saved snapshot already reflects the fill.
	if c, ok := candleFromPayload(ev.Payload); ok && c.Timeframe == executionTimeframe {
		refreshRiskState(slice, c)
	}
	return nil
}
