package trader

import (
	"context"

	"github.com/pce-project/pce/pkg/models"
)

// Integrator folds market_signal candles into the trader state slice:
// per-series ingest bookkeeping, the rolling candle window, the derived
// feature snapshot, and the pre-decision risk state.
type Integrator struct{}

func (Integrator) Name() string { return "trader_integrator" }

func (Integrator) Matches(state map[string]any, ev *models.Event) bool {
	return ev.Domain() == "trader"
}

func (Integrator) Integrate(ctx context.Context, state map[string]any, ev *models.Event) error {
	slice := ensureMap(state, "trader")
	slice["last_event_id"] = ev.EventID
	slice["last_event_type"] = ev.EventType
	if ev.EventType != "market_signal" {
		return nil
	}
	c, ok := candleFromPayload(ev.Payload)
	if !ok {
		return nil
	}

	issues := checkIntegrity(slice, c)
	integrityOK := len(issues) == 0

	windows := ensureMap(slice, "windows")
	window, _ := windows[c.seriesKey()].([]any)
	window = append(window, c.doc())
	if len(window) > windowKeep {
		window = window[len(window)-windowKeep:]
	}
	windows[c.seriesKey()] = window

	features := computeFeatures(window)
	features["integrity_ok"] = integrityOK
	features["integrity_issues"] = issues

	market := ensureMap(slice, "market")
	bySymbol := ensureMap(market, c.Symbol)
	bySymbol[c.Timeframe] = map[string]any{
		"symbol":          c.Symbol,
		"timeframe":       c.Timeframe,
		"timestamp":       c.TimestampRaw,
		"idempotency_key": idempotencyKey(c),
		"features":        features,
		"regime":          regimeOf(integrityOK, features),
	}

	// Risk state follows the execution series only. Macro candles shape
	// the regime gate, not the portfolio.
	if c.Timeframe == executionTimeframe {
		refreshRiskState(slice, c)
	}
	return nil
}

// refreshRiskState marks the portfolio to market, rolls the daily and
// monthly guardrail windows when the candle date crosses a boundary, and
// recomputes the drawdowns the decision gate reads.
func refreshRiskState(slice map[string]any, c candle) {
	portfolio := ensurePortfolio(slice)
	market := ensureMap(slice, "market")

	cash := featureFloat(portfolio, "cash", startingCash)
	positions := ensureMap(portfolio, "positions")
	mtm := 0.0
	basis := 0.0
	for symbol, raw := range positions {
		position, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		qty := featureFloat(position, "qty", 0)
		avgPrice := featureFloat(position, "avg_price", 0)
		mtm += qty * markPrice(market, symbol, avgPrice)
		basis += qty * avgPrice
	}
	equity := cash + mtm
	portfolio["equity"] = equity
	portfolio["unrealized_pnl"] = mtm - basis

	limits := ensureLimits(slice)
	if !c.Timestamp.IsZero() {
		day := c.Timestamp.UTC().Format("2006-01-02")
		if last, _ := limits["last_day"].(string); last != day {
			limits["last_day"] = day
			limits["day_start_equity"] = equity
			limits["trades_total_day"] = 0
			limits["trades_by_asset_day"] = map[string]any{}
		}
		month := c.Timestamp.UTC().Format("2006-01")
		if last, _ := limits["last_month"].(string); last != month {
			limits["last_month"] = month
			limits["month_start_equity"] = equity
		}
	}

	dayStart := featureFloat(limits, "day_start_equity", equity)
	monthStart := featureFloat(limits, "month_start_equity", equity)
	slice["dd_day"] = max(0, (dayStart-equity)/max(dayStart, 1e-9))
	slice["dd_month"] = max(0, (monthStart-equity)/max(monthStart, 1e-9))
}

// markPrice returns the latest execution-timeframe close for the symbol,
// falling back to the position's average price when the series is absent.
func markPrice(market map[string]any, symbol string, fallback float64) float64 {
	bySymbol, ok := market[symbol].(map[string]any)
	if !ok {
		return fallback
	}
	series, ok := bySymbol[executionTimeframe].(map[string]any)
	if !ok {
		return fallback
	}
	features, ok := series["features"].(map[string]any)
	if !ok {
		return fallback
	}
	return featureFloat(features, "last_close", fallback)
}

// ensurePortfolio seeds the simulated portfolio on first touch.
func ensurePortfolio(slice map[string]any) map[string]any {
	portfolio, _ := slice["portfolio"].(map[string]any)
	if portfolio == nil {
		portfolio = map[string]any{
			"cash":           startingCash,
			"equity":         startingCash,
			"positions":      map[string]any{},
			"realized_pnl":   0.0,
			"unrealized_pnl": 0.0,
		}
		slice["portfolio"] = portfolio
	}
	return portfolio
}

// ensureLimits seeds the guardrail counters on first touch.
func ensureLimits(slice map[string]any) map[string]any {
	limits, _ := slice["limits"].(map[string]any)
	if limits == nil {
		limits = map[string]any{
			"trades_total_day":    0,
			"trades_by_asset_day": map[string]any{},
			"day_start_equity":    startingCash,
			"month_start_equity":  startingCash,
			"last_day":            "",
			"last_month":          "",
		}
		slice["limits"] = limits
	}
	return limits
}

// ensureMetrics seeds the trading metrics on first touch.
func ensureMetrics(slice map[string]any) map[string]any {
	metrics, _ := slice["metrics"].(map[string]any)
	if metrics == nil {
		metrics = map[string]any{
			"decisions_total": 0,
			"trades_executed": 0,
			"cci_f":           0.8,
			"p_win_avg":       0.0,
			"mode":            "cautious",
		}
		slice["metrics"] = metrics
	}
	return metrics
}
