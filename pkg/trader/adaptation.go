package trader

import (
	"context"
	"log/slog"

	"github.com/pce-project/pce/pkg/engine"
	"github.com/pce-project/pce/pkg/models"
)

// Adaptation maintains the trading metrics after each execution-timeframe
// decision: decision counters, the p_win exponential average, and the
// coherence factor that drives the operating mode.
type Adaptation struct {
	logger *slog.Logger
}

func (a *Adaptation) Name() string { return "trader_adaptation" }

func (a *Adaptation) Matches(state map[string]any, ev *models.Event) bool {
	return ev.Domain() == "trader" &&
		ev.EventType == "market_signal" &&
		ev.PayloadString("timeframe") == executionTimeframe
}

func (a *Adaptation) Adapt(ctx context.Context, in *engine.AdaptationInput) error {
	slice := ensureMap(in.State, "trader")
	metrics := ensureMetrics(slice)

	pWin := 0.5
	if in.Plan != nil {
		pWin = featureFloat(in.Plan.Metadata, "p_win", 0.5)
	}
	metrics["decisions_total"] = int(featureFloat(metrics, "decisions_total", 0)) + 1
	metrics["p_win_avg"] = featureFloat(metrics, "p_win_avg", 0)*0.9 + pWin*0.1

	filled := in.Result != nil && stringOr(in.Result.Metadata, "status", "") == "fill"
	if filled {
		metrics["trades_executed"] = int(featureFloat(metrics, "trades_executed", 0)) + 1
	}

	symbol := in.Event.PayloadString("symbol")
	features, _, ok := featuresFor(slice, symbol, executionTimeframe)
	if !ok {
		return nil
	}
	integrityOK := featureBool(features, "integrity_ok", true)
	dims := computeValueDimensions(features, integrityOK, pWin)

	current := featureFloat(metrics, "cci_f", 0.8)
	next := clamp01(0.6*current + 0.2*dims.Opportunity + 0.2*(1-dims.Risk)*dims.Quality)
	mode := modeFromCCIF(next, !integrityOK)
	metrics["cci_f"] = next
	metrics["mode"] = mode

	a.logger.Debug("Trader metrics adapted",
		"symbol", symbol,
		"filled", filled,
		"cci_f", next,
		"mode", mode,
		"decisions_total", metrics["decisions_total"])
	return nil
}
