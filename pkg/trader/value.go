package trader

import (
	"context"

	"github.com/pce-project/pce/pkg/models"
)

// ValueModel scores market candles on opportunity, risk, and quality.
// Failed integrity and volatility spikes surface as violated value tags
// so completed actions record them.
type ValueModel struct{}

func (ValueModel) Name() string { return "trader_value" }

func (ValueModel) Matches(state map[string]any, ev *models.Event) bool {
	return ev.Domain() == "trader" && ev.EventType == "market_signal"
}

func (ValueModel) Evaluate(ctx context.Context, state map[string]any, ev *models.Event) (float64, []string, error) {
	slice, _ := state["trader"].(map[string]any)
	features, regime, ok := featuresFor(slice, ev.PayloadString("symbol"), ev.PayloadString("timeframe"))
	if !ok {
		return 0.5, nil, nil
	}
	pWin, _ := modelPredict(features, regime)
	dims := computeValueDimensions(features, featureBool(features, "integrity_ok", true), pWin)
	score := clamp01(0.5*dims.Opportunity + 0.5*(1-dims.Risk)*dims.Quality)
	return score, dims.Flags, nil
}

// featuresFor reads the integrated snapshot for one symbol/timeframe
// series out of the trader state slice.
func featuresFor(slice map[string]any, symbol, timeframe string) (map[string]any, string, bool) {
	if slice == nil {
		return nil, "", false
	}
	market, _ := slice["market"].(map[string]any)
	bySymbol, _ := market[symbol].(map[string]any)
	doc, _ := bySymbol[timeframe].(map[string]any)
	features, _ := doc["features"].(map[string]any)
	if features == nil {
		return nil, "", false
	}
	regime, _ := doc["regime"].(string)
	if regime == "" {
		regime = "sideways"
	}
	return features, regime, true
}

func featureBool(m map[string]any, key string, fallback bool) bool {
	if m == nil {
		return fallback
	}
	if b, ok := m[key].(bool); ok {
		return b
	}
	return fallback
}
