package trader

import "math"

// computeFeatures derives the rolling indicator set from one candle
// window. The window is never empty: the integrator appends before it
// computes.
func computeFeatures(window []any) map[string]any {
	closes := column(window, "close")
	highs := column(window, "high")
	lows := column(window, "low")

	return map[string]any{
		"ret_1":      safeRet(closes, 1),
		"ret_6":      safeRet(closes, 6),
		"atr":        atr(highs, lows, closes, 14),
		"rsi":        rsi(closes, 14),
		"ema_slope":  emaSlope(closes, 12),
		"bb_width":   bbWidth(closes, 20),
		"adx_like":   adxLike(highs, lows, closes, 14),
		"last_close": closes[len(closes)-1],
	}
}

// regimeOf labels the market regime from trend slope and strength. Failed
// integrity invalidates the label outright.
func regimeOf(integrityOK bool, features map[string]any) string {
	if !integrityOK {
		return "invalid"
	}
	slope := featureFloat(features, "ema_slope", 0)
	adx := featureFloat(features, "adx_like", 0)
	switch {
	case slope > 0 && adx >= 15:
		return "bull"
	case slope < 0 && adx >= 15:
		return "bear"
	default:
		return "sideways"
	}
}

// safeRet is the simple return over the lookback, zero while the window
// is still shorter than the lookback.
func safeRet(closes []float64, lookback int) float64 {
	if len(closes) <= lookback {
		return 0
	}
	prev := closes[len(closes)-1-lookback]
	if prev == 0 {
		return 0
	}
	return closes[len(closes)-1]/prev - 1
}

// atr averages the true range over the trailing period.
func atr(highs, lows, closes []float64, period int) float64 {
	if len(closes) < 2 {
		return 0
	}
	start := len(closes) - period
	if start < 1 {
		start = 1
	}
	total := 0.0
	count := 0
	for idx := start; idx < len(closes); idx++ {
		tr := math.Max(highs[idx]-lows[idx],
			math.Max(math.Abs(highs[idx]-closes[idx-1]), math.Abs(lows[idx]-closes[idx-1])))
		total += tr
		count++
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

// rsi is the relative strength index, neutral at 50 until the window
// covers a full period. The loss average is floored so a loss-free run
// saturates instead of dividing by zero.
func rsi(closes []float64, period int) float64 {
	if len(closes) < period+1 {
		return 50
	}
	gains := 0.0
	losses := 0.0
	for idx := len(closes) - period; idx < len(closes); idx++ {
		diff := closes[idx] - closes[idx-1]
		if diff > 0 {
			gains += diff
		} else {
			losses -= diff
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss <= 0 {
		avgLoss = 1e-9
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// emaSlope is the relative change of a period-smoothed EMA over its last
// three steps.
func emaSlope(closes []float64, period int) float64 {
	if len(closes) == 0 {
		return 0
	}
	alpha := 2.0 / (float64(period) + 1.0)
	ema := closes[0]
	history := make([]float64, 0, len(closes))
	for _, value := range closes {
		ema = alpha*value + (1-alpha)*ema
		history = append(history, ema)
	}
	if len(history) < 4 {
		return 0
	}
	base := history[len(history)-4]
	if base == 0 {
		return 0
	}
	return (history[len(history)-1] - base) / base
}

// bbWidth is the Bollinger band width: four population standard
// deviations over the band midpoint.
func bbWidth(closes []float64, period int) float64 {
	if len(closes) < period {
		return 0
	}
	window := closes[len(closes)-period:]
	mid := 0.0
	for _, value := range window {
		mid += value
	}
	mid /= float64(len(window))
	variance := 0.0
	for _, value := range window {
		variance += (value - mid) * (value - mid)
	}
	variance /= float64(len(window))
	if mid == 0 {
		return 0
	}
	return 4 * math.Sqrt(variance) / mid
}

// adxLike is a cheap trend-strength proxy: mean absolute close change
// scaled against the ATR, capped at 100.
func adxLike(highs, lows, closes []float64, period int) float64 {
	if len(closes) < period+1 {
		return 0
	}
	total := 0.0
	for idx := len(closes) - period; idx < len(closes); idx++ {
		total += math.Abs(closes[idx] - closes[idx-1])
	}
	meanChange := total / float64(period)
	trueRange := atr(highs, lows, closes, period)
	if trueRange == 0 {
		return 0
	}
	return math.Min(100, 10*meanChange/trueRange)
}

func column(window []any, key string) []float64 {
	out := make([]float64, 0, len(window))
	for _, row := range window {
		doc, _ := row.(map[string]any)
		out = append(out, featureFloat(doc, key, 0))
	}
	return out
}

func featureFloat(m map[string]any, key string, fallback float64) float64 {
	if m == nil {
		return fallback
	}
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return fallback
}
