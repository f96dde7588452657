package trader

import (
	"math"
	"strings"

	"github.com/google/uuid"
)

// modelPredict is the baseline edge model: a logistic blend of trend
// slope, RSI distance from neutral, and the regime label. Uncertainty
// peaks at 1 for a coin-flip probability and falls to 0 at either
// extreme.
func modelPredict(features map[string]any, regime string) (pWin, uncertainty float64) {
	slopeComp := clamp(featureFloat(features, "ema_slope", 0)*20, -1, 1)
	rsiComp := clamp((featureFloat(features, "rsi", 50)-50)/50, -1, 1)
	bias := 0.0
	switch regime {
	case "bull":
		bias = 1
	case "bear":
		bias = -1
	}
	z := 1.2*slopeComp + 0.6*rsiComp + 0.4*bias
	pWin = 1 / (1 + math.Exp(-z))
	uncertainty = clamp01(1 - 2*math.Abs(pWin-0.5))
	return pWin, uncertainty
}

// suggestedQty sizes a position so the stop distance risks a fixed
// fraction of equity. The stop is the larger of the ATR and half a
// percent of price.
func suggestedQty(equity, atr, price float64) float64 {
	budget := equity * riskPerTrade
	stop := math.Max(atr, price*0.005)
	qty := budget / math.Max(stop, 1e-9)
	return math.Round(qty*1e6) / 1e6
}

// valueDimensions are the scored axes a market snapshot is judged on.
type valueDimensions struct {
	Opportunity float64
	Risk        float64
	Quality     float64
	Flags       []string
}

// computeValueDimensions scores opportunity from model edge and recent
// momentum, risk from volatility, and quality from data integrity.
func computeValueDimensions(features map[string]any, integrityOK bool, pWin float64) valueDimensions {
	ret6 := featureFloat(features, "ret_6", 0)
	opportunity := clamp01(0.7*pWin + 0.3*math.Max(0, ret6+0.5))

	lastClose := featureFloat(features, "last_close", 0)
	volPenalty := math.Min(1, featureFloat(features, "atr", 0)/math.Max(1, lastClose))
	risk := clamp01(0.7*volPenalty + 0.3*math.Min(1, featureFloat(features, "bb_width", 0)))

	quality := 1.0
	var flags []string
	if !integrityOK {
		quality -= 0.7
		flags = append(flags, "integrity_bad")
	}
	if volPenalty > 0.04 {
		quality -= 0.2
		flags = append(flags, "high_volatility")
	}

	return valueDimensions{
		Opportunity: opportunity,
		Risk:        risk,
		Quality:     clamp01(quality),
		Flags:       flags,
	}
}

// modeFromCCIF maps the coherence factor onto an operating mode. A
// locked guardrail state overrides the factor entirely.
func modeFromCCIF(ccif float64, locked bool) string {
	if locked {
		return "locked"
	}
	switch {
	case ccif >= 0.85:
		return "normal"
	case ccif >= 0.70:
		return "cautious"
	case ccif >= 0.55:
		return "restricted"
	default:
		return "locked"
	}
}

func newDecisionSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func clamp01(x float64) float64 {
	return clamp(x, 0, 1)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
