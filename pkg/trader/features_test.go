package trader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeRet(t *testing.T) {
	assert.Equal(t, 0.0, safeRet([]float64{100}, 1), "window shorter than lookback")
	assert.Equal(t, 0.0, safeRet([]float64{0, 50}, 1), "zero base")
	assert.InDelta(t, 0.1, safeRet([]float64{100, 110}, 1), 1e-12)
	assert.InDelta(t, -0.25, safeRet([]float64{120, 100, 90}, 2), 1e-12)
}

func TestATR(t *testing.T) {
	assert.Equal(t, 0.0, atr([]float64{10}, []float64{8}, []float64{9}, 14), "single candle")

	highs := []float64{10, 12, 13}
	lows := []float64{8, 9, 11}
	closes := []float64{9, 11, 12}
	// True ranges: max(3,3,0)=3 and max(2,2,0)=2.
	assert.InDelta(t, 2.5, atr(highs, lows, closes, 14), 1e-12)
	assert.InDelta(t, 2.0, atr(highs, lows, closes, 1), 1e-12, "period window trims to the last bar")
}

func TestRSI(t *testing.T) {
	assert.Equal(t, 50.0, rsi([]float64{100, 101}, 14), "short window is neutral")

	balanced := []float64{100}
	for i := 0; i < 7; i++ {
		balanced = append(balanced, balanced[len(balanced)-1]+1, balanced[len(balanced)-1])
	}
	require.Len(t, balanced, 15)
	assert.InDelta(t, 50.0, rsi(balanced, 14), 1e-9, "equal gains and losses")

	rising := make([]float64, 0, 15)
	for i := 0; i < 15; i++ {
		rising = append(rising, 100+float64(i))
	}
	assert.InDelta(t, 100.0, rsi(rising, 14), 1e-6, "loss-free run saturates")

	falling := make([]float64, 0, 15)
	for i := 0; i < 15; i++ {
		falling = append(falling, 200-float64(i))
	}
	assert.InDelta(t, 0.0, rsi(falling, 14), 1e-6, "gain-free run bottoms out")
}

func TestEMASlope(t *testing.T) {
	assert.Equal(t, 0.0, emaSlope(nil, 12))
	assert.Equal(t, 0.0, emaSlope([]float64{100, 101, 102}, 12), "needs four smoothed points")
	assert.Equal(t, 0.0, emaSlope([]float64{100, 100, 100, 100, 100}, 12), "flat series")

	// Seeded at 100, the EMA only moves on the final bar:
	// alpha = 2/13, ema = 100 + alpha*13 = 102, slope = 2/100.
	assert.InDelta(t, 0.02, emaSlope([]float64{100, 100, 100, 113}, 12), 1e-9)

	rising := make([]float64, 0, 30)
	for i := 0; i < 30; i++ {
		rising = append(rising, 100+float64(i))
	}
	assert.Greater(t, emaSlope(rising, 12), 0.0)
	falling := make([]float64, 0, 30)
	for i := 0; i < 30; i++ {
		falling = append(falling, 200-float64(i))
	}
	assert.Less(t, emaSlope(falling, 12), 0.0)
}

func TestBBWidth(t *testing.T) {
	assert.Equal(t, 0.0, bbWidth([]float64{100, 101}, 20), "short window")

	flat := make([]float64, 20)
	for i := range flat {
		flat[i] = 100
	}
	assert.Equal(t, 0.0, bbWidth(flat, 20))

	split := make([]float64, 0, 20)
	for i := 0; i < 10; i++ {
		split = append(split, 90)
	}
	for i := 0; i < 10; i++ {
		split = append(split, 110)
	}
	// mid 100, population stdev 10, width 4*10/100.
	assert.InDelta(t, 0.4, bbWidth(split, 20), 1e-9)
}

func TestADXLike(t *testing.T) {
	short := []float64{100, 101}
	assert.Equal(t, 0.0, adxLike([]float64{101, 102}, []float64{99, 100}, short, 14))

	n := 15
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		closes[i] = 100 + float64(i)
		highs[i] = closes[i] + 0.5
		lows[i] = closes[i] - 0.5
	}
	// Every true range is 1.5 and every close change is 1.
	assert.InDelta(t, 10.0/1.5, adxLike(highs, lows, closes, 14), 1e-9)

	flatH := make([]float64, n)
	flatL := make([]float64, n)
	flatC := make([]float64, n)
	for i := 0; i < n; i++ {
		flatH[i], flatL[i], flatC[i] = 100, 100, 100
	}
	assert.Equal(t, 0.0, adxLike(flatH, flatL, flatC, 14), "zero ATR guards the division")
}

func TestRegimeOf(t *testing.T) {
	for _, tc := range []struct {
		name        string
		integrityOK bool
		slope       float64
		adx         float64
		want        string
	}{
		{"integrity failure dominates", false, 0.5, 80, "invalid"},
		{"strong uptrend", true, 0.01, 15, "bull"},
		{"strong downtrend", true, -0.01, 20, "bear"},
		{"trend without strength", true, 0.01, 14.9, "sideways"},
		{"strength without direction", true, 0, 50, "sideways"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			features := map[string]any{"ema_slope": tc.slope, "adx_like": tc.adx}
			assert.Equal(t, tc.want, regimeOf(tc.integrityOK, features))
		})
	}
}

func TestComputeFeatures(t *testing.T) {
	window := []any{
		map[string]any{"open": 100.0, "high": 101.0, "low": 99.0, "close": 100.0, "volume": 10.0},
		map[string]any{"open": 100.0, "high": 102.0, "low": 99.0, "close": 110.0, "volume": 10.0},
	}
	features := computeFeatures(window)

	assert.InDelta(t, 0.1, features["ret_1"].(float64), 1e-12)
	assert.Equal(t, 0.0, features["ret_6"], "window shorter than lookback")
	assert.InDelta(t, 3.0, features["atr"].(float64), 1e-12, "single TR: max(3, 2, 1)")
	assert.Equal(t, 50.0, features["rsi"])
	assert.Equal(t, 0.0, features["ema_slope"])
	assert.Equal(t, 0.0, features["bb_width"])
	assert.Equal(t, 0.0, features["adx_like"])
	assert.Equal(t, 110.0, features["last_close"])
}
