package trader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pce-project/pce/pkg/models"
)

// marketState hand-builds a trader slice with one integrated series doc.
func marketState(symbol, timeframe, regime string, features map[string]any) map[string]any {
	return map[string]any{
		"trader": map[string]any{
			"market": map[string]any{
				symbol: map[string]any{
					timeframe: map[string]any{
						"features": features,
						"regime":   regime,
					},
				},
			},
		},
	}
}

func TestValueModelMatches(t *testing.T) {
	vm := ValueModel{}
	assert.True(t, vm.Matches(nil, closeEvent("BTCUSDT", "1h", "2025-06-01T00:00:00Z", 100)))
	assert.True(t, vm.Matches(nil, closeEvent("BTCUSDT", "4h", "2025-06-01T00:00:00Z", 100)))
	assert.False(t, vm.Matches(nil, &models.Event{
		EventType: "trader.note",
		Payload:   map[string]any{"domain": "trader"},
	}))
	assert.False(t, vm.Matches(nil, &models.Event{
		EventType: "market_signal",
		Payload:   map[string]any{"domain": "robotics"},
	}))
}

func TestEvaluateWithoutMarketStateIsNeutral(t *testing.T) {
	vm := ValueModel{}
	score, tags, err := vm.Evaluate(context.Background(), map[string]any{}, closeEvent("BTCUSDT", "1h", "2025-06-01T00:00:00Z", 100))
	require.NoError(t, err)
	assert.Equal(t, 0.5, score)
	assert.Nil(t, tags)
}

func TestEvaluateScoresMarketConditions(t *testing.T) {
	ev := closeEvent("BTCUSDT", "1h", "2025-06-01T00:00:00Z", 100)
	for _, tc := range []struct {
		name     string
		regime   string
		features map[string]any
		want     float64
		tags     []string
	}{
		{
			name:     "neutral market",
			regime:   "sideways",
			features: map[string]any{"integrity_ok": true},
			want:     0.75,
		},
		{
			name:     "volatility penalized",
			regime:   "sideways",
			features: map[string]any{"integrity_ok": true, "atr": 5.0, "last_close": 100.0, "bb_width": 0.2},
			want:     0.612,
			tags:     []string{"high_volatility"},
		},
		{
			name:     "integrity failure caps quality",
			regime:   "invalid",
			features: map[string]any{"integrity_ok": false},
			want:     0.4,
			tags:     []string{"integrity_bad"},
		},
		{
			name:     "bull momentum lifts opportunity",
			regime:   "bull",
			features: map[string]any{"integrity_ok": true, "ema_slope": 0.08, "rsi": 75.0},
			want:     0.879462,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			vm := ValueModel{}
			state := marketState("BTCUSDT", "1h", tc.regime, tc.features)
			score, tags, err := vm.Evaluate(context.Background(), state, ev)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, score, 1e-5)
			if len(tc.tags) == 0 {
				assert.Empty(t, tags)
			} else {
				assert.Equal(t, tc.tags, tags)
			}
		})
	}
}

func TestEvaluateScoresTheEventSeriesOnly(t *testing.T) {
	// A macro candle is scored on the 4h series even when the 1h series
	// has a failed integrity snapshot.
	state := marketState("BTCUSDT", "1h", "invalid", map[string]any{"integrity_ok": false})
	bySymbol := state["trader"].(map[string]any)["market"].(map[string]any)["BTCUSDT"].(map[string]any)
	bySymbol["4h"] = map[string]any{
		"features": map[string]any{"integrity_ok": true},
		"regime":   "sideways",
	}

	vm := ValueModel{}
	score, tags, err := vm.Evaluate(context.Background(), state, closeEvent("BTCUSDT", "4h", "2025-06-01T00:00:00Z", 100))
	require.NoError(t, err)
	assert.InDelta(t, 0.75, score, 1e-9)
	assert.Empty(t, tags)
}
