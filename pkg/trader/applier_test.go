package trader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pce-project/pce/pkg/models"
)

func fillResult(symbol string, qty, price, total float64) *models.ExecutionResult {
	return &models.ExecutionResult{
		ActionType:     "trader.trade",
		Success:        true,
		ObservedImpact: 0.6,
		Notes:          "execution fill",
		Metadata: map[string]any{
			"status":     "fill",
			"symbol":     symbol,
			"qty":        qty,
			"price":      price,
			"total_cost": total,
		},
	}
}

func TestApplierMatchesDomain(t *testing.T) {
	ap := Applier{}
	assert.True(t, ap.Matches(nil, closeEvent("BTCUSDT", "1h", "2025-06-01T12:00:00Z", 100)))
	assert.False(t, ap.Matches(nil, &models.Event{
		EventType: "market_signal",
		Payload:   map[string]any{"domain": "robotics"},
	}))
}

func TestApplyIgnoresSkippedExecutions(t *testing.T) {
	ap := Applier{}
	state := map[string]any{}
	ev := closeEvent("BTCUSDT", "1h", "2025-06-01T12:00:00Z", 50_000)

	require.NoError(t, ap.Apply(context.Background(), state, ev, &models.ExecutionResult{
		ActionType: "trader.trade",
		Success:    true,
		Metadata:   map[string]any{"status": "skipped", "symbol": "BTCUSDT"},
	}))
	assert.NotContains(t, state, "trader")

	require.NoError(t, ap.Apply(context.Background(), state, ev, nil))
	assert.NotContains(t, state, "trader")
}

func TestApplyFillSeedsPortfolio(t *testing.T) {
	ap := Applier{}
	state := map[string]any{}
	ev := closeEvent("BTCUSDT", "1h", "2025-06-01T12:00:00Z", 50_000)

	require.NoError(t, ap.Apply(context.Background(), state, ev, fillResult("BTCUSDT", 0.5, 50_020.0, 25_030.008)))

	portfolio := traderSlice(t, state)["portfolio"].(map[string]any)
	assert.InDelta(t, 74_969.992, portfolio["cash"].(float64), 1e-9)

	position := portfolio["positions"].(map[string]any)["BTCUSDT"].(map[string]any)
	assert.Equal(t, 0.5, position["qty"])
	assert.Equal(t, 50_020.0, position["avg_price"])

	limits := traderSlice(t, state)["limits"].(map[string]any)
	assert.Equal(t, 1, limits["trades_total_day"])
	assert.Equal(t, 1, limits["trades_by_asset_day"].(map[string]any)["BTCUSDT"])
	assert.Equal(t, "2025-06-01", limits["last_day"])

	// No market snapshot yet, so the fill marks at its own entry price.
	assert.InDelta(t, 74_969.992+0.5*50_020.0, portfolio["equity"].(float64), 1e-9)
	assert.Equal(t, 0.0, traderSlice(t, state)["dd_day"])
}

func TestApplyFillAveragesEntryPrice(t *testing.T) {
	ap := Applier{}
	state := map[string]any{
		"trader": map[string]any{
			"portfolio": map[string]any{
				"cash": 100_000.0,
				"positions": map[string]any{
					"BTCUSDT": map[string]any{"qty": 1.0, "avg_price": 40_000.0},
				},
			},
		},
	}
	ev := closeEvent("BTCUSDT", "1h", "2025-06-01T12:00:00Z", 50_000)

	require.NoError(t, ap.Apply(context.Background(), state, ev, fillResult("BTCUSDT", 1.0, 50_020.0, 50_060.032)))

	portfolio := traderSlice(t, state)["portfolio"].(map[string]any)
	assert.InDelta(t, 49_939.968, portfolio["cash"].(float64), 1e-9)

	position := portfolio["positions"].(map[string]any)["BTCUSDT"].(map[string]any)
	assert.Equal(t, 2.0, position["qty"])
	assert.InDelta(t, 45_010.0, position["avg_price"].(float64), 1e-9)
}

func TestApplyCountsFillsPerDayAndAsset(t *testing.T) {
	ap := Applier{}
	state := map[string]any{}
	ev := closeEvent("BTCUSDT", "1h", "2025-06-01T12:00:00Z", 50_000)

	require.NoError(t, ap.Apply(context.Background(), state, ev, fillResult("BTCUSDT", 0.1, 50_020.0, 5_006.0032)))
	require.NoError(t, ap.Apply(context.Background(), state, ev, fillResult("BTCUSDT", 0.1, 50_020.0, 5_006.0032)))
	require.NoError(t, ap.Apply(context.Background(), state, ev, fillResult("ETHUSDT", 1.0, 3_001.2, 3_003.6)))

	limits := traderSlice(t, state)["limits"].(map[string]any)
	assert.Equal(t, 3, limits["trades_total_day"])
	byAsset := limits["trades_by_asset_day"].(map[string]any)
	assert.Equal(t, 2, byAsset["BTCUSDT"])
	assert.Equal(t, 1, byAsset["ETHUSDT"])
}

func TestApplyIgnoresFillWithoutSymbol(t *testing.T) {
	ap := Applier{}
	state := map[string]any{}
	ev := closeEvent("BTCUSDT", "1h", "2025-06-01T12:00:00Z", 50_000)

	require.NoError(t, ap.Apply(context.Background(), state, ev, &models.ExecutionResult{
		ActionType: "trader.trade",
		Metadata:   map[string]any{"status": "fill"},
	}))
	assert.NotContains(t, state, "trader")
}
