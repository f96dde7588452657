package trader

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCandle(timeframe, ts string, close float64) candle {
	c := candle{
		Symbol:       "BTCUSDT",
		Timeframe:    timeframe,
		TimestampRaw: ts,
		Open:         close - 10,
		High:         close + 20,
		Low:          close - 30,
		Close:        close,
		Volume:       1000,
	}
	if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
		c.Timestamp = parsed
	}
	return c
}

func TestCandleFromPayload(t *testing.T) {
	c, ok := candleFromPayload(map[string]any{
		"symbol":    "BTCUSDT",
		"timeframe": "1h",
		"timestamp": "2025-06-01T00:00:00Z",
		"open":      100.0,
		"high":      101.5,
		"low":       99.0,
		"close":     100.5,
		"volume":    12, // int survives in-process delivery
	})
	require.True(t, ok)
	assert.Equal(t, "BTCUSDT", c.Symbol)
	assert.Equal(t, "1h", c.Timeframe)
	assert.Equal(t, "2025-06-01T00:00:00Z", c.TimestampRaw)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), c.Timestamp.UTC())
	assert.Equal(t, 101.5, c.High)
	assert.Equal(t, 12.0, c.Volume)
	assert.Equal(t, "BTCUSDT|1h", c.seriesKey())
}

func TestCandleFromPayloadRejectsMissingIdentity(t *testing.T) {
	for name, payload := range map[string]map[string]any{
		"no symbol":    {"timeframe": "1h", "timestamp": "2025-06-01T00:00:00Z"},
		"no timeframe": {"symbol": "BTCUSDT", "timestamp": "2025-06-01T00:00:00Z"},
		"no timestamp": {"symbol": "BTCUSDT", "timeframe": "1h"},
	} {
		t.Run(name, func(t *testing.T) {
			_, ok := candleFromPayload(payload)
			assert.False(t, ok)
		})
	}
}

func TestCandleFromPayloadToleratesUnparseableTimestamp(t *testing.T) {
	c, ok := candleFromPayload(map[string]any{
		"symbol": "BTCUSDT", "timeframe": "1h", "timestamp": "bar-42", "close": 10.0,
	})
	require.True(t, ok)
	assert.True(t, c.Timestamp.IsZero())
	assert.Equal(t, "bar-42", c.TimestampRaw)
}

func TestIdempotencyKeyIsStableOverPrices(t *testing.T) {
	base := testCandle("1h", "2025-06-01T00:00:00Z", 100)
	assert.Equal(t, idempotencyKey(base), idempotencyKey(base))
	assert.Len(t, idempotencyKey(base), 64)

	moved := base
	moved.Volume += 0.000001
	assert.NotEqual(t, idempotencyKey(base), idempotencyKey(moved))

	later := base
	later.TimestampRaw = "2025-06-01T01:00:00Z"
	assert.NotEqual(t, idempotencyKey(base), idempotencyKey(later))
}

func TestCheckIntegrityFirstCandleIsClean(t *testing.T) {
	slice := map[string]any{}
	issues := checkIntegrity(slice, testCandle("1h", "2025-06-01T00:00:00Z", 100))
	assert.Empty(t, issues)

	series := slice["ingest"].(map[string]any)["BTCUSDT|1h"].(map[string]any)
	assert.Equal(t, "2025-06-01T00:00:00Z", series["last_ts"])
	assert.Len(t, series["recent_keys"].([]any), 1)
}

func TestCheckIntegrityFlagsDuplicate(t *testing.T) {
	slice := map[string]any{}
	c := testCandle("1h", "2025-06-01T00:00:00Z", 100)
	require.Empty(t, checkIntegrity(slice, c))
	assert.Equal(t, []any{"duplicate"}, checkIntegrity(slice, c))

	// A replay does not grow the seen-key ring.
	series := slice["ingest"].(map[string]any)["BTCUSDT|1h"].(map[string]any)
	assert.Len(t, series["recent_keys"].([]any), 1)
}

func TestCheckIntegrityFlagsGaps(t *testing.T) {
	slice := map[string]any{}
	require.Empty(t, checkIntegrity(slice, testCandle("1h", "2025-06-01T00:00:00Z", 100)))

	// One missing bar is tolerated; the threshold is strictly more than
	// two timeframes.
	assert.Empty(t, checkIntegrity(slice, testCandle("1h", "2025-06-01T02:00:00Z", 101)))
	assert.Equal(t, []any{"gap_detected"}, checkIntegrity(slice, testCandle("1h", "2025-06-01T05:00:00Z", 102)))
}

func TestCheckIntegrityGapUsesTimeframeDelta(t *testing.T) {
	slice := map[string]any{}
	require.Empty(t, checkIntegrity(slice, testCandle("4h", "2025-06-01T00:00:00Z", 100)))

	// Eight hours is exactly two 4h bars, so still clean.
	assert.Empty(t, checkIntegrity(slice, testCandle("4h", "2025-06-01T08:00:00Z", 101)))
	assert.Equal(t, []any{"gap_detected"}, checkIntegrity(slice, testCandle("4h", "2025-06-02T00:00:00Z", 102)))
}

func TestCheckIntegrityUnknownTimeframeSkipsGapCheck(t *testing.T) {
	slice := map[string]any{}
	require.Empty(t, checkIntegrity(slice, testCandle("15m", "2025-06-01T00:00:00Z", 100)))
	assert.Empty(t, checkIntegrity(slice, testCandle("15m", "2025-06-03T00:00:00Z", 101)))
}

func TestCheckIntegrityFlagsOutOfOrderReplay(t *testing.T) {
	slice := map[string]any{}
	first := testCandle("1h", "2025-06-01T00:00:00Z", 100)
	require.Empty(t, checkIntegrity(slice, first))
	require.Empty(t, checkIntegrity(slice, testCandle("1h", "2025-06-01T01:00:00Z", 101)))

	// Replaying the first bar regresses the clock and hits the seen ring.
	assert.Equal(t, []any{"out_of_order", "duplicate"}, checkIntegrity(slice, first))

	// The regressed timestamp still becomes the reference point.
	series := slice["ingest"].(map[string]any)["BTCUSDT|1h"].(map[string]any)
	assert.Equal(t, "2025-06-01T00:00:00Z", series["last_ts"])
}

func TestCheckIntegritySkipsOrderingForUnparseableTimestamps(t *testing.T) {
	slice := map[string]any{}
	require.Empty(t, checkIntegrity(slice, testCandle("1h", "2025-06-01T04:00:00Z", 100)))

	odd := testCandle("1h", "not-a-timestamp", 100)
	assert.Empty(t, checkIntegrity(slice, odd))
}

func TestCheckIntegrityRingEvictsOldestKeys(t *testing.T) {
	slice := map[string]any{}
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < ingestKeyKeep+4; i++ {
		ts := base.Add(time.Duration(i) * time.Hour).Format(time.RFC3339)
		require.Empty(t, checkIntegrity(slice, testCandle("1h", ts, 100+float64(i))), fmt.Sprintf("candle %d", i))
	}

	series := slice["ingest"].(map[string]any)["BTCUSDT|1h"].(map[string]any)
	assert.Len(t, series["recent_keys"].([]any), ingestKeyKeep)

	// The very first candle's key fell out of the ring, so a replay is
	// only out of order, not a duplicate.
	assert.Equal(t, []any{"out_of_order"}, checkIntegrity(slice, testCandle("1h", base.Format(time.RFC3339), 100)))
}
