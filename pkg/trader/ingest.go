package trader

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// candle is one normalized OHLCV bar. Timestamp stays zero when the wire
// value does not parse; ordering checks are skipped in that case.
type candle struct {
	Symbol       string
	Timeframe    string
	TimestampRaw string
	Timestamp    time.Time
	Open         float64
	High         float64
	Low          float64
	Close        float64
	Volume       float64
}

func (c candle) seriesKey() string {
	return c.Symbol + "|" + c.Timeframe
}

func (c candle) doc() map[string]any {
	return map[string]any{
		"open":   c.Open,
		"high":   c.High,
		"low":    c.Low,
		"close":  c.Close,
		"volume": c.Volume,
	}
}

var timeframeDelta = map[string]time.Duration{
	"1h": time.Hour,
	"4h": 4 * time.Hour,
}

// candleFromPayload extracts the candle fields the market_signal schema
// guarantees. Returns false when the identifying fields are absent.
func candleFromPayload(payload map[string]any) (candle, bool) {
	symbol, _ := payload["symbol"].(string)
	timeframe, _ := payload["timeframe"].(string)
	tsRaw, _ := payload["timestamp"].(string)
	if symbol == "" || timeframe == "" || tsRaw == "" {
		return candle{}, false
	}
	c := candle{
		Symbol:       symbol,
		Timeframe:    timeframe,
		TimestampRaw: tsRaw,
		Open:         numberFrom(payload["open"]),
		High:         numberFrom(payload["high"]),
		Low:          numberFrom(payload["low"]),
		Close:        numberFrom(payload["close"]),
		Volume:       numberFrom(payload["volume"]),
	}
	if ts, err := time.Parse(time.RFC3339, tsRaw); err == nil {
		c.Timestamp = ts
	}
	return c, true
}

// idempotencyKey hashes the candle identity and prices so a replayed bar
// maps to the same key regardless of delivery path.
func idempotencyKey(c candle) string {
	sum := sha256.Sum256(fmt.Appendf(nil,
		"%s|%s|%s|%.8f|%.8f|%.8f|%.8f|%.8f",
		c.Symbol, c.Timeframe, c.TimestampRaw, c.Open, c.High, c.Low, c.Close, c.Volume))
	return hex.EncodeToString(sum[:])
}

// checkIntegrity classifies the candle against the per-series ingest
// bookkeeping and updates it: out_of_order when the timestamp regresses,
// gap_detected when more than two timeframes passed since the previous
// bar, duplicate when the idempotency key was already seen.
func checkIntegrity(slice map[string]any, c candle) []any {
	ingest := ensureMap(slice, "ingest")
	series := ensureMap(ingest, c.seriesKey())

	issues := []any{}
	if prevRaw, ok := series["last_ts"].(string); ok && !c.Timestamp.IsZero() {
		if prev, err := time.Parse(time.RFC3339, prevRaw); err == nil {
			if c.Timestamp.Before(prev) {
				issues = append(issues, "out_of_order")
			}
			if delta, known := timeframeDelta[c.Timeframe]; known && c.Timestamp.Sub(prev) > 2*delta {
				issues = append(issues, "gap_detected")
			}
		}
	}

	key := idempotencyKey(c)
	seen, _ := series["recent_keys"].([]any)
	duplicate := false
	for _, existing := range seen {
		if existing == key {
			duplicate = true
			break
		}
	}
	if duplicate {
		issues = append(issues, "duplicate")
	} else {
		seen = append(seen, key)
		if len(seen) > ingestKeyKeep {
			seen = seen[len(seen)-ingestKeyKeep:]
		}
	}

	series["recent_keys"] = seen
	series["last_ts"] = c.TimestampRaw
	return issues
}

func numberFrom(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

func ensureMap(parent map[string]any, key string) map[string]any {
	child, _ := parent[key].(map[string]any)
	if child == nil {
		child = map[string]any{}
		parent[key] = child
	}
	return child
}
