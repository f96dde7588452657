package models

import (
	"encoding/json"
	"time"
)

// CCIComponents holds the four sub-metrics behind an aggregate CCI score.
// Before enough history exists (fewer than 3 scored actions) the components
// are unknown and serialize as the string "unknown" rather than 0.
type CCIComponents struct {
	Consistency        float64
	Stability          float64
	ContradictionRate  float64
	PredictiveAccuracy float64
	Unknown            bool
}

// MarshalJSON emits numeric components, or "unknown" strings during cold start.
func (c CCIComponents) MarshalJSON() ([]byte, error) {
	if c.Unknown {
		return json.Marshal(map[string]string{
			"consistency":         "unknown",
			"stability":           "unknown",
			"contradiction_rate":  "unknown",
			"predictive_accuracy": "unknown",
		})
	}
	return json.Marshal(map[string]float64{
		"consistency":         c.Consistency,
		"stability":           c.Stability,
		"contradiction_rate":  c.ContradictionRate,
		"predictive_accuracy": c.PredictiveAccuracy,
	})
}

// UnmarshalJSON accepts both numeric and "unknown" component encodings.
func (c *CCIComponents) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	read := func(key string) (float64, bool) {
		v, ok := raw[key].(float64)
		return v, ok
	}
	var known bool
	c.Consistency, known = read("consistency")
	if !known {
		c.Unknown = true
		return nil
	}
	c.Stability, _ = read("stability")
	c.ContradictionRate, _ = read("contradiction_rate")
	c.PredictiveAccuracy, _ = read("predictive_accuracy")
	return nil
}

// CCIResult pairs the aggregate score with its components.
type CCIResult struct {
	Score      float64       `json:"cci"`
	Components CCIComponents `json:"components"`
}

// CCISnapshot is one persisted CCI observation.
type CCISnapshot struct {
	Timestamp  time.Time     `json:"ts"`
	Score      float64       `json:"cci"`
	Components CCIComponents `json:"components"`
}
