package models

import "time"

// Event is a normalized PCE event after EPL validation.
// EventID and Timestamp are stamped exactly once during normalization.
type Event struct {
	EventID   string         `json:"event_id"`
	EventType string         `json:"event_type"`
	Source    string         `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}

// Domain returns payload.domain ("" when absent).
func (e *Event) Domain() string {
	return e.PayloadString("domain")
}

// CorrelationID returns payload.correlation_id, falling back to the event ID.
func (e *Event) CorrelationID() string {
	if cid := e.PayloadString("correlation_id"); cid != "" {
		return cid
	}
	return e.EventID
}

// Tags returns payload.tags as a string slice, tolerating mixed-type input.
func (e *Event) Tags() []string {
	raw, ok := e.Payload["tags"].([]any)
	if !ok {
		return nil
	}
	tags := make([]string, 0, len(raw))
	for _, t := range raw {
		if s, ok := t.(string); ok {
			tags = append(tags, s)
		}
	}
	return tags
}

// HasTag reports whether the event carries the given tag.
func (e *Event) HasTag(tag string) bool {
	for _, t := range e.Tags() {
		if t == tag {
			return true
		}
	}
	return false
}

// PayloadString returns a string payload field, "" when absent or not a string.
func (e *Event) PayloadString(key string) string {
	if e.Payload == nil {
		return ""
	}
	s, _ := e.Payload[key].(string)
	return s
}

// PayloadFloat returns a numeric payload field. JSON numbers decode as
// float64 but ints placed by Go code are tolerated too.
func (e *Event) PayloadFloat(key string) (float64, bool) {
	if e.Payload == nil {
		return 0, false
	}
	switch v := e.Payload[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// PayloadBool returns a boolean payload field.
func (e *Event) PayloadBool(key string) (bool, bool) {
	if e.Payload == nil {
		return false, false
	}
	b, ok := e.Payload[key].(bool)
	return b, ok
}
