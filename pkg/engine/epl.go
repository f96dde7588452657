package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/pce-project/pce/pkg/models"
)

// ErrInvalidEvent marks every validation failure raised by the EPL.
var ErrInvalidEvent = errors.New("invalid event")

const (
	// CodeInvalidSchema is raised when the envelope itself is malformed or
	// the event_type has no registered schema.
	CodeInvalidSchema = "invalid_schema"
	// CodeInvalidPayload is raised when the payload violates its schema.
	CodeInvalidPayload = "invalid_payload"
)

// ValidationError reports why an event was rejected. Details are sorted so
// the rendered message is deterministic.
type ValidationError struct {
	Code    string
	Details []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, strings.Join(e.Details, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidEvent
}

func newValidationError(code string, details ...string) *ValidationError {
	sort.Strings(details)
	return &ValidationError{Code: code, Details: details}
}

// EPL validates raw envelopes against the per-event_type schema registry and
// stamps normalized events. Unknown event types are rejected outright; the
// validator never guesses a schema.
type EPL struct {
	schemas map[string]*jsonschema.Schema
	clock   func() time.Time
	newID   func() string
}

func NewEPL() (*EPL, error) {
	schemas, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	return &EPL{
		schemas: schemas,
		clock:   time.Now,
		newID:   uuid.NewString,
	}, nil
}

// KnownEventTypes returns the registered event types in sorted order.
func (p *EPL) KnownEventTypes() []string {
	types := make([]string, 0, len(p.schemas))
	for t := range p.schemas {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Normalize validates a raw envelope and returns the stamped event.
// event_id and ts are assigned exactly once: an envelope that already
// carries them (a replay of a normalized event) keeps them unchanged.
func (p *EPL) Normalize(raw map[string]any) (*models.Event, error) {
	var missing []string
	eventType, _ := raw["event_type"].(string)
	if eventType == "" {
		missing = append(missing, "event_type is required")
	}
	source, _ := raw["source"].(string)
	if source == "" {
		missing = append(missing, "source is required")
	}
	payload, ok := raw["payload"].(map[string]any)
	if !ok || payload == nil {
		missing = append(missing, "payload is required")
	}
	if len(missing) > 0 {
		return nil, newValidationError(CodeInvalidSchema, missing...)
	}

	schema, ok := p.schemas[eventType]
	if !ok {
		return nil, newValidationError(CodeInvalidSchema, fmt.Sprintf("unknown event_type: %s", eventType))
	}
	if err := schema.Validate(payload); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return nil, newValidationError(CodeInvalidPayload, leafMessages(ve)...)
		}
		return nil, newValidationError(CodeInvalidPayload, err.Error())
	}

	ev := &models.Event{
		EventType: eventType,
		Source:    source,
		Payload:   make(map[string]any, len(payload)),
	}
	for k, v := range payload {
		ev.Payload[k] = v
	}

	if id, ok := raw["event_id"].(string); ok && id != "" {
		ev.EventID = id
	} else {
		ev.EventID = p.newID()
	}
	ev.Timestamp = p.stampTime(raw["ts"])
	return ev, nil
}

func (p *EPL) stampTime(v any) time.Time {
	switch ts := v.(type) {
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			return parsed
		}
	case float64:
		// Wall-clock milliseconds, the wire form used by older producers.
		return time.UnixMilli(int64(ts)).UTC()
	case time.Time:
		if !ts.IsZero() {
			return ts
		}
	}
	return p.clock().UTC()
}

// leafMessages flattens a validation error tree into one message per failing
// leaf, prefixed by the JSON pointer of the offending payload location.
func leafMessages(err *jsonschema.ValidationError) []string {
	var out []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			out = append(out, fmt.Sprintf("%s: %s", loc, e.Message))
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(err)
	return out
}
