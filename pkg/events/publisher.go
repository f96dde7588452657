package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/pce-project/pce/pkg/models"
)

// Publisher is the single write path for transcript items. Each item is
// persisted through the store writer first, then the stored row (cursor
// assigned) is fanned out to live subscribers: the SSE hub and the
// WebSocket connection manager.
//
// Publisher satisfies the engine's transcript sink, so handing it to the
// engine streams every pipeline audit row to observers with no extra
// plumbing. Fan-out is best-effort: a slow or gone subscriber never
// fails the write.
type Publisher struct {
	writer  TranscriptWriter
	hub     *Hub
	manager *ConnectionManager
	logger  *slog.Logger
}

// NewPublisher creates a Publisher. hub and manager may be nil when the
// corresponding surface is not wired.
func NewPublisher(writer TranscriptWriter, hub *Hub, manager *ConnectionManager) *Publisher {
	return &Publisher{
		writer:  writer,
		hub:     hub,
		manager: manager,
		logger:  slog.Default().With("component", "events"),
	}
}

// AppendTranscript persists the item and broadcasts it to subscribers.
// The returned cursor is the one the store assigned; the broadcast
// payload carries it so clients can resume with last_cursor after a
// reconnect. A persistence failure suppresses the broadcast: observers
// only ever see rows that are really in the audit log.
func (p *Publisher) AppendTranscript(ctx context.Context, item *models.TranscriptItem) (int64, error) {
	cursor, err := p.writer.AppendTranscript(ctx, item)
	if err != nil {
		return 0, err
	}
	p.broadcast(item)
	return cursor, nil
}

// PublishFrame broadcasts a rover frame payload to WebSocket subscribers
// of the rover channel. Frames are transient: nothing is persisted and
// missed frames are not replayed. Wired as the rover runtime's frame sink.
func (p *Publisher) PublishFrame(payload map[string]any) {
	if p.manager == nil {
		return
	}
	wire := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		wire[k] = v
	}
	wire["channel"] = ChannelRover

	data, err := json.Marshal(wire)
	if err != nil {
		p.logger.Warn("Failed to marshal rover frame", "error", err)
		return
	}
	p.manager.Broadcast(ChannelRover, data)
}

func (p *Publisher) broadcast(item *models.TranscriptItem) {
	if p.hub != nil {
		data, err := json.Marshal(item)
		if err != nil {
			p.logger.Warn("Failed to marshal transcript item for SSE",
				"cursor", item.Cursor, "error", err)
		} else {
			p.hub.Publish(StreamEvent{Name: EventName(item.Kind), Data: data})
		}
	}

	if p.manager != nil {
		wire, err := wireTranscript(item)
		if err != nil {
			p.logger.Warn("Failed to render transcript item for WebSocket",
				"cursor", item.Cursor, "error", err)
			return
		}
		p.manager.Broadcast(ChannelTranscript, wire)
	}
}

// wireTranscript renders a transcript item for WebSocket delivery: the
// item's own fields flat, plus type and channel so clients can route it
// without inspecting the kind. The same rendering is used for live
// delivery and catch-up replay.
func wireTranscript(item *models.TranscriptItem) ([]byte, error) {
	raw, err := json.Marshal(item)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	m["type"] = EventName(item.Kind)
	m["channel"] = ChannelTranscript
	return json.Marshal(m)
}
