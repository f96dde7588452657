// Package events delivers the decision transcript to live observers.
//
// Every transcript item written through the Publisher is persisted first,
// then fanned out to two subscriber surfaces: the SSE hub behind
// GET /v1/stream/os and the WebSocket connection manager behind GET /ws.
// Fan-out is best-effort and at-least-once per live subscriber; the store
// cursor is strictly ordered, so clients dedupe and resume on it.
//
// WebSocket clients subscribe to named channels:
//
//	transcript  every transcript item the pipeline appends
//	rover       live rover frame payloads (transient, no replay)
//
// A subscribe request may carry last_cursor. Transcript rows appended
// after that cursor are then replayed from the store before live-only
// delivery takes over; when more than catchupLimit rows were missed, a
// catchup.overflow notice tells the client to reload via REST instead
// of paginating.
package events

import (
	"context"

	"github.com/pce-project/pce/pkg/models"
)

// Channel names clients can subscribe to over WebSocket.
const (
	// ChannelTranscript carries every transcript item, replayable by cursor.
	ChannelTranscript = "transcript"
	// ChannelRover carries rover world frames. Missed frames are not replayed.
	ChannelRover = "rover"
)

// TranscriptWriter persists transcript items and returns the cursor the
// database assigned. Implemented by store.Manager.
type TranscriptWriter interface {
	AppendTranscript(ctx context.Context, item *models.TranscriptItem) (int64, error)
}

// TranscriptSource reads back persisted transcript items for catch-up
// replay. Implemented by store.Manager.
type TranscriptSource interface {
	TranscriptSince(ctx context.Context, since int64, limit int) ([]*models.TranscriptItem, error)
}

// StreamEvent is one server-sent event: the event name on the wire plus
// its JSON-encoded data line.
type StreamEvent struct {
	Name string
	Data []byte
}

// EventName returns the stream event name for a transcript kind.
// Transcript items are announced as "os.<kind>" on both surfaces.
func EventName(kind models.TranscriptKind) string {
	return "os." + string(kind)
}

// ClientMessage is the JSON structure for client to server WebSocket messages.
type ClientMessage struct {
	Action     string `json:"action"`                // "subscribe", "unsubscribe", "ping"
	Channel    string `json:"channel,omitempty"`     // "transcript" or "rover"
	LastCursor *int64 `json:"last_cursor,omitempty"` // replay transcript rows after this cursor
}

// validChannel reports whether clients may subscribe to the channel.
func validChannel(channel string) bool {
	return channel == ChannelTranscript || channel == ChannelRover
}
