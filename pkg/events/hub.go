package events

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// sseBufferSize is the per-subscriber channel capacity. A subscriber that
// falls further behind than this starts losing events; every drop is
// logged so slow consumers are visible.
const sseBufferSize = 200

// Hub fans stream events out to SSE subscribers. Each subscriber owns a
// buffered channel; when the buffer is full the event is dropped for that
// subscriber rather than blocking the pipeline that produced it.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]chan StreamEvent
	logger      *slog.Logger
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]chan StreamEvent),
		logger:      slog.Default().With("component", "sse_hub"),
	}
}

// Subscribe registers a stream subscriber and returns its id and receive
// channel. The caller must call Unsubscribe with the id when the client
// disconnects; Unsubscribe closes the channel.
func (h *Hub) Subscribe() (string, <-chan StreamEvent) {
	id := uuid.New().String()
	ch := make(chan StreamEvent, sseBufferSize)

	h.mu.Lock()
	h.subscribers[id] = ch
	h.mu.Unlock()

	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel. Unknown ids
// are ignored so double-unsubscribe on disconnect races is harmless.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subscribers[id]; ok {
		delete(h.subscribers, id)
		close(ch)
	}
}

// Publish delivers an event to every live subscriber. Sends never block:
// a subscriber whose buffer is full loses this event and keeps receiving
// later ones once it drains.
func (h *Hub) Publish(ev StreamEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
			h.logger.Warn("SSE subscriber buffer full, dropping event",
				"subscriber_id", id, "event", ev.Name)
		}
	}
}

// SubscriberCount returns the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
