package api

import (
	"fmt"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
)

// sseKeepaliveInterval is how long the stream may stay silent before a
// comment line is written to hold the connection open through proxies.
const sseKeepaliveInterval = 15 * time.Second

// ────────────────────────────────────────────────────────────
// GET /v1/stream/os
// Server-sent events mirror of the transcript: every appended item is
// pushed as one SSE message named after its kind (os.event_ingested,
// os.approval_created, ...).
// ────────────────────────────────────────────────────────────

func (s *Server) streamOSHandler(c *echo.Context) error {
	if s.hub == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "event stream not available")
	}

	id, feed := s.hub.Subscribe()
	defer s.hub.Unsubscribe(id)

	w := c.Response()
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		return nil
	}

	ctx := c.Request().Context()
	keepalive := time.NewTimer(sseKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-feed:
			if !ok {
				return nil
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, ev.Data); err != nil {
				return nil
			}
			if err := rc.Flush(); err != nil {
				return nil
			}
			// The silence window restarts after every delivered event.
			if !keepalive.Stop() {
				select {
				case <-keepalive.C:
				default:
				}
			}
			keepalive.Reset(sseKeepaliveInterval)
		case <-keepalive.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return nil
			}
			if err := rc.Flush(); err != nil {
				return nil
			}
			keepalive.Reset(sseKeepaliveInterval)
		}
	}
}
