package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// WSEvent is one decoded server-to-client message.
type WSEvent struct {
	Type    string
	Channel string
	Parsed  map[string]interface{}
}

// WSClient collects every message the server pushes so tests can assert on
// ordering after the fact. A background goroutine owns the read side and
// wakes waiters through notify; tests are sequential, so one waiter at a
// time is assumed.
type WSClient struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	doneCh chan struct{}
	notify chan struct{}

	mu     sync.Mutex
	events []WSEvent
}

// WSConnect dials the server's WebSocket endpoint and starts collecting.
func WSConnect(ctx context.Context, wsURL string) (*WSClient, error) {
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{})
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", wsURL, err)
	}

	clientCtx, cancel := context.WithCancel(ctx)
	c := &WSClient{
		conn:   conn,
		ctx:    clientCtx,
		cancel: cancel,
		doneCh: make(chan struct{}),
		notify: make(chan struct{}, 1),
	}
	go c.readLoop()
	return c, nil
}

// Subscribe requests live delivery for a channel.
func (c *WSClient) Subscribe(channel string) error {
	return c.send(map[string]interface{}{"action": "subscribe", "channel": channel})
}

// SubscribeFrom subscribes with a last_cursor so the server replays the
// transcript rows missed since that cursor before live delivery.
func (c *WSClient) SubscribeFrom(channel string, lastCursor int64) error {
	return c.send(map[string]interface{}{
		"action":      "subscribe",
		"channel":     channel,
		"last_cursor": lastCursor,
	})
}

func (c *WSClient) send(msg map[string]interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.conn.Write(c.ctx, websocket.MessageText, data)
}

// WaitForEvent blocks until a collected event matches, scanning each event
// exactly once. A closed connection surfaces as a timeout.
func (c *WSClient) WaitForEvent(match func(WSEvent) bool, timeout time.Duration) (*WSEvent, error) {
	deadline := time.After(timeout)
	scanned := 0
	for {
		c.mu.Lock()
		for ; scanned < len(c.events); scanned++ {
			if match(c.events[scanned]) {
				evt := c.events[scanned]
				c.mu.Unlock()
				return &evt, nil
			}
		}
		c.mu.Unlock()

		select {
		case <-deadline:
			return nil, fmt.Errorf("no matching event within %v (collected %d)", timeout, scanned)
		case <-c.notify:
		}
	}
}

// WaitForEventType waits for an event with the given type.
func (c *WSClient) WaitForEventType(eventType string, timeout time.Duration) (*WSEvent, error) {
	return c.WaitForEvent(func(e WSEvent) bool {
		return e.Type == eventType
	}, timeout)
}

// CollectUntil returns the collected events once the condition holds. On
// timeout it returns whatever was collected along with the error.
func (c *WSClient) CollectUntil(done func(events []WSEvent) bool, timeout time.Duration) ([]WSEvent, error) {
	deadline := time.After(timeout)
	for {
		evts := c.Events()
		if done(evts) {
			return evts, nil
		}
		select {
		case <-deadline:
			return evts, fmt.Errorf("condition not met within %v (collected %d events)", timeout, len(evts))
		case <-c.notify:
		}
	}
}

// Events returns a snapshot of everything collected so far.
func (c *WSClient) Events() []WSEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]WSEvent, len(c.events))
	copy(out, c.events)
	return out
}

// Close tears down the connection and waits for the read loop to exit.
func (c *WSClient) Close() error {
	c.cancel()
	_ = c.conn.CloseNow()
	<-c.doneCh
	return nil
}

func (c *WSClient) readLoop() {
	defer close(c.doneCh)
	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			return
		}

		var parsed map[string]interface{}
		if err := json.Unmarshal(data, &parsed); err != nil {
			continue
		}

		c.mu.Lock()
		c.events = append(c.events, WSEvent{
			Type:    stringField(parsed, "type"),
			Channel: stringField(parsed, "channel"),
			Parsed:  parsed,
		})
		c.mu.Unlock()

		select {
		case c.notify <- struct{}{}:
		default:
		}
	}
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}
