package chat

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"

	"github.com/wike-chi/live-audio-pipeline/pkg/pipeline"
)

var backoffSchedule = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
}

// Client maintains one websocket connection to a room's chat channel,
// reconnecting with exponential backoff on disconnect, and emits
// normalized Events on Events(). Each connection is dialed, read until it
// drops, and closed inside one runOnce call; Run owns the reconnect loop,
// so no connection is shared or guarded across calls.
type Client struct {
	wsURL   string
	headers http.Header
	logger  pipeline.Logger

	events chan Event
	done   chan struct{}
}

func NewClient(roomID, wsURL string, headers map[string]string, logger pipeline.Logger) *Client {
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}
	if logger == nil {
		logger = &pipeline.NoOpLogger{}
	}
	return &Client{
		wsURL:   wsURL,
		headers: h,
		logger:  logger,
		events:  make(chan Event, 256),
		done:    make(chan struct{}),
	}
}

// Events returns the channel Events are published on. It is closed when
// Run returns.
func (c *Client) Events() <-chan Event { return c.events }

// Run connects and relays normalized events until ctx is cancelled or
// the room signals closed via room_control. It reconnects with backoff
// on any other disconnect.
func (c *Client) Run(ctx context.Context) {
	defer close(c.events)

	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		closed, err := c.runOnce(ctx)
		if closed {
			c.publish(statusEvent("room_closed", 0))
			return
		}
		if ctx.Err() != nil {
			return
		}

		attempt++
		wait := backoffSchedule[len(backoffSchedule)-1]
		if attempt-1 < len(backoffSchedule) {
			wait = backoffSchedule[attempt-1]
		}
		c.logger.Warn("chat: connection lost, reconnecting", "error", err, "attempt", attempt, "wait", wait)
		c.publish(statusEvent("reconnecting", attempt))

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// runOnce dials once and relays frames until the connection drops or the
// room is reported closed. The bool return is true only on a clean
// room-closed signal.
func (c *Client) runOnce(ctx context.Context) (bool, error) {
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return false, fmt.Errorf("chat: invalid ws url: %w", err)
	}

	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{HTTPHeader: c.headers})
	if err != nil {
		return false, fmt.Errorf("chat: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	for {
		_, payload, err := conn.Read(ctx)
		if err != nil {
			return false, err
		}

		event := parseFrame(payload)
		if event.Type == EventRoomControl && isRoomClosed(event.Payload) {
			return true, nil
		}

		c.publish(event)
	}
}

func (c *Client) publish(e Event) {
	select {
	case c.events <- e:
	default:
		// The events channel itself is a deliberately shallow buffer; the
		// real bounded-drop policy lives in the broadcaster downstream, so
		// a full channel here just means the caller has fallen far behind
		// and we drop rather than block the read loop.
	}
}
