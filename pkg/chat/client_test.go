package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func TestClientRunRelaysEventsUntilRoomClosed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		conn.Write(r.Context(), websocket.MessageText, []byte(`{"method":"WebcastChatMessage","payload":{"user":"alice","content":"hi"}}`))
		conn.Write(r.Context(), websocket.MessageText, []byte(`{"method":"WebcastControlMessage","payload":{"status":"3"}}`))
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	c := NewClient("R1", wsURL, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	var events []Event
	go func() {
		for e := range c.Events() {
			events = append(events, e)
		}
		close(done)
	}()

	c.Run(ctx)
	<-done

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(events), events)
	}
	if events[0].Type != EventChat {
		t.Errorf("expected chat event, got %s", events[0].Type)
	}
	if events[1].Type != EventStatus || events[1].Payload["stage"] != "room_closed" {
		t.Errorf("expected room_closed status event, got %+v", events[1])
	}
}

func TestParseFrameUnknownMethod(t *testing.T) {
	e := parseFrame([]byte(`{"method":"SomeFutureMessage","payload":{}}`))
	if e.Type != EventOther {
		t.Errorf("expected EventOther, got %s", e.Type)
	}
	if _, ok := e.Payload["raw"]; !ok {
		t.Errorf("expected raw field in payload")
	}
}

func TestParseFrameMalformedJSON(t *testing.T) {
	e := parseFrame([]byte(`not json`))
	if e.Type != EventOther {
		t.Errorf("expected EventOther for malformed json, got %s", e.Type)
	}
}
