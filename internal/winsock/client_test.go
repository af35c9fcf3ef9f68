package winsock

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/websocket"

	"github.com/JohnDoe6345789/winejs/internal/log"
)

// echoBackend answers every request and echoes sent data back as a
// winsock:data event.
func echoBackend(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(websocket.Handler(func(ws *websocket.Conn) {
		for {
			var req Message
			if err := websocket.JSON.Receive(ws, &req); err != nil {
				return
			}
			resp := Message{Type: TypeResponse, RequestID: req.RequestID, OK: true}
			var event *Message
			switch req.Action {
			case ActionOpen:
				var p openPayload
				json.Unmarshal(req.Payload, &p)
				body, _ := json.Marshal(eventPayload{ConnectionID: p.ConnectionID})
				event = &Message{Type: TypeEvent, Event: EventOpen, Payload: body}
			case ActionSend:
				var p sendPayload
				json.Unmarshal(req.Payload, &p)
				body, _ := json.Marshal(eventPayload{ConnectionID: p.ConnectionID, Data: p.Data})
				event = &Message{Type: TypeEvent, Event: EventData, Payload: body}
			case ActionClose:
				var p closePayload
				json.Unmarshal(req.Payload, &p)
				body, _ := json.Marshal(eventPayload{ConnectionID: p.ConnectionID})
				event = &Message{Type: TypeEvent, Event: EventClosed, Payload: body}
			default:
				resp.OK = false
				resp.Error = "unknown action"
			}
			if err := websocket.JSON.Send(ws, resp); err != nil {
				return
			}
			if event != nil {
				websocket.JSON.Send(ws, event)
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), log.NewNop())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	return c
}

func TestClientEchoRoundTrip(t *testing.T) {
	c := dial(t, echoBackend(t))
	defer c.Close()
	b := NewBridge(c, log.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.Open(ctx, 0x100, "127.0.0.1", 7); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := b.Send(ctx, 0x100, []byte("ping")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !b.Wait(ctx, 0x100) {
		t.Fatal("no echo")
	}
	if got := string(b.Consume(0x100, 16)); got != "ping" {
		t.Errorf("echo = %q", got)
	}
	if err := b.Close(ctx, 0x100); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if b.Wait(ctx, 0x100) || !b.Closed(0x100) {
		t.Error("connection should be closed")
	}
}

func TestClientRequestError(t *testing.T) {
	c := dial(t, echoBackend(t))
	defer c.Close()

	_, err := c.Request(context.Background(), "winsock:bogus", struct{}{})
	var re *RequestError
	if !errors.As(err, &re) || re.Reason != "unknown action" {
		t.Errorf("err = %v", err)
	}
}

func TestClientClosed(t *testing.T) {
	c := dial(t, echoBackend(t))
	if err := c.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if c.Connected() {
		t.Error("still connected after Close")
	}
	if _, err := c.Request(context.Background(), ActionOpen, nil); !errors.Is(err, ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
}

func TestDialRequiresURL(t *testing.T) {
	if _, err := Dial(context.Background(), "", nil); err == nil {
		t.Error("empty URL accepted")
	}
}
