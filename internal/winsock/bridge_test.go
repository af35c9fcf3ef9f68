package winsock

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/JohnDoe6345789/winejs/internal/log"
)

type stubBackend struct {
	handlers map[string]EventHandler
	requests []string
	err      error
}

func newStubBackend() *stubBackend {
	return &stubBackend{handlers: make(map[string]EventHandler)}
}

func (s *stubBackend) Connected() bool { return true }

func (s *stubBackend) Request(_ context.Context, action string, payload any) (json.RawMessage, error) {
	body, _ := json.Marshal(payload)
	s.requests = append(s.requests, action+" "+string(body))
	return nil, s.err
}

func (s *stubBackend) Subscribe(event string, fn EventHandler) func() {
	s.handlers[event] = fn
	return func() { delete(s.handlers, event) }
}

func (s *stubBackend) fire(event, payload string) {
	if fn := s.handlers[event]; fn != nil {
		fn(json.RawMessage(payload))
	}
}

func TestBridgeConsumeAcrossChunks(t *testing.T) {
	be := newStubBackend()
	b := NewBridge(be, log.NewNop())

	be.fire(EventData, `{"connectionId":7,"data":"aGVs"}`)     // "hel"
	be.fire(EventData, `{"connectionId":"7","data":"bG8h"}`)   // "lo!"
	be.fire(EventData, `{"connectionId":8,"data":"b3RoZXI="}`) // "other"

	if n := b.Buffered(7); n != 6 {
		t.Fatalf("Buffered = %d", n)
	}
	if got := string(b.Consume(7, 4)); got != "hell" {
		t.Errorf("first Consume = %q", got)
	}
	if got := string(b.Consume(7, 10)); got != "o!" {
		t.Errorf("second Consume = %q", got)
	}
	if got := b.Consume(7, 10); got != nil {
		t.Errorf("drained Consume = %q", got)
	}
	if got := string(b.Consume(8, 0)); got != "" {
		t.Errorf("zero-length Consume = %q", got)
	}
	if b.Buffered(8) != 5 {
		t.Errorf("other connection lost data")
	}
}

func TestBridgeClosedAndErrors(t *testing.T) {
	be := newStubBackend()
	b := NewBridge(be, log.NewNop())

	be.fire(EventData, `{"connectionId":3,"data":"eA=="}`)
	be.fire(EventClosed, `{"connectionId":3}`)
	if !b.Closed(3) || b.Buffered(3) != 0 {
		t.Error("closed event should drop queued data")
	}
	be.fire(EventError, `{"connectionId":4,"message":"refused"}`)
	if b.LastError(4) != "refused" {
		t.Errorf("LastError = %q", b.LastError(4))
	}
	be.fire(EventData, `not json`)

	b.Detach()
	if len(be.handlers) != 0 {
		t.Errorf("handlers left after Detach: %d", len(be.handlers))
	}
}

func TestBridgeWait(t *testing.T) {
	be := newStubBackend()
	b := NewBridge(be, log.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if b.Wait(ctx, 1) {
		t.Error("Wait reported data on an empty queue")
	}

	go func() {
		time.Sleep(5 * time.Millisecond)
		be.fire(EventData, `{"connectionId":1,"data":"eQ=="}`)
	}()
	ctx2, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel2()
	if !b.Wait(ctx2, 1) {
		t.Fatal("Wait did not see pushed data")
	}
	if got := string(b.Consume(1, 1)); got != "y" {
		t.Errorf("Consume = %q", got)
	}
}

func TestBridgeRequests(t *testing.T) {
	be := newStubBackend()
	b := NewBridge(be, log.NewNop())
	ctx := context.Background()

	if err := b.Open(ctx, 0x100, "10.0.0.1", 80); err != nil {
		t.Fatal(err)
	}
	b.Send(ctx, 0x100, []byte("hi"))
	b.Close(ctx, 0x100)

	want := []string{
		`winsock:open {"connectionId":256,"host":"10.0.0.1","port":80}`,
		`winsock:send {"connectionId":256,"data":"aGk="}`,
		`winsock:close {"connectionId":256}`,
	}
	if len(be.requests) != len(want) {
		t.Fatalf("requests = %q", be.requests)
	}
	for i := range want {
		if be.requests[i] != want[i] {
			t.Errorf("request %d = %s, want %s", i, be.requests[i], want[i])
		}
	}
}
