package winsock

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/JohnDoe6345789/winejs/internal/log"
)

// Backend is the part of Client the bridge depends on.
type Backend interface {
	Connected() bool
	Request(ctx context.Context, action string, payload any) (json.RawMessage, error)
	Subscribe(event string, fn EventHandler) func()
}

// Bridge maps guest sockets onto backend connections and buffers the data
// the backend pushes for each of them.
type Bridge struct {
	backend Backend
	log     *log.Logger
	unsub   []func()

	mu      sync.Mutex
	queues  map[ConnectionID][][]byte
	closed  map[ConnectionID]bool
	lastErr map[ConnectionID]string
	changed chan struct{}
}

// NewBridge subscribes to the backend's socket events.
func NewBridge(backend Backend, logger *log.Logger) *Bridge {
	if logger == nil {
		logger = log.L
	}
	b := &Bridge{
		backend: backend,
		log:     logger.WithCategory("winsock"),
		queues:  make(map[ConnectionID][][]byte),
		closed:  make(map[ConnectionID]bool),
		lastErr: make(map[ConnectionID]string),
		changed: make(chan struct{}),
	}
	b.unsub = []func(){
		backend.Subscribe(EventData, b.onData),
		backend.Subscribe(EventClosed, b.onClosed),
		backend.Subscribe(EventError, b.onError),
		backend.Subscribe(EventOpen, b.onOpen),
	}
	return b
}

// Detach stops listening for backend events.
func (b *Bridge) Detach() {
	for _, fn := range b.unsub {
		fn()
	}
	b.unsub = nil
}

// Ready reports whether requests can be sent.
func (b *Bridge) Ready() bool {
	return b.backend != nil && b.backend.Connected()
}

// Open asks the backend to connect id to host:port.
func (b *Bridge) Open(ctx context.Context, id ConnectionID, host string, port uint16) error {
	b.mu.Lock()
	delete(b.closed, id)
	delete(b.lastErr, id)
	b.mu.Unlock()
	_, err := b.backend.Request(ctx, ActionOpen, openPayload{ConnectionID: id, Host: host, Port: port})
	return err
}

// Send forwards data written by the guest.
func (b *Bridge) Send(ctx context.Context, id ConnectionID, data []byte) error {
	_, err := b.backend.Request(ctx, ActionSend, sendPayload{ConnectionID: id, Data: data})
	return err
}

// Close closes id on the backend and drops its queued data.
func (b *Bridge) Close(ctx context.Context, id ConnectionID) error {
	b.mu.Lock()
	delete(b.queues, id)
	b.mu.Unlock()
	_, err := b.backend.Request(ctx, ActionClose, closePayload{ConnectionID: id})
	return err
}

// Consume removes up to n queued bytes for id, splitting chunks as needed.
func (b *Bridge) Consume(id ConnectionID, n int) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	queue := b.queues[id]
	if len(queue) == 0 || n <= 0 {
		return nil
	}
	var out []byte
	for n > 0 && len(queue) > 0 {
		chunk := queue[0]
		if len(chunk) <= n {
			out = append(out, chunk...)
			n -= len(chunk)
			queue = queue[1:]
			continue
		}
		out = append(out, chunk[:n]...)
		queue[0] = chunk[n:]
		n = 0
	}
	if len(queue) == 0 {
		delete(b.queues, id)
	} else {
		b.queues[id] = queue
	}
	return out
}

// Buffered returns the number of queued bytes for id.
func (b *Bridge) Buffered(id ConnectionID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	var n int
	for _, c := range b.queues[id] {
		n += len(c)
	}
	return n
}

// Closed reports whether the backend closed id.
func (b *Bridge) Closed(id ConnectionID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed[id]
}

// LastError returns the last error event for id.
func (b *Bridge) LastError(id ConnectionID) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr[id]
}

// Wait blocks until id has data or is closed, or ctx ends. It reports
// whether data is available.
func (b *Bridge) Wait(ctx context.Context, id ConnectionID) bool {
	for {
		b.mu.Lock()
		ready := len(b.queues[id]) > 0
		done := b.closed[id]
		changed := b.changed
		b.mu.Unlock()
		if ready || done {
			return ready
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return false
		}
	}
}

// notify wakes every Wait. Callers hold b.mu.
func (b *Bridge) notify() {
	close(b.changed)
	b.changed = make(chan struct{})
}

func (b *Bridge) decode(event string, raw json.RawMessage) (eventPayload, bool) {
	var p eventPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.ConnectionID == 0 {
		b.log.Debug("malformed event", zap.String("event", event), zap.Error(err))
		return p, false
	}
	return p, true
}

func (b *Bridge) onData(raw json.RawMessage) {
	p, ok := b.decode(EventData, raw)
	if !ok || len(p.Data) == 0 {
		return
	}
	b.mu.Lock()
	b.queues[p.ConnectionID] = append(b.queues[p.ConnectionID], p.Data)
	b.notify()
	b.mu.Unlock()
}

func (b *Bridge) onClosed(raw json.RawMessage) {
	p, ok := b.decode(EventClosed, raw)
	if !ok {
		return
	}
	b.mu.Lock()
	delete(b.queues, p.ConnectionID)
	b.closed[p.ConnectionID] = true
	b.notify()
	b.mu.Unlock()
}

func (b *Bridge) onError(raw json.RawMessage) {
	p, ok := b.decode(EventError, raw)
	if !ok {
		return
	}
	b.mu.Lock()
	b.lastErr[p.ConnectionID] = p.Message
	b.mu.Unlock()
	b.log.Warn("socket error",
		zap.Uint32("socket", uint32(p.ConnectionID)),
		zap.String("message", p.Message),
	)
}

func (b *Bridge) onOpen(raw json.RawMessage) {
	if p, ok := b.decode(EventOpen, raw); ok {
		b.log.Debug("socket open", zap.Uint32("socket", uint32(p.ConnectionID)))
	}
}
