package winsock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/net/websocket"

	"github.com/JohnDoe6345789/winejs/internal/log"
)

var (
	ErrNotConnected = errors.New("backend bridge not connected")
	ErrClosed       = errors.New("backend connection closed")
)

// RequestError is a response with ok=false.
type RequestError struct {
	Action string
	Reason string
}

func (e *RequestError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("backend request %s failed", e.Action)
	}
	return fmt.Sprintf("backend request %s failed: %s", e.Action, e.Reason)
}

// EventHandler receives the payload of a backend event.
type EventHandler func(payload json.RawMessage)

// Client is a request/response and event connection to the backend.
type Client struct {
	url  string
	conn *websocket.Conn
	log  *log.Logger

	writeMu sync.Mutex

	mu          sync.Mutex
	pending     map[string]chan Message
	subscribers map[string]map[int]EventHandler
	nextSub     int
	connected   bool
	readErr     error
	done        chan struct{}
}

// Dial connects to the backend at url.
func Dial(ctx context.Context, url string, logger *log.Logger) (*Client, error) {
	if url == "" {
		return nil, errors.New("backend URL is required")
	}
	if logger == nil {
		logger = log.L
	}
	cfg, err := websocket.NewConfig(url, "http://localhost/")
	if err != nil {
		return nil, fmt.Errorf("backend %s: %w", url, err)
	}
	conn, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect backend %s: %w", url, err)
	}

	c := &Client{
		url:         url,
		conn:        conn,
		log:         logger.WithCategory("backend"),
		pending:     make(map[string]chan Message),
		subscribers: make(map[string]map[int]EventHandler),
		connected:   true,
		done:        make(chan struct{}),
	}
	go c.readLoop()
	c.log.Info("connected", zap.String("url", url))
	return c, nil
}

// Connected reports whether the connection is still open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Request sends action with payload and waits for the matching response.
func (c *Client) Request(ctx context.Context, action string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", action, err)
	}
	id := uuid.NewString()
	reply := make(chan Message, 1)

	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	c.pending[id] = reply
	c.mu.Unlock()

	msg := Message{Type: TypeRequest, Action: action, RequestID: id, Payload: body}
	c.writeMu.Lock()
	err = websocket.JSON.Send(c.conn, msg)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(id)
		return nil, fmt.Errorf("send %s: %w", action, err)
	}

	select {
	case resp, ok := <-reply:
		if !ok {
			return nil, ErrClosed
		}
		if !resp.OK {
			return nil, &RequestError{Action: action, Reason: resp.Error}
		}
		return resp.Payload, nil
	case <-ctx.Done():
		c.forget(id)
		return nil, fmt.Errorf("backend request %s: %w", action, ctx.Err())
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Subscribe registers fn for event and returns a function that removes it.
func (c *Client) Subscribe(event string, fn EventHandler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	subs := c.subscribers[event]
	if subs == nil {
		subs = make(map[int]EventHandler)
		c.subscribers[event] = subs
	}
	key := c.nextSub
	c.nextSub++
	subs[key] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(subs, key)
		if len(subs) == 0 {
			delete(c.subscribers, event)
		}
	}
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		var msg Message
		if err := websocket.JSON.Receive(c.conn, &msg); err != nil {
			c.shutdown(err)
			return
		}
		switch msg.Type {
		case TypeResponse:
			c.mu.Lock()
			reply, ok := c.pending[msg.RequestID]
			delete(c.pending, msg.RequestID)
			c.mu.Unlock()
			if ok {
				reply <- msg
			}
		case TypeEvent:
			c.emit(msg.Event, msg.Payload)
		default:
			c.log.Debug("ignored message", zap.String("type", msg.Type))
		}
	}
}

func (c *Client) emit(event string, payload json.RawMessage) {
	c.mu.Lock()
	handlers := make([]EventHandler, 0, len(c.subscribers[event]))
	for _, fn := range c.subscribers[event] {
		handlers = append(handlers, fn)
	}
	c.mu.Unlock()
	for _, fn := range handlers {
		fn(payload)
	}
}

func (c *Client) shutdown(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return
	}
	c.connected = false
	c.readErr = err
	for id, reply := range c.pending {
		close(reply)
		delete(c.pending, id)
	}
	c.log.Debug("disconnected", zap.Error(err))
}

// Close disconnects and fails every pending request.
func (c *Client) Close() error {
	c.mu.Lock()
	wasConnected := c.connected
	c.mu.Unlock()

	err := c.conn.Close()
	<-c.done

	c.mu.Lock()
	readErr := c.readErr
	c.mu.Unlock()
	if !wasConnected && readErr != nil && !errors.Is(readErr, io.EOF) {
		// The peer went away first; report why.
		err = multierr.Append(err, fmt.Errorf("read: %w", readErr))
	}
	return err
}
