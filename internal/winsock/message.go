// Package winsock tunnels guest socket traffic through a WebSocket backend.
//
// The backend speaks a small JSON protocol:
//
//	{"type":"request","action":"winsock:open","requestId":"...","payload":{...}}
//	{"type":"response","requestId":"...","ok":true,"payload":{...}}
//	{"type":"event","event":"winsock:data","payload":{...}}
package winsock

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Message types.
const (
	TypeRequest  = "request"
	TypeResponse = "response"
	TypeEvent    = "event"
)

// Actions and events understood by the backend.
const (
	ActionOpen  = "winsock:open"
	ActionSend  = "winsock:send"
	ActionClose = "winsock:close"

	EventData   = "winsock:data"
	EventClosed = "winsock:closed"
	EventError  = "winsock:error"
	EventOpen   = "winsock:open"
)

// Message is one frame of the backend protocol.
type Message struct {
	Type      string          `json:"type"`
	Action    string          `json:"action,omitempty"`
	Event     string          `json:"event,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
	OK        bool            `json:"ok,omitempty"`
	Error     string          `json:"error,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ConnectionID identifies a tunneled socket. On the wire it is a number,
// but backends may echo it back as a string.
type ConnectionID uint32

func (id *ConnectionID) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	v, err := strconv.ParseUint(string(b), 10, 32)
	if err != nil {
		return err
	}
	*id = ConnectionID(v)
	return nil
}

type openPayload struct {
	ConnectionID ConnectionID `json:"connectionId"`
	Host         string       `json:"host"`
	Port         uint16       `json:"port"`
}

// sendPayload carries base64 data, which encoding/json produces for []byte.
type sendPayload struct {
	ConnectionID ConnectionID `json:"connectionId"`
	Data         []byte       `json:"data"`
}

type closePayload struct {
	ConnectionID ConnectionID `json:"connectionId"`
}

type eventPayload struct {
	ConnectionID ConnectionID `json:"connectionId"`
	Data         []byte       `json:"data,omitempty"`
	Message      string       `json:"message,omitempty"`
}
