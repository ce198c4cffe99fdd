// Package ipc implements the bridge transport between the engine and the
// backend process: newline-delimited JSON messages over a Unix domain socket.
// Requests and responses are correlated by id; the backend may push events
// on the same connection at any time.
package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// SocketName is the file name of the bridge socket inside the config dir.
const SocketName = "bridge.sock"

// DefaultSocketPath returns the per-user bridge socket path.
// On Linux: ~/.config/telestore/bridge.sock
func DefaultSocketPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "telestore-"+SocketName)
	}
	return filepath.Join(dir, "telestore", SocketName)
}

// MessageType identifies the type of IPC message.
type MessageType string

const (
	MsgRequest  MessageType = "request"  // client -> server
	MsgResponse MessageType = "response" // server -> client, same id as the request
	MsgEvent    MessageType = "event"    // server -> client, unsolicited
)

// ErrInvalidMessage is returned for lines that are not a well-formed message.
var ErrInvalidMessage = errors.New("invalid ipc message")

// Message is the single envelope for every line on the socket.
type Message struct {
	Type    MessageType       `json:"type"`
	ID      string            `json:"id,omitempty"`
	Method  string            `json:"method,omitempty"`
	Args    []json.RawMessage `json:"args,omitempty"`
	Success bool              `json:"success,omitempty"`
	Error   string            `json:"error,omitempty"`
	Data    json.RawMessage   `json:"data,omitempty"`
}

// NewRequest creates a request with a fresh correlation id.
func NewRequest(method string, args ...any) (*Message, error) {
	raw, err := marshalArgs(args)
	if err != nil {
		return nil, fmt.Errorf("encode %s args: %w", method, err)
	}
	return &Message{
		Type:   MsgRequest,
		ID:     uuid.NewString(),
		Method: method,
		Args:   raw,
	}, nil
}

// NewOKResponse creates a success response carrying data.
func NewOKResponse(id string, data any) (*Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return &Message{Type: MsgResponse, ID: id, Success: true, Data: raw}, nil
}

// NewErrorResponse creates a failure response.
func NewErrorResponse(id, errMsg string) *Message {
	return &Message{Type: MsgResponse, ID: id, Success: false, Error: errMsg}
}

// NewEvent creates a pushed event such as onUploadProgress.
func NewEvent(name string, args ...any) (*Message, error) {
	raw, err := marshalArgs(args)
	if err != nil {
		return nil, fmt.Errorf("encode %s args: %w", name, err)
	}
	return &Message{Type: MsgEvent, Method: name, Args: raw}, nil
}

func marshalArgs(args []any) ([]json.RawMessage, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make([]json.RawMessage, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

// Encode serializes the message as one newline-terminated line.
func (m *Message) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// DecodeMessage parses and validates one line.
func DecodeMessage(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	switch m.Type {
	case MsgRequest:
		if m.ID == "" || m.Method == "" {
			return nil, fmt.Errorf("%w: request without id or method", ErrInvalidMessage)
		}
	case MsgResponse:
		if m.ID == "" {
			return nil, fmt.Errorf("%w: response without id", ErrInvalidMessage)
		}
	case MsgEvent:
		if m.Method == "" {
			return nil, fmt.Errorf("%w: event without name", ErrInvalidMessage)
		}
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, m.Type)
	}
	return &m, nil
}
