package bridge

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned when no backend endpoint is attached and the
	// operation has no mock response.
	ErrNotReady = errors.New("bridge not ready")

	// ErrMalformedResponse is returned when a backend response cannot be
	// decoded into the operation's result shape.
	ErrMalformedResponse = errors.New("malformed bridge response")

	// ErrConnectionClosed is returned for calls in flight when the
	// transport connection drops.
	ErrConnectionClosed = errors.New("bridge connection closed")
)

// RemoteError carries a failure raised by the backend operation itself.
// Its message is propagated unchanged.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// TransportError is the single error type returned by bridge calls. It wraps
// ErrNotReady, *RemoteError, context errors and socket errors.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("bridge %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsNotReady reports whether err was caused by a missing backend endpoint.
func IsNotReady(err error) bool {
	return errors.Is(err, ErrNotReady)
}

// Message returns the text a UI should show for err: the backend's own
// message for remote failures, the full error otherwise.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Message
	}
	return err.Error()
}
