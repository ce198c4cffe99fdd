package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/telestore/telestore/internal/bridge"
	"github.com/telestore/telestore/internal/constants"
	"github.com/telestore/telestore/internal/logging"
)

// Client is a multiplexed connection to the backend. It implements
// bridge.Transport and bridge.EventSource.
type Client struct {
	conn   net.Conn
	logger *logging.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	pending  map[string]chan *Message
	closed   bool
	closeErr error

	events chan *Message
	done   chan struct{}
}

var (
	_ bridge.Transport   = (*Client)(nil)
	_ bridge.EventSource = (*Client)(nil)
)

// Dial connects to the backend socket at socketPath.
func Dial(ctx context.Context, socketPath string, logger *logging.Logger) (*Client, error) {
	dialer := net.Dialer{Timeout: constants.DialTimeout}

	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to backend at %s: %w", socketPath, err)
	}
	return newClient(conn, logger), nil
}

func newClient(conn net.Conn, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	c := &Client{
		conn:    conn,
		logger:  logger.WithComponent("ipc"),
		pending: make(map[string]chan *Message),
		events:  make(chan *Message, constants.PushBuffer),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Call sends a request and waits for its response. A failure response is
// returned as *bridge.RemoteError.
func (c *Client) Call(ctx context.Context, method string, args ...any) (json.RawMessage, error) {
	req, err := NewRequest(method, args...)
	if err != nil {
		return nil, err
	}

	ch := make(chan *Message, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, bridge.ErrConnectionClosed
	}
	c.pending[req.ID] = ch
	c.mu.Unlock()

	if err := c.write(req); err != nil {
		c.dropPending(req.ID)
		return nil, fmt.Errorf("failed to send %s: %w", method, err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, bridge.ErrConnectionClosed
		}
		if !resp.Success {
			return nil, &bridge.RemoteError{Message: resp.Error}
		}
		return resp.Data, nil
	case <-ctx.Done():
		c.dropPending(req.ID)
		return nil, ctx.Err()
	}
}

// Listen delivers pushed events until ctx is done or the connection closes.
// Only one listener should be active per client.
func (c *Client) Listen(ctx context.Context, deliver func(bridge.Notification)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-c.events:
			if !ok {
				return c.err()
			}
			deliver(bridge.Notification{Name: msg.Method, Args: msg.Args})
		}
	}
}

// Done is closed once the connection has shut down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close shuts the connection down and fails every pending call.
func (c *Client) Close() error {
	err := c.conn.Close()
	<-c.done
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (c *Client) write(m *Message) error {
	data, err := m.Encode()
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.conn.Write(data)
	return err
}

func (c *Client) dropPending(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeErr
}

func (c *Client) readLoop() {
	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 64*1024), constants.MaxMessageSize)

	for scanner.Scan() {
		msg, err := DecodeMessage(scanner.Bytes())
		if err != nil {
			c.logger.Warn().Err(err).Msg("Dropping malformed message from backend")
			continue
		}

		switch msg.Type {
		case MsgResponse:
			c.mu.Lock()
			ch, ok := c.pending[msg.ID]
			delete(c.pending, msg.ID)
			c.mu.Unlock()
			if !ok {
				c.logger.Debug().Str("id", msg.ID).Msg("Response for unknown or abandoned request")
				continue
			}
			ch <- msg
		case MsgEvent:
			select {
			case c.events <- msg:
			default:
				c.logger.Warn().Str("event", msg.Method).Msg("Push buffer full, dropping event")
			}
		default:
			c.logger.Warn().Str("type", string(msg.Type)).Msg("Unexpected message type from backend")
		}
	}

	err := scanner.Err()
	if err != nil && errors.Is(err, net.ErrClosed) {
		err = nil
	}
	c.shutdown(err)
}

func (c *Client) shutdown(err error) {
	c.mu.Lock()
	c.closed = true
	c.closeErr = err
	pending := c.pending
	c.pending = make(map[string]chan *Message)
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
	close(c.events)
	close(c.done)
	_ = c.conn.Close()
}
