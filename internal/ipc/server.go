package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/telestore/telestore/internal/constants"
	"github.com/telestore/telestore/internal/logging"
)

// Handler serves backend operations. A returned error becomes a failure
// response whose message is err.Error().
type Handler interface {
	HandleCall(ctx context.Context, method string, args []json.RawMessage) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, method string, args []json.RawMessage) (any, error)

func (f HandlerFunc) HandleCall(ctx context.Context, method string, args []json.RawMessage) (any, error) {
	return f(ctx, method, args)
}

// Server accepts client connections on a Unix socket, serves requests
// concurrently and broadcasts events to every connected client.
type Server struct {
	handler    Handler
	logger     *logging.Logger
	socketPath string
	listener   net.Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[*serverConn]struct{}
}

type serverConn struct {
	conn    net.Conn
	writeMu sync.Mutex
}

func (sc *serverConn) send(m *Message) error {
	data, err := m.Encode()
	if err != nil {
		return err
	}
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	_, err = sc.conn.Write(data)
	return err
}

// NewServer creates a server on the default socket path.
func NewServer(handler Handler, logger *logging.Logger) *Server {
	return NewServerWithPath(handler, logger, DefaultSocketPath())
}

// NewServerWithPath creates a server on a custom socket path.
func NewServerWithPath(handler Handler, logger *logging.Logger, socketPath string) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		handler:    handler,
		logger:     logger.WithComponent("ipc-server"),
		socketPath: socketPath,
		ctx:        ctx,
		cancel:     cancel,
		conns:      make(map[*serverConn]struct{}),
	}
}

// SocketPath returns the path the server listens on.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// Start begins listening. A stale socket file left by a previous run is
// removed first.
func (s *Server) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0700); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to restrict socket permissions: %w", err)
	}
	s.listener = listener

	s.logger.Info().Str("socket", s.socketPath).Msg("IPC server started")

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Stop closes the listener and every client connection, then waits for
// in-flight handlers.
func (s *Server) Stop() {
	s.logger.Debug().Msg("Stopping IPC server")
	s.cancel()

	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	for sc := range s.conns {
		sc.conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	_ = os.Remove(s.socketPath)
	s.logger.Info().Msg("IPC server stopped")
}

// Broadcast pushes an event to every connected client.
func (s *Server) Broadcast(name string, args ...any) error {
	msg, err := NewEvent(name, args...)
	if err != nil {
		return err
	}

	s.mu.Lock()
	targets := make([]*serverConn, 0, len(s.conns))
	for sc := range s.conns {
		targets = append(targets, sc)
	}
	s.mu.Unlock()

	for _, sc := range targets {
		if err := sc.send(msg); err != nil {
			s.logger.Debug().Err(err).Str("event", name).Msg("Failed to push event")
		}
	}
	return nil
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn().Err(err).Msg("Failed to accept IPC connection")
			continue
		}

		sc := &serverConn{conn: conn}
		s.mu.Lock()
		s.conns[sc] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(sc)
	}
}

func (s *Server) handleConnection(sc *serverConn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, sc)
		s.mu.Unlock()
		sc.conn.Close()
	}()

	scanner := bufio.NewScanner(sc.conn)
	scanner.Buffer(make([]byte, 64*1024), constants.MaxMessageSize)

	for scanner.Scan() {
		req, err := DecodeMessage(scanner.Bytes())
		if err != nil || req.Type != MsgRequest {
			s.logger.Warn().Err(err).Msg("Failed to decode IPC request")
			continue
		}

		s.logger.Debug().Str("method", req.Method).Str("id", req.ID).Msg("Received IPC request")

		s.wg.Add(1)
		go func(req *Message) {
			defer s.wg.Done()
			if err := sc.send(s.serve(req)); err != nil {
				s.logger.Debug().Err(err).Str("method", req.Method).Msg("Failed to send IPC response")
			}
		}(req)
	}

	if err := scanner.Err(); err != nil && err != io.EOF && !errors.Is(err, net.ErrClosed) {
		s.logger.Warn().Err(err).Msg("IPC connection read failed")
	}
}

func (s *Server) serve(req *Message) *Message {
	data, err := s.handler.HandleCall(s.ctx, req.Method, req.Args)
	if err != nil {
		return NewErrorResponse(req.ID, err.Error())
	}
	resp, err := NewOKResponse(req.ID, data)
	if err != nil {
		return NewErrorResponse(req.ID, err.Error())
	}
	return resp
}
