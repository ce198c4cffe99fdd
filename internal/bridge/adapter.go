// Package bridge is the call/event boundary between the engine and the
// out-of-process backend. Every backend operation goes through
// Adapter.Invoke; pushed transfer notifications are decoded into
// TransferEvent values and dispatched to registered handlers.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/telestore/telestore/internal/constants"
	"github.com/telestore/telestore/internal/events"
	"github.com/telestore/telestore/internal/logging"
)

// Transport performs one request/response call against the backend.
// Remote failures are reported as *RemoteError.
type Transport interface {
	Call(ctx context.Context, method string, args ...any) (json.RawMessage, error)
}

// EventSource delivers notifications pushed by the backend. Listen blocks
// until ctx is done or the source closes.
type EventSource interface {
	Listen(ctx context.Context, deliver func(Notification)) error
}

// Notification is a raw pushed event: a callback name plus positional args.
type Notification struct {
	Name string
	Args []json.RawMessage
}

type handlerEntry struct {
	id uint64
	fn func(TransferEvent)
}

// Adapter wraps a Transport with diagnostics, metrics, mock responses and
// transfer event dispatch. The transport may be attached after construction.
type Adapter struct {
	mu        sync.RWMutex
	transport Transport
	handlers  []handlerEntry
	nextID    uint64

	logger      *logging.Logger
	eventBus    *events.EventBus
	callTimeout time.Duration
	mocks       bool
	forwardLogs bool
	metrics     *callMetrics

	forwarding sync.WaitGroup
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithTransport attaches the backend endpoint at construction.
func WithTransport(t Transport) Option {
	return func(a *Adapter) { a.transport = t }
}

// WithLogger sets the logger used for call diagnostics.
func WithLogger(l *logging.Logger) Option {
	return func(a *Adapter) { a.logger = l.WithComponent("bridge") }
}

// WithEventBus publishes a BridgeFailureEvent for every failed call.
func WithEventBus(bus *events.EventBus) Option {
	return func(a *Adapter) { a.eventBus = bus }
}

// WithCallTimeout bounds every call. Zero disables the bound.
func WithCallTimeout(d time.Duration) Option {
	return func(a *Adapter) { a.callTimeout = d }
}

// WithMocks enables or disables mock responses while no transport is attached.
func WithMocks(enabled bool) Option {
	return func(a *Adapter) { a.mocks = enabled }
}

// WithLogForwarding enables or disables forwarding failures to the backend
// log operation.
func WithLogForwarding(enabled bool) Option {
	return func(a *Adapter) { a.forwardLogs = enabled }
}

// WithMeter records call metrics on the given meter instead of the global one.
func WithMeter(m metric.Meter) Option {
	return func(a *Adapter) { a.metrics = newCallMetrics(m) }
}

// NewAdapter creates an adapter. Without WithTransport every call is served
// by mocks or fails with ErrNotReady until SetTransport is called.
func NewAdapter(opts ...Option) *Adapter {
	a := &Adapter{
		logger:      logging.NewNop(),
		callTimeout: constants.DefaultCallTimeout,
		mocks:       true,
		forwardLogs: true,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.metrics == nil {
		a.metrics = newCallMetrics(nil)
	}
	return a
}

// SetTransport attaches (or, with nil, detaches) the backend endpoint.
func (a *Adapter) SetTransport(t Transport) {
	a.mu.Lock()
	a.transport = t
	a.mu.Unlock()
}

// Ready reports whether a backend endpoint is attached.
func (a *Adapter) Ready() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.transport != nil
}

// Invoke calls a backend operation. Every failure is returned as a
// *TransportError, logged, published on the bus and forwarded to the
// backend log operation.
func (a *Adapter) Invoke(ctx context.Context, op string, args ...any) (json.RawMessage, error) {
	start := time.Now()
	raw, err := a.call(ctx, op, args...)
	a.metrics.record(ctx, op, time.Since(start), err)
	if err != nil {
		a.reportFailure(op, err)
		return nil, err
	}
	return raw, nil
}

func (a *Adapter) call(ctx context.Context, op string, args ...any) (json.RawMessage, error) {
	a.mu.RLock()
	t := a.transport
	a.mu.RUnlock()

	if t == nil {
		if a.mocks {
			if raw, ok := mockResponse(op); ok {
				a.logger.Warn().Str("op", op).Msg("Backend not attached, using mock response")
				return raw, nil
			}
		}
		return nil, &TransportError{Op: op, Err: ErrNotReady}
	}

	if a.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.callTimeout)
		defer cancel()
	}

	raw, err := t.Call(ctx, op, args...)
	if err != nil {
		var te *TransportError
		if errors.As(err, &te) {
			return nil, err
		}
		return nil, &TransportError{Op: op, Err: err}
	}
	return raw, nil
}

func (a *Adapter) reportFailure(op string, err error) {
	a.logger.Error().Err(err).Str("op", op).Msg("Bridge call failed")
	a.eventBus.PublishBridgeFailure(op, err)

	// Failures of the log operation itself are never re-forwarded.
	if op == OpLog || !a.forwardLogs {
		return
	}
	a.forward(fmt.Sprintf("[ERROR] Bridge error [%s]: %v", op, err))
}

// Log forwards a diagnostic line to the backend log operation. It never
// blocks and never reports failure.
func (a *Adapter) Log(level events.LogLevel, message string) {
	a.forward(fmt.Sprintf("[%s] %s", level, message))
}

func (a *Adapter) forward(line string) {
	if !a.Ready() {
		return
	}
	a.forwarding.Add(1)
	go func() {
		defer a.forwarding.Done()
		ctx, cancel := context.WithTimeout(context.Background(), constants.DialTimeout)
		defer cancel()
		if _, err := a.call(ctx, OpLog, line); err != nil {
			a.logger.Debug().Err(err).Msg("Log forwarding failed")
		}
	}()
}

// Drain waits for in-flight log forwards to finish.
func (a *Adapter) Drain() {
	a.forwarding.Wait()
}

// decode invokes op and unmarshals the response into T. A response that does
// not fit T is reported as a malformed-response TransportError.
func decode[T any](ctx context.Context, a *Adapter, op string, args ...any) (T, error) {
	var out T
	raw, err := a.Invoke(ctx, op, args...)
	if err != nil {
		return out, err
	}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		terr := &TransportError{Op: op, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
		a.reportFailure(op, terr)
		return out, terr
	}
	return out, nil
}
