// Package core wires the bridge adapter and the state components into one
// engine that a frontend drives.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/telestore/telestore/internal/bridge"
	"github.com/telestore/telestore/internal/config"
	"github.com/telestore/telestore/internal/constants"
	"github.com/telestore/telestore/internal/events"
	"github.com/telestore/telestore/internal/lockout"
	"github.com/telestore/telestore/internal/logging"
	"github.com/telestore/telestore/internal/notify"
	"github.com/telestore/telestore/internal/session"
	"github.com/telestore/telestore/internal/state"
	"github.com/telestore/telestore/internal/transfer"
)

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("engine closed")

// Engine owns the adapter and every state component built on it.
type Engine struct {
	config   *config.Config
	eventBus *events.EventBus
	logger   *logging.Logger

	adapter   *bridge.Adapter
	files     *state.FileList
	transfers *transfer.Registry
	passcode  *lockout.Machine
	session   *session.Session
	notifier  *notify.Notifier

	mu        sync.Mutex
	transport bridge.Transport
	ctx       context.Context
	cancel    context.CancelFunc
	pumps     sync.WaitGroup
	pumpStop  context.CancelFunc
	closed    bool
}

type options struct {
	clock     clockwork.Clock
	logger    *logging.Logger
	logOutput io.Writer
	meter     metric.Meter
	notifier  bool
}

// Option configures an Engine.
type Option func(*options)

// WithClock drives every timer in the engine from c.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the base logger. Components derive their own from it.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithLogOutput logs to w with a logger that also publishes warnings and
// errors on the engine's bus. WithLogger takes precedence.
func WithLogOutput(w io.Writer) Option {
	return func(o *options) { o.logOutput = w }
}

// WithMeter records bridge call metrics on m.
func WithMeter(m metric.Meter) Option {
	return func(o *options) { o.meter = m }
}

// WithNotifications turns bus events into desktop notifications, subject to
// the notification settings in the config.
func WithNotifications(enabled bool) Option {
	return func(o *options) { o.notifier = enabled }
}

// New builds an engine. transport may be nil and attached later with
// SetTransport.
func New(cfg *config.Config, transport bridge.Transport, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.New()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := options{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}

	eventBus := events.NewEventBus(constants.EventBusDefaultBuffer)
	logger := o.logger
	switch {
	case logger != nil:
	case o.logOutput != nil:
		logger = logging.NewLogger(o.logOutput, eventBus)
	default:
		logger = logging.NewNop()
	}

	adapterOpts := []bridge.Option{
		bridge.WithLogger(logger),
		bridge.WithEventBus(eventBus),
		bridge.WithCallTimeout(cfg.Bridge.CallTimeout),
		bridge.WithMocks(cfg.Bridge.Mocks),
		bridge.WithLogForwarding(cfg.Bridge.ForwardLogs),
	}
	if transport != nil {
		adapterOpts = append(adapterOpts, bridge.WithTransport(transport))
	}
	if o.meter != nil {
		adapterOpts = append(adapterOpts, bridge.WithMeter(o.meter))
	}
	adapter := bridge.NewAdapter(adapterOpts...)

	files := state.NewFileList(adapter, eventBus, logger)

	e := &Engine{
		config:    cfg,
		eventBus:  eventBus,
		logger:    logger.WithComponent("engine"),
		adapter:   adapter,
		files:     files,
		transport: transport,
		transfers: transfer.NewRegistry(adapter,
			transfer.WithClock(o.clock),
			transfer.WithCleanupDelay(cfg.Transfers.CleanupDelay),
			transfer.WithRefresher(files),
			transfer.WithEventBus(eventBus),
			transfer.WithLogger(logger),
		),
		passcode: lockout.NewMachine(adapter,
			lockout.WithClock(o.clock),
			lockout.WithMaxAttempts(cfg.Passcode.MaxAttempts),
			lockout.WithWeakWarning(cfg.Passcode.WarnWeak),
			lockout.WithEventBus(eventBus),
			lockout.WithLogger(logger),
		),
		session: session.New(adapter,
			session.WithClock(o.clock),
			session.WithEventBus(eventBus),
			session.WithLogger(logger),
		),
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())

	if o.notifier {
		n := cfg.Notifications
		e.notifier = notify.NewNotifier(&notify.Config{
			Enabled:              n.Enabled,
			ShowTransferComplete: n.ShowTransferComplete,
			ShowTransferFailed:   n.ShowTransferFailed,
			ShowLockout:          n.ShowLockout,
		}, logger)
	}

	return e, nil
}

// Start loads the session, passcode configuration and file listing
// concurrently, then starts pumping pushed events. A failing load is
// recorded in its component's state and does not fail Start; only ctx
// cancellation does.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	loads := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"check_auth", e.session.Check},
		{"has_passcode", e.passcode.CheckConfigured},
		{"list_files", e.files.Load},
	}
	for _, l := range loads {
		l := l
		g.Go(func() error {
			if err := l.fn(gctx); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				e.logger.Warn().Err(err).Str("operation", l.name).Msg("Initial load failed")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if e.notifier != nil {
		e.pumps.Add(1)
		go func() {
			defer e.pumps.Done()
			e.notifier.Run(e.ctx, e.eventBus)
		}()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.startPumpLocked()
	e.logger.Info().Bool("backend", e.transport != nil).Msg("Engine started")
	return nil
}

// SetTransport attaches a new backend endpoint, replacing the event pump
// of the previous one.
func (e *Engine) SetTransport(t bridge.Transport) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if e.pumpStop != nil {
		e.pumpStop()
		e.pumpStop = nil
	}
	e.transport = t
	e.adapter.SetTransport(t)
	e.startPumpLocked()
}

// startPumpLocked pumps notifications from the transport when it is also an
// event source.
func (e *Engine) startPumpLocked() {
	src, ok := e.transport.(bridge.EventSource)
	if !ok || e.pumpStop != nil {
		return
	}
	ctx, stop := context.WithCancel(e.ctx)
	e.pumpStop = stop

	e.pumps.Add(1)
	go func() {
		defer e.pumps.Done()
		err := e.adapter.Listen(ctx, src)
		if err != nil && ctx.Err() == nil {
			e.logger.Warn().Err(err).Msg("Event stream ended")
		}
	}()
}

// Close stops the event pumps, cancels pending cleanup timers and closes the
// bus. It does not close the transport.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.pumpStop = nil
	e.mu.Unlock()

	e.cancel()
	e.pumps.Wait()
	e.transfers.Close()
	e.adapter.Drain()
	if dropped := e.eventBus.ResetDroppedEventCount(); dropped > 0 {
		e.logger.Warn().Int64("dropped", dropped).Msg("Event bus dropped events for slow subscribers")
	}
	e.eventBus.Close()
}

// DroppedEvents reports how many bus events were dropped because a
// subscriber's buffer was full.
func (e *Engine) DroppedEvents() int64 { return e.eventBus.GetDroppedEventCount() }

// Config returns the configuration the engine was built with.
func (e *Engine) Config() *config.Config { return e.config }

// Events returns the engine's event bus.
func (e *Engine) Events() *events.EventBus { return e.eventBus }

// Bridge returns the adapter for direct backend calls.
func (e *Engine) Bridge() *bridge.Adapter { return e.adapter }

// Files returns the file listing cache.
func (e *Engine) Files() *state.FileList { return e.files }

// Transfers returns the transfer registry.
func (e *Engine) Transfers() *transfer.Registry { return e.transfers }

// Passcode returns the lockout state machine.
func (e *Engine) Passcode() *lockout.Machine { return e.passcode }

// Session returns the session state.
func (e *Engine) Session() *session.Session { return e.session }

// Notifier returns the desktop notifier, or nil when notifications are off.
func (e *Engine) Notifier() *notify.Notifier { return e.notifier }
