// Package session holds the authentication state and drives the login flows
// (code, 2FA password, QR) through the bridge.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/telestore/telestore/internal/bridge"
	"github.com/telestore/telestore/internal/constants"
	"github.com/telestore/telestore/internal/events"
	"github.com/telestore/telestore/internal/logging"
	"github.com/telestore/telestore/internal/state"
)

// ErrQRFailed is returned by WaitForQR when the backend reports an error.
var ErrQRFailed = errors.New("qr login failed")

// API is the subset of bridge operations the session needs.
type API interface {
	CheckAuth(ctx context.Context) (bridge.AuthStatus, error)
	RequestCode(ctx context.Context, phone string) (bridge.Result, error)
	SignIn(ctx context.Context, phone, code, password string) (bridge.SignInResult, error)
	Logout(ctx context.Context) (bridge.Result, error)
	RequestQR(ctx context.Context) (bridge.QRRequest, error)
	CheckQRStatus(ctx context.Context, tokenID string) (bridge.QRStatus, error)
}

// State is an immutable snapshot of the session.
type State struct {
	version uint64

	Authenticated bool
	User          *bridge.User
	Loading       bool
	NeedsPassword bool // the account has 2FA and sign-in must be repeated with it
	Error         string
}

// Version increases with every mutation.
func (s State) Version() uint64 { return s.version }

// Session owns the authentication state.
type Session struct {
	api          API
	clock        clockwork.Clock
	pollInterval time.Duration
	eventBus     *events.EventBus
	logger       *logging.Logger

	mu   sync.Mutex
	snap State

	observers state.Observers[State]
}

// Option configures a Session.
type Option func(*Session)

// WithClock sets the clock used for QR polling.
func WithClock(c clockwork.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithPollInterval sets how often WaitForQR polls.
func WithPollInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithEventBus publishes session events on bus.
func WithEventBus(bus *events.EventBus) Option {
	return func(s *Session) { s.eventBus = bus }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l.WithComponent("auth")
		}
	}
}

// New creates a session. It starts in the loading state until the first
// Check completes.
func New(api API, opts ...Option) *Session {
	s := &Session{
		api:          api,
		clock:        clockwork.NewRealClock(),
		pollInterval: constants.QRPollInterval,
		logger:       logging.NewNop(),
		snap:         State{Loading: true},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *Session) Subscribe(fn func(State)) (unsubscribe func()) {
	return s.observers.Subscribe(fn)
}

// Check asks the backend whether it is signed in. A transport failure leaves
// the session signed out with the error recorded.
func (s *Session) Check(ctx context.Context) error {
	status, err := s.api.CheckAuth(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Auth check failed")
		msg := bridge.Message(err)
		if msg == "" {
			msg = "Failed to connect"
		}
		s.replace(State{Error: msg})
		return err
	}
	if status.Authenticated {
		s.replace(State{Authenticated: true, User: status.User})
		return nil
	}
	s.replace(State{})
	return nil
}

// Login marks the session signed in as user without a backend call.
func (s *Session) Login(user *bridge.User) {
	s.update(func(st *State) {
		st.Authenticated = true
		st.User = user
		st.Loading = false
		st.NeedsPassword = false
		st.Error = ""
	})
}

// Reset signs the session out locally.
func (s *Session) Reset() {
	s.replace(State{})
}

// Logout signs the backend out and resets the local session on success.
func (s *Session) Logout(ctx context.Context) (bridge.Result, error) {
	res, err := s.api.Logout(ctx)
	if err != nil {
		s.setError(err)
		return bridge.Result{Error: bridge.Message(err)}, err
	}
	if !res.Success {
		s.update(func(st *State) { st.Error = res.Error })
		return res, nil
	}
	s.Reset()
	return res, nil
}

// RequestCode asks the backend to send a login code to phone.
func (s *Session) RequestCode(ctx context.Context, phone string) (bridge.Result, error) {
	s.begin()
	res, err := s.api.RequestCode(ctx, phone)
	if err != nil {
		s.setError(err)
		return bridge.Result{Error: bridge.Message(err)}, err
	}
	s.update(func(st *State) {
		st.Loading = false
		st.Error = res.Error
	})
	return res, nil
}

// SignIn completes a code login. When the account needs a 2FA password the
// result says so and NeedsPassword is set; call SignIn again with it. On
// success the user is loaded with Check.
func (s *Session) SignIn(ctx context.Context, phone, code, password string) (bridge.SignInResult, error) {
	s.begin()
	res, err := s.api.SignIn(ctx, phone, code, password)
	if err != nil {
		s.setError(err)
		return bridge.SignInResult{Error: bridge.Message(err)}, err
	}
	return res, s.afterSignIn(ctx, res.Success, res.NeedsPassword(), res.Error)
}

// RequestQR starts a QR login.
func (s *Session) RequestQR(ctx context.Context) (bridge.QRRequest, error) {
	req, err := s.api.RequestQR(ctx)
	if err != nil {
		s.setError(err)
		return req, err
	}
	s.logger.Debug().Str("token", req.TokenID).Int("expires_in", req.ExpiresIn).Msg("QR login requested")
	return req, nil
}

// CheckQR polls the QR login once.
func (s *Session) CheckQR(ctx context.Context, tokenID string) (bridge.QRStatus, error) {
	st, err := s.api.CheckQRStatus(ctx, tokenID)
	if err != nil {
		s.setError(err)
		return st, err
	}
	switch st.Status {
	case bridge.QRConfirmed:
		return st, s.afterSignIn(ctx, !st.NeedsPassword, st.NeedsPassword, "")
	case bridge.QRError:
		s.update(func(cur *State) { cur.Error = st.Error })
	}
	return st, nil
}

// WaitForQR polls until the QR login is confirmed, expires or fails, or ctx
// is done.
func (s *Session) WaitForQR(ctx context.Context, tokenID string) (bridge.QRStatus, error) {
	ticker := s.clock.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		st, err := s.CheckQR(ctx, tokenID)
		if err != nil {
			return st, err
		}
		if st.Done() {
			if st.Status == bridge.QRError {
				return st, fmt.Errorf("%w: %s", ErrQRFailed, st.Error)
			}
			return st, nil
		}

		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-ticker.Chan():
		}
	}
}

func (s *Session) afterSignIn(ctx context.Context, success, needsPassword bool, errMsg string) error {
	switch {
	case needsPassword:
		s.logger.Info().Msg("Two-factor password required")
		s.update(func(st *State) {
			st.Loading = false
			st.NeedsPassword = true
			st.Error = ""
		})
		return nil
	case success:
		return s.Check(ctx)
	default:
		s.update(func(st *State) {
			st.Loading = false
			st.Error = errMsg
		})
		return nil
	}
}

func (s *Session) begin() {
	s.update(func(st *State) {
		st.Loading = true
		st.Error = ""
	})
}

func (s *Session) setError(err error) {
	s.logger.Error().Err(err).Msg("Auth operation failed")
	s.update(func(st *State) {
		st.Loading = false
		st.Error = bridge.Message(err)
	})
}

func (s *Session) replace(next State) {
	s.update(func(st *State) { *st = next })
}

func (s *Session) update(fn func(*State)) {
	s.mu.Lock()
	next := s.snap
	fn(&next)
	next.version = s.snap.version + 1
	s.snap = next
	s.mu.Unlock()

	if !s.observers.Notify(next.version, next) {
		return
	}
	var username string
	if next.User != nil {
		username = next.User.DisplayName()
	}
	s.eventBus.Publish(&events.SessionEvent{
		BaseEvent: events.BaseEvent{
			EventType: events.EventSessionChanged,
			Time:      time.Now(),
		},
		Authenticated: next.Authenticated,
		Username:      username,
		Error:         next.Error,
	})
}
