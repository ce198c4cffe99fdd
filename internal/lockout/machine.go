package lockout

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/telestore/telestore/internal/bridge"
	"github.com/telestore/telestore/internal/constants"
	"github.com/telestore/telestore/internal/events"
	"github.com/telestore/telestore/internal/logging"
	"github.com/telestore/telestore/internal/state"
)

// API is the subset of bridge operations the machine needs.
type API interface {
	HasPasscode(ctx context.Context) (bridge.PasscodeStatus, error)
	SetPasscode(ctx context.Context, passcode string) (bridge.Result, error)
	VerifyPasscode(ctx context.Context, passcode string) (bridge.VerifyResult, error)
	ResetEncryption(ctx context.Context) (bridge.ResetResult, error)
	ChangePasscode(ctx context.Context, oldPasscode, newPasscode string) (bridge.Result, error)
}

// OutcomeKind classifies a verification attempt.
type OutcomeKind string

const (
	OutcomeValid       OutcomeKind = "valid"
	OutcomeIncorrect   OutcomeKind = "incorrect"
	OutcomeLockedShort OutcomeKind = "locked_out"
	OutcomeLockedLong  OutcomeKind = "too_many_attempts"
)

// Outcome is the result of Verify as applied to the state.
type Outcome struct {
	Kind              OutcomeKind
	Message           string
	AttemptsRemaining int
	RetryAfter        time.Duration // set for both lockout kinds
	LockedUntil       time.Time
}

// Valid reports whether the passcode was accepted.
func (o Outcome) Valid() bool { return o.Kind == OutcomeValid }

// Locked reports whether the attempt ended in either lockout tier.
func (o Outcome) Locked() bool {
	return o.Kind == OutcomeLockedShort || o.Kind == OutcomeLockedLong
}

// Machine owns the passcode state. All mutations go through its methods;
// readers get immutable State values.
type Machine struct {
	api         API
	clock       clockwork.Clock
	maxAttempts int
	warnWeak    bool
	eventBus    *events.EventBus
	logger      *logging.Logger

	mu   sync.Mutex
	snap State

	observers state.Observers[State]
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock sets the clock used to stamp and expire lockouts.
func WithClock(c clockwork.Clock) Option {
	return func(m *Machine) { m.clock = c }
}

// WithMaxAttempts sets the attempt budget restored after success or expiry.
func WithMaxAttempts(n int) Option {
	return func(m *Machine) {
		if n > 0 {
			m.maxAttempts = n
		}
	}
}

// WithWeakWarning enables or disables the warning logged when a new passcode
// is easy to guess.
func WithWeakWarning(enabled bool) Option {
	return func(m *Machine) { m.warnWeak = enabled }
}

// WithEventBus publishes lockout events on bus.
func WithEventBus(bus *events.EventBus) Option {
	return func(m *Machine) { m.eventBus = bus }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l.WithComponent("passcode")
		}
	}
}

// NewMachine creates a machine in its startup state.
func NewMachine(api API, opts ...Option) *Machine {
	m := &Machine{
		api:         api,
		clock:       clockwork.NewRealClock(),
		maxAttempts: constants.DefaultMaxPasscodeAttempts,
		warnWeak:    true,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.snap = DefaultState(m.maxAttempts)
	return m
}

// Snapshot returns the current state.
func (m *Machine) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// Phase returns the current phase, evaluating lockout expiry now.
func (m *Machine) Phase() Phase {
	return m.Snapshot().Phase(m.clock.Now())
}

// RetryIn returns the time left on the current lockout.
func (m *Machine) RetryIn() time.Duration {
	return m.Snapshot().RetryIn(m.clock.Now())
}

// Subscribe registers fn for every new state.
func (m *Machine) Subscribe(fn func(State)) (unsubscribe func()) {
	return m.observers.Subscribe(fn)
}

// CheckConfigured asks the backend whether a passcode exists.
func (m *Machine) CheckConfigured(ctx context.Context) error {
	m.begin()
	res, err := m.api.HasPasscode(ctx)
	if err != nil {
		m.fail(bridge.OpHasPasscode, err)
		return err
	}
	m.update(func(s *State) {
		s.HasPasscode = res.HasPasscode
		s.Loading = false
	})
	return nil
}

// Setup configures the first passcode. On success the session counts as
// verified.
func (m *Machine) Setup(ctx context.Context, candidate string) (bridge.Result, error) {
	m.adviseStrength(candidate)
	m.begin()
	res, err := m.api.SetPasscode(ctx, candidate)
	if err != nil {
		m.fail(bridge.OpSetPasscode, err)
		return bridge.Result{Error: bridge.Message(err)}, err
	}
	m.update(func(s *State) {
		s.Loading = false
		if res.Success {
			s.HasPasscode = true
			s.Verified = true
			return
		}
		s.Error = res.Error
		if s.Error == "" {
			s.Error = "Failed to set passcode"
		}
	})
	return res, nil
}

// Verify submits one attempt. An expired lockout is cleared before the
// attempt is sent; the backend still decides whether the attempt is
// allowed. The result is applied in a single update.
func (m *Machine) Verify(ctx context.Context, candidate string) (Outcome, error) {
	m.update(func(s *State) {
		s.expireAt(m.clock.Now())
		s.Loading = true
		s.Error = ""
	})

	res, err := m.api.VerifyPasscode(ctx, candidate)
	if err != nil {
		m.fail(bridge.OpVerifyPasscode, err)
		return Outcome{}, err
	}

	var out Outcome
	m.update(func(s *State) {
		now := m.clock.Now()
		s.Loading = false
		s.Error = ""

		switch {
		case res.Valid:
			s.Verified = true
			s.AttemptsRemaining = s.MaxAttempts
			s.LockedUntil = time.Time{}
			out = Outcome{Kind: OutcomeValid, AttemptsRemaining: s.AttemptsRemaining}

		case res.Error == bridge.VerifyLockedOut:
			d := lockoutDuration(res.RetryAfter)
			s.LockedUntil = now.Add(d)
			s.Error = failureMessage(res)
			out = Outcome{Kind: OutcomeLockedShort, RetryAfter: d, LockedUntil: s.LockedUntil}

		case res.Error == bridge.VerifyTooManyAttempts:
			d := lockoutDuration(res.LockedFor)
			s.AttemptsRemaining = 0
			s.LockedUntil = now.Add(d)
			s.Error = failureMessage(res)
			out = Outcome{Kind: OutcomeLockedLong, RetryAfter: d, LockedUntil: s.LockedUntil}

		default:
			s.AttemptsRemaining = max(res.AttemptsRemaining, 0)
			s.Error = failureMessage(res)
			out = Outcome{Kind: OutcomeIncorrect}
		}

		if out.Kind != OutcomeValid {
			out.Message = s.Error
			out.AttemptsRemaining = s.AttemptsRemaining
		}
	})

	m.logger.Info().Str("outcome", string(out.Kind)).Int("attempts_remaining", out.AttemptsRemaining).Msg("Passcode verification")
	return out, nil
}

// Reset wipes the passcode and encrypted data on the backend. On success the
// state returns to its startup defaults. It is never retried.
func (m *Machine) Reset(ctx context.Context) (bridge.ResetResult, error) {
	m.begin()
	res, err := m.api.ResetEncryption(ctx)
	if err != nil {
		m.fail(bridge.OpResetEncryption, err)
		return bridge.ResetResult{Error: bridge.Message(err)}, err
	}

	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = "Reset failed"
		}
		m.update(func(s *State) {
			s.Loading = false
			s.Error = msg
		})
		return res, nil
	}

	m.logger.Warn().
		Int("passcode_deleted", res.PasscodeDeleted).
		Int("encrypted_files_deleted", res.EncryptedFilesDeleted).
		Int("chunks_deleted", res.ChunksDeleted).
		Msg("Encryption reset")
	m.ResetState()
	return res, nil
}

// Change rotates the passcode. The attempt budget is not touched.
func (m *Machine) Change(ctx context.Context, oldPasscode, newPasscode string) (bridge.Result, error) {
	m.adviseStrength(newPasscode)
	m.begin()
	res, err := m.api.ChangePasscode(ctx, oldPasscode, newPasscode)
	if err != nil {
		m.fail(bridge.OpChangePasscode, err)
		return bridge.Result{Error: bridge.Message(err)}, err
	}
	m.update(func(s *State) {
		s.Loading = false
		if !res.Success {
			s.Error = res.Error
			if s.Error == "" {
				s.Error = "Failed to change passcode"
			}
		}
	})
	return res, nil
}

// Skip lets the user continue without a passcode. It makes no backend call.
// Callers must only offer it when HasPasscode is false; the machine does not
// enforce this.
func (m *Machine) Skip() {
	m.update(func(s *State) {
		if s.HasPasscode {
			m.logger.Warn().Msg("Skipping verification while a passcode is configured")
		}
		s.HasPasscode = false
		s.Verified = true
	})
}

// ClearError drops the last error message.
func (m *Machine) ClearError() {
	m.update(func(s *State) { s.Error = "" })
}

// ResetState restores the startup defaults locally.
func (m *Machine) ResetState() {
	m.update(func(s *State) {
		v := s.version
		*s = DefaultState(m.maxAttempts)
		s.version = v
	})
}

func (m *Machine) begin() {
	m.update(func(s *State) {
		s.Loading = true
		s.Error = ""
	})
}

// fail records a transport failure. Attempts and lockout are left alone:
// they only change on a backend-confirmed outcome.
func (m *Machine) fail(op string, err error) {
	m.logger.Error().Err(err).Str("op", op).Msg("Passcode operation failed")
	m.update(func(s *State) {
		s.Loading = false
		s.Error = bridge.Message(err)
	})
}

func (m *Machine) update(fn func(*State)) {
	m.mu.Lock()
	next := m.snap
	fn(&next)
	next.version = m.snap.version + 1
	m.snap = next
	m.mu.Unlock()

	if m.observers.Notify(next.version, next) {
		m.publish(next)
	}
}

func (m *Machine) publish(s State) {
	m.eventBus.Publish(&events.LockoutEvent{
		BaseEvent: events.BaseEvent{
			EventType: events.EventLockoutChanged,
			Time:      time.Now(),
		},
		Phase:             string(s.Phase(m.clock.Now())),
		HasPasscode:       s.HasPasscode,
		Verified:          s.Verified,
		AttemptsRemaining: s.AttemptsRemaining,
		LockedUntil:       s.LockedUntil,
		Error:             s.Error,
	})
}

func (m *Machine) adviseStrength(candidate string) {
	if !m.warnWeak {
		return
	}
	if st := EstimateStrength(candidate); st.Weak() {
		m.logger.Warn().Int("score", st.Score).Str("crack_time", st.CrackTime).Msg("Passcode is easy to guess")
	}
}

// lockoutDuration converts backend seconds, keeping the lock strictly in the
// future even when the backend reports zero.
func lockoutDuration(seconds int) time.Duration {
	return max(time.Duration(seconds)*time.Second, constants.MinLockoutDuration)
}

func failureMessage(res bridge.VerifyResult) string {
	switch {
	case res.Message != "":
		return res.Message
	case res.Error != "":
		return res.Error
	default:
		return "Incorrect passcode"
	}
}
