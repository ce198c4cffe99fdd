// Package lockout tracks passcode verification for the current session. The
// backend decides whether a candidate is correct and how long to throttle;
// this package only mirrors the confirmed outcomes. Lockout expiry is never
// scheduled: it is derived from LockedUntil and the current time whenever
// the state is read or a new attempt is made.
package lockout

import (
	"time"

	"github.com/telestore/telestore/internal/constants"
)

// Phase is the derived state machine position.
type Phase string

const (
	PhaseUnconfigured Phase = "unconfigured"
	PhaseUnverified   Phase = "unverified"
	PhaseVerified     Phase = "verified"
	PhaseLockedShort  Phase = "locked_short"
	PhaseLockedLong   Phase = "locked_long"
)

// State is an immutable snapshot of the passcode state.
type State struct {
	version uint64

	HasPasscode       bool
	Verified          bool
	Loading           bool
	AttemptsRemaining int
	MaxAttempts       int
	LockedUntil       time.Time // zero when not locked
	Error             string
}

// DefaultState returns the startup state for maxAttempts.
func DefaultState(maxAttempts int) State {
	if maxAttempts <= 0 {
		maxAttempts = constants.DefaultMaxPasscodeAttempts
	}
	return State{
		AttemptsRemaining: maxAttempts,
		MaxAttempts:       maxAttempts,
	}
}

// Version increases with every mutation.
func (s State) Version() uint64 {
	return s.version
}

// LockedAt reports whether a lockout is still in force at now.
func (s State) LockedAt(now time.Time) bool {
	return !s.LockedUntil.IsZero() && now.Before(s.LockedUntil)
}

// RetryIn returns the time left until another attempt may be made, rounded
// up to the second. It is zero when not locked.
func (s State) RetryIn(now time.Time) time.Duration {
	if !s.LockedAt(now) {
		return 0
	}
	d := s.LockedUntil.Sub(now)
	return (d + time.Second - 1) / time.Second * time.Second
}

// Phase returns the state machine position at now.
func (s State) Phase(now time.Time) Phase {
	switch {
	case s.Verified:
		return PhaseVerified
	case s.LockedAt(now) && s.AttemptsRemaining == 0:
		return PhaseLockedLong
	case s.LockedAt(now):
		return PhaseLockedShort
	case !s.HasPasscode:
		return PhaseUnconfigured
	default:
		return PhaseUnverified
	}
}

// expireAt clears a lockout that has passed. When the long tier expires the
// attempt budget is restored.
func (s *State) expireAt(now time.Time) {
	if s.LockedUntil.IsZero() || s.LockedAt(now) {
		return
	}
	s.LockedUntil = time.Time{}
	if s.AttemptsRemaining == 0 {
		s.AttemptsRemaining = s.MaxAttempts
	}
}
