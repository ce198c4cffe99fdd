package lockout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestState_PhaseAndRetryIn(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		state   State
		phase   Phase
		retryIn time.Duration
	}{
		{"startup", DefaultState(5), PhaseUnconfigured, 0},
		{"configured", State{HasPasscode: true, AttemptsRemaining: 5}, PhaseUnverified, 0},
		{"verified", State{HasPasscode: true, Verified: true}, PhaseVerified, 0},
		{"skipped", State{Verified: true}, PhaseVerified, 0},
		{"short lock", State{HasPasscode: true, AttemptsRemaining: 2, LockedUntil: now.Add(10 * time.Second)}, PhaseLockedShort, 10 * time.Second},
		{"long lock", State{HasPasscode: true, LockedUntil: now.Add(1500 * time.Millisecond)}, PhaseLockedLong, 2 * time.Second},
		{"expired lock", State{HasPasscode: true, LockedUntil: now}, PhaseUnverified, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.phase, tt.state.Phase(now))
			assert.Equal(t, tt.retryIn, tt.state.RetryIn(now))
		})
	}
}

func TestState_ExpireAt(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	long := State{MaxAttempts: 5, LockedUntil: now.Add(-time.Second)}
	long.expireAt(now)
	assert.True(t, long.LockedUntil.IsZero())
	assert.Equal(t, 5, long.AttemptsRemaining)

	short := State{MaxAttempts: 5, AttemptsRemaining: 2, LockedUntil: now.Add(-time.Second)}
	short.expireAt(now)
	assert.True(t, short.LockedUntil.IsZero())
	assert.Equal(t, 2, short.AttemptsRemaining)

	active := State{MaxAttempts: 5, LockedUntil: now.Add(time.Second)}
	active.expireAt(now)
	assert.False(t, active.LockedUntil.IsZero())
	assert.Zero(t, active.AttemptsRemaining)
}

func TestEstimateStrength(t *testing.T) {
	assert.True(t, EstimateStrength("123456").Weak())
	assert.False(t, EstimateStrength("correct horse battery staple 93!").Weak())
}
