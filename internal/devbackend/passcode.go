package devbackend

import (
	"fmt"
	"math"
	"time"

	"github.com/telestore/telestore/internal/bridge"
)

const minPasscodeLength = 4

func (b *Backend) hasPasscode() bridge.PasscodeStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bridge.PasscodeStatus{HasPasscode: b.passcode != ""}
}

func (b *Backend) setPasscode(passcode string) bridge.Result {
	if len(passcode) < minPasscodeLength {
		return bridge.Result{Error: fmt.Sprintf("Passcode must be at least %d characters", minPasscodeLength)}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.passcode != "" {
		return bridge.Result{Error: "Passcode already set"}
	}
	b.passcode = passcode
	return bridge.Result{Success: true}
}

// verifyPasscode applies the backend lockout rules: each failure spends one
// attempt and the last one locks entry for lockFor. The budget is restored
// on success or once the lockout has passed.
func (b *Backend) verifyPasscode(candidate string) bridge.VerifyResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	if !b.lockedUntil.IsZero() {
		if now.Before(b.lockedUntil) {
			retry := int(math.Ceil(b.lockedUntil.Sub(now).Seconds()))
			return bridge.VerifyResult{
				Error:      bridge.VerifyLockedOut,
				Message:    fmt.Sprintf("Too many failed attempts. Try again in %ds", retry),
				RetryAfter: retry,
			}
		}
		b.lockedUntil = time.Time{}
		b.failed = 0
	}

	if b.passcode != "" && candidate == b.passcode {
		b.failed = 0
		return bridge.VerifyResult{Valid: true}
	}

	b.failed++
	remaining := b.maxAttempts - b.failed
	if remaining <= 0 {
		b.lockedUntil = now.Add(b.lockFor)
		secs := int(b.lockFor / time.Second)
		return bridge.VerifyResult{
			Error:             bridge.VerifyTooManyAttempts,
			Message:           fmt.Sprintf("Too many failed attempts. Locked for %d seconds", secs),
			LockedFor:         secs,
			AttemptsRemaining: 0,
		}
	}
	return bridge.VerifyResult{
		Error:             bridge.VerifyIncorrect,
		Message:           fmt.Sprintf("Incorrect passcode. %d attempts remaining", remaining),
		AttemptsRemaining: remaining,
	}
}

func (b *Backend) changePasscode(oldPasscode, newPasscode string) bridge.Result {
	if len(newPasscode) < minPasscodeLength {
		return bridge.Result{Error: fmt.Sprintf("Passcode must be at least %d characters", minPasscodeLength)}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.passcode == "":
		return bridge.Result{Error: "No passcode set"}
	case oldPasscode != b.passcode:
		return bridge.Result{Error: "Incorrect passcode"}
	}
	b.passcode = newPasscode
	return bridge.Result{Success: true}
}

// resetEncryption forgets the passcode and every stored file.
func (b *Backend) resetEncryption() bridge.ResetResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	res := bridge.ResetResult{Success: true, EncryptedFilesDeleted: len(b.files)}
	if b.passcode != "" {
		res.PasscodeDeleted = 1
	}
	for _, f := range b.files {
		res.ChunksDeleted += len(f.Chunks)
	}

	b.passcode = ""
	b.failed = 0
	b.lockedUntil = time.Time{}
	b.files = nil
	return res
}
