package lockout

import (
	"github.com/nbutton23/zxcvbn-go"

	"github.com/telestore/telestore/internal/constants"
)

// Strength is an advisory estimate of how guessable a passcode is. The
// backend alone decides which passcodes it accepts.
type Strength struct {
	Score     int // 0 (weakest) to 4
	CrackTime string
}

// Weak reports whether the score is at or below the warning threshold.
func (s Strength) Weak() bool {
	return s.Score <= constants.WeakPasscodeScore
}

// EstimateStrength scores candidate with zxcvbn.
func EstimateStrength(candidate string, userInputs ...string) Strength {
	m := zxcvbn.PasswordStrength(candidate, userInputs)
	return Strength{
		Score:     m.Score,
		CrackTime: m.CrackTimeDisplay,
	}
}
