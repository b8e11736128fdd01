package otpx

import (
	"fmt"
	"time"

	"github.com/aussiebroadwan/passport/pkg/cryptox"
)

// SecurityCodeState is the persisted state for the long-lived security pin:
// a single hashed value with no expiry, no counter and no regeneration
// cooldown. The shared throttle is the only brake on guessing.
type SecurityCodeState struct {
	PinHash    string
	LastUsedAt time.Time
	Throttle   ThrottleState
}

// SecurityCodeVerifier implements the hashed-pin comparison verifier.
type SecurityCodeVerifier struct {
	Throttle Throttle
}

// Set hashes pin into st, replacing any previous value.
func (v *SecurityCodeVerifier) Set(st *SecurityCodeState, pin string) error {
	hash, err := cryptox.HashSecret(pin)
	if err != nil {
		return fmt.Errorf("otpx: hash security code: %w", err)
	}
	st.PinHash = hash
	return nil
}

// Verify is a straight hash comparison behind the throttle. Wrong pin
// advances the backoff and returns (false, nil); success resets it.
func (v *SecurityCodeVerifier) Verify(st *SecurityCodeState, pin string, now time.Time) (bool, error) {
	if err := v.Throttle.Check(st.Throttle, now); err != nil {
		return false, err
	}

	if st.PinHash == "" || cryptox.VerifySecret(pin, st.PinHash) != nil {
		st.Throttle.Fail(now)
		return false, nil
	}

	st.LastUsedAt = now
	st.Throttle.Reset()
	return true, nil
}
