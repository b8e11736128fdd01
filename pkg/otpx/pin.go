package otpx

import (
	"fmt"
	"time"

	"github.com/aussiebroadwan/passport/pkg/cryptox"
)

// PinConfig parameterises the email/mobile OTP verifiers. They share the
// algorithm (a short-lived numeric pin, hashed at rest) and differ only
// in delivery, which is the caller's problem.
type PinConfig struct {
	Digits   int           // pin length, default 6
	TTL      time.Duration // absolute validity window, default 5m
	Cooldown time.Duration // minimum interval between generations, default 1m
}

func (c PinConfig) digits() int {
	if c.Digits > 0 {
		return c.Digits
	}
	return 6
}

func (c PinConfig) ttl() time.Duration {
	if c.TTL > 0 {
		return c.TTL
	}
	return 5 * time.Minute
}

func (c PinConfig) cooldown() time.Duration {
	if c.Cooldown > 0 {
		return c.Cooldown
	}
	return time.Minute
}

// PinState is the persisted challenge state. The raw pin only exists in the
// return value of Generate; from then on there is just the argon2id hash.
type PinState struct {
	PinHash    string // empty when unset or consumed
	IssuedAt   time.Time
	ValidUntil time.Time
	LastUsedAt time.Time
	Throttle   ThrottleState
}

// PinVerifier implements the email/mobile OTP state machine.
type PinVerifier struct {
	Config   PinConfig
	Throttle Throttle
}

// Generate mints a new pin, hashes it into st and returns the plaintext for
// delivery. Gated by the regeneration cooldown.
func (v *PinVerifier) Generate(st *PinState, now time.Time) (string, error) {
	if err := checkCooldown(st.IssuedAt, v.Config.cooldown(), now); err != nil {
		return "", err
	}

	pin, err := cryptox.GenerateDigits(v.Config.digits())
	if err != nil {
		return "", fmt.Errorf("otpx: generate pin: %w", err)
	}
	hash, err := cryptox.HashSecret(pin)
	if err != nil {
		return "", fmt.Errorf("otpx: hash pin: %w", err)
	}

	st.PinHash = hash
	st.IssuedAt = now
	st.ValidUntil = now.Add(v.Config.ttl())
	return pin, nil
}

// Verify compares pin against the stored hash inside the validity window.
//
// Expired, not-yet-valid and plain-wrong pins all count as ordinary
// failures: throttle advances, (false, nil) returned. Success consumes the
// pin (hash cleared, validity collapsed to now) and resets the throttle
// and cooldown so a fresh pin can be requested immediately.
func (v *PinVerifier) Verify(st *PinState, pin string, now time.Time) (bool, error) {
	if err := v.Throttle.Check(st.Throttle, now); err != nil {
		return false, err
	}

	if !v.usable(st, now) || !v.matches(st, pin) {
		st.Throttle.Fail(now)
		return false, nil
	}

	st.PinHash = ""
	st.IssuedAt = time.Time{}
	st.ValidUntil = now
	st.LastUsedAt = now
	st.Throttle.Reset()
	return true, nil
}

func (v *PinVerifier) usable(st *PinState, now time.Time) bool {
	if st.PinHash == "" {
		return false
	}
	if now.Before(st.IssuedAt) {
		return false
	}
	return now.Before(st.ValidUntil)
}

// matches treats a corrupt stored hash the same as a mismatch; the record
// needs regenerating either way.
func (v *PinVerifier) matches(st *PinState, pin string) bool {
	return cryptox.VerifySecret(pin, st.PinHash) == nil
}
