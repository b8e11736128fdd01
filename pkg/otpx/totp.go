package otpx

import (
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
	"github.com/pquerna/otp/totp"

	"github.com/aussiebroadwan/passport/pkg/cryptox"
)

// TOTPConfig are the RFC 6238 parameters. The zero value gives the common
// 30s/6-digit/SHA1 profile every authenticator app defaults to.
type TOTPConfig struct {
	Period    time.Duration // counter step, default 30s
	T0        int64         // epoch offset in seconds, default 0
	Digits    otp.Digits    // default six
	Algorithm otp.Algorithm // default SHA1

	// Tolerance is how many counters either side of the current one are
	// accepted, to absorb clock drift. Default 1.
	Tolerance int
}

func (c TOTPConfig) period() time.Duration {
	if c.Period > 0 {
		return c.Period
	}
	return 30 * time.Second
}

func (c TOTPConfig) digits() otp.Digits {
	if c.Digits > 0 {
		return c.Digits
	}
	return otp.DigitsSix
}

func (c TOTPConfig) tolerance() int {
	if c.Tolerance > 0 {
		return c.Tolerance
	}
	return 1
}

// Counter maps a wall-clock instant onto the HOTP counter.
func (c TOTPConfig) Counter(at time.Time) int64 {
	return (at.Unix() - c.T0) / int64(c.period()/time.Second)
}

// GenerateCode derives the code for an explicit counter. Pure: identical
// inputs always produce identical output.
func (c TOTPConfig) GenerateCode(secret string, counter int64) (string, error) {
	if counter < 0 {
		return "", fmt.Errorf("otpx: negative counter %d", counter)
	}
	code, err := hotp.GenerateCodeCustom(secret, uint64(counter), hotp.ValidateOpts{
		Digits:    c.digits(),
		Algorithm: c.Algorithm,
	})
	if err != nil {
		return "", fmt.Errorf("otpx: generate totp code: %w", err)
	}
	return code, nil
}

// GenerateKey mints a fresh enrollment key and otpauth:// URL with this
// config's parameters baked in.
func (c TOTPConfig) GenerateKey(issuer, account string) (*otp.Key, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      uint(c.period() / time.Second),
		Digits:      c.digits(),
		Algorithm:   c.Algorithm,
	})
	if err != nil {
		return nil, fmt.Errorf("otpx: generate totp key: %w", err)
	}
	return key, nil
}

// TOTPState is the persisted per-device verifier state.
type TOTPState struct {
	// Secret is the base32-encoded shared secret.
	Secret string

	// LastCounter is the highest counter that ever verified. Candidates at
	// or below it are never accepted again, even with the right code.
	LastCounter int64

	LastUsedAt time.Time
	Throttle   ThrottleState
}

// TOTPVerifier combines the code algorithm with the shared throttle.
type TOTPVerifier struct {
	Config   TOTPConfig
	Throttle Throttle
}

// Verify checks code against the tolerance window around now's counter.
//
// Returns (false, *ThrottledError) when backoff blocks the attempt, with no
// state changes. Returns (false, nil) on a wrong code, with the throttle
// advanced. On success the matched counter becomes the new LastCounter,
// the throttle resets and LastUsedAt is stamped.
func (v *TOTPVerifier) Verify(st *TOTPState, code string, now time.Time) (bool, error) {
	if err := v.Throttle.Check(st.Throttle, now); err != nil {
		return false, err
	}

	current := v.Config.Counter(now)
	tol := int64(v.Config.tolerance())

	matched := int64(-1)
	for counter := current - tol; counter <= current+tol; counter++ {
		if counter <= st.LastCounter || counter < 0 {
			continue
		}
		expected, err := v.Config.GenerateCode(st.Secret, counter)
		if err != nil {
			return false, err
		}
		// Constant-time compare; keep scanning so timing doesn't reveal
		// which counter matched.
		if cryptox.EqualConstantTime(expected, code) && matched < 0 {
			matched = counter
		}
	}

	if matched < 0 {
		st.Throttle.Fail(now)
		return false, nil
	}

	st.LastCounter = matched
	st.LastUsedAt = now
	st.Throttle.Reset()
	return true, nil
}
