// Package otpx implements the one-time-credential verifier family: TOTP,
// email/mobile pins, backup codes and security codes. Each verifier is a
// pure state machine over a persisted state struct: the caller owns
// persistence and must write the mutated state back as part of the same
// verify/generate call.
package otpx

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrThrottled means verification is blocked by exponential backoff.
	// Not a failure of the supplied code; the attempt was never evaluated.
	ErrThrottled = errors.New("otpx: verification throttled")

	// ErrCooldown means regeneration is blocked by the minimum interval.
	ErrCooldown = errors.New("otpx: regeneration cooldown active")
)

// ThrottledError carries how long the caller must wait before the next
// attempt will be evaluated. errors.Is(err, ErrThrottled) holds.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("otpx: verification throttled, retry after %s", e.RetryAfter)
}

func (e *ThrottledError) Unwrap() error { return ErrThrottled }

// CooldownError carries how long until a new code may be generated.
type CooldownError struct {
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("otpx: regeneration cooldown active, retry after %s", e.RetryAfter)
}

func (e *CooldownError) Unwrap() error { return ErrCooldown }

// ThrottleState is the persisted failure-backoff sub-state every verifier
// carries. The zero value means no failures recorded.
type ThrottleState struct {
	FailureCount int
	FailureTime  time.Time
}

// Fail records a failed verification attempt at now.
func (s *ThrottleState) Fail(now time.Time) {
	s.FailureCount++
	s.FailureTime = now
}

// Reset clears the backoff after a successful verification.
func (s *ThrottleState) Reset() {
	s.FailureCount = 0
	s.FailureTime = time.Time{}
}

// Throttle applies exponential backoff: after n failures the next attempt
// is only evaluated once factor * 2^(n-1) has elapsed since the last
// failure. With the default factor of 1s the sequence is 1s, 2s, 4s, 8s...
type Throttle struct {
	// Factor scales the backoff. Zero means the 1s default; negative
	// disables throttling entirely.
	Factor time.Duration
}

// DefaultThrottleFactor is the backoff unit when none is configured.
const DefaultThrottleFactor = time.Second

// maxBackoffShift caps the exponent so the delay can't overflow. 2^20
// seconds is already ~12 days, nobody is waiting that out.
const maxBackoffShift = 20

// Check reports whether an attempt may proceed at now. A throttled
// rejection mutates nothing; the failure count does not increment.
func (t Throttle) Check(s ThrottleState, now time.Time) error {
	if t.Factor < 0 || s.FailureCount == 0 {
		return nil
	}

	factor := t.Factor
	if factor == 0 {
		factor = DefaultThrottleFactor
	}

	shift := min(s.FailureCount-1, maxBackoffShift)
	required := factor * (1 << shift)

	elapsed := now.Sub(s.FailureTime)
	if elapsed < required {
		return &ThrottledError{RetryAfter: required - elapsed}
	}
	return nil
}

// checkCooldown gates regeneration: a new code may only be issued once
// cooldown has elapsed since the last generation. Zero lastGenerated means
// nothing was ever generated, which always passes.
func checkCooldown(lastGenerated time.Time, cooldown time.Duration, now time.Time) error {
	if cooldown <= 0 || lastGenerated.IsZero() {
		return nil
	}
	elapsed := now.Sub(lastGenerated)
	if elapsed <= cooldown {
		return &CooldownError{RetryAfter: cooldown - elapsed}
	}
	return nil
}
