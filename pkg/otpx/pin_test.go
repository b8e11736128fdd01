package otpx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPinGenerate(t *testing.T) {
	v := &PinVerifier{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	st := PinState{}
	pin, err := v.Generate(&st, now)
	require.NoError(t, err)

	require.Len(t, pin, 6)
	require.NotEmpty(t, st.PinHash)
	require.NotContains(t, st.PinHash, pin, "raw pin must not appear in stored state")
	require.Equal(t, now, st.IssuedAt)
	require.Equal(t, now.Add(5*time.Minute), st.ValidUntil)
}

func TestPinGenerateCooldown(t *testing.T) {
	v := &PinVerifier{Config: PinConfig{Cooldown: time.Minute}}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	st := PinState{}
	_, err := v.Generate(&st, now)
	require.NoError(t, err)

	_, err = v.Generate(&st, now.Add(30*time.Second))
	require.ErrorIs(t, err, ErrCooldown)

	var cooldown *CooldownError
	require.ErrorAs(t, err, &cooldown)
	require.Equal(t, 30*time.Second, cooldown.RetryAfter)

	_, err = v.Generate(&st, now.Add(61*time.Second))
	require.NoError(t, err)
}

func TestPinVerify(t *testing.T) {
	v := &PinVerifier{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	newChallenge := func(t *testing.T) (PinState, string) {
		t.Helper()
		st := PinState{}
		pin, err := v.Generate(&st, now)
		require.NoError(t, err)
		return st, pin
	}

	t.Run("correct pin verifies and is consumed", func(t *testing.T) {
		st, pin := newChallenge(t)

		ok, err := v.Verify(&st, pin, now.Add(time.Minute))
		require.NoError(t, err)
		require.True(t, ok)
		require.Empty(t, st.PinHash, "pin is single use")
		require.Zero(t, st.IssuedAt, "cooldown resets so a fresh pin can be requested")

		// Replay of the consumed pin fails
		ok, err = v.Verify(&st, pin, now.Add(2*time.Minute))
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("wrong pin fails and advances the throttle", func(t *testing.T) {
		st, _ := newChallenge(t)

		ok, err := v.Verify(&st, "999999x", now.Add(time.Minute))
		require.NoError(t, err)
		require.False(t, ok)
		require.Equal(t, 1, st.Throttle.FailureCount)
		require.NotEmpty(t, st.PinHash, "failed attempt does not consume the pin")
	})

	t.Run("expired pin fails like a wrong one", func(t *testing.T) {
		st, pin := newChallenge(t)

		ok, err := v.Verify(&st, pin, now.Add(6*time.Minute))
		require.NoError(t, err)
		require.False(t, ok)
		require.Equal(t, 1, st.Throttle.FailureCount)
	})

	t.Run("unset challenge fails", func(t *testing.T) {
		st := PinState{}
		ok, err := v.Verify(&st, "123456", now)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("throttled attempt never reaches the comparison", func(t *testing.T) {
		st, pin := newChallenge(t)
		st.Throttle.Fail(now.Add(time.Minute))

		ok, err := v.Verify(&st, pin, now.Add(time.Minute))
		require.False(t, ok)
		require.ErrorIs(t, err, ErrThrottled)
		require.NotEmpty(t, st.PinHash, "throttled attempt must not touch state")

		ok, err = v.Verify(&st, pin, now.Add(time.Minute+time.Second))
		require.NoError(t, err)
		require.True(t, ok)
	})
}

func TestPinVerifyAfterRegenerate(t *testing.T) {
	v := &PinVerifier{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	st := PinState{}
	oldPin, err := v.Generate(&st, now)
	require.NoError(t, err)

	newPin, err := v.Generate(&st, now.Add(2*time.Minute))
	require.NoError(t, err)

	if oldPin != newPin {
		ok, err := v.Verify(&st, oldPin, now.Add(3*time.Minute))
		require.NoError(t, err)
		require.False(t, ok, "regeneration invalidates the previous pin")
	}

	ok, err := v.Verify(&st, newPin, now.Add(4*time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
}
