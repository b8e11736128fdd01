package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aussiebroadwan/passport/internal/session/domain"
	"github.com/aussiebroadwan/passport/internal/session/store"
	"github.com/aussiebroadwan/passport/pkg/otpx"
	"github.com/stretchr/testify/require"
)

// capturePinSender records delivered pins instead of sending them anywhere.
type capturePinSender struct {
	channel     domain.PinChannel
	destination string
	pin         string
	err         error
}

func (s *capturePinSender) SendPin(_ context.Context, channel domain.PinChannel, destination, pin string) error {
	s.channel = channel
	s.destination = destination
	s.pin = pin
	return s.err
}

// newMFAService builds the service against an in-memory store with the
// verifier throttles disabled, so back-to-back attempts in tests don't trip
// the backoff. Throttle behavior itself is covered separately.
func newMFAService(t *testing.T, st store.Store, sender PinSender) *MFAService {
	t.Helper()

	off := otpx.Throttle{Factor: -1}
	return &MFAService{
		Store:    st,
		Sender:   sender,
		TOTP:     otpx.TOTPVerifier{Throttle: off},
		Pin:      otpx.PinVerifier{Throttle: off},
		Backup:   otpx.BackupVerifier{Throttle: off},
		Security: otpx.SecurityCodeVerifier{Throttle: off},
		Issuer:   "passport-test",
	}
}

// enrollAndConfirm walks a user through TOTP enrollment and returns the
// shared secret plus the backup codes issued at confirmation.
func enrollAndConfirm(t *testing.T, svc *MFAService, userID string) (string, []string) {
	t.Helper()
	ctx := context.Background()

	enrollment, err := svc.EnrollTOTP(ctx, userID, userID+"@example.com")
	require.NoError(t, err)

	code, err := svc.TOTP.Config.GenerateCode(enrollment.Secret, svc.TOTP.Config.Counter(time.Now().UTC()))
	require.NoError(t, err)

	backupCodes, err := svc.ConfirmTOTP(ctx, userID, code)
	require.NoError(t, err)
	return enrollment.Secret, backupCodes
}

// nextCode derives the code one counter past now. The previous counter was
// burned by confirmation, and tolerance accepts one step ahead.
func nextCode(t *testing.T, svc *MFAService, secret string) string {
	t.Helper()
	code, err := svc.TOTP.Config.GenerateCode(secret, svc.TOTP.Config.Counter(time.Now().UTC())+1)
	require.NoError(t, err)
	return code
}

func TestEnrollTOTP(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newMFAService(t, st, nil)

	enrollment, err := svc.EnrollTOTP(ctx, "user-1", "alice@example.com")
	require.NoError(t, err)

	require.NotEmpty(t, enrollment.Secret)
	require.Contains(t, enrollment.URL, "otpauth://totp/")
	require.Equal(t, "passport-test", enrollment.Issuer)
	require.Equal(t, "alice@example.com", enrollment.Account)

	device, err := st.TOTPDevices().GetTOTPDeviceByUser(ctx, "user-1")
	require.NoError(t, err)
	require.False(t, device.Confirmed, "enrollment starts unconfirmed")

	t.Run("re-enroll over unconfirmed device replaces it", func(t *testing.T) {
		second, err := svc.EnrollTOTP(ctx, "user-1", "alice@example.com")
		require.NoError(t, err)
		require.NotEqual(t, enrollment.Secret, second.Secret)
	})
}

func TestConfirmTOTP(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newMFAService(t, st, nil)

	t.Run("confirming without enrollment fails", func(t *testing.T) {
		_, err := svc.ConfirmTOTP(ctx, "nobody", "123456")
		require.ErrorIs(t, err, ErrMFANotEnrolled)
	})

	_, backupCodes := enrollAndConfirm(t, svc, "user-1")

	t.Run("confirmation issues a backup batch", func(t *testing.T) {
		require.Len(t, backupCodes, 10)
	})

	t.Run("device is confirmed", func(t *testing.T) {
		device, err := st.TOTPDevices().GetTOTPDeviceByUser(ctx, "user-1")
		require.NoError(t, err)
		require.True(t, device.Confirmed)
	})

	t.Run("enrolling again once confirmed fails", func(t *testing.T) {
		_, err := svc.EnrollTOTP(ctx, "user-1", "alice@example.com")
		require.ErrorIs(t, err, ErrMFAAlreadyEnabled)
	})

	t.Run("confirming again fails", func(t *testing.T) {
		_, err := svc.ConfirmTOTP(ctx, "user-1", "123456")
		require.ErrorIs(t, err, ErrMFAAlreadyEnabled)
	})
}

func TestConfirmTOTPWrongCodePersistsThrottle(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newMFAService(t, st, nil)

	_, err := svc.EnrollTOTP(ctx, "user-1", "alice@example.com")
	require.NoError(t, err)

	_, err = svc.ConfirmTOTP(ctx, "user-1", "bogus-code")
	require.ErrorIs(t, err, ErrInvalidCode)

	// The failed attempt must survive the error: the throttle increment
	// commits even though confirmation did not happen.
	device, err := st.TOTPDevices().GetTOTPDeviceByUser(ctx, "user-1")
	require.NoError(t, err)
	require.False(t, device.Confirmed)
	require.Equal(t, 1, device.State.Throttle.FailureCount)
}

func TestConfirmTOTPThrottledAttempt(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	// Real throttle this time: one failure imposes a 1s backoff.
	svc := newMFAService(t, st, nil)
	svc.TOTP.Throttle = otpx.Throttle{Factor: time.Second}

	enrollment, err := svc.EnrollTOTP(ctx, "user-1", "alice@example.com")
	require.NoError(t, err)

	_, err = svc.ConfirmTOTP(ctx, "user-1", "bogus-code")
	require.ErrorIs(t, err, ErrInvalidCode)

	// Immediate retry is blocked before the code is even looked at, and the
	// failure count stays where it was.
	code, err := svc.TOTP.Config.GenerateCode(enrollment.Secret, svc.TOTP.Config.Counter(time.Now().UTC()))
	require.NoError(t, err)

	_, err = svc.ConfirmTOTP(ctx, "user-1", code)
	require.ErrorIs(t, err, otpx.ErrThrottled)

	var throttled *otpx.ThrottledError
	require.True(t, errors.As(err, &throttled))
	require.Positive(t, throttled.RetryAfter)

	device, err := st.TOTPDevices().GetTOTPDeviceByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, 1, device.State.Throttle.FailureCount)
}

func TestVerifyTOTP(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	b := newTestBackend()
	svc := newMFAService(t, st, nil)

	login := &LoginService{Store: st, Backend: b}
	result, err := login.Login(ctx, "user-1", testPlatform, "device-1", true, "")
	require.NoError(t, err)

	t.Run("not enrolled", func(t *testing.T) {
		_, err := svc.VerifyTOTP(ctx, "user-1", result.RefreshTokenID, "123456")
		require.ErrorIs(t, err, ErrMFANotEnrolled)
	})

	t.Run("unconfirmed device does not satisfy step-up", func(t *testing.T) {
		_, err := svc.EnrollTOTP(ctx, "user-2", "bob@example.com")
		require.NoError(t, err)

		_, err = svc.VerifyTOTP(ctx, "user-2", "", "123456")
		require.ErrorIs(t, err, ErrMFANotEnrolled)
	})

	secret, _ := enrollAndConfirm(t, svc, "user-1")

	t.Run("wrong code reports false without stamping", func(t *testing.T) {
		ok, err := svc.VerifyTOTP(ctx, "user-1", result.RefreshTokenID, "wrong-code")
		require.NoError(t, err)
		require.False(t, ok)

		record, err := st.RefreshTokens().GetRefreshTokenByID(ctx, result.RefreshTokenID)
		require.NoError(t, err)
		require.False(t, record.MultiFactorAuth)
	})

	t.Run("correct code stamps the refresh record", func(t *testing.T) {
		ok, err := svc.VerifyTOTP(ctx, "user-1", result.RefreshTokenID, nextCode(t, svc, secret))
		require.NoError(t, err)
		require.True(t, ok)

		record, err := st.RefreshTokens().GetRefreshTokenByID(ctx, result.RefreshTokenID)
		require.NoError(t, err)
		require.True(t, record.MultiFactorAuth)
		require.Equal(t, domain.MFARefAuthenticator, record.MultiFactorRef)
		require.NotNil(t, record.MultiFactorExpires)
		require.WithinDuration(t, time.Now().UTC().Add(DefaultMFASessionTTL), *record.MultiFactorExpires, time.Minute)

		// A freshly refreshed access token now carries the verification
		tokens := &TokenService{Store: st, Backend: b}
		pair, err := tokens.Refresh(ctx, result.Pair.RefreshToken)
		require.NoError(t, err)

		access, err := b.ParseAccessToken(pair.AccessToken, time.Now().UTC())
		require.NoError(t, err)
		require.True(t, access.MultiFactor())

		ref, okRef := access.MultiFactorRef()
		require.True(t, okRef)
		require.Equal(t, domain.MFARefAuthenticator, ref)
	})
}

func TestRemoveTOTP(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	svc := newMFAService(t, st, nil)

	secret, _ := enrollAndConfirm(t, svc, "user-1")

	t.Run("wrong code keeps the device", func(t *testing.T) {
		err := svc.RemoveTOTP(ctx, "user-1", "wrong-code")
		require.ErrorIs(t, err, ErrInvalidCode)

		_, err = st.TOTPDevices().GetTOTPDeviceByUser(ctx, "user-1")
		require.NoError(t, err)
	})

	t.Run("correct code unenrolls and drops backup codes", func(t *testing.T) {
		require.NoError(t, svc.RemoveTOTP(ctx, "user-1", nextCode(t, svc, secret)))

		_, err := st.TOTPDevices().GetTOTPDeviceByUser(ctx, "user-1")
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = st.BackupCodes().GetBackupCodeSetByUser(ctx, "user-1")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("removing again fails", func(t *testing.T) {
		err := svc.RemoveTOTP(ctx, "user-1", "123456")
		require.ErrorIs(t, err, ErrMFANotEnrolled)
	})
}

func TestPinChallengeFlow(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	b := newTestBackend()
	sender := &capturePinSender{}
	svc := newMFAService(t, st, sender)

	login := &LoginService{Store: st, Backend: b}
	result, err := login.Login(ctx, "user-1", testPlatform, "device-1", true, "")
	require.NoError(t, err)

	require.NoError(t, svc.GeneratePin(ctx, "user-1", domain.PinChannelEmail, "alice@example.com"))
	require.Equal(t, domain.PinChannelEmail, sender.channel)
	require.Equal(t, "alice@example.com", sender.destination)
	require.Len(t, sender.pin, 6)

	t.Run("regeneration inside the cooldown is rejected", func(t *testing.T) {
		err := svc.GeneratePin(ctx, "user-1", domain.PinChannelEmail, "alice@example.com")
		require.ErrorIs(t, err, otpx.ErrCooldown)
	})

	t.Run("wrong pin reports false", func(t *testing.T) {
		ok, err := svc.VerifyPin(ctx, "user-1", result.RefreshTokenID, domain.PinChannelEmail, "not-it")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("correct pin verifies and stamps the channel reference", func(t *testing.T) {
		ok, err := svc.VerifyPin(ctx, "user-1", result.RefreshTokenID, domain.PinChannelEmail, sender.pin)
		require.NoError(t, err)
		require.True(t, ok)

		record, err := st.RefreshTokens().GetRefreshTokenByID(ctx, result.RefreshTokenID)
		require.NoError(t, err)
		require.True(t, record.MultiFactorAuth)
		require.Equal(t, domain.MFARefEmail, record.MultiFactorRef)
	})

	t.Run("consumed pin does not verify twice", func(t *testing.T) {
		ok, err := svc.VerifyPin(ctx, "user-1", result.RefreshTokenID, domain.PinChannelEmail, sender.pin)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("verifying with no challenge fails", func(t *testing.T) {
		_, err := svc.VerifyPin(ctx, "user-1", result.RefreshTokenID, domain.PinChannelMobile, "123456")
		require.ErrorIs(t, err, ErrMFANotEnrolled)
	})

	t.Run("mobile channel stamps its own reference", func(t *testing.T) {
		require.NoError(t, svc.GeneratePin(ctx, "user-1", domain.PinChannelMobile, "+61400000000"))

		ok, err := svc.VerifyPin(ctx, "user-1", result.RefreshTokenID, domain.PinChannelMobile, sender.pin)
		require.NoError(t, err)
		require.True(t, ok)

		record, err := st.RefreshTokens().GetRefreshTokenByID(ctx, result.RefreshTokenID)
		require.NoError(t, err)
		require.Equal(t, domain.MFARefMobile, record.MultiFactorRef)
	})
}

func TestGeneratePinToleratesDeliveryFailure(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	sender := &capturePinSender{err: errors.New("smtp down")}
	svc := newMFAService(t, st, sender)

	// The challenge is durably written before delivery is attempted, so a
	// failed send is not an error for the caller.
	require.NoError(t, svc.GeneratePin(ctx, "user-1", domain.PinChannelEmail, "alice@example.com"))

	challenge, err := st.PinChallenges().GetPinChallenge(ctx, "user-1", domain.PinChannelEmail)
	require.NoError(t, err)
	require.NotEmpty(t, challenge.State.PinHash)
}

func TestBackupCodeFlow(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	b := newTestBackend()
	svc := newMFAService(t, st, nil)

	login := &LoginService{Store: st, Backend: b}
	result, err := login.Login(ctx, "user-1", testPlatform, "device-1", true, "")
	require.NoError(t, err)

	_, codes := enrollAndConfirm(t, svc, "user-1")

	t.Run("a code verifies exactly once", func(t *testing.T) {
		ok, err := svc.VerifyBackupCode(ctx, "user-1", result.RefreshTokenID, codes[0])
		require.NoError(t, err)
		require.True(t, ok)

		record, err := st.RefreshTokens().GetRefreshTokenByID(ctx, result.RefreshTokenID)
		require.NoError(t, err)
		require.Equal(t, domain.MFARefBackupCode, record.MultiFactorRef)

		ok, err = svc.VerifyBackupCode(ctx, "user-1", result.RefreshTokenID, codes[0])
		require.NoError(t, err)
		require.False(t, ok, "consumption must persist across calls")
	})

	t.Run("regeneration invalidates the old batch", func(t *testing.T) {
		fresh, err := svc.RegenerateBackupCodes(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, fresh, 10)

		ok, err := svc.VerifyBackupCode(ctx, "user-1", result.RefreshTokenID, codes[1])
		require.NoError(t, err)
		require.False(t, ok, "old batch must be dead")

		ok, err = svc.VerifyBackupCode(ctx, "user-1", result.RefreshTokenID, fresh[0])
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("no batch at all", func(t *testing.T) {
		_, err := svc.VerifyBackupCode(ctx, "nobody", "", "aaaa-bbbb-cccc-dddd")
		require.ErrorIs(t, err, ErrMFANotEnrolled)
	})
}

func TestSecurityCodeFlow(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	b := newTestBackend()
	svc := newMFAService(t, st, nil)

	login := &LoginService{Store: st, Backend: b}
	result, err := login.Login(ctx, "user-1", testPlatform, "device-1", true, "")
	require.NoError(t, err)

	t.Run("verifying before setting fails", func(t *testing.T) {
		_, err := svc.VerifySecurityCode(ctx, "user-1", result.RefreshTokenID, "4812")
		require.ErrorIs(t, err, ErrMFANotEnrolled)
	})

	require.NoError(t, svc.SetSecurityCode(ctx, "user-1", "4812"))

	t.Run("wrong code reports false", func(t *testing.T) {
		ok, err := svc.VerifySecurityCode(ctx, "user-1", result.RefreshTokenID, "0000")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("correct code verifies and is reusable", func(t *testing.T) {
		for range 2 {
			ok, err := svc.VerifySecurityCode(ctx, "user-1", result.RefreshTokenID, "4812")
			require.NoError(t, err)
			require.True(t, ok)
		}

		record, err := st.RefreshTokens().GetRefreshTokenByID(ctx, result.RefreshTokenID)
		require.NoError(t, err)
		require.Equal(t, domain.MFARefSecurityCode, record.MultiFactorRef)
	})

	t.Run("replacing the code invalidates the old one", func(t *testing.T) {
		require.NoError(t, svc.SetSecurityCode(ctx, "user-1", "9933"))

		ok, err := svc.VerifySecurityCode(ctx, "user-1", result.RefreshTokenID, "4812")
		require.NoError(t, err)
		require.False(t, ok)
	})
}
