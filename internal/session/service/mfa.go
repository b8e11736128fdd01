package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/passport/internal/session/domain"
	"github.com/aussiebroadwan/passport/internal/session/store"
	"github.com/aussiebroadwan/passport/pkg/idx"
	"github.com/aussiebroadwan/passport/pkg/otpx"
	"github.com/aussiebroadwan/passport/pkg/slogx"
)

var (
	ErrMFANotEnrolled    = errors.New("mfa_not_enrolled")
	ErrMFAAlreadyEnabled = errors.New("mfa_already_enabled")

	// ErrInvalidCode is the enroll/remove-flow wrong-code error. Step-up
	// verify calls report wrong codes as (false, nil) instead, per the
	// verifier contract.
	ErrInvalidCode = errors.New("invalid_code")
)

// PinSender delivers a generated pin out of band (email or SMS). It is
// invoked only after the challenge state is durably written, so a delivery
// failure never leaves an undeliverable pin as the user's live challenge
// without a record of it.
type PinSender interface {
	SendPin(ctx context.Context, channel domain.PinChannel, destination, pin string) error
}

// MFAService runs the step-up verifier family. Every verify call executes
// inside one transaction: throttle check, comparison, state write and (on
// success) the refresh token's multi-factor stamp all commit together, so
// concurrent attempts against the same record serialise and the backoff
// can't be raced.
type MFAService struct {
	Store  store.Store
	Sender PinSender

	TOTP     otpx.TOTPVerifier
	Pin      otpx.PinVerifier
	Backup   otpx.BackupVerifier
	Security otpx.SecurityCodeVerifier

	// Issuer labels otpauth:// enrollment URLs in authenticator apps.
	Issuer string

	// MFASessionTTL bounds how long a passed verification keeps satisfying
	// step-up. Zero means DefaultMFASessionTTL.
	MFASessionTTL time.Duration
}

// EnrollTOTP mints a device secret for the user and returns the enrollment
// material. The device starts unconfirmed and never satisfies step-up until
// the user proves possession through ConfirmTOTP. Re-enrolling over an
// unconfirmed device replaces it; a confirmed device must be removed first.
func (s *MFAService) EnrollTOTP(ctx context.Context, userID, account string) (domain.TOTPEnrollment, error) {
	existing, err := s.Store.TOTPDevices().GetTOTPDeviceByUser(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return domain.TOTPEnrollment{}, fmt.Errorf("get totp device: %w", err)
	}
	if err == nil && existing.Confirmed {
		return domain.TOTPEnrollment{}, ErrMFAAlreadyEnabled
	}

	key, err := s.TOTP.Config.GenerateKey(s.Issuer, account)
	if err != nil {
		return domain.TOTPEnrollment{}, err
	}

	device := domain.TOTPDevice{
		ID:         idx.New().String(),
		UserID:     userID,
		EnrolledAt: time.Now().UTC(),
		State:      otpx.TOTPState{Secret: key.Secret()},
	}
	if err := s.Store.TOTPDevices().UpsertTOTPDevice(ctx, device); err != nil {
		return domain.TOTPEnrollment{}, fmt.Errorf("store totp device: %w", err)
	}

	return domain.TOTPEnrollment{
		Secret:  key.Secret(),
		URL:     key.URL(),
		Issuer:  s.Issuer,
		Account: account,
	}, nil
}

// ConfirmTOTP verifies the user's first code against their unconfirmed
// device. On success the device is confirmed and a backup code batch is
// generated alongside it; the plaintext codes are returned for one-time
// display.
func (s *MFAService) ConfirmTOTP(ctx context.Context, userID, code string) ([]string, error) {
	now := time.Now().UTC()

	var (
		codes     []string
		wrongCode bool
	)
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		device, err := tx.TOTPDevices().GetTOTPDeviceByUser(ctx, userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrMFANotEnrolled
			}
			return fmt.Errorf("get totp device: %w", err)
		}
		if device.Confirmed {
			return ErrMFAAlreadyEnabled
		}

		ok, err := s.TOTP.Verify(&device.State, code, now)
		if persistErr := tx.TOTPDevices().UpdateTOTPDeviceState(ctx, device); persistErr != nil {
			return fmt.Errorf("persist totp state: %w", persistErr)
		}
		if err != nil {
			return err
		}
		if !ok {
			// Commit the throttle increment, surface the error after.
			wrongCode = true
			return nil
		}

		device.Confirmed = true
		if err := tx.TOTPDevices().UpdateTOTPDeviceState(ctx, device); err != nil {
			return fmt.Errorf("confirm totp device: %w", err)
		}

		batch := domain.BackupCodeSet{ID: idx.New().String(), UserID: userID}
		codes, err = s.Backup.Generate(&batch.State, now)
		if err != nil {
			return err
		}
		if err := tx.BackupCodes().UpsertBackupCodeSet(ctx, batch); err != nil {
			return fmt.Errorf("store backup codes: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if wrongCode {
		return nil, ErrInvalidCode
	}

	slogx.FromContext(ctx).Info("totp confirmed", "user_id", userID)
	return codes, nil
}

// RemoveTOTP deletes the user's device and backup codes after a final code
// check, dropping them back to unenrolled.
func (s *MFAService) RemoveTOTP(ctx context.Context, userID, code string) error {
	now := time.Now().UTC()

	var wrongCode bool
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		device, err := tx.TOTPDevices().GetTOTPDeviceByUser(ctx, userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrMFANotEnrolled
			}
			return fmt.Errorf("get totp device: %w", err)
		}
		if !device.Confirmed {
			return ErrMFANotEnrolled
		}

		ok, err := s.TOTP.Verify(&device.State, code, now)
		if persistErr := tx.TOTPDevices().UpdateTOTPDeviceState(ctx, device); persistErr != nil {
			return fmt.Errorf("persist totp state: %w", persistErr)
		}
		if err != nil {
			return err
		}
		if !ok {
			wrongCode = true
			return nil
		}

		if err := tx.TOTPDevices().DeleteTOTPDevice(ctx, userID); err != nil {
			return fmt.Errorf("delete totp device: %w", err)
		}
		if err := tx.BackupCodes().DeleteBackupCodeSet(ctx, userID); err != nil {
			return fmt.Errorf("delete backup codes: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if wrongCode {
		return ErrInvalidCode
	}
	return nil
}

// VerifyTOTP checks a code against the user's confirmed device and, on
// success, stamps step-up onto the refresh token record. Wrong codes return
// (false, nil) with the throttle advanced; throttled attempts surface a
// typed error without touching state.
func (s *MFAService) VerifyTOTP(ctx context.Context, userID, refreshTokenID, code string) (bool, error) {
	now := time.Now().UTC()

	var verified bool
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		device, err := tx.TOTPDevices().GetTOTPDeviceByUser(ctx, userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrMFANotEnrolled
			}
			return fmt.Errorf("get totp device: %w", err)
		}
		if !device.Confirmed {
			return ErrMFANotEnrolled
		}

		ok, err := s.TOTP.Verify(&device.State, code, now)
		if persistErr := tx.TOTPDevices().UpdateTOTPDeviceState(ctx, device); persistErr != nil {
			return fmt.Errorf("persist totp state: %w", persistErr)
		}
		if err != nil {
			return err
		}
		verified = ok
		if !ok {
			return nil
		}
		return s.stampMultiFactor(ctx, tx, refreshTokenID, domain.MFARefAuthenticator, now)
	})
	return verified, err
}

// GeneratePin mints and stores a pin challenge for (user, channel), then
// hands the plaintext to the sender once the write is durable. Regeneration
// inside the cooldown window fails with a typed error.
func (s *MFAService) GeneratePin(ctx context.Context, userID string, channel domain.PinChannel, destination string) error {
	now := time.Now().UTC()

	var pin string
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		challenge, err := tx.PinChallenges().GetPinChallenge(ctx, userID, channel)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("get pin challenge: %w", err)
			}
			challenge = domain.PinChallenge{
				ID:      idx.New().String(),
				UserID:  userID,
				Channel: channel,
			}
		}
		challenge.Destination = destination

		pin, err = s.Pin.Generate(&challenge.State, now)
		if err != nil {
			return err
		}
		if err := tx.PinChallenges().UpsertPinChallenge(ctx, challenge); err != nil {
			return fmt.Errorf("store pin challenge: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.Sender == nil {
		return nil
	}

	// State is committed; delivery failure is logged, not rolled back. The
	// user can wait out the cooldown and request a resend.
	if err := s.Sender.SendPin(ctx, channel, destination, pin); err != nil {
		slogx.FromContext(ctx).Error("pin delivery failed",
			"user_id", userID, "channel", string(channel), "err", err)
	}
	return nil
}

// VerifyPin checks a delivered pin. Success consumes the challenge and
// stamps step-up with the channel's reference.
func (s *MFAService) VerifyPin(ctx context.Context, userID, refreshTokenID string, channel domain.PinChannel, pin string) (bool, error) {
	now := time.Now().UTC()

	ref := domain.MFARefEmail
	if channel == domain.PinChannelMobile {
		ref = domain.MFARefMobile
	}

	var verified bool
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		challenge, err := tx.PinChallenges().GetPinChallenge(ctx, userID, channel)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrMFANotEnrolled
			}
			return fmt.Errorf("get pin challenge: %w", err)
		}

		ok, err := s.Pin.Verify(&challenge.State, pin, now)
		if persistErr := tx.PinChallenges().UpdatePinChallengeState(ctx, challenge); persistErr != nil {
			return fmt.Errorf("persist pin state: %w", persistErr)
		}
		if err != nil {
			return err
		}
		verified = ok
		if !ok {
			return nil
		}
		return s.stampMultiFactor(ctx, tx, refreshTokenID, ref, now)
	})
	return verified, err
}

// RegenerateBackupCodes replaces the user's batch, invalidating every
// previous code. Gated by the regeneration cooldown.
func (s *MFAService) RegenerateBackupCodes(ctx context.Context, userID string) ([]string, error) {
	now := time.Now().UTC()

	var codes []string
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		batch, err := tx.BackupCodes().GetBackupCodeSetByUser(ctx, userID)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("get backup codes: %w", err)
			}
			batch = domain.BackupCodeSet{ID: idx.New().String(), UserID: userID}
		}

		codes, err = s.Backup.Generate(&batch.State, now)
		if err != nil {
			return err
		}
		if err := tx.BackupCodes().UpsertBackupCodeSet(ctx, batch); err != nil {
			return fmt.Errorf("store backup codes: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return codes, nil
}

// VerifyBackupCode consumes a single-use recovery code. A consumed code is
// appended to the used set and never verifies again.
func (s *MFAService) VerifyBackupCode(ctx context.Context, userID, refreshTokenID, code string) (bool, error) {
	now := time.Now().UTC()

	var verified bool
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		batch, err := tx.BackupCodes().GetBackupCodeSetByUser(ctx, userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrMFANotEnrolled
			}
			return fmt.Errorf("get backup codes: %w", err)
		}

		ok, err := s.Backup.Verify(&batch.State, code, now)
		if persistErr := tx.BackupCodes().UpdateBackupCodeSetState(ctx, batch); persistErr != nil {
			return fmt.Errorf("persist backup state: %w", persistErr)
		}
		if err != nil {
			return err
		}
		verified = ok
		if !ok {
			return nil
		}
		return s.stampMultiFactor(ctx, tx, refreshTokenID, domain.MFARefBackupCode, now)
	})
	return verified, err
}

// SetSecurityCode installs or replaces the user's long-lived pin.
func (s *MFAService) SetSecurityCode(ctx context.Context, userID, pin string) error {
	record, err := s.Store.SecurityCodes().GetSecurityCodeByUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("get security code: %w", err)
		}
		record = domain.SecurityCode{ID: idx.New().String(), UserID: userID}
	}

	if err := s.Security.Set(&record.State, pin); err != nil {
		return err
	}
	if err := s.Store.SecurityCodes().UpsertSecurityCode(ctx, record); err != nil {
		return fmt.Errorf("store security code: %w", err)
	}
	return nil
}

// VerifySecurityCode checks the long-lived pin behind the shared throttle.
func (s *MFAService) VerifySecurityCode(ctx context.Context, userID, refreshTokenID, pin string) (bool, error) {
	now := time.Now().UTC()

	var verified bool
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		record, err := tx.SecurityCodes().GetSecurityCodeByUser(ctx, userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrMFANotEnrolled
			}
			return fmt.Errorf("get security code: %w", err)
		}

		ok, err := s.Security.Verify(&record.State, pin, now)
		if persistErr := tx.SecurityCodes().UpdateSecurityCodeState(ctx, record); persistErr != nil {
			return fmt.Errorf("persist security code state: %w", persistErr)
		}
		if err != nil {
			return err
		}
		verified = ok
		if !ok {
			return nil
		}
		return s.stampMultiFactor(ctx, tx, refreshTokenID, domain.MFARefSecurityCode, now)
	})
	return verified, err
}

// stampMultiFactor records a passed verification on the refresh token: a
// freshly derived access token will carry mfa=true, the grace expiry and the
// verifier reference.
func (s *MFAService) stampMultiFactor(ctx context.Context, tx store.Tx, refreshTokenID, ref string, now time.Time) error {
	if refreshTokenID == "" {
		return nil
	}
	expires := now.Add(s.mfaSessionTTL())
	if err := tx.RefreshTokens().UpdateMultiFactor(ctx, refreshTokenID, expires, ref); err != nil {
		return fmt.Errorf("update multi factor: %w", err)
	}
	return nil
}

func (s *MFAService) mfaSessionTTL() time.Duration {
	if s.MFASessionTTL > 0 {
		return s.MFASessionTTL
	}
	return DefaultMFASessionTTL
}
