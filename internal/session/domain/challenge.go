package domain

import (
	"time"

	"github.com/aussiebroadwan/passport/pkg/otpx"
)

// PinChannel distinguishes the two pin-based verifiers, which share the
// algorithm and differ only in where the pin gets delivered.
type PinChannel string

const (
	PinChannelEmail  PinChannel = "email"
	PinChannelMobile PinChannel = "mobile"
)

// TOTPDevice is a user's enrolled authenticator. Confirmed flips once the
// user proves possession by verifying a first code; unconfirmed devices
// never satisfy step-up.
type TOTPDevice struct {
	ID        string
	UserID    string
	Confirmed bool

	// EnrolledAt anchors the re-enrollment cooldown.
	EnrolledAt time.Time

	State     otpx.TOTPState
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TOTPEnrollment is handed back once at enrollment time so the user can
// load the secret into an authenticator app.
type TOTPEnrollment struct {
	Secret  string // base32 encoded
	URL     string // otpauth:// URL for QR code generation
	Issuer  string
	Account string
}

// PinChallenge is a pending email or mobile OTP.
type PinChallenge struct {
	ID     string
	UserID string

	Channel PinChannel

	// Destination is where the pin was sent (address or number), kept for
	// audit and resend.
	Destination string

	State     otpx.PinState
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BackupCodeSet is a user's current batch of single-use recovery codes.
type BackupCodeSet struct {
	ID        string
	UserID    string
	State     otpx.BackupState
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SecurityCode is a user's long-lived hashed pin.
type SecurityCode struct {
	ID        string
	UserID    string
	State     otpx.SecurityCodeState
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Multi-factor reference values recorded on tokens when a verifier passes.
const (
	MFARefAuthenticator = "authenticator"
	MFARefEmail         = "email"
	MFARefMobile        = "mobile"
	MFARefBackupCode    = "backup_code"
	MFARefSecurityCode  = "security_code"
	MFARefFirstLogin    = "first_login"
)
