package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/passport/internal/session/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite today)
// implement this. Each entity gets a sub-repository exposing only the query
// methods actually used, instead of a generic query builder.
type Store interface {
	Sessions() Sessions
	RefreshTokens() RefreshTokens
	TokenPlugins() TokenPlugins
	TOTPDevices() TOTPDevices
	PinChallenges() PinChallenges
	BackupCodes() BackupCodes
	SecurityCodes() SecurityCodes

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST Commit() or Rollback() the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction, rolling back when fn errors
	// and committing otherwise. Verifier state machines run through this so
	// the check-then-act throttle sequence is serialised per record.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store: same repositories plus commit/rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Sessions interface {
	// Upsert atomically gets-or-creates the session for s's
	// (user, platform, device) triple. On conflict the existing row keeps
	// its id and creation stamp; last_auth_time is bumped. Returns the row
	// as stored.
	Upsert(ctx context.Context, s domain.Session) (domain.Session, error)

	// GetSessionByID returns a session by id.
	GetSessionByID(ctx context.Context, id string) (domain.Session, error)

	// DeleteSession removes the session; refresh tokens cascade away.
	DeleteSession(ctx context.Context, id string) error

	// DeleteIdleSessions removes sessions with no remaining refresh tokens
	// whose last_auth_time predates cutoff.
	DeleteIdleSessions(ctx context.Context, cutoff time.Time) error
}

type RefreshTokens interface {
	// CreateRefreshToken stores a new record.
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error

	// GetRefreshTokenByID returns the record, revoked or not. Callers
	// decide what revoked means for them.
	GetRefreshTokenByID(ctx context.Context, id string) (domain.RefreshToken, error)

	// UpdateMultiFactor records a passed step-up verification.
	UpdateMultiFactor(ctx context.Context, id string, expires time.Time, ref string) error

	// SetPluginNames replaces the ordered plugin-name list.
	SetPluginNames(ctx context.Context, id string, names []string) error

	// RevokeRefreshToken flips revoked. Terminal.
	RevokeRefreshToken(ctx context.Context, id string) error

	// RevokeSessionRefreshTokens revokes every token under a session.
	RevokeSessionRefreshTokens(ctx context.Context, sessionID string) error

	// DeleteExpiredRefreshTokens removes records whose validity anchor
	// (not_before ?? issued_at) predates cutoff. Housekeeping computes
	// cutoff as now - refresh lifetime.
	DeleteExpiredRefreshTokens(ctx context.Context, cutoff time.Time) error
}

type TokenPlugins interface {
	// UpsertTokenPlugin writes the plugin claims, replacing any existing
	// row for the same (refresh_token_id, name).
	UpsertTokenPlugin(ctx context.Context, p domain.TokenPlugin) error

	// ListTokenPlugins returns every plugin attached to a refresh token.
	ListTokenPlugins(ctx context.Context, refreshTokenID string) ([]domain.TokenPlugin, error)
}

type TOTPDevices interface {
	// UpsertTOTPDevice writes the device, replacing a user's existing one
	// (re-enrollment).
	UpsertTOTPDevice(ctx context.Context, d domain.TOTPDevice) error

	// GetTOTPDeviceByUser returns the user's device.
	GetTOTPDeviceByUser(ctx context.Context, userID string) (domain.TOTPDevice, error)

	// UpdateTOTPDeviceState persists verifier state (counter, throttle,
	// confirmation) after a verify call.
	UpdateTOTPDeviceState(ctx context.Context, d domain.TOTPDevice) error

	// DeleteTOTPDevice removes the user's device.
	DeleteTOTPDevice(ctx context.Context, userID string) error
}

type PinChallenges interface {
	// UpsertPinChallenge writes the challenge for (user, channel).
	UpsertPinChallenge(ctx context.Context, c domain.PinChallenge) error

	// GetPinChallenge returns the user's challenge on a channel.
	GetPinChallenge(ctx context.Context, userID string, channel domain.PinChannel) (domain.PinChallenge, error)

	// UpdatePinChallengeState persists verifier state after a verify call.
	UpdatePinChallengeState(ctx context.Context, c domain.PinChallenge) error

	// DeleteExpiredPinChallenges removes challenges whose validity window
	// closed before cutoff.
	DeleteExpiredPinChallenges(ctx context.Context, cutoff time.Time) error
}

type BackupCodes interface {
	// UpsertBackupCodeSet writes the user's batch, replacing any previous.
	UpsertBackupCodeSet(ctx context.Context, s domain.BackupCodeSet) error

	// GetBackupCodeSetByUser returns the user's current batch.
	GetBackupCodeSetByUser(ctx context.Context, userID string) (domain.BackupCodeSet, error)

	// UpdateBackupCodeSetState persists the used-set and throttle.
	UpdateBackupCodeSetState(ctx context.Context, s domain.BackupCodeSet) error

	// DeleteBackupCodeSet removes the user's batch.
	DeleteBackupCodeSet(ctx context.Context, userID string) error
}

type SecurityCodes interface {
	// UpsertSecurityCode writes the user's code record.
	UpsertSecurityCode(ctx context.Context, c domain.SecurityCode) error

	// GetSecurityCodeByUser returns the user's code record.
	GetSecurityCodeByUser(ctx context.Context, userID string) (domain.SecurityCode, error)

	// UpdateSecurityCodeState persists throttle state after a verify call.
	UpdateSecurityCodeState(ctx context.Context, c domain.SecurityCode) error
}
