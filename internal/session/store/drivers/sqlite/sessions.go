package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/passport/internal/session/domain"
)

type sessionsRepo struct {
	q dbtx
}

// Upsert is the atomic get-or-create on the (user, platform, device)
// triple. Concurrent logins from the same device land on the same row; only
// last_auth_time moves on conflict; is_mobile is stamped at creation and
// never reclassified.
func (r *sessionsRepo) Upsert(ctx context.Context, s domain.Session) (domain.Session, error) {
	row := r.q.QueryRowContext(ctx, `
		INSERT INTO sessions (id, user_id, platform_id, device_id, is_mobile, last_auth_time)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, platform_id, device_id) DO UPDATE SET
			last_auth_time = excluded.last_auth_time,
			updated_at     = CURRENT_TIMESTAMP
		RETURNING id, user_id, platform_id, device_id, is_mobile, last_auth_time, created_at, updated_at`,
		s.ID, s.UserID, s.PlatformID, s.DeviceID, s.IsMobile, s.LastAuthTime,
	)
	return scanSession(row)
}

func (r *sessionsRepo) GetSessionByID(ctx context.Context, id string) (domain.Session, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, user_id, platform_id, device_id, is_mobile, last_auth_time, created_at, updated_at
		FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

func (r *sessionsRepo) DeleteSession(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	return err
}

// DeleteIdleSessions drops sessions that haven't authenticated since cutoff
// and have no refresh tokens left. Run after refresh token cleanup so rows
// orphaned in the same pass get collected too.
func (r *sessionsRepo) DeleteIdleSessions(ctx context.Context, cutoff time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		DELETE FROM sessions
		WHERE last_auth_time < ?
		  AND id NOT IN (SELECT DISTINCT session_id FROM refresh_tokens)`, cutoff)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (domain.Session, error) {
	var s domain.Session
	err := row.Scan(
		&s.ID, &s.UserID, &s.PlatformID, &s.DeviceID,
		&s.IsMobile, &s.LastAuthTime, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return domain.Session{}, mapNotFound(err)
	}
	return s, nil
}
