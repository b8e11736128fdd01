package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/passport/internal/session/domain"
)

type securityCodesRepo struct {
	q dbtx
}

func (r *securityCodesRepo) UpsertSecurityCode(ctx context.Context, c domain.SecurityCode) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO security_codes (
			id, user_id, pin_hash, last_used_at, failure_count, failure_time
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			id            = excluded.id,
			pin_hash      = excluded.pin_hash,
			last_used_at  = excluded.last_used_at,
			failure_count = excluded.failure_count,
			failure_time  = excluded.failure_time,
			updated_at    = CURRENT_TIMESTAMP`,
		c.ID, c.UserID, c.State.PinHash, mapZeroTime(c.State.LastUsedAt),
		c.State.Throttle.FailureCount, mapZeroTime(c.State.Throttle.FailureTime),
	)
	return err
}

func (r *securityCodesRepo) GetSecurityCodeByUser(ctx context.Context, userID string) (domain.SecurityCode, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, user_id, pin_hash, last_used_at, failure_count, failure_time,
		       created_at, updated_at
		FROM security_codes WHERE user_id = ?`, userID)

	var (
		c           domain.SecurityCode
		lastUsedAt  sql.NullTime
		failureTime sql.NullTime
	)
	err := row.Scan(
		&c.ID, &c.UserID, &c.State.PinHash, &lastUsedAt,
		&c.State.Throttle.FailureCount, &failureTime, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return domain.SecurityCode{}, mapNotFound(err)
	}

	c.State.LastUsedAt = mapNullTime(lastUsedAt)
	c.State.Throttle.FailureTime = mapNullTime(failureTime)
	return c, nil
}

func (r *securityCodesRepo) UpdateSecurityCodeState(ctx context.Context, c domain.SecurityCode) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE security_codes SET
			last_used_at  = ?,
			failure_count = ?,
			failure_time  = ?,
			updated_at    = CURRENT_TIMESTAMP
		WHERE user_id = ?`,
		mapZeroTime(c.State.LastUsedAt),
		c.State.Throttle.FailureCount, mapZeroTime(c.State.Throttle.FailureTime),
		c.UserID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}
