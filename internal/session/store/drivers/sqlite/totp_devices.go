package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/passport/internal/session/domain"
)

type totpDevicesRepo struct {
	q dbtx
}

// UpsertTOTPDevice replaces a user's device wholesale: re-enrollment resets
// the counter, throttle and confirmation state along with the secret.
func (r *totpDevicesRepo) UpsertTOTPDevice(ctx context.Context, d domain.TOTPDevice) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO totp_devices (
			id, user_id, confirmed, enrolled_at, secret, last_counter,
			last_used_at, failure_count, failure_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			id            = excluded.id,
			confirmed     = excluded.confirmed,
			enrolled_at   = excluded.enrolled_at,
			secret        = excluded.secret,
			last_counter  = excluded.last_counter,
			last_used_at  = excluded.last_used_at,
			failure_count = excluded.failure_count,
			failure_time  = excluded.failure_time,
			updated_at    = CURRENT_TIMESTAMP`,
		d.ID, d.UserID, d.Confirmed, mapZeroTime(d.EnrolledAt), d.State.Secret,
		d.State.LastCounter, mapZeroTime(d.State.LastUsedAt),
		d.State.Throttle.FailureCount, mapZeroTime(d.State.Throttle.FailureTime),
	)
	return err
}

func (r *totpDevicesRepo) GetTOTPDeviceByUser(ctx context.Context, userID string) (domain.TOTPDevice, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, user_id, confirmed, enrolled_at, secret, last_counter,
		       last_used_at, failure_count, failure_time, created_at, updated_at
		FROM totp_devices WHERE user_id = ?`, userID)

	var (
		d           domain.TOTPDevice
		enrolledAt  sql.NullTime
		lastUsedAt  sql.NullTime
		failureTime sql.NullTime
	)
	err := row.Scan(
		&d.ID, &d.UserID, &d.Confirmed, &enrolledAt, &d.State.Secret,
		&d.State.LastCounter, &lastUsedAt,
		&d.State.Throttle.FailureCount, &failureTime, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return domain.TOTPDevice{}, mapNotFound(err)
	}

	d.EnrolledAt = mapNullTime(enrolledAt)
	d.State.LastUsedAt = mapNullTime(lastUsedAt)
	d.State.Throttle.FailureTime = mapNullTime(failureTime)
	return d, nil
}

// UpdateTOTPDeviceState persists the mutable verifier state after a
// verify/confirm call. The secret and enrollment stamp don't move here.
func (r *totpDevicesRepo) UpdateTOTPDeviceState(ctx context.Context, d domain.TOTPDevice) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE totp_devices SET
			confirmed     = ?,
			last_counter  = ?,
			last_used_at  = ?,
			failure_count = ?,
			failure_time  = ?,
			updated_at    = CURRENT_TIMESTAMP
		WHERE user_id = ?`,
		d.Confirmed, d.State.LastCounter, mapZeroTime(d.State.LastUsedAt),
		d.State.Throttle.FailureCount, mapZeroTime(d.State.Throttle.FailureTime),
		d.UserID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *totpDevicesRepo) DeleteTOTPDevice(ctx context.Context, userID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM totp_devices WHERE user_id = ?`, userID)
	return err
}
