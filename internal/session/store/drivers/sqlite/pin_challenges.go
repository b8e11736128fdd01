package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/passport/internal/session/domain"
)

type pinChallengesRepo struct {
	q dbtx
}

func (r *pinChallengesRepo) UpsertPinChallenge(ctx context.Context, c domain.PinChallenge) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO pin_challenges (
			id, user_id, channel, destination, pin_hash, issued_at,
			valid_until, last_used_at, failure_count, failure_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, channel) DO UPDATE SET
			destination   = excluded.destination,
			pin_hash      = excluded.pin_hash,
			issued_at     = excluded.issued_at,
			valid_until   = excluded.valid_until,
			last_used_at  = excluded.last_used_at,
			failure_count = excluded.failure_count,
			failure_time  = excluded.failure_time,
			updated_at    = CURRENT_TIMESTAMP`,
		c.ID, c.UserID, string(c.Channel), c.Destination, c.State.PinHash,
		mapZeroTime(c.State.IssuedAt), mapZeroTime(c.State.ValidUntil),
		mapZeroTime(c.State.LastUsedAt),
		c.State.Throttle.FailureCount, mapZeroTime(c.State.Throttle.FailureTime),
	)
	return err
}

func (r *pinChallengesRepo) GetPinChallenge(ctx context.Context, userID string, channel domain.PinChannel) (domain.PinChallenge, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, user_id, channel, destination, pin_hash, issued_at,
		       valid_until, last_used_at, failure_count, failure_time,
		       created_at, updated_at
		FROM pin_challenges WHERE user_id = ? AND channel = ?`,
		userID, string(channel))

	var (
		c           domain.PinChallenge
		channelStr  string
		issuedAt    sql.NullTime
		validUntil  sql.NullTime
		lastUsedAt  sql.NullTime
		failureTime sql.NullTime
	)
	err := row.Scan(
		&c.ID, &c.UserID, &channelStr, &c.Destination, &c.State.PinHash,
		&issuedAt, &validUntil, &lastUsedAt,
		&c.State.Throttle.FailureCount, &failureTime, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return domain.PinChallenge{}, mapNotFound(err)
	}

	c.Channel = domain.PinChannel(channelStr)
	c.State.IssuedAt = mapNullTime(issuedAt)
	c.State.ValidUntil = mapNullTime(validUntil)
	c.State.LastUsedAt = mapNullTime(lastUsedAt)
	c.State.Throttle.FailureTime = mapNullTime(failureTime)
	return c, nil
}

func (r *pinChallengesRepo) UpdatePinChallengeState(ctx context.Context, c domain.PinChallenge) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE pin_challenges SET
			pin_hash      = ?,
			issued_at     = ?,
			valid_until   = ?,
			last_used_at  = ?,
			failure_count = ?,
			failure_time  = ?,
			updated_at    = CURRENT_TIMESTAMP
		WHERE user_id = ? AND channel = ?`,
		c.State.PinHash, mapZeroTime(c.State.IssuedAt), mapZeroTime(c.State.ValidUntil),
		mapZeroTime(c.State.LastUsedAt),
		c.State.Throttle.FailureCount, mapZeroTime(c.State.Throttle.FailureTime),
		c.UserID, string(c.Channel),
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *pinChallengesRepo) DeleteExpiredPinChallenges(ctx context.Context, cutoff time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		DELETE FROM pin_challenges WHERE valid_until IS NOT NULL AND valid_until < ?`, cutoff)
	return err
}
