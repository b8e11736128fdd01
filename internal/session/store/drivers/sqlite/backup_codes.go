package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/passport/internal/session/domain"
)

type backupCodesRepo struct {
	q dbtx
}

func (r *backupCodesRepo) UpsertBackupCodeSet(ctx context.Context, s domain.BackupCodeSet) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO backup_code_sets (
			id, user_id, code_hashes, used_hashes, generated_at,
			last_used_at, failure_count, failure_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			id            = excluded.id,
			code_hashes   = excluded.code_hashes,
			used_hashes   = excluded.used_hashes,
			generated_at  = excluded.generated_at,
			last_used_at  = excluded.last_used_at,
			failure_count = excluded.failure_count,
			failure_time  = excluded.failure_time,
			updated_at    = CURRENT_TIMESTAMP`,
		s.ID, s.UserID, joinList(s.State.CodeHashes), joinList(s.State.UsedHashes),
		mapZeroTime(s.State.GeneratedAt), mapZeroTime(s.State.LastUsedAt),
		s.State.Throttle.FailureCount, mapZeroTime(s.State.Throttle.FailureTime),
	)
	return err
}

func (r *backupCodesRepo) GetBackupCodeSetByUser(ctx context.Context, userID string) (domain.BackupCodeSet, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, user_id, code_hashes, used_hashes, generated_at,
		       last_used_at, failure_count, failure_time, created_at, updated_at
		FROM backup_code_sets WHERE user_id = ?`, userID)

	var (
		s           domain.BackupCodeSet
		codeHashes  string
		usedHashes  string
		generatedAt sql.NullTime
		lastUsedAt  sql.NullTime
		failureTime sql.NullTime
	)
	err := row.Scan(
		&s.ID, &s.UserID, &codeHashes, &usedHashes, &generatedAt,
		&lastUsedAt, &s.State.Throttle.FailureCount, &failureTime,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return domain.BackupCodeSet{}, mapNotFound(err)
	}

	s.State.CodeHashes = splitList(codeHashes)
	s.State.UsedHashes = splitList(usedHashes)
	s.State.GeneratedAt = mapNullTime(generatedAt)
	s.State.LastUsedAt = mapNullTime(lastUsedAt)
	s.State.Throttle.FailureTime = mapNullTime(failureTime)
	return s, nil
}

func (r *backupCodesRepo) UpdateBackupCodeSetState(ctx context.Context, s domain.BackupCodeSet) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE backup_code_sets SET
			used_hashes   = ?,
			last_used_at  = ?,
			failure_count = ?,
			failure_time  = ?,
			updated_at    = CURRENT_TIMESTAMP
		WHERE user_id = ?`,
		joinList(s.State.UsedHashes), mapZeroTime(s.State.LastUsedAt),
		s.State.Throttle.FailureCount, mapZeroTime(s.State.Throttle.FailureTime),
		s.UserID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *backupCodesRepo) DeleteBackupCodeSet(ctx context.Context, userID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM backup_code_sets WHERE user_id = ?`, userID)
	return err
}
