package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/passport/internal/session/domain"
)

type refreshTokensRepo struct {
	q dbtx
}

func (r *refreshTokensRepo) CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	extra, err := claimsToJSON(t.ExtraClaims)
	if err != nil {
		return err
	}

	_, err = r.q.ExecContext(ctx, `
		INSERT INTO refresh_tokens (
			id, session_id, subject, audience, not_before, issued_at,
			multi_factor_auth, multi_factor_expires, multi_factor_ref,
			extra_claims, plugin_names, revoked
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.SessionID, t.Subject, t.Audience,
		mapOptionalTime(t.NotBefore), t.IssuedAt,
		t.MultiFactorAuth, mapOptionalTime(t.MultiFactorExpires), t.MultiFactorRef,
		extra, joinList(t.PluginNames), t.Revoked,
	)
	return err
}

func (r *refreshTokensRepo) GetRefreshTokenByID(ctx context.Context, id string) (domain.RefreshToken, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, session_id, subject, audience, not_before, issued_at,
		       multi_factor_auth, multi_factor_expires, multi_factor_ref,
		       extra_claims, plugin_names, revoked, created_at, updated_at
		FROM refresh_tokens WHERE id = ?`, id)

	var (
		t           domain.RefreshToken
		notBefore   sql.NullTime
		mfExpires   sql.NullTime
		extraClaims string
		pluginNames string
	)
	err := row.Scan(
		&t.ID, &t.SessionID, &t.Subject, &t.Audience, &notBefore, &t.IssuedAt,
		&t.MultiFactorAuth, &mfExpires, &t.MultiFactorRef,
		&extraClaims, &pluginNames, &t.Revoked, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return domain.RefreshToken{}, mapNotFound(err)
	}

	t.NotBefore = mapNullTimePtr(notBefore)
	t.MultiFactorExpires = mapNullTimePtr(mfExpires)
	t.PluginNames = splitList(pluginNames)
	t.ExtraClaims, err = claimsFromJSON(extraClaims)
	if err != nil {
		return domain.RefreshToken{}, err
	}
	return t, nil
}

func (r *refreshTokensRepo) UpdateMultiFactor(ctx context.Context, id string, expires time.Time, ref string) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE refresh_tokens SET
			multi_factor_auth    = 1,
			multi_factor_expires = ?,
			multi_factor_ref     = ?,
			updated_at           = CURRENT_TIMESTAMP
		WHERE id = ?`, expires, ref, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *refreshTokensRepo) SetPluginNames(ctx context.Context, id string, names []string) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE refresh_tokens SET plugin_names = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, joinList(names), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *refreshTokensRepo) RevokeRefreshToken(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked = 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *refreshTokensRepo) RevokeSessionRefreshTokens(ctx context.Context, sessionID string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked = 1, updated_at = CURRENT_TIMESTAMP
		WHERE session_id = ? AND revoked = 0`, sessionID)
	return err
}

// DeleteExpiredRefreshTokens removes rows whose validity anchor predates
// cutoff. The anchor matches domain.RefreshToken.ExpiredTime: not_before
// when set, issued_at otherwise.
func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(ctx context.Context, cutoff time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		DELETE FROM refresh_tokens WHERE COALESCE(not_before, issued_at) < ?`, cutoff)
	return err
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return mapNotFound(sql.ErrNoRows)
	}
	return nil
}
