package sqlite

import (
	"context"

	"github.com/aussiebroadwan/passport/internal/session/domain"
)

type tokenPluginsRepo struct {
	q dbtx
}

// UpsertTokenPlugin relies on the (refresh_token_id, name) primary key so
// concurrent attaches of the same plugin collapse onto one row.
func (r *tokenPluginsRepo) UpsertTokenPlugin(ctx context.Context, p domain.TokenPlugin) error {
	claims, err := claimsToJSON(p.Claims)
	if err != nil {
		return err
	}

	_, err = r.q.ExecContext(ctx, `
		INSERT INTO token_plugins (refresh_token_id, name, claims)
		VALUES (?, ?, ?)
		ON CONFLICT (refresh_token_id, name) DO UPDATE SET
			claims     = excluded.claims,
			updated_at = CURRENT_TIMESTAMP`,
		p.RefreshTokenID, p.Name, claims,
	)
	return err
}

func (r *tokenPluginsRepo) ListTokenPlugins(ctx context.Context, refreshTokenID string) ([]domain.TokenPlugin, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT refresh_token_id, name, claims, created_at, updated_at
		FROM token_plugins WHERE refresh_token_id = ?`, refreshTokenID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plugins []domain.TokenPlugin
	for rows.Next() {
		var (
			p      domain.TokenPlugin
			claims string
		)
		if err := rows.Scan(&p.RefreshTokenID, &p.Name, &claims, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Claims, err = claimsFromJSON(claims)
		if err != nil {
			return nil, err
		}
		plugins = append(plugins, p)
	}
	return plugins, rows.Err()
}
