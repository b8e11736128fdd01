package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/passport/internal/session/domain"
	"github.com/aussiebroadwan/passport/internal/session/store"
	"github.com/aussiebroadwan/passport/pkg/jwtx"
	"github.com/aussiebroadwan/passport/pkg/slogx"
)

var (
	// ErrInvalidRefresh covers every way a refresh can fail: malformed or
	// badly signed token, unknown/revoked/expired record. Collapsed on
	// purpose so callers can't probe which check tripped.
	ErrInvalidRefresh = errors.New("invalid_refresh_token")
)

// TokenService owns the refresh → access derivation protocol and record
// revocation.
type TokenService struct {
	Store   store.Store
	Backend *jwtx.Backend
}

// Refresh exchanges a signed refresh token for a fresh pair. The record is
// consulted on every call, so revocation and expiry reflect current store
// state, never a cached view.
func (s *TokenService) Refresh(ctx context.Context, encoded string) (domain.TokenPair, error) {
	now := time.Now().UTC()
	log := slogx.FromContext(ctx)

	record, plugins, err := s.liveRecord(ctx, encoded, now)
	if err != nil {
		return domain.TokenPair{}, err
	}

	pair, err := signPair(s.Backend, &record, plugins, now)
	if err != nil {
		return domain.TokenPair{}, err
	}

	log.Info("token refreshed", "refresh_token_id", record.ID, "session_id", record.SessionID)
	return pair, nil
}

// Revoke terminally flags the record behind a signed refresh token. Already
// revoked or expired tokens revoke to the same end state, so those cases
// succeed silently.
func (s *TokenService) Revoke(ctx context.Context, encoded string) error {
	token, err := s.Backend.ParseRefreshToken(encoded, time.Now().UTC())
	if err != nil {
		return ErrInvalidRefresh
	}
	rti, ok := token.RefreshTokenID()
	if !ok {
		return ErrInvalidRefresh
	}

	if err := s.Store.RefreshTokens().RevokeRefreshToken(ctx, rti); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("revoke refresh token: %w", err)
	}

	slogx.FromContext(ctx).Info("refresh token revoked", "refresh_token_id", rti)
	return nil
}

// RevokeSession cascades revocation over every refresh token a session owns.
// Subsequent refresh attempts against any of them fail.
func (s *TokenService) RevokeSession(ctx context.Context, sessionID string) error {
	if err := s.Store.RefreshTokens().RevokeSessionRefreshTokens(ctx, sessionID); err != nil {
		return fmt.Errorf("revoke session refresh tokens: %w", err)
	}
	slogx.FromContext(ctx).Info("session revoked", "session_id", sessionID)
	return nil
}

// AttachPlugin idempotently upserts a named claims contributor onto the
// record and appends the name to the merge order if not already present.
// Re-attaching replaces the claims but keeps the original position.
func (s *TokenService) AttachPlugin(ctx context.Context, refreshTokenID, name string, claims jwtx.ClaimSet) error {
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		record, err := tx.RefreshTokens().GetRefreshTokenByID(ctx, refreshTokenID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidRefresh
			}
			return err
		}

		err = tx.TokenPlugins().UpsertTokenPlugin(ctx, domain.TokenPlugin{
			RefreshTokenID: refreshTokenID,
			Name:           name,
			Claims:         claims,
		})
		if err != nil {
			return fmt.Errorf("upsert token plugin: %w", err)
		}

		for _, existing := range record.PluginNames {
			if existing == name {
				return nil
			}
		}
		names := append(record.PluginNames, name)
		if err := tx.RefreshTokens().SetPluginNames(ctx, refreshTokenID, names); err != nil {
			return fmt.Errorf("set plugin names: %w", err)
		}
		return nil
	})
}

// AttachTenant installs the tenant-selection plugin, mapping the selection
// onto the backend's configured claim names.
func (s *TokenService) AttachTenant(ctx context.Context, refreshTokenID string, sel domain.TenantSelection) error {
	n := s.Backend.Codec.Names
	claims := jwtx.ClaimSet{
		n.TenantID:    sel.TenantID,
		n.TenantOwner: sel.TenantOwner,
	}
	if len(sel.RoleIDs) > 0 {
		claims[n.RoleIDs] = sel.RoleIDs
	}
	return s.AttachPlugin(ctx, refreshTokenID, domain.PluginTenant, claims)
}

// liveRecord parses the encoded refresh token, loads its record and checks
// liveness. Every failure collapses to ErrInvalidRefresh except genuine
// store faults.
func (s *TokenService) liveRecord(ctx context.Context, encoded string, now time.Time) (domain.RefreshToken, []domain.TokenPlugin, error) {
	log := slogx.FromContext(ctx)

	token, err := s.Backend.ParseRefreshToken(encoded, now)
	if err != nil {
		log.Warn("refresh token rejected", "err", err)
		return domain.RefreshToken{}, nil, ErrInvalidRefresh
	}

	rti, ok := token.RefreshTokenID()
	if !ok {
		return domain.RefreshToken{}, nil, ErrInvalidRefresh
	}

	record, err := s.Store.RefreshTokens().GetRefreshTokenByID(ctx, rti)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.RefreshToken{}, nil, ErrInvalidRefresh
		}
		return domain.RefreshToken{}, nil, fmt.Errorf("get refresh token: %w", err)
	}

	if record.Revoked || !record.IsAlive(now, s.Backend.RefreshLifetime()) {
		log.Warn("refresh token dead", "refresh_token_id", rti, "revoked", record.Revoked)
		return domain.RefreshToken{}, nil, ErrInvalidRefresh
	}

	plugins, err := s.Store.TokenPlugins().ListTokenPlugins(ctx, rti)
	if err != nil {
		return domain.RefreshToken{}, nil, fmt.Errorf("list token plugins: %w", err)
	}
	return record, plugins, nil
}
