package service

import (
	"context"
	"fmt"
	"time"

	"github.com/aussiebroadwan/passport/internal/session/domain"
	"github.com/aussiebroadwan/passport/internal/session/store"
	"github.com/aussiebroadwan/passport/pkg/idx"
	"github.com/aussiebroadwan/passport/pkg/jwtx"
	"github.com/aussiebroadwan/passport/pkg/slogx"
)

// DefaultMFASessionTTL is the step-up grace window when none is configured.
const DefaultMFASessionTTL = 30 * time.Minute

// LoginService turns an authenticated identity into a session, a refresh
// token record and a signed token pair. Who the user is and whether their
// credentials were correct is the caller's problem. By the time Login runs,
// identity is settled.
type LoginService struct {
	Store   store.Store
	Backend *jwtx.Backend

	// MFASessionTTL bounds the step-up grace window stamped when login
	// itself pre-authorizes multi-factor. Zero means DefaultMFASessionTTL.
	MFASessionTTL time.Duration
}

// LoginResult is the full outcome: the signed pair plus the record ids the
// caller needs for follow-up step-up calls.
type LoginResult struct {
	Pair           domain.TokenPair
	SessionID      string
	RefreshTokenID string
	MFARequired    bool
}

// Login upserts the session for (user, platform, device), creates a fresh
// refresh token record under it and derives the signed pair.
//
// mfaRequired is computed by the caller as "has this user ever logged in
// before". When false (first-ever login) the record is pre-authorized:
// mfa=true with a short grace expiry and the supplied reference, so the very
// first session isn't immediately forced through a second factor. Return
// logins start with mfa=false and must step up through a verifier.
func (s *LoginService) Login(
	ctx context.Context,
	userID string,
	platform domain.Platform,
	deviceID string,
	mfaRequired bool,
	mfaRef string,
) (LoginResult, error) {
	now := time.Now().UTC()
	log := slogx.FromContext(ctx)

	record := domain.RefreshToken{
		ID:              idx.New().String(),
		Subject:         userID,
		Audience:        platform.SubID,
		IssuedAt:        now,
		MultiFactorAuth: !mfaRequired,
	}
	if !mfaRequired {
		expires := now.Add(s.mfaSessionTTL())
		record.MultiFactorExpires = &expires
		if mfaRef == "" {
			mfaRef = domain.MFARefFirstLogin
		}
		record.MultiFactorRef = mfaRef
	}

	// Derived tokens carry the platform classification.
	record.ExtraClaims = jwtx.ClaimSet{
		s.Backend.Codec.Names.PlatformType: string(platform.Type),
	}

	var session domain.Session
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		session, err = tx.Sessions().Upsert(ctx, domain.Session{
			ID:           idx.New().String(),
			UserID:       userID,
			PlatformID:   platform.ID,
			DeviceID:     deviceID,
			IsMobile:     platform.IsMobile(),
			LastAuthTime: now,
		})
		if err != nil {
			return fmt.Errorf("upsert session: %w", err)
		}

		record.SessionID = session.ID
		if err := tx.RefreshTokens().CreateRefreshToken(ctx, record); err != nil {
			return fmt.Errorf("create refresh token: %w", err)
		}
		return nil
	})
	if err != nil {
		return LoginResult{}, err
	}

	pair, err := signPair(s.Backend, &record, nil, now)
	if err != nil {
		return LoginResult{}, err
	}

	log.Info("login",
		"user_id", userID,
		"session_id", session.ID,
		"platform_type", string(platform.Type),
		"mfa_required", mfaRequired,
	)

	return LoginResult{
		Pair:           pair,
		SessionID:      session.ID,
		RefreshTokenID: record.ID,
		MFARequired:    mfaRequired,
	}, nil
}

func (s *LoginService) mfaSessionTTL() time.Duration {
	if s.MFASessionTTL > 0 {
		return s.MFASessionTTL
	}
	return DefaultMFASessionTTL
}

// signPair derives and signs the access/refresh pair off a record.
func signPair(b *jwtx.Backend, record *domain.RefreshToken, plugins []domain.TokenPlugin, now time.Time) (domain.TokenPair, error) {
	accessToken := record.AccessToken(b, plugins, nil, now)
	access, err := accessToken.SignedString()
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := record.RefreshSessionToken(b, plugins, nil, now).SignedString()
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    accessToken.Lifetime / time.Second,
	}, nil
}
