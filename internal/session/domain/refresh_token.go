package domain

import (
	"time"

	"github.com/aussiebroadwan/passport/pkg/jwtx"
)

// RefreshToken is the persisted lifecycle record behind a refresh/access
// token pair. It belongs to exactly one Session and derives concrete signed
// tokens on demand. IssuedAt is immutable once set; Revoked is terminal.
type RefreshToken struct {
	ID        string
	SessionID string

	Subject   string
	Audience  string
	NotBefore *time.Time
	IssuedAt  time.Time

	MultiFactorAuth    bool
	MultiFactorExpires *time.Time
	MultiFactorRef     string

	// ExtraClaims are free-form claims merged into every derived token.
	ExtraClaims jwtx.ClaimSet

	// PluginNames lists attached plugins in attach order. Claim merging
	// follows this order, later entries overwriting earlier keys.
	PluginNames []string

	Revoked   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TokenPlugin is an attachable claims contributor associated one-to-one
// with a refresh token record, e.g. tenant-selection claims.
type TokenPlugin struct {
	RefreshTokenID string
	Name           string
	Claims         jwtx.ClaimSet
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ExtraTokenClaims is the plugin claim contribution contract.
func (p TokenPlugin) ExtraTokenClaims() jwtx.ClaimSet { return p.Claims }

// Plugin names known to the platform.
const (
	PluginTenant = "tenant"
)

// Tenant-selection plugin claim keys, resolved through the backend's claim
// name mapping when built.
type TenantSelection struct {
	TenantID    string
	TenantOwner string
	RoleIDs     []string
}

// PluginClaims unions the contributions of every attached plugin, merged in
// PluginNames order. A key contributed twice keeps the later plugin's
// value: last writer wins, matching attach order.
func (r *RefreshToken) PluginClaims(plugins []TokenPlugin) jwtx.ClaimSet {
	byName := make(map[string]TokenPlugin, len(plugins))
	for _, p := range plugins {
		byName[p.Name] = p
	}

	merged := jwtx.ClaimSet{}
	for _, name := range r.PluginNames {
		if p, ok := byName[name]; ok {
			merged.Merge(p.ExtraTokenClaims())
		}
	}
	return merged
}

// baseClaims is the claim set every derived token starts from.
func (r *RefreshToken) baseClaims(b *jwtx.Backend, plugins []TokenPlugin) jwtx.ClaimSet {
	n := b.Codec.Names

	claims := jwtx.ClaimSet{
		n.Subject:  r.Subject,
		n.Audience: r.Audience,
	}
	if r.NotBefore != nil {
		claims[n.NotBefore] = r.NotBefore.Unix()
	}

	claims.Merge(r.PluginClaims(plugins))
	claims.Merge(r.ExtraClaims)

	claims[n.MultiFactor] = r.MultiFactorAuth
	if r.MultiFactorExpires != nil {
		claims[n.MultiFactorExpires] = r.MultiFactorExpires.Unix()
	}
	if r.MultiFactorRef != "" {
		claims[n.MultiFactorRef] = r.MultiFactorRef
	}

	claims[n.RefreshTokenID] = r.ID
	claims[n.SessionID] = r.SessionID
	return claims
}

// AccessToken derives a fresh access session token from this record's
// claims plus plugin contributions, with overrides applied last.
func (r *RefreshToken) AccessToken(b *jwtx.Backend, plugins []TokenPlugin, overrides jwtx.ClaimSet, now time.Time) *jwtx.Token {
	claims := r.baseClaims(b, plugins)
	claims.Merge(overrides)
	return b.NewAccessToken(claims, now)
}

// RefreshSessionToken derives the long-lived refresh token. Its validity
// window is anchored on the record itself: iat = notBefore ?? issuedAt,
// exp = anchor + refresh lifetime.
func (r *RefreshToken) RefreshSessionToken(b *jwtx.Backend, plugins []TokenPlugin, overrides jwtx.ClaimSet, now time.Time) *jwtx.Token {
	n := b.Codec.Names

	anchor := r.anchor()
	claims := r.baseClaims(b, plugins)
	claims[n.IssuedAt] = anchor.Unix()
	claims[n.ExpiresAt] = anchor.Add(b.RefreshLifetime()).Unix()
	claims.Merge(overrides)
	return b.NewRefreshToken(claims, now)
}

// ExpiredTime is when this record stops deriving tokens.
func (r *RefreshToken) ExpiredTime(refreshTTL time.Duration) time.Time {
	return r.anchor().Add(refreshTTL)
}

// IsAlive reports whether the record can still derive tokens at now.
// Revocation is checked separately against store state.
func (r *RefreshToken) IsAlive(now time.Time, refreshTTL time.Duration) bool {
	return !now.After(r.ExpiredTime(refreshTTL))
}

func (r *RefreshToken) anchor() time.Time {
	if r.NotBefore != nil {
		return *r.NotBefore
	}
	return r.IssuedAt
}
