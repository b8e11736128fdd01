package jwtx

import (
	"time"

	"github.com/aussiebroadwan/passport/pkg/idx"
)

// Token type values carried in the tty claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Default token TTL constants. Short access tokens, long refresh tokens.
// Override per-deployment via config.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// Backend binds a codec to key material and issuing policy. One Backend is
// built at startup from config and shared by everything that mints or
// parses session tokens.
type Backend struct {
	Codec        *Codec
	SigningKey   any
	VerifyingKey any
	Algorithm    string

	// Issuer is stamped into new tokens and enforced when parsing.
	Issuer string

	// Audience values enforced when parsing. Empty means don't enforce.
	Audience []string

	Leeway     time.Duration
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Token is a typed view over a claim set. Access and refresh tokens are the
// same type carrying different tokenType/lifetime data; there is nothing
// else distinguishing them.
type Token struct {
	Type     string
	Lifetime time.Duration
	Claims   ClaimSet

	backend *Backend
}

// NewAccessToken builds a fresh access token from payload. exp and iat are
// auto-populated when absent; jti is always regenerated.
func (b *Backend) NewAccessToken(payload ClaimSet, now time.Time) *Token {
	return b.newToken(TokenTypeAccess, b.accessTTL(), payload, now)
}

// NewRefreshToken builds a fresh refresh token from payload.
func (b *Backend) NewRefreshToken(payload ClaimSet, now time.Time) *Token {
	return b.newToken(TokenTypeRefresh, b.RefreshLifetime(), payload, now)
}

func (b *Backend) newToken(tokenType string, lifetime time.Duration, payload ClaimSet, now time.Time) *Token {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	claims := ClaimSet{}
	if payload != nil {
		claims = payload.Clone()
	}

	n := b.Codec.Names
	claims[n.TokenType] = tokenType
	if b.Issuer != "" {
		claims[n.Issuer] = b.Issuer
	}
	if _, ok := claims[n.ExpiresAt]; !ok {
		claims[n.ExpiresAt] = now.Add(lifetime).Unix()
	}
	if _, ok := claims[n.IssuedAt]; !ok {
		claims[n.IssuedAt] = now.Unix()
	}
	claims[n.ID] = idx.New().String()

	return &Token{Type: tokenType, Lifetime: lifetime, Claims: claims, backend: b}
}

// ParseAccessToken decodes and fully validates an encoded access token.
func (b *Backend) ParseAccessToken(encoded string, now time.Time) (*Token, error) {
	return b.parseToken(encoded, TokenTypeAccess, b.accessTTL(), now)
}

// ParseRefreshToken decodes and fully validates an encoded refresh token.
func (b *Backend) ParseRefreshToken(encoded string, now time.Time) (*Token, error) {
	return b.parseToken(encoded, TokenTypeRefresh, b.RefreshLifetime(), now)
}

func (b *Backend) parseToken(encoded, tokenType string, lifetime time.Duration, now time.Time) (*Token, error) {
	expect := Expect{TokenType: tokenType, Audience: b.Audience}
	if b.Issuer != "" {
		expect.Issuer = []string{b.Issuer}
	}

	claims, err := b.Codec.Decode(
		encoded,
		b.verifyKey(),
		[]string{b.Algorithm},
		DefaultValidateOptions(),
		expect,
		b.Leeway,
		now,
	)
	if err != nil {
		return nil, err
	}
	return &Token{Type: tokenType, Lifetime: lifetime, Claims: claims, backend: b}, nil
}

// SignedString encodes the current claim state with the backend's key.
func (t *Token) SignedString() (string, error) {
	return t.backend.Codec.Encode(t.Claims, t.backend.SigningKey, t.backend.Algorithm, nil)
}

func (b *Backend) accessTTL() time.Duration {
	if b.AccessTTL > 0 {
		return b.AccessTTL
	}
	return DefaultAccessTokenTTL
}

// RefreshLifetime is the effective refresh token lifetime, falling back to
// the default when none is configured. Everything that reasons about refresh
// validity (token expiry stamps, record liveness, housekeeping cutoffs) goes
// through this so they can't disagree.
func (b *Backend) RefreshLifetime() time.Duration {
	if b.RefreshTTL > 0 {
		return b.RefreshTTL
	}
	return DefaultRefreshTokenTTL
}

// verifyKey falls back to the signing key for symmetric algorithms.
func (b *Backend) verifyKey() any {
	if b.VerifyingKey != nil {
		return b.VerifyingKey
	}
	return b.SigningKey
}

/* Accessors. Mandatory claims return an error when absent, optional ones
   report absence through the second return value. */

func (t *Token) names() ClaimNames { return t.backend.Codec.Names }

// Subject returns the sub claim. Mandatory.
func (t *Token) Subject() (string, error) {
	return t.mandatoryString(t.names().Subject)
}

// Issuer returns the iss claim. Mandatory.
func (t *Token) Issuer() (string, error) {
	return t.mandatoryString(t.names().Issuer)
}

// ID returns the jti claim. Mandatory.
func (t *Token) ID() (string, error) {
	return t.mandatoryString(t.names().ID)
}

// ExpiresAt returns the exp claim. Mandatory.
func (t *Token) ExpiresAt() (time.Time, error) {
	name := t.names().ExpiresAt
	raw, ok := t.Claims[name]
	if !ok {
		return time.Time{}, claimErr(name, ErrClaimMissing)
	}
	exp, ok := claimInt(raw)
	if !ok {
		return time.Time{}, claimErr(name, ErrClaimFormat)
	}
	return time.Unix(exp, 0).UTC(), nil
}

// Audience returns the aud claim normalised to a list, nil when absent.
func (t *Token) Audience() []string {
	if raw, ok := t.Claims[t.names().Audience]; ok {
		if auds, ok := claimStrings(raw); ok {
			return auds
		}
	}
	return nil
}

// NotBefore returns the nbf claim when present.
func (t *Token) NotBefore() (time.Time, bool) { return t.optionalTime(t.names().NotBefore) }

// IssuedAt returns the iat claim when present.
func (t *Token) IssuedAt() (time.Time, bool) { return t.optionalTime(t.names().IssuedAt) }

// MultiFactor reports whether step-up verification passed for this token.
func (t *Token) MultiFactor() bool {
	v, _ := t.Claims[t.names().MultiFactor].(bool)
	return v
}

// MultiFactorExpires returns when the step-up grant lapses, when set.
func (t *Token) MultiFactorExpires() (time.Time, bool) {
	return t.optionalTime(t.names().MultiFactorExpires)
}

// MultiFactorRef returns which verifier satisfied step-up, when set.
func (t *Token) MultiFactorRef() (string, bool) {
	return t.optionalString(t.names().MultiFactorRef)
}

// SessionID returns the owning session record id, when set.
func (t *Token) SessionID() (string, bool) { return t.optionalString(t.names().SessionID) }

// RefreshTokenID returns the owning refresh token record id, when set.
func (t *Token) RefreshTokenID() (string, bool) { return t.optionalString(t.names().RefreshTokenID) }

// TenantID returns the tenant-selection tenant id, when set.
func (t *Token) TenantID() (string, bool) { return t.optionalString(t.names().TenantID) }

// TenantOwner returns the tenant-selection owner flag/id, when set.
func (t *Token) TenantOwner() (string, bool) { return t.optionalString(t.names().TenantOwner) }

// PlatformType returns the platform classification claim, when set.
func (t *Token) PlatformType() (string, bool) { return t.optionalString(t.names().PlatformType) }

// RoleIDs returns the role-id list claim, nil when absent.
func (t *Token) RoleIDs() []string {
	if raw, ok := t.Claims[t.names().RoleIDs]; ok {
		if ids, ok := claimStrings(raw); ok {
			return ids
		}
	}
	return nil
}

/* Mutators. All write epoch-integer claims. */

// SetExpiration stamps exp = from + lifetime. Zero from means now, zero
// lifetime means the token's own lifetime.
func (t *Token) SetExpiration(from time.Time, lifetime time.Duration) {
	if from.IsZero() {
		from = time.Now().UTC()
	}
	if lifetime <= 0 {
		lifetime = t.Lifetime
	}
	t.Claims[t.names().ExpiresAt] = from.Add(lifetime).Unix()
}

// SetIssuedAt stamps iat. Zero at means now.
func (t *Token) SetIssuedAt(at time.Time) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	t.Claims[t.names().IssuedAt] = at.Unix()
}

// SetMultiFactor records the step-up verification state on the token.
func (t *Token) SetMultiFactor(verified bool, ref string) {
	n := t.names()
	t.Claims[n.MultiFactor] = verified
	if ref != "" {
		t.Claims[n.MultiFactorRef] = ref
	}
}

// SetMultiFactorExpiration stamps mfe = from + lifetime. Zero from means now.
func (t *Token) SetMultiFactorExpiration(from time.Time, lifetime time.Duration) {
	if from.IsZero() {
		from = time.Now().UTC()
	}
	t.Claims[t.names().MultiFactorExpires] = from.Add(lifetime).Unix()
}

func (t *Token) mandatoryString(name string) (string, error) {
	raw, ok := t.Claims[name]
	if !ok {
		return "", claimErr(name, ErrClaimMissing)
	}
	s, ok := raw.(string)
	if !ok {
		return "", claimErr(name, ErrClaimFormat)
	}
	return s, nil
}

func (t *Token) optionalString(name string) (string, bool) {
	s, ok := t.Claims[name].(string)
	return s, ok
}

func (t *Token) optionalTime(name string) (time.Time, bool) {
	raw, ok := t.Claims[name]
	if !ok {
		return time.Time{}, false
	}
	v, ok := claimInt(raw)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(v, 0).UTC(), true
}
