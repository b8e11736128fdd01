package jwtx

import (
	"encoding/json"
	"time"
)

// ClaimSet is a decoded JWT payload. Values are whatever the JSON decoder
// produced (strings, numbers, bools, nil, nested slices) plus time.Time for
// claims that haven't been through an encode round yet.
type ClaimSet map[string]any

// Clone returns a shallow copy so callers can mutate without surprising
// whoever handed us the map.
func (c ClaimSet) Clone() ClaimSet {
	out := make(ClaimSet, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Merge copies every entry of other into c, overwriting existing keys.
// Later sources win, which matters for plugin claim merging.
func (c ClaimSet) Merge(other ClaimSet) {
	for k, v := range other {
		c[k] = v
	}
}

// ClaimNames maps each semantic claim onto the JSON key it uses on the wire.
// Every key is remappable so the platform can follow whatever naming an
// upstream consumer already expects.
type ClaimNames struct {
	Issuer    string // RFC 7519 "iss"
	Subject   string // RFC 7519 "sub"
	Audience  string // RFC 7519 "aud"
	ExpiresAt string // RFC 7519 "exp"
	NotBefore string // RFC 7519 "nbf"
	IssuedAt  string // RFC 7519 "iat"
	ID        string // RFC 7519 "jti"

	// Platform custom claims
	TokenType          string // access vs refresh
	MultiFactor        string // bool: step-up verification passed
	MultiFactorExpires string // epoch: when the step-up grant lapses
	MultiFactorRef     string // which verifier satisfied step-up
	SessionID          string // owning session record
	RefreshTokenID     string // owning refresh token record
	TenantID           string // tenant-selection plugin
	TenantOwner        string // tenant-selection plugin
	RoleIDs            string // tenant-selection plugin
	PlatformType       string // mobile/desktop/web/other
}

// DefaultClaimNames returns the shipped wire names.
func DefaultClaimNames() ClaimNames {
	return ClaimNames{
		Issuer:             "iss",
		Subject:            "sub",
		Audience:           "aud",
		ExpiresAt:          "exp",
		NotBefore:          "nbf",
		IssuedAt:           "iat",
		ID:                 "jti",
		TokenType:          "tty",
		MultiFactor:        "mfa",
		MultiFactorExpires: "mfe",
		MultiFactorRef:     "mfr",
		SessionID:          "sid",
		RefreshTokenID:     "rti",
		TenantID:           "tni",
		TenantOwner:        "tno",
		RoleIDs:            "rri",
		PlatformType:       "pft",
	}
}

// timeClaims are the claim names whose time.Time values get collapsed to
// Unix-epoch integers at encode time.
func (n ClaimNames) timeClaims() []string {
	return []string{n.ExpiresAt, n.NotBefore, n.IssuedAt, n.MultiFactorExpires}
}

// claimInt coerces the zoo of numeric representations a claim value can
// arrive in. JSON decoding gives json.Number (our parser) or float64,
// freshly-built claim sets may carry native ints.
func claimInt(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int64:
		return t, true
	case float64:
		return int64(t), t == float64(int64(t))
	case json.Number:
		i, err := t.Int64()
		return i, err == nil
	case time.Time:
		return t.Unix(), true
	default:
		return 0, false
	}
}

// claimStrings normalises an audience-style claim that may be a single
// string or a list of strings.
func claimStrings(v any) ([]string, bool) {
	switch t := v.(type) {
	case string:
		return []string{t}, true
	case []string:
		return t, true
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}
