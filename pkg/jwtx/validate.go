package jwtx

import (
	"slices"
	"time"
)

// ValidateOptions toggles each claim check independently. The zero value
// checks nothing; use DefaultValidateOptions for the full set.
type ValidateOptions struct {
	// VerifySignature gates signature verification in the codec. Turning it
	// off is only for introspection/debug paths, so the constructors below
	// also turn every claim check off with it, and callers must explicitly
	// re-enable any check they still want.
	VerifySignature bool

	VerifyExpiresAt bool
	VerifyNotBefore bool
	VerifyIssuedAt  bool
	VerifyIssuer    bool
	VerifyAudience  bool
	VerifySubject   bool
	VerifyID        bool
	VerifyTokenType bool

	// StrictAudience requires both the claimed and expected audience to be
	// single strings compared by equality, instead of set intersection.
	StrictAudience bool
}

// DefaultValidateOptions enables signature verification and every claim check.
func DefaultValidateOptions() ValidateOptions {
	return ValidateOptions{
		VerifySignature: true,
		VerifyExpiresAt: true,
		VerifyNotBefore: true,
		VerifyIssuedAt:  true,
		VerifyIssuer:    true,
		VerifyAudience:  true,
		VerifySubject:   true,
		VerifyID:        true,
		VerifyTokenType: true,
	}
}

// UnverifiedOptions disables signature verification and, with it, every
// claim check. Re-enable individual checks on the returned value if needed.
func UnverifiedOptions() ValidateOptions {
	return ValidateOptions{}
}

// Expect carries the values claims are matched against. Empty fields mean
// "don't enforce" for that claim (presence/type checks still run).
type Expect struct {
	// Issuer values considered acceptable; a claim matching any passes.
	Issuer []string

	// Audience values the token must reach (set intersection, or exact
	// single-string match in strict mode).
	Audience []string

	Subject   string
	TokenType string
}

// Validator applies claim policy to a decoded ClaimSet. It is pure: no
// state beyond the claim-name mapping, clock passed in by the caller.
type Validator struct {
	Names ClaimNames
}

// Validate runs every toggled-on check against claims. leeway loosens the
// temporal checks in both directions; now is the reference clock (use
// time.Now() unless testing).
func (v *Validator) Validate(claims ClaimSet, opts ValidateOptions, expect Expect, leeway time.Duration, now time.Time) error {
	if opts.VerifyExpiresAt {
		if err := v.checkExpiresAt(claims, leeway, now); err != nil {
			return err
		}
	}
	if opts.VerifyIssuedAt {
		if err := v.checkFutureDated(claims, v.Names.IssuedAt, leeway, now); err != nil {
			return err
		}
	}
	if opts.VerifyNotBefore {
		if err := v.checkFutureDated(claims, v.Names.NotBefore, leeway, now); err != nil {
			return err
		}
	}
	if opts.VerifyIssuer {
		if err := v.checkIssuer(claims, expect.Issuer); err != nil {
			return err
		}
	}
	if opts.VerifyAudience {
		if err := v.checkAudience(claims, expect.Audience, opts.StrictAudience); err != nil {
			return err
		}
	}
	if opts.VerifySubject {
		if err := v.checkStringClaim(claims, v.Names.Subject, expect.Subject); err != nil {
			return err
		}
	}
	if opts.VerifyID {
		if err := v.checkStringClaim(claims, v.Names.ID, ""); err != nil {
			return err
		}
	}
	if opts.VerifyTokenType {
		if err := v.checkStringClaim(claims, v.Names.TokenType, expect.TokenType); err != nil {
			return err
		}
	}
	return nil
}

// checkExpiresAt enforces the one mandatory temporal claim. A token whose
// exp equals now is already expired (exp <= now-leeway rejects).
func (v *Validator) checkExpiresAt(claims ClaimSet, leeway time.Duration, now time.Time) error {
	name := v.Names.ExpiresAt
	raw, ok := claims[name]
	if !ok {
		return claimErr(name, ErrClaimMissing)
	}
	exp, ok := claimInt(raw)
	if !ok {
		return claimErr(name, ErrClaimFormat)
	}
	if exp <= now.Add(-leeway).Unix() {
		return claimErr(name, ErrClaimExpired)
	}
	return nil
}

// checkFutureDated covers iat and nbf: optional, but when present must be an
// integer no further in the future than leeway allows.
func (v *Validator) checkFutureDated(claims ClaimSet, name string, leeway time.Duration, now time.Time) error {
	raw, ok := claims[name]
	if !ok {
		return nil
	}
	at, ok := claimInt(raw)
	if !ok {
		return claimErr(name, ErrClaimFormat)
	}
	if at > now.Add(leeway).Unix() {
		return claimErr(name, ErrClaimImmature)
	}
	return nil
}

func (v *Validator) checkIssuer(claims ClaimSet, expected []string) error {
	name := v.Names.Issuer
	raw, ok := claims[name]
	if !ok {
		return claimErr(name, ErrClaimMissing)
	}
	iss, ok := raw.(string)
	if !ok {
		return claimErr(name, ErrClaimFormat)
	}
	if len(expected) > 0 && !slices.Contains(expected, iss) {
		return claimErr(name, ErrClaimMismatch)
	}
	return nil
}

// checkAudience: the claim itself is optional unless the caller expects an
// audience. Matching is set intersection, or exact single-string equality
// in strict mode.
func (v *Validator) checkAudience(claims ClaimSet, expected []string, strict bool) error {
	name := v.Names.Audience
	raw, ok := claims[name]
	if !ok {
		if len(expected) > 0 {
			return claimErr(name, ErrClaimMissing)
		}
		return nil
	}
	if len(expected) == 0 {
		return nil
	}

	if strict {
		aud, ok := raw.(string)
		if !ok || len(expected) != 1 {
			return claimErr(name, ErrClaimMismatch)
		}
		if aud != expected[0] {
			return claimErr(name, ErrClaimMismatch)
		}
		return nil
	}

	auds, ok := claimStrings(raw)
	if !ok {
		return claimErr(name, ErrClaimFormat)
	}
	for _, want := range expected {
		if slices.Contains(auds, want) {
			return nil
		}
	}
	return claimErr(name, ErrClaimMismatch)
}

// checkStringClaim enforces presence + string type, and equality when an
// expected value is supplied. Shared by sub, jti and tty.
func (v *Validator) checkStringClaim(claims ClaimSet, name, expected string) error {
	raw, ok := claims[name]
	if !ok {
		return claimErr(name, ErrClaimMissing)
	}
	val, ok := raw.(string)
	if !ok {
		return claimErr(name, ErrClaimFormat)
	}
	if expected != "" && val != expected {
		return claimErr(name, ErrClaimMismatch)
	}
	return nil
}
