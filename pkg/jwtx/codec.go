package jwtx

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Codec turns claim maps into compact signed tokens and back. Signing is
// delegated to golang-jwt's method registry, so anything it supports
// (HS256/384/512, RS*, ES*, EdDSA) works as long as the key type matches.
type Codec struct {
	Names ClaimNames

	// ExtraTimeClaims are additional claim names (beyond exp/nbf/iat/mfe)
	// whose time.Time values are collapsed to epoch integers on encode.
	ExtraTimeClaims []string
}

// NewCodec returns a codec using the given claim-name mapping.
func NewCodec(names ClaimNames, extraTimeClaims ...string) *Codec {
	return &Codec{Names: names, ExtraTimeClaims: extraTimeClaims}
}

// Encode signs payload with key under the named algorithm and returns the
// compact token. The payload is copied, and any time.Time values in the
// configured time-claim set are converted to Unix-epoch integers first.
func (c *Codec) Encode(payload ClaimSet, key any, alg string, headers map[string]any) (string, error) {
	method := jwt.GetSigningMethod(alg)
	if method == nil {
		return "", fmt.Errorf("%w: %q", ErrAlgorithm, alg)
	}

	claims := payload.Clone()
	for _, name := range append(c.Names.timeClaims(), c.ExtraTimeClaims...) {
		if t, ok := claims[name].(time.Time); ok {
			claims[name] = t.Unix()
		}
	}

	tok := jwt.NewWithClaims(method, jwt.MapClaims(claims))
	for k, v := range headers {
		tok.Header[k] = v
	}

	signed, err := tok.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return signed, nil
}

// Decode verifies token against key, enforcing the algorithm allow-list,
// and validates the claims per opts/expect. Returns just the payload; use
// DecodeComplete when the header matters.
//
// now is the validation clock; pass the zero time for time.Now().
func (c *Codec) Decode(token string, key any, algs []string, opts ValidateOptions, expect Expect, leeway time.Duration, now time.Time) (ClaimSet, error) {
	_, claims, err := c.DecodeComplete(token, key, algs, opts, expect, leeway, now)
	return claims, err
}

// DecodeComplete is Decode but also returns the token header.
func (c *Codec) DecodeComplete(token string, key any, algs []string, opts ValidateOptions, expect Expect, leeway time.Duration, now time.Time) (map[string]any, ClaimSet, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	parser := jwt.NewParser(jwt.WithJSONNumber(), jwt.WithoutClaimsValidation())

	// Inspect the header before any cryptography. The allow-list is enforced
	// on the declared algorithm alone, so a token whose signature would
	// verify under a different method is still rejected.
	unverified, _, err := parser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !slices.Contains(algs, unverified.Method.Alg()) {
		return nil, nil, fmt.Errorf("%w: %q", ErrAlgorithm, unverified.Method.Alg())
	}

	parsed := unverified
	if opts.VerifySignature {
		verifier := jwt.NewParser(
			jwt.WithJSONNumber(),
			jwt.WithoutClaimsValidation(),
			jwt.WithValidMethods(algs),
		)
		parsed, err = verifier.Parse(token, func(*jwt.Token) (any, error) { return key, nil })
		if err != nil {
			return nil, nil, mapParseError(err)
		}
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, nil, ErrMalformed
	}
	claims := ClaimSet(mapClaims)

	v := &Validator{Names: c.Names}
	if err := v.Validate(claims, opts, expect, leeway, now); err != nil {
		return nil, nil, err
	}
	return parsed.Header, claims, nil
}

// mapParseError collapses golang-jwt's error tree onto our closed set of
// token failure kinds.
func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrSignature, err)
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrSignature, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
