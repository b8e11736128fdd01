package jwtx

import (
	"errors"
	"fmt"
)

// Token-level failures. Everything the codec can reject a token for maps to
// one of these so callers can collapse them to a single user-facing message
// without losing the distinction internally.
var (
	ErrMalformed  = errors.New("jwtx: malformed token")
	ErrSignature  = errors.New("jwtx: invalid signature")
	ErrAlgorithm  = errors.New("jwtx: algorithm not allowed")
	ErrInvalidKey = errors.New("jwtx: invalid signing key")
)

// Claim-level failure kinds. ClaimError wraps one of these so both
// errors.Is(err, ErrClaimExpired) and "which claim" work.
var (
	ErrClaimMissing  = errors.New("jwtx: required claim missing")
	ErrClaimFormat   = errors.New("jwtx: claim has wrong type")
	ErrClaimExpired  = errors.New("jwtx: claim expired")
	ErrClaimImmature = errors.New("jwtx: claim not yet valid")
	ErrClaimMismatch = errors.New("jwtx: claim value mismatch")
)

// ClaimError reports which claim failed validation and how.
type ClaimError struct {
	Claim string
	Kind  error // one of the ErrClaim* sentinels
}

func (e *ClaimError) Error() string {
	return fmt.Sprintf("%v: %q", e.Kind, e.Claim)
}

func (e *ClaimError) Unwrap() error { return e.Kind }

func claimErr(claim string, kind error) error {
	return &ClaimError{Claim: claim, Kind: kind}
}
