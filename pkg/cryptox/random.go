package cryptox

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// Token size constants (in bytes before encoding).
const (
	// TokenSize128 provides 128 bits of entropy (22 chars base64url).
	TokenSize128 = 16
	// TokenSize256 provides 256 bits of entropy (43 chars base64url).
	TokenSize256 = 32
)

// RandomBytes fills a fresh buffer from the system CSPRNG.
func RandomBytes(n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("cryptox: byte count must be positive, got %d", n)
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("cryptox: failed to read random bytes: %w", err)
	}
	return buf, nil
}

// GenerateToken creates a cryptographically secure random token of the given
// byte length, returned base64url-encoded without padding.
func GenerateToken(size int) (string, error) {
	buf, err := RandomBytes(size)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateDigits returns a random numeric string of length n, suitable for
// OTP pins. Each digit is drawn independently so there is no modulo bias.
func GenerateDigits(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("cryptox: digit count must be positive, got %d", n)
	}
	var sb strings.Builder
	sb.Grow(n)
	for range n {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("cryptox: failed to generate random digit: %w", err)
		}
		sb.WriteByte(byte('0' + d.Int64()))
	}
	return sb.String(), nil
}

// GenerateHexCode returns a random lowercase hex string of byteLen bytes,
// hyphen-grouped every groupSize characters (e.g. "3f9a-0c2e-77b1-d405").
// Used for backup codes.
func GenerateHexCode(byteLen, groupSize int) (string, error) {
	buf, err := RandomBytes(byteLen)
	if err != nil {
		return "", err
	}
	raw := hex.EncodeToString(buf)
	if groupSize <= 0 || groupSize >= len(raw) {
		return raw, nil
	}

	var sb strings.Builder
	for i := 0; i < len(raw); i += groupSize {
		if i > 0 {
			sb.WriteByte('-')
		}
		end := min(i+groupSize, len(raw))
		sb.WriteString(raw[i:end])
	}
	return sb.String(), nil
}

// Fingerprint returns a deterministic SHA-256 fingerprint of a value,
// base64url-encoded. Used to store hashed backup codes so lookups work
// without the original value.
func Fingerprint(value string) string {
	sum := sha256.Sum256([]byte(value))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// EqualConstantTime compares two strings without leaking position of the
// first mismatch through timing.
func EqualConstantTime(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}
