package app

import (
	"crypto/ed25519"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aussiebroadwan/passport/pkg/cryptox"
)

// loadSigningKeys resolves the configured algorithm into a signing and
// verifying key pair for the token backend.
//
// HMAC algorithms take the shared secret from config; when none is set an
// ephemeral per-process secret is generated, which invalidates all tokens on
// restart. Fine for dev, logged loudly so nobody ships it.
// Asymmetric algorithms load a PEM private key from disk.
func loadSigningKeys(cfg Config, logger *slog.Logger) (signing any, verifying any, err error) {
	alg := cfg.Algorithm

	if strings.HasPrefix(alg, "HS") {
		if cfg.SigningSecret != "" {
			secret := []byte(cfg.SigningSecret)
			return secret, secret, nil
		}
		secret, err := cryptox.RandomBytes(cryptox.TokenSize256)
		if err != nil {
			return nil, nil, fmt.Errorf("generate ephemeral signing secret: %w", err)
		}
		logger.Warn("no signing secret configured, generated an ephemeral one - tokens will not survive a restart")
		return secret, secret, nil
	}

	if cfg.SigningKeyFile == "" {
		return nil, nil, fmt.Errorf("algorithm %s requires SESSION_SIGNING_KEY_FILE", alg)
	}
	pemBytes, err := os.ReadFile(cfg.SigningKeyFile)
	if err != nil {
		return nil, nil, fmt.Errorf("read signing key: %w", err)
	}

	switch {
	case strings.HasPrefix(alg, "RS"), strings.HasPrefix(alg, "PS"):
		key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
		if err != nil {
			return nil, nil, fmt.Errorf("parse RSA signing key: %w", err)
		}
		return key, &key.PublicKey, nil

	case strings.HasPrefix(alg, "ES"):
		key, err := jwt.ParseECPrivateKeyFromPEM(pemBytes)
		if err != nil {
			return nil, nil, fmt.Errorf("parse EC signing key: %w", err)
		}
		return key, &key.PublicKey, nil

	case alg == "EdDSA":
		key, err := jwt.ParseEdPrivateKeyFromPEM(pemBytes)
		if err != nil {
			return nil, nil, fmt.Errorf("parse Ed25519 signing key: %w", err)
		}
		edKey, ok := key.(ed25519.PrivateKey)
		if !ok {
			return nil, nil, fmt.Errorf("unexpected Ed25519 key type %T", key)
		}
		return edKey, edKey.Public(), nil

	default:
		return nil, nil, fmt.Errorf("unsupported signing algorithm %q", alg)
	}
}
