package app

import (
	"os"
	"strconv"
	"time"

	"github.com/aussiebroadwan/passport/pkg/jwtx"
)

type Config struct {
	Issuer   string // Issuer claim stamped into and enforced on tokens
	Audience string // Optional: space-delimited audience values enforced on parse

	Algorithm      string // JWT signing algorithm (HS256, HS384, HS512, RS256, ES256, EdDSA) (default: HS256)
	SigningSecret  string // HMAC secret (HS* algorithms); generated per-process when empty
	SigningKeyFile string // Path to PEM private key (asymmetric algorithms)

	AccessTTL     time.Duration // Access token lifetime (default: 15m)
	RefreshTTL    time.Duration // Refresh token lifetime (default: 168h)
	MFASessionTTL time.Duration // Step-up grace window (default: 30m)
	Leeway        time.Duration // Clock-skew tolerance on time claims (default: 0)

	// Per-verifier tuning. Zero values fall back to the otpx defaults.
	ThrottleFactor time.Duration // Backoff unit shared by all verifiers (default: 1s)
	TOTPTolerance  int           // Counters accepted either side of now (default: 1)
	PinTTL         time.Duration // Email/mobile pin validity window (default: 5m)
	PinCooldown    time.Duration // Minimum interval between pin generations (default: 1m)
	BackupCooldown time.Duration // Minimum interval between batch regenerations

	DatabaseFile         string        // Path to SQLite database file (default: ./session.db)
	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

func LoadConfig() Config {
	cfg := Config{
		Issuer:   getEnvOrDefault("SESSION_ISSUER", "passport-session"),
		Audience: os.Getenv("SESSION_AUDIENCE"),

		Algorithm:      getEnvOrDefault("SESSION_ALGORITHM", "HS256"),
		SigningSecret:  os.Getenv("SESSION_SIGNING_SECRET"),
		SigningKeyFile: os.Getenv("SESSION_SIGNING_KEY_FILE"),

		AccessTTL:     getEnvDurationOrDefault("SESSION_ACCESS_TTL", jwtx.DefaultAccessTokenTTL),
		RefreshTTL:    getEnvDurationOrDefault("SESSION_REFRESH_TTL", jwtx.DefaultRefreshTokenTTL),
		MFASessionTTL: getEnvDurationOrDefault("SESSION_MFA_TTL", 30*time.Minute),
		Leeway:        getEnvDurationOrDefault("SESSION_LEEWAY", 0),

		ThrottleFactor: getEnvDurationOrDefault("MFA_THROTTLE_FACTOR", 0),
		TOTPTolerance:  getEnvIntOrDefault("MFA_TOTP_TOLERANCE", 0),
		PinTTL:         getEnvDurationOrDefault("MFA_PIN_TTL", 0),
		PinCooldown:    getEnvDurationOrDefault("MFA_PIN_COOLDOWN", 0),
		BackupCooldown: getEnvDurationOrDefault("MFA_BACKUP_COOLDOWN", 0),

		DatabaseFile:         getEnvOrDefault("SESSION_DATABASE_FILE", "session.db"),
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer minutes (for backwards compatibility)
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
