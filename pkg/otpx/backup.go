package otpx

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/aussiebroadwan/passport/pkg/cryptox"
)

// BackupConfig parameterises the single-use recovery code batch.
type BackupConfig struct {
	Count     int           // codes per batch, default 10
	CodeBytes int           // entropy per code before hex encoding, default 8
	GroupSize int           // hyphen grouping of the hex form, default 4
	Cooldown  time.Duration // minimum interval between batch regenerations
}

func (c BackupConfig) count() int {
	if c.Count > 0 {
		return c.Count
	}
	return 10
}

func (c BackupConfig) codeBytes() int {
	if c.CodeBytes > 0 {
		return c.CodeBytes
	}
	return 8
}

func (c BackupConfig) groupSize() int {
	if c.GroupSize > 0 {
		return c.GroupSize
	}
	return 4
}

// BackupState is the persisted batch: fingerprints of every issued code and
// the append-only set of consumed ones. A used code stays listed forever so
// it can never verify twice.
type BackupState struct {
	CodeHashes  []string
	UsedHashes  []string
	GeneratedAt time.Time
	LastUsedAt  time.Time
	Throttle    ThrottleState
}

// Remaining reports how many codes in the batch are still unused.
func (s *BackupState) Remaining() int {
	return len(s.CodeHashes) - len(s.UsedHashes)
}

// BackupVerifier implements the single-use recovery code state machine.
type BackupVerifier struct {
	Config   BackupConfig
	Throttle Throttle
}

// Generate mints a fresh batch, replacing any previous one, and returns the
// plaintext codes for one-time display. Gated by the regeneration cooldown.
func (v *BackupVerifier) Generate(st *BackupState, now time.Time) ([]string, error) {
	if err := checkCooldown(st.GeneratedAt, v.Config.Cooldown, now); err != nil {
		return nil, err
	}

	count := v.Config.count()
	codes := make([]string, count)
	hashes := make([]string, count)
	for i := range count {
		code, err := cryptox.GenerateHexCode(v.Config.codeBytes(), v.Config.groupSize())
		if err != nil {
			return nil, fmt.Errorf("otpx: generate backup code: %w", err)
		}
		codes[i] = code
		hashes[i] = cryptox.Fingerprint(normalizeBackupCode(code))
	}

	st.CodeHashes = hashes
	st.UsedHashes = nil
	st.GeneratedAt = now
	return codes, nil
}

// Verify succeeds only when code is in the batch and not already consumed.
// Success appends it to the used set; codes are never removed or reused.
func (v *BackupVerifier) Verify(st *BackupState, code string, now time.Time) (bool, error) {
	if err := v.Throttle.Check(st.Throttle, now); err != nil {
		return false, err
	}

	hash := cryptox.Fingerprint(normalizeBackupCode(code))
	if !slices.Contains(st.CodeHashes, hash) || slices.Contains(st.UsedHashes, hash) {
		st.Throttle.Fail(now)
		return false, nil
	}

	st.UsedHashes = append(st.UsedHashes, hash)
	st.LastUsedAt = now
	st.Throttle.Reset()
	return true, nil
}

// normalizeBackupCode makes verification forgiving about formatting: hyphens
// and case don't matter, only the hex payload does.
func normalizeBackupCode(code string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(code), "-", ""))
}
