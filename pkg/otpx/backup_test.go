package otpx

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackupGenerate(t *testing.T) {
	v := &BackupVerifier{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	st := BackupState{}
	codes, err := v.Generate(&st, now)
	require.NoError(t, err)

	require.Len(t, codes, 10)
	require.Len(t, st.CodeHashes, 10)
	require.Empty(t, st.UsedHashes)
	require.Equal(t, 10, st.Remaining())
	require.Equal(t, now, st.GeneratedAt)

	seen := map[string]bool{}
	for _, code := range codes {
		require.False(t, seen[code], "codes within a batch must be unique")
		seen[code] = true
		require.NotContains(t, st.CodeHashes, code, "plaintext must not be stored")
	}
}

func TestBackupGenerateReplacesBatch(t *testing.T) {
	v := &BackupVerifier{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	st := BackupState{}
	oldCodes, err := v.Generate(&st, now)
	require.NoError(t, err)

	// Burn one code, then regenerate
	ok, err := v.Verify(&st, oldCodes[0], now)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = v.Generate(&st, now.Add(time.Hour))
	require.NoError(t, err)
	require.Empty(t, st.UsedHashes, "used set resets with the batch")
	require.Equal(t, 10, st.Remaining())

	ok, err = v.Verify(&st, oldCodes[1], now.Add(time.Hour))
	require.NoError(t, err)
	require.False(t, ok, "codes from the replaced batch must not verify")
}

func TestBackupGenerateCooldown(t *testing.T) {
	v := &BackupVerifier{Config: BackupConfig{Cooldown: time.Hour}}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	st := BackupState{}
	_, err := v.Generate(&st, now)
	require.NoError(t, err)

	_, err = v.Generate(&st, now.Add(30*time.Minute))
	require.ErrorIs(t, err, ErrCooldown)

	_, err = v.Generate(&st, now.Add(61*time.Minute))
	require.NoError(t, err)
}

func TestBackupVerify(t *testing.T) {
	v := &BackupVerifier{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	newBatch := func(t *testing.T) (BackupState, []string) {
		t.Helper()
		st := BackupState{}
		codes, err := v.Generate(&st, now)
		require.NoError(t, err)
		return st, codes
	}

	t.Run("each code verifies exactly once", func(t *testing.T) {
		st, codes := newBatch(t)

		ok, err := v.Verify(&st, codes[3], now)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, 9, st.Remaining())

		ok, err = v.Verify(&st, codes[3], now.Add(time.Minute))
		require.NoError(t, err)
		require.False(t, ok, "consumed code must never verify again")
		require.Equal(t, 9, st.Remaining())
	})

	t.Run("formatting does not matter", func(t *testing.T) {
		st, codes := newBatch(t)

		mangled := "  " + strings.ToUpper(strings.ReplaceAll(codes[0], "-", "")) + " "
		ok, err := v.Verify(&st, mangled, now)
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("unknown code fails and advances the throttle", func(t *testing.T) {
		st, _ := newBatch(t)

		ok, err := v.Verify(&st, "zzzz-zzzz-zzzz-zzzz", now)
		require.NoError(t, err)
		require.False(t, ok)
		require.Equal(t, 1, st.Throttle.FailureCount)
	})

	t.Run("throttled attempt leaves the batch untouched", func(t *testing.T) {
		st, codes := newBatch(t)
		st.Throttle.Fail(now)

		ok, err := v.Verify(&st, codes[0], now)
		require.False(t, ok)
		require.ErrorIs(t, err, ErrThrottled)
		require.Equal(t, 10, st.Remaining())
	})

	t.Run("whole batch can be consumed", func(t *testing.T) {
		st, codes := newBatch(t)

		for i, code := range codes {
			at := now.Add(time.Duration(i) * time.Minute)
			ok, err := v.Verify(&st, code, at)
			require.NoError(t, err)
			require.True(t, ok, "code %d should verify", i)
		}
		require.Zero(t, st.Remaining())
	})
}

func TestBackupConfigDefaults(t *testing.T) {
	v := &BackupVerifier{Config: BackupConfig{Count: 4, CodeBytes: 4, GroupSize: 2}}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	st := BackupState{}
	codes, err := v.Generate(&st, now)
	require.NoError(t, err)

	require.Len(t, codes, 4)
	// 4 bytes -> 8 hex chars in groups of 2: "ab-cd-ef-01"
	require.Len(t, codes[0], 11)
	require.Equal(t, 3, strings.Count(codes[0], "-"))
}
