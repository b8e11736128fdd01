package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aussiebroadwan/passport/internal/session/domain"
	"github.com/aussiebroadwan/passport/internal/session/service"
	"github.com/aussiebroadwan/passport/internal/session/store"
	"github.com/aussiebroadwan/passport/internal/session/store/drivers/sqlite"
	"github.com/aussiebroadwan/passport/pkg/jwtx"
	"github.com/aussiebroadwan/passport/pkg/otpx"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	pin string
}

func (s *recordingSender) SendPin(_ context.Context, _ domain.PinChannel, _, pin string) error {
	s.pin = pin
	return nil
}

func newTestRouter(t *testing.T) (*Router, store.Store, *recordingSender) {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	backend := &jwtx.Backend{
		Codec:      jwtx.NewCodec(jwtx.DefaultClaimNames()),
		SigningKey: []byte("0123456789abcdef0123456789abcdef"),
		Algorithm:  "HS256",
		Issuer:     "test-issuer",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: time.Hour,
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := NewRouter(backend, "test", st, logger)

	sender := &recordingSender{}
	off := otpx.Throttle{Factor: -1}

	router.LoginService = &service.LoginService{Store: st, Backend: backend}
	router.TokenService = &service.TokenService{Store: st, Backend: backend}
	router.MFAService = &service.MFAService{
		Store:    st,
		Sender:   sender,
		TOTP:     otpx.TOTPVerifier{Throttle: off},
		Pin:      otpx.PinVerifier{Throttle: off},
		Backup:   otpx.BackupVerifier{Throttle: off},
		Security: otpx.SecurityCodeVerifier{Throttle: off},
		Issuer:   "passport-test",
	}
	router.ApplyRoutes()

	return router, st, sender
}

func doJSON(t *testing.T, router *Router, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func loginBody(userID string) map[string]any {
	return map[string]any{
		"user_id":         userID,
		"platform_id":     "platform-1",
		"platform_sub_id": "platform-api",
		"platform_type":   "web",
		"device_id":       "device-1",
		"mfa_required":    true,
	}
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestLoginEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t)

	t.Run("issues a pair", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/v1/session/login", "", loginBody("user-1"))
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decodeJSON[loginResponse](t, rec)
		require.NotEmpty(t, resp.AccessToken)
		require.NotEmpty(t, resp.RefreshToken)
		require.Equal(t, "Bearer", resp.TokenType)
		require.EqualValues(t, 15*60, resp.ExpiresIn)
		require.NotEmpty(t, resp.SessionID)
		require.NotEmpty(t, resp.RefreshTokenID)
		require.True(t, resp.MFARequired)
	})

	t.Run("missing identity fields rejected", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/v1/session/login", "",
			map[string]any{"platform_id": "platform-1"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/session/login", bytes.NewBufferString("{"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRefreshAndRevokeEndpoints(t *testing.T) {
	router, _, _ := newTestRouter(t)

	login := decodeJSON[loginResponse](t,
		doJSON(t, router, http.MethodPost, "/v1/session/login", "", loginBody("user-1")))

	rec := doJSON(t, router, http.MethodPost, "/v1/session/refresh", "",
		map[string]string{"refresh_token": login.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)

	refreshed := decodeJSON[refreshResponse](t, rec)
	require.NotEmpty(t, refreshed.AccessToken)
	require.NotEmpty(t, refreshed.RefreshToken)

	rec = doJSON(t, router, http.MethodPost, "/v1/session/revoke", "",
		map[string]string{"refresh_token": login.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/v1/session/refresh", "",
		map[string]string{"refresh_token": login.RefreshToken})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	body := decodeJSON[map[string]any](t, rec)
	require.Equal(t, "invalid_grant", body["error"])
}

func TestLogoutEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t)

	t.Run("requires authentication", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/v1/session/logout", "", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("kills the whole session", func(t *testing.T) {
		login := decodeJSON[loginResponse](t,
			doJSON(t, router, http.MethodPost, "/v1/session/login", "", loginBody("user-2")))

		rec := doJSON(t, router, http.MethodPost, "/v1/session/logout", login.AccessToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = doJSON(t, router, http.MethodPost, "/v1/session/refresh", "",
			map[string]string{"refresh_token": login.RefreshToken})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestSelectTenantEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t)

	// First-ever login: pre-authorized step-up, so the access token clears
	// the multi-factor guard on the tenant route.
	firstLogin := loginBody("user-1")
	firstLogin["mfa_required"] = false
	login := decodeJSON[loginResponse](t,
		doJSON(t, router, http.MethodPost, "/v1/session/login", "", firstLogin))

	t.Run("caller without step-up rejected", func(t *testing.T) {
		unverified := decodeJSON[loginResponse](t,
			doJSON(t, router, http.MethodPost, "/v1/session/login", "", loginBody("user-2")))

		rec := doJSON(t, router, http.MethodPost, "/v1/session/tenant", unverified.AccessToken,
			map[string]any{"tenant_id": "tenant-9"})
		require.Equal(t, http.StatusForbidden, rec.Code)
		require.Contains(t, rec.Header().Get("WWW-Authenticate"), "insufficient_user_authentication")
	})

	t.Run("tenant_id required", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/v1/session/tenant", login.AccessToken,
			map[string]string{})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("selection lands on refreshed tokens", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/v1/session/tenant", login.AccessToken,
			map[string]any{"tenant_id": "tenant-9", "role_ids": []string{"admin"}})
		require.Equal(t, http.StatusOK, rec.Code)

		refreshed := decodeJSON[refreshResponse](t,
			doJSON(t, router, http.MethodPost, "/v1/session/refresh", "",
				map[string]string{"refresh_token": login.RefreshToken}))

		access, err := router.backend.ParseAccessToken(refreshed.AccessToken, time.Now().UTC())
		require.NoError(t, err)

		tni, ok := access.TenantID()
		require.True(t, ok)
		require.Equal(t, "tenant-9", tni)
		require.Equal(t, []string{"admin"}, access.RoleIDs())
	})
}

func TestPinEndpoints(t *testing.T) {
	router, _, sender := newTestRouter(t)

	login := decodeJSON[loginResponse](t,
		doJSON(t, router, http.MethodPost, "/v1/session/login", "", loginBody("user-1")))

	rec := doJSON(t, router, http.MethodPost, "/v1/mfa/pin", login.AccessToken,
		map[string]string{"channel": "email", "destination": "alice@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sender.pin, 6)

	t.Run("regeneration inside cooldown returns retry-after", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/v1/mfa/pin", login.AccessToken,
			map[string]string{"channel": "email", "destination": "alice@example.com"})
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.NotEmpty(t, rec.Header().Get("Retry-After"))

		body := decodeJSON[map[string]any](t, rec)
		require.Equal(t, "cooldown_active", body["error"])
	})

	t.Run("verification stamps step-up", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/v1/mfa/pin/verify", login.AccessToken,
			map[string]string{"channel": "email", "pin": sender.pin})
		require.Equal(t, http.StatusOK, rec.Code)

		refreshed := decodeJSON[refreshResponse](t,
			doJSON(t, router, http.MethodPost, "/v1/session/refresh", "",
				map[string]string{"refresh_token": login.RefreshToken}))

		access, err := router.backend.ParseAccessToken(refreshed.AccessToken, time.Now().UTC())
		require.NoError(t, err)
		require.True(t, access.MultiFactor())
	})
}

func TestHealthEndpoints(t *testing.T) {
	router, st, _ := newTestRouter(t)

	t.Run("livez", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/livez", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decodeJSON[healthResponse](t, rec)
		require.Equal(t, "ok", resp.Status)
		require.Equal(t, "test", resp.Version)
	})

	t.Run("readyz with a live store", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/readyz", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decodeJSON[healthResponse](t, rec)
		require.Equal(t, "ok", resp.Status)
		require.NotNil(t, resp.Checks)
		require.Equal(t, "ok", resp.Checks.Database)
	})

	t.Run("readyz degrades when the store is gone", func(t *testing.T) {
		require.NoError(t, st.Close())

		rec := doJSON(t, router, http.MethodGet, "/readyz", "", nil)
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)

		resp := decodeJSON[healthResponse](t, rec)
		require.Equal(t, "degraded", resp.Status)
	})
}
