package http

import (
	"encoding/json"
	"net/http"

	"github.com/aussiebroadwan/passport/internal/session/domain"
	"github.com/aussiebroadwan/passport/internal/session/service"
	"github.com/aussiebroadwan/passport/pkg/httpx"
	"github.com/aussiebroadwan/passport/pkg/slogx"
)

// LoginHandler handles POST /v1/session/login. The caller is the upstream
// authentication flow: credentials are already verified by the time this
// endpoint runs, which is why the request carries the settled identity and
// the mfa_required decision instead of a password.
type LoginHandler struct {
	LoginService *service.LoginService
}

type loginRequest struct {
	UserID string `json:"user_id"`

	PlatformID    string `json:"platform_id"`
	PlatformSubID string `json:"platform_sub_id"`
	PlatformType  string `json:"platform_type"`
	DeviceID      string `json:"device_id"`

	// MFARequired is the caller's "has this user ever logged in before"
	// decision. First-ever logins pass false and get a step-up grace window.
	MFARequired bool   `json:"mfa_required"`
	MFARef      string `json:"mfa_ref,omitempty"`
}

type loginResponse struct {
	AccessToken    string `json:"access_token"`
	RefreshToken   string `json:"refresh_token"`
	TokenType      string `json:"token_type"`
	ExpiresIn      int64  `json:"expires_in"`
	SessionID      string `json:"session_id"`
	RefreshTokenID string `json:"refresh_token_id"`
	MFARequired    bool   `json:"mfa_required"`
}

func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("failed to parse request", "err", err)
		writeInvalidBody(w)
		return
	}
	if req.UserID == "" || req.PlatformID == "" || req.DeviceID == "" {
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_request", "user_id, platform_id and device_id are required")
		return
	}

	platform := domain.Platform{
		ID:    req.PlatformID,
		SubID: req.PlatformSubID,
		Type:  domain.ParsePlatformType(req.PlatformType),
	}

	result, err := h.LoginService.Login(ctx, req.UserID, platform, req.DeviceID, req.MFARequired, req.MFARef)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, loginResponse{
		AccessToken:    result.Pair.AccessToken,
		RefreshToken:   result.Pair.RefreshToken,
		TokenType:      result.Pair.TokenType,
		ExpiresIn:      int64(result.Pair.ExpiresIn),
		SessionID:      result.SessionID,
		RefreshTokenID: result.RefreshTokenID,
		MFARequired:    result.MFARequired,
	})
}
