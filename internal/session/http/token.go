package http

import (
	"encoding/json"
	"net/http"

	"github.com/aussiebroadwan/passport/internal/session/domain"
	"github.com/aussiebroadwan/passport/internal/session/service"
	"github.com/aussiebroadwan/passport/pkg/httpx"
	"github.com/aussiebroadwan/passport/pkg/slogx"
)

// TokenHandler handles refresh and revocation of session tokens.
type TokenHandler struct {
	TokenService *service.TokenService
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// HandleRefresh handles POST /v1/session/refresh: exchanges a live refresh
// token for a fresh pair reflecting the record's current state (step-up,
// plugins, revocation).
func (h *TokenHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("failed to parse request", "err", err)
		writeInvalidBody(w)
		return
	}

	pair, err := h.TokenService.Refresh(ctx, req.RefreshToken)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, refreshResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    int64(pair.ExpiresIn),
	})
}

// HandleRevoke handles POST /v1/session/revoke: terminally revokes the
// supplied refresh token. Idempotent; unknown tokens succeed.
func (h *TokenHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("failed to parse request", "err", err)
		writeInvalidBody(w)
		return
	}

	if err := h.TokenService.Revoke(ctx, req.RefreshToken); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "revoked"})
}

// HandleLogout handles POST /v1/session/logout: revokes every refresh token
// under the caller's session, invalidating the whole device login.
func (h *TokenHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token := httpx.TokenFromContext(ctx)
	if token == nil {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "Invalid or expired token")
		return
	}
	sid, ok := token.SessionID()
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Token carries no session")
		return
	}

	if err := h.TokenService.RevokeSession(ctx, sid); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

type tenantRequest struct {
	TenantID    string   `json:"tenant_id"`
	TenantOwner string   `json:"tenant_owner,omitempty"`
	RoleIDs     []string `json:"role_ids,omitempty"`
}

// HandleSelectTenant handles POST /v1/session/tenant: attaches the
// tenant-selection plugin to the caller's refresh token record. The chosen
// tenant's claims appear on every subsequently derived token.
func (h *TokenHandler) HandleSelectTenant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	token := httpx.TokenFromContext(ctx)
	if token == nil {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "Invalid or expired token")
		return
	}
	rti, ok := token.RefreshTokenID()
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Token carries no refresh token id")
		return
	}

	var req tenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("failed to parse request", "err", err)
		writeInvalidBody(w)
		return
	}
	if req.TenantID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "tenant_id is required")
		return
	}

	err := h.TokenService.AttachTenant(ctx, rti, domain.TenantSelection{
		TenantID:    req.TenantID,
		TenantOwner: req.TenantOwner,
		RoleIDs:     req.RoleIDs,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "tenant selected"})
}
