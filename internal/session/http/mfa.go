package http

import (
	"encoding/json"
	"net/http"

	"github.com/aussiebroadwan/passport/internal/session/domain"
	"github.com/aussiebroadwan/passport/internal/session/service"
	"github.com/aussiebroadwan/passport/pkg/httpx"
	"github.com/aussiebroadwan/passport/pkg/slogx"
)

// MFAHandler handles every step-up verification endpoint. All routes run
// behind the authn middleware; the subject and refresh token id come off the
// verified access token, never the request body.
type MFAHandler struct {
	MFAService *service.MFAService
}

// caller pulls the authenticated identity the handlers need. A missing or
// session-less token gets the generic invalid_token response.
func caller(w http.ResponseWriter, r *http.Request) (userID, refreshTokenID string, ok bool) {
	token := httpx.TokenFromContext(r.Context())
	if token == nil {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "Invalid or expired token")
		return "", "", false
	}
	sub, err := token.Subject()
	if err != nil {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "Invalid or expired token")
		return "", "", false
	}
	rti, _ := token.RefreshTokenID()
	return sub, rti, true
}

type codeRequest struct {
	Code string `json:"code"`
}

type verifyResponse struct {
	Verified bool `json:"verified"`
}

type enrollRequest struct {
	Account string `json:"account"`
}

type enrollResponse struct {
	Secret  string `json:"secret"`
	URL     string `json:"url"`
	Issuer  string `json:"issuer"`
	Account string `json:"account"`
}

type backupCodesResponse struct {
	Codes []string `json:"codes"`
}

// HandleEnrollTOTP handles POST /v1/mfa/totp/enroll. Returns the secret and
// otpauth:// URL once; the device stays unconfirmed until a first code is
// verified through the confirm endpoint.
func (h *MFAHandler) HandleEnrollTOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, _, ok := caller(w, r)
	if !ok {
		return
	}

	var req enrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("failed to parse request", "err", err)
		writeInvalidBody(w)
		return
	}
	account := req.Account
	if account == "" {
		account = userID
	}

	enrollment, err := h.MFAService.EnrollTOTP(ctx, userID, account)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, enrollResponse{
		Secret:  enrollment.Secret,
		URL:     enrollment.URL,
		Issuer:  enrollment.Issuer,
		Account: enrollment.Account,
	})
}

// HandleConfirmTOTP handles POST /v1/mfa/totp/confirm. A correct first code
// confirms the device and returns the one-time backup code batch.
func (h *MFAHandler) HandleConfirmTOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, _, ok := caller(w, r)
	if !ok {
		return
	}

	var req codeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("failed to parse request", "err", err)
		writeInvalidBody(w)
		return
	}

	codes, err := h.MFAService.ConfirmTOTP(ctx, userID, req.Code)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, backupCodesResponse{Codes: codes})
}

// HandleRemoveTOTP handles DELETE /v1/mfa/totp. Requires a final correct
// code before tearing the device down.
func (h *MFAHandler) HandleRemoveTOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, _, ok := caller(w, r)
	if !ok {
		return
	}

	var req codeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("failed to parse request", "err", err)
		writeInvalidBody(w)
		return
	}

	if err := h.MFAService.RemoveTOTP(ctx, userID, req.Code); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "totp removed"})
}

// HandleVerifyTOTP handles POST /v1/mfa/totp/verify. A correct code stamps
// step-up onto the caller's refresh token record; the client then refreshes
// to pick up the mfa claims.
func (h *MFAHandler) HandleVerifyTOTP(w http.ResponseWriter, r *http.Request) {
	h.handleVerify(w, r, func(r *http.Request, userID, rti, code string) (bool, error) {
		return h.MFAService.VerifyTOTP(r.Context(), userID, rti, code)
	})
}

type pinGenerateRequest struct {
	Channel     string `json:"channel"` // "email" or "mobile"
	Destination string `json:"destination"`
}

// HandleGeneratePin handles POST /v1/mfa/pin. Mints a new challenge pin and
// hands it to the delivery sender. Subject to the regeneration cooldown.
func (h *MFAHandler) HandleGeneratePin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, _, ok := caller(w, r)
	if !ok {
		return
	}

	var req pinGenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("failed to parse request", "err", err)
		writeInvalidBody(w)
		return
	}
	channel, ok := parsePinChannel(req.Channel)
	if !ok || req.Destination == "" {
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_request", "channel must be email or mobile and destination is required")
		return
	}

	if err := h.MFAService.GeneratePin(ctx, userID, channel, req.Destination); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "pin sent"})
}

type pinVerifyRequest struct {
	Channel string `json:"channel"`
	Pin     string `json:"pin"`
}

// HandleVerifyPin handles POST /v1/mfa/pin/verify.
func (h *MFAHandler) HandleVerifyPin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, rti, ok := caller(w, r)
	if !ok {
		return
	}

	var req pinVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("failed to parse request", "err", err)
		writeInvalidBody(w)
		return
	}
	channel, ok := parsePinChannel(req.Channel)
	if !ok {
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_request", "channel must be email or mobile")
		return
	}

	verified, err := h.MFAService.VerifyPin(ctx, userID, rti, channel, req.Pin)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, verifyResponse{Verified: verified})
}

// HandleRegenerateBackupCodes handles POST /v1/mfa/backup-codes. Replaces
// the batch, invalidating every previous code.
func (h *MFAHandler) HandleRegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, _, ok := caller(w, r)
	if !ok {
		return
	}

	codes, err := h.MFAService.RegenerateBackupCodes(ctx, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, backupCodesResponse{Codes: codes})
}

// HandleVerifyBackupCode handles POST /v1/mfa/backup-codes/verify.
func (h *MFAHandler) HandleVerifyBackupCode(w http.ResponseWriter, r *http.Request) {
	h.handleVerify(w, r, func(r *http.Request, userID, rti, code string) (bool, error) {
		return h.MFAService.VerifyBackupCode(r.Context(), userID, rti, code)
	})
}

type securityCodeRequest struct {
	Pin string `json:"pin"`
}

// HandleSetSecurityCode handles PUT /v1/mfa/security-code.
func (h *MFAHandler) HandleSetSecurityCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, _, ok := caller(w, r)
	if !ok {
		return
	}

	var req securityCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("failed to parse request", "err", err)
		writeInvalidBody(w)
		return
	}
	if req.Pin == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "pin is required")
		return
	}

	if err := h.MFAService.SetSecurityCode(ctx, userID, req.Pin); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "security code set"})
}

// HandleVerifySecurityCode handles POST /v1/mfa/security-code/verify.
func (h *MFAHandler) HandleVerifySecurityCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, rti, ok := caller(w, r)
	if !ok {
		return
	}

	var req securityCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("failed to parse request", "err", err)
		writeInvalidBody(w)
		return
	}

	verified, err := h.MFAService.VerifySecurityCode(ctx, userID, rti, req.Pin)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, verifyResponse{Verified: verified})
}

// handleVerify is the shared body for the code-based verify endpoints.
func (h *MFAHandler) handleVerify(
	w http.ResponseWriter,
	r *http.Request,
	verify func(r *http.Request, userID, rti, code string) (bool, error),
) {
	log := slogx.FromContext(r.Context())

	userID, rti, ok := caller(w, r)
	if !ok {
		return
	}

	var req codeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("failed to parse request", "err", err)
		writeInvalidBody(w)
		return
	}

	verified, err := verify(r, userID, rti, req.Code)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, verifyResponse{Verified: verified})
}

func parsePinChannel(s string) (domain.PinChannel, bool) {
	switch domain.PinChannel(s) {
	case domain.PinChannelEmail, domain.PinChannelMobile:
		return domain.PinChannel(s), true
	default:
		return "", false
	}
}
