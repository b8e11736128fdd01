package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/passport/internal/session/service"
	"github.com/aussiebroadwan/passport/pkg/httpx"
	"github.com/aussiebroadwan/passport/pkg/otpx"
	"github.com/aussiebroadwan/passport/pkg/slogx"
)

// writeServiceError maps service errors onto the small set of user-facing
// responses. Token failures deliberately collapse to one message: callers
// must not learn whether the signature, expiry or audience tripped.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	log := slogx.FromContext(r.Context())

	var throttled *otpx.ThrottledError
	if errors.As(err, &throttled) {
		retryAfter(w, int(throttled.RetryAfter.Seconds())+1)
		httpx.WriteError(w, http.StatusTooManyRequests,
			"throttled", "Too many attempts. Please wait before retrying.")
		return
	}

	var cooldown *otpx.CooldownError
	if errors.As(err, &cooldown) {
		retryAfter(w, int(cooldown.RetryAfter.Seconds())+1)
		httpx.WriteError(w, http.StatusTooManyRequests,
			"cooldown_active", "A code was generated recently. Please wait before requesting another.")
		return
	}

	switch {
	case errors.Is(err, service.ErrInvalidRefresh):
		httpx.WriteError(w, http.StatusUnauthorized,
			"invalid_grant", "Invalid or expired token")
	case errors.Is(err, service.ErrInvalidCode):
		httpx.WriteError(w, http.StatusBadRequest,
			"invalid_code", "Invalid verification code")
	case errors.Is(err, service.ErrMFANotEnrolled):
		httpx.WriteError(w, http.StatusBadRequest,
			"mfa_not_enrolled", "Multi-factor verification is not set up for this user")
	case errors.Is(err, service.ErrMFAAlreadyEnabled):
		httpx.WriteError(w, http.StatusBadRequest,
			"mfa_already_enabled", "Multi-factor verification is already enabled for this user")
	default:
		log.Error("request failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError,
			"server_error", "Internal server error")
	}
}

func writeInvalidBody(w http.ResponseWriter) {
	httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
}

func retryAfter(w http.ResponseWriter, seconds int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
}
