package httpx

import (
	"net/http"
	"strings"
	"time"
)

// RequireMultiFactor rejects requests whose access token has not passed
// step-up verification, or whose step-up grant has already lapsed.
func RequireMultiFactor() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t := TokenFromContext(r.Context())
			if t == nil || !t.MultiFactor() {
				writeStepUpError(w)
				return
			}
			if expires, ok := t.MultiFactorExpires(); ok && !time.Now().UTC().Before(expires) {
				writeStepUpError(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAnyRole the caller must hold at least one of the provided role ids.
func RequireAnyRole(required ...string) Middleware {
	want := make(map[string]struct{}, len(required))
	for _, s := range required {
		want[s] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, role := range rolesFromCtx(r.Context()) {
				if _, ok := want[role]; ok {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeBearerRoleError(w, required...)
		})
	}
}

func writeStepUpError(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_user_authentication", error_description="step-up verification required"`)
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte("step_up_required"))
}

// RFC 6750-compliant error response for missing role membership.
func writeBearerRoleError(w http.ResponseWriter, required ...string) {
	w.Header().
		Set("WWW-Authenticate", `Bearer error="insufficient_scope", scope="`+strings.Join(required, " ")+`"`)
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte("insufficient_role"))
}
