package httpx

import (
	"context"

	"github.com/aussiebroadwan/passport/pkg/jwtx"
)

type ctxKey string

const (
	CtxKeyUserID ctxKey = "user_id"
	CtxKeyRoles  ctxKey = "roles"
	CtxKeyToken  ctxKey = "token" // full *jwtx.Token when you need more claims
)

// UserIDFromContext returns the authenticated subject, empty when anonymous.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyUserID).(string); ok {
		return v
	}
	return ""
}

// TokenFromContext returns the verified access token attached by the authn
// middleware, nil when the request was not authenticated.
func TokenFromContext(ctx context.Context) *jwtx.Token {
	if v, ok := ctx.Value(CtxKeyToken).(*jwtx.Token); ok {
		return v
	}
	return nil
}

func rolesFromCtx(ctx context.Context) []string {
	if v, ok := ctx.Value(CtxKeyRoles).([]string); ok {
		return v
	}
	return nil
}
