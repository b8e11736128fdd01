package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/passport/internal/session/service"
	"github.com/aussiebroadwan/passport/internal/session/store"
	"github.com/aussiebroadwan/passport/pkg/httpx"
	"github.com/aussiebroadwan/passport/pkg/jwtx"
	"github.com/aussiebroadwan/passport/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	backend      *jwtx.Backend
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store store.Store

	LoginService *service.LoginService
	TokenService *service.TokenService
	MFAService   *service.MFAService
}

func NewRouter(
	backend *jwtx.Backend,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		backend:      backend,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerSession()
	r.registerMFA()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerSession() {
	loginHandler := &LoginHandler{LoginService: r.LoginService}
	tokenHandler := &TokenHandler{TokenService: r.TokenService}

	// POST /login - strict rate limit by IP (issues credentials)
	r.Mux.Handle("POST /v1/session/login",
		httpx.Chain(loginHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /refresh - moderate rate limit by IP (covers token rotation)
	r.Mux.Handle("POST /v1/session/refresh",
		httpx.Chain(http.HandlerFunc(tokenHandler.HandleRefresh),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// POST /revoke - moderate rate limit
	r.Mux.Handle("POST /v1/session/revoke",
		httpx.Chain(http.HandlerFunc(tokenHandler.HandleRevoke),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// POST /logout - authenticated, revokes the caller's whole session
	r.Mux.Handle("POST /v1/session/logout",
		httpx.Chain(http.HandlerFunc(tokenHandler.HandleLogout),
			httpx.AuthnMiddleware(r.backend),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)

	// POST /tenant - tenant selection changes what future tokens grant, so
	// the caller must have a live step-up verification
	r.Mux.Handle("POST /v1/session/tenant",
		httpx.Chain(http.HandlerFunc(tokenHandler.HandleSelectTenant),
			httpx.AuthnMiddleware(r.backend),
			httpx.RequireMultiFactor(),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerMFA() {
	h := &MFAHandler{MFAService: r.MFAService}

	authn := httpx.AuthnMiddleware(r.backend)

	// Enrollment and management - moderate rate limit by user
	r.Mux.Handle("POST /v1/mfa/totp/enroll",
		httpx.Chain(http.HandlerFunc(h.HandleEnrollTOTP),
			authn, httpx.RateLimitByUser(httpx.ModerateLimit)))
	r.Mux.Handle("POST /v1/mfa/totp/confirm",
		httpx.Chain(http.HandlerFunc(h.HandleConfirmTOTP),
			authn, httpx.RateLimitByUser(httpx.StrictLimit)))
	r.Mux.Handle("DELETE /v1/mfa/totp",
		httpx.Chain(http.HandlerFunc(h.HandleRemoveTOTP),
			authn, httpx.RateLimitByUser(httpx.ModerateLimit)))

	// Verification endpoints - strict rate limit by user (the verifiers
	// carry their own throttle; the HTTP limit is the outer fence)
	r.Mux.Handle("POST /v1/mfa/totp/verify",
		httpx.Chain(http.HandlerFunc(h.HandleVerifyTOTP),
			authn, httpx.RateLimitByUser(httpx.StrictLimit)))
	r.Mux.Handle("POST /v1/mfa/pin",
		httpx.Chain(http.HandlerFunc(h.HandleGeneratePin),
			authn, httpx.RateLimitByUser(httpx.StrictLimit)))
	r.Mux.Handle("POST /v1/mfa/pin/verify",
		httpx.Chain(http.HandlerFunc(h.HandleVerifyPin),
			authn, httpx.RateLimitByUser(httpx.StrictLimit)))
	r.Mux.Handle("POST /v1/mfa/backup-codes",
		httpx.Chain(http.HandlerFunc(h.HandleRegenerateBackupCodes),
			authn, httpx.RateLimitByUser(httpx.ModerateLimit)))
	r.Mux.Handle("POST /v1/mfa/backup-codes/verify",
		httpx.Chain(http.HandlerFunc(h.HandleVerifyBackupCode),
			authn, httpx.RateLimitByUser(httpx.StrictLimit)))
	r.Mux.Handle("PUT /v1/mfa/security-code",
		httpx.Chain(http.HandlerFunc(h.HandleSetSecurityCode),
			authn, httpx.RateLimitByUser(httpx.ModerateLimit)))
	r.Mux.Handle("POST /v1/mfa/security-code/verify",
		httpx.Chain(http.HandlerFunc(h.HandleVerifySecurityCode),
			authn, httpx.RateLimitByUser(httpx.StrictLimit)))
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may
	// poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
