package http

import (
	"log/slog"
	"net/http"
	"time"

	_ "github.com/aussiebroadwan/twofactor/api/mfa" // Swagger docs
	"github.com/aussiebroadwan/twofactor/internal/mfa/service"
	"github.com/aussiebroadwan/twofactor/internal/mfa/store"
	"github.com/aussiebroadwan/twofactor/pkg/httpx"
	"github.com/aussiebroadwan/twofactor/pkg/jwtx"
	"github.com/aussiebroadwan/twofactor/pkg/metricsx"
	"github.com/aussiebroadwan/twofactor/pkg/slogx"

	"github.com/prometheus/client_golang/prometheus"
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	verifier     jwtx.Verifier
	serviceToken string
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store    store.Store
	attempts store.AttemptStore

	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer

	// ClientIP resolves caller addresses for rate limits and audit events.
	// Nil uses the socket peer.
	ClientIP *httpx.ClientIP

	ChallengeService  *service.ChallengeService
	EnrollmentService *service.EnrollmentService
}

func NewRouter(
	verifier jwtx.Verifier,
	serviceToken, buildVersion string,
	st store.Store,
	attempts store.AttemptStore,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		verifier:     verifier,
		serviceToken: serviceToken,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		attempts:     attempts,
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerChallenge()
	r.registerEnrollment()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Two-Factor Authentication Service API
//	@version		0.1.0
//	@description	Second-factor verification (TOTP and single-use backup codes) for a primary login.
//	@description
//	@description				Login flow: the login service requests a challenge after the password check and hands the pending mfa_token to the client, which redeems it at /v1/mfa/verify.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/twofactor
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Host application access token. Format: "Bearer {token}".
//
//	@securityDefinitions.apikey	ServiceToken
//	@in							header
//	@name						X-Service-Token
//	@description				Shared secret of the primary-login service.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerChallenge() {
	h := &ChallengeHandler{ChallengeService: r.ChallengeService, ClientIP: r.ClientIP}

	// POST /challenge - trusted callers only, limited per caller
	r.Mux.Handle("POST /v1/mfa/challenge",
		httpx.Chain(http.HandlerFunc(h.HandleChallenge),
			httpx.RateLimitByIPAndHeader(httpx.LenientLimit, r.ClientIP.Extract, httpx.ServiceTokenHeader),
			httpx.ServiceTokenMiddleware(r.serviceToken),
		),
	)

	// POST /verify - the attempt ledger bounds guesses per user; this bounds
	// the request rate per address on top of it.
	r.Mux.Handle("POST /v1/mfa/verify",
		httpx.Chain(http.HandlerFunc(h.HandleVerify),
			httpx.RateLimitByIP(httpx.ModerateLimit, r.ClientIP.Extract),
		),
	)
}

func (r *Router) registerEnrollment() {
	h := &EnrollmentHandler{EnrollmentService: r.EnrollmentService, ClientIP: r.ClientIP}

	secured := func(fn http.HandlerFunc, limit httpx.RateLimitConfig) http.Handler {
		return httpx.Chain(fn,
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(limit, r.ClientIP.Extract),
		)
	}

	r.Mux.Handle("POST /v1/mfa/totp/enroll", secured(h.HandleEnroll, httpx.ModerateLimit))
	r.Mux.Handle("POST /v1/mfa/totp/confirm", secured(h.HandleConfirm, httpx.StrictLimit))
	r.Mux.Handle("GET /v1/mfa/status", secured(h.HandleStatus, httpx.LenientLimit))
	r.Mux.Handle("POST /v1/mfa/backup-codes", secured(h.HandleRegenerateBackupCodes, httpx.ModerateLimit))
	r.Mux.Handle("DELETE /v1/mfa/totp", secured(h.HandleDisable, httpx.ModerateLimit))
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit, r.ClientIP.Extract),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.attempts),
			httpx.RateLimitByIP(httpx.LenientLimit, r.ClientIP.Extract),
		),
	)

	if r.Gatherer != nil {
		r.Mux.Handle("GET /metrics", metricsx.Handler(r.Gatherer))
	}
}
