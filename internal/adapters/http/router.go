package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/viralforge/mesh/services/core-platform/M04-account-security-service/internal/application"
)

// Handler is the HTTP adapter entrypoint for the security core. It is an
// internal admin/service surface, not the public API gateway.
type Handler struct {
	guard     *application.LoginAttemptGuard
	sessions  *application.SessionService
	twoFactor *application.TwoFactorService
	limiter   *application.RateLimiter
	scorer    *application.ThreatScorer
	sink      *application.SecurityEventSink
	readyFn   func(r *http.Request) error
}

type HandlerDeps struct {
	Guard     *application.LoginAttemptGuard
	Sessions  *application.SessionService
	TwoFactor *application.TwoFactorService
	Limiter   *application.RateLimiter
	Scorer    *application.ThreatScorer
	Sink      *application.SecurityEventSink
	// ReadyFn probes the backing stores for the readiness endpoint.
	ReadyFn func(r *http.Request) error
}

func NewHandler(deps HandlerDeps) *Handler {
	return &Handler{
		guard:     deps.Guard,
		sessions:  deps.Sessions,
		twoFactor: deps.TwoFactor,
		limiter:   deps.Limiter,
		scorer:    deps.Scorer,
		sink:      deps.Sink,
		readyFn:   deps.ReadyFn,
	}
}

// NewRouter registers the security routes and the shared middleware stack.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/security/v1", func(r chi.Router) {
		r.Post("/attempts", handler.recordAttempt)
		r.Post("/ratelimit/check", handler.rateLimitCheck)
		r.Post("/threats/assess", handler.assessThreat)

		r.Post("/sessions", handler.createSession)
		r.Post("/sessions/validate", handler.validateSession)
		r.Post("/sessions/invalidate", handler.invalidateSession)

		r.Route("/accounts/{accountID}", func(r chi.Router) {
			r.Post("/unlock", handler.unlockAccount)
			r.Get("/sessions", handler.listSessions)
			r.Post("/sessions/invalidate", handler.invalidateAllSessions)
			r.Post("/2fa/setup", handler.twoFactorSetup)
			r.Post("/2fa/verify", handler.twoFactorVerify)
			r.Post("/2fa/disable", handler.twoFactorDisable)
		})

		r.Get("/events", handler.listEvents)
		r.Get("/events/summary", handler.eventSummary)
		r.Patch("/events/{eventID}/investigation", handler.updateInvestigation)
	})

	return r
}
