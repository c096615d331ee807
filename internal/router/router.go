package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"go-request-shield/internal/config"
	"go-request-shield/internal/handler"
	"go-request-shield/internal/metrics"
	"go-request-shield/internal/middleware"
)

// Deps collects everything the request chain needs. The middleware order is
// fixed: recovery, headers, CORS, rate limiting, logging/detection, body
// validation, CSRF, then auth per-route. Each stage can short-circuit; later
// stages never run for a rejected request.
type Deps struct {
	Config         *config.Config
	SecurityHeader *middleware.SecurityHeaders
	RateLimit      *middleware.RateLimitMiddleware
	RequestLogger  *middleware.RequestLogger
	BodyValidator  *middleware.BodyValidator
	CSRFGuard      *middleware.CSRFGuard
	Auth           *middleware.AuthMiddleware
	AuthHandler    *handler.AuthHandler
	AdminHandler   *handler.AdminHandler
	Health         http.HandlerFunc
}

func New(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery)
	r.Use(d.SecurityHeader.Handler)
	r.Use(middleware.CORS(d.Config.CORSOrigins))
	r.Use(d.RateLimit.Handler)
	r.Use(d.RequestLogger.Handler)
	r.Use(d.BodyValidator.Handler)

	r.Get("/health", d.Health)
	r.Get("/metrics", metrics.Handler().ServeHTTP)

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.Timeout(d.Config.RequestTimeout))

		api.Get("/csrf", d.AuthHandler.IssueCSRF)

		api.Route("/auth", func(auth chi.Router) {
			auth.Use(d.CSRFGuard.Handler)

			auth.Post("/login", d.AuthHandler.Login)
			auth.Post("/register", d.AuthHandler.Register)
			auth.Post("/refresh", d.AuthHandler.Refresh)
			auth.With(d.Auth.RequireAuth).Post("/logout", d.AuthHandler.Logout)
			auth.With(d.Auth.RequireAuth).Get("/me", d.AuthHandler.Me)
		})
	})

	r.Route("/admin", func(admin chi.Router) {
		admin.Use(middleware.Timeout(d.Config.RequestTimeout))
		admin.Use(d.CSRFGuard.Handler)
		admin.Use(d.Auth.RequireAuth)
		admin.Use(d.Auth.RequireRole("admin"))

		admin.Post("/ratelimit/block", d.AdminHandler.BlockIP)
		admin.Post("/ratelimit/unblock", d.AdminHandler.UnblockIP)
		admin.Get("/events", d.AdminHandler.ListEvents)
	})

	return r
}
