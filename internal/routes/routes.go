package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/parishworks/lychgate/internal/auth"
	"github.com/parishworks/lychgate/internal/handlers"
	"github.com/parishworks/lychgate/internal/middleware"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	userHandler *handlers.UserHandler,
	adminHandler *handlers.AdminLockoutHandler,
	tokenManager *auth.TokenManager,
	revocations auth.TokenRevocationChecker,
) {
	rateLimitConfig := middleware.DefaultAuthRateLimit()

	// Public routes. The per-IP limit sits in front of the per-email lockout.
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(rateLimitConfig))
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/login/mfa", authHandler.LoginMFA)
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/refresh", authHandler.RefreshToken)
		r.Get("/auth/lockout-status", authHandler.LockoutStatus)
	})

	// Protected routes
	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(tokenManager, revocations))

		r.Post("/auth/logout", authHandler.Logout)
		r.Get("/users/me", userHandler.GetProfile)
		r.Post("/users/me/mfa/enroll", userHandler.EnrollMFA)
		r.Post("/users/me/mfa/activate", userHandler.ActivateMFA)

		// Support dashboard
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole("admin"))
			r.Get("/admin/lockouts/{email}", adminHandler.GetLockout)
			r.Post("/admin/lockouts/{email}/unlock", adminHandler.UnlockAccount)
		})
	})

	router.Handle("/metrics", promhttp.Handler())
}
