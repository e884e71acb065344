package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/jdmarch/gauntlet/internal/auth"
	"github.com/jdmarch/gauntlet/internal/handlers"
	"github.com/jdmarch/gauntlet/internal/middleware"
	pkghttp "github.com/jdmarch/gauntlet/pkg/http"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	asrHandler *handlers.ASRHandler,
	adminHandler *handlers.AdminHandler,
	ipConfig *pkghttp.IPConfig,
	adminToken string,
	reporterToken string,
) {
	assessLimit := middleware.DefaultAssessRateLimit()
	verifyLimit := middleware.DefaultVerifyRateLimit()

	router.Route("/v1", func(r chi.Router) {
		// Public routes - called by clients working through a challenge
		r.With(middleware.RateLimitByIP(assessLimit, ipConfig)).Post("/assess", asrHandler.Assess)
		r.With(middleware.RateLimitByIP(verifyLimit, ipConfig)).Post("/challenges/{id}/verify", asrHandler.Verify)

		// Attempt reporting - only the credential endpoints may feed
		// outcomes in, so it sits behind its own bearer token
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireBearerToken(reporterToken))
			r.Post("/attempts", asrHandler.ReportAttempt)
		})

		// Manual intervention - static bearer token required
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireBearerToken(adminToken))
			r.Get("/admin/identities/{key}", adminHandler.GetIdentity)
			r.Delete("/admin/identities/{key}", adminHandler.ForgiveIdentity)
		})
	})
}
