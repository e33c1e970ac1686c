package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Milly-Sporty/sportypredict-frontend-sub000/pkg/health"
	"github.com/Milly-Sporty/sportypredict-frontend-sub000/pkg/middleware"
)

// NewRouter creates a chi router with all service routes registered.
func NewRouter(
	manager SessionManager,
	contentAPI ContentAPI,
	healthHandler *health.Handler,
	logger *slog.Logger,
	corsConfig middleware.CORSConfig,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(corsConfig))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics())

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	authHandler := NewAuthHandler(manager, logger)
	sessionHandler := NewSessionHandler(manager, logger)
	contentHandler := NewContentHandler(contentAPI, manager, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/verify-email", authHandler.VerifyEmail)
			r.Post("/resend-verification", authHandler.ResendVerification)
			r.Post("/logout", authHandler.Logout)
			r.Post("/payment", authHandler.ProcessPayment)
			r.Post("/reset-password-request", authHandler.RequestPasswordReset)
			r.Post("/reset-password", authHandler.ResetPassword)
			r.Patch("/profile", authHandler.UpdateProfile)
			r.Patch("/password", authHandler.UpdatePassword)
			r.Patch("/profile-image", authHandler.UpdateProfileImage)
			r.Delete("/account", authHandler.DeleteAccount)
		})

		r.Get("/session", sessionHandler.Get)
		r.Get("/events", sessionHandler.Events)

		r.Get("/predictions", contentHandler.Predictions)
		r.Get("/predictions/{id}", contentHandler.Prediction)
		r.Get("/news", contentHandler.News)
	})

	return r
}
