package http

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/classigoo/auth-server/internal/auth"
	"github.com/classigoo/auth-server/internal/http/handlers"
	"github.com/classigoo/auth-server/internal/middleware"
	"github.com/classigoo/auth-server/internal/repo"
)

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(authHandler *handlers.AuthHandler, tokens *auth.TokenService, users repo.UserRepo, sessions repo.SessionRepo) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	healthHandler := handlers.NewHealthHandler()
	r.Get("/health", healthHandler.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/auth", func(r chi.Router) {
		r.Post("/otp/send", authHandler.HandleSendOtp)
		r.Post("/otp/validate", authHandler.HandleValidateOtp)
		r.Post("/otp/resend", authHandler.HandleResendOtp)

		// Protected routes (require valid bearer token + live session)
		r.Group(func(r chi.Router) {
			r.Use(middleware.Guard(tokens, users, sessions))
			r.Get("/me", authHandler.HandleMe)
		})
	})

	return r
}
