package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sokopay/api/internal/core/services"
)

func NewHandler(authHandler *AuthHandler, paymentHandler *PaymentHandler, tokens *services.TokenService) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)

			r.Group(func(r chi.Router) {
				r.Use(AuthMiddleware(tokens))
				r.Post("/logout", authHandler.Logout)
				r.Get("/profile", authHandler.Profile)
			})
		})

		r.Route("/payments", func(r chi.Router) {
			// The gateway cannot present a user's bearer token; the callback
			// stays unauthenticated and relies on correlation-id matching.
			r.Post("/callback", paymentHandler.GatewayCallback)

			r.Group(func(r chi.Router) {
				r.Use(AuthMiddleware(tokens))
				r.Post("/", paymentHandler.CreatePayment)
				r.Get("/", paymentHandler.ListMyPayments)
				r.Get("/{id}", paymentHandler.GetPayment)
				r.Post("/{id}/sync", paymentHandler.SyncPayment)
			})
		})
	})

	return r
}
