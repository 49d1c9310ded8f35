/**
 * @description
 * This file sets up the HTTP router for the ledger service. It defines the
 * API endpoints, associates them with their corresponding handlers, and
 * applies the per-tier authentication middleware.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/payvault/ledger-service/internal/app"
)

// Routes creates and returns the service router with all three tiers:
// public auth endpoints, token-protected account endpoints, and API
// key-protected merchant endpoints.
func Routes(h *Handlers, service *app.Service, jwtSecret string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints.
		r.Post("/auth/register", h.RegisterHandler)
		r.Post("/auth/login", h.LoginHandler)

		// Account-holder endpoints behind Bearer auth.
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(jwtSecret))

			r.Get("/me", h.ProfileHandler)
			r.Get("/me/wallet", h.WalletHandler)
			r.Get("/me/card", h.CardHandler)
			r.Get("/me/transactions", h.TransactionsHandler)

			r.Post("/transfers", h.TransferHandler)
			r.Post("/deposits", h.DepositHandler)
			r.Post("/withdrawals", h.WithdrawHandler)

			r.Post("/keys", h.CreateKeyHandler)
			r.Get("/keys", h.ListKeysHandler)
			r.Post("/keys/{id}/revoke", h.RevokeKeyHandler)

			r.Post("/admin/businesses/{id}/verify", h.VerifyBusinessHandler)
			r.Get("/admin/reserve", h.ReserveHandler)
		})

		// Merchant endpoints behind API key auth.
		r.Route("/merchant", func(r chi.Router) {
			r.Use(APIKeyMiddleware(service))

			r.Post("/charges", h.ChargeHandler)
			r.Post("/refunds", h.RefundHandler)
			r.Get("/balance", h.MerchantBalanceHandler)
			r.Get("/transactions", h.MerchantTransactionsHandler)
		})
	})

	return r
}
