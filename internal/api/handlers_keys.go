/**
 * @description
 * API key management handlers for business account holders. Creation returns
 * the plaintext key exactly once; listing only ever exposes the display
 * prefix and metadata.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/payvault/ledger-service/internal/app"
	"github.com/payvault/ledger-service/internal/domain"
)

type createKeyRequest struct {
	Name                 string          `json:"name"`
	Permissions          []string        `json:"permissions"`
	RateLimitPerMinute   int             `json:"rate_limit_per_minute"`
	RateLimitPerDay      int             `json:"rate_limit_per_day"`
	MaxTransactionAmount decimal.Decimal `json:"max_transaction_amount"`
	DailyVolumeLimit     decimal.Decimal `json:"daily_volume_limit"`
	AllowedOrigins       []string        `json:"allowed_origins"`
	AllowedIPs           []string        `json:"allowed_ips"`
	ExpiresAt            *time.Time      `json:"expires_at"`
}

// CreateKeyHandler issues a new merchant API key for the calling business.
func (h *Handlers) CreateKeyHandler(w http.ResponseWriter, r *http.Request) {
	accountID, _, _ := AccountFromContext(r.Context())
	var req createKeyRequest
	if !h.decode(w, r, &req) {
		return
	}
	created, err := h.service.CreateAPIKey(r.Context(), accountID, app.CreateAPIKeyParams{
		Name:                 req.Name,
		Permissions:          req.Permissions,
		RateLimitPerMinute:   req.RateLimitPerMinute,
		RateLimitPerDay:      req.RateLimitPerDay,
		MaxTransactionAmount: req.MaxTransactionAmount,
		DailyVolumeLimit:     req.DailyVolumeLimit,
		AllowedOrigins:       req.AllowedOrigins,
		AllowedIPs:           req.AllowedIPs,
		ExpiresAt:            req.ExpiresAt,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// ListKeysHandler returns the calling business's keys.
func (h *Handlers) ListKeysHandler(w http.ResponseWriter, r *http.Request) {
	accountID, _, _ := AccountFromContext(r.Context())
	keys, err := h.service.ListAPIKeys(r.Context(), accountID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

type revokeKeyRequest struct {
	Reason string `json:"reason"`
}

// RevokeKeyHandler terminally deactivates one of the caller's keys.
func (h *Handlers) RevokeKeyHandler(w http.ResponseWriter, r *http.Request) {
	accountID, _, _ := AccountFromContext(r.Context())
	keyID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, domain.ErrValidation)
		return
	}
	var req revokeKeyRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.RevokeAPIKey(r.Context(), accountID, keyID, req.Reason); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"key_id": keyID, "revoked": true})
}
