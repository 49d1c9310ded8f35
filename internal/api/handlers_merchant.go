/**
 * @description
 * Merchant-facing handlers. Every route behind these handlers sits behind
 * APIKeyMiddleware, so the gateway has already resolved the (business, key)
 * pair; each handler only adds its permission-scoped operation.
 */

package api

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/payvault/ledger-service/internal/domain"
)

// ChargeHandler runs a card charge on behalf of the merchant.
func (h *Handlers) ChargeHandler(w http.ResponseWriter, r *http.Request) {
	auth, ok := MerchantAuthFromContext(r.Context())
	if !ok {
		writeErrorCode(w, http.StatusUnauthorized, domain.ErrMissingAPIKey)
		return
	}
	var req domain.ChargeRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.Charge(r.Context(), auth, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// RefundHandler reverses a prior payment made to the merchant.
func (h *Handlers) RefundHandler(w http.ResponseWriter, r *http.Request) {
	auth, ok := MerchantAuthFromContext(r.Context())
	if !ok {
		writeErrorCode(w, http.StatusUnauthorized, domain.ErrMissingAPIKey)
		return
	}
	var req domain.RefundRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.Refund(r.Context(), auth, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

type merchantBalanceResponse struct {
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
}

// MerchantBalanceHandler returns the merchant's wallet balance.
func (h *Handlers) MerchantBalanceHandler(w http.ResponseWriter, r *http.Request) {
	auth, ok := MerchantAuthFromContext(r.Context())
	if !ok {
		writeErrorCode(w, http.StatusUnauthorized, domain.ErrMissingAPIKey)
		return
	}
	balance, currency, err := h.service.MerchantBalance(r.Context(), auth)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, merchantBalanceResponse{Balance: balance, Currency: currency})
}

// MerchantTransactionsHandler lists the merchant's ledger history.
func (h *Handlers) MerchantTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	auth, ok := MerchantAuthFromContext(r.Context())
	if !ok {
		writeErrorCode(w, http.StatusUnauthorized, domain.ErrMissingAPIKey)
		return
	}
	txns, err := h.service.MerchantTransactions(r.Context(), auth, listOptions(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txns)
}
