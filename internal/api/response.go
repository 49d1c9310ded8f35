package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/payvault/ledger-service/internal/domain"
)

// envelope is the stable response wrapper: data on success, a coded error
// object on failure. Internal detail never leaks into the error message.
type envelope struct {
	Success bool          `json:"success"`
	Data    any           `json:"data,omitempty"`
	Error   *domain.Error `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func writeErrorCode(w http.ResponseWriter, status int, derr *domain.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Success: false, Error: derr})
}

// statusForCode maps stable error codes onto HTTP statuses.
func statusForCode(code string) int {
	switch code {
	case domain.ErrMissingAPIKey.Code, domain.ErrInvalidAPIKey.Code, domain.ErrUnauthorized.Code:
		return http.StatusUnauthorized
	case domain.ErrPermissionDenied.Code, domain.ErrBusinessNotVerified.Code,
		domain.ErrIPNotAllowed.Code, domain.ErrOriginNotAllowed.Code, domain.ErrForbidden.Code:
		return http.StatusForbidden
	case domain.ErrRateLimitExceeded.Code:
		return http.StatusTooManyRequests
	case domain.ErrValidation.Code, domain.ErrInvalidAmount.Code,
		domain.ErrInvalidCardNumber.Code, domain.ErrSameAccount.Code:
		return http.StatusBadRequest
	case domain.ErrEmailTaken.Code, domain.ErrAPIKeyLimitReached.Code:
		return http.StatusConflict
	case domain.ErrAccountNotFound.Code, domain.ErrCardNotFound.Code, domain.ErrTransactionNotFound.Code:
		return http.StatusNotFound
	case domain.ErrCardInactive.Code, domain.ErrCardExpired.Code, domain.ErrInvalidCVV.Code,
		domain.ErrDailyLimitExceeded.Code, domain.ErrInsufficientFunds.Code,
		domain.ErrReserveInsufficient.Code, domain.ErrAlreadyRefunded.Code,
		domain.ErrRefundExceedsOriginal.Code, domain.ErrTransactionLimitExceeded.Code:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders a business error with its stable code, or a generic
// internal failure for anything else.
func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	var derr *domain.Error
	if errors.As(err, &derr) {
		writeErrorCode(w, statusForCode(derr.Code), derr)
		return
	}
	h.log.WithError(err).Error("request failed")
	writeErrorCode(w, http.StatusInternalServerError, domain.ErrInternal)
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeErrorCode(w, http.StatusBadRequest, domain.ErrValidation)
		return false
	}
	return true
}
