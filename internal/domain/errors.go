package domain

import "fmt"

// Error is a business failure with a stable machine-readable code. Codes are part
// of the public API contract; messages are safe to show to callers and never carry
// internal detail.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Authentication failures. A revoked key must fail identically to an unknown one,
// so both paths return ErrInvalidAPIKey.
var (
	ErrMissingAPIKey = &Error{Code: "MISSING_API_KEY", Message: "api key is required"}
	ErrInvalidAPIKey = &Error{Code: "INVALID_API_KEY", Message: "invalid api key"}
	ErrUnauthorized  = &Error{Code: "UNAUTHORIZED", Message: "authentication required"}
)

// Authorization failures, distinct from authentication failures.
var (
	ErrPermissionDenied    = &Error{Code: "PERMISSION_DENIED", Message: "api key does not have the required permission"}
	ErrBusinessNotVerified = &Error{Code: "BUSINESS_NOT_VERIFIED", Message: "business account is not verified"}
	ErrIPNotAllowed        = &Error{Code: "IP_NOT_ALLOWED", Message: "request ip is not allowed for this api key"}
	ErrOriginNotAllowed    = &Error{Code: "ORIGIN_NOT_ALLOWED", Message: "request origin is not allowed for this api key"}
	ErrForbidden           = &Error{Code: "FORBIDDEN", Message: "insufficient privileges"}
)

// Rate and quota failures. Retryable after cool-down; these must never consume
// transaction quota.
var (
	ErrRateLimitExceeded        = &Error{Code: "RATE_LIMIT_EXCEEDED", Message: "rate limit exceeded"}
	ErrTransactionLimitExceeded = &Error{Code: "TRANSACTION_LIMIT_EXCEEDED", Message: "transaction limit exceeded"}
)

// Validation failures. Caller error, safe to retry with corrected input.
var (
	ErrInvalidAmount     = &Error{Code: "INVALID_AMOUNT", Message: "amount must be greater than zero"}
	ErrInvalidCardNumber = &Error{Code: "INVALID_CARD_NUMBER", Message: "card number is not valid"}
	ErrSameAccount       = &Error{Code: "SAME_ACCOUNT", Message: "sender and recipient must differ"}
	ErrValidation        = &Error{Code: "VALIDATION_ERROR", Message: "invalid request"}
	ErrEmailTaken        = &Error{Code: "EMAIL_TAKEN", Message: "email is already registered"}
)

// Business-rule failures. Terminal for the request; the caller must act.
var (
	ErrCardNotFound          = &Error{Code: "CARD_NOT_FOUND", Message: "card not found"}
	ErrCardInactive          = &Error{Code: "CARD_INACTIVE", Message: "card is inactive"}
	ErrCardExpired           = &Error{Code: "CARD_EXPIRED", Message: "card is expired"}
	ErrInvalidCVV            = &Error{Code: "INVALID_CVV", Message: "cvv does not match"}
	ErrDailyLimitExceeded    = &Error{Code: "DAILY_LIMIT_EXCEEDED", Message: "card daily spending limit exceeded"}
	ErrInsufficientFunds     = &Error{Code: "INSUFFICIENT_FUNDS", Message: "insufficient funds"}
	ErrReserveInsufficient   = &Error{Code: "RESERVE_INSUFFICIENT", Message: "bank reserve has insufficient funds"}
	ErrAccountNotFound       = &Error{Code: "ACCOUNT_NOT_FOUND", Message: "account not found"}
	ErrTransactionNotFound   = &Error{Code: "TRANSACTION_NOT_FOUND", Message: "transaction not found"}
	ErrAlreadyRefunded       = &Error{Code: "ALREADY_REFUNDED", Message: "transaction has already been refunded"}
	ErrRefundExceedsOriginal = &Error{Code: "REFUND_EXCEEDS_ORIGINAL", Message: "refund amount exceeds the original transaction amount"}
	ErrAPIKeyLimitReached    = &Error{Code: "API_KEY_LIMIT_REACHED", Message: "maximum number of active api keys reached"}
)

// Infrastructure failures. Transaction aborted; the generic surfaced failure.
var ErrInternal = &Error{Code: "INTERNAL_ERROR", Message: "an internal error occurred"}
