/**
 * @description
 * The authentication and authorization gateway for merchant calls. Every
 * merchant request passes AuthenticateAPIKey's fixed acceptance order; the
 * merchant operations then layer a permission check (a distinct failure class
 * from authentication) before touching the ledger.
 *
 * @notes
 * - A revoked key takes exactly the same path and returns exactly the same
 *   error as a key that never existed.
 * - The per-minute Redis window and the day-scoped database counter are both
 *   rate controls; neither consumes transaction quota. Volume quota only moves
 *   inside the committed ledger transaction.
 */

package app

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	cardgen "github.com/payvault/ledger-service/internal/card"
	"github.com/payvault/ledger-service/internal/domain"
	"github.com/payvault/ledger-service/internal/origin"
	"github.com/payvault/ledger-service/internal/store"
)

// AuthContext is the resolved (business, key) pair handed to merchant
// operations after a successful authentication.
type AuthContext struct {
	Business *domain.Account
	Key      *domain.APIKey
}

// AuthenticateAPIKey runs the ordered acceptance checks for a presented key:
// present, well-formed, hash found, usable, business verified, caller IP
// allowed, origin allowed, minute window, day counter. Usage counters and
// last-used stamp on every authenticated attempt, independent of whether the
// downstream operation succeeds.
func (s *Service) AuthenticateAPIKey(ctx context.Context, rawKey, clientIP, requestOrigin string) (*AuthContext, error) {
	rawKey = strings.TrimSpace(rawKey)
	if rawKey == "" {
		return nil, domain.ErrMissingAPIKey
	}
	if !wellFormedAPIKey(rawKey) {
		return nil, domain.ErrInvalidAPIKey
	}

	key, err := s.repo.FindAPIKeyByHash(ctx, HashAPIKey(rawKey))
	if err != nil {
		return nil, err
	}

	now := s.now()
	if !key.IsUsable(now) {
		// Indistinguishable from an unknown key.
		return nil, domain.ErrInvalidAPIKey
	}

	business, err := s.repo.FindAccountByID(ctx, key.BusinessID)
	if err != nil {
		return nil, domain.ErrInvalidAPIKey
	}
	if !business.BusinessVerified {
		return nil, domain.ErrBusinessNotVerified
	}

	if !key.IPAllowed(clientIP) {
		s.log.WithFields(logrus.Fields{
			"key_id": key.ID,
			"ip":     clientIP,
		}).Warn("api key used from disallowed ip")
		return nil, domain.ErrIPNotAllowed
	}

	// Origin is only checkable when the caller sends one; server-to-server
	// calls carry no Origin header and are governed by the IP allow-list.
	if requestOrigin != "" && len(key.AllowedOrigins) > 0 {
		if !origin.Allowed(requestOrigin, key.AllowedOrigins) {
			s.log.WithFields(logrus.Fields{
				"key_id": key.ID,
				"origin": requestOrigin,
			}).Warn("api key used from disallowed origin")
			return nil, domain.ErrOriginNotAllowed
		}
	}

	decision, err := s.limiter.Allow(ctx, "api_key_minute", key.ID.String(), key.RateLimitPerMinute, time.Minute)
	if err != nil {
		// Redis being down must not take authentication with it; the
		// database day counter still applies.
		s.log.WithError(err).Warn("minute rate limiter unavailable, relying on day counter")
	} else if !decision.Allowed {
		return nil, domain.ErrRateLimitExceeded
	}

	requestsToday, err := s.repo.RecordAPIKeyUsage(ctx, key.ID, now)
	if err != nil {
		return nil, err
	}
	if key.RateLimitPerDay > 0 && requestsToday > key.RateLimitPerDay {
		return nil, domain.ErrRateLimitExceeded
	}

	return &AuthContext{Business: business, Key: key}, nil
}

// RequirePermission checks a capability against the key's scope set. Missing
// scope is an authorization failure, deliberately distinct from the
// authentication failures above.
func (s *Service) RequirePermission(auth *AuthContext, perm domain.Permission) error {
	if !auth.Key.HasPermission(perm) {
		return domain.ErrPermissionDenied
	}
	return nil
}

// Charge runs a merchant card charge end to end: permission, card format,
// fast-fail limit checks, then the atomic ledger write which re-validates
// everything against locked state.
func (s *Service) Charge(ctx context.Context, auth *AuthContext, req domain.ChargeRequest) (*domain.ChargeResult, error) {
	if err := s.RequirePermission(auth, domain.PermissionCharge); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	if err := cardgen.ValidateFormat(req.CardNumber); err != nil {
		return nil, domain.ErrInvalidCardNumber
	}

	now := s.now()
	if err := auth.Key.CheckTransactionLimits(req.Amount, now); err != nil {
		return nil, err
	}

	txn, err := s.repo.ChargeCard(ctx, store.ChargeParams{
		BusinessID:        auth.Business.ID,
		APIKeyID:          auth.Key.ID,
		CardNumber:        cardgen.Normalize(req.CardNumber),
		CVV:               req.CVV,
		Amount:            req.Amount,
		Description:       req.Description,
		ExternalReference: req.ExternalReference,
		Now:               now,
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"reference":   txn.Reference,
		"business_id": auth.Business.ID,
		"amount":      txn.Amount,
		"card_last4":  txn.CardLast4,
	}).Info("charge completed")

	return &domain.ChargeResult{
		TransactionID:     txn.ID,
		Reference:         txn.Reference,
		Amount:            txn.Amount,
		Currency:          txn.Currency,
		Status:            txn.Status,
		CardLast4:         txn.CardLast4,
		Description:       txn.Description,
		ExternalReference: txn.ExternalReference,
		CreatedAt:         txn.CreatedAt,
	}, nil
}

// Refund reverses a prior payment made to the calling business.
func (s *Service) Refund(ctx context.Context, auth *AuthContext, req domain.RefundRequest) (*domain.RefundResult, error) {
	if err := s.RequirePermission(auth, domain.PermissionRefund); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}

	txn, err := s.repo.RefundPayment(ctx, store.RefundParams{
		BusinessID:            auth.Business.ID,
		APIKeyID:              auth.Key.ID,
		OriginalTransactionID: req.TransactionID,
		Amount:                req.Amount,
		Reason:                req.Reason,
		Now:                   s.now(),
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"reference":   txn.Reference,
		"business_id": auth.Business.ID,
		"original_id": req.TransactionID,
		"amount":      txn.Amount,
	}).Info("refund completed")

	return &domain.RefundResult{
		RefundID:              txn.ID,
		Reference:             txn.Reference,
		OriginalTransactionID: req.TransactionID,
		Amount:                txn.Amount,
		Currency:              txn.Currency,
		Status:                txn.Status,
		Reason:                req.Reason,
		CreatedAt:             txn.CreatedAt,
	}, nil
}

// MerchantBalance returns the business wallet balance for keys scoped to it.
func (s *Service) MerchantBalance(ctx context.Context, auth *AuthContext) (decimal.Decimal, string, error) {
	if err := s.RequirePermission(auth, domain.PermissionBalance); err != nil {
		return decimal.Zero, "", err
	}
	wallet, err := s.repo.FindWalletByAccountID(ctx, auth.Business.ID)
	if err != nil {
		return decimal.Zero, "", err
	}
	return wallet.Balance, wallet.Currency, nil
}

// MerchantTransactions lists the business's ledger rows for keys scoped to it.
func (s *Service) MerchantTransactions(ctx context.Context, auth *AuthContext, opts domain.TransactionListOptions) ([]domain.Transaction, error) {
	if err := s.RequirePermission(auth, domain.PermissionTransactions); err != nil {
		return nil, err
	}
	return s.repo.ListTransactionsByAccount(ctx, auth.Business.ID, opts)
}
