package app

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/payvault/ledger-service/internal/domain"
	"github.com/payvault/ledger-service/internal/store"
)

type gatewayRepoStub struct {
	store.Repository

	keysByHash map[string]*domain.APIKey
	accounts   map[uuid.UUID]*domain.Account

	usageCounts map[uuid.UUID]int
	usageCalled int

	chargeParams *store.ChargeParams
	chargeResult *domain.Transaction
	chargeErr    error
}

func (s *gatewayRepoStub) FindAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	if k, ok := s.keysByHash[keyHash]; ok {
		copied := *k
		return &copied, nil
	}
	return nil, domain.ErrInvalidAPIKey
}

func (s *gatewayRepoStub) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	if a, ok := s.accounts[accountID]; ok {
		return a, nil
	}
	return nil, domain.ErrAccountNotFound
}

func (s *gatewayRepoStub) RecordAPIKeyUsage(ctx context.Context, keyID uuid.UUID, now time.Time) (int, error) {
	s.usageCalled++
	if s.usageCounts == nil {
		s.usageCounts = map[uuid.UUID]int{}
	}
	s.usageCounts[keyID]++
	return s.usageCounts[keyID], nil
}

func (s *gatewayRepoStub) ChargeCard(ctx context.Context, params store.ChargeParams) (*domain.Transaction, error) {
	s.chargeParams = &params
	if s.chargeErr != nil {
		return nil, s.chargeErr
	}
	return s.chargeResult, nil
}

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newGatewayFixture() (*Service, *gatewayRepoStub, string, *domain.APIKey, *domain.Account) {
	rawKey := APIKeyPrefix + strings.Repeat("a", 48)
	business := &domain.Account{
		ID:               uuid.New(),
		AccountType:      domain.AccountTypeBusiness,
		BusinessName:     "Acme Widgets",
		BusinessVerified: true,
	}
	key := &domain.APIKey{
		ID:                 uuid.New(),
		BusinessID:         business.ID,
		KeyHash:            HashAPIKey(rawKey),
		Permissions:        []domain.Permission{domain.PermissionCharge},
		RateLimitPerMinute: 60,
		RateLimitPerDay:    100,
		Active:             true,
	}
	repo := &gatewayRepoStub{
		keysByHash: map[string]*domain.APIKey{key.KeyHash: key},
		accounts:   map[uuid.UUID]*domain.Account{business.ID: business},
	}
	svc := NewService(repo, nil, newTestLogger(), "test-secret")
	return svc, repo, rawKey, key, business
}

func TestAuthenticateAPIKey(t *testing.T) {
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		svc, _, _, _, _ := newGatewayFixture()
		if _, err := svc.AuthenticateAPIKey(ctx, "", "1.2.3.4", ""); err != domain.ErrMissingAPIKey {
			t.Errorf("err = %v, want %v", err, domain.ErrMissingAPIKey)
		}
	})

	t.Run("malformed key", func(t *testing.T) {
		svc, repo, _, _, _ := newGatewayFixture()
		if _, err := svc.AuthenticateAPIKey(ctx, "sk_wrong_prefix", "1.2.3.4", ""); err != domain.ErrInvalidAPIKey {
			t.Errorf("err = %v, want %v", err, domain.ErrInvalidAPIKey)
		}
		if repo.usageCalled != 0 {
			t.Error("malformed key must not reach usage recording")
		}
	})

	t.Run("unknown key", func(t *testing.T) {
		svc, _, _, _, _ := newGatewayFixture()
		unknown := APIKeyPrefix + strings.Repeat("f", 48)
		if _, err := svc.AuthenticateAPIKey(ctx, unknown, "1.2.3.4", ""); err != domain.ErrInvalidAPIKey {
			t.Errorf("err = %v, want %v", err, domain.ErrInvalidAPIKey)
		}
	})

	t.Run("revoked key fails identically to unknown", func(t *testing.T) {
		svc, repo, rawKey, key, _ := newGatewayFixture()
		revokedAt := time.Now().Add(-time.Hour)
		key.RevokedAt = &revokedAt
		key.Active = false

		_, revokedErr := svc.AuthenticateAPIKey(ctx, rawKey, "1.2.3.4", "")
		_, unknownErr := svc.AuthenticateAPIKey(ctx, APIKeyPrefix+strings.Repeat("f", 48), "1.2.3.4", "")
		if revokedErr != unknownErr {
			t.Errorf("revoked err %v differs from unknown err %v", revokedErr, unknownErr)
		}
		if revokedErr != domain.ErrInvalidAPIKey {
			t.Errorf("revoked err = %v, want %v", revokedErr, domain.ErrInvalidAPIKey)
		}
		if repo.usageCalled != 0 {
			t.Error("rejected keys must not bump usage")
		}
	})

	t.Run("expired key fails identically to unknown", func(t *testing.T) {
		svc, _, rawKey, key, _ := newGatewayFixture()
		past := time.Now().Add(-time.Minute)
		key.ExpiresAt = &past
		if _, err := svc.AuthenticateAPIKey(ctx, rawKey, "1.2.3.4", ""); err != domain.ErrInvalidAPIKey {
			t.Errorf("err = %v, want %v", err, domain.ErrInvalidAPIKey)
		}
	})

	t.Run("unverified business", func(t *testing.T) {
		svc, _, rawKey, _, business := newGatewayFixture()
		business.BusinessVerified = false
		if _, err := svc.AuthenticateAPIKey(ctx, rawKey, "1.2.3.4", ""); err != domain.ErrBusinessNotVerified {
			t.Errorf("err = %v, want %v", err, domain.ErrBusinessNotVerified)
		}
	})

	t.Run("ip allow-list", func(t *testing.T) {
		svc, _, rawKey, key, _ := newGatewayFixture()
		key.AllowedIPs = []string{"203.0.113.9"}
		if _, err := svc.AuthenticateAPIKey(ctx, rawKey, "192.0.2.1", ""); err != domain.ErrIPNotAllowed {
			t.Errorf("err = %v, want %v", err, domain.ErrIPNotAllowed)
		}
		if _, err := svc.AuthenticateAPIKey(ctx, rawKey, "203.0.113.9", ""); err != nil {
			t.Errorf("allowed ip rejected: %v", err)
		}
	})

	t.Run("origin allow-list", func(t *testing.T) {
		svc, _, rawKey, key, _ := newGatewayFixture()
		key.AllowedOrigins = []string{"https://*.shop.example"}
		if _, err := svc.AuthenticateAPIKey(ctx, rawKey, "1.2.3.4", "https://evil.example"); err != domain.ErrOriginNotAllowed {
			t.Errorf("err = %v, want %v", err, domain.ErrOriginNotAllowed)
		}
		if _, err := svc.AuthenticateAPIKey(ctx, rawKey, "1.2.3.4", "https://store.shop.example"); err != nil {
			t.Errorf("allowed origin rejected: %v", err)
		}
		// No Origin header: server-to-server call, governed by the ip list.
		if _, err := svc.AuthenticateAPIKey(ctx, rawKey, "1.2.3.4", ""); err != nil {
			t.Errorf("missing origin rejected: %v", err)
		}
	})

	t.Run("day counter limit", func(t *testing.T) {
		svc, repo, rawKey, key, _ := newGatewayFixture()
		key.RateLimitPerDay = 2
		if _, err := svc.AuthenticateAPIKey(ctx, rawKey, "1.2.3.4", ""); err != nil {
			t.Fatalf("first attempt: %v", err)
		}
		if _, err := svc.AuthenticateAPIKey(ctx, rawKey, "1.2.3.4", ""); err != nil {
			t.Fatalf("second attempt: %v", err)
		}
		if _, err := svc.AuthenticateAPIKey(ctx, rawKey, "1.2.3.4", ""); err != domain.ErrRateLimitExceeded {
			t.Errorf("third attempt err = %v, want %v", err, domain.ErrRateLimitExceeded)
		}
		if repo.usageCalled != 3 {
			t.Errorf("usage recorded %d times, want 3", repo.usageCalled)
		}
	})

	t.Run("success resolves business and key", func(t *testing.T) {
		svc, repo, rawKey, key, business := newGatewayFixture()
		auth, err := svc.AuthenticateAPIKey(ctx, rawKey, "1.2.3.4", "")
		if err != nil {
			t.Fatalf("AuthenticateAPIKey: %v", err)
		}
		if auth.Business.ID != business.ID || auth.Key.ID != key.ID {
			t.Error("auth context carries wrong identities")
		}
		if repo.usageCalled != 1 {
			t.Errorf("usage recorded %d times, want 1", repo.usageCalled)
		}
	})
}

func TestRequirePermissionDistinctFromAuthFailure(t *testing.T) {
	svc, _, _, key, business := newGatewayFixture()
	auth := &AuthContext{Business: business, Key: key}

	err := svc.RequirePermission(auth, domain.PermissionRefund)
	if err != domain.ErrPermissionDenied {
		t.Fatalf("err = %v, want %v", err, domain.ErrPermissionDenied)
	}
	if err == domain.ErrInvalidAPIKey || err == domain.ErrUnauthorized {
		t.Error("permission failure must not masquerade as an authentication failure")
	}
	if svcErr := svc.RequirePermission(auth, domain.PermissionCharge); svcErr != nil {
		t.Errorf("granted permission rejected: %v", svcErr)
	}
}

func TestChargeValidation(t *testing.T) {
	ctx := context.Background()
	validCard := "4539148803436467"

	t.Run("permission required", func(t *testing.T) {
		svc, _, _, key, business := newGatewayFixture()
		key.Permissions = []domain.Permission{domain.PermissionBalance}
		auth := &AuthContext{Business: business, Key: key}
		_, err := svc.Charge(ctx, auth, domain.ChargeRequest{CardNumber: validCard, CVV: "123", Amount: decimal.NewFromInt(10)})
		if err != domain.ErrPermissionDenied {
			t.Errorf("err = %v, want %v", err, domain.ErrPermissionDenied)
		}
	})

	t.Run("amount must be positive", func(t *testing.T) {
		svc, _, _, key, business := newGatewayFixture()
		auth := &AuthContext{Business: business, Key: key}
		_, err := svc.Charge(ctx, auth, domain.ChargeRequest{CardNumber: validCard, CVV: "123", Amount: decimal.Zero})
		if err != domain.ErrInvalidAmount {
			t.Errorf("err = %v, want %v", err, domain.ErrInvalidAmount)
		}
	})

	t.Run("card format rejected before ledger", func(t *testing.T) {
		svc, repo, _, key, business := newGatewayFixture()
		auth := &AuthContext{Business: business, Key: key}
		_, err := svc.Charge(ctx, auth, domain.ChargeRequest{CardNumber: "1234", CVV: "123", Amount: decimal.NewFromInt(10)})
		if err != domain.ErrInvalidCardNumber {
			t.Errorf("err = %v, want %v", err, domain.ErrInvalidCardNumber)
		}
		if repo.chargeParams != nil {
			t.Error("invalid card must not reach the ledger")
		}
	})

	t.Run("per-transaction ceiling fast fail", func(t *testing.T) {
		svc, repo, _, key, business := newGatewayFixture()
		key.MaxTransactionAmount = decimal.NewFromInt(100)
		auth := &AuthContext{Business: business, Key: key}
		_, err := svc.Charge(ctx, auth, domain.ChargeRequest{CardNumber: validCard, CVV: "123", Amount: decimal.NewFromInt(101)})
		if err != domain.ErrTransactionLimitExceeded {
			t.Errorf("err = %v, want %v", err, domain.ErrTransactionLimitExceeded)
		}
		if repo.chargeParams != nil {
			t.Error("over-limit charge must not reach the ledger")
		}
	})

	t.Run("success normalizes card number and maps result", func(t *testing.T) {
		svc, repo, _, key, business := newGatewayFixture()
		auth := &AuthContext{Business: business, Key: key}
		amount := decimal.NewFromInt(25)
		repo.chargeResult = &domain.Transaction{
			ID:        uuid.New(),
			Reference: "txn_test",
			Type:      domain.TransactionTypePayment,
			Status:    domain.TransactionStatusCompleted,
			Amount:    amount,
			Currency:  DefaultCurrency,
			CardLast4: "6467",
			CreatedAt: time.Now(),
		}

		result, err := svc.Charge(ctx, auth, domain.ChargeRequest{
			CardNumber: "4539 1488 0343 6467",
			CVV:        "123",
			Amount:     amount,
		})
		if err != nil {
			t.Fatalf("Charge: %v", err)
		}
		if repo.chargeParams.CardNumber != validCard {
			t.Errorf("ledger saw card %q, want normalized %q", repo.chargeParams.CardNumber, validCard)
		}
		if repo.chargeParams.BusinessID != business.ID || repo.chargeParams.APIKeyID != key.ID {
			t.Error("charge params carry wrong identities")
		}
		if result.Status != domain.TransactionStatusCompleted || result.CardLast4 != "6467" {
			t.Errorf("unexpected result: %+v", result)
		}
	})
}
