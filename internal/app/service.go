/**
 * @description
 * This file contains the core business logic for the ledger service. The
 * `Service` struct orchestrates account registration and login, the internal
 * ledger operations, and the read surfaces, coordinating between the database
 * repository and the optional Redis rate limiter. Merchant authentication and
 * the merchant-facing operations live in gateway.go; API key lifecycle lives
 * in apikeys.go.
 */

package app

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	cardgen "github.com/payvault/ledger-service/internal/card"
	"github.com/payvault/ledger-service/internal/domain"
	"github.com/payvault/ledger-service/internal/store"
)

const (
	// DefaultCurrency is the single currency of the closed loop.
	DefaultCurrency = "USD"

	// cardIssueAttempts bounds retries on a card-number collision.
	cardIssueAttempts = 3

	tokenTTL = 24 * time.Hour
)

// DefaultCardDailyLimit caps a fresh card's spending per calendar day.
var DefaultCardDailyLimit = decimal.NewFromInt(1000)

// Service provides the core business logic for the ledger.
type Service struct {
	repo      store.Repository
	limiter   *RedisRateLimiter
	log       *logrus.Logger
	jwtSecret []byte
	now       func() time.Time
}

// NewService creates a new ledger service instance. limiter may be nil; the
// per-minute window is then skipped and the database day counter remains the
// only rate control.
func NewService(repo store.Repository, limiter *RedisRateLimiter, logger *logrus.Logger, jwtSecret string) *Service {
	return &Service{
		repo:      repo,
		limiter:   limiter,
		log:       logger,
		jwtSecret: []byte(jwtSecret),
		now:       time.Now,
	}
}

// RegisterParams carries a registration request after shape validation.
type RegisterParams struct {
	Email        string
	Password     string
	AccountType  string
	BusinessName string
}

// IssuedCard is the one-time reveal of a fresh card's secrets. It exists only
// in the registration response and is never reconstructable.
type IssuedCard struct {
	CardNumber string          `json:"card_number"`
	CVV        string          `json:"cvv"`
	PIN        string          `json:"pin"`
	ExpiresAt  time.Time       `json:"expires_at"`
	DailyLimit decimal.Decimal `json:"daily_limit"`
}

// RegisteredAccount bundles the new account with its one-time card reveal.
type RegisteredAccount struct {
	Account *domain.Account `json:"account"`
	Card    *IssuedCard     `json:"card,omitempty"`
}

// Register creates an account with its wallet and, for personal accounts, a
// virtual card whose plaintext secrets are returned exactly once.
func (s *Service) Register(ctx context.Context, params RegisterParams) (*RegisteredAccount, error) {
	email := strings.ToLower(strings.TrimSpace(params.Email))
	if email == "" || !strings.Contains(email, "@") || len(params.Password) < 8 {
		return nil, domain.ErrValidation
	}
	if params.AccountType != domain.AccountTypePersonal && params.AccountType != domain.AccountTypeBusiness {
		return nil, domain.ErrValidation
	}
	if params.AccountType == domain.AccountTypeBusiness && strings.TrimSpace(params.BusinessName) == "" {
		return nil, domain.ErrValidation
	}

	passwordHash, err := cardgen.HashSecret(params.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	account := &domain.Account{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: passwordHash,
		Role:         domain.RoleUser,
		AccountType:  params.AccountType,
		BusinessName: strings.TrimSpace(params.BusinessName),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	wallet := &domain.Wallet{
		ID:        uuid.New(),
		AccountID: account.ID,
		Balance:   decimal.Zero,
		Currency:  DefaultCurrency,
	}

	var issued *IssuedCard
	var vcard *domain.VirtualCard
	if params.AccountType == domain.AccountTypePersonal {
		vcard, issued, err = s.issueCard(account.ID, now)
		if err != nil {
			return nil, err
		}
	}

	for attempt := 0; ; attempt++ {
		err = s.repo.CreateAccount(ctx, account, wallet, vcard)
		if err == nil {
			break
		}
		if err == store.ErrDuplicateCardNumber && attempt < cardIssueAttempts {
			vcard, issued, err = s.issueCard(account.ID, now)
			if err != nil {
				return nil, err
			}
			continue
		}
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"account_id":   account.ID,
		"account_type": account.AccountType,
	}).Info("account registered")

	return &RegisteredAccount{Account: account, Card: issued}, nil
}

func (s *Service) issueCard(accountID uuid.UUID, now time.Time) (*domain.VirtualCard, *IssuedCard, error) {
	number, err := cardgen.GenerateNumber()
	if err != nil {
		return nil, nil, err
	}
	cvv, err := cardgen.GenerateCVV()
	if err != nil {
		return nil, nil, err
	}
	pin, err := cardgen.GeneratePIN()
	if err != nil {
		return nil, nil, err
	}
	cvvHash, err := cardgen.HashSecret(cvv)
	if err != nil {
		return nil, nil, err
	}
	pinHash, err := cardgen.HashSecret(pin)
	if err != nil {
		return nil, nil, err
	}

	expiresAt := cardgen.ExpiryFrom(now)
	vcard := &domain.VirtualCard{
		ID:            uuid.New(),
		AccountID:     accountID,
		CardNumber:    number,
		CVVHash:       cvvHash,
		PINHash:       pinHash,
		ExpiresAt:     expiresAt,
		Active:        true,
		DailyLimit:    DefaultCardDailyLimit,
		DailySpent:    decimal.Zero,
		LastResetDate: now,
	}
	issued := &IssuedCard{
		CardNumber: number,
		CVV:        cvv,
		PIN:        pin,
		ExpiresAt:  expiresAt,
		DailyLimit: DefaultCardDailyLimit,
	}
	return vcard, issued, nil
}

// Login checks credentials and mints a signed account token.
func (s *Service) Login(ctx context.Context, email, password string) (string, *domain.Account, error) {
	account, err := s.repo.FindAccountByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		// Same failure for unknown email and wrong password.
		return "", nil, domain.ErrUnauthorized
	}
	if !cardgen.VerifySecret(account.PasswordHash, password) {
		return "", nil, domain.ErrUnauthorized
	}

	now := s.now()
	claims := jwt.MapClaims{
		"sub":  account.ID.String(),
		"role": account.Role,
		"iat":  now.Unix(),
		"exp":  now.Add(tokenTTL).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", nil, err
	}
	return token, account, nil
}

// Profile returns an account by id.
func (s *Service) Profile(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	return s.repo.FindAccountByID(ctx, accountID)
}

// WalletBalance returns an account's wallet.
func (s *Service) WalletBalance(ctx context.Context, accountID uuid.UUID) (*domain.Wallet, error) {
	return s.repo.FindWalletByAccountID(ctx, accountID)
}

// CardInfo returns the account's card with a masked number. Plaintext secrets
// are not retrievable after issuance.
type CardInfo struct {
	ID           uuid.UUID       `json:"id"`
	MaskedNumber string          `json:"masked_number"`
	Last4        string          `json:"last4"`
	ExpiresAt    time.Time       `json:"expires_at"`
	Active       bool            `json:"active"`
	DailyLimit   decimal.Decimal `json:"daily_limit"`
	DailySpent   decimal.Decimal `json:"daily_spent"`
}

func (s *Service) CardInfo(ctx context.Context, accountID uuid.UUID) (*CardInfo, error) {
	c, err := s.repo.FindCardByAccountID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &CardInfo{
		ID:           c.ID,
		MaskedNumber: cardgen.Mask(c.CardNumber),
		Last4:        cardgen.Last4(c.CardNumber),
		ExpiresAt:    c.ExpiresAt,
		Active:       c.Active,
		DailyLimit:   c.DailyLimit,
		DailySpent:   c.EffectiveDailySpent(s.now()),
	}, nil
}

// TransactionHistory lists an account's ledger rows, newest first.
func (s *Service) TransactionHistory(ctx context.Context, accountID uuid.UUID, opts domain.TransactionListOptions) ([]domain.Transaction, error) {
	return s.repo.ListTransactionsByAccount(ctx, accountID, opts)
}

// Transfer moves funds between two account wallets.
func (s *Service) Transfer(ctx context.Context, senderID, recipientID uuid.UUID, amount decimal.Decimal, description string) (*domain.Transaction, error) {
	txn, err := s.repo.Transfer(ctx, senderID, recipientID, amount, description, s.now())
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"reference": txn.Reference,
		"amount":    txn.Amount,
	}).Info("transfer completed")
	return txn, nil
}

// Deposit moves funds from the bank reserve into an account wallet.
func (s *Service) Deposit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, description string) (*domain.Transaction, error) {
	return s.repo.Deposit(ctx, accountID, amount, description, s.now())
}

// Withdraw moves funds from an account wallet back to the bank reserve.
func (s *Service) Withdraw(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, description string) (*domain.Transaction, error) {
	return s.repo.Withdraw(ctx, accountID, amount, description, s.now())
}

// VerifyBusiness flips the verification flag on a business account. Admin only.
func (s *Service) VerifyBusiness(ctx context.Context, caller *domain.Account, businessID uuid.UUID, verified bool) error {
	if caller.Role != domain.RoleAdmin {
		return domain.ErrForbidden
	}
	if err := s.repo.SetBusinessVerified(ctx, businessID, verified); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{
		"business_id": businessID,
		"verified":    verified,
	}).Info("business verification updated")
	return nil
}

// ReserveSnapshot returns the bank reserve state. Admin only.
func (s *Service) ReserveSnapshot(ctx context.Context, caller *domain.Account) (*domain.BankReserve, error) {
	if caller.Role != domain.RoleAdmin {
		return nil, domain.ErrForbidden
	}
	return s.repo.GetReserve(ctx)
}
