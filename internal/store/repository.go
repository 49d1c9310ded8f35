/**
 * @description
 * This file defines the `Repository` interface, the contract for all data
 * access the ledger service needs. The interface keeps business logic
 * decoupled from PostgreSQL and lets tests substitute an in-memory stub.
 *
 * Every mutating ledger operation on this interface is atomic: it runs in a
 * single database transaction and either commits all of its writes (balances,
 * counters, the new ledger row) or none of them.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/payvault/ledger-service/internal/domain"
)

// ChargeParams carries everything a card charge needs. Now is the single
// authoritative clock reading for the whole operation.
type ChargeParams struct {
	BusinessID        uuid.UUID
	APIKeyID          uuid.UUID
	CardNumber        string
	CVV               string
	Amount            decimal.Decimal
	Description       string
	ExternalReference string
	Now               time.Time
}

// RefundParams carries everything a refund against a prior payment needs.
type RefundParams struct {
	BusinessID            uuid.UUID
	APIKeyID              uuid.UUID
	OriginalTransactionID uuid.UUID
	Amount                decimal.Decimal
	Reason                string
	Now                   time.Time
}

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Account and wallet methods
	CreateAccount(ctx context.Context, account *domain.Account, wallet *domain.Wallet, card *domain.VirtualCard) error
	FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error)
	FindAccountByEmail(ctx context.Context, email string) (*domain.Account, error)
	SetBusinessVerified(ctx context.Context, accountID uuid.UUID, verified bool) error
	FindWalletByAccountID(ctx context.Context, accountID uuid.UUID) (*domain.Wallet, error)
	FindCardByAccountID(ctx context.Context, accountID uuid.UUID) (*domain.VirtualCard, error)

	// API key methods
	CreateAPIKey(ctx context.Context, key *domain.APIKey) error
	FindAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error)
	ListAPIKeysByBusiness(ctx context.Context, businessID uuid.UUID) ([]domain.APIKey, error)
	CountActiveAPIKeys(ctx context.Context, businessID uuid.UUID) (int, error)
	RevokeAPIKey(ctx context.Context, keyID, businessID uuid.UUID, reason string, now time.Time) error
	// RecordAPIKeyUsage atomically applies the lazy day reset, increments the
	// request counters, stamps last-used, and returns the post-increment
	// day-scoped count for limit comparison.
	RecordAPIKeyUsage(ctx context.Context, keyID uuid.UUID, now time.Time) (int, error)

	// Ledger operations, each one atomic transaction scope.
	Transfer(ctx context.Context, senderID, recipientID uuid.UUID, amount decimal.Decimal, description string, now time.Time) (*domain.Transaction, error)
	Deposit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, description string, now time.Time) (*domain.Transaction, error)
	Withdraw(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, description string, now time.Time) (*domain.Transaction, error)
	ChargeCard(ctx context.Context, params ChargeParams) (*domain.Transaction, error)
	RefundPayment(ctx context.Context, params RefundParams) (*domain.Transaction, error)

	// Read methods
	FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error)
	FindTransactionByReference(ctx context.Context, reference string) (*domain.Transaction, error)
	ListTransactionsByAccount(ctx context.Context, accountID uuid.UUID, opts domain.TransactionListOptions) ([]domain.Transaction, error)
	GetReserve(ctx context.Context) (*domain.BankReserve, error)
}
