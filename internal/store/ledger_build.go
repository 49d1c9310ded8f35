/**
 * @description
 * Pure construction of the five ledger movements. Each builder takes the rows
 * the caller has already locked, re-runs the ordered validation against that
 * state, computes before/after balances in fixed-point decimal, and returns
 * the immutable transaction row to persist. The SQL layer in
 * postgres_ledger.go only locks, applies the returned balances, and commits,
 * so the money math and validation precedence are testable without a database.
 */

package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	cardgen "github.com/payvault/ledger-service/internal/card"
	"github.com/payvault/ledger-service/internal/domain"
)

func buildTransfer(sender, recipient *domain.Account, senderWallet, recipientWallet *domain.Wallet, amount decimal.Decimal, description string, now time.Time) (*domain.Transaction, error) {
	if sender == nil || recipient == nil {
		return nil, domain.ErrAccountNotFound
	}
	if sender.ID == recipient.ID {
		return nil, domain.ErrSameAccount
	}
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	if senderWallet == nil || senderWallet.Balance.LessThan(amount) {
		return nil, domain.ErrInsufficientFunds
	}

	senderBefore := senderWallet.Balance
	recipientBefore := recipientWallet.Balance
	senderAfter := senderBefore.Sub(amount)
	recipientAfter := recipientBefore.Add(amount)

	return &domain.Transaction{
		ID:                     uuid.New(),
		Reference:              domain.NewReference(),
		Type:                   domain.TransactionTypeTransfer,
		Status:                 domain.TransactionStatusCompleted,
		Category:               domain.DeriveCategory(sender, recipient),
		SenderAccountID:        &sender.ID,
		RecipientAccountID:     &recipient.ID,
		Amount:                 amount,
		Currency:               senderWallet.Currency,
		SenderBalanceBefore:    &senderBefore,
		SenderBalanceAfter:     &senderAfter,
		RecipientBalanceBefore: &recipientBefore,
		RecipientBalanceAfter:  &recipientAfter,
		Description:            description,
		CreatedAt:              now,
	}, nil
}

func buildDeposit(reserve *domain.BankReserve, wallet *domain.Wallet, accountID uuid.UUID, amount decimal.Decimal, description string, now time.Time) (*domain.Transaction, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	if reserve == nil || !reserve.CanDisburse(amount) {
		return nil, domain.ErrReserveInsufficient
	}
	if wallet == nil {
		return nil, domain.ErrAccountNotFound
	}

	before := wallet.Balance
	after := before.Add(amount)

	return &domain.Transaction{
		ID:                     uuid.New(),
		Reference:              domain.NewReference(),
		Type:                   domain.TransactionTypeDeposit,
		Status:                 domain.TransactionStatusCompleted,
		RecipientAccountID:     &accountID,
		Amount:                 amount,
		Currency:               wallet.Currency,
		RecipientBalanceBefore: &before,
		RecipientBalanceAfter:  &after,
		Description:            description,
		CreatedAt:              now,
	}, nil
}

func buildWithdraw(wallet *domain.Wallet, accountID uuid.UUID, amount decimal.Decimal, description string, now time.Time) (*domain.Transaction, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	if wallet == nil || wallet.Balance.LessThan(amount) {
		return nil, domain.ErrInsufficientFunds
	}

	before := wallet.Balance
	after := before.Sub(amount)

	return &domain.Transaction{
		ID:                  uuid.New(),
		Reference:           domain.NewReference(),
		Type:                domain.TransactionTypeWithdraw,
		Status:              domain.TransactionStatusCompleted,
		SenderAccountID:     &accountID,
		Amount:              amount,
		Currency:            wallet.Currency,
		SenderBalanceBefore: &before,
		SenderBalanceAfter:  &after,
		Description:         description,
		CreatedAt:           now,
	}, nil
}

// chargeState carries the rows a charge has locked or resolved. The business
// side may be nil; buildCharge resolves it after every card-ordered check.
type chargeState struct {
	Card           *domain.VirtualCard
	Customer       *domain.Account
	Business       *domain.Account
	CustomerWallet *domain.Wallet
	BusinessWallet *domain.Wallet
	Key            *domain.APIKey
}

// buildCharge re-runs the ordered charge validation, then mutates the card's
// daily counter and the key's volume counter so the caller persists them in
// the same scope as the balance moves. An unresolvable business surfaces only
// after the card-ordered codes and the key limits.
func buildCharge(st chargeState, params ChargeParams, verify domain.SecretVerifier) (*domain.Transaction, error) {
	if err := domain.AuthorizeCharge(st.Card, st.CustomerWallet, params.Amount, params.CVV, verify, params.Now); err != nil {
		return nil, err
	}
	if err := st.Key.CheckTransactionLimits(params.Amount, params.Now); err != nil {
		return nil, err
	}
	if st.Customer == nil || st.Business == nil || st.BusinessWallet == nil {
		return nil, domain.ErrAccountNotFound
	}

	customerBefore := st.CustomerWallet.Balance
	businessBefore := st.BusinessWallet.Balance
	customerAfter := customerBefore.Sub(params.Amount)
	businessAfter := businessBefore.Add(params.Amount)

	st.Card.RecordSpending(params.Amount, params.Now)
	st.Key.RecordVolume(params.Amount, params.Now)

	customerID := st.Card.AccountID
	apiKeyID := params.APIKeyID
	return &domain.Transaction{
		ID:                     uuid.New(),
		Reference:              domain.NewReference(),
		Type:                   domain.TransactionTypePayment,
		Status:                 domain.TransactionStatusCompleted,
		Category:               domain.DeriveCategory(st.Customer, st.Business),
		SenderAccountID:        &customerID,
		RecipientAccountID:     &params.BusinessID,
		Amount:                 params.Amount,
		Currency:               st.CustomerWallet.Currency,
		SenderBalanceBefore:    &customerBefore,
		SenderBalanceAfter:     &customerAfter,
		RecipientBalanceBefore: &businessBefore,
		RecipientBalanceAfter:  &businessAfter,
		CardLast4:              cardgen.Last4(st.Card.CardNumber),
		APIKeyID:               &apiKeyID,
		Description:            params.Description,
		ExternalReference:      params.ExternalReference,
		CreatedAt:              params.Now,
	}, nil
}

// buildRefund re-runs the ordered refund validation against the locked
// original, flips it to refunded, and returns the linked refund row. The
// caller persists the flip with an update guarded on the completed status so
// a racing second refund loses even after both passed validation.
func buildRefund(original *domain.Transaction, business, customer *domain.Account, businessWallet, customerWallet *domain.Wallet, params RefundParams) (*domain.Transaction, error) {
	if err := domain.AuthorizeRefund(original, params.BusinessID, businessWallet, params.Amount); err != nil {
		return nil, err
	}
	if original.SenderAccountID == nil {
		return nil, domain.ErrTransactionNotFound
	}
	if customer == nil || customerWallet == nil {
		return nil, domain.ErrAccountNotFound
	}

	businessBefore := businessWallet.Balance
	customerBefore := customerWallet.Balance
	businessAfter := businessBefore.Sub(params.Amount)
	customerAfter := customerBefore.Add(params.Amount)

	original.Status = domain.TransactionStatusRefunded

	customerID := *original.SenderAccountID
	apiKeyID := params.APIKeyID
	return &domain.Transaction{
		ID:                     uuid.New(),
		Reference:              domain.NewReference(),
		Type:                   domain.TransactionTypeRefund,
		Status:                 domain.TransactionStatusCompleted,
		Category:               domain.DeriveCategory(business, customer),
		SenderAccountID:        &params.BusinessID,
		RecipientAccountID:     &customerID,
		Amount:                 params.Amount,
		Currency:               businessWallet.Currency,
		SenderBalanceBefore:    &businessBefore,
		SenderBalanceAfter:     &businessAfter,
		RecipientBalanceBefore: &customerBefore,
		RecipientBalanceAfter:  &customerAfter,
		CardLast4:              original.CardLast4,
		APIKeyID:               &apiKeyID,
		OriginalTransactionID:  &original.ID,
		Description:            params.Reason,
		CreatedAt:              params.Now,
	}, nil
}
