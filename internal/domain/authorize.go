/**
 * @description
 * This file holds the ordered authorization checks for charges and refunds.
 * The ordering is part of the contract: callers observing an error code can
 * rely on every earlier check having passed. Both functions are pure over
 * their inputs and a single caller-supplied clock reading, so the validation
 * precedence is testable without a database.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SecretVerifier compares a plaintext secret against a stored one-way hash.
// The card package supplies the bcrypt-backed implementation.
type SecretVerifier func(hash, plaintext string) bool

// AuthorizeCharge runs the ordered charge validation against the card and the
// cardholder wallet. Checks run in a fixed order and stop at the first failure:
// amount, card presence, active flag, expiry, CVV, daily spending limit, funds.
// Callers must hold row locks on the card and wallet so the state checked here
// cannot move before the debit commits.
func AuthorizeCharge(card *VirtualCard, wallet *Wallet, amount decimal.Decimal, cvv string, verify SecretVerifier, now time.Time) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if card == nil {
		return ErrCardNotFound
	}
	if !card.Active {
		return ErrCardInactive
	}
	if card.IsExpired(now) {
		return ErrCardExpired
	}
	if !verify(card.CVVHash, cvv) {
		return ErrInvalidCVV
	}
	if !card.CanSpend(amount, now) {
		return ErrDailyLimitExceeded
	}
	if wallet == nil || wallet.Balance.LessThan(amount) {
		return ErrInsufficientFunds
	}
	return nil
}

// AuthorizeRefund runs the ordered refund validation against the locked
// original transaction and the refunding business's wallet. A transaction that
// exists but does not belong to the business, or is not a payment, reports
// not-found so callers cannot probe other merchants' ledger entries.
func AuthorizeRefund(original *Transaction, businessID uuid.UUID, businessWallet *Wallet, amount decimal.Decimal) error {
	if original == nil {
		return ErrTransactionNotFound
	}
	if original.Type != TransactionTypePayment {
		return ErrTransactionNotFound
	}
	if original.RecipientAccountID == nil || *original.RecipientAccountID != businessID {
		return ErrTransactionNotFound
	}
	if original.Status == TransactionStatusRefunded {
		return ErrAlreadyRefunded
	}
	if original.Status != TransactionStatusCompleted {
		return ErrTransactionNotFound
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if amount.GreaterThan(original.Amount) {
		return ErrRefundExceedsOriginal
	}
	if businessWallet == nil || businessWallet.Balance.LessThan(amount) {
		return ErrInsufficientFunds
	}
	return nil
}
