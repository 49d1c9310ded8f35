/**
 * @description
 * This file defines the central ledger record and its derived attributes.
 * Transactions are immutable after creation with a single sanctioned exception:
 * a completed payment's status moves to refunded when a refund against it
 * commits. Every record carries a globally unique reference used for lookup and
 * for reference-based idempotency.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction types.
const (
	TransactionTypeDeposit  = "deposit"
	TransactionTypeWithdraw = "withdraw"
	TransactionTypeTransfer = "transfer"
	TransactionTypePayment  = "payment"
	TransactionTypeRefund   = "refund"
)

// Transaction statuses.
const (
	TransactionStatusCompleted = "completed"
	TransactionStatusRefunded  = "refunded"
)

// Derived transaction categories.
const (
	CategoryB2B = "B2B"
	CategoryB2C = "B2C"
	CategoryC2C = "C2C"
)

// Transaction is one immutable ledger row. Before/after balances are captured
// per side at commit time so conservation can be audited without replaying the
// ledger.
type Transaction struct {
	ID        uuid.UUID `json:"id"`
	Reference string    `json:"reference"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	Category  string    `json:"category,omitempty"`

	SenderAccountID    *uuid.UUID `json:"sender_account_id,omitempty"`
	RecipientAccountID *uuid.UUID `json:"recipient_account_id,omitempty"`

	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`

	SenderBalanceBefore    *decimal.Decimal `json:"sender_balance_before,omitempty"`
	SenderBalanceAfter     *decimal.Decimal `json:"sender_balance_after,omitempty"`
	RecipientBalanceBefore *decimal.Decimal `json:"recipient_balance_before,omitempty"`
	RecipientBalanceAfter  *decimal.Decimal `json:"recipient_balance_after,omitempty"`

	CardLast4             string     `json:"card_last4,omitempty"`
	APIKeyID              *uuid.UUID `json:"api_key_id,omitempty"`
	OriginalTransactionID *uuid.UUID `json:"original_transaction_id,omitempty"`

	Description       string    `json:"description,omitempty"`
	ExternalReference string    `json:"external_reference,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// NewReference mints a globally unique transaction reference.
func NewReference() string {
	return "txn_" + uuid.NewString()
}

// DeriveCategory maps the participants' account types to a ledger category at
// write time. Operations with only one resolvable participant (deposits and
// withdrawals against the reserve) stay uncategorized rather than guessed.
func DeriveCategory(sender, recipient *Account) string {
	if sender == nil || recipient == nil {
		return ""
	}
	switch {
	case sender.IsBusiness() && recipient.IsBusiness():
		return CategoryB2B
	case !sender.IsBusiness() && !recipient.IsBusiness():
		return CategoryC2C
	default:
		return CategoryB2C
	}
}

// TransactionListOptions controls pagination for transaction history queries.
type TransactionListOptions struct {
	Limit  int
	Offset int
	Type   string
}

// ChargeRequest is the merchant-facing payload for card charges. Shape checks
// happen at the edge; the ledger re-validates every business constraint against
// locked state.
type ChargeRequest struct {
	CardNumber        string          `json:"card_number"`
	CVV               string          `json:"cvv"`
	Amount            decimal.Decimal `json:"amount"`
	Description       string          `json:"description"`
	ExternalReference string          `json:"external_reference,omitempty"`
}

// ChargeResult is the stable merchant-facing charge response. The card number
// never appears beyond its last four digits.
type ChargeResult struct {
	TransactionID     uuid.UUID       `json:"transaction_id"`
	Reference         string          `json:"reference"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Status            string          `json:"status"`
	CardLast4         string          `json:"card_last4"`
	Description       string          `json:"description,omitempty"`
	ExternalReference string          `json:"external_reference,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// RefundRequest is the merchant-facing payload for refunds against a prior payment.
type RefundRequest struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason,omitempty"`
}

// RefundResult is the stable merchant-facing refund response.
type RefundResult struct {
	RefundID              uuid.UUID       `json:"refund_id"`
	Reference             string          `json:"reference"`
	OriginalTransactionID uuid.UUID       `json:"original_transaction_id"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	Status                string          `json:"status"`
	Reason                string          `json:"reason,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
}
