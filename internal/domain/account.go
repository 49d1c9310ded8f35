/**
 * @description
 * This file defines the account-side domain models: accounts, wallets, and the
 * virtual card attached to personal accounts. Monetary values use fixed-point
 * decimals; float64 never touches a balance.
 *
 * @notes
 * - Personal accounts always carry exactly one virtual card, issued at
 *   registration. Business accounts never do.
 * - Wallet balances are non-negative by invariant, enforced both here and by a
 *   CHECK constraint at the storage layer.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Account types.
const (
	AccountTypePersonal = "personal"
	AccountTypeBusiness = "business"
)

// Account represents a registered account holder, personal or business.
type Account struct {
	ID               uuid.UUID `json:"id"`
	Email            string    `json:"email"`
	PasswordHash     string    `json:"-"`
	Role             string    `json:"role"`
	AccountType      string    `json:"account_type"`
	BusinessName     string    `json:"business_name,omitempty"`
	BusinessVerified bool      `json:"business_verified"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// IsBusiness reports whether the account is a business account.
func (a *Account) IsBusiness() bool {
	return a.AccountType == AccountTypeBusiness
}

// Wallet holds an account's balance. One wallet per account.
type Wallet struct {
	ID        uuid.UUID       `json:"id"`
	AccountID uuid.UUID       `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
}

// VirtualCard is the closed-loop payment card issued to personal accounts.
// CVV and PIN are stored only as bcrypt hashes; the plaintext is revealed once
// at issuance and is not re-derivable.
type VirtualCard struct {
	ID            uuid.UUID       `json:"id"`
	AccountID     uuid.UUID       `json:"account_id"`
	CardNumber    string          `json:"-"`
	CVVHash       string          `json:"-"`
	PINHash       string          `json:"-"`
	ExpiresAt     time.Time       `json:"expires_at"`
	Active        bool            `json:"active"`
	DailyLimit    decimal.Decimal `json:"daily_limit"`
	DailySpent    decimal.Decimal `json:"daily_spent"`
	LastResetDate time.Time       `json:"last_reset_date"`
	LastUsedAt    *time.Time      `json:"last_used_at,omitempty"`
}

// IsExpired reports whether the card has passed its expiry at the given instant.
func (c *VirtualCard) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// EffectiveDailySpent returns the card's spent-today figure after the lazy
// calendar-day reset. It never mutates the card.
func (c *VirtualCard) EffectiveDailySpent(now time.Time) decimal.Decimal {
	return ResetIfNewPeriod(c.DailySpent, decimal.Zero, c.LastResetDate, now)
}

// CanSpend reports whether spending amount now would keep the card within its
// daily limit, applying the lazy reset first.
func (c *VirtualCard) CanSpend(amount decimal.Decimal, now time.Time) bool {
	return c.EffectiveDailySpent(now).Add(amount).LessThanOrEqual(c.DailyLimit)
}

// RecordSpending applies the lazy reset, adds amount to the daily counter, and
// stamps last-used. Callers must invoke this inside the same atomic scope as the
// balance mutation so two concurrent charges cannot both pass CanSpend.
func (c *VirtualCard) RecordSpending(amount decimal.Decimal, now time.Time) {
	c.DailySpent = c.EffectiveDailySpent(now).Add(amount)
	c.LastResetDate = now
	c.LastUsedAt = &now
}
