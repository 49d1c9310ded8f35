/**
 * @description
 * This file defines the merchant API key model and its pure authorization
 * checks. Keys gate all external merchant access to the ledger: only a one-way
 * hash is ever persisted, permissions are a closed set checked by membership,
 * and both request-rate and transaction-volume counters are day-scoped with
 * lazy resets.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Permission is a named capability an API key may hold. The set is closed;
// anything outside it is rejected at key creation.
type Permission string

const (
	PermissionCharge       Permission = "charge"
	PermissionRefund       Permission = "refund"
	PermissionBalance      Permission = "balance"
	PermissionTransactions Permission = "transactions"
)

// AllPermissions is the full closed permission set.
var AllPermissions = []Permission{PermissionCharge, PermissionRefund, PermissionBalance, PermissionTransactions}

// ValidPermission reports whether p belongs to the closed permission set.
func ValidPermission(p Permission) bool {
	switch p {
	case PermissionCharge, PermissionRefund, PermissionBalance, PermissionTransactions:
		return true
	}
	return false
}

// MaxActiveAPIKeys caps the number of simultaneously active keys per business,
// enforced at creation time.
const MaxActiveAPIKeys = 5

// APIKey is a scoped merchant credential. The plaintext key is shown exactly
// once at creation; only KeyHash is persisted and lookups match by hash.
type APIKey struct {
	ID         uuid.UUID    `json:"id"`
	BusinessID uuid.UUID    `json:"business_id"`
	Name       string       `json:"name"`
	KeyHash    string       `json:"-"`
	KeyPrefix  string       `json:"key_prefix"`
	Permissions []Permission `json:"permissions"`

	RateLimitPerMinute int `json:"rate_limit_per_minute"`
	RateLimitPerDay    int `json:"rate_limit_per_day"`

	MaxTransactionAmount decimal.Decimal `json:"max_transaction_amount"`
	DailyVolumeLimit     decimal.Decimal `json:"daily_volume_limit"`
	DailyVolume          decimal.Decimal `json:"daily_volume"`
	VolumeResetDate      time.Time       `json:"volume_reset_date"`

	RequestsToday    int        `json:"requests_today"`
	RequestResetDate time.Time  `json:"request_reset_date"`
	TotalRequests    int64      `json:"total_requests"`
	LastUsedAt       *time.Time `json:"last_used_at,omitempty"`

	AllowedOrigins []string `json:"allowed_origins"`
	AllowedIPs     []string `json:"allowed_ips"`

	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	Active        bool       `json:"active"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
	RevokedReason string     `json:"revoked_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// HasPermission reports whether the key's scope set contains the capability.
func (k *APIKey) HasPermission(p Permission) bool {
	for _, have := range k.Permissions {
		if have == p {
			return true
		}
	}
	return false
}

// IsExpired reports whether the key has an expiry and has passed it.
func (k *APIKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && !now.Before(*k.ExpiresAt)
}

// IsUsable reports whether the key is active, unrevoked, and unexpired.
func (k *APIKey) IsUsable(now time.Time) bool {
	return k.Active && k.RevokedAt == nil && !k.IsExpired(now)
}

// IPAllowed checks the caller IP against the allow-list. An empty list allows
// every address.
func (k *APIKey) IPAllowed(ip string) bool {
	if len(k.AllowedIPs) == 0 {
		return true
	}
	for _, allowed := range k.AllowedIPs {
		if allowed == ip {
			return true
		}
	}
	return false
}

// EffectiveRequestsToday returns the day-scoped request counter after the lazy reset.
func (k *APIKey) EffectiveRequestsToday(now time.Time) int {
	return ResetIfNewPeriod(k.RequestsToday, 0, k.RequestResetDate, now)
}

// EffectiveDailyVolume returns the day-scoped transaction volume after the lazy reset.
func (k *APIKey) EffectiveDailyVolume(now time.Time) decimal.Decimal {
	return ResetIfNewPeriod(k.DailyVolume, decimal.Zero, k.VolumeResetDate, now)
}

// CheckTransactionLimits validates an amount against the per-transaction ceiling
// and the day-scoped rolling volume. A zero ceiling or volume limit means
// unlimited. This is quota, not rate limiting; the volume counter itself is only
// incremented inside the atomic write that commits the ledger entry.
func (k *APIKey) CheckTransactionLimits(amount decimal.Decimal, now time.Time) error {
	if k.MaxTransactionAmount.IsPositive() && amount.GreaterThan(k.MaxTransactionAmount) {
		return ErrTransactionLimitExceeded
	}
	if k.DailyVolumeLimit.IsPositive() && k.EffectiveDailyVolume(now).Add(amount).GreaterThan(k.DailyVolumeLimit) {
		return ErrTransactionLimitExceeded
	}
	return nil
}

// RecordVolume applies the lazy reset and adds amount to the day-scoped volume
// counter. Must run inside the same atomic scope as the ledger write.
func (k *APIKey) RecordVolume(amount decimal.Decimal, now time.Time) {
	k.DailyVolume = k.EffectiveDailyVolume(now).Add(amount)
	k.VolumeResetDate = now
}
