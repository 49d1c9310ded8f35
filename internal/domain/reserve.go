package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BankReserve is the singleton external-money boundary. Deposits draw from it,
// withdrawals return to it, so the sum of the reserve and all wallets is constant
// across every committed operation. Get-or-create races are settled by a storage
// uniqueness constraint, never by check-then-insert.
type BankReserve struct {
	Balance          decimal.Decimal `json:"balance"`
	TotalDeposits    decimal.Decimal `json:"total_deposits"`
	TotalWithdrawals decimal.Decimal `json:"total_withdrawals"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// InitialReserveBalance seeds the reserve when the singleton row is first created.
var InitialReserveBalance = decimal.NewFromInt(1_000_000)

// CanDisburse reports whether the reserve can fund a deposit of amount.
func (r *BankReserve) CanDisburse(amount decimal.Decimal) bool {
	return r.Balance.GreaterThanOrEqual(amount)
}
