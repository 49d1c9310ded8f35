/**
 * @description
 * This file implements the five atomic ledger operations: transfer, deposit,
 * withdraw, charge, and refund. Every operation runs in one database
 * transaction: participant rows are locked with SELECT ... FOR UPDATE, the
 * movement is computed and re-validated by the pure builders in
 * ledger_build.go, the returned balances are applied, and one immutable
 * transaction row is written. Any failure aborts the whole scope.
 *
 * @notes
 * - Two-wallet operations lock rows in ascending account-id order so
 *   concurrent operations touching the same pair cannot deadlock.
 * - The reserve singleton is get-or-created with INSERT ... ON CONFLICT DO
 *   NOTHING backed by the table's singleton constraint, then locked.
 */

package store

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	cardgen "github.com/payvault/ledger-service/internal/card"
	"github.com/payvault/ledger-service/internal/domain"
)

func lockWallet(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (*domain.Wallet, error) {
	var w domain.Wallet
	err := tx.QueryRow(ctx, `
		SELECT id, account_id, balance, currency FROM wallets WHERE account_id = $1 FOR UPDATE
	`, accountID).Scan(&w.ID, &w.AccountID, &w.Balance, &w.Currency)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	return &w, nil
}

// lockWalletPair locks both wallets in ascending account-id order and returns
// them keyed to the requested ids.
func lockWalletPair(ctx context.Context, tx pgx.Tx, first, second uuid.UUID) (*domain.Wallet, *domain.Wallet, error) {
	a, b := first, second
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	wa, err := lockWallet(ctx, tx, a)
	if err != nil {
		return nil, nil, err
	}
	wb, err := lockWallet(ctx, tx, b)
	if err != nil {
		return nil, nil, err
	}
	if wa.AccountID == first {
		return wa, wb, nil
	}
	return wb, wa, nil
}

func getOrCreateReserve(ctx context.Context, tx pgx.Tx, lock bool) (*domain.BankReserve, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO bank_reserve (singleton, balance, total_deposits, total_withdrawals, updated_at)
		VALUES (true, $1, 0, 0, NOW())
		ON CONFLICT (singleton) DO NOTHING
	`, domain.InitialReserveBalance)
	if err != nil {
		return nil, err
	}

	query := `SELECT balance, total_deposits, total_withdrawals, updated_at FROM bank_reserve WHERE singleton`
	if lock {
		query += ` FOR UPDATE`
	}
	var reserve domain.BankReserve
	err = tx.QueryRow(ctx, query).Scan(&reserve.Balance, &reserve.TotalDeposits, &reserve.TotalWithdrawals, &reserve.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &reserve, nil
}

func updateWalletBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balance decimal.Decimal) error {
	_, err := tx.Exec(ctx, `UPDATE wallets SET balance = $1 WHERE id = $2`, balance, walletID)
	return err
}

func insertTransaction(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO transactions (
			id, reference, type, status, category,
			sender_account_id, recipient_account_id, amount, currency,
			sender_balance_before, sender_balance_after,
			recipient_balance_before, recipient_balance_after,
			card_last4, api_key_id, original_transaction_id,
			description, external_reference, created_at
		) VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10, $11, $12, $13,
		          NULLIF($14, ''), $15, $16, NULLIF($17, ''), NULLIF($18, ''), $19)
	`,
		t.ID, t.Reference, t.Type, t.Status, t.Category,
		t.SenderAccountID, t.RecipientAccountID, t.Amount, t.Currency,
		t.SenderBalanceBefore, t.SenderBalanceAfter,
		t.RecipientBalanceBefore, t.RecipientBalanceAfter,
		t.CardLast4, t.APIKeyID, t.OriginalTransactionID,
		t.Description, t.ExternalReference, t.CreatedAt,
	)
	return err
}

func findAccountTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (*domain.Account, error) {
	return scanAccount(tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, accountID))
}

// findAccountMaybe resolves an account, mapping a miss to nil so the builders
// can decide where an unresolvable participant ranks in the validation order.
func findAccountMaybe(ctx context.Context, tx pgx.Tx, accountID uuid.UUID) (*domain.Account, error) {
	account, err := findAccountTx(ctx, tx, accountID)
	if errors.Is(err, domain.ErrAccountNotFound) {
		return nil, nil
	}
	return account, err
}

// Transfer atomically moves amount between two wallets.
func (r *PostgresRepository) Transfer(ctx context.Context, senderID, recipientID uuid.UUID, amount decimal.Decimal, description string, now time.Time) (*domain.Transaction, error) {
	if senderID == recipientID {
		return nil, domain.ErrSameAccount
	}
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	sender, err := findAccountTx(ctx, tx, senderID)
	if err != nil {
		return nil, err
	}
	recipient, err := findAccountTx(ctx, tx, recipientID)
	if err != nil {
		return nil, err
	}

	senderWallet, recipientWallet, err := lockWalletPair(ctx, tx, senderID, recipientID)
	if err != nil {
		return nil, err
	}

	txn, err := buildTransfer(sender, recipient, senderWallet, recipientWallet, amount, description, now)
	if err != nil {
		return nil, err
	}

	if err := updateWalletBalance(ctx, tx, senderWallet.ID, *txn.SenderBalanceAfter); err != nil {
		return nil, err
	}
	if err := updateWalletBalance(ctx, tx, recipientWallet.ID, *txn.RecipientBalanceAfter); err != nil {
		return nil, err
	}
	if err := insertTransaction(ctx, tx, txn); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return txn, nil
}

// Deposit atomically moves amount from the bank reserve into a wallet.
func (r *PostgresRepository) Deposit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, description string, now time.Time) (*domain.Transaction, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	reserve, err := getOrCreateReserve(ctx, tx, true)
	if err != nil {
		return nil, err
	}
	wallet, err := lockWallet(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}

	txn, err := buildDeposit(reserve, wallet, accountID, amount, description, now)
	if err != nil {
		return nil, err
	}

	if err := updateWalletBalance(ctx, tx, wallet.ID, *txn.RecipientBalanceAfter); err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx, `
		UPDATE bank_reserve
		SET balance = balance - $1, total_deposits = total_deposits + $1, updated_at = $2
		WHERE singleton
	`, amount, now)
	if err != nil {
		return nil, err
	}
	if err := insertTransaction(ctx, tx, txn); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return txn, nil
}

// Withdraw atomically moves amount from a wallet back to the bank reserve.
func (r *PostgresRepository) Withdraw(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, description string, now time.Time) (*domain.Transaction, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Lock the reserve first, matching Deposit's order.
	if _, err := getOrCreateReserve(ctx, tx, true); err != nil {
		return nil, err
	}
	wallet, err := lockWallet(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}

	txn, err := buildWithdraw(wallet, accountID, amount, description, now)
	if err != nil {
		return nil, err
	}

	if err := updateWalletBalance(ctx, tx, wallet.ID, *txn.SenderBalanceAfter); err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx, `
		UPDATE bank_reserve
		SET balance = balance + $1, total_withdrawals = total_withdrawals + $1, updated_at = $2
		WHERE singleton
	`, amount, now)
	if err != nil {
		return nil, err
	}
	if err := insertTransaction(ctx, tx, txn); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return txn, nil
}

// lockChargeWallets locks the charge participants' wallets in ascending
// account-id order. The cardholder wallet must exist; a missing business
// wallet comes back nil so buildCharge can rank the failure after the
// card-ordered checks.
func lockChargeWallets(ctx context.Context, tx pgx.Tx, customerID, businessID uuid.UUID) (*domain.Wallet, *domain.Wallet, error) {
	ids := []uuid.UUID{customerID, businessID}
	if bytes.Compare(ids[0][:], ids[1][:]) > 0 {
		ids[0], ids[1] = ids[1], ids[0]
	}

	var customerWallet, businessWallet *domain.Wallet
	for _, id := range ids {
		w, err := lockWallet(ctx, tx, id)
		if err != nil {
			if id == businessID && errors.Is(err, domain.ErrAccountNotFound) {
				continue
			}
			return nil, nil, err
		}
		if w.AccountID == customerID {
			customerWallet = w
		} else {
			businessWallet = w
		}
	}
	return customerWallet, businessWallet, nil
}

// ChargeCard atomically runs a merchant card charge: the card, both wallets,
// and the API key row are locked, the ordered authorization re-runs against
// the locked state, and the debit, credit, card spending, key volume, and
// ledger row all commit together. A rate-limited or failed charge never
// reaches the volume increment.
func (r *PostgresRepository) ChargeCard(ctx context.Context, params ChargeParams) (*domain.Transaction, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	card, err := scanCard(tx.QueryRow(ctx, `SELECT `+cardColumns+` FROM virtual_cards WHERE card_number = $1 FOR UPDATE`, params.CardNumber))
	if err != nil {
		return nil, err
	}
	customerID := card.AccountID

	customerWallet, businessWallet, err := lockChargeWallets(ctx, tx, customerID, params.BusinessID)
	if err != nil {
		return nil, err
	}

	key, err := scanAPIKey(tx.QueryRow(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE id = $1 FOR UPDATE`, params.APIKeyID))
	if err != nil {
		return nil, err
	}

	customer, err := findAccountMaybe(ctx, tx, customerID)
	if err != nil {
		return nil, err
	}
	business, err := findAccountMaybe(ctx, tx, params.BusinessID)
	if err != nil {
		return nil, err
	}

	txn, err := buildCharge(chargeState{
		Card:           card,
		Customer:       customer,
		Business:       business,
		CustomerWallet: customerWallet,
		BusinessWallet: businessWallet,
		Key:            key,
	}, params, cardgen.VerifySecret)
	if err != nil {
		return nil, err
	}

	if err := updateWalletBalance(ctx, tx, customerWallet.ID, *txn.SenderBalanceAfter); err != nil {
		return nil, err
	}
	if err := updateWalletBalance(ctx, tx, businessWallet.ID, *txn.RecipientBalanceAfter); err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE virtual_cards
		SET daily_spent = $1, last_reset_date = $2, last_used_at = $3
		WHERE id = $4
	`, card.DailySpent, params.Now.UTC(), params.Now, card.ID)
	if err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx, `
		UPDATE api_keys
		SET daily_volume = $1, volume_reset_date = $2
		WHERE id = $3
	`, key.DailyVolume, params.Now.UTC(), key.ID)
	if err != nil {
		return nil, err
	}

	if err := insertTransaction(ctx, tx, txn); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return txn, nil
}

// RefundPayment atomically reverses a completed payment: the original row is
// locked, the ordered refund checks re-run against it, the business is
// debited, the customer credited, the original marked refunded, and a linked
// refund row written. A unique index on the original-transaction link makes a
// racing second refund fail even if both saw status=completed before locking.
func (r *PostgresRepository) RefundPayment(ctx context.Context, params RefundParams) (*domain.Transaction, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	original, err := scanTransaction(tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, params.OriginalTransactionID))
	if err != nil {
		return nil, err
	}
	if original.SenderAccountID == nil || original.RecipientAccountID == nil {
		return nil, domain.ErrTransactionNotFound
	}
	customerID := *original.SenderAccountID

	business, err := findAccountTx(ctx, tx, params.BusinessID)
	if err != nil {
		return nil, err
	}
	customer, err := findAccountTx(ctx, tx, customerID)
	if err != nil {
		return nil, err
	}

	businessWallet, customerWallet, err := lockWalletPair(ctx, tx, params.BusinessID, customerID)
	if err != nil {
		return nil, err
	}

	txn, err := buildRefund(original, business, customer, businessWallet, customerWallet, params)
	if err != nil {
		return nil, err
	}

	if err := updateWalletBalance(ctx, tx, businessWallet.ID, *txn.SenderBalanceAfter); err != nil {
		return nil, err
	}
	if err := updateWalletBalance(ctx, tx, customerWallet.ID, *txn.RecipientBalanceAfter); err != nil {
		return nil, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE transactions SET status = $1 WHERE id = $2 AND status = $3
	`, domain.TransactionStatusRefunded, original.ID, domain.TransactionStatusCompleted)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, domain.ErrAlreadyRefunded
	}

	if err := insertTransaction(ctx, tx, txn); err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrAlreadyRefunded
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return txn, nil
}
