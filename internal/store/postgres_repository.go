/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface for accounts, wallets, cards, API keys, and read queries. The
 * atomic ledger operations live in postgres_ledger.go.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/payvault/ledger-service/internal/domain"
)

// ErrDuplicateCardNumber signals a generated card number collided with an
// existing one. Callers regenerate and retry.
var ErrDuplicateCardNumber = errors.New("card number already exists")

const uniqueViolationCode = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateAccount inserts the account, its wallet, and (for personal accounts)
// its virtual card in one transaction so a registered account can never be
// observed without its wallet or card.
func (r *PostgresRepository) CreateAccount(ctx context.Context, account *domain.Account, wallet *domain.Wallet, card *domain.VirtualCard) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO accounts (id, email, password_hash, role, account_type, business_name, business_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`, account.ID, account.Email, account.PasswordHash, account.Role, account.AccountType, account.BusinessName, account.BusinessVerified, account.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrEmailTaken
		}
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO wallets (id, account_id, balance, currency)
		VALUES ($1, $2, $3, $4)
	`, wallet.ID, wallet.AccountID, wallet.Balance, wallet.Currency)
	if err != nil {
		return err
	}

	if card != nil {
		_, err = tx.Exec(ctx, `
			INSERT INTO virtual_cards (id, account_id, card_number, cvv_hash, pin_hash, expires_at, active, daily_limit, daily_spent, last_reset_date)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, card.ID, card.AccountID, card.CardNumber, card.CVVHash, card.PINHash, card.ExpiresAt, card.Active, card.DailyLimit, card.DailySpent, card.LastResetDate)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateCardNumber
			}
			return err
		}
	}

	return tx.Commit(ctx)
}

const accountColumns = `id, email, password_hash, role, account_type, business_name, business_verified, created_at, updated_at`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.Role, &a.AccountType, &a.BusinessName, &a.BusinessVerified, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	return &a, nil
}

// FindAccountByID retrieves an account by its id.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	return scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, accountID))
}

// FindAccountByEmail retrieves an account by email, used at login.
func (r *PostgresRepository) FindAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE lower(email) = lower($1)`, email))
}

// SetBusinessVerified flips the verification flag on a business account.
func (r *PostgresRepository) SetBusinessVerified(ctx context.Context, accountID uuid.UUID, verified bool) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE accounts SET business_verified = $1, updated_at = NOW()
		WHERE id = $2 AND account_type = 'business'
	`, verified, accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// FindWalletByAccountID retrieves an account's wallet.
func (r *PostgresRepository) FindWalletByAccountID(ctx context.Context, accountID uuid.UUID) (*domain.Wallet, error) {
	var w domain.Wallet
	err := r.db.QueryRow(ctx, `
		SELECT id, account_id, balance, currency FROM wallets WHERE account_id = $1
	`, accountID).Scan(&w.ID, &w.AccountID, &w.Balance, &w.Currency)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	return &w, nil
}

const cardColumns = `id, account_id, card_number, cvv_hash, pin_hash, expires_at, active, daily_limit, daily_spent, last_reset_date, last_used_at`

func scanCard(row pgx.Row) (*domain.VirtualCard, error) {
	var c domain.VirtualCard
	err := row.Scan(&c.ID, &c.AccountID, &c.CardNumber, &c.CVVHash, &c.PINHash, &c.ExpiresAt, &c.Active, &c.DailyLimit, &c.DailySpent, &c.LastResetDate, &c.LastUsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCardNotFound
		}
		return nil, err
	}
	return &c, nil
}

// FindCardByAccountID retrieves the virtual card attached to a personal account.
func (r *PostgresRepository) FindCardByAccountID(ctx context.Context, accountID uuid.UUID) (*domain.VirtualCard, error) {
	return scanCard(r.db.QueryRow(ctx, `SELECT `+cardColumns+` FROM virtual_cards WHERE account_id = $1`, accountID))
}

// CreateAPIKey inserts a new merchant key. The plaintext key never reaches
// this layer; only the hash and display prefix are stored.
func (r *PostgresRepository) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO api_keys (
			id, business_id, name, key_hash, key_prefix, permissions,
			rate_limit_per_minute, rate_limit_per_day,
			max_transaction_amount, daily_volume_limit, daily_volume, volume_reset_date,
			requests_today, request_reset_date, total_requests,
			allowed_origins, allowed_ips, expires_at, active, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`,
		key.ID, key.BusinessID, key.Name, key.KeyHash, key.KeyPrefix, permissionsToStrings(key.Permissions),
		key.RateLimitPerMinute, key.RateLimitPerDay,
		key.MaxTransactionAmount, key.DailyVolumeLimit, key.DailyVolume, key.VolumeResetDate,
		key.RequestsToday, key.RequestResetDate, key.TotalRequests,
		key.AllowedOrigins, key.AllowedIPs, key.ExpiresAt, key.Active, key.CreatedAt,
	)
	return err
}

const apiKeyColumns = `
	id, business_id, name, key_hash, key_prefix, permissions,
	rate_limit_per_minute, rate_limit_per_day,
	max_transaction_amount, daily_volume_limit, daily_volume, volume_reset_date,
	requests_today, request_reset_date, total_requests, last_used_at,
	allowed_origins, allowed_ips, expires_at, active, revoked_at, revoked_reason, created_at
`

func scanAPIKey(row pgx.Row) (*domain.APIKey, error) {
	var k domain.APIKey
	var perms []string
	var revokedReason *string
	err := row.Scan(
		&k.ID, &k.BusinessID, &k.Name, &k.KeyHash, &k.KeyPrefix, &perms,
		&k.RateLimitPerMinute, &k.RateLimitPerDay,
		&k.MaxTransactionAmount, &k.DailyVolumeLimit, &k.DailyVolume, &k.VolumeResetDate,
		&k.RequestsToday, &k.RequestResetDate, &k.TotalRequests, &k.LastUsedAt,
		&k.AllowedOrigins, &k.AllowedIPs, &k.ExpiresAt, &k.Active, &k.RevokedAt, &revokedReason, &k.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrInvalidAPIKey
		}
		return nil, err
	}
	k.Permissions = permissionsFromStrings(perms)
	if revokedReason != nil {
		k.RevokedReason = *revokedReason
	}
	return &k, nil
}

func permissionsToStrings(perms []domain.Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}

func permissionsFromStrings(perms []string) []domain.Permission {
	out := make([]domain.Permission, len(perms))
	for i, p := range perms {
		out[i] = domain.Permission(p)
	}
	return out
}

// FindAPIKeyByHash looks a key up by its hash. A miss reports invalid-key with
// no distinction from a revoked-and-deleted credential.
func (r *PostgresRepository) FindAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	return scanAPIKey(r.db.QueryRow(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash = $1`, keyHash))
}

// ListAPIKeysByBusiness returns all of a business's keys, newest first.
func (r *PostgresRepository) ListAPIKeysByBusiness(ctx context.Context, businessID uuid.UUID) ([]domain.APIKey, error) {
	rows, err := r.db.Query(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE business_id = $1 ORDER BY created_at DESC`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []domain.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, *k)
	}
	return keys, rows.Err()
}

// CountActiveAPIKeys counts a business's live keys for the creation cap.
func (r *PostgresRepository) CountActiveAPIKeys(ctx context.Context, businessID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM api_keys
		WHERE business_id = $1 AND active = true AND revoked_at IS NULL
	`, businessID).Scan(&n)
	return n, err
}

// RevokeAPIKey terminally deactivates a key. Revocation never un-happens: the
// WHERE clause refuses to touch an already-revoked row.
func (r *PostgresRepository) RevokeAPIKey(ctx context.Context, keyID, businessID uuid.UUID, reason string, now time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE api_keys
		SET active = false, revoked_at = $1, revoked_reason = $2
		WHERE id = $3 AND business_id = $4 AND revoked_at IS NULL
	`, now, reason, keyID, businessID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvalidAPIKey
	}
	return nil
}

// RecordAPIKeyUsage atomically bumps the authenticated-attempt counters: the
// day-scoped counter resets when the stored day differs from now's day, then
// increments; total requests and last-used always advance. Returns the
// post-increment day count so the caller can compare it against the key's
// per-day limit without a second round trip.
func (r *PostgresRepository) RecordAPIKeyUsage(ctx context.Context, keyID uuid.UUID, now time.Time) (int, error) {
	var requestsToday int
	err := r.db.QueryRow(ctx, `
		UPDATE api_keys
		SET
			requests_today = CASE
				WHEN request_reset_date = $2::date THEN requests_today + 1
				ELSE 1
			END,
			request_reset_date = $2::date,
			total_requests = total_requests + 1,
			last_used_at = $1
		WHERE id = $3
		RETURNING requests_today
	`, now, now.UTC(), keyID).Scan(&requestsToday)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrInvalidAPIKey
		}
		return 0, err
	}
	return requestsToday, nil
}

const transactionColumns = `
	id, reference, type, status, category,
	sender_account_id, recipient_account_id, amount, currency,
	sender_balance_before, sender_balance_after, recipient_balance_before, recipient_balance_after,
	card_last4, api_key_id, original_transaction_id, description, external_reference, created_at
`

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	var category, cardLast4, description, externalReference *string
	err := row.Scan(
		&t.ID, &t.Reference, &t.Type, &t.Status, &category,
		&t.SenderAccountID, &t.RecipientAccountID, &t.Amount, &t.Currency,
		&t.SenderBalanceBefore, &t.SenderBalanceAfter, &t.RecipientBalanceBefore, &t.RecipientBalanceAfter,
		&cardLast4, &t.APIKeyID, &t.OriginalTransactionID, &description, &externalReference, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, err
	}
	if category != nil {
		t.Category = *category
	}
	if cardLast4 != nil {
		t.CardLast4 = *cardLast4
	}
	if description != nil {
		t.Description = *description
	}
	if externalReference != nil {
		t.ExternalReference = *externalReference
	}
	return &t, nil
}

// FindTransactionByID retrieves one ledger row by id.
func (r *PostgresRepository) FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	return scanTransaction(r.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, transactionID))
}

// FindTransactionByReference retrieves one ledger row by its unique reference.
func (r *PostgresRepository) FindTransactionByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	return scanTransaction(r.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE reference = $1`, reference))
}

// ListTransactionsByAccount returns ledger rows where the account is sender or
// recipient, newest first, paginated.
func (r *PostgresRepository) ListTransactionsByAccount(ctx context.Context, accountID uuid.UUID, opts domain.TransactionListOptions) ([]domain.Transaction, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE (sender_account_id = $1 OR recipient_account_id = $1)`
	args := []any{accountID}
	if opts.Type != "" {
		args = append(args, opts.Type)
		query += fmt.Sprintf(` AND type = $%d`, len(args))
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, *t)
	}
	return txns, rows.Err()
}

// GetReserve returns the reserve snapshot, creating the singleton row if this
// is the first access.
func (r *PostgresRepository) GetReserve(ctx context.Context) (*domain.BankReserve, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	reserve, err := getOrCreateReserve(ctx, tx, false)
	if err != nil {
		return nil, err
	}
	return reserve, tx.Commit(ctx)
}
