package store

import "context"

// schema creates every table the service owns. Statements are idempotent so
// the migration entrypoint can run on every deploy.
const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id                UUID PRIMARY KEY,
	email             TEXT NOT NULL UNIQUE,
	password_hash     TEXT NOT NULL,
	role              TEXT NOT NULL DEFAULT 'user',
	account_type      TEXT NOT NULL CHECK (account_type IN ('personal', 'business')),
	business_name     TEXT NOT NULL DEFAULT '',
	business_verified BOOLEAN NOT NULL DEFAULT false,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS wallets (
	id         UUID PRIMARY KEY,
	account_id UUID NOT NULL UNIQUE REFERENCES accounts(id),
	balance    NUMERIC(20,2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
	currency   TEXT NOT NULL DEFAULT 'USD'
);

CREATE TABLE IF NOT EXISTS virtual_cards (
	id              UUID PRIMARY KEY,
	account_id      UUID NOT NULL UNIQUE REFERENCES accounts(id),
	card_number     CHAR(16) NOT NULL UNIQUE,
	cvv_hash        TEXT NOT NULL,
	pin_hash        TEXT NOT NULL,
	expires_at      TIMESTAMPTZ NOT NULL,
	active          BOOLEAN NOT NULL DEFAULT true,
	daily_limit     NUMERIC(20,2) NOT NULL,
	daily_spent     NUMERIC(20,2) NOT NULL DEFAULT 0,
	last_reset_date DATE NOT NULL DEFAULT CURRENT_DATE,
	last_used_at    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS api_keys (
	id                     UUID PRIMARY KEY,
	business_id            UUID NOT NULL REFERENCES accounts(id),
	name                   TEXT NOT NULL,
	key_hash               TEXT NOT NULL UNIQUE,
	key_prefix             TEXT NOT NULL,
	permissions            TEXT[] NOT NULL DEFAULT '{}',
	rate_limit_per_minute  INT NOT NULL DEFAULT 60,
	rate_limit_per_day     INT NOT NULL DEFAULT 10000,
	max_transaction_amount NUMERIC(20,2) NOT NULL DEFAULT 0,
	daily_volume_limit     NUMERIC(20,2) NOT NULL DEFAULT 0,
	daily_volume           NUMERIC(20,2) NOT NULL DEFAULT 0,
	volume_reset_date      DATE NOT NULL DEFAULT CURRENT_DATE,
	requests_today         INT NOT NULL DEFAULT 0,
	request_reset_date     DATE NOT NULL DEFAULT CURRENT_DATE,
	total_requests         BIGINT NOT NULL DEFAULT 0,
	last_used_at           TIMESTAMPTZ,
	allowed_origins        TEXT[] NOT NULL DEFAULT '{}',
	allowed_ips            TEXT[] NOT NULL DEFAULT '{}',
	expires_at             TIMESTAMPTZ,
	active                 BOOLEAN NOT NULL DEFAULT true,
	revoked_at             TIMESTAMPTZ,
	revoked_reason         TEXT,
	created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_api_keys_business ON api_keys(business_id);

CREATE TABLE IF NOT EXISTS transactions (
	id                       UUID PRIMARY KEY,
	reference                TEXT NOT NULL UNIQUE,
	type                     TEXT NOT NULL CHECK (type IN ('deposit', 'withdraw', 'transfer', 'payment', 'refund')),
	status                   TEXT NOT NULL CHECK (status IN ('completed', 'refunded')),
	category                 TEXT CHECK (category IN ('B2B', 'B2C', 'C2C')),
	sender_account_id        UUID REFERENCES accounts(id),
	recipient_account_id     UUID REFERENCES accounts(id),
	amount                   NUMERIC(20,2) NOT NULL CHECK (amount > 0),
	currency                 TEXT NOT NULL,
	sender_balance_before    NUMERIC(20,2),
	sender_balance_after     NUMERIC(20,2),
	recipient_balance_before NUMERIC(20,2),
	recipient_balance_after  NUMERIC(20,2),
	card_last4               TEXT,
	api_key_id               UUID REFERENCES api_keys(id),
	original_transaction_id  UUID REFERENCES transactions(id),
	description              TEXT,
	external_reference       TEXT,
	created_at               TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_transactions_sender ON transactions(sender_account_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_transactions_recipient ON transactions(recipient_account_id, created_at DESC);

-- One refund per original, enforced even under race.
CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_refund_once
	ON transactions(original_transaction_id) WHERE type = 'refund';

CREATE TABLE IF NOT EXISTS bank_reserve (
	singleton         BOOLEAN PRIMARY KEY DEFAULT true CHECK (singleton),
	balance           NUMERIC(20,2) NOT NULL,
	total_deposits    NUMERIC(20,2) NOT NULL DEFAULT 0,
	total_withdrawals NUMERIC(20,2) NOT NULL DEFAULT 0,
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Migrate applies the schema. Safe to run repeatedly.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	_, err := r.db.Exec(ctx, schema)
	return err
}
