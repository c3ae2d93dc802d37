package db

import (
	"context"

	"github.com/rs/zerolog/log"
)

// migrations are applied in order on startup. Statements are idempotent
// so reapplying on every boot is safe.
var migrations = []struct {
	name string
	sql  string
}{
	{
		name: "token ledger tables",
		sql: `
		CREATE TABLE IF NOT EXISTS token_balances (
			owner TEXT PRIMARY KEY,
			balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS token_allowances (
			owner TEXT NOT NULL,
			spender TEXT NOT NULL,
			amount BIGINT NOT NULL DEFAULT 0 CHECK (amount >= 0),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (owner, spender)
		);
	`,
	},
	{
		name: "accounts table",
		sql: `
		CREATE TABLE IF NOT EXISTS accounts (
			owner TEXT PRIMARY KEY,
			balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_accounts_balance ON accounts(balance DESC);
	`,
	},
	{
		name: "sessions table",
		sql: `
		CREATE TABLE IF NOT EXISTS sessions (
			id BIGSERIAL PRIMARY KEY,
			label TEXT NOT NULL,
			player_one TEXT NOT NULL,
			player_two TEXT NOT NULL,
			pair_key TEXT NOT NULL,
			choice_one SMALLINT CHECK (choice_one BETWEEN 1 AND 5),
			choice_two SMALLINT CHECK (choice_two BETWEEN 1 AND 5),
			wager_one BIGINT NOT NULL DEFAULT 0 CHECK (wager_one >= 0),
			wager_two BIGINT NOT NULL DEFAULT 0 CHECK (wager_two >= 0),
			deadline TIMESTAMPTZ NOT NULL,
			state TEXT NOT NULL DEFAULT 'created',
			winner TEXT,
			winning_choice SMALLINT,
			prize BIGINT NOT NULL DEFAULT 0 CHECK (prize >= 0),
			withdrawn BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_open_pair_key
			ON sessions(pair_key)
			WHERE state NOT IN ('resolved', 'expired');
		CREATE INDEX IF NOT EXISTS idx_sessions_label ON sessions(label);
	`,
	},
	{
		name: "escrow journal table",
		sql: `
		CREATE TABLE IF NOT EXISTS escrow_journal (
			id BIGSERIAL PRIMARY KEY,
			owner TEXT NOT NULL,
			amount BIGINT NOT NULL,
			type VARCHAR(50) NOT NULL,
			label TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_escrow_journal_owner_time
			ON escrow_journal(owner, created_at DESC);
	`,
	},
	{
		name: "events table",
		sql: `
		CREATE TABLE IF NOT EXISTS events (
			id BIGSERIAL PRIMARY KEY,
			kind VARCHAR(50) NOT NULL,
			payload JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_events_kind_time ON events(kind, created_at DESC);
	`,
	},
}

// Migrate applies the database schema.
func Migrate(ctx context.Context, q Querier) error {
	for _, m := range migrations {
		if _, err := q.Exec(ctx, m.sql); err != nil {
			return err
		}
		log.Info().Str("migration", m.name).Msg("Migration applied")
	}
	return nil
}
