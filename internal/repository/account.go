// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"rpsarena/internal/model"
	"rpsarena/internal/pkg/db"
)

// Common errors for repository operations.
var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrInsufficientBalance = errors.New("insufficient custodied balance")
	ErrSessionNotFound     = errors.New("session not found")
)

// AccountRepository handles the deposit ledger: per-address balances
// custodied by the escrow contract.
type AccountRepository struct {
	db db.Querier
}

// NewAccountRepository creates a new AccountRepository instance.
func NewAccountRepository(q db.Querier) *AccountRepository {
	return &AccountRepository{db: q}
}

// WithTx returns a copy bound to the given querier, typically an open
// pgx.Tx, so credits and debits commit atomically with the rest of an
// operation.
func (r *AccountRepository) WithTx(q db.Querier) *AccountRepository {
	return &AccountRepository{db: q}
}

// Credit adds amount to owner's custodied balance, creating the account
// row on first deposit.
func (r *AccountRepository) Credit(ctx context.Context, owner string, amount int64) error {
	const query = `
		INSERT INTO accounts (owner, balance, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (owner)
		DO UPDATE SET balance = accounts.balance + EXCLUDED.balance, updated_at = NOW()
	`
	if _, err := r.db.Exec(ctx, query, owner, amount); err != nil {
		return fmt.Errorf("failed to credit account: %w", err)
	}
	return nil
}

// Debit subtracts amount from owner's custodied balance. Fails with
// ErrInsufficientBalance when the balance is too small; the CHECK
// constraint on the table backstops the guard.
func (r *AccountRepository) Debit(ctx context.Context, owner string, amount int64) error {
	const query = `
		UPDATE accounts
		SET balance = balance - $2, updated_at = NOW()
		WHERE owner = $1 AND balance >= $2
	`
	tag, err := r.db.Exec(ctx, query, owner, amount)
	if err != nil {
		return fmt.Errorf("failed to debit account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientBalance
	}
	return nil
}

// DebitAll zeroes owner's balance and returns the amount removed.
// Used to escrow a player's entire free balance into a session.
// Must run inside the caller's transaction; the row is locked between
// the read and the zeroing update.
func (r *AccountRepository) DebitAll(ctx context.Context, owner string) (int64, error) {
	const selectQuery = `SELECT balance FROM accounts WHERE owner = $1 FOR UPDATE`
	var balance int64
	err := r.db.QueryRow(ctx, selectQuery, owner).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	if balance == 0 {
		return 0, nil
	}

	const zeroQuery = `UPDATE accounts SET balance = 0, updated_at = NOW() WHERE owner = $1`
	if _, err := r.db.Exec(ctx, zeroQuery, owner); err != nil {
		return 0, fmt.Errorf("failed to zero balance: %w", err)
	}
	return balance, nil
}

// BalanceOf returns owner's custodied balance. Unknown owners hold zero;
// the deposit ledger is publicly readable.
func (r *AccountRepository) BalanceOf(ctx context.Context, owner string) (int64, error) {
	const query = `SELECT COALESCE(
		(SELECT balance FROM accounts WHERE owner = $1), 0)`

	var balance int64
	if err := r.db.QueryRow(ctx, query, owner).Scan(&balance); err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}

// GetByOwner retrieves an account row.
// Returns ErrAccountNotFound if the owner never deposited.
func (r *AccountRepository) GetByOwner(ctx context.Context, owner string) (*model.Account, error) {
	const query = `
		SELECT owner, balance, created_at, updated_at
		FROM accounts
		WHERE owner = $1
	`

	var acc model.Account
	err := r.db.QueryRow(ctx, query, owner).Scan(
		&acc.Owner,
		&acc.Balance,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &acc, nil
}

// TopAccounts retrieves the N largest custodied balances.
func (r *AccountRepository) TopAccounts(ctx context.Context, limit int) ([]*model.Account, error) {
	const query = `
		SELECT owner, balance, created_at, updated_at
		FROM accounts
		ORDER BY balance DESC
		LIMIT $1
	`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*model.Account
	for rows.Next() {
		var acc model.Account
		err := rows.Scan(
			&acc.Owner,
			&acc.Balance,
			&acc.CreatedAt,
			&acc.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, &acc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}
