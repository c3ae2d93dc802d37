// Package token implements a bounded-balance fungible token ledger with
// per-owner allowances, the surface the escrow engine consumes. The escrow
// core only depends on the transfer and allowance operations; mint exists
// so operators can issue supply.
package token

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"rpsarena/internal/pkg/db"
)

// Ledger errors. Transfers are rejected with a descriptive failure,
// never silently truncated.
var (
	ErrZeroAmount            = errors.New("token amount must be greater than zero")
	ErrInsufficientBalance   = errors.New("transfer exceeds token balance")
	ErrInsufficientAllowance = errors.New("transfer exceeds approved allowance")
)

// Ledger provides token balance and allowance bookkeeping backed by
// PostgreSQL. Methods take a Querier so callers can run them inside their
// own transaction.
type Ledger struct {
	db db.Querier
}

// NewLedger creates a Ledger bound to the given pool or transaction.
func NewLedger(q db.Querier) *Ledger {
	return &Ledger{db: q}
}

// WithTx returns a copy of the ledger bound to the given querier,
// typically an open pgx.Tx.
func (l *Ledger) WithTx(q db.Querier) *Ledger {
	return &Ledger{db: q}
}

// atomically runs fn inside a transaction so multi-statement operations
// commit or roll back as a unit even when the ledger is bound directly to
// the pool. A ledger already bound to a pgx.Tx gets a savepoint instead.
func (l *Ledger) atomically(ctx context.Context, fn func(q db.Querier) error) error {
	b, ok := l.db.(interface {
		Begin(ctx context.Context) (pgx.Tx, error)
	})
	if !ok {
		return fn(l.db)
	}

	tx, err := b.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Mint credits newly issued tokens to recipient.
func (l *Ledger) Mint(ctx context.Context, recipient string, amount int64) error {
	if amount <= 0 {
		return ErrZeroAmount
	}
	if err := credit(ctx, l.db, recipient, amount); err != nil {
		return fmt.Errorf("failed to mint: %w", err)
	}
	return nil
}

// BalanceOf returns the token balance of owner. Unknown owners hold zero.
func (l *Ledger) BalanceOf(ctx context.Context, owner string) (int64, error) {
	const query = `SELECT COALESCE(
		(SELECT balance FROM token_balances WHERE owner = $1), 0)`

	var balance int64
	if err := l.db.QueryRow(ctx, query, owner).Scan(&balance); err != nil {
		return 0, fmt.Errorf("failed to get token balance: %w", err)
	}
	return balance, nil
}

// Approve sets the amount spender may transfer on behalf of owner.
func (l *Ledger) Approve(ctx context.Context, owner, spender string, amount int64) error {
	if amount < 0 {
		return ErrZeroAmount
	}

	const query = `
		INSERT INTO token_allowances (owner, spender, amount, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (owner, spender)
		DO UPDATE SET amount = EXCLUDED.amount, updated_at = NOW()
	`
	if _, err := l.db.Exec(ctx, query, owner, spender, amount); err != nil {
		return fmt.Errorf("failed to approve: %w", err)
	}
	return nil
}

// Allowance returns the amount spender may still transfer on behalf of owner.
func (l *Ledger) Allowance(ctx context.Context, owner, spender string) (int64, error) {
	const query = `SELECT COALESCE(
		(SELECT amount FROM token_allowances WHERE owner = $1 AND spender = $2), 0)`

	var amount int64
	if err := l.db.QueryRow(ctx, query, owner, spender).Scan(&amount); err != nil {
		return 0, fmt.Errorf("failed to get allowance: %w", err)
	}
	return amount, nil
}

// Transfer moves amount from owner to recipient. The debit and credit
// commit together; a rejected debit leaves both balances untouched.
func (l *Ledger) Transfer(ctx context.Context, owner, recipient string, amount int64) error {
	if amount <= 0 {
		return ErrZeroAmount
	}
	return l.atomically(ctx, func(q db.Querier) error {
		return transfer(ctx, q, owner, recipient, amount)
	})
}

// TransferFrom moves amount from owner to recipient on behalf of spender,
// decrementing owner's allowance to spender. Fails if the allowance or the
// owner's balance is insufficient; a failed transfer burns no allowance.
func (l *Ledger) TransferFrom(ctx context.Context, spender, owner, recipient string, amount int64) error {
	if amount <= 0 {
		return ErrZeroAmount
	}

	return l.atomically(ctx, func(q db.Querier) error {
		const query = `
			UPDATE token_allowances
			SET amount = amount - $3, updated_at = NOW()
			WHERE owner = $1 AND spender = $2 AND amount >= $3
		`
		tag, err := q.Exec(ctx, query, owner, spender, amount)
		if err != nil {
			return fmt.Errorf("failed to decrement allowance: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrInsufficientAllowance
		}

		return transfer(ctx, q, owner, recipient, amount)
	})
}

func transfer(ctx context.Context, q db.Querier, owner, recipient string, amount int64) error {
	if err := debit(ctx, q, owner, amount); err != nil {
		return err
	}
	if err := credit(ctx, q, recipient, amount); err != nil {
		return fmt.Errorf("failed to credit recipient: %w", err)
	}
	return nil
}

// debit subtracts amount from owner, failing if the balance is too small.
// The balance CHECK constraint backstops this guard.
func debit(ctx context.Context, q db.Querier, owner string, amount int64) error {
	const query = `
		UPDATE token_balances
		SET balance = balance - $2, updated_at = NOW()
		WHERE owner = $1 AND balance >= $2
	`
	tag, err := q.Exec(ctx, query, owner, amount)
	if err != nil {
		return fmt.Errorf("failed to debit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientBalance
	}
	return nil
}

// credit adds amount to owner, creating the row on first use.
func credit(ctx context.Context, q db.Querier, owner string, amount int64) error {
	const query = `
		INSERT INTO token_balances (owner, balance, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (owner)
		DO UPDATE SET balance = token_balances.balance + EXCLUDED.balance, updated_at = NOW()
	`
	_, err := q.Exec(ctx, query, owner, amount)
	return err
}
