package repository

import (
	"context"
	"fmt"

	"rpsarena/internal/model"
	"rpsarena/internal/pkg/db"
)

// JournalRepository records every movement of custodied value: deposits,
// wagers, settlements, and withdrawals.
type JournalRepository struct {
	db db.Querier
}

// NewJournalRepository creates a new JournalRepository instance.
func NewJournalRepository(q db.Querier) *JournalRepository {
	return &JournalRepository{db: q}
}

// WithTx returns a copy bound to the given querier.
func (r *JournalRepository) WithTx(q db.Querier) *JournalRepository {
	return &JournalRepository{db: q}
}

// Record appends a journal entry.
func (r *JournalRepository) Record(ctx context.Context, owner string, amount int64, entryType string, label *string) (*model.JournalEntry, error) {
	const query = `
		INSERT INTO escrow_journal (owner, amount, type, label, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, owner, amount, type, label, created_at
	`

	var e model.JournalEntry
	err := r.db.QueryRow(ctx, query, owner, amount, entryType, label).Scan(
		&e.ID,
		&e.Owner,
		&e.Amount,
		&e.Type,
		&e.Label,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record journal entry: %w", err)
	}
	return &e, nil
}

// GetByOwner retrieves an owner's entries, newest first.
func (r *JournalRepository) GetByOwner(ctx context.Context, owner string, limit int) ([]*model.JournalEntry, error) {
	const query = `
		SELECT id, owner, amount, type, label, created_at
		FROM escrow_journal
		WHERE owner = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get journal entries: %w", err)
	}
	defer rows.Close()

	var entries []*model.JournalEntry
	for rows.Next() {
		var e model.JournalEntry
		err := rows.Scan(
			&e.ID,
			&e.Owner,
			&e.Amount,
			&e.Type,
			&e.Label,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal entries: %w", err)
	}

	return entries, nil
}

// NetByLabel sums all entries recorded against a session label. A fully
// settled session nets to zero across wager, prize, and refund entries.
func (r *JournalRepository) NetByLabel(ctx context.Context, label string) (int64, error) {
	const query = `
		SELECT COALESCE(SUM(amount), 0)
		FROM escrow_journal
		WHERE label = $1
	`

	var net int64
	if err := r.db.QueryRow(ctx, query, label).Scan(&net); err != nil {
		return 0, fmt.Errorf("failed to sum journal entries: %w", err)
	}
	return net, nil
}
