package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"rpsarena/internal/model"
	"rpsarena/internal/pkg/db"
)

// ErrDuplicatePairKey is returned when an open session already exists for
// the same unordered participant pair and label.
var ErrDuplicatePairKey = errors.New("open session already exists for this pair and label")

// sessionColumns is the column list shared by every session query.
const sessionColumns = `id, label, player_one, player_two, pair_key,
	choice_one, choice_two, wager_one, wager_two, deadline, state,
	winner, winning_choice, prize, withdrawn, created_at, updated_at`

// PairKey derives the storage key identifying a session: the label plus
// the participant pair, unordered so either player maps to the same key.
func PairKey(a, b, label string) string {
	if b < a {
		a, b = b, a
	}
	return strings.Join([]string{a, b, label}, "\x1f")
}

// SessionRepository owns game session persistence and lifecycle mutations.
type SessionRepository struct {
	db db.Querier
}

// NewSessionRepository creates a new SessionRepository instance.
func NewSessionRepository(q db.Querier) *SessionRepository {
	return &SessionRepository{db: q}
}

// WithTx returns a copy bound to the given querier.
func (r *SessionRepository) WithTx(q db.Querier) *SessionRepository {
	return &SessionRepository{db: q}
}

func scanSession(row pgx.Row) (*model.Session, error) {
	var s model.Session
	err := row.Scan(
		&s.ID,
		&s.Label,
		&s.PlayerOne,
		&s.PlayerTwo,
		&s.PairKey,
		&s.ChoiceOne,
		&s.ChoiceTwo,
		&s.WagerOne,
		&s.WagerTwo,
		&s.Deadline,
		&s.State,
		&s.Winner,
		&s.WinningChoice,
		&s.Prize,
		&s.Withdrawn,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts a new session in the created state. Returns
// ErrDuplicatePairKey when a non-terminal session already holds the same
// pair key; the partial unique index enforces this under concurrency.
func (r *SessionRepository) Create(ctx context.Context, playerOne, playerTwo, label string, deadline time.Time) (*model.Session, error) {
	const query = `
		INSERT INTO sessions (label, player_one, player_two, pair_key, deadline, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING ` + sessionColumns

	row := r.db.QueryRow(ctx, query,
		label, playerOne, playerTwo, PairKey(playerOne, playerTwo, label),
		deadline, model.StateCreated,
	)
	s, err := scanSession(row)
	if err != nil {
		var pgErr *pgconn.PgError
		// 23505: unique_violation on the open pair-key index
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicatePairKey
		}
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return s, nil
}

// GetOpenByPairKey retrieves the non-terminal session for a pair key.
func (r *SessionRepository) GetOpenByPairKey(ctx context.Context, pairKey string) (*model.Session, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE pair_key = $1 AND state NOT IN ('resolved', 'expired')
	`

	s, err := scanSession(r.db.QueryRow(ctx, query, pairKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// GetOpenByLabel retrieves a non-terminal session whose label matches and
// where participant is one of the two players. When the label collides
// across pairs, a session also involving preferred wins the tie.
func (r *SessionRepository) GetOpenByLabel(ctx context.Context, label, participant, preferred string) (*model.Session, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE label = $1
		  AND $2 IN (player_one, player_two)
		  AND state NOT IN ('resolved', 'expired')
		ORDER BY CASE WHEN $3 IN (player_one, player_two) THEN 0 ELSE 1 END, id
		LIMIT 1
	`

	s, err := scanSession(r.db.QueryRow(ctx, query, label, participant, preferred))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// GetResolvedByLabel retrieves a resolved session whose label matches and
// where participant is one of the two players. A session the participant
// won but has not claimed yet takes priority, so reusing a label can never
// strand an earlier prize; otherwise the most recent resolved row answers.
func (r *SessionRepository) GetResolvedByLabel(ctx context.Context, label, participant string) (*model.Session, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE label = $1
		  AND $2 IN (player_one, player_two)
		  AND state = 'resolved'
		ORDER BY CASE WHEN winner = $2 AND withdrawn = FALSE THEN 0 ELSE 1 END,
			updated_at DESC
		LIMIT 1
	`

	s, err := scanSession(r.db.QueryRow(ctx, query, label, participant))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// ResolvedLabelExists reports whether any resolved session carries the
// label, regardless of participants.
func (r *SessionRepository) ResolvedLabelExists(ctx context.Context, label string) (bool, error) {
	const query = `SELECT EXISTS(
		SELECT 1 FROM sessions WHERE label = $1 AND state = 'resolved')`

	var exists bool
	if err := r.db.QueryRow(ctx, query, label).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check resolved sessions: %w", err)
	}
	return exists, nil
}

// RecordChoiceOne writes playerOne's choice and escrowed wager, advancing
// the state. The choice column is write-once: the guard refuses a second
// write so a resubmitted play cannot alter the session.
func (r *SessionRepository) RecordChoiceOne(ctx context.Context, id int64, choice int16, wager int64, state model.SessionState) (*model.Session, error) {
	const query = `
		UPDATE sessions
		SET choice_one = $2, wager_one = $3, state = $4, updated_at = NOW()
		WHERE id = $1 AND choice_one IS NULL AND state NOT IN ('resolved', 'expired')
		RETURNING ` + sessionColumns

	s, err := scanSession(r.db.QueryRow(ctx, query, id, choice, wager, state))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to record choice: %w", err)
	}
	return s, nil
}

// RecordChoiceTwo writes playerTwo's choice and escrowed wager, advancing
// the state. Write-once, same as RecordChoiceOne.
func (r *SessionRepository) RecordChoiceTwo(ctx context.Context, id int64, choice int16, wager int64, state model.SessionState) (*model.Session, error) {
	const query = `
		UPDATE sessions
		SET choice_two = $2, wager_two = $3, state = $4, updated_at = NOW()
		WHERE id = $1 AND choice_two IS NULL AND state NOT IN ('resolved', 'expired')
		RETURNING ` + sessionColumns

	s, err := scanSession(r.db.QueryRow(ctx, query, id, choice, wager, state))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to record choice: %w", err)
	}
	return s, nil
}

// ResolveWin marks the session resolved with a decisive outcome. The full
// escrow becomes the winner's prize, claimable through withdrawal.
func (r *SessionRepository) ResolveWin(ctx context.Context, id int64, winner string, winningChoice int16, prize int64) (*model.Session, error) {
	const query = `
		UPDATE sessions
		SET state = 'resolved', winner = $2, winning_choice = $3, prize = $4, updated_at = NOW()
		WHERE id = $1 AND state NOT IN ('resolved', 'expired')
		RETURNING ` + sessionColumns

	s, err := scanSession(r.db.QueryRow(ctx, query, id, winner, winningChoice, prize))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to resolve session: %w", err)
	}
	return s, nil
}

// ResolveTie marks the session resolved with no winner and no prize;
// wagers flow back to the players' deposit balances in the same
// transaction.
func (r *SessionRepository) ResolveTie(ctx context.Context, id int64) (*model.Session, error) {
	const query = `
		UPDATE sessions
		SET state = 'resolved', prize = 0, updated_at = NOW()
		WHERE id = $1 AND state NOT IN ('resolved', 'expired')
		RETURNING ` + sessionColumns

	s, err := scanSession(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to resolve session: %w", err)
	}
	return s, nil
}

// MarkExpired transitions a deadline-passed session with no choices to the
// expired terminal state.
func (r *SessionRepository) MarkExpired(ctx context.Context, id int64) (*model.Session, error) {
	const query = `
		UPDATE sessions
		SET state = 'expired', updated_at = NOW()
		WHERE id = $1 AND state NOT IN ('resolved', 'expired')
		RETURNING ` + sessionColumns

	s, err := scanSession(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to expire session: %w", err)
	}
	return s, nil
}

// MarkWithdrawn flags the prize as released. The guard makes withdrawal
// one-shot: a second attempt matches no row.
func (r *SessionRepository) MarkWithdrawn(ctx context.Context, id int64) (bool, error) {
	const query = `
		UPDATE sessions
		SET withdrawn = TRUE, updated_at = NOW()
		WHERE id = $1 AND state = 'resolved' AND withdrawn = FALSE
	`
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark withdrawn: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
