// Package event defines the observable side effects of the escrow engine.
// Every state transition emits exactly one typed event; events are recorded
// inside the same database transaction as the transition and logged.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"rpsarena/internal/pkg/db"
)

// Event kinds as stored in the events table.
const (
	KindStarted         = "Started"
	KindPlayerOnePlayed = "PlayerOnePlayed"
	KindPlayerTwoPlayed = "PlayerTwoPlayed"
	KindCompleted       = "Completed"
	KindTie             = "Tie"
	KindWithdrawed      = "Withdrawed"
	KindExpired         = "Expired"
)

// Event is implemented by all emitted event payloads.
type Event interface {
	Kind() string
}

// Started is emitted when a session is created.
type Started struct {
	PlayerOne string    `json:"playerOne"`
	Opponent  string    `json:"opponent"`
	Label     string    `json:"label"`
	Deadline  time.Time `json:"deadline"`
}

func (Started) Kind() string { return KindStarted }

// PlayerOnePlayed is emitted when the session creator submits a choice.
type PlayerOnePlayed struct {
	Label  string `json:"label"`
	Choice int    `json:"choice"`
}

func (PlayerOnePlayed) Kind() string { return KindPlayerOnePlayed }

// PlayerTwoPlayed is emitted when the counter-party submits a choice.
type PlayerTwoPlayed struct {
	Label  string `json:"label"`
	Choice int    `json:"choice"`
}

func (PlayerTwoPlayed) Kind() string { return KindPlayerTwoPlayed }

// Completed is emitted on a decisive resolution.
type Completed struct {
	WinnerAddress string `json:"winnerAddress"`
	Choice        int    `json:"choice"`
}

func (Completed) Kind() string { return KindCompleted }

// Tie is emitted when both players made the same choice.
type Tie struct {
	PlayerAddressOne string `json:"playerAddressOne"`
	PlayerAddressTwo string `json:"playerAddressTwo"`
}

func (Tie) Kind() string { return KindTie }

// Withdrawed is emitted when the winner withdraws the prize.
type Withdrawed struct {
	Winner string `json:"winner"`
	Amount int64  `json:"amount"`
}

func (Withdrawed) Kind() string { return KindWithdrawed }

// Expired is emitted when a session passes its deadline with no choices.
type Expired struct {
	Label     string `json:"label"`
	PlayerOne string `json:"playerOne"`
	PlayerTwo string `json:"playerTwo"`
}

func (Expired) Kind() string { return KindExpired }

// Recorder persists events and mirrors them to the log.
type Recorder struct {
	logger zerolog.Logger
}

// NewRecorder creates a Recorder that logs through the given logger.
func NewRecorder(logger zerolog.Logger) *Recorder {
	return &Recorder{logger: logger}
}

// Record stores the event in the events table through q and logs it.
// Callers pass their open transaction as q so the event commits or rolls
// back together with the state transition that produced it.
func (r *Recorder) Record(ctx context.Context, q db.Querier, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	const query = `INSERT INTO events (kind, payload, created_at) VALUES ($1, $2, NOW())`
	if _, err := q.Exec(ctx, query, ev.Kind(), payload); err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}

	r.logger.Info().
		Str("kind", ev.Kind()).
		RawJSON("event", payload).
		Msg("Event emitted")

	return nil
}
