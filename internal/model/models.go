// Package model defines the data models for the hand-game escrow service.
package model

import "time"

// Account represents a player's custodied balance inside the escrow
// contract. Rows are created implicitly on first deposit and only ever
// zeroed, never deleted.
type Account struct {
	Owner     string    `db:"owner"`
	Balance   int64     `db:"balance"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// SessionState is the lifecycle state of a game session.
// States only ever advance; resolved and expired are terminal.
type SessionState string

const (
	StateCreated            SessionState = "created"
	StateAwaitingPlayerTwo  SessionState = "awaiting_player_two"
	StateAwaitingResolution SessionState = "awaiting_resolution"
	StateResolved           SessionState = "resolved"
	StateExpired            SessionState = "expired"
)

// Terminal reports whether the state admits no further transitions.
func (s SessionState) Terminal() bool {
	return s == StateResolved || s == StateExpired
}

// Session is one wagering round between two named participants,
// identified by the label plus the participant pair.
type Session struct {
	ID            int64        `db:"id"`
	Label         string       `db:"label"`
	PlayerOne     string       `db:"player_one"`
	PlayerTwo     string       `db:"player_two"`
	PairKey       string       `db:"pair_key"`
	ChoiceOne     *int16       `db:"choice_one"`
	ChoiceTwo     *int16       `db:"choice_two"`
	WagerOne      int64        `db:"wager_one"`
	WagerTwo      int64        `db:"wager_two"`
	Deadline      time.Time    `db:"deadline"`
	State         SessionState `db:"state"`
	Winner        *string      `db:"winner"`
	WinningChoice *int16       `db:"winning_choice"`
	Prize         int64        `db:"prize"`
	Withdrawn     bool         `db:"withdrawn"`
	CreatedAt     time.Time    `db:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at"`
}

// Participant reports whether addr is one of the two players.
func (s *Session) Participant(addr string) bool {
	return addr == s.PlayerOne || addr == s.PlayerTwo
}

// Expired reports whether the deadline has passed at the given time.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.Deadline)
}

// JournalEntry records a single movement of custodied value.
type JournalEntry struct {
	ID        int64     `db:"id"`
	Owner     string    `db:"owner"`
	Amount    int64     `db:"amount"`
	Type      string    `db:"type"`
	Label     *string   `db:"label"`
	CreatedAt time.Time `db:"created_at"`
}

// Journal entry types for categorizing escrow movements.
const (
	EntryDeposit   = "deposit"    // Tokens pulled in from the token ledger
	EntryWithdraw  = "withdraw"   // Free balance returned to the token ledger
	EntryWager     = "wager"      // Balance escrowed into a session
	EntryTieRefund = "tie_refund" // Wager returned to its owner on a tie
	EntryPrizePaid = "prize_paid" // Prize transferred out to the winner
)
