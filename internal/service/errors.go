// Package service implements the escrow engine: deposit accounting,
// session lifecycle, resolution, and prize withdrawal. Every entry point
// validates against current state inside one database transaction and
// either fully commits or fully fails.
package service

import "errors"

// Failure taxonomy. Every validation failure aborts the whole call with no
// state change; the messages are stable and user-visible.
var (
	ErrInvalidAmount             = errors.New("amount must be greater than zero")
	ErrInsufficientAuthorization = errors.New("deposit exceeds the allowance approved to the escrow")
	ErrInsufficientBalance       = errors.New("withdrawal exceeds the free custodied balance")
	ErrInvalidOpponent           = errors.New("cannot start a game against yourself")
	ErrDuplicateSession          = errors.New("an open session with this label already exists for this pair")
	ErrSessionNotFound           = errors.New("no matching session found")
	ErrInvalidChoice             = errors.New("choice must be between 1 and 5")
	ErrAlreadyPlayed             = errors.New("choice already submitted for this session")
	ErrIncompleteSession         = errors.New("both choices are required before the deadline passes")
	ErrNotWinner                 = errors.New("you have to win to withdraw the prize")
	ErrAlreadyWithdrawn          = errors.New("prize already withdrawn")
	ErrUnauthorized              = errors.New("caller is not allowed to perform this action")
)
