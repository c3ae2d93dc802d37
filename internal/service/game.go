package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"rpsarena/internal/event"
	"rpsarena/internal/game"
	"rpsarena/internal/model"
	"rpsarena/internal/pkg/db"
	"rpsarena/internal/pkg/lock"
	"rpsarena/internal/repository"
	"rpsarena/internal/token"
)

// GameService owns the session lifecycle: creation, choice submission,
// resolution, and prize withdrawal.
//
// Wager policy: a player's entire free custodied balance is escrowed into
// the session at the moment they play. Resolution is permissionless: any
// caller may settle a session once both choices are present or the
// deadline has passed.
type GameService struct {
	pool       *db.Pool
	accounts   *repository.AccountRepository
	sessions   *repository.SessionRepository
	journal    *repository.JournalRepository
	ledger     *token.Ledger
	events     *event.Recorder
	locks      *lock.AddressLock
	contract   string
	minTimeout time.Duration
	maxTimeout time.Duration
	logger     zerolog.Logger
}

// NewGameService creates a new GameService instance.
func NewGameService(
	pool *db.Pool,
	accounts *repository.AccountRepository,
	sessions *repository.SessionRepository,
	journal *repository.JournalRepository,
	ledger *token.Ledger,
	events *event.Recorder,
	locks *lock.AddressLock,
	contractAddr string,
	minTimeout, maxTimeout time.Duration,
	logger zerolog.Logger,
) *GameService {
	return &GameService{
		pool:       pool,
		accounts:   accounts,
		sessions:   sessions,
		journal:    journal,
		ledger:     ledger,
		events:     events,
		locks:      locks,
		contract:   contractAddr,
		minTimeout: minTimeout,
		maxTimeout: maxTimeout,
		logger:     logger,
	}
}

// clampTimeout bounds a requested session timeout into the configured range.
func (s *GameService) clampTimeout(seconds int64) time.Duration {
	d := time.Duration(seconds) * time.Second
	if d < s.minTimeout {
		return s.minTimeout
	}
	if d > s.maxTimeout {
		return s.maxTimeout
	}
	return d
}

// StartGame creates a session with the caller as playerOne. The label plus
// the unordered participant pair must not collide with another open
// session.
func (s *GameService) StartGame(ctx context.Context, sender, opponent, label string, timeoutSeconds int64) (*model.Session, error) {
	if opponent == sender || opponent == "" {
		return nil, ErrInvalidOpponent
	}

	deadline := time.Now().Add(s.clampTimeout(timeoutSeconds))

	var sess *model.Session
	err := s.locks.WithLocks([]string{sender, opponent}, func() error {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		sessions := s.sessions.WithTx(tx)

		sess, err = sessions.Create(ctx, sender, opponent, label, deadline)
		if err != nil {
			if errors.Is(err, repository.ErrDuplicatePairKey) {
				return ErrDuplicateSession
			}
			return err
		}

		ev := event.Started{
			PlayerOne: sender,
			Opponent:  opponent,
			Label:     label,
			Deadline:  deadline,
		}
		if err := s.events.Record(ctx, tx, ev); err != nil {
			return err
		}

		return tx.Commit(ctx)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("player_one", sender).
		Str("player_two", opponent).
		Str("label", label).
		Time("deadline", deadline).
		Msg("Session started")

	return sess, nil
}

// PlayerOnePlay records the session creator's choice and escrows their
// full free balance as the wager. Write-once: a resubmission fails with
// ErrAlreadyPlayed and leaves the session untouched.
func (s *GameService) PlayerOnePlay(ctx context.Context, sender string, choice int, opponent, label string) (*model.Session, error) {
	return s.play(ctx, sender, choice, opponent, label, true)
}

// PlayerTwoPlay is the counter-party entry point: the caller must be the
// opponent named at session start, and the opponent argument names
// playerOne.
func (s *GameService) PlayerTwoPlay(ctx context.Context, sender string, choice int, opponent, label string) (*model.Session, error) {
	return s.play(ctx, sender, choice, opponent, label, false)
}

func (s *GameService) play(ctx context.Context, sender string, choice int, opponent, label string, asPlayerOne bool) (*model.Session, error) {
	if !game.ValidChoice(choice) {
		return nil, ErrInvalidChoice
	}

	var sess *model.Session
	err := s.locks.WithLocks([]string{sender, opponent}, func() error {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		sessions := s.sessions.WithTx(tx)
		accounts := s.accounts.WithTx(tx)
		journal := s.journal.WithTx(tx)

		cur, err := sessions.GetOpenByLabel(ctx, label, opponent, sender)
		if err != nil {
			if errors.Is(err, repository.ErrSessionNotFound) {
				return ErrSessionNotFound
			}
			return err
		}

		// Only the recorded role holder may use this entry point.
		expected := cur.PlayerOne
		if !asPlayerOne {
			expected = cur.PlayerTwo
		}
		if sender != expected {
			return ErrUnauthorized
		}

		already := cur.ChoiceOne
		other := cur.ChoiceTwo
		if !asPlayerOne {
			already, other = cur.ChoiceTwo, cur.ChoiceOne
		}
		if already != nil {
			return ErrAlreadyPlayed
		}

		// Full-balance wager policy: everything free goes into escrow.
		wager, err := accounts.DebitAll(ctx, sender)
		if err != nil {
			return err
		}

		state := model.StateAwaitingPlayerTwo
		if other != nil {
			state = model.StateAwaitingResolution
		}

		if asPlayerOne {
			sess, err = sessions.RecordChoiceOne(ctx, cur.ID, int16(choice), wager, state)
		} else {
			sess, err = sessions.RecordChoiceTwo(ctx, cur.ID, int16(choice), wager, state)
		}
		if err != nil {
			return err
		}

		if wager > 0 {
			if _, err := journal.Record(ctx, sender, -wager, model.EntryWager, &label); err != nil {
				return err
			}
		}

		var ev event.Event
		if asPlayerOne {
			ev = event.PlayerOnePlayed{Label: label, Choice: choice}
		} else {
			ev = event.PlayerTwoPlayed{Label: label, Choice: choice}
		}
		if err := s.events.Record(ctx, tx, ev); err != nil {
			return err
		}

		return tx.Commit(ctx)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("player", sender).
		Str("label", label).
		Str("choice", game.ChoiceName(choice)).
		Int64("wager", wagerOf(sess, sender)).
		Msg("Choice submitted")

	return sess, nil
}

func wagerOf(sess *model.Session, player string) int64 {
	if sess == nil {
		return 0
	}
	if player == sess.PlayerOne {
		return sess.WagerOne
	}
	return sess.WagerTwo
}

// DeclareWinner settles a session. Any caller may trigger settlement:
// before the deadline both choices must be present; after it, the sole
// player wins by forfeiture, or the session expires untouched.
func (s *GameService) DeclareWinner(ctx context.Context, sender, label, opponent string) (*model.Session, error) {
	// The participants are unknown until the session is loaded, so find it
	// first and take the locks before the settling transaction.
	probe, err := s.sessions.GetOpenByLabel(ctx, label, opponent, sender)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	var sess *model.Session
	err = s.locks.WithLocks([]string{probe.PlayerOne, probe.PlayerTwo}, func() error {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		sessions := s.sessions.WithTx(tx)

		// Re-validate from current state; the session may have settled
		// between the probe and the lock acquisition.
		cur, err := sessions.GetOpenByPairKey(ctx, probe.PairKey)
		if err != nil {
			if errors.Is(err, repository.ErrSessionNotFound) {
				return ErrSessionNotFound
			}
			return err
		}

		sess, err = s.settle(ctx, tx, cur, time.Now())
		if err != nil {
			return err
		}

		return tx.Commit(ctx)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("label", label).
		Str("state", string(sess.State)).
		Str("winner", winnerOf(sess)).
		Msg("Session settled")

	return sess, nil
}

func winnerOf(sess *model.Session) string {
	if sess == nil || sess.Winner == nil {
		return ""
	}
	return *sess.Winner
}

// settle applies the settlement path for cur inside the open transaction.
func (s *GameService) settle(ctx context.Context, tx db.Querier, cur *model.Session, now time.Time) (*model.Session, error) {
	sessions := s.sessions.WithTx(tx)
	accounts := s.accounts.WithTx(tx)
	journal := s.journal.WithTx(tx)

	mode := classifySettlement(cur.ChoiceOne != nil, cur.ChoiceTwo != nil, cur.Expired(now))

	switch mode {
	case settleIncomplete:
		return nil, ErrIncompleteSession

	case settleBoth:
		a, b := int(*cur.ChoiceOne), int(*cur.ChoiceTwo)
		verdict := game.Resolve(a, b)
		if verdict == game.TieGame {
			return s.settleTie(ctx, tx, cur, accounts, journal, sessions)
		}
		winner, choice := cur.PlayerOne, *cur.ChoiceOne
		if verdict == game.PlayerTwoWins {
			winner, choice = cur.PlayerTwo, *cur.ChoiceTwo
		}
		return s.settleWin(ctx, tx, cur, sessions, winner, choice)

	case settleForfeitOne:
		return s.settleWin(ctx, tx, cur, sessions, cur.PlayerOne, *cur.ChoiceOne)

	case settleForfeitTwo:
		return s.settleWin(ctx, tx, cur, sessions, cur.PlayerTwo, *cur.ChoiceTwo)

	case settleExpire:
		sess, err := sessions.MarkExpired(ctx, cur.ID)
		if err != nil {
			return nil, err
		}
		ev := event.Expired{Label: cur.Label, PlayerOne: cur.PlayerOne, PlayerTwo: cur.PlayerTwo}
		if err := s.events.Record(ctx, tx, ev); err != nil {
			return nil, err
		}
		return sess, nil
	}

	return nil, fmt.Errorf("unknown settlement mode %d", mode)
}

// settleWin moves the whole escrow into the winner's claimable prize.
func (s *GameService) settleWin(ctx context.Context, tx db.Querier, cur *model.Session, sessions *repository.SessionRepository, winner string, choice int16) (*model.Session, error) {
	if cur.WagerOne > math.MaxInt64-cur.WagerTwo {
		return nil, fmt.Errorf("escrow overflow for session %q", cur.Label)
	}
	prize := cur.WagerOne + cur.WagerTwo

	sess, err := sessions.ResolveWin(ctx, cur.ID, winner, choice, prize)
	if err != nil {
		return nil, err
	}

	ev := event.Completed{WinnerAddress: winner, Choice: int(choice)}
	if err := s.events.Record(ctx, tx, ev); err != nil {
		return nil, err
	}
	return sess, nil
}

// settleTie returns each wager to its owner's deposit balance.
func (s *GameService) settleTie(ctx context.Context, tx db.Querier, cur *model.Session, accounts *repository.AccountRepository, journal *repository.JournalRepository, sessions *repository.SessionRepository) (*model.Session, error) {
	if cur.WagerOne > 0 {
		if err := accounts.Credit(ctx, cur.PlayerOne, cur.WagerOne); err != nil {
			return nil, err
		}
		if _, err := journal.Record(ctx, cur.PlayerOne, cur.WagerOne, model.EntryTieRefund, &cur.Label); err != nil {
			return nil, err
		}
	}
	if cur.WagerTwo > 0 {
		if err := accounts.Credit(ctx, cur.PlayerTwo, cur.WagerTwo); err != nil {
			return nil, err
		}
		if _, err := journal.Record(ctx, cur.PlayerTwo, cur.WagerTwo, model.EntryTieRefund, &cur.Label); err != nil {
			return nil, err
		}
	}

	sess, err := sessions.ResolveTie(ctx, cur.ID)
	if err != nil {
		return nil, err
	}

	ev := event.Tie{PlayerAddressOne: cur.PlayerOne, PlayerAddressTwo: cur.PlayerTwo}
	if err := s.events.Record(ctx, tx, ev); err != nil {
		return nil, err
	}
	return sess, nil
}

// WithdrawPrize releases a resolved session's prize to the declared
// winner through the token ledger. One-shot: the withdrawn flag flips
// before the outbound transfer, so a reentrant or repeated call fails
// with ErrAlreadyWithdrawn.
func (s *GameService) WithdrawPrize(ctx context.Context, sender, label string) (int64, error) {
	probe, err := s.sessions.GetResolvedByLabel(ctx, label, sender)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			// A resolved session with this label that the caller is no
			// part of still answers NotWinner, not NotFound.
			exists, lookupErr := s.resolvedLabelExists(ctx, label)
			if lookupErr != nil {
				return 0, lookupErr
			}
			if exists {
				return 0, ErrNotWinner
			}
			return 0, ErrSessionNotFound
		}
		return 0, err
	}

	if probe.Winner == nil || *probe.Winner != sender {
		return 0, ErrNotWinner
	}

	var amount int64
	err = s.locks.WithLock(sender, func() error {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		sessions := s.sessions.WithTx(tx)
		journal := s.journal.WithTx(tx)

		ok, err := sessions.MarkWithdrawn(ctx, probe.ID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyWithdrawn
		}

		amount = probe.Prize
		if amount > 0 {
			if _, err := journal.Record(ctx, sender, amount, model.EntryPrizePaid, &label); err != nil {
				return err
			}
			if err := s.ledger.WithTx(tx).Transfer(ctx, s.contract, sender, amount); err != nil {
				return err
			}
		}

		ev := event.Withdrawed{Winner: sender, Amount: amount}
		if err := s.events.Record(ctx, tx, ev); err != nil {
			return err
		}

		return tx.Commit(ctx)
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info().
		Str("winner", sender).
		Str("label", label).
		Int64("amount", amount).
		Msg("Prize withdrawn")

	return amount, nil
}

func (s *GameService) resolvedLabelExists(ctx context.Context, label string) (bool, error) {
	return s.sessions.ResolvedLabelExists(ctx, label)
}

// Session returns the session a participant sees for a label: the open one
// if any, otherwise the latest resolved one.
func (s *GameService) Session(ctx context.Context, participant, label string) (*model.Session, error) {
	sess, err := s.sessions.GetOpenByLabel(ctx, label, participant, participant)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, repository.ErrSessionNotFound) {
		return nil, err
	}

	sess, err = s.sessions.GetResolvedByLabel(ctx, label, participant)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return sess, nil
}
