package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"rpsarena/internal/model"
	"rpsarena/internal/pkg/db"
	"rpsarena/internal/pkg/lock"
	"rpsarena/internal/repository"
	"rpsarena/internal/token"
)

// DepositService moves value between the token ledger and the escrow's
// deposit ledger. Deposits pull pre-authorized tokens in; withdrawals push
// free balance back out.
type DepositService struct {
	pool     *db.Pool
	accounts *repository.AccountRepository
	journal  *repository.JournalRepository
	ledger   *token.Ledger
	locks    *lock.AddressLock
	contract string
	logger   zerolog.Logger
}

// NewDepositService creates a new DepositService instance.
func NewDepositService(
	pool *db.Pool,
	accounts *repository.AccountRepository,
	journal *repository.JournalRepository,
	ledger *token.Ledger,
	locks *lock.AddressLock,
	contractAddr string,
	logger zerolog.Logger,
) *DepositService {
	return &DepositService{
		pool:     pool,
		accounts: accounts,
		journal:  journal,
		ledger:   ledger,
		locks:    locks,
		contract: contractAddr,
		logger:   logger,
	}
}

// Deposit pulls amount from sender's token balance into escrow custody.
// The sender must have approved at least amount to the contract address
// beforehand; the pull decrements that allowance.
func (s *DepositService) Deposit(ctx context.Context, sender string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	var newBalance int64
	err := s.locks.WithLock(sender, func() error {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		ledger := s.ledger.WithTx(tx)
		accounts := s.accounts.WithTx(tx)
		journal := s.journal.WithTx(tx)

		allowance, err := ledger.Allowance(ctx, sender, s.contract)
		if err != nil {
			return err
		}
		if allowance < amount {
			return ErrInsufficientAuthorization
		}

		if err := accounts.Credit(ctx, sender, amount); err != nil {
			return err
		}
		if _, err := journal.Record(ctx, sender, amount, model.EntryDeposit, nil); err != nil {
			return err
		}

		if err := ledger.TransferFrom(ctx, s.contract, sender, s.contract, amount); err != nil {
			if errors.Is(err, token.ErrInsufficientAllowance) {
				return ErrInsufficientAuthorization
			}
			return err
		}

		newBalance, err = accounts.BalanceOf(ctx, sender)
		if err != nil {
			return err
		}

		return tx.Commit(ctx)
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info().
		Str("owner", sender).
		Int64("amount", amount).
		Int64("balance", newBalance).
		Msg("Deposit accepted")

	return newBalance, nil
}

// Withdraw returns amount of sender's free custodied balance to their
// token ledger balance. Escrowed wagers are not free and cannot be
// withdrawn until the session settles.
func (s *DepositService) Withdraw(ctx context.Context, sender string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	var newBalance int64
	err := s.locks.WithLock(sender, func() error {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		accounts := s.accounts.WithTx(tx)
		journal := s.journal.WithTx(tx)

		if err := accounts.Debit(ctx, sender, amount); err != nil {
			if errors.Is(err, repository.ErrInsufficientBalance) {
				return ErrInsufficientBalance
			}
			return err
		}
		if _, err := journal.Record(ctx, sender, -amount, model.EntryWithdraw, nil); err != nil {
			return err
		}

		// Deposit ledger already debited; the outbound transfer comes last.
		if err := s.ledger.WithTx(tx).Transfer(ctx, s.contract, sender, amount); err != nil {
			return err
		}

		newBalance, err = accounts.BalanceOf(ctx, sender)
		if err != nil {
			return err
		}

		return tx.Commit(ctx)
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info().
		Str("owner", sender).
		Int64("amount", amount).
		Int64("balance", newBalance).
		Msg("Deposit withdrawn")

	return newBalance, nil
}

// BalanceOf returns owner's custodied balance. Readable by anyone.
func (s *DepositService) BalanceOf(ctx context.Context, owner string) (int64, error) {
	return s.accounts.BalanceOf(ctx, owner)
}

// TopAccounts returns the largest custodied balances.
func (s *DepositService) TopAccounts(ctx context.Context, limit int) ([]*model.Account, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	return s.accounts.TopAccounts(ctx, limit)
}

// History returns owner's journal entries, newest first.
func (s *DepositService) History(ctx context.Context, owner string, limit int) ([]*model.JournalEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.journal.GetByOwner(ctx, owner, limit)
}
