// Integration tests use testcontainers-go to spin up a PostgreSQL
// container. They are skipped when Docker is unavailable.
package service

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"rpsarena/internal/event"
	"rpsarena/internal/game"
	"rpsarena/internal/model"
	"rpsarena/internal/pkg/db"
	"rpsarena/internal/pkg/lock"
	"rpsarena/internal/repository"
	"rpsarena/internal/token"
)

const testContract = "rpsarena:escrow"

func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	err := cmd.Run()
	return err == nil
}

// testStack wires the full service graph against a throwaway database.
type testStack struct {
	deposits *DepositService
	games    *GameService
	ledger   *token.Ledger
	journal  *repository.JournalRepository
	accounts *repository.AccountRepository
}

// newTestStack creates a PostgreSQL container and wires the services over
// it. minTimeout controls the lower clamp for session deadlines so expiry
// paths can be exercised without long sleeps.
func newTestStack(t *testing.T, minTimeout time.Duration) (*testStack, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	rawPool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx, rawPool))

	pool := &db.Pool{Pool: rawPool}
	accounts := repository.NewAccountRepository(rawPool)
	sessions := repository.NewSessionRepository(rawPool)
	journal := repository.NewJournalRepository(rawPool)
	ledger := token.NewLedger(rawPool)
	locks := lock.NewAddressLock()
	events := event.NewRecorder(zerolog.Nop())

	stack := &testStack{
		deposits: NewDepositService(pool, accounts, journal, ledger, locks, testContract, zerolog.Nop()),
		games: NewGameService(pool, accounts, sessions, journal, ledger, events, locks,
			testContract, minTimeout, 720*time.Hour, zerolog.Nop()),
		ledger:   ledger,
		journal:  journal,
		accounts: accounts,
	}

	cleanup := func() {
		rawPool.Close()
		_ = pgContainer.Terminate(ctx)
	}

	return stack, cleanup
}

// fund mints tokens to addr, approves the escrow contract, and deposits the
// full amount into custody.
func fund(t *testing.T, stack *testStack, addr string, amount int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, stack.ledger.Mint(ctx, addr, amount))
	require.NoError(t, stack.ledger.Approve(ctx, addr, testContract, amount))
	_, err := stack.deposits.Deposit(ctx, addr, amount)
	require.NoError(t, err)
}

func TestDepositService(t *testing.T) {
	stack, cleanup := newTestStack(t, time.Second)
	defer cleanup()
	ctx := context.Background()

	_, err := stack.deposits.Deposit(ctx, "alice", 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = stack.deposits.Deposit(ctx, "alice", -10)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	// Depositing without a prior approval is refused
	require.NoError(t, stack.ledger.Mint(ctx, "alice", 1000))
	_, err = stack.deposits.Deposit(ctx, "alice", 500)
	assert.ErrorIs(t, err, ErrInsufficientAuthorization)

	require.NoError(t, stack.ledger.Approve(ctx, "alice", testContract, 500))
	newBalance, err := stack.deposits.Deposit(ctx, "alice", 500)
	require.NoError(t, err)
	assert.Equal(t, int64(500), newBalance)

	// Tokens moved into contract custody; the allowance was consumed
	tokenBal, err := stack.ledger.BalanceOf(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(500), tokenBal)
	contractBal, err := stack.ledger.BalanceOf(ctx, testContract)
	require.NoError(t, err)
	assert.Equal(t, int64(500), contractBal)
	allowance, err := stack.ledger.Allowance(ctx, "alice", testContract)
	require.NoError(t, err)
	assert.Equal(t, int64(0), allowance)

	// Withdraw free balance back out to the token ledger
	newBalance, err = stack.deposits.Withdraw(ctx, "alice", 200)
	require.NoError(t, err)
	assert.Equal(t, int64(300), newBalance)
	tokenBal, err = stack.ledger.BalanceOf(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(700), tokenBal)

	_, err = stack.deposits.Withdraw(ctx, "alice", 301)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestGameService_WinAndWithdraw(t *testing.T) {
	stack, cleanup := newTestStack(t, time.Second)
	defer cleanup()
	ctx := context.Background()

	fund(t, stack, "alice", 700)
	fund(t, stack, "bob", 300)

	_, err := stack.games.StartGame(ctx, "alice", "bob", "round-1", 3600)
	require.NoError(t, err)

	// Paper beats rock: the full free balance of each player is wagered
	sess, err := stack.games.PlayerOnePlay(ctx, "alice", game.Paper, "bob", "round-1")
	require.NoError(t, err)
	assert.Equal(t, model.StateAwaitingPlayerTwo, sess.State)
	assert.Equal(t, int64(700), sess.WagerOne)

	sess, err = stack.games.PlayerTwoPlay(ctx, "bob", game.Rock, "alice", "round-1")
	require.NoError(t, err)
	assert.Equal(t, model.StateAwaitingResolution, sess.State)
	assert.Equal(t, int64(300), sess.WagerTwo)

	// Settlement is permissionless: a third party may declare the winner
	sess, err = stack.games.DeclareWinner(ctx, "observer", "round-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, model.StateResolved, sess.State)
	require.NotNil(t, sess.Winner)
	assert.Equal(t, "alice", *sess.Winner)
	assert.Equal(t, int64(1000), sess.Prize)

	// The loser cannot claim
	_, err = stack.games.WithdrawPrize(ctx, "bob", "round-1")
	assert.ErrorIs(t, err, ErrNotWinner)

	// The winner claims once; the prize lands on the token ledger
	amount, err := stack.games.WithdrawPrize(ctx, "alice", "round-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), amount)

	tokenBal, err := stack.ledger.BalanceOf(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), tokenBal)
	contractBal, err := stack.ledger.BalanceOf(ctx, testContract)
	require.NoError(t, err)
	assert.Equal(t, int64(0), contractBal)

	_, err = stack.games.WithdrawPrize(ctx, "alice", "round-1")
	assert.ErrorIs(t, err, ErrAlreadyWithdrawn)

	// Escrow conservation: the session's journal entries net to zero
	net, err := stack.journal.NetByLabel(ctx, "round-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), net)
}

func TestGameService_TieRefundsDeposits(t *testing.T) {
	stack, cleanup := newTestStack(t, time.Second)
	defer cleanup()
	ctx := context.Background()

	fund(t, stack, "alice", 400)
	fund(t, stack, "bob", 250)

	_, err := stack.games.StartGame(ctx, "alice", "bob", "tied", 3600)
	require.NoError(t, err)
	_, err = stack.games.PlayerOnePlay(ctx, "alice", game.Spock, "bob", "tied")
	require.NoError(t, err)
	_, err = stack.games.PlayerTwoPlay(ctx, "bob", game.Spock, "alice", "tied")
	require.NoError(t, err)

	sess, err := stack.games.DeclareWinner(ctx, "bob", "tied", "alice")
	require.NoError(t, err)
	assert.Equal(t, model.StateResolved, sess.State)
	assert.Nil(t, sess.Winner)
	assert.Equal(t, int64(0), sess.Prize)

	// Each wager went back to its owner's free balance
	balance, err := stack.deposits.BalanceOf(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(400), balance)
	balance, err = stack.deposits.BalanceOf(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(250), balance)

	net, err := stack.journal.NetByLabel(ctx, "tied")
	require.NoError(t, err)
	assert.Equal(t, int64(0), net)

	// There is no prize on a tie
	_, err = stack.games.WithdrawPrize(ctx, "alice", "tied")
	assert.ErrorIs(t, err, ErrNotWinner)
}

func TestGameService_ForfeitureAndExpiry(t *testing.T) {
	stack, cleanup := newTestStack(t, time.Millisecond)
	defer cleanup()
	ctx := context.Background()

	fund(t, stack, "alice", 500)

	// Forfeiture: only playerOne shows up before the deadline
	_, err := stack.games.StartGame(ctx, "alice", "bob", "forfeit", 0)
	require.NoError(t, err)
	_, err = stack.games.PlayerOnePlay(ctx, "alice", game.Lizard, "bob", "forfeit")
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	sess, err := stack.games.DeclareWinner(ctx, "alice", "forfeit", "bob")
	require.NoError(t, err)
	assert.Equal(t, model.StateResolved, sess.State)
	require.NotNil(t, sess.Winner)
	assert.Equal(t, "alice", *sess.Winner)
	assert.Equal(t, int64(500), sess.Prize)

	amount, err := stack.games.WithdrawPrize(ctx, "alice", "forfeit")
	require.NoError(t, err)
	assert.Equal(t, int64(500), amount)

	// Expiry: nobody played, the session dies without moving funds
	_, err = stack.games.StartGame(ctx, "alice", "bob", "stale", 0)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	sess, err = stack.games.DeclareWinner(ctx, "bob", "stale", "alice")
	require.NoError(t, err)
	assert.Equal(t, model.StateExpired, sess.State)
	assert.Nil(t, sess.Winner)

	// An expired pair key frees up for a rematch
	_, err = stack.games.StartGame(ctx, "alice", "bob", "stale", 3600)
	require.NoError(t, err)
}

func TestGameService_PrematureDeclare(t *testing.T) {
	stack, cleanup := newTestStack(t, time.Second)
	defer cleanup()
	ctx := context.Background()

	fund(t, stack, "alice", 100)

	_, err := stack.games.StartGame(ctx, "alice", "bob", "early", 3600)
	require.NoError(t, err)
	_, err = stack.games.PlayerOnePlay(ctx, "alice", game.Rock, "bob", "early")
	require.NoError(t, err)

	// One choice missing and the deadline not yet passed: no settlement
	_, err = stack.games.DeclareWinner(ctx, "alice", "early", "bob")
	assert.ErrorIs(t, err, ErrIncompleteSession)

	// The late player can still play before anyone settles
	sess, err := stack.games.PlayerTwoPlay(ctx, "bob", game.Scissors, "alice", "early")
	require.NoError(t, err)
	assert.Equal(t, model.StateAwaitingResolution, sess.State)
}

func TestGameService_Validation(t *testing.T) {
	stack, cleanup := newTestStack(t, time.Second)
	defer cleanup()
	ctx := context.Background()

	_, err := stack.games.StartGame(ctx, "alice", "alice", "self", 3600)
	assert.ErrorIs(t, err, ErrInvalidOpponent)
	_, err = stack.games.StartGame(ctx, "alice", "", "noone", 3600)
	assert.ErrorIs(t, err, ErrInvalidOpponent)

	_, err = stack.games.StartGame(ctx, "alice", "bob", "dup", 3600)
	require.NoError(t, err)
	_, err = stack.games.StartGame(ctx, "bob", "alice", "dup", 3600)
	assert.ErrorIs(t, err, ErrDuplicateSession)

	_, err = stack.games.PlayerOnePlay(ctx, "alice", 0, "bob", "dup")
	assert.ErrorIs(t, err, ErrInvalidChoice)
	_, err = stack.games.PlayerOnePlay(ctx, "alice", 6, "bob", "dup")
	assert.ErrorIs(t, err, ErrInvalidChoice)

	// Only the recorded role holder may use an entry point
	_, err = stack.games.PlayerOnePlay(ctx, "bob", game.Rock, "alice", "dup")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = stack.games.PlayerTwoPlay(ctx, "alice", game.Rock, "bob", "dup")
	assert.ErrorIs(t, err, ErrUnauthorized)

	// Outsiders see no session at all
	_, err = stack.games.PlayerOnePlay(ctx, "mallory", game.Rock, "mallory", "dup")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// Choices are write-once
	_, err = stack.games.PlayerOnePlay(ctx, "alice", game.Rock, "bob", "dup")
	require.NoError(t, err)
	_, err = stack.games.PlayerOnePlay(ctx, "alice", game.Paper, "bob", "dup")
	assert.ErrorIs(t, err, ErrAlreadyPlayed)

	_, err = stack.games.DeclareWinner(ctx, "alice", "missing", "bob")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = stack.games.WithdrawPrize(ctx, "alice", "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestGameService_WithdrawByOutsider(t *testing.T) {
	stack, cleanup := newTestStack(t, time.Second)
	defer cleanup()
	ctx := context.Background()

	fund(t, stack, "alice", 100)
	fund(t, stack, "bob", 100)

	_, err := stack.games.StartGame(ctx, "alice", "bob", "closed", 3600)
	require.NoError(t, err)
	_, err = stack.games.PlayerOnePlay(ctx, "alice", game.Scissors, "bob", "closed")
	require.NoError(t, err)
	_, err = stack.games.PlayerTwoPlay(ctx, "bob", game.Paper, "alice", "closed")
	require.NoError(t, err)
	_, err = stack.games.DeclareWinner(ctx, "observer", "closed", "alice")
	require.NoError(t, err)

	// A stranger probing a settled label is told they did not win, not
	// that the session is missing.
	_, err = stack.games.WithdrawPrize(ctx, "mallory", "closed")
	assert.ErrorIs(t, err, ErrNotWinner)
}

func TestGameService_UnclaimedPrizeSurvivesLabelReuse(t *testing.T) {
	stack, cleanup := newTestStack(t, time.Second)
	defer cleanup()
	ctx := context.Background()

	fund(t, stack, "alice", 120)
	fund(t, stack, "bob", 80)

	// Alice wins the first round under the label but does not claim
	_, err := stack.games.StartGame(ctx, "alice", "bob", "rematch", 3600)
	require.NoError(t, err)
	_, err = stack.games.PlayerOnePlay(ctx, "alice", game.Scissors, "bob", "rematch")
	require.NoError(t, err)
	_, err = stack.games.PlayerTwoPlay(ctx, "bob", game.Paper, "alice", "rematch")
	require.NoError(t, err)
	_, err = stack.games.DeclareWinner(ctx, "alice", "rematch", "bob")
	require.NoError(t, err)

	// The settled label frees up and alice loses a rematch against carol
	fund(t, stack, "carol", 60)
	_, err = stack.games.StartGame(ctx, "alice", "carol", "rematch", 3600)
	require.NoError(t, err)
	_, err = stack.games.PlayerOnePlay(ctx, "alice", game.Rock, "carol", "rematch")
	require.NoError(t, err)
	_, err = stack.games.PlayerTwoPlay(ctx, "carol", game.Paper, "alice", "rematch")
	require.NoError(t, err)
	_, err = stack.games.DeclareWinner(ctx, "carol", "rematch", "alice")
	require.NoError(t, err)

	// The earlier unclaimed prize is still reachable
	amount, err := stack.games.WithdrawPrize(ctx, "alice", "rematch")
	require.NoError(t, err)
	assert.Equal(t, int64(200), amount)

	amount, err = stack.games.WithdrawPrize(ctx, "carol", "rematch")
	require.NoError(t, err)
	assert.Equal(t, int64(60), amount)

	// With both prizes claimed, nothing is left to withdraw
	_, err = stack.games.WithdrawPrize(ctx, "alice", "rematch")
	assert.ErrorIs(t, err, ErrNotWinner)
}

func TestGameService_SessionLookup(t *testing.T) {
	stack, cleanup := newTestStack(t, time.Second)
	defer cleanup()
	ctx := context.Background()

	fund(t, stack, "alice", 50)
	fund(t, stack, "bob", 50)

	_, err := stack.games.StartGame(ctx, "alice", "bob", "view", 3600)
	require.NoError(t, err)

	sess, err := stack.games.Session(ctx, "alice", "view")
	require.NoError(t, err)
	assert.Equal(t, model.StateCreated, sess.State)

	_, err = stack.games.Session(ctx, "mallory", "view")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = stack.games.PlayerOnePlay(ctx, "alice", game.Rock, "bob", "view")
	require.NoError(t, err)
	_, err = stack.games.PlayerTwoPlay(ctx, "bob", game.Paper, "alice", "view")
	require.NoError(t, err)
	_, err = stack.games.DeclareWinner(ctx, "alice", "view", "bob")
	require.NoError(t, err)

	// After resolution the lookup falls through to the settled session
	sess, err = stack.games.Session(ctx, "bob", "view")
	require.NoError(t, err)
	assert.Equal(t, model.StateResolved, sess.State)
	require.NotNil(t, sess.Winner)
	assert.Equal(t, "bob", *sess.Winner)
}
