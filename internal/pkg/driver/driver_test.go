package driver_test

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vreid/arena/internal/pkg/arena"
	"github.com/vreid/arena/internal/pkg/commitment"
	"github.com/vreid/arena/internal/pkg/common"
	"github.com/vreid/arena/internal/pkg/driver"
	"github.com/vreid/arena/internal/pkg/progress"
	"github.com/vreid/arena/internal/pkg/retry"
	"github.com/vreid/arena/internal/pkg/simledger"
	"github.com/vreid/arena/internal/pkg/strategy"
	"github.com/vreid/arena/internal/pkg/vault"
	"golang.org/x/sync/errgroup"
)

var (
	alice = ethcommon.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = ethcommon.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func openVault(t *testing.T) *vault.Vault {
	t.Helper()

	db, err := common.OpenDatabase(t.TempDir(), "wallet")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Shutdown() })

	return vault.New(db.DB)
}

func runner(reporter progress.Reporter) *driver.Runner {
	return &driver.Runner{
		PollInterval: 2 * time.Millisecond,
		Retry:        retry.Policy{MaxAttempts: 3},
		Reporter:     reporter,
	}
}

func activeMatch(t *testing.T, l *simledger.Ledger, contract ethcommon.Address, wager int64) uint64 {
	t.Helper()

	matchID := l.CreateMatch(alice, bob, big.NewInt(wager), contract)

	_, err := l.Session(bob).Escrow().AcceptMatch(context.Background(), matchID, big.NewInt(wager))
	require.NoError(t, err)

	return matchID
}

func rpsGame(t *testing.T, l *simledger.Ledger, rounds uint64) (uint64, uint64) {
	t.Helper()

	matchID := activeMatch(t, l, l.Deployment().RPS, 100)

	gameID, _, err := l.Session(alice).RPS().CreateGame(context.Background(), matchID, arena.CreateParams{Rounds: rounds})
	require.NoError(t, err)

	return matchID, gameID
}

func play(t *testing.T, gameID uint64, drivers ...driver.Driver) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	for _, d := range drivers {
		g.Go(func() error {
			_, err := runner(nil).Run(ctx, d, gameID)

			return err
		})
	}

	require.NoError(t, g.Wait())
}

func TestRPSPlaysToSettlement(t *testing.T) {
	t.Parallel()

	l := simledger.New()
	matchID, gameID := rpsGame(t, l, 3)

	aliceVault, bobVault := openVault(t), openVault(t)
	a := driver.NewRPS(driver.Config{Wallet: alice, Secrets: aliceVault}, l.Session(alice).RPS(), strategy.Fixed{Move: arena.MoveRock}, nil)
	b := driver.NewRPS(driver.Config{Wallet: bob, Secrets: bobVault}, l.Session(bob).RPS(), strategy.Fixed{Move: arena.MoveScissors}, nil)

	play(t, gameID, a, b)

	ctx := context.Background()

	game, err := l.Session(alice).RPS().GetGame(ctx, gameID)
	require.NoError(t, err)
	assert.True(t, game.Settled)
	assert.Equal(t, [2]uint64{3, 0}, game.Scores)

	winner, err := l.Session(bob).Escrow().GetWinner(ctx, matchID)
	require.NoError(t, err)
	assert.Equal(t, alice, winner)

	for round := range uint64(3) {
		_, err = aliceVault.Take(vault.Key{
			Wallet:   alice,
			Variant:  arena.VariantRPS,
			Contract: l.Deployment().RPS,
			GameID:   gameID,
			Scope:    vault.RoundScope(round),
		})
		require.ErrorIs(t, err, vault.ErrNotFound)
	}
}

func TestRPSHistoryFeedsStrategy(t *testing.T) {
	t.Parallel()

	l := simledger.New()
	_, gameID := rpsGame(t, l, 5)

	rounds := driver.NewRoundCache()
	a := driver.NewRPS(driver.Config{Wallet: alice, Secrets: openVault(t)}, l.Session(alice).RPS(), strategy.Frequency{}, rounds)
	b := driver.NewRPS(driver.Config{Wallet: bob, Secrets: openVault(t)}, l.Session(bob).RPS(), strategy.Fixed{Move: arena.MovePaper}, nil)

	play(t, gameID, a, b)

	game, err := l.Session(alice).RPS().GetGame(context.Background(), gameID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, game.Scores[0], uint64(4), "frequency counters paper with scissors after round one")
	assert.Equal(t, 4, rounds.Len())
}

func TestRPSPriorRoundsFeedStrategy(t *testing.T) {
	t.Parallel()

	l := simledger.New()
	_, gameID := rpsGame(t, l, 3)

	prior := make([]strategy.Round, 4)
	for i := range prior {
		prior[i] = strategy.Round{Ours: arena.MoveRock, Theirs: arena.MovePaper}
	}

	a := driver.NewRPS(driver.Config{Wallet: alice, Secrets: openVault(t)}, l.Session(alice).RPS(), strategy.Frequency{}, nil).WithPrior(prior)
	b := driver.NewRPS(driver.Config{Wallet: bob, Secrets: openVault(t)}, l.Session(bob).RPS(), strategy.Fixed{Move: arena.MovePaper}, nil)

	play(t, gameID, a, b)

	game, err := l.Session(alice).RPS().GetGame(context.Background(), gameID)
	require.NoError(t, err)
	assert.Equal(t, [2]uint64{3, 0}, game.Scores, "earlier games already show paper")

	rounds, err := a.Rounds(context.Background(), gameID)
	require.NoError(t, err)
	require.Len(t, rounds, 3)

	for _, r := range rounds {
		assert.Equal(t, strategy.Round{Ours: arena.MoveScissors, Theirs: arena.MovePaper}, r)
	}

	rounds, err = b.Rounds(context.Background(), gameID)
	require.NoError(t, err)
	assert.Equal(t, strategy.Round{Ours: arena.MovePaper, Theirs: arena.MoveScissors}, rounds[0])
}

func TestDecideIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := simledger.New()
	_, gameID := rpsGame(t, l, 3)

	a := driver.NewRPS(driver.Config{Wallet: alice, Secrets: openVault(t)}, l.Session(alice).RPS(), strategy.Fixed{Move: arena.MoveRock}, nil)

	state, err := a.Observe(ctx, gameID)
	require.NoError(t, err)

	first, err := a.Decide(state)
	require.NoError(t, err)
	second, err := a.Decide(state)
	require.NoError(t, err)

	assert.Equal(t, driver.KindCommit, first.Kind)
	assert.Equal(t, first, second)

	_, err = a.Execute(ctx, state, first)
	require.NoError(t, err)

	secret, err := commitment.NewSecret()
	require.NoError(t, err)

	_, err = l.Session(bob).RPS().Commit(ctx, gameID, commitment.CommitValue(uint8(arena.MovePaper), secret))
	require.NoError(t, err)

	state, err = a.Observe(ctx, gameID)
	require.NoError(t, err)

	first, err = a.Decide(state)
	require.NoError(t, err)
	second, err = a.Decide(state)
	require.NoError(t, err)

	assert.Equal(t, driver.KindReveal, first.Kind)
	assert.Equal(t, first, second)

	again, err := a.Observe(ctx, gameID)
	require.NoError(t, err)
	assert.Equal(t, state, again, "deciding sends nothing")
}

func TestCommitReusesStoredEntry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := simledger.New()
	_, gameID := rpsGame(t, l, 3)

	secrets := openVault(t)
	a := driver.NewRPS(driver.Config{Wallet: alice, Secrets: secrets}, l.Session(alice).RPS(), strategy.Fixed{Move: arena.MoveRock}, nil)

	secret, err := commitment.NewSecret()
	require.NoError(t, err)

	require.NoError(t, secrets.Put(vault.Key{
		Wallet:   alice,
		Variant:  arena.VariantRPS,
		Contract: l.Deployment().RPS,
		GameID:   gameID,
		Scope:    vault.RoundScope(0),
	}, vault.Entry{Secret: secret, Value: big.NewInt(int64(arena.MovePaper)), Variant: arena.VariantRPS}))

	state, err := a.Observe(ctx, gameID)
	require.NoError(t, err)

	action, err := a.Decide(state)
	require.NoError(t, err)
	require.Equal(t, driver.KindCommit, action.Kind)

	_, err = a.Execute(ctx, state, action)
	require.NoError(t, err)

	round, err := l.Session(alice).RPS().GetRound(ctx, gameID, 0)
	require.NoError(t, err)
	assert.Equal(t, commitment.CommitValue(uint8(arena.MovePaper), secret), round.Commits[0])
}

func TestLostSecretIsSaltLost(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := simledger.New()
	_, gameID := rpsGame(t, l, 3)

	secrets := openVault(t)
	a := driver.NewRPS(driver.Config{Wallet: alice, Secrets: secrets}, l.Session(alice).RPS(), strategy.Fixed{Move: arena.MoveRock}, nil)

	state, err := a.Observe(ctx, gameID)
	require.NoError(t, err)

	action, err := a.Decide(state)
	require.NoError(t, err)

	_, err = a.Execute(ctx, state, action)
	require.NoError(t, err)
	require.NoError(t, secrets.Delete(action.Key))

	secret, err := commitment.NewSecret()
	require.NoError(t, err)

	_, err = l.Session(bob).RPS().Commit(ctx, gameID, commitment.CommitValue(uint8(arena.MovePaper), secret))
	require.NoError(t, err)

	_, err = runner(nil).Run(ctx, a, gameID)
	require.ErrorIs(t, err, arena.ErrSaltLost)
	assert.Equal(t, arena.CodeSaltLost, arena.CodeOf(err))
}

func TestPokerMissingHandOnTurnIsSaltLost(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := simledger.New()
	matchID := activeMatch(t, l, l.Deployment().Poker, 1000)

	gameID, _, err := l.Session(alice).Poker().CreateGame(ctx, matchID, arena.CreateParams{})
	require.NoError(t, err)

	secrets := openVault(t)
	tight, err := strategy.ParsePoker("tight")
	require.NoError(t, err)

	a := driver.NewPoker(driver.Config{Wallet: alice, Secrets: secrets}, l.Session(alice).Poker(), tight, big.NewInt(1000))

	state, err := a.Observe(ctx, gameID)
	require.NoError(t, err)

	action, err := a.Decide(state)
	require.NoError(t, err)
	require.Equal(t, driver.KindCommit, action.Kind)

	_, err = a.Execute(ctx, state, action)
	require.NoError(t, err)

	secret, err := commitment.NewSecret()
	require.NoError(t, err)

	_, err = l.Session(bob).Poker().CommitHand(ctx, gameID, commitment.CommitValue(50, secret))
	require.NoError(t, err)

	state, err = a.Observe(ctx, gameID)
	require.NoError(t, err)
	require.Equal(t, arena.PokerBetting1.String(), state.Phase())

	action, err = a.Decide(state)
	require.NoError(t, err)
	assert.Equal(t, driver.KindBet, action.Kind)

	require.NoError(t, secrets.Delete(vault.Key{
		Wallet:   alice,
		Variant:  arena.VariantPoker,
		Contract: l.Deployment().Poker,
		GameID:   gameID,
		Scope:    vault.RoundScope(0),
	}))

	_, err = a.Decide(state)
	require.ErrorIs(t, err, arena.ErrSaltLost)
}

func TestRunnerTimesOut(t *testing.T) {
	t.Parallel()

	l := simledger.New()
	_, gameID := rpsGame(t, l, 3)

	ring, err := progress.NewRing(16)
	require.NoError(t, err)

	a := driver.NewRPS(driver.Config{Wallet: alice, Secrets: openVault(t)}, l.Session(alice).RPS(), strategy.Random{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = runner(ring).Run(ctx, a, gameID)
	require.ErrorIs(t, err, arena.ErrTimeout)
	assert.Equal(t, arena.CodeTimeout, arena.CodeOf(err))

	var events []string
	for _, e := range ring.Snapshot() {
		events = append(events, e.Event)
	}

	assert.Equal(t, []string{progress.EventPhase, progress.EventAction, progress.EventWaiting}, events)
}

func TestClaimTimeoutWhenOpponentStalls(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	l := simledger.New()
	l.SetClock(c.Now)
	l.SetPhaseTimeout(time.Minute)

	matchID, gameID := rpsGame(t, l, 3)

	a := driver.NewRPS(driver.Config{
		Wallet:        alice,
		Secrets:       openVault(t),
		ClaimTimeouts: true,
		Now:           c.Now,
	}, l.Session(alice).RPS(), strategy.Fixed{Move: arena.MoveRock}, nil)

	state, err := a.Observe(ctx, gameID)
	require.NoError(t, err)

	action, err := a.Decide(state)
	require.NoError(t, err)

	_, err = a.Execute(ctx, state, action)
	require.NoError(t, err)

	state, err = a.Observe(ctx, gameID)
	require.NoError(t, err)

	action, err = a.Decide(state)
	require.NoError(t, err)
	assert.Equal(t, driver.KindWait, action.Kind)

	c.Advance(2 * time.Minute)

	action, err = a.Decide(state)
	require.NoError(t, err)
	assert.Equal(t, driver.KindClaimTimeout, action.Kind)

	final, err := runner(nil).Run(ctx, a, gameID)
	require.NoError(t, err)
	assert.True(t, final.Settled())

	winner, err := l.Session(bob).Escrow().GetWinner(ctx, matchID)
	require.NoError(t, err)
	assert.Equal(t, alice, winner)
}

func TestPokerPlaysToSettlement(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := simledger.New()
	matchID := activeMatch(t, l, l.Deployment().Poker, 1000)

	gameID, _, err := l.Session(bob).Poker().CreateGame(ctx, matchID, arena.CreateParams{})
	require.NoError(t, err)

	tight, err := strategy.ParsePoker("tight")
	require.NoError(t, err)
	passive, err := strategy.ParsePoker("passive")
	require.NoError(t, err)

	wager := big.NewInt(1000)
	a := driver.NewPoker(driver.Config{Wallet: alice, Secrets: openVault(t)}, l.Session(alice).Poker(), tight, wager)
	b := driver.NewPoker(driver.Config{Wallet: bob, Secrets: openVault(t)}, l.Session(bob).Poker(), passive, wager)

	play(t, gameID, a, b)

	game, err := l.Session(alice).Poker().GetGame(ctx, gameID)
	require.NoError(t, err)
	assert.True(t, game.Settled)
	assert.Equal(t, uint64(arena.PokerRounds), game.CurrentRound)

	m, err := l.Session(alice).Escrow().GetMatch(ctx, matchID)
	require.NoError(t, err)
	assert.Equal(t, arena.MatchSettled, m.Status)
}

func TestAuctionPlaysToSettlement(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := simledger.New()
	matchID := activeMatch(t, l, l.Deployment().Auction, 1000)

	gameID, _, err := l.Session(alice).Auction().CreateGame(ctx, matchID, arena.CreateParams{})
	require.NoError(t, err)

	aggressive, err := strategy.ParseAuction("aggressive")
	require.NoError(t, err)
	conservative, err := strategy.ParseAuction("conservative")
	require.NoError(t, err)

	a := driver.NewAuction(driver.Config{Wallet: alice, Secrets: openVault(t)}, l.Session(alice).Auction(), aggressive)
	b := driver.NewAuction(driver.Config{Wallet: bob, Secrets: openVault(t)}, l.Session(bob).Auction(), conservative)

	play(t, gameID, a, b)

	game, err := l.Session(alice).Auction().GetGame(ctx, gameID)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(620), game.Bids[0])
	assert.Equal(t, big.NewInt(300), game.Bids[1])

	winner, err := l.Session(alice).Escrow().GetWinner(ctx, matchID)
	require.NoError(t, err)
	assert.Equal(t, alice, winner)
}
