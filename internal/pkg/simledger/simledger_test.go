package simledger_test

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
	"github.com/vreid/arena/internal/pkg/retry"
	"github.com/vreid/arena/internal/pkg/simledger"
)

var (
	alice = ethcommon.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = ethcommon.HexToAddress("0x0000000000000000000000000000000000000b0b")
	eve   = ethcommon.HexToAddress("0x0000000000000000000000000000000000000e7e")
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

func activeMatch(t *testing.T, l *simledger.Ledger, contract ethcommon.Address, wager int64) uint64 {
	t.Helper()

	matchID := l.CreateMatch(alice, bob, big.NewInt(wager), contract)

	_, err := l.Session(bob).Escrow().AcceptMatch(context.Background(), matchID, big.NewInt(wager))
	require.NoError(t, err)

	return matchID
}

func secret(t *testing.T) commitment.Secret {
	t.Helper()

	s, err := commitment.NewSecret()
	require.NoError(t, err)

	return s
}

func TestAcceptMatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := simledger.New()
	matchID := l.CreateMatch(alice, bob, big.NewInt(100), l.Deployment().RPS)

	_, err := l.Session(alice).Escrow().AcceptMatch(ctx, matchID, big.NewInt(100))
	require.ErrorIs(t, err, arena.ErrRejected)

	_, err = l.Session(bob).Escrow().AcceptMatch(ctx, matchID, big.NewInt(99))
	require.ErrorIs(t, err, arena.ErrRejected)

	receipt, err := l.Session(bob).Escrow().AcceptMatch(ctx, matchID, big.NewInt(100))
	require.NoError(t, err)
	assert.NotEqual(t, ethcommon.Hash{}, receipt.TxHash)

	m, err := l.Session(eve).Escrow().GetMatch(ctx, matchID)
	require.NoError(t, err)
	assert.Equal(t, arena.MatchActive, m.Status)
	assert.Equal(t, alice, m.Player1)
}

func TestCreateGameRejectsDuplicates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := simledger.New()
	matchID := activeMatch(t, l, l.Deployment().RPS, 100)

	_, _, err := l.Session(eve).RPS().CreateGame(ctx, matchID, arena.CreateParams{Rounds: 3})
	require.ErrorIs(t, err, arena.ErrRejected)

	_, _, err = l.Session(alice).Poker().CreateGame(ctx, matchID, arena.CreateParams{})
	require.ErrorIs(t, err, arena.ErrRejected)

	gameID, _, err := l.Session(alice).RPS().CreateGame(ctx, matchID, arena.CreateParams{Rounds: 3})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), gameID)

	_, _, err = l.Session(bob).RPS().CreateGame(ctx, matchID, arena.CreateParams{Rounds: 3})
	require.ErrorIs(t, err, arena.ErrRejected)
	assert.Contains(t, err.Error(), "game already exists")

	found, ok, err := l.Session(bob).RPS().FindGameCreated(ctx, matchID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, gameID, found)
}

func TestRPSRounds(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := simledger.New()
	matchID := activeMatch(t, l, l.Deployment().RPS, 100)
	a, b := l.Session(alice).RPS(), l.Session(bob).RPS()

	gameID, _, err := a.CreateGame(ctx, matchID, arena.CreateParams{Rounds: 1})
	require.NoError(t, err)

	sa, sb := secret(t), secret(t)

	_, err = a.Commit(ctx, gameID, commitment.CommitValue(uint8(arena.MoveRock), sa))
	require.NoError(t, err)

	_, err = a.Reveal(ctx, gameID, arena.MoveRock, sa)
	require.ErrorIs(t, err, arena.ErrRejected, "reveal before both commits")

	_, err = b.Commit(ctx, gameID, commitment.CommitValue(uint8(arena.MoveScissors), sb))
	require.NoError(t, err)

	_, err = a.Reveal(ctx, gameID, arena.MovePaper, sa)
	require.ErrorIs(t, err, arena.ErrRejected, "reveal of another move")

	_, err = a.Reveal(ctx, gameID, arena.MoveRock, sa)
	require.NoError(t, err)

	_, err = b.Reveal(ctx, gameID, arena.MoveScissors, sb)
	require.NoError(t, err)

	g, err := a.GetGame(ctx, gameID)
	require.NoError(t, err)
	assert.True(t, g.Settled)
	assert.Equal(t, [2]uint64{1, 0}, g.Scores)

	round, err := b.GetRound(ctx, gameID, 0)
	require.NoError(t, err)
	assert.True(t, round.Complete())

	winner, err := l.Session(eve).Escrow().GetWinner(ctx, matchID)
	require.NoError(t, err)
	assert.Equal(t, alice, winner)
}

func TestPokerBettingAndShowdown(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := simledger.New()
	matchID := activeMatch(t, l, l.Deployment().Poker, 1000)
	a, b := l.Session(alice).Poker(), l.Session(bob).Poker()

	gameID, _, err := a.CreateGame(ctx, matchID, arena.CreateParams{})
	require.NoError(t, err)

	sa, sb := secret(t), secret(t)

	_, err = a.CommitHand(ctx, gameID, commitment.CommitValue(80, sa))
	require.NoError(t, err)
	_, err = b.CommitHand(ctx, gameID, commitment.CommitValue(40, sb))
	require.NoError(t, err)

	g, err := a.GetGame(ctx, gameID)
	require.NoError(t, err)
	assert.Equal(t, arena.PokerBetting1, g.Phase)
	assert.Equal(t, alice, g.CurrentTurn)

	_, err = b.TakeAction(ctx, gameID, arena.PokerCheck, nil)
	require.ErrorIs(t, err, arena.ErrRejected, "out of turn")

	_, err = a.TakeAction(ctx, gameID, arena.PokerBet, big.NewInt(200))
	require.NoError(t, err)

	_, err = b.TakeAction(ctx, gameID, arena.PokerRaise, big.NewInt(300))
	require.NoError(t, err)

	g, err = a.GetGame(ctx, gameID)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(100), g.CurrentBet)
	assert.Equal(t, big.NewInt(500), g.Pot)

	_, err = a.TakeAction(ctx, gameID, arena.PokerCall, big.NewInt(100))
	require.NoError(t, err)

	_, err = a.TakeAction(ctx, gameID, arena.PokerCheck, nil)
	require.NoError(t, err)
	_, err = b.TakeAction(ctx, gameID, arena.PokerCheck, nil)
	require.NoError(t, err)

	g, err = a.GetGame(ctx, gameID)
	require.NoError(t, err)
	assert.Equal(t, arena.PokerShowdown, g.Phase)

	_, err = a.RevealHand(ctx, gameID, 80, sa)
	require.NoError(t, err)
	_, err = b.RevealHand(ctx, gameID, 40, sb)
	require.NoError(t, err)

	g, err = a.GetGame(ctx, gameID)
	require.NoError(t, err)
	assert.Equal(t, arena.PokerCommit, g.Phase)
	assert.Equal(t, uint64(1), g.CurrentRound)
	assert.Equal(t, [2]uint64{1, 0}, g.Scores)
	assert.Equal(t, [2]uint64{70, 110}, g.Budgets)

	round, err := a.GetRound(ctx, gameID, 0)
	require.NoError(t, err)
	assert.Equal(t, [2]uint8{80, 40}, round.HandValues)
	assert.Equal(t, big.NewInt(300), round.ExtraBets[0])
}

func TestPokerRevealOverBudget(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := simledger.New()
	matchID := activeMatch(t, l, l.Deployment().Poker, 1000)
	a, b := l.Session(alice).Poker(), l.Session(bob).Poker()

	gameID, _, err := a.CreateGame(ctx, matchID, arena.CreateParams{})
	require.NoError(t, err)

	hands := []uint8{100, 40, 20}

	for round, hand := range hands {
		sa, sb := secret(t), secret(t)

		_, err = a.CommitHand(ctx, gameID, commitment.CommitValue(hand, sa))
		require.NoError(t, err)
		_, err = b.CommitHand(ctx, gameID, commitment.CommitValue(1, sb))
		require.NoError(t, err)

		first, second := a, b
		if round%2 == 1 {
			first, second = b, a
		}

		for range 2 {
			_, err = first.TakeAction(ctx, gameID, arena.PokerCheck, nil)
			require.NoError(t, err)
			_, err = second.TakeAction(ctx, gameID, arena.PokerCheck, nil)
			require.NoError(t, err)
		}

		_, err = b.RevealHand(ctx, gameID, 1, sb)
		require.NoError(t, err)

		_, err = a.RevealHand(ctx, gameID, hand, sa)
		if round < 2 {
			require.NoError(t, err)

			continue
		}

		require.ErrorIs(t, err, arena.ErrRejected, "150 - 100 - 40 leaves 10")
	}
}

func TestAuctionDraw(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := simledger.New()
	matchID := activeMatch(t, l, l.Deployment().Auction, 100)
	a, b := l.Session(alice).Auction(), l.Session(bob).Auction()

	gameID, _, err := b.CreateGame(ctx, matchID, arena.CreateParams{})
	require.NoError(t, err)

	sa, sb := secret(t), secret(t)
	bid := big.NewInt(50)

	ha, err := commitment.CommitAmount(bid, sa)
	require.NoError(t, err)
	hb, err := commitment.CommitAmount(bid, sb)
	require.NoError(t, err)

	_, err = a.CommitBid(ctx, gameID, ha)
	require.NoError(t, err)
	_, err = b.CommitBid(ctx, gameID, hb)
	require.NoError(t, err)

	_, err = a.RevealBid(ctx, gameID, big.NewInt(101), sa)
	require.ErrorIs(t, err, arena.ErrRejected, "bid above the prize")

	_, err = a.RevealBid(ctx, gameID, bid, sa)
	require.NoError(t, err)
	_, err = b.RevealBid(ctx, gameID, bid, sb)
	require.NoError(t, err)

	m, err := l.Session(eve).Escrow().GetMatch(ctx, matchID)
	require.NoError(t, err)
	assert.Equal(t, arena.MatchSettled, m.Status)

	winner, err := l.Session(eve).Escrow().GetWinner(ctx, matchID)
	require.NoError(t, err)
	assert.Equal(t, ethcommon.Address{}, winner)
}

func TestClaimTimeout(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	l := simledger.New()
	l.SetClock(c.Now)
	l.SetPhaseTimeout(time.Minute)

	matchID := activeMatch(t, l, l.Deployment().RPS, 100)
	a := l.Session(alice).RPS()

	gameID, _, err := a.CreateGame(ctx, matchID, arena.CreateParams{Rounds: 3})
	require.NoError(t, err)

	_, err = a.ClaimTimeout(ctx, gameID)
	require.ErrorIs(t, err, arena.ErrRejected, "deadline not reached")

	c.Advance(2 * time.Minute)

	_, err = a.ClaimTimeout(ctx, gameID)
	require.ErrorIs(t, err, arena.ErrRejected, "nothing committed yet")

	_, err = a.Commit(ctx, gameID, commitment.CommitValue(1, secret(t)))
	require.NoError(t, err)

	_, err = l.Session(bob).RPS().ClaimTimeout(ctx, gameID)
	require.ErrorIs(t, err, arena.ErrRejected, "only the player who acted may claim")

	_, err = a.ClaimTimeout(ctx, gameID)
	require.NoError(t, err)

	winner, err := l.Session(eve).Escrow().GetWinner(ctx, matchID)
	require.NoError(t, err)
	assert.Equal(t, alice, winner)
}

func TestIndexAndFaults(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := simledger.New()
	l.DisableIndex()

	_, _, err := l.Session(alice).Auction().FindGameCreated(ctx, 0)
	require.ErrorIs(t, err, arena.ErrIndexUnsupported)

	l.FailReads(2)

	escrow := l.Session(alice).Escrow()

	_, err = escrow.NextMatchID(ctx)
	require.Error(t, err)
	assert.True(t, retry.IsTransient(err))

	next, err := retry.Do(ctx, retry.Policy{MaxAttempts: 3}, "next match id", escrow.NextMatchID)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), next)
	assert.Equal(t, 3, l.Reads())
}
