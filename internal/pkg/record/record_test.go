package record_test

import (
	"math/big"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vreid/arena/internal/pkg/arena"
	"github.com/vreid/arena/internal/pkg/common"
	"github.com/vreid/arena/internal/pkg/record"
	"github.com/vreid/arena/internal/pkg/strategy"
)

var (
	self  = ethcommon.HexToAddress("0x00000000000000000000000000000000000a11ce")
	rival = ethcommon.HexToAddress("0x0000000000000000000000000000000000000b0b")
	other = ethcommon.HexToAddress("0x0000000000000000000000000000000000000c0c")
)

func openBook(t *testing.T) *record.Book {
	t.Helper()

	db, err := common.OpenDatabase(t.TempDir(), "wallet")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Shutdown() })

	return record.New(db.DB)
}

func outcome(matchID uint64, opponent ethcommon.Address, result arena.Result) *arena.MatchOutcome {
	return &arena.MatchOutcome{
		MatchID:  matchID,
		Variant:  arena.VariantRPS,
		Result:   result,
		Wager:    big.NewInt(100),
		Player:   self,
		Opponent: opponent,
	}
}

func TestExpectedScore(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.5, record.ExpectedScore(1500.0, 1500.0))
}

func TestUpdateRatings(t *testing.T) {
	t.Parallel()

	a := record.Scorecard{Rating: 1500.0, Games: 100}
	b := record.Scorecard{Rating: 1500.0, Games: 100}

	won, lost := record.UpdateRatings(a, b, 1)
	assert.Equal(t, 1516.0, won.Rating)
	assert.Equal(t, 1484.0, lost.Rating)
	assert.Equal(t, int64(101), won.Games)

	drawA, drawB := record.UpdateRatings(a, b, 0.5)
	assert.Equal(t, 1500.0, drawA.Rating)
	assert.Equal(t, 1500.0, drawB.Rating)
}

func TestKFactor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 128.0, record.KFactor(0))
	assert.Equal(t, 64.0, record.KFactor(21))
	assert.Equal(t, 32.0, record.KFactor(51))
}

func TestRecordOutcome(t *testing.T) {
	t.Parallel()

	book := openBook(t)

	card, err := book.Record(outcome(1, rival, arena.ResultWin))
	require.NoError(t, err)
	assert.Equal(t, 1436.0, card.Rating)
	assert.Equal(t, int64(1), card.Wins)
	assert.Equal(t, uint64(1), card.LastMatch)

	again, err := book.Record(outcome(1, rival, arena.ResultWin))
	require.NoError(t, err)
	assert.Equal(t, card.Games, again.Games, "a match is only counted once")

	_, err = book.Record(outcome(2, rival, arena.ResultDraw))
	require.NoError(t, err)
	_, err = book.Record(outcome(3, other, arena.ResultLoss))
	require.NoError(t, err)

	mine, err := book.Get(self)
	require.NoError(t, err)
	assert.Equal(t, int64(3), mine.Games)
	assert.Equal(t, int64(1), mine.Wins)
	assert.Equal(t, int64(1), mine.Draws)
	assert.Equal(t, int64(1), mine.Losses)

	opponents, err := book.Opponents(self)
	require.NoError(t, err)
	require.Len(t, opponents, 2)
	assert.Equal(t, rival, opponents[0].Address)
	assert.Equal(t, int64(2), opponents[0].Games)
	assert.Equal(t, other, opponents[1].Address)
	assert.Greater(t, opponents[1].Rating, record.DefaultRating)
}

func TestRecordNeedsPlayer(t *testing.T) {
	t.Parallel()

	_, err := openBook(t).Record(&arena.MatchOutcome{MatchID: 1})
	require.ErrorIs(t, err, record.ErrNoPlayer)
}

func TestGetUnknown(t *testing.T) {
	t.Parallel()

	card, err := openBook(t).Get(rival)
	require.NoError(t, err)
	assert.Equal(t, record.DefaultRating, card.Rating)
	assert.Equal(t, int64(0), card.Games)
}

func TestRecordKeepsRoundsPerOpponent(t *testing.T) {
	t.Parallel()

	book := openBook(t)
	played := []strategy.Round{
		{Ours: arena.MoveRock, Theirs: arena.MovePaper},
		{Ours: arena.MoveScissors, Theirs: arena.MovePaper},
	}

	_, err := book.Record(outcome(1, rival, arena.ResultWin), played...)
	require.NoError(t, err)

	_, err = book.Record(outcome(1, rival, arena.ResultWin), played...)
	require.NoError(t, err)

	_, err = book.Record(outcome(2, rival, arena.ResultLoss), strategy.Round{Ours: arena.MovePaper, Theirs: arena.MoveScissors})
	require.NoError(t, err)

	rounds, err := book.Rounds(rival)
	require.NoError(t, err)
	require.Len(t, rounds, 3, "a replayed match adds no rounds")
	assert.Equal(t, played, rounds[:2])
	assert.Equal(t, arena.MoveScissors, rounds[2].Theirs)

	none, err := book.Rounds(other)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRecordCapsRounds(t *testing.T) {
	t.Parallel()

	book := openBook(t)

	batch := make([]strategy.Round, 200)
	for i := range batch {
		batch[i] = strategy.Round{Ours: arena.MoveRock, Theirs: arena.MoveRock}
	}

	for matchID := range uint64(3) {
		_, err := book.Record(outcome(matchID+1, rival, arena.ResultDraw), batch...)
		require.NoError(t, err)
	}

	_, err := book.Record(outcome(4, rival, arena.ResultDraw), strategy.Round{Ours: arena.MovePaper, Theirs: arena.MoveScissors})
	require.NoError(t, err)

	rounds, err := book.Rounds(rival)
	require.NoError(t, err)
	require.Len(t, rounds, record.MaxRounds)
	assert.Equal(t, arena.MoveScissors, rounds[len(rounds)-1].Theirs, "the newest round is kept")
}
