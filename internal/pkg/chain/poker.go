package chain

import (
	"context"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/vreid/arena/internal/pkg/arena"
)

type PokerGame struct {
	Game
}

var _ arena.PokerContract = (*PokerGame)(nil)

func NewPokerGame(client *Client, submitter *Submitter, address ethcommon.Address, fromBlock uint64) *PokerGame {
	return &PokerGame{Game: newGame(client, submitter, address, PokerGameABI, fromBlock)}
}

func (g *PokerGame) Variant() arena.Variant {
	return arena.VariantPoker
}

type pokerGame struct {
	EscrowMatchId *big.Int //nolint:revive
	Player1       ethcommon.Address
	Player2       ethcommon.Address
	TotalRounds   *big.Int
	CurrentRound  *big.Int
	P1Score       *big.Int
	P2Score       *big.Int
	P1Budget      *big.Int
	P2Budget      *big.Int
	Phase         uint8
	CurrentTurn   ethcommon.Address
	CurrentBet    *big.Int
	Pot           *big.Int
	PhaseDeadline *big.Int
	Settled       bool
}

type pokerRound struct {
	P1Commit    [32]byte
	P2Commit    [32]byte
	P1HandValue uint8
	P2HandValue uint8
	P1Committed bool
	P2Committed bool
	P1Revealed  bool
	P2Revealed  bool
	P1ExtraBets *big.Int
	P2ExtraBets *big.Int
}

func (g *PokerGame) GetGame(ctx context.Context, gameID uint64) (*arena.PokerGame, error) {
	var out pokerGame

	err := g.read(ctx, &out, "getGame", u256(gameID))
	if err != nil {
		return nil, err
	}

	return &arena.PokerGame{
		ID:            gameID,
		EscrowMatchID: toUint64(out.EscrowMatchId),
		Players:       [2]ethcommon.Address{out.Player1, out.Player2},
		TotalRounds:   toUint64(out.TotalRounds),
		CurrentRound:  toUint64(out.CurrentRound),
		Scores:        [2]uint64{toUint64(out.P1Score), toUint64(out.P2Score)},
		Budgets:       [2]uint64{toUint64(out.P1Budget), toUint64(out.P2Budget)},
		Phase:         arena.PokerPhase(out.Phase),
		CurrentTurn:   out.CurrentTurn,
		CurrentBet:    out.CurrentBet,
		Pot:           out.Pot,
		PhaseDeadline: unixTime(out.PhaseDeadline),
		Settled:       out.Settled,
	}, nil
}

func (g *PokerGame) GetRound(ctx context.Context, gameID, round uint64) (*arena.PokerRound, error) {
	var out pokerRound

	err := g.read(ctx, &out, "getRound", u256(gameID), u256(round))
	if err != nil {
		return nil, err
	}

	return &arena.PokerRound{
		Commits:    [2]ethcommon.Hash{out.P1Commit, out.P2Commit},
		HandValues: [2]uint8{out.P1HandValue, out.P2HandValue},
		Committed:  [2]bool{out.P1Committed, out.P2Committed},
		Revealed:   [2]bool{out.P1Revealed, out.P2Revealed},
		ExtraBets:  [2]*big.Int{out.P1ExtraBets, out.P2ExtraBets},
	}, nil
}

func (g *PokerGame) CreateGame(ctx context.Context, matchID uint64, _ arena.CreateParams) (uint64, *arena.Receipt, error) {
	return g.create(ctx, u256(matchID))
}

func (g *PokerGame) CommitHand(ctx context.Context, gameID uint64, hash ethcommon.Hash) (*arena.Receipt, error) {
	return g.transact(ctx, nil, "commitHand", u256(gameID), [32]byte(hash))
}

// TakeAction sends a betting action; value is the amount attached to bet, raise and
// call, nil otherwise.
func (g *PokerGame) TakeAction(ctx context.Context, gameID uint64, action arena.PokerAction, value *big.Int) (*arena.Receipt, error) {
	return g.transact(ctx, value, "takeAction", u256(gameID), uint8(action))
}

func (g *PokerGame) RevealHand(ctx context.Context, gameID uint64, value uint8, salt [32]byte) (*arena.Receipt, error) {
	return g.transact(ctx, nil, "revealHand", u256(gameID), value, salt)
}
