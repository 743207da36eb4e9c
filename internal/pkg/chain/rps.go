package chain

import (
	"context"
	"math/big"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/vreid/arena/internal/pkg/arena"
)

// Game is the part of a game binding every variant shares.
type Game struct {
	contract

	fromBlock uint64
}

func newGame(client *Client, submitter *Submitter, address ethcommon.Address, definition string, fromBlock uint64) Game {
	return Game{
		contract:  newContract(client, submitter, address, definition),
		fromBlock: fromBlock,
	}
}

func (g *Game) FindGameCreated(ctx context.Context, matchID uint64) (uint64, bool, error) {
	return g.findGameCreated(ctx, g.fromBlock, matchID)
}

func (g *Game) NextGameID(ctx context.Context) (uint64, error) {
	return g.readUint64(ctx, "nextGameId")
}

func (g *Game) GameMatchIDs(ctx context.Context, gameIDs []uint64) ([]uint64, error) {
	return g.gameMatchIDs(ctx, gameIDs)
}

func (g *Game) ClaimTimeout(ctx context.Context, gameID uint64) (*arena.Receipt, error) {
	return g.transact(ctx, nil, "claimTimeout", u256(gameID))
}

func (g *Game) create(ctx context.Context, args ...any) (uint64, *arena.Receipt, error) {
	receipt, err := g.transact(ctx, nil, "createGame", args...)
	if err != nil {
		return 0, nil, err
	}

	gameID, err := g.createdGameID(receipt)
	if err != nil {
		return 0, receipt, err
	}

	return gameID, receipt, nil
}

func unixTime(b *big.Int) time.Time {
	return time.Unix(int64(toUint64(b)), 0).UTC()
}

type RPSGame struct {
	Game
}

var _ arena.RPSContract = (*RPSGame)(nil)

func NewRPSGame(client *Client, submitter *Submitter, address ethcommon.Address, fromBlock uint64) *RPSGame {
	return &RPSGame{Game: newGame(client, submitter, address, RPSGameABI, fromBlock)}
}

func (g *RPSGame) Variant() arena.Variant {
	return arena.VariantRPS
}

type rpsGame struct {
	EscrowMatchId *big.Int //nolint:revive
	Player1       ethcommon.Address
	Player2       ethcommon.Address
	TotalRounds   *big.Int
	CurrentRound  *big.Int
	P1Score       *big.Int
	P2Score       *big.Int
	Phase         uint8
	PhaseDeadline *big.Int
	Settled       bool
}

type rpsRound struct {
	P1Commit   [32]byte
	P2Commit   [32]byte
	P1Move     uint8
	P2Move     uint8
	P1Revealed bool
	P2Revealed bool
}

func (g *RPSGame) GetGame(ctx context.Context, gameID uint64) (*arena.RPSGame, error) {
	var out rpsGame

	err := g.read(ctx, &out, "getGame", u256(gameID))
	if err != nil {
		return nil, err
	}

	return &arena.RPSGame{
		ID:            gameID,
		EscrowMatchID: toUint64(out.EscrowMatchId),
		Players:       [2]ethcommon.Address{out.Player1, out.Player2},
		TotalRounds:   toUint64(out.TotalRounds),
		CurrentRound:  toUint64(out.CurrentRound),
		Scores:        [2]uint64{toUint64(out.P1Score), toUint64(out.P2Score)},
		Phase:         arena.RPSPhase(out.Phase),
		PhaseDeadline: unixTime(out.PhaseDeadline),
		Settled:       out.Settled,
	}, nil
}

func (g *RPSGame) GetRound(ctx context.Context, gameID, round uint64) (*arena.RPSRound, error) {
	var out rpsRound

	err := g.read(ctx, &out, "getRound", u256(gameID), u256(round))
	if err != nil {
		return nil, err
	}

	return &arena.RPSRound{
		Commits:  [2]ethcommon.Hash{out.P1Commit, out.P2Commit},
		Moves:    [2]arena.Move{arena.Move(out.P1Move), arena.Move(out.P2Move)},
		Revealed: [2]bool{out.P1Revealed, out.P2Revealed},
	}, nil
}

func (g *RPSGame) CreateGame(ctx context.Context, matchID uint64, params arena.CreateParams) (uint64, *arena.Receipt, error) {
	return g.create(ctx, u256(matchID), u256(params.Rounds))
}

func (g *RPSGame) Commit(ctx context.Context, gameID uint64, hash ethcommon.Hash) (*arena.Receipt, error) {
	return g.transact(ctx, nil, "commit", u256(gameID), [32]byte(hash))
}

func (g *RPSGame) Reveal(ctx context.Context, gameID uint64, move arena.Move, salt [32]byte) (*arena.Receipt, error) {
	return g.transact(ctx, nil, "reveal", u256(gameID), uint8(move), salt)
}
