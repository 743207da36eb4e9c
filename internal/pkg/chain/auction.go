package chain

import (
	"context"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/vreid/arena/internal/pkg/arena"
)

type AuctionGame struct {
	Game
}

var _ arena.AuctionContract = (*AuctionGame)(nil)

func NewAuctionGame(client *Client, submitter *Submitter, address ethcommon.Address, fromBlock uint64) *AuctionGame {
	return &AuctionGame{Game: newGame(client, submitter, address, AuctionGameABI, fromBlock)}
}

func (g *AuctionGame) Variant() arena.Variant {
	return arena.VariantAuction
}

type auctionGame struct {
	EscrowMatchId *big.Int //nolint:revive
	Player1       ethcommon.Address
	Player2       ethcommon.Address
	Prize         *big.Int
	P1Commit      [32]byte
	P2Commit      [32]byte
	P1Bid         *big.Int
	P2Bid         *big.Int
	P1Committed   bool
	P2Committed   bool
	P1Revealed    bool
	P2Revealed    bool
	Phase         uint8
	PhaseDeadline *big.Int
	Settled       bool
}

func (g *AuctionGame) GetGame(ctx context.Context, gameID uint64) (*arena.AuctionGame, error) {
	var out auctionGame

	err := g.read(ctx, &out, "getGame", u256(gameID))
	if err != nil {
		return nil, err
	}

	return &arena.AuctionGame{
		ID:            gameID,
		EscrowMatchID: toUint64(out.EscrowMatchId),
		Players:       [2]ethcommon.Address{out.Player1, out.Player2},
		Prize:         out.Prize,
		Commits:       [2]ethcommon.Hash{out.P1Commit, out.P2Commit},
		Bids:          [2]*big.Int{out.P1Bid, out.P2Bid},
		Committed:     [2]bool{out.P1Committed, out.P2Committed},
		Revealed:      [2]bool{out.P1Revealed, out.P2Revealed},
		Phase:         arena.AuctionPhase(out.Phase),
		PhaseDeadline: unixTime(out.PhaseDeadline),
		Settled:       out.Settled,
	}, nil
}

func (g *AuctionGame) CreateGame(ctx context.Context, matchID uint64, _ arena.CreateParams) (uint64, *arena.Receipt, error) {
	return g.create(ctx, u256(matchID))
}

func (g *AuctionGame) CommitBid(ctx context.Context, gameID uint64, hash ethcommon.Hash) (*arena.Receipt, error) {
	return g.transact(ctx, nil, "commitBid", u256(gameID), [32]byte(hash))
}

func (g *AuctionGame) RevealBid(ctx context.Context, gameID uint64, bid *big.Int, salt [32]byte) (*arena.Receipt, error) {
	return g.transact(ctx, nil, "revealBid", u256(gameID), bid, salt)
}
