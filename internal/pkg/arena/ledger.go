package arena

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Escrow is the read/write surface of the escrow contract consumed by the agent.
type Escrow interface {
	Address() common.Address
	GetMatch(ctx context.Context, matchID uint64) (*EscrowMatch, error)
	GetWinner(ctx context.Context, matchID uint64) (common.Address, error)
	NextMatchID(ctx context.Context) (uint64, error)
	AcceptMatch(ctx context.Context, matchID uint64, wager *big.Int) (*Receipt, error)
}

// GameIndex is what the locator needs to resolve a match to its game instance.
type GameIndex interface {
	Address() common.Address
	// FindGameCreated queries the indexed creation log. Backends that cannot serve
	// the query return an error wrapping ErrIndexUnsupported.
	FindGameCreated(ctx context.Context, matchID uint64) (uint64, bool, error)
	NextGameID(ctx context.Context) (uint64, error)
	// GameMatchIDs returns the escrow match id of each given game, in order.
	GameMatchIDs(ctx context.Context, gameIDs []uint64) ([]uint64, error)
}

// GameContract is the part shared by every game variant.
type GameContract interface {
	GameIndex
	Variant() Variant
	CreateGame(ctx context.Context, matchID uint64, params CreateParams) (uint64, *Receipt, error)
	ClaimTimeout(ctx context.Context, gameID uint64) (*Receipt, error)
}

type RPSContract interface {
	GameContract
	GetGame(ctx context.Context, gameID uint64) (*RPSGame, error)
	GetRound(ctx context.Context, gameID, round uint64) (*RPSRound, error)
	Commit(ctx context.Context, gameID uint64, hash common.Hash) (*Receipt, error)
	Reveal(ctx context.Context, gameID uint64, move Move, salt [32]byte) (*Receipt, error)
}

type PokerContract interface {
	GameContract
	GetGame(ctx context.Context, gameID uint64) (*PokerGame, error)
	GetRound(ctx context.Context, gameID, round uint64) (*PokerRound, error)
	CommitHand(ctx context.Context, gameID uint64, hash common.Hash) (*Receipt, error)
	TakeAction(ctx context.Context, gameID uint64, action PokerAction, value *big.Int) (*Receipt, error)
	RevealHand(ctx context.Context, gameID uint64, value uint8, salt [32]byte) (*Receipt, error)
}

type AuctionContract interface {
	GameContract
	GetGame(ctx context.Context, gameID uint64) (*AuctionGame, error)
	CommitBid(ctx context.Context, gameID uint64, hash common.Hash) (*Receipt, error)
	RevealBid(ctx context.Context, gameID uint64, bid *big.Int, salt [32]byte) (*Receipt, error)
}
