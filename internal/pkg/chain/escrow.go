package chain

import (
	"context"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/vreid/arena/internal/pkg/arena"
)

type Escrow struct {
	contract
}

var _ arena.Escrow = (*Escrow)(nil)

func NewEscrow(client *Client, submitter *Submitter, address ethcommon.Address) *Escrow {
	return &Escrow{contract: newContract(client, submitter, address, EscrowABI)}
}

type escrowMatch struct {
	Player1      ethcommon.Address
	Player2      ethcommon.Address
	Wager        *big.Int
	GameContract ethcommon.Address
	Status       uint8
	CreatedAt    *big.Int
}

func (e *Escrow) GetMatch(ctx context.Context, matchID uint64) (*arena.EscrowMatch, error) {
	var out escrowMatch

	err := e.read(ctx, &out, "getMatch", u256(matchID))
	if err != nil {
		return nil, err
	}

	return &arena.EscrowMatch{
		ID:           matchID,
		Player1:      out.Player1,
		Player2:      out.Player2,
		Wager:        out.Wager,
		GameContract: out.GameContract,
		Status:       arena.MatchStatus(out.Status),
		CreatedAt:    unixTime(out.CreatedAt),
	}, nil
}

func (e *Escrow) GetWinner(ctx context.Context, matchID uint64) (ethcommon.Address, error) {
	var winner ethcommon.Address

	err := e.read(ctx, &winner, "winners", u256(matchID))
	if err != nil {
		return ethcommon.Address{}, err
	}

	return winner, nil
}

func (e *Escrow) NextMatchID(ctx context.Context) (uint64, error) {
	return e.readUint64(ctx, "nextMatchId")
}

func (e *Escrow) AcceptMatch(ctx context.Context, matchID uint64, wager *big.Int) (*arena.Receipt, error) {
	return e.transact(ctx, wager, "acceptMatch", u256(matchID))
}
