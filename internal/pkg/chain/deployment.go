package chain

import (
	"errors"
	"fmt"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/samber/do/v2"
	"github.com/vreid/arena/internal/pkg/arena"
)

var ErrNoEscrow = errors.New("escrow address not configured")

// Deployment names the deployed contracts. A zero game address leaves that variant
// unsupported.
type Deployment struct {
	Escrow    ethcommon.Address
	RPS       ethcommon.Address
	Poker     ethcommon.Address
	Auction   ethcommon.Address
	FromBlock uint64
}

// Contracts are the bindings of one deployment. Games is keyed by contract address.
type Contracts struct {
	Escrow *Escrow
	Games  map[ethcommon.Address]arena.GameContract
}

func NewContractsService(i do.Injector) (*Contracts, error) {
	client := do.MustInvoke[*Client](i)
	submitter := do.MustInvoke[*Submitter](i)
	deployment := do.MustInvoke[Deployment](i)

	return Bind(client, submitter, deployment)
}

// Bind builds the bindings of d. A nil submitter gives read-only bindings.
func Bind(client *Client, submitter *Submitter, d Deployment) (*Contracts, error) {
	if d.Escrow == (ethcommon.Address{}) {
		return nil, ErrNoEscrow
	}

	games := map[ethcommon.Address]arena.GameContract{}

	add := func(addr ethcommon.Address, game arena.GameContract) error {
		if addr == (ethcommon.Address{}) {
			return nil
		}

		if _, ok := games[addr]; ok {
			return fmt.Errorf("game address %s configured twice", addr.Hex())
		}

		games[addr] = game

		return nil
	}

	for _, err := range []error{
		add(d.RPS, NewRPSGame(client, submitter, d.RPS, d.FromBlock)),
		add(d.Poker, NewPokerGame(client, submitter, d.Poker, d.FromBlock)),
		add(d.Auction, NewAuctionGame(client, submitter, d.Auction, d.FromBlock)),
	} {
		if err != nil {
			return nil, err
		}
	}

	return &Contracts{
		Escrow: NewEscrow(client, submitter, d.Escrow),
		Games:  games,
	}, nil
}
