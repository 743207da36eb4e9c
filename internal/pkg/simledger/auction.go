package simledger

import (
	"context"
	"math/big"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/vreid/arena/internal/pkg/arena"
)

type auctionGame struct {
	arena.AuctionGame
}

func (g *auctionGame) snapshot() *arena.AuctionGame {
	s := g.AuctionGame
	s.Prize = new(big.Int).Set(g.Prize)

	for i, b := range g.Bids {
		if b != nil {
			s.Bids[i] = new(big.Int).Set(b)
		}
	}

	return &s
}

type auctionView struct{ gameIndex }

var _ arena.AuctionContract = (*auctionView)(nil)

// game must be called with l.mu held.
func (v *auctionView) game(gameID uint64) (*auctionGame, error) {
	if gameID >= uint64(len(v.l.auction)) {
		return nil, reject("unknown game %d", gameID)
	}

	return v.l.auction[gameID], nil
}

func (v *auctionView) playable(gameID uint64) (*auctionGame, int, error) {
	g, err := v.game(gameID)
	if err != nil {
		return nil, 0, err
	}

	if g.Settled {
		return nil, 0, reject("game %d is settled", gameID)
	}

	seat, ok := g.Seat(v.from)
	if !ok {
		return nil, 0, reject("not a player of game %d", gameID)
	}

	return g, seat, nil
}

func (v *auctionView) GetGame(_ context.Context, gameID uint64) (*arena.AuctionGame, error) {
	v.l.mu.Lock()
	defer v.l.mu.Unlock()

	err := v.l.read()
	if err != nil {
		return nil, err
	}

	g, err := v.game(gameID)
	if err != nil {
		return nil, err
	}

	return g.snapshot(), nil
}

// CreateGame auctions a prize equal to the match wager.
func (v *auctionView) CreateGame(_ context.Context, matchID uint64, _ arena.CreateParams) (uint64, *arena.Receipt, error) {
	v.l.mu.Lock()
	defer v.l.mu.Unlock()

	m, err := v.l.activeMatch(v.from, matchID, v.Address())
	if err != nil {
		return 0, nil, err
	}

	if v.gameExists(matchID) {
		return 0, nil, reject("game already exists for match %d", matchID)
	}

	id := uint64(len(v.l.auction))
	v.l.auction = append(v.l.auction, &auctionGame{AuctionGame: arena.AuctionGame{
		ID:            id,
		EscrowMatchID: matchID,
		Players:       [2]ethcommon.Address{m.Player1, m.Player2},
		Prize:         new(big.Int).Set(m.Wager),
		Phase:         arena.AuctionCommit,
		PhaseDeadline: v.l.deadline(),
	}})

	return id, v.l.receipt(), nil
}

func (v *auctionView) CommitBid(_ context.Context, gameID uint64, hash ethcommon.Hash) (*arena.Receipt, error) {
	v.l.mu.Lock()
	defer v.l.mu.Unlock()

	g, seat, err := v.playable(gameID)
	if err != nil {
		return nil, err
	}

	switch {
	case g.Phase != arena.AuctionCommit:
		return nil, reject("not in commit phase")
	case g.Committed[seat]:
		return nil, reject("already committed")
	case hash == (ethcommon.Hash{}):
		return nil, reject("empty commitment")
	}

	g.Commits[seat] = hash
	g.Committed[seat] = true

	if g.Committed[1-seat] {
		g.Phase = arena.AuctionReveal
		g.PhaseDeadline = v.l.deadline()
	}

	return v.l.receipt(), nil
}

func (v *auctionView) RevealBid(_ context.Context, gameID uint64, bid *big.Int, salt [32]byte) (*arena.Receipt, error) {
	v.l.mu.Lock()
	defer v.l.mu.Unlock()

	g, seat, err := v.playable(gameID)
	if err != nil {
		return nil, err
	}

	switch {
	case g.Phase != arena.AuctionReveal:
		return nil, reject("not in reveal phase")
	case g.Revealed[seat]:
		return nil, reject("already revealed")
	case bid == nil || bid.Sign() <= 0 || bid.Cmp(g.Prize) > 0:
		return nil, reject("bid must be between 1 and the prize")
	case !opensAmount(g.Commits[seat], bid, salt):
		return nil, reject("reveal does not match commitment")
	}

	g.Bids[seat] = new(big.Int).Set(bid)
	g.Revealed[seat] = true

	if !g.Revealed[1-seat] {
		return v.l.receipt(), nil
	}

	var winner ethcommon.Address

	switch g.Bids[0].Cmp(g.Bids[1]) {
	case 1:
		winner = g.Players[0]
	case -1:
		winner = g.Players[1]
	}

	v.finish(g, winner)

	return v.l.receipt(), nil
}

func (v *auctionView) ClaimTimeout(_ context.Context, gameID uint64) (*arena.Receipt, error) {
	v.l.mu.Lock()
	defer v.l.mu.Unlock()

	g, seat, err := v.playable(gameID)
	if err != nil {
		return nil, err
	}

	if !v.l.expired(g.PhaseDeadline) {
		return nil, reject("phase deadline not reached")
	}

	var acted, opponentActed bool

	if g.Phase == arena.AuctionCommit {
		acted, opponentActed = g.Committed[seat], g.Committed[1-seat]
	} else {
		acted, opponentActed = g.Revealed[seat], g.Revealed[1-seat]
	}

	if !acted || opponentActed {
		return nil, reject("no timeout to claim")
	}

	v.finish(g, v.from)

	return v.l.receipt(), nil
}

func (v *auctionView) finish(g *auctionGame, winner ethcommon.Address) {
	g.Phase = arena.AuctionComplete
	g.Settled = true
	g.PhaseDeadline = time.Time{}
	v.l.settle(g.EscrowMatchID, winner)
}
