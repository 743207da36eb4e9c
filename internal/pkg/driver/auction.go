package driver

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/vreid/arena/internal/pkg/arena"
	"github.com/vreid/arena/internal/pkg/strategy"
	"github.com/vreid/arena/internal/pkg/vault"
)

type AuctionState struct {
	Game *arena.AuctionGame
	Seat int
}

func (s *AuctionState) GameID() uint64      { return s.Game.ID }
func (s *AuctionState) Settled() bool       { return s.Game.Settled || s.Game.Phase == arena.AuctionComplete }
func (s *AuctionState) Phase() string       { return s.Game.Phase.String() }
func (s *AuctionState) Round() uint64       { return 0 }
func (s *AuctionState) Deadline() time.Time { return s.Game.PhaseDeadline }

type Auction struct {
	base

	game     arena.AuctionContract
	strategy strategy.Auction
}

func NewAuction(cfg Config, game arena.AuctionContract, s strategy.Auction) *Auction {
	return &Auction{
		base:     newBase(cfg, arena.VariantAuction, game.Address()),
		game:     game,
		strategy: s,
	}
}

func (d *Auction) Variant() arena.Variant { return arena.VariantAuction }

func (d *Auction) Observe(ctx context.Context, gameID uint64) (State, error) {
	g, err := d.game.GetGame(ctx, gameID)
	if err != nil {
		//nolint:wrapcheck
		return nil, err
	}

	seat, ok := g.Seat(d.cfg.Wallet)
	if !ok {
		return nil, fmt.Errorf("%w: game %d", arena.ErrNotParticipant, gameID)
	}

	return &AuctionState{Game: g, Seat: seat}, nil
}

func (d *Auction) Decide(s State) (Action, error) {
	st, ok := s.(*AuctionState)
	if !ok {
		return Action{}, fmt.Errorf("unexpected state %T", s)
	}

	g := st.Game
	if st.Settled() {
		return Action{Kind: KindDone, Reason: "game settled"}, nil
	}

	seat, other := st.Seat, 1-st.Seat
	k := d.key(g.ID, vault.BidScope)

	switch g.Phase {
	case arena.AuctionCommit:
		if !g.Committed[seat] {
			return Action{Kind: KindCommit, Key: k}, nil
		}

		if d.claimable(g.PhaseDeadline, true, g.Committed[other]) {
			return Action{Kind: KindClaimTimeout, Reason: "opponent did not bid"}, nil
		}

		return wait(0, "opponent bid"), nil
	case arena.AuctionReveal:
		if !g.Revealed[seat] {
			entry, err := d.revealEntry(k, g.Commits[seat], amountHash)
			if err != nil {
				return Action{}, err
			}

			return Action{Kind: KindReveal, Key: k, Entry: &entry}, nil
		}

		if d.claimable(g.PhaseDeadline, true, g.Revealed[other]) {
			return Action{Kind: KindClaimTimeout, Reason: "opponent did not reveal"}, nil
		}

		return wait(0, "opponent reveal"), nil
	default:
		return wait(0, "settlement"), nil
	}
}

func (d *Auction) Execute(ctx context.Context, s State, a Action) (*arena.Receipt, error) {
	st, ok := s.(*AuctionState)
	if !ok {
		return nil, fmt.Errorf("unexpected state %T", s)
	}

	g := st.Game

	switch a.Kind {
	case KindCommit:
		entry, err := d.commitEntry(a.Key, func() *big.Int {
			return d.strategy.Bid(g.Prize)
		})
		if err != nil {
			return nil, err
		}

		hash, err := amountHash(entry)
		if err != nil {
			return nil, err
		}

		//nolint:wrapcheck
		return d.game.CommitBid(ctx, g.ID, hash)
	case KindReveal:
		receipt, err := d.game.RevealBid(ctx, g.ID, a.Entry.Value, a.Entry.Secret)
		if err != nil {
			//nolint:wrapcheck
			return nil, err
		}

		d.forget(a.Key)

		return receipt, nil
	case KindClaimTimeout:
		//nolint:wrapcheck
		return d.game.ClaimTimeout(ctx, g.ID)
	default:
		return nil, fmt.Errorf("auction cannot execute %s", a.Kind)
	}
}

func (d *Auction) Finish(_ context.Context, s State) error {
	return d.prune(s.GameID())
}
