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

type PokerState struct {
	Game    *arena.PokerGame
	Current *arena.PokerRound
	Seat    int
}

func (s *PokerState) GameID() uint64      { return s.Game.ID }
func (s *PokerState) Settled() bool       { return s.Game.Settled || s.Game.Phase == arena.PokerComplete }
func (s *PokerState) Phase() string       { return s.Game.Phase.String() }
func (s *PokerState) Round() uint64       { return s.Game.CurrentRound }
func (s *PokerState) Deadline() time.Time { return s.Game.PhaseDeadline }

type Poker struct {
	base

	game     arena.PokerContract
	strategy strategy.Poker
	wager    *big.Int
}

// NewPoker sizes bets relative to wager, the escrowed stake of the match.
func NewPoker(cfg Config, game arena.PokerContract, s strategy.Poker, wager *big.Int) *Poker {
	return &Poker{
		base:     newBase(cfg, arena.VariantPoker, game.Address()),
		game:     game,
		strategy: s,
		wager:    wager,
	}
}

func (d *Poker) Variant() arena.Variant { return arena.VariantPoker }

func (d *Poker) Observe(ctx context.Context, gameID uint64) (State, error) {
	g, err := d.game.GetGame(ctx, gameID)
	if err != nil {
		//nolint:wrapcheck
		return nil, err
	}

	seat, ok := g.Seat(d.cfg.Wallet)
	if !ok {
		return nil, fmt.Errorf("%w: game %d", arena.ErrNotParticipant, gameID)
	}

	state := &PokerState{Game: g, Seat: seat}

	if state.Settled() || g.CurrentRound >= g.TotalRounds {
		return state, nil
	}

	state.Current, err = d.game.GetRound(ctx, gameID, g.CurrentRound)
	if err != nil {
		//nolint:wrapcheck
		return nil, err
	}

	return state, nil
}

func (d *Poker) Decide(s State) (Action, error) {
	st, ok := s.(*PokerState)
	if !ok {
		return Action{}, fmt.Errorf("unexpected state %T", s)
	}

	g := st.Game
	if st.Settled() {
		return Action{Kind: KindDone, Round: g.CurrentRound, Reason: "game settled"}, nil
	}

	if st.Current == nil {
		return wait(g.CurrentRound, "settlement"), nil
	}

	round := g.CurrentRound
	seat, other := st.Seat, 1-st.Seat
	cur := st.Current
	k := d.key(g.ID, vault.RoundScope(round))

	switch {
	case g.Phase == arena.PokerCommit:
		if !cur.Committed[seat] {
			return Action{Kind: KindCommit, Round: round, Key: k}, nil
		}

		if d.claimable(g.PhaseDeadline, true, cur.Committed[other]) {
			return Action{Kind: KindClaimTimeout, Round: round, Reason: "opponent did not commit"}, nil
		}

		return wait(round, "opponent commit"), nil
	case g.Phase.Betting():
		if g.CurrentTurn != d.cfg.Wallet {
			if d.claimable(g.PhaseDeadline, true, false) {
				return Action{Kind: KindClaimTimeout, Round: round, Reason: "opponent did not act"}, nil
			}

			return wait(round, "opponent action"), nil
		}

		entry, err := d.revealEntry(k, cur.Commits[seat], valueHash)
		if err != nil {
			return Action{}, err
		}

		hand, err := uint8Value(entry.Value)
		if err != nil {
			return Action{}, err
		}

		bet, amount := d.strategy.Act(hand, strategy.PokerView{
			Wager:      d.wager,
			CurrentBet: g.CurrentBet,
			Pot:        g.Pot,
			Phase:      g.Phase,
		})

		return Action{Kind: KindBet, Round: round, Bet: bet, Amount: amount}, nil
	case g.Phase == arena.PokerShowdown:
		if !cur.Revealed[seat] {
			entry, err := d.revealEntry(k, cur.Commits[seat], valueHash)
			if err != nil {
				return Action{}, err
			}

			return Action{Kind: KindReveal, Round: round, Key: k, Entry: &entry}, nil
		}

		if d.claimable(g.PhaseDeadline, true, cur.Revealed[other]) {
			return Action{Kind: KindClaimTimeout, Round: round, Reason: "opponent did not reveal"}, nil
		}

		return wait(round, "opponent reveal"), nil
	default:
		return wait(round, "settlement"), nil
	}
}

func (d *Poker) Execute(ctx context.Context, s State, a Action) (*arena.Receipt, error) {
	st, ok := s.(*PokerState)
	if !ok {
		return nil, fmt.Errorf("unexpected state %T", s)
	}

	g := st.Game

	switch a.Kind {
	case KindCommit:
		entry, err := d.commitEntry(a.Key, func() *big.Int {
			hand := d.strategy.Hand(g.CurrentRound, g.TotalRounds, g.Budgets[st.Seat])

			return big.NewInt(int64(hand))
		})
		if err != nil {
			return nil, err
		}

		hash, err := valueHash(entry)
		if err != nil {
			return nil, err
		}

		//nolint:wrapcheck
		return d.game.CommitHand(ctx, g.ID, hash)
	case KindBet:
		//nolint:wrapcheck
		return d.game.TakeAction(ctx, g.ID, a.Bet, a.Amount)
	case KindReveal:
		hand, err := uint8Value(a.Entry.Value)
		if err != nil {
			return nil, err
		}

		receipt, err := d.game.RevealHand(ctx, g.ID, hand, a.Entry.Secret)
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
		return nil, fmt.Errorf("poker cannot execute %s", a.Kind)
	}
}

func (d *Poker) Finish(_ context.Context, s State) error {
	return d.prune(s.GameID())
}
