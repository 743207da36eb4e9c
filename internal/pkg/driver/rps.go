package driver

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/vreid/arena/internal/pkg/arena"
	"github.com/vreid/arena/internal/pkg/strategy"
	"github.com/vreid/arena/internal/pkg/vault"
)

// RoundCache keeps completed RPS rounds, which never change again.
type RoundCache struct {
	mu     sync.RWMutex
	rounds map[roundKey]arena.RPSRound
}

type roundKey struct {
	contract ethcommon.Address
	gameID   uint64
	round    uint64
}

func NewRoundCache() *RoundCache {
	return &RoundCache{rounds: map[roundKey]arena.RPSRound{}}
}

func (c *RoundCache) get(k roundKey) (arena.RPSRound, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	r, ok := c.rounds[k]

	return r, ok
}

func (c *RoundCache) put(k roundKey, r arena.RPSRound) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rounds[k] = r
}

func (c *RoundCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.rounds)
}

type RPSState struct {
	Game    *arena.RPSGame
	Current *arena.RPSRound
	Seat    int
	// History holds the completed rounds before the current one.
	History []strategy.Round
}

func (s *RPSState) GameID() uint64      { return s.Game.ID }
func (s *RPSState) Settled() bool       { return s.Game.Settled || s.Game.Phase == arena.RPSComplete }
func (s *RPSState) Phase() string       { return s.Game.Phase.String() }
func (s *RPSState) Round() uint64       { return s.Game.CurrentRound }
func (s *RPSState) Deadline() time.Time { return s.Game.PhaseDeadline }

type RPS struct {
	base

	game     arena.RPSContract
	strategy strategy.RPS
	rounds   *RoundCache
	prior    []strategy.Round
}

func NewRPS(cfg Config, game arena.RPSContract, s strategy.RPS, rounds *RoundCache) *RPS {
	if rounds == nil {
		rounds = NewRoundCache()
	}

	return &RPS{
		base:     newBase(cfg, arena.VariantRPS, game.Address()),
		game:     game,
		strategy: s,
		rounds:   rounds,
	}
}

// WithPrior gives the strategy rounds from earlier games against the same opponent.
func (d *RPS) WithPrior(prior []strategy.Round) *RPS {
	d.prior = prior

	return d
}

func (d *RPS) Variant() arena.Variant { return arena.VariantRPS }

func (d *RPS) Observe(ctx context.Context, gameID uint64) (State, error) {
	g, err := d.game.GetGame(ctx, gameID)
	if err != nil {
		//nolint:wrapcheck
		return nil, err
	}

	seat, ok := g.Seat(d.cfg.Wallet)
	if !ok {
		return nil, fmt.Errorf("%w: game %d", arena.ErrNotParticipant, gameID)
	}

	state := &RPSState{Game: g, Seat: seat}

	if state.Settled() || g.CurrentRound >= g.TotalRounds {
		return state, nil
	}

	for r := range g.CurrentRound {
		round, err := d.round(ctx, gameID, r)
		if err != nil {
			return nil, err
		}

		if round.Complete() {
			state.History = append(state.History, strategy.Round{
				Ours:   round.Moves[seat],
				Theirs: round.Moves[1-seat],
			})
		}
	}

	state.Current, err = d.game.GetRound(ctx, gameID, g.CurrentRound)
	if err != nil {
		//nolint:wrapcheck
		return nil, err
	}

	return state, nil
}

// Rounds reads the completed rounds of gameID from our side, oldest first.
func (d *RPS) Rounds(ctx context.Context, gameID uint64) ([]strategy.Round, error) {
	g, err := d.game.GetGame(ctx, gameID)
	if err != nil {
		//nolint:wrapcheck
		return nil, err
	}

	seat, ok := g.Seat(d.cfg.Wallet)
	if !ok {
		return nil, fmt.Errorf("%w: game %d", arena.ErrNotParticipant, gameID)
	}

	var rounds []strategy.Round

	for r := uint64(0); r < g.TotalRounds && r <= g.CurrentRound; r++ {
		round, err := d.round(ctx, gameID, r)
		if err != nil {
			return nil, err
		}

		if round.Complete() {
			rounds = append(rounds, strategy.Round{Ours: round.Moves[seat], Theirs: round.Moves[1-seat]})
		}
	}

	return rounds, nil
}

func (d *RPS) round(ctx context.Context, gameID, round uint64) (arena.RPSRound, error) {
	k := roundKey{contract: d.contract, gameID: gameID, round: round}
	if r, ok := d.rounds.get(k); ok {
		return r, nil
	}

	r, err := d.game.GetRound(ctx, gameID, round)
	if err != nil {
		//nolint:wrapcheck
		return arena.RPSRound{}, err
	}

	if r.Complete() {
		d.rounds.put(k, *r)
	}

	return *r, nil
}

func (d *RPS) Decide(s State) (Action, error) {
	st, ok := s.(*RPSState)
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
	k := d.key(g.ID, vault.RoundScope(round))

	switch g.Phase {
	case arena.RPSCommit:
		if !st.Current.Committed(seat) {
			return Action{Kind: KindCommit, Round: round, Key: k}, nil
		}

		if d.claimable(g.PhaseDeadline, true, st.Current.Committed(other)) {
			return Action{Kind: KindClaimTimeout, Round: round, Reason: "opponent did not commit"}, nil
		}

		return wait(round, "opponent commit"), nil
	case arena.RPSReveal:
		if !st.Current.Revealed[seat] {
			entry, err := d.revealEntry(k, st.Current.Commits[seat], valueHash)
			if err != nil {
				return Action{}, err
			}

			return Action{Kind: KindReveal, Round: round, Key: k, Entry: &entry}, nil
		}

		if d.claimable(g.PhaseDeadline, true, st.Current.Revealed[other]) {
			return Action{Kind: KindClaimTimeout, Round: round, Reason: "opponent did not reveal"}, nil
		}

		return wait(round, "opponent reveal"), nil
	default:
		return wait(round, "settlement"), nil
	}
}

func (d *RPS) Execute(ctx context.Context, s State, a Action) (*arena.Receipt, error) {
	st, ok := s.(*RPSState)
	if !ok {
		return nil, fmt.Errorf("unexpected state %T", s)
	}

	gameID := st.Game.ID

	switch a.Kind {
	case KindCommit:
		entry, err := d.commitEntry(a.Key, func() *big.Int {
			return big.NewInt(int64(d.strategy.Next(strategy.History{Prior: d.prior, Game: st.History})))
		})
		if err != nil {
			return nil, err
		}

		hash, err := valueHash(entry)
		if err != nil {
			return nil, err
		}

		//nolint:wrapcheck
		return d.game.Commit(ctx, gameID, hash)
	case KindReveal:
		move, err := uint8Value(a.Entry.Value)
		if err != nil {
			return nil, err
		}

		receipt, err := d.game.Reveal(ctx, gameID, arena.Move(move), a.Entry.Secret)
		if err != nil {
			//nolint:wrapcheck
			return nil, err
		}

		d.forget(a.Key)

		return receipt, nil
	case KindClaimTimeout:
		//nolint:wrapcheck
		return d.game.ClaimTimeout(ctx, gameID)
	default:
		return nil, fmt.Errorf("rps cannot execute %s", a.Kind)
	}
}

func (d *RPS) Finish(_ context.Context, s State) error {
	return d.prune(s.GameID())
}
