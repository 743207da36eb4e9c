package simledger

import (
	"context"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/vreid/arena/internal/pkg/arena"
)

type rpsGame struct {
	arena.RPSGame

	rounds []arena.RPSRound
}

func (g *rpsGame) current() *arena.RPSRound {
	return &g.rounds[g.CurrentRound]
}

func (g *rpsGame) snapshot() *arena.RPSGame {
	s := g.RPSGame

	return &s
}

type rpsView struct{ gameIndex }

var _ arena.RPSContract = (*rpsView)(nil)

// game must be called with l.mu held.
func (v *rpsView) game(gameID uint64) (*rpsGame, error) {
	if gameID >= uint64(len(v.l.rps)) {
		return nil, reject("unknown game %d", gameID)
	}

	return v.l.rps[gameID], nil
}

// playable returns the open game and the caller's seat.
func (v *rpsView) playable(gameID uint64) (*rpsGame, int, error) {
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

func (v *rpsView) GetGame(_ context.Context, gameID uint64) (*arena.RPSGame, error) {
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

func (v *rpsView) GetRound(_ context.Context, gameID, round uint64) (*arena.RPSRound, error) {
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

	if round >= uint64(len(g.rounds)) {
		return &arena.RPSRound{}, nil
	}

	r := g.rounds[round]

	return &r, nil
}

func (v *rpsView) CreateGame(_ context.Context, matchID uint64, params arena.CreateParams) (uint64, *arena.Receipt, error) {
	v.l.mu.Lock()
	defer v.l.mu.Unlock()

	m, err := v.l.activeMatch(v.from, matchID, v.Address())
	if err != nil {
		return 0, nil, err
	}

	if v.gameExists(matchID) {
		return 0, nil, reject("game already exists for match %d", matchID)
	}

	if params.Rounds == 0 || params.Rounds%2 == 0 {
		return 0, nil, reject("rounds must be odd")
	}

	id := uint64(len(v.l.rps))
	v.l.rps = append(v.l.rps, &rpsGame{
		RPSGame: arena.RPSGame{
			ID:            id,
			EscrowMatchID: matchID,
			Players:       [2]ethcommon.Address{m.Player1, m.Player2},
			TotalRounds:   params.Rounds,
			Phase:         arena.RPSCommit,
			PhaseDeadline: v.l.deadline(),
		},
		rounds: make([]arena.RPSRound, params.Rounds),
	})

	return id, v.l.receipt(), nil
}

func (v *rpsView) Commit(_ context.Context, gameID uint64, hash ethcommon.Hash) (*arena.Receipt, error) {
	v.l.mu.Lock()
	defer v.l.mu.Unlock()

	g, seat, err := v.playable(gameID)
	if err != nil {
		return nil, err
	}

	r := g.current()

	switch {
	case g.Phase != arena.RPSCommit:
		return nil, reject("not in commit phase")
	case r.Committed(seat):
		return nil, reject("already committed")
	case hash == (ethcommon.Hash{}):
		return nil, reject("empty commitment")
	}

	r.Commits[seat] = hash

	if r.Committed(1 - seat) {
		g.Phase = arena.RPSReveal
		g.PhaseDeadline = v.l.deadline()
	}

	return v.l.receipt(), nil
}

func (v *rpsView) Reveal(_ context.Context, gameID uint64, move arena.Move, salt [32]byte) (*arena.Receipt, error) {
	v.l.mu.Lock()
	defer v.l.mu.Unlock()

	g, seat, err := v.playable(gameID)
	if err != nil {
		return nil, err
	}

	r := g.current()

	switch {
	case g.Phase != arena.RPSReveal:
		return nil, reject("not in reveal phase")
	case r.Revealed[seat]:
		return nil, reject("already revealed")
	case !move.Valid():
		return nil, reject("invalid move %d", move)
	case !opensValue(r.Commits[seat], uint8(move), salt):
		return nil, reject("reveal does not match commitment")
	}

	r.Moves[seat] = move
	r.Revealed[seat] = true

	if !r.Revealed[1-seat] {
		return v.l.receipt(), nil
	}

	switch {
	case r.Moves[0].Beats(r.Moves[1]):
		g.Scores[0]++
	case r.Moves[1].Beats(r.Moves[0]):
		g.Scores[1]++
	}

	g.CurrentRound++

	if g.CurrentRound == g.TotalRounds {
		v.finish(g, leader(g.Players, g.Scores))
	} else {
		g.Phase = arena.RPSCommit
		g.PhaseDeadline = v.l.deadline()
	}

	return v.l.receipt(), nil
}

func (v *rpsView) ClaimTimeout(_ context.Context, gameID uint64) (*arena.Receipt, error) {
	v.l.mu.Lock()
	defer v.l.mu.Unlock()

	g, seat, err := v.playable(gameID)
	if err != nil {
		return nil, err
	}

	if !v.l.expired(g.PhaseDeadline) {
		return nil, reject("phase deadline not reached")
	}

	r := g.current()

	var acted, opponentActed bool

	if g.Phase == arena.RPSCommit {
		acted, opponentActed = r.Committed(seat), r.Committed(1-seat)
	} else {
		acted, opponentActed = r.Revealed[seat], r.Revealed[1-seat]
	}

	if !acted || opponentActed {
		return nil, reject("no timeout to claim")
	}

	v.finish(g, v.from)

	return v.l.receipt(), nil
}

// finish must be called with l.mu held.
func (v *rpsView) finish(g *rpsGame, winner ethcommon.Address) {
	g.Phase = arena.RPSComplete
	g.Settled = true
	g.PhaseDeadline = time.Time{}
	v.l.settle(g.EscrowMatchID, winner)
}

// leader returns the player with the higher score, or the zero address on a tie.
func leader(players [2]ethcommon.Address, scores [2]uint64) ethcommon.Address {
	switch {
	case scores[0] > scores[1]:
		return players[0]
	case scores[1] > scores[0]:
		return players[1]
	default:
		return ethcommon.Address{}
	}
}
