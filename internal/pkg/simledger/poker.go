package simledger

import (
	"context"
	"math/big"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/vreid/arena/internal/pkg/arena"
)

type pokerGame struct {
	arena.PokerGame

	rounds []arena.PokerRound
	// acted counts the betting actions taken in the current phase.
	acted int
}

func (g *pokerGame) current() *arena.PokerRound {
	return &g.rounds[g.CurrentRound]
}

func (g *pokerGame) snapshot() *arena.PokerGame {
	s := g.PokerGame
	s.CurrentBet = new(big.Int).Set(g.CurrentBet)
	s.Pot = new(big.Int).Set(g.Pot)

	return &s
}

// starter opens the betting: player1 on even rounds, player2 on odd ones.
func (g *pokerGame) starter() ethcommon.Address {
	return g.Players[g.CurrentRound%2]
}

func (g *pokerGame) other(addr ethcommon.Address) ethcommon.Address {
	if addr == g.Players[0] {
		return g.Players[1]
	}

	return g.Players[0]
}

type pokerView struct{ gameIndex }

var _ arena.PokerContract = (*pokerView)(nil)

// game must be called with l.mu held.
func (v *pokerView) game(gameID uint64) (*pokerGame, error) {
	if gameID >= uint64(len(v.l.poker)) {
		return nil, reject("unknown game %d", gameID)
	}

	return v.l.poker[gameID], nil
}

func (v *pokerView) playable(gameID uint64) (*pokerGame, int, error) {
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

func (v *pokerView) GetGame(_ context.Context, gameID uint64) (*arena.PokerGame, error) {
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

func (v *pokerView) GetRound(_ context.Context, gameID, round uint64) (*arena.PokerRound, error) {
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
		return &arena.PokerRound{ExtraBets: [2]*big.Int{new(big.Int), new(big.Int)}}, nil
	}

	r := g.rounds[round]
	r.ExtraBets = [2]*big.Int{new(big.Int).Set(r.ExtraBets[0]), new(big.Int).Set(r.ExtraBets[1])}

	return &r, nil
}

func (v *pokerView) CreateGame(_ context.Context, matchID uint64, _ arena.CreateParams) (uint64, *arena.Receipt, error) {
	v.l.mu.Lock()
	defer v.l.mu.Unlock()

	m, err := v.l.activeMatch(v.from, matchID, v.Address())
	if err != nil {
		return 0, nil, err
	}

	if v.gameExists(matchID) {
		return 0, nil, reject("game already exists for match %d", matchID)
	}

	rounds := make([]arena.PokerRound, arena.PokerRounds)
	for i := range rounds {
		rounds[i].ExtraBets = [2]*big.Int{new(big.Int), new(big.Int)}
	}

	id := uint64(len(v.l.poker))
	v.l.poker = append(v.l.poker, &pokerGame{
		PokerGame: arena.PokerGame{
			ID:            id,
			EscrowMatchID: matchID,
			Players:       [2]ethcommon.Address{m.Player1, m.Player2},
			TotalRounds:   arena.PokerRounds,
			Budgets:       [2]uint64{arena.PokerBudget, arena.PokerBudget},
			Phase:         arena.PokerCommit,
			CurrentBet:    new(big.Int),
			Pot:           new(big.Int),
			PhaseDeadline: v.l.deadline(),
		},
		rounds: rounds,
	})

	return id, v.l.receipt(), nil
}

func (v *pokerView) CommitHand(_ context.Context, gameID uint64, hash ethcommon.Hash) (*arena.Receipt, error) {
	v.l.mu.Lock()
	defer v.l.mu.Unlock()

	g, seat, err := v.playable(gameID)
	if err != nil {
		return nil, err
	}

	r := g.current()

	switch {
	case g.Phase != arena.PokerCommit:
		return nil, reject("not in commit phase")
	case r.Committed[seat]:
		return nil, reject("already committed")
	case hash == (ethcommon.Hash{}):
		return nil, reject("empty commitment")
	}

	r.Commits[seat] = hash
	r.Committed[seat] = true

	if r.Committed[1-seat] {
		v.openBetting(g, arena.PokerBetting1)
	}

	return v.l.receipt(), nil
}

// openBetting must be called with l.mu held.
func (v *pokerView) openBetting(g *pokerGame, phase arena.PokerPhase) {
	g.Phase = phase
	g.CurrentTurn = g.starter()
	g.CurrentBet = new(big.Int)
	g.acted = 0
	g.PhaseDeadline = v.l.deadline()
}

func (v *pokerView) TakeAction(_ context.Context, gameID uint64, action arena.PokerAction, value *big.Int) (*arena.Receipt, error) {
	v.l.mu.Lock()
	defer v.l.mu.Unlock()

	g, seat, err := v.playable(gameID)
	if err != nil {
		return nil, err
	}

	if !g.Phase.Betting() {
		return nil, reject("not in a betting phase")
	}

	if g.CurrentTurn != v.from {
		return nil, reject("not your turn")
	}

	if value == nil {
		value = new(big.Int)
	}

	open := g.CurrentBet.Sign() == 0

	switch action {
	case arena.PokerCheck:
		if !open || value.Sign() != 0 {
			return nil, reject("cannot check facing a bet")
		}

		if g.acted > 0 {
			v.closeBetting(g)

			return v.l.receipt(), nil
		}
	case arena.PokerBet:
		if !open || value.Sign() <= 0 {
			return nil, reject("invalid bet")
		}

		g.CurrentBet = new(big.Int).Set(value)
	case arena.PokerRaise:
		if open || value.Cmp(g.CurrentBet) <= 0 {
			return nil, reject("raise must exceed the current bet")
		}

		g.CurrentBet = new(big.Int).Sub(value, g.CurrentBet)
	case arena.PokerCall:
		if open || value.Cmp(g.CurrentBet) != 0 {
			return nil, reject("call must match the current bet")
		}

		v.stake(g, seat, value)
		v.closeBetting(g)

		return v.l.receipt(), nil
	case arena.PokerFold:
		if value.Sign() != 0 {
			return nil, reject("fold carries no value")
		}

		g.Scores[1-seat]++
		v.nextRound(g)

		return v.l.receipt(), nil
	default:
		return nil, reject("unknown action %d", action)
	}

	v.stake(g, seat, value)
	g.acted++
	g.CurrentTurn = g.other(v.from)
	g.PhaseDeadline = v.l.deadline()

	return v.l.receipt(), nil
}

func (v *pokerView) stake(g *pokerGame, seat int, value *big.Int) {
	r := g.current()
	r.ExtraBets[seat] = new(big.Int).Add(r.ExtraBets[seat], value)
	g.Pot = new(big.Int).Add(g.Pot, value)
}

// closeBetting must be called with l.mu held.
func (v *pokerView) closeBetting(g *pokerGame) {
	if g.Phase == arena.PokerBetting1 {
		v.openBetting(g, arena.PokerBetting2)

		return
	}

	g.Phase = arena.PokerShowdown
	g.CurrentTurn = ethcommon.Address{}
	g.CurrentBet = new(big.Int)
	g.PhaseDeadline = v.l.deadline()
}

func (v *pokerView) RevealHand(_ context.Context, gameID uint64, value uint8, salt [32]byte) (*arena.Receipt, error) {
	v.l.mu.Lock()
	defer v.l.mu.Unlock()

	g, seat, err := v.playable(gameID)
	if err != nil {
		return nil, err
	}

	r := g.current()

	switch {
	case g.Phase != arena.PokerShowdown:
		return nil, reject("not in showdown")
	case r.Revealed[seat]:
		return nil, reject("already revealed")
	case value < 1 || value > arena.PokerMaxHandValue:
		return nil, reject("hand value %d out of range", value)
	case uint64(value) > g.Budgets[seat]:
		return nil, reject("hand value %d exceeds budget %d", value, g.Budgets[seat])
	case !opensValue(r.Commits[seat], value, salt):
		return nil, reject("reveal does not match commitment")
	}

	r.HandValues[seat] = value
	r.Revealed[seat] = true
	g.Budgets[seat] -= uint64(value)

	if !r.Revealed[1-seat] {
		return v.l.receipt(), nil
	}

	switch {
	case r.HandValues[0] > r.HandValues[1]:
		g.Scores[0]++
	case r.HandValues[1] > r.HandValues[0]:
		g.Scores[1]++
	}

	v.nextRound(g)

	return v.l.receipt(), nil
}

// nextRound must be called with l.mu held.
func (v *pokerView) nextRound(g *pokerGame) {
	g.CurrentRound++
	g.CurrentTurn = ethcommon.Address{}
	g.CurrentBet = new(big.Int)
	g.acted = 0

	if g.CurrentRound == g.TotalRounds {
		v.finish(g, leader(g.Players, g.Scores))

		return
	}

	g.Phase = arena.PokerCommit
	g.PhaseDeadline = v.l.deadline()
}

func (v *pokerView) ClaimTimeout(_ context.Context, gameID uint64) (*arena.Receipt, error) {
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

	var claimable bool

	switch {
	case g.Phase == arena.PokerCommit:
		claimable = r.Committed[seat] && !r.Committed[1-seat]
	case g.Phase.Betting():
		claimable = g.CurrentTurn == g.other(v.from)
	case g.Phase == arena.PokerShowdown:
		claimable = r.Revealed[seat] && !r.Revealed[1-seat]
	}

	if !claimable {
		return nil, reject("no timeout to claim")
	}

	v.finish(g, v.from)

	return v.l.receipt(), nil
}

func (v *pokerView) finish(g *pokerGame, winner ethcommon.Address) {
	g.Phase = arena.PokerComplete
	g.Settled = true
	g.PhaseDeadline = time.Time{}
	v.l.settle(g.EscrowMatchID, winner)
}
