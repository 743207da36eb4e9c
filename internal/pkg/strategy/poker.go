package strategy

import (
	"fmt"
	"math/big"
	"math/rand/v2"
	"strings"

	"github.com/vreid/arena/internal/pkg/arena"
)

// PokerView is the public betting state a decision is made from.
type PokerView struct {
	Wager      *big.Int
	CurrentBet *big.Int
	Pot        *big.Int
	Phase      arena.PokerPhase
}

type Poker interface {
	Name() string
	// Hand picks the rating committed for a round from the remaining budget.
	Hand(round, totalRounds, budget uint64) uint8
	// Act must be deterministic: it is evaluated again after a restart.
	Act(hand uint8, view PokerView) (arena.PokerAction, *big.Int)
}

type PokerStyle struct {
	name string
	// Open bets when the hand exceeds openAbove, sized at openPercent of the wager.
	openAbove   uint8
	openPercent int64
	// Facing a bet, call when the hand exceeds callAbove, fold otherwise.
	callAbove uint8
}

var pokerStyles = map[string]PokerStyle{
	"tight":   {name: "tight", openAbove: 70, openPercent: 20, callAbove: 70},
	"caller":  {name: "caller", openAbove: 60, openPercent: 40, callAbove: 19},
	"passive": {name: "passive", openAbove: arena.PokerMaxHandValue, callAbove: 0},
}

func ParsePoker(name string) (Poker, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		n = "caller"
	}

	style, ok := pokerStyles[n]
	if !ok {
		return nil, fmt.Errorf("unknown poker strategy %q", name)
	}

	return style, nil
}

func (s PokerStyle) Name() string { return s.name }

// Hand spreads the budget evenly over the remaining rounds with some noise, leaving
// at least one point for every later round. It stays within 1 and
// arena.PokerMaxHandValue even when the budget is already spent.
func (s PokerStyle) Hand(round, totalRounds, budget uint64) uint8 {
	left := max(totalRounds-min(round, totalRounds), 1)
	if budget < left {
		return 1
	}

	ceiling := min(budget-(left-1), arena.PokerMaxHandValue)
	if left == 1 {
		return handValue(int64(ceiling))
	}

	share := int64(budget / left)
	value := share + rand.Int64N(41) - 20

	return handValue(min(value, int64(ceiling)))
}

func handValue(v int64) uint8 {
	return uint8(max(min(v, arena.PokerMaxHandValue), 1))
}

func (s PokerStyle) Act(hand uint8, view PokerView) (arena.PokerAction, *big.Int) {
	if view.CurrentBet == nil || view.CurrentBet.Sign() == 0 {
		if hand > s.openAbove && view.Wager != nil && s.openPercent > 0 {
			amount := new(big.Int).Mul(view.Wager, big.NewInt(s.openPercent))
			amount.Div(amount, big.NewInt(100))

			if amount.Sign() > 0 {
				return arena.PokerBet, amount
			}
		}

		return arena.PokerCheck, nil
	}

	if hand > s.callAbove {
		return arena.PokerCall, new(big.Int).Set(view.CurrentBet)
	}

	return arena.PokerFold, nil
}
