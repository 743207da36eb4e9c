// Package strategy chooses the values the agent commits to and how it bets.
package strategy

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/vreid/arena/internal/pkg/arena"
)

// Round is one completed RPS round from our side of the table.
type Round struct {
	Ours   arena.Move `json:"ours"`
	Theirs arena.Move `json:"theirs"`
}

// History is what the agent knows of an opponent when it picks a move: rounds from
// earlier games against them and the completed rounds of the current game.
type History struct {
	Prior []Round
	Game  []Round
}

// All returns prior rounds followed by the current game's, oldest first.
func (h History) All() []Round {
	if len(h.Prior) == 0 {
		return h.Game
	}

	return append(slices.Clip(h.Prior), h.Game...)
}

type RPS interface {
	Name() string
	Next(history History) arena.Move
}

func ParseRPS(name string) (RPS, error) {
	switch n := strings.ToLower(strings.TrimSpace(name)); n {
	case "adaptive", "":
		return Adaptive{}, nil
	case "random":
		return Random{}, nil
	case "frequency":
		return Frequency{}, nil
	case "markov":
		return Markov{}, nil
	case "sequence":
		return Sequence{}, nil
	default:
		move, err := arena.ParseMove(n)
		if err != nil {
			return nil, fmt.Errorf("unknown rps strategy %q", name)
		}

		return Fixed{Move: move}, nil
	}
}

type Fixed struct {
	Move arena.Move
}

func (f Fixed) Name() string { return f.Move.String() }

func (f Fixed) Next(History) arena.Move { return f.Move }

type Random struct{}

func (Random) Name() string { return "random" }

func (Random) Next(History) arena.Move { return randomMove() }

func randomMove() arena.Move {
	return arena.Move(1 + rand.IntN(3))
}

// prediction is a guess at the opponent's next move. Confidence 0 means no guess.
type prediction struct {
	Move       arena.Move
	Confidence float64
}

// counter plays against p, or randomly when there is no guess.
func (p prediction) counter() arena.Move {
	if p.Confidence <= 0 || !p.Move.Valid() {
		return randomMove()
	}

	return p.Move.Counter()
}

// Frequency counters the opponent's most common move.
type Frequency struct{}

func (Frequency) Name() string { return "frequency" }

func (Frequency) Next(h History) arena.Move {
	return predictFrequency(h.All()).counter()
}

func predictFrequency(rounds []Round) prediction {
	counts := map[arena.Move]int{}
	for _, r := range rounds {
		counts[r.Theirs]++
	}

	move, count := mostCommon(counts)
	if count == 0 {
		return prediction{}
	}

	return prediction{Move: move, Confidence: float64(count) / float64(len(rounds))}
}

// MarkovMinRounds is how much history Markov needs before it stops guessing.
const MarkovMinRounds = 5

// Markov predicts the opponent's next move from its first-order move transitions.
type Markov struct{}

func (Markov) Name() string { return "markov" }

func (Markov) Next(h History) arena.Move {
	return predictMarkov(h.All()).counter()
}

func predictMarkov(rounds []Round) prediction {
	if len(rounds) < MarkovMinRounds {
		return prediction{}
	}

	last := rounds[len(rounds)-1].Theirs
	counts := map[arena.Move]int{}
	total := 0

	for i := 0; i+1 < len(rounds); i++ {
		if rounds[i].Theirs == last {
			counts[rounds[i+1].Theirs]++
			total++
		}
	}

	move, count := mostCommon(counts)
	if count == 0 {
		return prediction{}
	}

	return prediction{Move: move, Confidence: float64(count) / float64(total)}
}

// Sequence looks for a repeating cycle in the opponent's moves, or for a win-stay
// lose-shift habit, whichever explains the history better.
type Sequence struct{}

func (Sequence) Name() string { return "sequence" }

func (Sequence) Next(h History) arena.Move {
	return predictSequence(h.All()).counter()
}

const (
	minCycle = 2
	maxCycle = 4

	// habitMinChecks is how many transitions the win-stay lose-shift check needs.
	habitMinChecks = 3
)

func predictSequence(rounds []Round) prediction {
	cycle := predictCycle(rounds)
	habit := predictHabit(rounds)

	if cycle.Confidence > habit.Confidence {
		return cycle
	}

	return habit
}

// predictCycle finds the window whose last occurrence repeats the one before it and
// predicts that the cycle continues. Confidence grows with the number of repeats.
func predictCycle(rounds []Round) prediction {
	theirs := make([]arena.Move, len(rounds))
	for i, r := range rounds {
		theirs[i] = r.Theirs
	}

	var best prediction

	for w := minCycle; w <= maxCycle; w++ {
		n := len(theirs)
		if n < 2*w {
			continue
		}

		recent := theirs[n-w:]
		if !slices.Equal(recent, theirs[n-2*w:n-w]) {
			continue
		}

		matches := 0
		for start := 0; start+w <= n-w; start += w {
			if slices.Equal(theirs[start:start+w], recent) {
				matches++
			}
		}

		confidence := min(0.9, 0.5+float64(matches)*0.1) //nolint:mnd
		if confidence > best.Confidence {
			best = prediction{Move: theirs[n-w], Confidence: confidence}
		}
	}

	return best
}

// predictHabit checks whether the opponent repeats a winning move and changes after
// a loss or a draw, and predicts its next move if so.
func predictHabit(rounds []Round) prediction {
	checked, held := 0, 0

	for i := 1; i < len(rounds); i++ {
		prev, move := rounds[i-1], rounds[i].Theirs
		checked++

		won := prev.Theirs.Beats(prev.Ours)
		if won == (move == prev.Theirs) {
			held++
		}
	}

	if checked < habitMinChecks || held == 0 {
		return prediction{}
	}

	confidence := float64(held) / float64(checked)
	last := rounds[len(rounds)-1]

	if last.Theirs.Beats(last.Ours) {
		return prediction{Move: last.Theirs, Confidence: confidence}
	}

	// after a loss or a draw the opponent moves away from its last move; of the two
	// remaining moves, assume the one that would have beaten ours
	return prediction{Move: last.Ours.Counter(), Confidence: confidence}
}

const (
	// AdaptiveThreshold is the confidence a prediction needs before Adaptive acts on it.
	AdaptiveThreshold = 0.4

	// adaptiveWindow is how many recent rounds of the current game are checked for
	// being exploited.
	adaptiveWindow  = 5
	adaptiveMinRate = 0.35
)

// Adaptive plays against the most confident of the sequence, markov and frequency
// predictions over everything known about the opponent. It falls back to random when
// no prediction is confident enough, or when it has been losing the current game.
type Adaptive struct{}

func (Adaptive) Name() string { return "adaptive" }

func (Adaptive) Next(h History) arena.Move {
	if exploited(h.Game) {
		return randomMove()
	}

	all := h.All()

	var best prediction

	for _, p := range []prediction{predictSequence(all), predictMarkov(all), predictFrequency(all)} {
		if p.Confidence > best.Confidence {
			best = p
		}
	}

	if best.Confidence < AdaptiveThreshold {
		return randomMove()
	}

	return best.counter()
}

// exploited reports whether we won too few of the last rounds of game.
func exploited(game []Round) bool {
	if len(game) <= adaptiveWindow {
		return false
	}

	wins := 0

	for _, r := range game[len(game)-adaptiveWindow:] {
		if r.Ours.Beats(r.Theirs) {
			wins++
		}
	}

	return float64(wins)/adaptiveWindow < adaptiveMinRate
}

// mostCommon breaks ties in rock, paper, scissors order.
func mostCommon(counts map[arena.Move]int) (arena.Move, int) {
	best, bestCount := arena.MoveNone, 0

	for _, m := range []arena.Move{arena.MoveRock, arena.MovePaper, arena.MoveScissors} {
		if counts[m] > bestCount {
			best, bestCount = m, counts[m]
		}
	}

	return best, bestCount
}
