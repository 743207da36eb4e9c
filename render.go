package main

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/pterm/pterm"
	"github.com/vreid/arena/internal/pkg/arena"
	"github.com/vreid/arena/internal/pkg/record"
	"github.com/vreid/arena/internal/pkg/retry"
)

func printInfo(format string, args ...any) {
	pterm.Info.Printfln(format, args...)
}

func renderPairs(title string, rows [][]string) error {
	pterm.DefaultSection.Println(title)

	//nolint:wrapcheck
	return pterm.DefaultTable.WithData(rows).Render()
}

func amount(v *big.Int) string {
	if v == nil {
		return "0"
	}

	return v.String()
}

func deadline(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	return fmt.Sprintf("%s (%s)", t.UTC().Format(time.RFC3339), time.Until(t).Round(time.Second))
}

func renderMatch(m *arena.EscrowMatch) {
	_ = renderPairs(fmt.Sprintf("Match %d", m.ID), [][]string{
		{"status", m.Status.String()},
		{"player 1", m.Player1.Hex()},
		{"player 2", m.Player2.Hex()},
		{"wager", amount(m.Wager)},
		{"game contract", m.GameContract.Hex()},
		{"created", m.CreatedAt.UTC().Format(time.RFC3339)},
	})
}

func renderGame(ctx context.Context, policy retry.Policy, game arena.GameContract, gameID uint64) error {
	var rows [][]string

	switch g := game.(type) {
	case arena.RPSContract:
		state, err := retry.Do(ctx, policy, "read game", func(ctx context.Context) (*arena.RPSGame, error) {
			return g.GetGame(ctx, gameID)
		})
		if err != nil {
			return err
		}

		rows = [][]string{
			{"round", fmt.Sprintf("%d of %d", state.CurrentRound+1, state.TotalRounds)},
			{"phase", state.Phase.String()},
			{"score", fmt.Sprintf("%d - %d", state.Scores[0], state.Scores[1])},
			{"deadline", deadline(state.PhaseDeadline)},
		}

	case arena.PokerContract:
		state, err := retry.Do(ctx, policy, "read game", func(ctx context.Context) (*arena.PokerGame, error) {
			return g.GetGame(ctx, gameID)
		})
		if err != nil {
			return err
		}

		rows = [][]string{
			{"round", fmt.Sprintf("%d of %d", state.CurrentRound+1, state.TotalRounds)},
			{"phase", state.Phase.String()},
			{"score", fmt.Sprintf("%d - %d", state.Scores[0], state.Scores[1])},
			{"budgets", fmt.Sprintf("%d - %d", state.Budgets[0], state.Budgets[1])},
			{"turn", state.CurrentTurn.Hex()},
			{"current bet", amount(state.CurrentBet)},
			{"pot", amount(state.Pot)},
			{"deadline", deadline(state.PhaseDeadline)},
		}

	case arena.AuctionContract:
		state, err := retry.Do(ctx, policy, "read game", func(ctx context.Context) (*arena.AuctionGame, error) {
			return g.GetGame(ctx, gameID)
		})
		if err != nil {
			return err
		}

		rows = [][]string{
			{"phase", state.Phase.String()},
			{"prize", amount(state.Prize)},
			{"committed", fmt.Sprintf("%t - %t", state.Committed[0], state.Committed[1])},
			{"bids", fmt.Sprintf("%s - %s", amount(state.Bids[0]), amount(state.Bids[1]))},
			{"deadline", deadline(state.PhaseDeadline)},
		}

	default:
		return fmt.Errorf("%w: %s", arena.ErrUnsupportedVariant, game.Variant())
	}

	return renderPairs(fmt.Sprintf("%s game %d", game.Variant(), gameID), rows)
}

func renderWinner(winner ethcommon.Address) {
	if winner == (ethcommon.Address{}) {
		pterm.Info.Println("Settled as a draw")

		return
	}

	pterm.Success.Printfln("Winner: %s", winner.Hex())
}

func scorecardRow(c record.Scorecard) []string {
	played := "-"
	if !c.LastPlayed.IsZero() {
		played = c.LastPlayed.UTC().Format(time.RFC3339)
	}

	return []string{
		c.Address.Hex(),
		strconv.FormatFloat(c.Rating, 'f', 0, 64),
		strconv.FormatInt(c.Games, 10),
		fmt.Sprintf("%d/%d/%d", c.Wins, c.Losses, c.Draws),
		strconv.FormatUint(c.LastMatch, 10),
		played,
	}
}

func renderHistory(self record.Scorecard, opponents []record.Scorecard) error {
	header := []string{"address", "rating", "games", "w/l/d", "last match", "last played"}

	err := renderPairs("Wallet", [][]string{header, scorecardRow(self)})
	if err != nil {
		return err
	}

	if len(opponents) == 0 {
		printInfo("No opponents recorded")

		return nil
	}

	rows := [][]string{header}
	for _, c := range opponents {
		rows = append(rows, scorecardRow(c))
	}

	pterm.DefaultSection.Println("Opponents")

	//nolint:wrapcheck
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func renderOutcomes(outcomes []*arena.MatchOutcome) error {
	rows := [][]string{{"player", "opponent", "variant", "game", "result", "winner", "wager"}}

	for _, o := range outcomes {
		if o == nil {
			continue
		}

		rows = append(rows, []string{
			o.Player.Hex(),
			o.Opponent.Hex(),
			string(o.Variant),
			strconv.FormatUint(o.GameID, 10),
			string(o.Result),
			o.Winner.Hex(),
			amount(o.Wager),
		})
	}

	pterm.DefaultSection.Println("Outcome")

	//nolint:wrapcheck
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}
