// Package orchestrator takes one escrow match from acceptance to its final outcome.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/samber/do/v2"
	"github.com/vreid/arena/internal/pkg/arena"
	"github.com/vreid/arena/internal/pkg/driver"
	"github.com/vreid/arena/internal/pkg/locator"
	"github.com/vreid/arena/internal/pkg/progress"
	"github.com/vreid/arena/internal/pkg/record"
	"github.com/vreid/arena/internal/pkg/retry"
	"github.com/vreid/arena/internal/pkg/strategy"
	"github.com/vreid/arena/internal/pkg/vault"
)

const (
	DefaultCreateGrace = 20 * time.Second
	DefaultRPSRounds   = 3
)

// Ledger is the set of contracts an orchestrator plays on.
type Ledger struct {
	Escrow arena.Escrow
	// Games maps a game contract address, as named by the escrow match, to its binding.
	Games map[ethcommon.Address]arena.GameContract
}

type Config struct {
	Wallet ethcommon.Address

	// CreateGrace is how long the invited player leaves the initiator to create the
	// game before creating it itself.
	CreateGrace   time.Duration
	PollInterval  time.Duration
	RPSRounds     uint64
	ClaimTimeouts bool

	RPS     strategy.RPS
	Poker   strategy.Poker
	Auction strategy.Auction
}

type Orchestrator struct {
	cfg      Config
	ledger   *Ledger
	locator  *locator.Locator
	secrets  driver.Secrets
	book     *record.Book
	retry    retry.Policy
	reporter progress.Reporter
	rounds   *driver.RoundCache
	now      func() time.Time
}

func NewOrchestratorService(i do.Injector) (*Orchestrator, error) {
	cfg := do.MustInvoke[Config](i)
	ledger := do.MustInvoke[*Ledger](i)
	loc := do.MustInvoke[*locator.Locator](i)
	secrets := do.MustInvoke[*vault.Vault](i)
	book := do.MustInvoke[*record.Book](i)
	policy := do.MustInvoke[retry.Policy](i)
	reporter := do.MustInvoke[progress.Reporter](i)

	return New(cfg, ledger, loc, secrets, book, policy, reporter), nil
}

// New builds an orchestrator. book and reporter may be nil.
func New(
	cfg Config,
	ledger *Ledger,
	loc *locator.Locator,
	secrets driver.Secrets,
	book *record.Book,
	policy retry.Policy,
	reporter progress.Reporter) *Orchestrator {
	if cfg.CreateGrace < 0 {
		cfg.CreateGrace = 0
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = driver.DefaultPollInterval
	}

	if cfg.RPSRounds == 0 {
		cfg.RPSRounds = DefaultRPSRounds
	}

	if cfg.RPS == nil {
		cfg.RPS = strategy.Adaptive{}
	}

	if cfg.Poker == nil {
		cfg.Poker, _ = strategy.ParsePoker("")
	}

	if cfg.Auction == nil {
		cfg.Auction, _ = strategy.ParseAuction("")
	}

	if reporter == nil {
		reporter = progress.Discard
	}

	return &Orchestrator{
		cfg:      cfg,
		ledger:   ledger,
		locator:  loc,
		secrets:  secrets,
		book:     book,
		retry:    policy,
		reporter: reporter,
		rounds:   driver.NewRoundCache(),
		now:      time.Now,
	}
}

// Run plays matchID to completion. A positive timeout bounds the whole run, and
// running out of it is reported as arena.ErrTimeout.
func (o *Orchestrator) Run(ctx context.Context, matchID uint64, timeout time.Duration) (*arena.MatchOutcome, error) {
	if timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	outcome, err := o.run(ctx, matchID)
	if err != nil {
		err = timedOut(ctx, err)

		o.reporter.Report(progress.Event{Event: progress.EventFailed, MatchID: matchID, Detail: err.Error()})

		return nil, err
	}

	return outcome, nil
}

func (o *Orchestrator) run(ctx context.Context, matchID uint64) (*arena.MatchOutcome, error) {
	m, game, err := o.validate(ctx, matchID)
	if err != nil {
		return nil, err
	}

	variant := game.Variant()

	log.Info("Playing match", "match", matchID, "variant", variant, "wager", m.Wager, "opponent", m.Opponent(o.cfg.Wallet))
	o.reporter.Report(progress.Event{Event: progress.EventStarted, MatchID: matchID, Variant: variant, Detail: m.Status.String()})

	if m.Status == arena.MatchCreated {
		m, err = o.accept(ctx, m)
		if err != nil {
			return nil, err
		}
	}

	var (
		gameID uint64
		found  = true
	)

	if m.Status == arena.MatchSettled {
		// Settled before we got here; the game is only needed for the outcome.
		gameID, found, err = o.locate(ctx, game, matchID, false)
		if err == nil && !found {
			gameID, found, err = o.locate(ctx, game, matchID, true)
		}

		if err != nil {
			return nil, err
		}

		if !found {
			log.Warn("Settled match has no located game, reporting game 0", "match", matchID, "contract", game.Address())
		}
	} else {
		gameID, err = o.ensureGame(ctx, m, game)
		if err != nil {
			return nil, err
		}

		var d driver.Driver

		d, err = o.driver(m, game)
		if err != nil {
			return nil, err
		}

		runner := &driver.Runner{
			PollInterval: o.cfg.PollInterval,
			Retry:        o.retry,
			Reporter:     o.reporter,
		}

		_, err = runner.Run(ctx, d, gameID)
		if err != nil {
			return nil, err
		}
	}

	var rounds []strategy.Round
	if found {
		rounds = o.playedRounds(ctx, game, gameID)
	}

	winner, err := retry.Do(ctx, o.retry, "read winner", func(ctx context.Context) (ethcommon.Address, error) {
		return o.ledger.Escrow.GetWinner(ctx, matchID)
	})
	if err != nil {
		return nil, err
	}

	outcome := &arena.MatchOutcome{
		MatchID:  matchID,
		Variant:  variant,
		GameID:   gameID,
		Result:   o.result(winner),
		Winner:   winner,
		Wager:    m.Wager,
		Player:   o.cfg.Wallet,
		Opponent: m.Opponent(o.cfg.Wallet),
	}

	o.record(outcome, rounds)

	log.Info("Match finished", "match", matchID, "game", gameID, "result", outcome.Result, "winner", winner)
	o.reporter.Report(progress.Event{Event: progress.EventOutcome, MatchID: matchID, GameID: gameID, Variant: variant, Detail: string(outcome.Result)})

	return outcome, nil
}

// validate rejects matches the agent cannot play before anything is sent.
func (o *Orchestrator) validate(ctx context.Context, matchID uint64) (*arena.EscrowMatch, arena.GameContract, error) {
	m, err := o.match(ctx, matchID)
	if err != nil {
		return nil, nil, err
	}

	if m.Player1 == (ethcommon.Address{}) {
		return nil, nil, fmt.Errorf("%w: match %d does not exist", arena.ErrInvalidMatch, matchID)
	}

	if m.Status == arena.MatchCancelled {
		return nil, nil, fmt.Errorf("%w: match %d", arena.ErrMatchCancelled, matchID)
	}

	if _, ok := m.Seat(o.cfg.Wallet); !ok {
		return nil, nil, fmt.Errorf("%w: %s is not in match %d", arena.ErrNotParticipant, o.cfg.Wallet.Hex(), matchID)
	}

	game, ok := o.ledger.Games[m.GameContract]
	if !ok {
		return nil, nil, fmt.Errorf("%w: match %d uses game contract %s", arena.ErrUnsupportedVariant, matchID, m.GameContract.Hex())
	}

	return m, game, nil
}

func (o *Orchestrator) match(ctx context.Context, matchID uint64) (*arena.EscrowMatch, error) {
	return retry.Do(ctx, o.retry, "read match", func(ctx context.Context) (*arena.EscrowMatch, error) {
		return o.ledger.Escrow.GetMatch(ctx, matchID)
	})
}

// accept pays the wager when we were invited, and otherwise waits for the invited
// player to do so.
func (o *Orchestrator) accept(ctx context.Context, m *arena.EscrowMatch) (*arena.EscrowMatch, error) {
	if m.Player2 == o.cfg.Wallet {
		receipt, err := o.ledger.Escrow.AcceptMatch(ctx, m.ID, m.Wager)
		if err != nil && !errors.Is(err, arena.ErrRejected) {
			return nil, err
		}

		if err != nil {
			// Only a match that moved on without us excuses the rejection.
			current, readErr := o.match(ctx, m.ID)
			if readErr != nil {
				return nil, readErr
			}

			if current.Status == arena.MatchCreated {
				return nil, fmt.Errorf("failed to accept match %d: %w", m.ID, err)
			}

			log.Warn("Accept rejected, match already moved on", "match", m.ID, "status", current.Status, "err", err)
		} else {
			log.Info("Accepted match", "match", m.ID, "tx", receipt.TxHash)
			o.reporter.Report(progress.Event{Event: progress.EventAccepted, MatchID: m.ID, TxHash: receipt.TxHash.Hex()})
		}
	} else {
		o.reporter.Report(progress.Event{Event: progress.EventWaiting, MatchID: m.ID, Detail: "opponent acceptance"})
	}

	for {
		current, err := o.match(ctx, m.ID)
		if err != nil {
			return nil, err
		}

		switch current.Status {
		case arena.MatchActive, arena.MatchSettled:
			if current.Player2 != o.cfg.Wallet {
				o.reporter.Report(progress.Event{Event: progress.EventAccepted, MatchID: m.ID})
			}

			return current, nil
		case arena.MatchCancelled:
			return nil, fmt.Errorf("%w: match %d", arena.ErrMatchCancelled, m.ID)
		case arena.MatchCreated:
		}

		err = sleep(ctx, o.cfg.PollInterval)
		if err != nil {
			return nil, err
		}
	}
}

// ensureGame finds the game of m, creating it when nobody has. The initiator creates
// at once; the invited player gives it CreateGrace first. Losing a creation race shows
// up as a rejected create and is resolved by waiting for the other game to appear.
// Once a game is known to exist the index is no longer trusted to say otherwise.
func (o *Orchestrator) ensureGame(ctx context.Context, m *arena.EscrowMatch, game arena.GameContract) (uint64, error) {
	gameID, found, err := o.locate(ctx, game, m.ID, false)
	if err != nil || found {
		return gameID, err
	}

	if m.Player2 == o.cfg.Wallet {
		gameID, found, err = o.awaitGame(ctx, game, m.ID, o.now().Add(o.cfg.CreateGrace), false)
		if err != nil || found {
			return gameID, err
		}

		// a lagging index must not make us create a duplicate
		gameID, found, err = o.locate(ctx, game, m.ID, true)
		if err != nil || found {
			return gameID, err
		}
	}

	gameID, receipt, err := game.CreateGame(ctx, m.ID, arena.CreateParams{Rounds: o.cfg.RPSRounds})
	if err == nil {
		err = o.locator.Remember(game.Address(), m.ID, gameID)
		if err != nil {
			log.Warn("Failed to remember created game", "match", m.ID, "game", gameID, "err", err)
		}

		log.Info("Created game", "match", m.ID, "game", gameID, "tx", receipt.TxHash)
		o.reporter.Report(progress.Event{Event: progress.EventCreated, MatchID: m.ID, GameID: gameID, TxHash: receipt.TxHash.Hex()})

		return gameID, nil
	}

	if !errors.Is(err, arena.ErrRejected) {
		return 0, err
	}

	log.Info("Game creation rejected, waiting for the opponent's game", "match", m.ID, "err", err)

	gameID, _, err = o.awaitGame(ctx, game, m.ID, time.Time{}, true)

	return gameID, err
}

// awaitGame polls the locator until the game appears, until is reached (zero means
// no limit), or ctx ends. With scan set every poll bypasses the log query.
func (o *Orchestrator) awaitGame(ctx context.Context, game arena.GameContract, matchID uint64, until time.Time, scan bool) (uint64, bool, error) {
	for {
		if !until.IsZero() && !o.now().Before(until) {
			return 0, false, nil
		}

		err := sleep(ctx, o.cfg.PollInterval)
		if err != nil {
			return 0, false, err
		}

		gameID, found, err := o.locate(ctx, game, matchID, scan)
		if err != nil || found {
			return gameID, found, err
		}
	}
}

func (o *Orchestrator) locate(ctx context.Context, game arena.GameContract, matchID uint64, scan bool) (uint64, bool, error) {
	find := o.locator.Locate
	if scan {
		find = o.locator.Scan
	}

	gameID, found, err := find(ctx, game, matchID)
	if err != nil {
		return 0, false, fmt.Errorf("failed to locate game: %w", err)
	}

	if found {
		o.reporter.Report(progress.Event{Event: progress.EventLocated, MatchID: matchID, GameID: gameID})
	}

	return gameID, found, nil
}

func (o *Orchestrator) driver(m *arena.EscrowMatch, game arena.GameContract) (driver.Driver, error) {
	cfg := driver.Config{
		Wallet:        o.cfg.Wallet,
		Secrets:       o.secrets,
		ClaimTimeouts: o.cfg.ClaimTimeouts,
	}

	switch g := game.(type) {
	case arena.RPSContract:
		return driver.NewRPS(cfg, g, o.cfg.RPS, o.rounds).WithPrior(o.prior(m.Opponent(o.cfg.Wallet))), nil
	case arena.PokerContract:
		return driver.NewPoker(cfg, g, o.cfg.Poker, m.Wager), nil
	case arena.AuctionContract:
		return driver.NewAuction(cfg, g, o.cfg.Auction), nil
	default:
		return nil, fmt.Errorf("%w: %s", arena.ErrUnsupportedVariant, game.Variant())
	}
}

func (o *Orchestrator) result(winner ethcommon.Address) arena.Result {
	switch winner {
	case ethcommon.Address{}:
		return arena.ResultDraw
	case o.cfg.Wallet:
		return arena.ResultWin
	default:
		return arena.ResultLoss
	}
}

// prior returns the rounds played against opponent in earlier games.
func (o *Orchestrator) prior(opponent ethcommon.Address) []strategy.Round {
	if o.book == nil {
		return nil
	}

	rounds, err := o.book.Rounds(opponent)
	if err != nil {
		log.Warn("Failed to read opponent rounds", "opponent", opponent, "err", err)

		return nil
	}

	log.Debug("Opponent history", "opponent", opponent, "rounds", len(rounds))

	return rounds
}

// playedRounds reads back the rounds of a finished RPS game for the record book.
func (o *Orchestrator) playedRounds(ctx context.Context, game arena.GameContract, gameID uint64) []strategy.Round {
	g, ok := game.(arena.RPSContract)
	if !ok || o.book == nil {
		return nil
	}

	d := driver.NewRPS(driver.Config{Wallet: o.cfg.Wallet}, g, o.cfg.RPS, o.rounds)

	rounds, err := retry.Do(ctx, o.retry, "read rounds", func(ctx context.Context) ([]strategy.Round, error) {
		return d.Rounds(ctx, gameID)
	})
	if err != nil {
		log.Warn("Failed to read played rounds", "game", gameID, "err", err)

		return nil
	}

	return rounds
}

func (o *Orchestrator) record(outcome *arena.MatchOutcome, rounds []strategy.Round) {
	if o.book == nil {
		return
	}

	card, err := o.book.Record(outcome, rounds...)
	if err != nil {
		log.Warn("Failed to record outcome", "match", outcome.MatchID, "err", err)

		return
	}

	log.Debug("Opponent record", "opponent", card.Address, "rating", card.Rating, "games", card.Games)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func timedOut(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, arena.ErrTimeout) {
		return fmt.Errorf("%w: %w", arena.ErrTimeout, err)
	}

	return err
}
