package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v3"
	"github.com/vreid/arena/internal/pkg/arena"
	"github.com/vreid/arena/internal/pkg/common"
	"github.com/vreid/arena/internal/pkg/locator"
	"github.com/vreid/arena/internal/pkg/orchestrator"
	"github.com/vreid/arena/internal/pkg/progress"
	"github.com/vreid/arena/internal/pkg/record"
	"github.com/vreid/arena/internal/pkg/retry"
	"github.com/vreid/arena/internal/pkg/simledger"
	"github.com/vreid/arena/internal/pkg/strategy"
	"github.com/vreid/arena/internal/pkg/vault"
	"golang.org/x/sync/errgroup"
)

func simulateCommand() *cli.Command {
	//nolint:exhaustruct
	return &cli.Command{
		Name:  "simulate",
		Usage: "play one match between two local agents on an in-memory ledger",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "variant",
				Value:   string(arena.VariantRPS),
				Usage:   "rps, poker or auction",
				Sources: env("variant"),
			},
			&cli.Int64Flag{
				Name:  "wager",
				Value: 1000, //nolint:mnd
			},
			&cli.StringFlag{
				Name:  "strategy-a",
				Usage: "strategy of the initiating agent, the variant's default when empty",
			},
			&cli.StringFlag{
				Name:  "strategy-b",
				Usage: "strategy of the invited agent, the variant's default when empty",
			},
			&cli.Uint64Flag{
				Name:  "rounds",
				Value: orchestrator.DefaultRPSRounds,
			},
			&cli.BoolFlag{
				Name:  "no-index",
				Usage: "refuse indexed log queries, forcing the linear game scan",
			},
			&cli.IntFlag{
				Name:  "faults",
				Usage: "fail this many reads with a rate-limit error first",
			},
			&cli.BoolFlag{
				Name:  "events",
				Usage: "print progress events of both agents",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: time.Minute,
			},
		},
		Action: runSimulate,
	}
}

type simAgent struct {
	wallet   ethcommon.Address
	strategy string
}

func newWallet() (ethcommon.Address, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return ethcommon.Address{}, fmt.Errorf("failed to generate wallet: %w", err)
	}

	return crypto.PubkeyToAddress(key.PublicKey), nil
}

func agentConfig(variant arena.Variant, a simAgent, rounds uint64) (orchestrator.Config, error) {
	cfg := orchestrator.Config{
		Wallet:       a.wallet,
		PollInterval: 20 * time.Millisecond, //nolint:mnd
		CreateGrace:  200 * time.Millisecond, //nolint:mnd
		RPSRounds:    rounds,
	}

	var err error

	switch variant {
	case arena.VariantRPS:
		cfg.RPS, err = strategy.ParseRPS(a.strategy)
	case arena.VariantPoker:
		cfg.Poker, err = strategy.ParsePoker(a.strategy)
	case arena.VariantAuction:
		cfg.Auction, err = strategy.ParseAuction(a.strategy)
	}

	return cfg, err
}

func runSimulate(ctx context.Context, cmd *cli.Command) error {
	variant, err := arena.ParseVariant(cmd.String("variant"))
	if err != nil {
		return err
	}

	l := simledger.New()

	if cmd.Bool("no-index") {
		l.DisableIndex()
	}

	contract := map[arena.Variant]ethcommon.Address{
		arena.VariantRPS:     l.Deployment().RPS,
		arena.VariantPoker:   l.Deployment().Poker,
		arena.VariantAuction: l.Deployment().Auction,
	}[variant]

	agents := make([]simAgent, 2) //nolint:mnd
	for n, flag := range []string{"strategy-a", "strategy-b"} {
		wallet, err := newWallet()
		if err != nil {
			return err
		}

		agents[n] = simAgent{wallet: wallet, strategy: cmd.String(flag)}
	}

	matchID := l.CreateMatch(agents[0].wallet, agents[1].wallet, big.NewInt(cmd.Int64("wager")), contract)
	l.FailReads(cmd.Int("faults"))

	policy := retry.Policy{
		MaxAttempts: max(cmd.Int("retry-attempts"), 1),
		BaseDelay:   10 * time.Millisecond, //nolint:mnd
		MaxDelay:    200 * time.Millisecond, //nolint:mnd
		Jitter:      10 * time.Millisecond, //nolint:mnd
	}

	dir, err := os.MkdirTemp("", "arena-simulate-")
	if err != nil {
		return fmt.Errorf("failed to create simulation dir: %w", err)
	}

	defer func() { _ = os.RemoveAll(dir) }()

	log.Info("Simulating", "variant", variant, "match", matchID, "a", agents[0].wallet, "b", agents[1].wallet)

	outcomes := make([]*arena.MatchOutcome, len(agents))
	g, ctx := errgroup.WithContext(ctx)

	for n, a := range agents {
		cfg, err := agentConfig(variant, a, cmd.Uint64("rounds"))
		if err != nil {
			return err
		}

		db, err := common.OpenDatabase(dir, dbName(a.wallet))
		if err != nil {
			return err
		}

		defer func() { _ = db.Shutdown() }()

		var reporter progress.Reporter = progress.Discard
		if cmd.Bool("events") {
			reporter = &progress.Stamp{Reporter: progress.NewWriter(os.Stdout), RunID: a.wallet.Hex()[:10], MatchID: matchID}
		}

		session := l.Session(a.wallet)

		o := orchestrator.New(
			cfg,
			&orchestrator.Ledger{Escrow: session.Escrow(), Games: session.Games()},
			locator.New(locator.NewBoltCache(db.DB), policy, locator.DefaultBatchSize),
			vault.New(db.DB),
			record.New(db.DB),
			policy,
			reporter,
		)

		g.Go(func() error {
			outcome, err := o.Run(ctx, matchID, cmd.Duration("timeout"))
			outcomes[n] = outcome

			return err
		})
	}

	err = g.Wait()
	if err != nil {
		return err
	}

	log.Info("Simulation complete", "reads", l.Reads())

	return renderOutcomes(outcomes)
}
