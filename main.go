package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/samber/do/v2"
	"github.com/urfave/cli/v3"
	"github.com/vreid/arena/internal/pkg/arena"
	"github.com/vreid/arena/internal/pkg/chain"
	"github.com/vreid/arena/internal/pkg/common"
	"github.com/vreid/arena/internal/pkg/driver"
	"github.com/vreid/arena/internal/pkg/locator"
	"github.com/vreid/arena/internal/pkg/orchestrator"
	"github.com/vreid/arena/internal/pkg/progress"
	"github.com/vreid/arena/internal/pkg/record"
	"github.com/vreid/arena/internal/pkg/retry"
	"github.com/vreid/arena/internal/pkg/strategy"
	"github.com/vreid/arena/internal/pkg/vault"
)

var errNoKey = errors.New("a private key is required")

type ArenaService struct {
	EchoService   *common.EchoService        `do:""`
	StatusService *progress.StatusService    `do:""`
	Client        *chain.Client              `do:""`
	Orchestrator  *orchestrator.Orchestrator `do:""`
}

func env(name string) cli.ValueSourceChain {
	return cli.EnvVars("ARENA_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_")))
}

// dbName names the wallet's bbolt file, so two agents never share one.
func dbName(wallet ethcommon.Address) string {
	return strings.ToLower(wallet.Hex())
}

func retryPolicy(cmd *cli.Command) retry.Policy {
	policy := retry.Default()
	policy.MaxAttempts = max(cmd.Int("retry-attempts"), 1)

	return policy
}

func strategies(s settings) (strategy.RPS, strategy.Poker, strategy.Auction, error) {
	rps, err := strategy.ParseRPS(s.RPSStrategy)
	if err != nil {
		return nil, nil, nil, err
	}

	poker, err := strategy.ParsePoker(s.PokerStrategy)
	if err != nil {
		return nil, nil, nil, err
	}

	auction, err := strategy.ParseAuction(s.AuctionStrategy)
	if err != nil {
		return nil, nil, nil, err
	}

	return rps, poker, auction, nil
}

func newLedgerService(i do.Injector) (*orchestrator.Ledger, error) {
	contracts := do.MustInvoke[*chain.Contracts](i)

	return &orchestrator.Ledger{Escrow: contracts.Escrow, Games: contracts.Games}, nil
}

func runPlay(ctx context.Context, cmd *cli.Command) error {
	return play(ctx, cmd, os.Stdout)
}

// setup reads everything play needs before touching the network. Its errors are
// configuration errors.
func setup(cmd *cli.Command) (settings, string, ethcommon.Address, orchestrator.Config, error) {
	var cfg orchestrator.Config

	s, err := loadSettings(cmd)
	if err != nil {
		return s, "", ethcommon.Address{}, cfg, err
	}

	hexKey := cmd.String("private-key")
	if hexKey == "" {
		return s, "", ethcommon.Address{}, cfg, errNoKey
	}

	key, err := chain.ParsePrivateKey(hexKey)
	if err != nil {
		return s, "", ethcommon.Address{}, cfg, err
	}

	wallet := crypto.PubkeyToAddress(key.PublicKey)

	rps, poker, auction, err := strategies(s)
	if err != nil {
		return s, "", ethcommon.Address{}, cfg, err
	}

	cfg = orchestrator.Config{
		Wallet:        wallet,
		CreateGrace:   cmd.Duration("create-grace"),
		PollInterval:  cmd.Duration("poll-interval"),
		RPSRounds:     cmd.Uint64("rounds"),
		ClaimTimeouts: cmd.Bool("claim-timeouts"),
		RPS:           rps,
		Poker:         poker,
		Auction:       auction,
	}

	return s, hexKey, wallet, cfg, nil
}

// play runs one match and writes exactly one result object to out, whatever fails.
func play(ctx context.Context, cmd *cli.Command, out io.Writer) error {
	if !cmd.IsSet("match") {
		return writeResult(out, nil, fmt.Errorf("%w: --match is required", arena.ErrInvalidMatch))
	}

	s, hexKey, wallet, cfg, err := setup(cmd)
	if err != nil {
		return writeResult(out, nil, fmt.Errorf("%w: %w", arena.ErrInvalidConfig, err))
	}

	matchID := cmd.Uint64("match")
	policy := retryPolicy(cmd)

	i := do.New()
	defer func() { _ = i.Shutdown() }()

	do.ProvideNamedValue(i, "data-dir", s.DataDir)
	do.ProvideNamedValue(i, "db-name", dbName(wallet))
	do.ProvideNamedValue(i, "rpc-url", s.RPCURL)
	do.ProvideNamedValue(i, "private-key", hexKey)
	do.ProvideNamedValue(i, "chain-id", s.ChainID)
	do.ProvideNamedValue(i, "status-port", cmd.Int("status-port"))

	do.ProvideValue(i, s.Deployment)
	do.ProvideValue(i, policy)

	submitterConfig := chain.DefaultSubmitterConfig()
	submitterConfig.GasMultiplier = cmd.Float("gas-multiplier")
	submitterConfig.Retry = policy
	do.ProvideValue(i, submitterConfig)

	do.ProvideValue(i, cfg)

	do.Provide(i, common.NewDatabaseService)
	do.Provide(i, common.NewEchoService)
	do.Provide(i, progress.NewStatusService)
	do.Provide(i, chain.NewClientService)
	do.Provide(i, chain.NewSubmitterService)
	do.Provide(i, chain.NewContractsService)
	do.Provide(i, newLedgerService)
	do.Provide(i, vault.NewVaultService)
	do.Provide(i, locator.NewLocatorService)
	do.Provide(i, record.NewRecordService)
	do.Provide(i, func(i do.Injector) (progress.Reporter, error) {
		status := do.MustInvoke[*progress.StatusService](i)

		return &progress.Stamp{
			Reporter: progress.Tee{progress.NewWriter(out), status.Ring},
			RunID:    status.RunID,
			MatchID:  matchID,
		}, nil
	})
	do.Provide(i, orchestrator.NewOrchestratorService)

	do.Provide(i, do.InvokeStruct[ArenaService])

	arenaService, err := do.Invoke[ArenaService](i)
	if err != nil {
		return writeResult(out, nil, fmt.Errorf("failed to start: %w", err))
	}

	arenaService.EchoService.Start()

	if s.ChainID != 0 {
		err = arenaService.Client.CheckChainID(ctx, s.ChainID)
		if err != nil {
			return writeResult(out, nil, err)
		}
	}

	log.Info("Starting", "wallet", wallet, "match", matchID, "run", arenaService.StatusService.RunID)

	outcome, err := arenaService.Orchestrator.Run(ctx, matchID, cmd.Duration("timeout"))

	return writeResult(out, outcome, err)
}

// writeResult prints the final result object and passes err through, so main can
// pick the exit code.
func writeResult(out io.Writer, outcome *arena.MatchOutcome, err error) error {
	writeErr := progress.WriteResult(out, progress.NewResult(outcome, err))
	if err != nil {
		return err
	}

	return writeErr
}

func runStatus(ctx context.Context, cmd *cli.Command) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	client, err := chain.Dial(ctx, s.RPCURL)
	if err != nil {
		return err
	}

	defer func() { _ = client.Shutdown() }()

	contracts, err := chain.Bind(client, nil, s.Deployment)
	if err != nil {
		return err
	}

	policy := retryPolicy(cmd)
	matchID := cmd.Uint64("match")

	m, err := retry.Do(ctx, policy, "read match", func(ctx context.Context) (*arena.EscrowMatch, error) {
		return contracts.Escrow.GetMatch(ctx, matchID)
	})
	if err != nil {
		return err
	}

	if m.Player1 == (ethcommon.Address{}) {
		return fmt.Errorf("%w: match %d does not exist", arena.ErrInvalidMatch, matchID)
	}

	renderMatch(m)

	game, ok := contracts.Games[m.GameContract]
	if !ok {
		return fmt.Errorf("%w: game contract %s", arena.ErrUnsupportedVariant, m.GameContract.Hex())
	}

	loc := locator.New(locator.NewMemoryCache(), policy, locator.DefaultBatchSize)

	gameID, found, err := loc.Locate(ctx, game, matchID)
	if err != nil {
		return err
	}

	if !found {
		printInfo("No game created for match %d yet", matchID)

		return nil
	}

	err = renderGame(ctx, policy, game, gameID)
	if err != nil {
		return err
	}

	if m.Status == arena.MatchSettled {
		winner, err := contracts.Escrow.GetWinner(ctx, matchID)
		if err != nil {
			log.Warn("Failed to read winner", "match", matchID, "err", err)

			return nil
		}

		renderWinner(winner)
	}

	return nil
}

func runHistory(_ context.Context, cmd *cli.Command) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	wallet, err := parseAddress("wallet", cmd.String("wallet"))
	if err != nil {
		return err
	}

	if wallet == (ethcommon.Address{}) {
		hexKey := cmd.String("private-key")
		if hexKey == "" {
			return errNoKey
		}

		key, err := chain.ParsePrivateKey(hexKey)
		if err != nil {
			return err
		}

		wallet = crypto.PubkeyToAddress(key.PublicKey)
	}

	db, err := common.OpenDatabase(s.DataDir, dbName(wallet))
	if err != nil {
		return err
	}

	defer func() { _ = db.Shutdown() }()

	book := record.New(db.DB)

	self, err := book.Get(wallet)
	if err != nil {
		return err
	}

	opponents, err := book.Opponents(wallet)
	if err != nil {
		return err
	}

	return renderHistory(self, opponents)
}

func rootFlags() []cli.Flag {
	//nolint:exhaustruct
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "YAML file with rpc, chain, contract and strategy settings",
			Sources: env("config"),
		},
		&cli.StringFlag{
			Name:    "data-dir",
			Value:   "./arena/data",
			Sources: env("data-dir"),
		},
		&cli.IntFlag{
			Name:    "verbosity",
			Value:   3, //nolint:mnd
			Usage:   "log level, 1 (errors) to 5 (trace)",
			Sources: env("verbosity"),
		},
		&cli.StringFlag{
			Name:    "rpc-url",
			Value:   "http://127.0.0.1:8545",
			Sources: env("rpc-url"),
		},
		&cli.Uint64Flag{
			Name:    "chain-id",
			Usage:   "expected chain id, 0 skips the check",
			Sources: env("chain-id"),
		},
		&cli.StringFlag{
			Name:    "private-key",
			Sources: env("private-key"),
		},
		&cli.StringFlag{
			Name:    "escrow",
			Sources: env("escrow"),
		},
		&cli.StringFlag{
			Name:    "rps-game",
			Sources: env("rps-game"),
		},
		&cli.StringFlag{
			Name:    "poker-game",
			Sources: env("poker-game"),
		},
		&cli.StringFlag{
			Name:    "auction-game",
			Sources: env("auction-game"),
		},
		&cli.Uint64Flag{
			Name:    "from-block",
			Usage:   "deploy block of the game contracts, where log queries start",
			Sources: env("from-block"),
		},
		&cli.IntFlag{
			Name:    "retry-attempts",
			Value:   5, //nolint:mnd
			Sources: env("retry-attempts"),
		},
		&cli.StringFlag{
			Name:    "rps-strategy",
			Value:   "adaptive",
			Sources: env("rps-strategy"),
		},
		&cli.StringFlag{
			Name:    "poker-strategy",
			Value:   "caller",
			Sources: env("poker-strategy"),
		},
		&cli.StringFlag{
			Name:    "auction-strategy",
			Value:   "neutral",
			Sources: env("auction-strategy"),
		},
	}
}

// playFlags leaves --match optional so a missing id still yields a result object.
func playFlags() []cli.Flag {
	//nolint:exhaustruct
	return []cli.Flag{
		&cli.Uint64Flag{
			Name:    "match",
			Sources: env("match"),
		},
		&cli.DurationFlag{
			Name:    "timeout",
			Value:   30 * time.Minute, //nolint:mnd
			Sources: env("timeout"),
		},
		&cli.DurationFlag{
			Name:    "poll-interval",
			Value:   driver.DefaultPollInterval,
			Sources: env("poll-interval"),
		},
		&cli.DurationFlag{
			Name:    "create-grace",
			Value:   orchestrator.DefaultCreateGrace,
			Sources: env("create-grace"),
		},
		&cli.Uint64Flag{
			Name:    "rounds",
			Value:   orchestrator.DefaultRPSRounds,
			Usage:   "rounds of a rock-paper-scissors game this agent creates",
			Sources: env("rounds"),
		},
		&cli.BoolFlag{
			Name:    "claim-timeouts",
			Sources: env("claim-timeouts"),
		},
		&cli.FloatFlag{
			Name:    "gas-multiplier",
			Value:   chain.MinGasMultiplier,
			Sources: env("gas-multiplier"),
		},
		&cli.IntFlag{
			Name:    "status-port",
			Usage:   "serve /api/health and /api/progress on this port, 0 disables",
			Sources: env("status-port"),
		},
	}
}

func main() {
	//nolint:exhaustruct
	cmd := &cli.Command{
		Name:  "arena",
		Usage: "play wagered commit-reveal games on an EVM ledger",
		Flags: rootFlags(),
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			common.SetupLogging(os.Stderr, cmd.Int("verbosity"))

			return ctx, nil
		},
		Commands: []*cli.Command{
			{
				Name:   "play",
				Usage:  "play one match to its outcome",
				Flags:  playFlags(),
				Action: runPlay,
			},
			{
				Name:  "status",
				Usage: "show a match and its game",
				Flags: []cli.Flag{
					&cli.Uint64Flag{
						Name:     "match",
						Required: true,
						Sources:  env("match"),
					},
				},
				Action: runStatus,
			},
			{
				Name:  "history",
				Usage: "show the opponent record book of a wallet",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "wallet",
						Usage:   "wallet address, derived from --private-key when empty",
						Sources: env("wallet"),
					},
				},
				Action: runHistory,
			},
			simulateCommand(),
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		log.Error("Command failed", "err", err, "code", arena.CodeOf(err))
		os.Exit(1)
	}
}
