package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v3"
	"github.com/vreid/arena/internal/pkg/chain"
	"gopkg.in/yaml.v3"
)

var errBadAddress = errors.New("invalid address")

// fileConfig is the optional YAML file named by --config. Flags that are set
// explicitly, or through their environment variable, win over it.
type fileConfig struct {
	RPCURL    string `yaml:"rpcUrl"`
	ChainID   uint64 `yaml:"chainId"`
	DataDir   string `yaml:"dataDir"`
	Contracts struct {
		Escrow    string `yaml:"escrow"`
		RPS       string `yaml:"rps"`
		Poker     string `yaml:"poker"`
		Auction   string `yaml:"auction"`
		FromBlock uint64 `yaml:"fromBlock"`
	} `yaml:"contracts"`
	Strategies struct {
		RPS     string `yaml:"rps"`
		Poker   string `yaml:"poker"`
		Auction string `yaml:"auction"`
	} `yaml:"strategies"`
}

type settings struct {
	RPCURL     string
	ChainID    uint64
	DataDir    string
	Deployment chain.Deployment

	RPSStrategy     string
	PokerStrategy   string
	AuctionStrategy string
}

func readConfigFile(path string) (fileConfig, error) {
	var fc fileConfig

	if path == "" {
		return fc, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("failed to read config file: %w", err)
	}

	err = yaml.Unmarshal(data, &fc)
	if err != nil {
		return fc, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return fc, nil
}

func stringSetting(cmd *cli.Command, flag, fromFile string) string {
	if cmd.IsSet(flag) || fromFile == "" {
		return cmd.String(flag)
	}

	return fromFile
}

func uint64Setting(cmd *cli.Command, flag string, fromFile uint64) uint64 {
	if cmd.IsSet(flag) || fromFile == 0 {
		return cmd.Uint64(flag)
	}

	return fromFile
}

func parseAddress(name, s string) (ethcommon.Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ethcommon.Address{}, nil
	}

	if !ethcommon.IsHexAddress(s) {
		return ethcommon.Address{}, fmt.Errorf("%w for %s: %q", errBadAddress, name, s)
	}

	return ethcommon.HexToAddress(s), nil
}

func loadSettings(cmd *cli.Command) (settings, error) {
	fc, err := readConfigFile(cmd.String("config"))
	if err != nil {
		return settings{}, err
	}

	s := settings{
		RPCURL:          stringSetting(cmd, "rpc-url", fc.RPCURL),
		ChainID:         uint64Setting(cmd, "chain-id", fc.ChainID),
		DataDir:         stringSetting(cmd, "data-dir", fc.DataDir),
		RPSStrategy:     stringSetting(cmd, "rps-strategy", fc.Strategies.RPS),
		PokerStrategy:   stringSetting(cmd, "poker-strategy", fc.Strategies.Poker),
		AuctionStrategy: stringSetting(cmd, "auction-strategy", fc.Strategies.Auction),
	}

	s.Deployment.FromBlock = uint64Setting(cmd, "from-block", fc.Contracts.FromBlock)

	for _, a := range []struct {
		flag     string
		fromFile string
		dst      *ethcommon.Address
	}{
		{"escrow", fc.Contracts.Escrow, &s.Deployment.Escrow},
		{"rps-game", fc.Contracts.RPS, &s.Deployment.RPS},
		{"poker-game", fc.Contracts.Poker, &s.Deployment.Poker},
		{"auction-game", fc.Contracts.Auction, &s.Deployment.Auction},
	} {
		*a.dst, err = parseAddress(a.flag, stringSetting(cmd, a.flag, a.fromFile))
		if err != nil {
			return settings{}, err
		}
	}

	return s, nil
}
