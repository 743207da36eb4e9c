package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/samber/do/v2"
	"github.com/vreid/arena/internal/pkg/arena"
	"github.com/vreid/arena/internal/pkg/retry"
)

// MinGasMultiplier is the smallest headroom applied to a gas estimate.
const MinGasMultiplier = 1.5

type SubmitterConfig struct {
	GasMultiplier  float64
	Retry          retry.Policy
	ReceiptPoll    time.Duration
	ReceiptTimeout time.Duration
}

func DefaultSubmitterConfig() SubmitterConfig {
	return SubmitterConfig{
		GasMultiplier:  MinGasMultiplier,
		Retry:          retry.Default(),
		ReceiptPoll:    time.Second,
		ReceiptTimeout: 2 * time.Minute,
	}
}

// Submitter signs and sends transactions from one wallet, one at a time.
type Submitter struct {
	backend Backend
	key     *ecdsa.PrivateKey
	from    ethcommon.Address
	signer  types.Signer
	cfg     SubmitterConfig

	mu sync.Mutex
}

func NewSubmitterService(i do.Injector) (*Submitter, error) {
	client := do.MustInvoke[*Client](i)
	hexKey := do.MustInvokeNamed[string](i, "private-key")
	chainID := do.MustInvokeNamed[uint64](i, "chain-id")
	cfg := do.MustInvoke[SubmitterConfig](i)

	key, err := ParsePrivateKey(hexKey)
	if err != nil {
		return nil, err
	}

	id := new(big.Int).SetUint64(chainID)
	if chainID == 0 {
		id, err = client.ChainID(context.Background())
		if err != nil {
			return nil, fmt.Errorf("failed to read chain id: %w", err)
		}
	}

	return NewSubmitter(client, key, id, cfg), nil
}

func NewSubmitter(backend Backend, key *ecdsa.PrivateKey, chainID *big.Int, cfg SubmitterConfig) *Submitter {
	cfg.GasMultiplier = max(cfg.GasMultiplier, MinGasMultiplier)

	if cfg.ReceiptPoll <= 0 {
		cfg.ReceiptPoll = time.Second
	}

	return &Submitter{
		backend: backend,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		signer:  types.LatestSignerForChainID(chainID),
		cfg:     cfg,
	}
}

func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return key, nil
}

func (s *Submitter) From() ethcommon.Address {
	return s.from
}

// Submit sends data to the contract at to and waits for a successful receipt. An
// estimate that reverts, or a receipt with failed status, ends in arena.ErrRejected.
func (s *Submitter) Submit(ctx context.Context, to ethcommon.Address, data []byte, value *big.Int) (*arena.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if value == nil {
		value = new(big.Int)
	}

	method := methodID(data)

	nonce, err := retry.Do(ctx, s.cfg.Retry, "pending nonce", func(ctx context.Context) (uint64, error) {
		//nolint:wrapcheck
		return s.backend.PendingNonceAt(ctx, s.from)
	})
	if err != nil {
		return nil, err
	}

	gasPrice, err := retry.Do(ctx, s.cfg.Retry, "gas price", func(ctx context.Context) (*big.Int, error) {
		//nolint:wrapcheck
		return s.backend.SuggestGasPrice(ctx)
	})
	if err != nil {
		return nil, err
	}

	estimate, err := retry.Do(ctx, s.cfg.Retry, "estimate gas", func(ctx context.Context) (uint64, error) {
		gas, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{
			From:  s.from,
			To:    &to,
			Value: value,
			Data:  data,
		})
		if err != nil && isRevert(err) {
			return 0, fmt.Errorf("%w: %s: %w", arena.ErrRejected, method, err)
		}

		//nolint:wrapcheck
		return gas, err
	})
	if err != nil {
		return nil, err
	}

	tx, err := types.SignTx(types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      s.gasLimit(estimate),
		To:       &to,
		Value:    value,
		Data:     data,
	}), s.signer, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	attempt := 0

	err = retry.Run(ctx, s.cfg.Retry, "send transaction", func(ctx context.Context) error {
		attempt++

		err := s.backend.SendTransaction(ctx, tx)
		if err != nil && attempt > 1 && alreadyAccepted(err) {
			log.Debug("Resend answered as already accepted", "tx", tx.Hash(), "err", err)

			return nil
		}

		//nolint:wrapcheck
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Debug("Transaction sent", "tx", tx.Hash(), "method", method, "nonce", nonce, "gas", tx.Gas())

	return s.waitReceipt(ctx, tx.Hash())
}

func (s *Submitter) gasLimit(estimate uint64) uint64 {
	return uint64(math.Ceil(float64(estimate) * s.cfg.GasMultiplier))
}

func (s *Submitter) waitReceipt(ctx context.Context, hash ethcommon.Hash) (*arena.Receipt, error) {
	if s.cfg.ReceiptTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, s.cfg.ReceiptTimeout)
		defer cancel()
	}

	ticker := time.NewTicker(s.cfg.ReceiptPoll)
	defer ticker.Stop()

	for {
		receipt, err := s.backend.TransactionReceipt(ctx, hash)

		switch {
		case err == nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return nil, fmt.Errorf("%w: transaction %s reverted", arena.ErrRejected, hash.Hex())
			}

			return &arena.Receipt{
				TxHash:      hash,
				GasUsed:     receipt.GasUsed,
				BlockNumber: toUint64(receipt.BlockNumber),
				Logs:        receipt.Logs,
			}, nil
		case errors.Is(err, ethereum.NotFound), retry.IsTransient(err):
			log.Trace("Waiting for receipt", "tx", hash, "err", err)
		case ctx.Err() == nil:
			return nil, fmt.Errorf("failed to read receipt of %s: %w", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil, fmt.Errorf("waiting for receipt of %s: %w", hash.Hex(), ctx.Err())
			}

			return nil, fmt.Errorf("%w: no receipt for %s: %w", arena.ErrTimeout, hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// alreadyAccepted matches node answers meaning an earlier send of the same signed
// transaction went through.
func alreadyAccepted(err error) bool {
	msg := strings.ToLower(err.Error())

	return strings.Contains(msg, "already known") ||
		strings.Contains(msg, "nonce too low") ||
		strings.Contains(msg, "already imported")
}

func methodID(data []byte) string {
	if len(data) < 4 {
		return "0x"
	}

	return fmt.Sprintf("%#x", data[:4])
}
