// Package driver plays one game instance to completion.
//
// Each variant observes the on-chain state, decides the single next step from that
// state alone, and executes it. Decide never sends anything, so a restarted agent
// re-derives the same step from the same state.
package driver

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/vreid/arena/internal/pkg/arena"
	"github.com/vreid/arena/internal/pkg/commitment"
	"github.com/vreid/arena/internal/pkg/vault"
)

type Kind int

const (
	KindWait Kind = iota
	KindDone
	KindCommit
	KindReveal
	KindBet
	KindClaimTimeout
)

func (k Kind) String() string {
	return [...]string{"wait", "done", "commit", "reveal", "bet", "claim-timeout"}[k]
}

type Action struct {
	Kind   Kind
	Round  uint64
	Reason string

	// Bet and Amount describe a poker betting action.
	Bet    arena.PokerAction
	Amount *big.Int

	// Key names the vault entry a commit writes or a reveal consumes.
	Key   vault.Key
	Entry *vault.Entry
}

func (a Action) String() string {
	switch a.Kind {
	case KindBet:
		return fmt.Sprintf("%s %s round %d", a.Kind, a.Bet, a.Round)
	case KindWait, KindDone:
		return fmt.Sprintf("%s: %s", a.Kind, a.Reason)
	default:
		return fmt.Sprintf("%s round %d", a.Kind, a.Round)
	}
}

func wait(round uint64, format string, args ...any) Action {
	return Action{Kind: KindWait, Round: round, Reason: fmt.Sprintf(format, args...)}
}

// State is a variant's snapshot of one game instance.
type State interface {
	GameID() uint64
	Settled() bool
	Phase() string
	Round() uint64
	Deadline() time.Time
}

// Secrets is the part of the vault a driver uses.
type Secrets interface {
	Put(k vault.Key, e vault.Entry) error
	Take(k vault.Key) (vault.Entry, error)
	Delete(k vault.Key) error
	Prune(k vault.Key) (int, error)
}

type Config struct {
	Wallet  ethcommon.Address
	Secrets Secrets
	// ClaimTimeouts lets the driver claim a stalled game once the phase deadline has
	// passed and only the opponent still owes an action.
	ClaimTimeouts bool
	Now           func() time.Time
}

// base carries what every variant shares.
type base struct {
	cfg      Config
	variant  arena.Variant
	contract ethcommon.Address
}

func newBase(cfg Config, variant arena.Variant, contract ethcommon.Address) base {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return base{cfg: cfg, variant: variant, contract: contract}
}

func (b *base) key(gameID uint64, scope string) vault.Key {
	return vault.Key{
		Wallet:   b.cfg.Wallet,
		Variant:  b.variant,
		Contract: b.contract,
		GameID:   gameID,
		Scope:    scope,
	}
}

// commitEntry returns the entry already stored under k, so a commit interrupted
// between the vault write and the transaction reuses its value and secret. Otherwise
// it draws a value and persists it before anything is sent.
func (b *base) commitEntry(k vault.Key, draw func() *big.Int) (vault.Entry, error) {
	entry, err := b.cfg.Secrets.Take(k)
	if err == nil {
		return entry, nil
	}

	if !errors.Is(err, vault.ErrNotFound) {
		return vault.Entry{}, fmt.Errorf("failed to read vault: %w", err)
	}

	secret, err := commitment.NewSecret()
	if err != nil {
		return vault.Entry{}, err
	}

	entry = vault.Entry{
		Secret:  secret,
		Value:   draw(),
		Variant: b.variant,
	}

	err = b.cfg.Secrets.Put(k, entry)
	if err != nil {
		return vault.Entry{}, fmt.Errorf("failed to persist commitment: %w", err)
	}

	return entry, nil
}

// revealEntry loads the entry for k and checks it against the on-chain commitment.
func (b *base) revealEntry(k vault.Key, onChain ethcommon.Hash, hash func(vault.Entry) (ethcommon.Hash, error)) (vault.Entry, error) {
	entry, err := b.cfg.Secrets.Take(k)
	if errors.Is(err, vault.ErrNotFound) {
		return vault.Entry{}, fmt.Errorf("%w: no secret for %s", arena.ErrSaltLost, k)
	}

	if err != nil {
		return vault.Entry{}, fmt.Errorf("failed to read vault: %w", err)
	}

	computed, err := hash(entry)
	if err != nil || computed != onChain {
		return vault.Entry{}, fmt.Errorf("%w: stored secret for %s does not open the commitment", arena.ErrSaltLost, k)
	}

	return entry, nil
}

// forget drops a secret whose reveal is confirmed. Failing here only leaves an entry
// for Finish to prune.
func (b *base) forget(k vault.Key) {
	err := b.cfg.Secrets.Delete(k)
	if err != nil {
		log.Warn("Failed to delete revealed secret", "key", k, "err", err)
	}
}

func (b *base) prune(gameID uint64) error {
	_, err := b.cfg.Secrets.Prune(b.key(gameID, ""))
	if err != nil {
		return fmt.Errorf("failed to prune vault: %w", err)
	}

	return nil
}

// claimable reports whether a timeout claim would succeed: the deadline passed, we
// acted and the opponent did not.
func (b *base) claimable(deadline time.Time, acted, opponentActed bool) bool {
	return b.cfg.ClaimTimeouts && !deadline.IsZero() && b.cfg.Now().After(deadline) && acted && !opponentActed
}

func uint8Value(v *big.Int) (uint8, error) {
	if v == nil || !v.IsUint64() || v.Uint64() > 255 {
		return 0, fmt.Errorf("stored value %v does not fit a uint8", v)
	}

	return uint8(v.Uint64()), nil
}

func valueHash(e vault.Entry) (ethcommon.Hash, error) {
	v, err := uint8Value(e.Value)
	if err != nil {
		return ethcommon.Hash{}, err
	}

	return commitment.CommitValue(v, e.Secret), nil
}

func amountHash(e vault.Entry) (ethcommon.Hash, error) {
	//nolint:wrapcheck
	return commitment.CommitAmount(e.Value, e.Secret)
}
