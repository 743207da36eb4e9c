// Package vault keeps commitment secrets on disk between commit and reveal.
//
// Entries live in the wallet's bbolt file; every Put is its own fsynced
// transaction, so a crash leaves either the old state or the new one.
package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/samber/do/v2"
	"github.com/vreid/arena/internal/pkg/arena"
	"github.com/vreid/arena/internal/pkg/commitment"
	"github.com/vreid/arena/internal/pkg/common"
	bolt "go.etcd.io/bbolt"
)

var (
	ErrNotFound       = errors.New("vault entry not found")
	ErrBucketNotFound = errors.New("vault bucket doesn't exist")
)

type Key struct {
	Wallet   ethcommon.Address
	Variant  arena.Variant
	Contract ethcommon.Address
	GameID   uint64
	Scope    string
}

func RoundScope(round uint64) string {
	return "round-" + strconv.FormatUint(round, 10)
}

const BidScope = "bid"

func (k Key) gamePrefix() string {
	return fmt.Sprintf("%s:%s:%d:", k.Variant, strings.ToLower(k.Contract.Hex()), k.GameID)
}

func (k Key) String() string {
	return k.gamePrefix() + k.Scope + ":" + strings.ToLower(k.Wallet.Hex())
}

type Entry struct {
	Secret    commitment.Secret
	Value     *big.Int
	Variant   arena.Variant
	CreatedAt time.Time
}

type storedEntry struct {
	Secret    string        `json:"secret"`
	Value     string        `json:"value"`
	Variant   arena.Variant `json:"variant"`
	CreatedAt time.Time     `json:"created_at"`
}

type Vault struct {
	db *bolt.DB
}

func NewVaultService(i do.Injector) (*Vault, error) {
	databaseService := do.MustInvoke[*common.DatabaseService](i)

	return New(databaseService.DB), nil
}

func New(db *bolt.DB) *Vault {
	return &Vault{db: db}
}

func (v *Vault) Put(k Key, e Entry) error {
	if e.Value == nil {
		return fmt.Errorf("vault entry %s has no value", k)
	}

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(storedEntry{
		Secret:    e.Secret.Hex(),
		Value:     e.Value.String(),
		Variant:   e.Variant,
		CreatedAt: e.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal vault entry: %w", err)
	}

	err = v.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(common.VaultSecretsBucket))
		if b == nil {
			return ErrBucketNotFound
		}

		return b.Put([]byte(k.String()), data)
	})
	if err != nil {
		return fmt.Errorf("failed to put vault entry %s: %w", k, err)
	}

	return nil
}

// Take reads an entry without removing it; Delete is called once the reveal is
// confirmed.
func (v *Vault) Take(k Key) (Entry, error) {
	var data []byte

	err := v.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(common.VaultSecretsBucket))
		if b == nil {
			return ErrBucketNotFound
		}

		raw := b.Get([]byte(k.String()))
		if raw == nil {
			return ErrNotFound
		}

		data = append([]byte(nil), raw...)

		return nil
	})
	if err != nil {
		return Entry{}, fmt.Errorf("failed to take vault entry %s: %w", k, err)
	}

	var stored storedEntry

	err = json.Unmarshal(data, &stored)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to unmarshal vault entry %s: %w", k, err)
	}

	secret, err := commitment.SecretFromHex(stored.Secret)
	if err != nil {
		return Entry{}, fmt.Errorf("corrupt vault entry %s: %w", k, err)
	}

	value, ok := new(big.Int).SetString(stored.Value, 10)
	if !ok {
		return Entry{}, fmt.Errorf("corrupt vault entry %s: bad value %q", k, stored.Value)
	}

	return Entry{
		Secret:    secret,
		Value:     value,
		Variant:   stored.Variant,
		CreatedAt: stored.CreatedAt,
	}, nil
}

func (v *Vault) Delete(k Key) error {
	err := v.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(common.VaultSecretsBucket))
		if b == nil {
			return ErrBucketNotFound
		}

		return b.Delete([]byte(k.String()))
	})
	if err != nil {
		return fmt.Errorf("failed to delete vault entry %s: %w", k, err)
	}

	return nil
}

// Prune removes every entry of k's game owned by k's wallet, ignoring k.Scope.
func (v *Vault) Prune(k Key) (int, error) {
	prefix := []byte(k.gamePrefix())
	suffix := ":" + strings.ToLower(k.Wallet.Hex())
	removed := 0

	err := v.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(common.VaultSecretsBucket))
		if b == nil {
			return ErrBucketNotFound
		}

		var doomed [][]byte

		c := b.Cursor()
		for key, _ := c.Seek(prefix); key != nil && strings.HasPrefix(string(key), string(prefix)); key, _ = c.Next() {
			if strings.HasSuffix(string(key), suffix) {
				doomed = append(doomed, append([]byte(nil), key...))
			}
		}

		for _, key := range doomed {
			err := b.Delete(key)
			if err != nil {
				return err
			}
		}

		removed = len(doomed)

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune vault entries for %s: %w", prefix, err)
	}

	return removed, nil
}
