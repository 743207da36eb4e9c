package locator

import (
	"errors"
	"fmt"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/vreid/arena/internal/pkg/common"
	bolt "go.etcd.io/bbolt"
)

var ErrBucketNotFound = errors.New("locator bucket doesn't exist")

// Cache remembers which escrow match each game instance belongs to. The association
// never changes once a game exists, so entries are never evicted.
type Cache interface {
	MatchOf(contract ethcommon.Address, gameID uint64) (uint64, bool)
	GameOf(contract ethcommon.Address, matchID uint64) (uint64, bool)
	Put(contract ethcommon.Address, gameID, matchID uint64) error
}

type instance struct {
	contract ethcommon.Address
	id       uint64
}

type MemoryCache struct {
	mu      sync.RWMutex
	games   map[instance]uint64
	matches map[instance]uint64
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		games:   map[instance]uint64{},
		matches: map[instance]uint64{},
	}
}

func (c *MemoryCache) MatchOf(contract ethcommon.Address, gameID uint64) (uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	matchID, ok := c.games[instance{contract, gameID}]

	return matchID, ok
}

func (c *MemoryCache) GameOf(contract ethcommon.Address, matchID uint64) (uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	gameID, ok := c.matches[instance{contract, matchID}]

	return gameID, ok
}

func (c *MemoryCache) Put(contract ethcommon.Address, gameID, matchID uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.games[instance{contract, gameID}] = matchID
	c.matches[instance{contract, matchID}] = gameID

	return nil
}

// BoltCache persists the associations in the wallet database, fronted by a
// MemoryCache.
type BoltCache struct {
	db  *bolt.DB
	mem *MemoryCache
}

func NewBoltCache(db *bolt.DB) *BoltCache {
	return &BoltCache{db: db, mem: NewMemoryCache()}
}

func cacheKey(contract ethcommon.Address, id uint64) []byte {
	return append(contract.Bytes(), common.Uint64ToBytes(id)...)
}

func (c *BoltCache) lookup(bucket string, contract ethcommon.Address, id uint64) (uint64, bool) {
	var (
		value uint64
		found bool
	)

	_ = c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return ErrBucketNotFound
		}

		raw := b.Get(cacheKey(contract, id))
		if raw != nil {
			value, found = common.BytesToUint64(raw, 0), true
		}

		return nil
	})

	return value, found
}

func (c *BoltCache) MatchOf(contract ethcommon.Address, gameID uint64) (uint64, bool) {
	if matchID, ok := c.mem.MatchOf(contract, gameID); ok {
		return matchID, true
	}

	matchID, ok := c.lookup(common.LocatorGamesBucket, contract, gameID)
	if ok {
		_ = c.mem.Put(contract, gameID, matchID)
	}

	return matchID, ok
}

func (c *BoltCache) GameOf(contract ethcommon.Address, matchID uint64) (uint64, bool) {
	if gameID, ok := c.mem.GameOf(contract, matchID); ok {
		return gameID, true
	}

	gameID, ok := c.lookup(common.LocatorMatchesBucket, contract, matchID)
	if ok {
		_ = c.mem.Put(contract, gameID, matchID)
	}

	return gameID, ok
}

func (c *BoltCache) Put(contract ethcommon.Address, gameID, matchID uint64) error {
	err := c.db.Update(func(tx *bolt.Tx) error {
		games := tx.Bucket([]byte(common.LocatorGamesBucket))
		matches := tx.Bucket([]byte(common.LocatorMatchesBucket))

		if games == nil || matches == nil {
			return ErrBucketNotFound
		}

		err := games.Put(cacheKey(contract, gameID), common.Uint64ToBytes(matchID))
		if err != nil {
			//nolint:wrapcheck
			return err
		}

		//nolint:wrapcheck
		return matches.Put(cacheKey(contract, matchID), common.Uint64ToBytes(gameID))
	})
	if err != nil {
		return fmt.Errorf("failed to cache game %d of %s: %w", gameID, contract.Hex(), err)
	}

	return c.mem.Put(contract, gameID, matchID)
}
