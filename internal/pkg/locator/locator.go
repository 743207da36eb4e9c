// Package locator resolves an escrow match to the game instance created for it.
//
// Lookups try the cache first, then the indexed GameCreated log, and finally scan
// instances newest first. The log query is abandoned for a contract after its first
// failure. An empty log answer is trusted by Locate and bypassed by Scan.
package locator

import (
	"context"
	"fmt"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/samber/do/v2"
	"github.com/vreid/arena/internal/pkg/arena"
	"github.com/vreid/arena/internal/pkg/common"
	"github.com/vreid/arena/internal/pkg/retry"
)

const DefaultBatchSize = 25

type Locator struct {
	cache     Cache
	retry     retry.Policy
	batchSize int

	mu       sync.Mutex
	noIndex  map[ethcommon.Address]bool
	indexErr map[ethcommon.Address]error
}

func NewLocatorService(i do.Injector) (*Locator, error) {
	databaseService := do.MustInvoke[*common.DatabaseService](i)
	policy := do.MustInvoke[retry.Policy](i)

	return New(NewBoltCache(databaseService.DB), policy, DefaultBatchSize), nil
}

func New(cache Cache, policy retry.Policy, batchSize int) *Locator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &Locator{
		cache:     cache,
		retry:     policy,
		batchSize: batchSize,
		noIndex:   map[ethcommon.Address]bool{},
		indexErr:  map[ethcommon.Address]error{},
	}
}

// Locate returns the game instance of matchID on idx. A match without a game yet is
// reported as found == false, not as an error.
func (l *Locator) Locate(ctx context.Context, idx arena.GameIndex, matchID uint64) (uint64, bool, error) {
	contract := idx.Address()

	if gameID, ok := l.cache.GameOf(contract, matchID); ok {
		return gameID, true, nil
	}

	if l.indexEnabled(contract) {
		gameID, found, err := idx.FindGameCreated(ctx, matchID)
		if err == nil {
			if found {
				l.remember(contract, gameID, matchID)
			}

			return gameID, found, nil
		}

		if ctx.Err() != nil {
			return 0, false, fmt.Errorf("failed to query game index: %w", ctx.Err())
		}

		l.disableIndex(contract, err)
	}

	return l.scan(ctx, idx, matchID)
}

// Scan looks matchID up like Locate but never trusts the log query, for callers that
// know the game exists while the index says otherwise.
func (l *Locator) Scan(ctx context.Context, idx arena.GameIndex, matchID uint64) (uint64, bool, error) {
	if gameID, ok := l.cache.GameOf(idx.Address(), matchID); ok {
		return gameID, true, nil
	}

	return l.scan(ctx, idx, matchID)
}

// Remember records a game this agent created.
func (l *Locator) Remember(contract ethcommon.Address, matchID, gameID uint64) error {
	return l.cache.Put(contract, gameID, matchID)
}

// IndexDisabled reports whether the log query was given up for contract, and why.
func (l *Locator) IndexDisabled(contract ethcommon.Address) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.noIndex[contract], l.indexErr[contract]
}

func (l *Locator) indexEnabled(contract ethcommon.Address) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return !l.noIndex[contract]
}

func (l *Locator) disableIndex(contract ethcommon.Address, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.noIndex[contract] {
		log.Info("Game index unavailable, scanning instead", "contract", contract, "err", err)
	}

	l.noIndex[contract] = true
	l.indexErr[contract] = err
}

func (l *Locator) remember(contract ethcommon.Address, gameID, matchID uint64) {
	err := l.cache.Put(contract, gameID, matchID)
	if err != nil {
		log.Warn("Failed to cache game", "contract", contract, "game", gameID, "err", err)
	}
}

func (l *Locator) scan(ctx context.Context, idx arena.GameIndex, matchID uint64) (uint64, bool, error) {
	contract := idx.Address()

	next, err := retry.Do(ctx, l.retry, "next game id", idx.NextGameID)
	if err != nil {
		return 0, false, err
	}

	batch := make([]uint64, 0, l.batchSize)

	for id := next; id > 0; id-- {
		gameID := id - 1
		if _, known := l.cache.MatchOf(contract, gameID); known {
			continue
		}

		batch = append(batch, gameID)
		if len(batch) < l.batchSize && gameID > 0 {
			continue
		}

		found, ok, err := l.readBatch(ctx, idx, batch, matchID)
		if err != nil || ok {
			return found, ok, err
		}

		batch = batch[:0]
	}

	if len(batch) > 0 {
		return l.readBatch(ctx, idx, batch, matchID)
	}

	return 0, false, nil
}

func (l *Locator) readBatch(ctx context.Context, idx arena.GameIndex, gameIDs []uint64, matchID uint64) (uint64, bool, error) {
	matchIDs, err := retry.Do(ctx, l.retry, "scan games", func(ctx context.Context) ([]uint64, error) {
		return idx.GameMatchIDs(ctx, gameIDs)
	})
	if err != nil {
		return 0, false, err
	}

	var (
		gameID uint64
		found  bool
	)

	for i, m := range matchIDs {
		l.remember(idx.Address(), gameIDs[i], m)

		if m == matchID && !found {
			gameID, found = gameIDs[i], true
		}
	}

	log.Trace("Scanned games", "contract", idx.Address(), "from", gameIDs[0], "to", gameIDs[len(gameIDs)-1], "found", found)

	return gameID, found, nil
}
