// Package record keeps a scorecard per opponent with an Elo estimate of their
// strength, updated from every match outcome the agent produces.
package record

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/samber/do/v2"
	"github.com/vreid/arena/internal/pkg/arena"
	"github.com/vreid/arena/internal/pkg/common"
	"github.com/vreid/arena/internal/pkg/strategy"
	bolt "go.etcd.io/bbolt"
)

const (
	DefaultRating = 1500.0

	// MaxRounds is how many RPS rounds are kept per opponent, newest last.
	MaxRounds = 500
)

var (
	ErrBucketNotFound = errors.New("record bucket doesn't exist")
	ErrNoPlayer       = errors.New("outcome has no player")
)

type Scorecard struct {
	Address    ethcommon.Address `json:"address"`
	Rating     float64           `json:"rating"`
	Games      int64             `json:"games"`
	Wins       int64             `json:"wins"`
	Losses     int64             `json:"losses"`
	Draws      int64             `json:"draws"`
	LastMatch  uint64            `json:"lastMatch"`
	LastPlayed time.Time         `json:"lastPlayed"`
}

func newScorecard(addr ethcommon.Address) Scorecard {
	return Scorecard{Address: addr, Rating: DefaultRating}
}

// Book stores scorecards keyed by address. The agent's own wallet has a card too;
// wins and losses on an opponent's card are counted from the agent's side.
type Book struct {
	db *bolt.DB
}

func NewRecordService(i do.Injector) (*Book, error) {
	databaseService := do.MustInvoke[*common.DatabaseService](i)

	return New(databaseService.DB), nil
}

func New(db *bolt.DB) *Book {
	return &Book{db: db}
}

func KFactor(gamesPlayed int64) float64 {
	if gamesPlayed <= 20 {
		return 128.0
	}

	if gamesPlayed <= 50 {
		return 64.0
	}

	return 32.0
}

func ExpectedScore(ratingA, ratingB float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (ratingB-ratingA)/400.0))
}

// UpdateRatings applies one game between a and b, where score is a's result: 1 for
// a win, 0.5 for a draw, 0 for a loss.
func UpdateRatings(a, b Scorecard, score float64) (Scorecard, Scorecard) {
	expected := ExpectedScore(a.Rating, b.Rating)

	k := (KFactor(a.Games) + KFactor(b.Games)) / 2.0
	change := k * (score - expected)

	a.Rating += change
	a.Games++
	b.Rating -= change
	b.Games++

	return a, b
}

func scoreOf(r arena.Result) float64 {
	switch r {
	case arena.ResultWin:
		return 1
	case arena.ResultDraw:
		return 0.5
	default:
		return 0
	}
}

// Record folds an outcome into the player's and the opponent's cards and returns the
// opponent's. rounds, the RPS rounds played in the match, are appended to the
// opponent's round history. An outcome already recorded for the same match leaves
// the book as is.
func (b *Book) Record(outcome *arena.MatchOutcome, rounds ...strategy.Round) (Scorecard, error) {
	if outcome == nil || outcome.Player == (ethcommon.Address{}) {
		return Scorecard{}, ErrNoPlayer
	}

	var opponent Scorecard

	err := b.db.Update(func(tx *bolt.Tx) error {
		cards := tx.Bucket([]byte(common.RecordBucket))
		if cards == nil {
			return ErrBucketNotFound
		}

		matches := tx.Bucket([]byte(common.RecordMatchesBucket))
		if matches == nil {
			return ErrBucketNotFound
		}

		var err error

		opponent, err = load(cards, outcome.Opponent)
		if err != nil {
			return err
		}

		matchKey := common.Uint64ToBytes(outcome.MatchID)
		if matches.Get(matchKey) != nil {
			return nil
		}

		self, err := load(cards, outcome.Player)
		if err != nil {
			return err
		}

		self, opponent = UpdateRatings(self, opponent, scoreOf(outcome.Result))

		now := time.Now().UTC()

		for _, card := range []*Scorecard{&self, &opponent} {
			card.LastMatch = outcome.MatchID
			card.LastPlayed = now

			switch outcome.Result {
			case arena.ResultWin:
				card.Wins++
			case arena.ResultLoss:
				card.Losses++
			default:
				card.Draws++
			}
		}

		err = store(cards, self)
		if err != nil {
			return err
		}

		err = store(cards, opponent)
		if err != nil {
			return err
		}

		err = appendRounds(tx, outcome.Opponent, rounds)
		if err != nil {
			return err
		}

		return matches.Put(matchKey, []byte(outcome.Result))
	})
	if err != nil {
		return Scorecard{}, fmt.Errorf("failed to record match %d: %w", outcome.MatchID, err)
	}

	return opponent, nil
}

func load(cards *bolt.Bucket, addr ethcommon.Address) (Scorecard, error) {
	raw := cards.Get(addr.Bytes())
	if raw == nil {
		return newScorecard(addr), nil
	}

	var card Scorecard

	err := json.Unmarshal(raw, &card)
	if err != nil {
		return Scorecard{}, fmt.Errorf("corrupt scorecard for %s: %w", addr.Hex(), err)
	}

	return card, nil
}

func store(cards *bolt.Bucket, card Scorecard) error {
	data, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("failed to marshal scorecard: %w", err)
	}

	err = cards.Put(card.Address.Bytes(), data)
	if err != nil {
		return fmt.Errorf("failed to put scorecard: %w", err)
	}

	return nil
}

func (b *Book) Get(addr ethcommon.Address) (Scorecard, error) {
	var card Scorecard

	err := b.db.View(func(tx *bolt.Tx) error {
		cards := tx.Bucket([]byte(common.RecordBucket))
		if cards == nil {
			return ErrBucketNotFound
		}

		var err error

		card, err = load(cards, addr)

		return err
	})
	if err != nil {
		return Scorecard{}, fmt.Errorf("failed to read scorecard: %w", err)
	}

	return card, nil
}

// Opponents lists every card except self's, most played first.
func (b *Book) Opponents(self ethcommon.Address) ([]Scorecard, error) {
	var result []Scorecard

	err := b.db.View(func(tx *bolt.Tx) error {
		cards := tx.Bucket([]byte(common.RecordBucket))
		if cards == nil {
			return ErrBucketNotFound
		}

		return cards.ForEach(func(k, v []byte) error {
			if ethcommon.BytesToAddress(k) == self {
				return nil
			}

			var card Scorecard

			err := json.Unmarshal(v, &card)
			if err != nil {
				return fmt.Errorf("corrupt scorecard %x: %w", k, err)
			}

			result = append(result, card)

			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list scorecards: %w", err)
	}

	slices.SortFunc(result, func(a, b Scorecard) int {
		if c := cmp.Compare(b.Games, a.Games); c != 0 {
			return c
		}

		return cmp.Compare(b.Rating, a.Rating)
	})

	return result, nil
}

func appendRounds(tx *bolt.Tx, opponent ethcommon.Address, rounds []strategy.Round) error {
	if len(rounds) == 0 {
		return nil
	}

	bucket := tx.Bucket([]byte(common.RecordRoundsBucket))
	if bucket == nil {
		return ErrBucketNotFound
	}

	history, err := loadRounds(bucket, opponent)
	if err != nil {
		return err
	}

	history = append(history, rounds...)
	if len(history) > MaxRounds {
		history = history[len(history)-MaxRounds:]
	}

	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to marshal rounds: %w", err)
	}

	err = bucket.Put(opponent.Bytes(), data)
	if err != nil {
		return fmt.Errorf("failed to put rounds: %w", err)
	}

	return nil
}

func loadRounds(bucket *bolt.Bucket, opponent ethcommon.Address) ([]strategy.Round, error) {
	raw := bucket.Get(opponent.Bytes())
	if raw == nil {
		return nil, nil
	}

	var rounds []strategy.Round

	err := json.Unmarshal(raw, &rounds)
	if err != nil {
		return nil, fmt.Errorf("corrupt rounds for %s: %w", opponent.Hex(), err)
	}

	return rounds, nil
}

// Rounds returns the RPS rounds played against opponent, oldest first.
func (b *Book) Rounds(opponent ethcommon.Address) ([]strategy.Round, error) {
	var rounds []strategy.Round

	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(common.RecordRoundsBucket))
		if bucket == nil {
			return ErrBucketNotFound
		}

		var err error

		rounds, err = loadRounds(bucket, opponent)

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read rounds: %w", err)
	}

	return rounds, nil
}
