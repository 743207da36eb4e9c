package driver_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vreid/arena/internal/pkg/arena"
	"github.com/vreid/arena/internal/pkg/driver"
	"github.com/vreid/arena/internal/pkg/retry"
)

type stepState struct{ step int }

func (s *stepState) GameID() uint64      { return 1 }
func (s *stepState) Settled() bool       { return false }
func (s *stepState) Phase() string       { return "commit" }
func (s *stepState) Round() uint64       { return 0 }
func (s *stepState) Deadline() time.Time { return time.Time{} }

// stepDriver commits once and is done on the observation after that, recording when
// it observed and acted.
type stepDriver struct {
	mu       sync.Mutex
	acted    bool
	actedAt  time.Time
	observed []time.Time
}

func (d *stepDriver) Variant() arena.Variant { return arena.VariantRPS }

func (d *stepDriver) Observe(context.Context, uint64) (driver.State, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.observed = append(d.observed, time.Now())

	step := 0
	if d.acted {
		step = 1
	}

	return &stepState{step: step}, nil
}

func (d *stepDriver) Decide(s driver.State) (driver.Action, error) {
	if s.(*stepState).step == 0 {
		return driver.Action{Kind: driver.KindCommit}, nil
	}

	return driver.Action{Kind: driver.KindDone}, nil
}

func (d *stepDriver) Execute(context.Context, driver.State, driver.Action) (*arena.Receipt, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.acted = true
	d.actedAt = time.Now()

	return &arena.Receipt{}, nil
}

func (d *stepDriver) Finish(context.Context, driver.State) error { return nil }

func TestRunnerWaitsAfterActing(t *testing.T) {
	t.Parallel()

	poll := 50 * time.Millisecond
	d := &stepDriver{}

	r := &driver.Runner{PollInterval: poll, Retry: retry.Policy{MaxAttempts: 1}}

	_, err := r.Run(context.Background(), d, 1)
	require.NoError(t, err)

	d.mu.Lock()
	defer d.mu.Unlock()

	require.Len(t, d.observed, 2)
	assert.GreaterOrEqual(t, d.observed[1].Sub(d.actedAt), poll, "the game is read again only after a poll interval")
}
