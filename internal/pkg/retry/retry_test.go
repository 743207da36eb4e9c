package retry_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vreid/arena/internal/pkg/arena"
	"github.com/vreid/arena/internal/pkg/retry"
)

var fast = retry.Policy{
	MaxAttempts: 4,
	BaseDelay:   time.Millisecond,
	MaxDelay:    4 * time.Millisecond,
	Jitter:      time.Millisecond,
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	calls := 0

	res, err := retry.Do(context.Background(), fast, "get game", func(context.Context) (int, error) {
		calls++
		if calls <= 3 {
			return 0, errors.New("429 Too Many Requests")
		}

		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, res)
	assert.Equal(t, 4, calls)
}

func TestDoExhausts(t *testing.T) {
	t.Parallel()

	calls := 0

	_, err := retry.Do(context.Background(), fast, "get round", func(context.Context) (int, error) {
		calls++

		return 0, errors.New("read tcp: connection reset by peer")
	})

	require.Error(t, err)
	assert.Equal(t, fast.MaxAttempts, calls)
	assert.ErrorIs(t, err, arena.ErrRetryExhausted)
	assert.Contains(t, err.Error(), "get round")
	assert.Equal(t, arena.CodeRetryExhausted, arena.CodeOf(err))
}

func TestDoReturnsFatalImmediately(t *testing.T) {
	t.Parallel()

	for _, fatal := range []error{
		fmt.Errorf("%w: execution reverted: timeout not reached", arena.ErrRejected),
		errors.New("invalid argument 0: hex string without 0x prefix"),
		arena.ErrSaltLost,
	} {
		calls := 0

		err := retry.Run(context.Background(), fast, "commit", func(context.Context) error {
			calls++

			return fatal
		})

		assert.ErrorIs(t, err, fatal)
		assert.Equal(t, 1, calls, fatal.Error())
	}
}

func TestDoStopsOnContextEnd(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	slow := retry.Policy{MaxAttempts: 100, BaseDelay: 10 * time.Millisecond, MaxDelay: 10 * time.Millisecond}

	_, err := retry.Do(ctx, slow, "observe", func(context.Context) (int, error) {
		return 0, errors.New("request timed out")
	})

	require.Error(t, err)
	assert.Equal(t, arena.CodeTimeout, arena.CodeOf(err))
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	assert.True(t, retry.IsTransient(rpc.HTTPError{StatusCode: 429, Status: "429 Too Many Requests"}))
	assert.True(t, retry.IsTransient(fmt.Errorf("wrapped: %w", rpc.HTTPError{StatusCode: 503})))
	assert.True(t, retry.IsTransient(retry.Transient(errors.New("anything"))))
	assert.True(t, retry.IsTransient(errors.New("replacement transaction has higher priority")))
	assert.False(t, retry.IsTransient(rpc.HTTPError{StatusCode: 400}))
	assert.False(t, retry.IsTransient(errors.New("nonce too high")))
	assert.False(t, retry.IsTransient(nil))
	assert.False(t, retry.IsTransient(context.Canceled))
}

func TestFatalErrorsWithDigitsAreNotTransient(t *testing.T) {
	t.Parallel()

	for _, err := range []error{
		fmt.Errorf("%w: game 1429", arena.ErrNotParticipant),
		fmt.Errorf("%w: match 4290 does not exist", arena.ErrInvalidMatch),
		fmt.Errorf("%w: game contract 0x4290000000000000000000000000000000000429", arena.ErrUnsupportedVariant),
		fmt.Errorf("%w: match 429", arena.ErrMatchCancelled),
		fmt.Errorf("%w: node timeout setting", arena.ErrInvalidConfig),
	} {
		assert.False(t, retry.IsTransient(err), err.Error())
		assert.NotEqual(t, arena.CodeRetryExhausted, arena.CodeOf(err))
	}

	assert.False(t, retry.IsTransient(errors.New("unknown block 0x1429")), "a bare status number is not a rate limit")
	assert.True(t, retry.IsTransient(errors.New("429 Too Many Requests")))

	calls := 0

	err := retry.Run(context.Background(), fast, "read game", func(context.Context) error {
		calls++

		return fmt.Errorf("%w: game 1429", arena.ErrNotParticipant)
	})

	require.ErrorIs(t, err, arena.ErrNotParticipant)
	assert.Equal(t, 1, calls)
	assert.Equal(t, arena.CodeNotParticipant, arena.CodeOf(err))
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	t.Parallel()

	p := retry.Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}

	assert.Equal(t, 100*time.Millisecond, p.Backoff(0))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 800*time.Millisecond, p.Backoff(3))
	assert.Equal(t, time.Second, p.Backoff(4))
	assert.Equal(t, time.Second, p.Backoff(60))
}
