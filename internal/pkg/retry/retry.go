// Package retry wraps remote calls with exponential backoff and jitter. Only errors
// on an explicit allow-list are retried; everything else is returned at once.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/vreid/arena/internal/pkg/arena"
)

type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter is the upper bound of the random delay added to every backoff. It keeps
	// two agents polling the same match from retrying in lockstep.
	Jitter time.Duration
}

func Default() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    15 * time.Second,
		Jitter:      500 * time.Millisecond,
	}
}

// Backoff is the delay before attempt+1 (attempt counts from zero), without jitter.
func (p Policy) Backoff(attempt int) time.Duration {
	d := p.BaseDelay << min(attempt, 30)
	if d <= 0 || (p.MaxDelay > 0 && d > p.MaxDelay) {
		return p.MaxDelay
	}

	return d
}

func (p Policy) delay(attempt int) time.Duration {
	d := p.Backoff(attempt)
	if p.Jitter > 0 {
		d += rand.N(p.Jitter)
	}

	return d
}

type transientError struct{ err error }

func (e transientError) Error() string { return e.err.Error() }
func (e transientError) Unwrap() error { return e.err }

// Transient marks err as retryable regardless of its message.
func Transient(err error) error {
	if err == nil {
		return nil
	}

	return transientError{err: err}
}

// fatal errors are never retried, whatever their message happens to contain.
var fatal = []error{
	arena.ErrRejected,
	arena.ErrSaltLost,
	arena.ErrNotParticipant,
	arena.ErrInvalidMatch,
	arena.ErrUnsupportedVariant,
	arena.ErrMatchCancelled,
	arena.ErrInvalidConfig,
	context.Canceled,
	context.DeadlineExceeded,
}

var signatures = []string{
	"too many requests",
	"rate limit",
	"request limit",
	"timeout",
	"timed out",
	"connection reset",
	"connection refused",
	"broken pipe",
	"eof",
	"temporarily unavailable",
	"service unavailable",
	"bad gateway",
	"higher priority",
	"network is unreachable",
}

func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	for _, f := range fatal {
		if errors.Is(err, f) {
			return false
		}
	}

	var marked transientError
	if errors.As(err, &marked) {
		return true
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case 429, 502, 503, 504:
			return true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, sig := range signatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}

	return false
}

// Do runs op until it succeeds, fails with a non-transient error, ctx ends, or
// p.MaxAttempts attempts have failed.
func Do[T any](ctx context.Context, p Policy, name string, op func(context.Context) (T, error)) (T, error) {
	var zero T

	attempts := max(p.MaxAttempts, 1)

	var lastErr error

	for attempt := range attempts {
		res, err := op(ctx)
		if err == nil {
			return res, nil
		}

		if ctx.Err() != nil {
			return zero, fmt.Errorf("%s: %w", name, errors.Join(ctx.Err(), err))
		}

		if !IsTransient(err) {
			return zero, fmt.Errorf("%s: %w", name, err)
		}

		lastErr = err

		if attempt == attempts-1 {
			break
		}

		t := time.NewTimer(p.delay(attempt))
		select {
		case <-ctx.Done():
			t.Stop()

			return zero, fmt.Errorf("%s: %w", name, errors.Join(ctx.Err(), lastErr))
		case <-t.C:
		}
	}

	return zero, fmt.Errorf("%s: %w after %d attempts: %w", name, arena.ErrRetryExhausted, attempts, lastErr)
}

func Run(ctx context.Context, p Policy, name string, op func(context.Context) error) error {
	_, err := Do(ctx, p, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})

	return err
}
