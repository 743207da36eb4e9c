package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/vreid/arena/internal/pkg/arena"
	"github.com/vreid/arena/internal/pkg/progress"
	"github.com/vreid/arena/internal/pkg/retry"
)

type Driver interface {
	Variant() arena.Variant
	Observe(ctx context.Context, gameID uint64) (State, error)
	Decide(s State) (Action, error)
	Execute(ctx context.Context, s State, a Action) (*arena.Receipt, error)
	// Finish runs once the game is settled.
	Finish(ctx context.Context, s State) error
}

const DefaultPollInterval = 3 * time.Second

// Runner polls a game and feeds every observation through its driver until the
// game settles or ctx ends.
type Runner struct {
	PollInterval time.Duration
	Retry        retry.Policy
	Reporter     progress.Reporter
}

func (r *Runner) Run(ctx context.Context, d Driver, gameID uint64) (State, error) {
	poll := r.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	reporter := r.Reporter
	if reporter == nil {
		reporter = progress.Discard
	}

	var (
		lastPhase  string
		lastWait   string
		rejections = map[string]bool{}
	)

	for {
		state, err := retry.Do(ctx, r.Retry, "observe game", func(ctx context.Context) (State, error) {
			return d.Observe(ctx, gameID)
		})
		if err != nil {
			return nil, deadline(ctx, gameID, err)
		}

		if phase := state.Phase(); phase != lastPhase {
			log.Info("Game phase", "variant", d.Variant(), "game", gameID, "round", state.Round(), "phase", phase)
			reporter.Report(progress.Event{Event: progress.EventPhase, GameID: gameID, Round: state.Round(), Phase: phase})

			lastPhase = phase
		}

		action, err := d.Decide(state)
		if err != nil {
			return state, err
		}

		switch action.Kind {
		case KindDone:
			err = d.Finish(ctx, state)
			if err != nil {
				log.Warn("Failed to clean up settled game", "game", gameID, "err", err)
			}

			reporter.Report(progress.Event{Event: progress.EventSettled, GameID: gameID, Round: state.Round(), Phase: state.Phase()})

			return state, nil
		case KindWait:
			if action.Reason != lastWait {
				log.Debug("Waiting", "game", gameID, "round", action.Round, "reason", action.Reason)
				reporter.Report(progress.Event{Event: progress.EventWaiting, GameID: gameID, Round: action.Round, Phase: state.Phase(), Detail: action.Reason})

				lastWait = action.Reason
			}

			err = sleep(ctx, poll)
			if err != nil {
				return state, deadline(ctx, gameID, err)
			}

			continue
		}

		lastWait = ""

		log.Info("Acting", "variant", d.Variant(), "game", gameID, "action", action)

		receipt, err := d.Execute(ctx, state, action)
		if err != nil {
			// A rejection usually means the state moved between observing and acting.
			// Re-observe once; the same step rejected twice is final.
			signature := fmt.Sprintf("%s/%d/%s", action.Kind, action.Round, state.Phase())
			if errors.Is(err, arena.ErrRejected) && !rejections[signature] && ctx.Err() == nil {
				log.Warn("Action rejected, re-reading game", "game", gameID, "action", action, "err", err)
				reporter.Report(progress.Event{Event: progress.EventRejected, GameID: gameID, Round: action.Round, Phase: state.Phase(), Detail: err.Error()})

				rejections[signature] = true

				continue
			}

			return state, deadline(ctx, gameID, fmt.Errorf("%s: %w", action, err))
		}

		reporter.Report(progress.Event{
			Event:  progress.EventAction,
			GameID: gameID,
			Round:  action.Round,
			Phase:  state.Phase(),
			TxHash: receipt.TxHash.Hex(),
			Detail: action.String(),
		})

		// the node may still serve the pre-transaction state for a moment
		err = sleep(ctx, poll)
		if err != nil {
			return state, deadline(ctx, gameID, err)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// deadline tags errors caused by the overall deadline as arena.ErrTimeout.
func deadline(ctx context.Context, gameID uint64, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, arena.ErrTimeout) {
		return fmt.Errorf("%w: game %d did not finish in time: %w", arena.ErrTimeout, gameID, err)
	}

	return err
}
