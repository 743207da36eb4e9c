package arena_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vreid/arena/internal/pkg/arena"
)

func TestCodeOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		code arena.Code
	}{
		{nil, ""},
		{fmt.Errorf("reveal round 2: %w", arena.ErrSaltLost), arena.CodeSaltLost},
		{fmt.Errorf("wait: %w", arena.ErrTimeout), arena.CodeTimeout},
		{fmt.Errorf("wait: %w", context.DeadlineExceeded), arena.CodeTimeout},
		{fmt.Errorf("commit: %w", arena.ErrRejected), arena.CodeRejected},
		{fmt.Errorf("%w: get game: %w", arena.ErrRetryExhausted, errors.New("429")), arena.CodeRetryExhausted},
		{fmt.Errorf("%w: %w", arena.ErrRetryExhausted, arena.ErrSaltLost), arena.CodeSaltLost},
		{arena.ErrNotParticipant, arena.CodeNotParticipant},
		{fmt.Errorf("%w: unknown rps strategy", arena.ErrInvalidConfig), arena.CodeInvalidConfig},
		{context.Canceled, arena.CodeCancelled},
		{errors.New("boom"), arena.CodeInternal},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.code, arena.CodeOf(tt.err), "%v", tt.err)
	}
}

func TestParseVariant(t *testing.T) {
	t.Parallel()

	v, err := arena.ParseVariant(" Poker ")
	assert.NoError(t, err)
	assert.Equal(t, arena.VariantPoker, v)

	_, err = arena.ParseVariant("chess")
	assert.ErrorIs(t, err, arena.ErrUnsupportedVariant)
}

func TestMoveBeats(t *testing.T) {
	t.Parallel()

	assert.True(t, arena.MoveRock.Beats(arena.MoveScissors))
	assert.True(t, arena.MovePaper.Beats(arena.MoveRock))
	assert.True(t, arena.MoveScissors.Beats(arena.MovePaper))
	assert.False(t, arena.MoveRock.Beats(arena.MoveRock))

	for _, m := range []arena.Move{arena.MoveRock, arena.MovePaper, arena.MoveScissors} {
		assert.True(t, m.Counter().Beats(m))
	}
}
