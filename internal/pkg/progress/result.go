package progress

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/vreid/arena/internal/pkg/arena"
)

// Result is the single object a supervising process reads when the run ends.
type Result struct {
	OK    bool                `json:"ok"`
	Data  *arena.MatchOutcome `json:"data,omitempty"`
	Error string              `json:"error,omitempty"`
	Code  arena.Code          `json:"code,omitempty"`
}

func NewResult(outcome *arena.MatchOutcome, err error) Result {
	if err != nil {
		return Result{
			OK:    false,
			Error: err.Error(),
			Code:  arena.CodeOf(err),
		}
	}

	return Result{OK: true, Data: outcome}
}

func WriteResult(w io.Writer, r Result) error {
	err := json.NewEncoder(w).Encode(r)
	if err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}

	return nil
}
