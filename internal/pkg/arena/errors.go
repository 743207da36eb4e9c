package arena

import (
	"context"
	"errors"
)

var (
	ErrTimeout            = errors.New("deadline exceeded")
	ErrSaltLost           = errors.New("commitment secret lost")
	ErrRejected           = errors.New("transaction rejected by ledger")
	ErrRetryExhausted     = errors.New("retries exhausted")
	ErrUnsupportedVariant = errors.New("unsupported game variant")
	ErrInvalidMatch       = errors.New("invalid match reference")
	ErrNotParticipant     = errors.New("wallet is not a participant")
	ErrMatchCancelled     = errors.New("match cancelled")
	ErrIndexUnsupported   = errors.New("indexed log query unsupported")
	ErrInvalidConfig      = errors.New("invalid configuration")
)

// Code is the machine-readable failure class reported to a supervising process.
type Code string

const (
	CodeTimeout            Code = "TIMEOUT"
	CodeSaltLost           Code = "SALT_LOST"
	CodeRejected           Code = "TX_REJECTED"
	CodeRetryExhausted     Code = "RETRY_EXHAUSTED"
	CodeUnsupportedVariant Code = "UNSUPPORTED_VARIANT"
	CodeInvalidMatch       Code = "INVALID_MATCH"
	CodeNotParticipant     Code = "NOT_PARTICIPANT"
	CodeMatchCancelled     Code = "MATCH_CANCELLED"
	CodeInvalidConfig      Code = "INVALID_CONFIG"
	CodeCancelled          Code = "CANCELLED"
	CodeInternal           Code = "INTERNAL"
)

var codes = []struct {
	err  error
	code Code
}{
	// SALT_LOST first: a lost secret matters more than how we noticed it.
	{ErrSaltLost, CodeSaltLost},
	{ErrTimeout, CodeTimeout},
	{ErrRejected, CodeRejected},
	{ErrUnsupportedVariant, CodeUnsupportedVariant},
	{ErrInvalidMatch, CodeInvalidMatch},
	{ErrNotParticipant, CodeNotParticipant},
	{ErrMatchCancelled, CodeMatchCancelled},
	{ErrInvalidConfig, CodeInvalidConfig},
	{ErrRetryExhausted, CodeRetryExhausted},
	{context.DeadlineExceeded, CodeTimeout},
	{context.Canceled, CodeCancelled},
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}

	return CodeInternal
}
