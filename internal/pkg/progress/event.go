// Package progress reports what a running match is doing: JSON lines on stdout, a
// ring of recent events, and a final result object.
package progress

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/vreid/arena/internal/pkg/arena"
)

const (
	EventStarted  = "started"
	EventAccepted = "accepted"
	EventLocated  = "located"
	EventCreated  = "created"
	EventPhase    = "phase"
	EventWaiting  = "waiting"
	EventAction   = "action"
	EventRejected = "rejected"
	EventSettled  = "settled"
	EventOutcome  = "outcome"
	EventFailed   = "failed"
)

type Event struct {
	Time    time.Time     `json:"ts"`
	RunID   string        `json:"runId"`
	Event   string        `json:"event"`
	MatchID uint64        `json:"matchId"`
	GameID  uint64        `json:"gameId,omitempty"`
	Variant arena.Variant `json:"variant,omitempty"`
	Round   uint64        `json:"round"`
	Phase   string        `json:"phase,omitempty"`
	TxHash  string        `json:"txHash,omitempty"`
	Detail  string        `json:"detail,omitempty"`
}

type Reporter interface {
	Report(e Event)
}

type discard struct{}

func (discard) Report(Event) {}

// Discard drops every event.
var Discard Reporter = discard{}

// Writer encodes events as one JSON object per line.
type Writer struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: json.NewEncoder(w)}
}

func (w *Writer) Report(e Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	err := w.enc.Encode(e)
	if err != nil {
		log.Warn("Failed to write progress event", "event", e.Event, "err", err)
	}
}

// Tee fans every event out to all reporters.
type Tee []Reporter

func (t Tee) Report(e Event) {
	for _, r := range t {
		r.Report(e)
	}
}

// Stamp fills the run wide fields of every event before passing it on.
type Stamp struct {
	Reporter

	RunID   string
	MatchID uint64
	Variant arena.Variant
	Now     func() time.Time
}

func (s *Stamp) Report(e Event) {
	if e.Time.IsZero() {
		if s.Now != nil {
			e.Time = s.Now()
		} else {
			e.Time = time.Now().UTC()
		}
	}

	if e.RunID == "" {
		e.RunID = s.RunID
	}

	if e.MatchID == 0 {
		e.MatchID = s.MatchID
	}

	if e.Variant == "" {
		e.Variant = s.Variant
	}

	s.Reporter.Report(e)
}
