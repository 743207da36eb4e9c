package progress

import (
	"errors"
	"sync"
)

var ErrInvalidCapacity = errors.New("ring capacity must be positive")

// Ring keeps the most recent events; once full, each new event evicts the oldest.
type Ring struct {
	data     []Event
	capacity int
	head     int
	count    int
	mu       sync.Mutex
}

func NewRing(capacity int) (*Ring, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}

	return &Ring{
		data:     make([]Event, capacity),
		capacity: capacity,
	}, nil
}

func (r *Ring) Report(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tail := (r.head + r.count) % r.capacity
	r.data[tail] = e

	if r.count == r.capacity {
		r.head = (r.head + 1) % r.capacity
	} else {
		r.count++
	}
}

// Snapshot returns the retained events, oldest first.
func (r *Ring) Snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Event, r.count)
	for i := range r.count {
		out[i] = r.data[(r.head+i)%r.capacity]
	}

	return out
}

// Last returns the newest event, if any.
func (r *Ring) Last() (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 {
		return Event{}, false
	}

	return r.data[(r.head+r.count-1)%r.capacity], true
}

func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.count
}
