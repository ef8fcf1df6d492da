// Package reportqueue implements the report queue: an MPSC FIFO of
// collection results, one producer per worker, one consumer (the control
// thread), grounded on the list_t contract (lpush/rpop/freeze) — push and
// pop are O(1) and never block each other beyond the queue's own mutex.
package reportqueue

import (
	"errors"
	"sync"

	"github.com/hostpulse/agent/pkg/types"
)

// ErrFrozen mirrors LIST_FROZEN: the queue has been frozen and rejects
// further pushes.
var ErrFrozen = errors.New("reportqueue: frozen")

// Queue is a FIFO of reports with an optional capacity. When Cap > 0 and
// the queue is full, Push drops the oldest report to admit the new one —
// the §7 "oldest-first" policy for an implementation that chooses to bound
// the queue while disconnected from the server.
type Queue struct {
	mu     sync.Mutex
	items  []types.Report
	frozen bool
	cap    int
	// dropped counts reports discarded under the oldest-first policy, for
	// observability only.
	dropped int
}

// New returns an unbounded queue. A capacity of 0 means unbounded, matching
// the §7 requirement that implementations MUST continue collecting even
// while disconnected; call SetCap to opt into a bound.
func New() *Queue {
	return &Queue{}
}

// SetCap bounds the queue at n reports (n <= 0 means unbounded).
func (q *Queue) SetCap(n int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cap = n
}

// Push appends a report to the tail. Returns ErrFrozen if the queue has
// been frozen (shutdown drain is in progress and no further reports should
// be queued for new workers, though in-flight workers may still call this
// briefly — see pkg/worker).
func (q *Queue) Push(r types.Report) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.frozen {
		return ErrFrozen
	}
	q.items = append(q.items, r)
	if q.cap > 0 && len(q.items) > q.cap {
		q.items = q.items[1:]
		q.dropped++
	}
	return nil
}

// Drain removes and returns every currently queued report, in FIFO order,
// leaving the queue empty. This is how the control thread empties the
// queue between command handlings.
func (q *Queue) Drain() []types.Report {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	return out
}

// Len reports the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped reports how many reports have been discarded by the
// oldest-first bounding policy.
func (q *Queue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Freeze idempotently marks the queue frozen.
func (q *Queue) Freeze() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.frozen = true
}
