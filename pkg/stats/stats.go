// Package stats tracks the agent's seven running task counters behind a
// single reader-writer lock, grounded on monitor.c's increment_stats /
// decrement_stats (which adjust the whole monitor_stats_t struct under one
// lock even for a ±1 change, to avoid torn reads of a multi-counter
// snapshot).
package stats

import (
	"sync"

	"github.com/hostpulse/agent/pkg/types"
)

// Counters holds the seven running totals and their guarding lock.
type Counters struct {
	mu sync.RWMutex
	s  types.Stats
}

// New returns a zeroed Counters.
func New() *Counters {
	return &Counters{}
}

// Inc increments the total and, if t has a dedicated per-type counter,
// that counter too. Called on worker entry.
func (c *Counters) Inc(t types.TaskType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.NumTasks++
	if field, ok := types.CounterFor(t); ok {
		*field(&c.s)++
	}
}

// Dec decrements the total and the per-type counter. Called on any worker
// exit path (kill, drop, or collector fatal error).
func (c *Counters) Dec(t types.TaskType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.NumTasks--
	if field, ok := types.CounterFor(t); ok {
		*field(&c.s)--
	}
}

// Snapshot returns a consistent copy of all counters.
func (c *Counters) Snapshot() types.Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.s
}
