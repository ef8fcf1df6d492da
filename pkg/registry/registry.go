// Package registry implements the agent's task registry: three parallel
// maps keyed by task id (threads, controls, children) with freeze-on-
// shutdown semantics, grounded directly on the hash_t contract the task
// registry is specified against.
package registry

import (
	"errors"
	"sync"

	"github.com/hostpulse/agent/pkg/types"
)

// Errors mirror the HASH_* sentinel return values: a frozen map rejects
// every further mutation, and put on an existing key is a no-op error
// rather than an overwrite.
var (
	ErrFrozen = errors.New("registry: frozen")
	ErrExists = errors.New("registry: key already exists")
)

// Map is a generic reader-writer-locked map with freeze semantics. It is
// the Go rendition of the abstract hash_t contract: put/get/drop/keys plus
// an idempotent, irreversible freeze.
type Map[V any] struct {
	mu     sync.RWMutex
	m      map[types.TaskID]V
	frozen bool
}

// NewMap constructs an empty, unfrozen Map.
func NewMap[V any]() *Map[V] {
	return &Map[V]{m: make(map[types.TaskID]V)}
}

// Put inserts v under id. Returns ErrFrozen if the map has been frozen, or
// ErrExists if id is already bound.
func (m *Map[V]) Put(id types.TaskID, v V) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frozen {
		return ErrFrozen
	}
	if _, ok := m.m[id]; ok {
		return ErrExists
	}
	m.m[id] = v
	return nil
}

// Get returns the value bound to id, if any.
func (m *Map[V]) Get(id types.TaskID) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.m[id]
	return v, ok
}

// Drop removes id. Returns false, leaving the map unchanged, if the map has
// been frozen or id was not present.
func (m *Map[V]) Drop(id types.TaskID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frozen {
		return false
	}
	if _, ok := m.m[id]; !ok {
		return false
	}
	delete(m.m, id)
	return true
}

// Keys returns a snapshot of the currently bound keys, safe to range over
// without holding the map's lock.
func (m *Map[V]) Keys() []types.TaskID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]types.TaskID, 0, len(m.m))
	for k := range m.m {
		keys = append(keys, k)
	}
	return keys
}

// Freeze idempotently marks the map frozen; every subsequent Put fails with
// ErrFrozen and every Drop is refused. Freeze never removes existing
// entries — shutdown teardown still needs to observe and join every live
// worker.
func (m *Map[V]) Freeze() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frozen = true
}

// Frozen reports whether Freeze has been called.
func (m *Map[V]) Frozen() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.frozen
}

// Len returns the current number of bound keys.
func (m *Map[V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.m)
}
