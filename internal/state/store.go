// Package state holds the in-memory view of every cached collection plus
// the shared error, in-flight markers and identity generation that screens
// observe. Stores are built explicitly and injected; there is no package
// level instance.
package state

import (
	"sync"
	"time"

	"fieldline/internal/domain"
)

// Collection is an ordered, concurrency-safe list of entities. New entities
// are appended; updates replace in place.
type Collection[T domain.Entity] struct {
	mu    sync.RWMutex
	items []T
}

// All returns a copy of the current list.
func (c *Collection[T]) All() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]T(nil), c.items...)
}

func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Collection[T]) Get(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, it := range c.items {
		if it.EntityID() == id {
			return it, true
		}
	}
	var zero T
	return zero, false
}

// Replace swaps the whole list, used by hydrate and refresh.
func (c *Collection[T]) Replace(items []T) {
	c.mu.Lock()
	c.items = append([]T(nil), items...)
	c.mu.Unlock()
}

// Apply runs fn on the list under the write lock and stores its result.
// It returns a copy of the stored list.
func (c *Collection[T]) Apply(fn func([]T) []T) []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = fn(c.items)
	return append([]T(nil), c.items...)
}

// Upsert replaces the entity with the same id or appends it.
func (c *Collection[T]) Upsert(item T) []T {
	return c.Apply(func(items []T) []T { return upsert(items, item) })
}

// Remove drops the entity with id; removed is false when it was absent.
func (c *Collection[T]) Remove(id string) (items []T, removed bool) {
	items = c.Apply(func(items []T) []T {
		out := items[:0:0]
		for _, it := range items {
			if it.EntityID() == id {
				removed = true
				continue
			}
			out = append(out, it)
		}
		return out
	})
	return items, removed
}

func upsert[T domain.Entity](items []T, item T) []T {
	for i, it := range items {
		if it.EntityID() == item.EntityID() {
			out := append([]T(nil), items...)
			out[i] = item
			return out
		}
	}
	return append(append([]T(nil), items...), item)
}

// Store aggregates the six entity collections.
type Store struct {
	Agents      Collection[domain.Agent]
	Specialties Collection[domain.AgentSpecialty]
	Tasks       Collection[domain.TaskAssignment]
	Cleaning    Collection[domain.CleaningSession]
	Maintenance Collection[domain.MaintenanceSession]
	Tickets     Collection[domain.Ticket]

	mu       sync.Mutex
	err      error
	pending  map[domain.Kind]int
	gen      uint64
	lastSync time.Time
}

func NewStore() *Store {
	return &Store{pending: map[domain.Kind]int{}}
}

// Err is the most recent failure of any repository operation. It is
// cleared when a new operation attempt begins.
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Store) SetError(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *Store) ClearError() { s.SetError(nil) }

// Begin marks one operation on kind as in flight; the returned func ends it.
func (s *Store) Begin(kind domain.Kind) func() {
	s.mu.Lock()
	if s.pending == nil {
		s.pending = map[domain.Kind]int{}
	}
	s.pending[kind]++
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.pending[kind]--
			s.mu.Unlock()
		})
	}
}

func (s *Store) Pending(kind domain.Kind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[kind] > 0
}

// Loading reports whether any operation is in flight.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.pending {
		if n > 0 {
			return true
		}
	}
	return false
}

// Generation changes whenever the store is reset. Responses to calls that
// began under an older generation are dropped.
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

func (s *Store) LastSync() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync
}

func (s *Store) SetLastSync(t time.Time) {
	s.mu.Lock()
	s.lastSync = t
	s.mu.Unlock()
}

// Reset empties every collection, the error and the sync marker, and
// starts a new generation.
func (s *Store) Reset() {
	s.mu.Lock()
	s.gen++
	s.err = nil
	s.lastSync = time.Time{}
	s.mu.Unlock()
	s.Agents.Replace(nil)
	s.Specialties.Replace(nil)
	s.Tasks.Replace(nil)
	s.Cleaning.Replace(nil)
	s.Maintenance.Replace(nil)
	s.Tickets.Replace(nil)
}
