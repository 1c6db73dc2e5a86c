// Package registry provides the keyed session store.
package registry

import (
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
)

var (
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionNotFound = errors.New("session not found")
)

// Store manages sessions keyed by session id with thread-safe access.
type Store[T any] struct {
	mu    sync.RWMutex
	items map[string]T
}

// NewStore creates an empty store.
func NewStore[T any]() *Store[T] {
	return &Store[T]{
		items: make(map[string]T),
	}
}

// Create builds and stores a new session. build runs under the store's lock,
// so concurrent creates of the same id build at most once.
func (s *Store[T]) Create(id string, build func() (T, error)) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if _, ok := s.items[id]; ok {
		return zero, errors.Wrapf(ErrSessionExists, "id=%s", id)
	}
	item, err := build()
	if err != nil {
		return zero, err
	}
	s.items[id] = item
	return item, nil
}

// GetOrCreate returns the session with the given id, building it first if
// needed. It reports whether the session was created.
func (s *Store[T]) GetOrCreate(id string, build func() (T, error)) (T, bool, error) {
	if item, err := s.Get(id); err == nil {
		return item, false, nil
	}
	item, err := s.Create(id, build)
	if errors.Is(err, ErrSessionExists) {
		// Lost a race with another creator.
		item, err = s.Get(id)
		return item, false, err
	}
	return item, err == nil, err
}

// Get retrieves a session by id.
func (s *Store[T]) Get(id string) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		var zero T
		return zero, errors.Wrapf(ErrSessionNotFound, "id=%s", id)
	}
	return item, nil
}

// Delete removes a session and returns it.
func (s *Store[T]) Delete(id string) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		var zero T
		return zero, errors.Wrapf(ErrSessionNotFound, "id=%s", id)
	}
	delete(s.items, id)
	return item, nil
}

// IDs returns the ids of all sessions in ascending order.
func (s *Store[T]) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Len returns the number of sessions.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
