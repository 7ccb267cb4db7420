// Package cache provides the keyed in-memory store behind the team-stats
// layer. It is an explicit object with a visible lifecycle rather than
// module-level state, and it de-duplicates concurrent misses so two
// callers asking for the same key issue one upstream fetch.
package cache

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"
)

type Store[V any] struct {
	mu      sync.RWMutex
	entries map[string]V
	group   singleflight.Group
}

func NewStore[V any]() *Store[V] {
	return &Store[V]{entries: make(map[string]V)}
}

func (s *Store[V]) Get(key string) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[key]
	return v, ok
}

func (s *Store[V]) Set(key string, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = value
}

func (s *Store[V]) Invalidate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

func (s *Store[V]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]V)
}

func (s *Store[V]) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store[V]) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetOrFetch returns the cached value for key, or calls fetch exactly
// once per key across concurrent callers and caches the result. Fetch
// errors are not cached.
func (s *Store[V]) GetOrFetch(ctx context.Context, key string, fetch func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := s.Get(key); ok {
		return v, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		// Re-check under the flight: a concurrent caller may have filled
		// the entry while this one was queued.
		if v, ok := s.Get(key); ok {
			return v, nil
		}
		v, err := fetch(ctx)
		if err != nil {
			return v, err
		}
		s.Set(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}
