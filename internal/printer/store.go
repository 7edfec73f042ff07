package printer

import (
	"maps"
	"slices"
	"sync"
)

// Store is the Sensor Data Map for one printer.
//
// Keys are only ever inserted or overwritten; nothing deletes them.
// One goroutine (the Client) writes, any number read. Readers receive
// values or copies, never the live map.
type Store struct {
	mu      sync.RWMutex
	values  map[string]any
	version uint64
}

// MergeResult describes the effect of one Merge call.
type MergeResult struct {
	// Keys lists every key carried by the merged message, sorted.
	Keys []string
	// NewKeys lists keys seen for the first time, sorted.
	NewKeys []string
	// Version is the store version after the merge.
	Version uint64
}

// NewStore returns a store holding only connection_status = DISCONNECTED.
func NewStore() *Store {
	return &Store{
		values: map[string]any{StatusKey: StatusDisconnected},
	}
}

// Merge writes every key of values into the store.
func (s *Store) Merge(values map[string]any) MergeResult {
	keys := slices.Sorted(maps.Keys(values))

	s.mu.Lock()
	defer s.mu.Unlock()

	var fresh []string
	for _, k := range keys {
		if _, exists := s.values[k]; !exists {
			fresh = append(fresh, k)
		}
		s.values[k] = values[k]
	}
	s.version++

	return MergeResult{Keys: keys, NewKeys: fresh, Version: s.version}
}

// SetStatus writes the connection status key. It reports whether the
// value differed from the previous status, and the new version.
func (s *Store) SetStatus(status string) (changed bool, version uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, _ := s.values[StatusKey].(string)
	s.values[StatusKey] = status
	s.version++
	return prev != status, s.version
}

// Get returns the value for key and whether it is present.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Status returns the current connection status.
func (s *Store) Status() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, _ := s.values[StatusKey].(string)
	if status == "" {
		return StatusDisconnected
	}
	return status
}

// Keys returns all keys currently present, sorted.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.values))
}

// Version returns the mutation counter.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Snapshot returns a shallow copy of the map together with its version.
func (s *Store) Snapshot() (map[string]any, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values), s.version
}
