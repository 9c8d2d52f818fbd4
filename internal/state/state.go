// Package state holds the process-wide view of the current waystation.
//
// Writers reserve a version with Begin before they start a fetch and hand it
// back to Commit with the result. A commit is dropped when a newer version
// has already been committed, so a slow response never overwrites a fresher
// one.
package state

import (
	"sync"

	"github.com/waystation/wayside/internal/way"
)

// Store is a versioned holder for the current waystation.
type Store struct {
	mu      sync.RWMutex
	current way.Waystation
	loaded  bool
	applied uint64
	issued  uint64
}

// New returns an empty Store.
func New() *Store {
	return &Store{}
}

// Begin reserves the next version number.
func (s *Store) Begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	return s.issued
}

// Commit stores ws under version unless a newer version is already held.
// It reports whether ws was applied.
func (s *Store) Commit(version uint64, ws way.Waystation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if version <= s.applied {
		return false
	}
	s.current = ws
	s.loaded = true
	s.applied = version
	return true
}

// Set stores ws as the newest value.
func (s *Store) Set(ws way.Waystation) uint64 {
	v := s.Begin()
	s.Commit(v, ws)
	return v
}

// Get returns the held waystation, its version and whether anything has
// been stored yet.
func (s *Store) Get() (way.Waystation, uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.applied, s.loaded
}

// Version returns the version of the held waystation.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.applied
}
