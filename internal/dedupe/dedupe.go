// Package dedupe provides run-scoped, in-memory "seen" sets.
package dedupe

import "sync"

// Set remembers keys for the lifetime of a run. It is never persisted.
// The zero value is ready to use and safe for concurrent use.
type Set[K comparable] struct {
	mu   sync.Mutex
	seen map[K]struct{}
}

// Add reports true only the first time k is added.
func (s *Set[K]) Add(k K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seen == nil {
		s.seen = make(map[K]struct{})
	}
	if _, ok := s.seen[k]; ok {
		return false
	}
	s.seen[k] = struct{}{}
	return true
}

// Has reports whether k was added.
func (s *Set[K]) Has(k K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[k]
	return ok
}

func (s *Set[K]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// CourseKey identifies a course row on a catalog page.
type CourseKey struct {
	CourseID string
	URL      string
}
