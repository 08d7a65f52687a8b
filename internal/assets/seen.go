// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package assets

import "sync"

// Seen is a caller-owned set of URLs already requested. LoadMany skips URLs
// in the set unless they are failed or in flight, and adds every URL it issues.
type Seen struct {
	mu sync.Mutex
	m  map[string]struct{}
}

// NewSeen returns an empty set.
func NewSeen() *Seen {
	return &Seen{m: make(map[string]struct{})}
}

// Has reports whether url was already issued. A nil set has nothing.
func (s *Seen) Has(url string) bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.m[url]
	return ok
}

// Add records urls as issued.
func (s *Seen) Add(urls ...string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range urls {
		s.m[u] = struct{}{}
	}
}

// Len is the number of recorded URLs.
func (s *Seen) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
