// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package state

import "sync"

// Store serializes patches and fans snapshots out to subscribers.
type Store struct {
	mu     sync.RWMutex
	cur    State
	subs   map[int]chan State
	nextID int
}

func NewStore(initial State) *Store {
	return &Store{cur: initial.Clone(), subs: make(map[int]chan State)}
}

// Apply runs p against the current state and returns the new snapshot.
// A nil patch is a no-op.
func (s *Store) Apply(p Patch) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p != nil {
		s.cur = p.apply(s.cur.Clone())
	}
	snap := s.cur.Clone()
	for _, ch := range s.subs {
		// Slow subscribers miss intermediate snapshots rather than block writers.
		select {
		case ch <- snap:
		default:
		}
	}
	return snap
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.Clone()
}

// Subscribe returns a channel receiving snapshots after each Apply and a
// function that unsubscribes and closes it.
func (s *Store) Subscribe(buffer int) (<-chan State, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan State, buffer)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Metadata returns the game catalogue.
func (s *Store) Metadata() []Game {
	return s.Snapshot().Games
}

// Installed returns installed items.
func (s *Store) Installed() []InstalledItem {
	return s.Snapshot().Installed
}

// HasMetadata reports whether the catalogue has arrived.
func (s *Store) HasMetadata() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.HasMetadata()
}
