// Package session keeps conversation state between turns, keyed by session id.
package session

import (
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lox/groundwater/internal/models"
)

type entry struct {
	turn    sync.Mutex // held for the duration of one turn
	state   models.SessionState
	touched time.Time
}

// Store is an in-memory session store. Turns for the same session are
// serialized through Lock; different sessions proceed independently.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*entry
	clock    clockwork.Clock
}

func NewStore(clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{
		sessions: make(map[string]*entry),
		clock:    clock,
	}
}

func (s *Store) entry(id string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		e = &entry{touched: s.clock.Now()}
		s.sessions[id] = e
	}
	return e
}

// Get returns a copy of the stored state.
func (s *Store) Get(id string) (models.SessionState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok || e.state.ID == "" {
		return models.SessionState{}, false
	}
	return clone(e.state), true
}

// Put stores state under its own id.
func (s *Store) Put(state models.SessionState) {
	e := s.entry(state.ID)
	s.mu.Lock()
	defer s.mu.Unlock()
	e.state = clone(state)
	e.touched = s.clock.Now()
}

// Delete forgets a session.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Lock serializes turns for one session. Call the returned func to release.
func (s *Store) Lock(id string) func() {
	e := s.entry(id)
	e.turn.Lock()
	return e.turn.Unlock
}

// Len returns the number of stored sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep removes sessions idle for longer than maxIdle and returns how many were removed.
func (s *Store) Sweep(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	removed := 0
	for id, e := range s.sessions {
		if now.Sub(e.touched) > maxIdle {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

func clone(st models.SessionState) models.SessionState {
	st.History = slices.Clone(st.History)
	if st.Dataset != nil {
		ds := models.Dataset{Rows: slices.Clone(st.Dataset.Rows)}
		st.Dataset = &ds
	}
	return st
}
