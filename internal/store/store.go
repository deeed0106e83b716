// Package store keeps the server's sessions and their capped event logs in
// memory. Nothing is persisted.
package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"serveturn/detector/internal/types"
)

var (
	ErrSessionExists  = errors.New("session already exists")
	ErrSessionUnknown = errors.New("session not found")
)

// MaxEvents caps the log of one session. Once exceeded the oldest entries are
// dropped and a single events_truncated marker is appended.
const MaxEvents = 200

type Store struct {
	mu        sync.RWMutex
	sessions  map[string]*types.Session
	events    map[string][]types.Event
	ingesting map[string]bool
}

func New() *Store {
	return &Store{
		sessions:  make(map[string]*types.Session),
		events:    make(map[string][]types.Event),
		ingesting: make(map[string]bool),
	}
}

func (s *Store) CreateSession(sess *types.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return ErrSessionExists
	}
	cp := *sess
	s.sessions[sess.ID] = &cp
	s.events[sess.ID] = []types.Event{}
	return nil
}

// GetSession returns a copy, or nil when the id is unknown.
func (s *Store) GetSession(id string) *types.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	cp := *sess
	return &cp
}

// FinishSession records the stop time and final counters.
func (s *Store) FinishSession(id string, at time.Time, stats types.Stats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionUnknown, id)
	}
	at = at.UTC()
	sess.StoppedAt = &at
	sess.Stats = &stats
	return nil
}

func (s *Store) AppendEvent(sessionID string, evt types.Event) types.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[sessionID] = append(s.events[sessionID], evt)
	if l := len(s.events[sessionID]); l > MaxEvents {
		keep := MaxEvents - 1
		dropped := l - keep
		s.events[sessionID] = append([]types.Event(nil), s.events[sessionID][dropped:]...)
		s.events[sessionID] = append(s.events[sessionID], types.Event{
			Time: evt.Time,
			Type: "events_truncated",
			Note: fmt.Sprintf("dropped %d, kept %d", dropped, keep),
		})
	}
	return evt
}

// ClearEvents empties a session log without forgetting the session.
func (s *Store) ClearEvents(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[sessionID]; ok {
		s.events[sessionID] = []types.Event{}
	}
}

func (s *Store) ListEvents(sessionID string) []types.Event {
	return s.RecentEvents(sessionID, 0)
}

// RecentEvents returns the last n events, or all of them when n <= 0.
func (s *Store) RecentEvents(sessionID string, n int) []types.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.events[sessionID]
	if n > 0 && len(src) > n {
		src = src[len(src)-n:]
	}
	out := make([]types.Event, len(src))
	copy(out, src)
	return out
}

// ListSessions returns copies ordered by start time.
func (s *Store) ListSessions() []types.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, *sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

func (s *Store) SetIngesting(sessionID string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.ingesting[sessionID] = true
		return
	}
	delete(s.ingesting, sessionID)
}

func (s *Store) IsIngesting(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ingesting[sessionID]
}
