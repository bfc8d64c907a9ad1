// Package inmemory provides the default conversation store. History lives
// in process memory and is lost on restart.
package inmemory

import (
	"context"
	"sync"

	"github.com/touchlinehq/touchline/session"
)

type Store struct {
	mu       sync.RWMutex
	sessions map[string][]session.Turn
	maxTurns int
}

func New(maxTurns int) *Store {
	return &Store{
		sessions: make(map[string][]session.Turn),
		maxTurns: maxTurns,
	}
}

func (s *Store) AddTurn(_ context.Context, sessionID string, turn session.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := append(s.sessions[sessionID], turn)
	if cap := s.maxTurns * 2; len(turns) > cap {
		turns = turns[len(turns)-cap:]
	}
	s.sessions[sessionID] = turns
	return nil
}

func (s *Store) History(_ context.Context, sessionID string) ([]session.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.sessions[sessionID]
	out := make([]session.Turn, len(turns))
	copy(out, turns)
	return out, nil
}
