package history

import (
	"context"
	"sync"
)

// DefaultMaxTurns bounds how many prior exchanges a session keeps.
const DefaultMaxTurns = 5

// Turn is one user message and the reply it received. Immutable once stored.
type Turn struct {
	User string `json:"user"`
	Bot  string `json:"bot"`
}

// Store keeps a bounded, ordered history of turns per session. Reads of an
// unknown session return an empty history, never an error. Appends beyond
// the bound evict the oldest turn.
type Store interface {
	Append(ctx context.Context, sessionID string, turn Turn) error
	Get(ctx context.Context, sessionID string) ([]Turn, error)
}

// MemoryStore is the process-local default backend. History is lost on
// restart, which is acceptable: it is a conversational convenience, not a
// source of truth.
type MemoryStore struct {
	mu       sync.Mutex
	maxTurns int
	sessions map[string][]Turn
}

// NewMemoryStore creates an in-memory store. A non-positive maxTurns falls
// back to DefaultMaxTurns.
func NewMemoryStore(maxTurns int) *MemoryStore {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}

	return &MemoryStore{
		maxTurns: maxTurns,
		sessions: make(map[string][]Turn),
	}
}

func (s *MemoryStore) Append(_ context.Context, sessionID string, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := append(s.sessions[sessionID], turn)
	if len(turns) > s.maxTurns {
		turns = turns[len(turns)-s.maxTurns:]
	}
	s.sessions[sessionID] = turns

	return nil
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := s.sessions[sessionID]
	out := make([]Turn, len(turns))
	copy(out, turns)

	return out, nil
}
