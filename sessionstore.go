package hearth

import (
	"context"
	"sync"
)

// SessionStore persists serialized agent threads across turns, keyed by
// session and agent. It is the long-lived counterpart of SessionCache: the
// cache remembers what was said, the store remembers each agent's private
// state.
type SessionStore interface {
	// Thread returns the stored blob for (sessionID, agentID), or ok=false.
	Thread(ctx context.Context, sessionID, agentID string) ([]byte, bool, error)
	// SaveThread stores the blob, replacing any previous one.
	SaveThread(ctx context.Context, sessionID, agentID string, data []byte) error
}

// MemorySessionStore is an in-process SessionStore.
type MemorySessionStore struct {
	mu      sync.RWMutex
	threads map[threadKey][]byte
}

type threadKey struct {
	sessionID string
	agentID   string
}

// NewMemorySessionStore builds an empty in-memory store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{threads: make(map[threadKey][]byte)}
}

func (s *MemorySessionStore) Thread(_ context.Context, sessionID, agentID string) ([]byte, bool, error) {
	s.mu.RLock()
	data, ok := s.threads[threadKey{sessionID, agentID}]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

func (s *MemorySessionStore) SaveThread(_ context.Context, sessionID, agentID string, data []byte) error {
	s.mu.Lock()
	s.threads[threadKey{sessionID, agentID}] = append([]byte(nil), data...)
	s.mu.Unlock()
	return nil
}

var _ SessionStore = (*MemorySessionStore)(nil)

// NopSessionStore discards writes and never finds a thread. Agents start a
// fresh thread each turn.
type NopSessionStore struct{}

func (NopSessionStore) Thread(context.Context, string, string) ([]byte, bool, error) {
	return nil, false, nil
}

func (NopSessionStore) SaveThread(context.Context, string, string, []byte) error { return nil }

var _ SessionStore = NopSessionStore{}
