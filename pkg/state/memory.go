// Package state provides subscription store implementations behind the
// chat.Store interface: an in-memory store for tests and single-process
// setups, and a SQLite-backed store that survives restarts.
package state

import (
	"context"
	"sync"
)

// MemoryStore keeps subscription flags in a mutex-guarded map. Writes are
// visible to subsequent reads immediately, which satisfies the store's
// read-your-writes requirement trivially.
type MemoryStore struct {
	mu   sync.RWMutex
	subs map[string]bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[string]bool)}
}

func key(platform, conversationID string) string {
	return platform + "/" + conversationID
}

// IsSubscribed reports the subscription flag for a conversation.
func (s *MemoryStore) IsSubscribed(_ context.Context, platform, conversationID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subs[key(platform, conversationID)], nil
}

// SetSubscribed records the subscription flag. Setting the same value twice
// is a no-op.
func (s *MemoryStore) SetSubscribed(_ context.Context, platform, conversationID string, subscribed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if subscribed {
		s.subs[key(platform, conversationID)] = true
	} else {
		delete(s.subs, key(platform, conversationID))
	}
	return nil
}

// Count returns the number of subscribed conversations, for the status API.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
