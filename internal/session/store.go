package session

import (
	"fmt"
	"sort"
	"sync"
)

// Store keeps live sessions keyed by chat id. Implementations must be safe
// for concurrent use by the event loop and the sweep.
type Store interface {
	Get(chatID string) (*Session, bool)
	List() []*Session
	Set(s *Session)
	Delete(chatID string) error
	Len() int

	// Update runs fn under the store lock. fn gets a copy of the current
	// session (nil when absent) and returns its replacement; nil deletes.
	// An error from fn leaves the store untouched and is returned as is.
	Update(chatID string, fn func(cur *Session) (*Session, error)) error
}

// MemoryStore is the in-process Store. A single mutex guards the whole map.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

// Get returns a copy of the session for chatID.
func (m *MemoryStore) Get(chatID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[chatID]
	return s.Clone(), ok
}

// List returns a snapshot of all sessions ordered by chat id.
func (m *MemoryStore) List() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out
}

// Set inserts or overwrites the session stored under s.ChatID.
func (m *MemoryStore) Set(s *Session) {
	if s == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ChatID] = s.Clone()
}

// Delete removes the session; ErrNotFound when there is none.
func (m *MemoryStore) Delete(chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[chatID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, chatID)
	}
	delete(m.sessions, chatID)
	return nil
}

// Len reports the number of live sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Update applies a read-modify-write sequence atomically.
func (m *MemoryStore) Update(chatID string, fn func(cur *Session) (*Session, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := fn(m.sessions[chatID].Clone())
	if err != nil {
		return err
	}
	if next == nil {
		delete(m.sessions, chatID)
		return nil
	}
	if next.ChatID != chatID {
		return fmt.Errorf("session: update for %s returned session %s", chatID, next.ChatID)
	}
	m.sessions[chatID] = next.Clone()
	return nil
}
