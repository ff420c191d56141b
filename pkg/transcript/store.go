package transcript

import (
	"sync"
	"time"
)

// DefaultSessionTTL is how long an idle session survives before the lazy
// sweep drops it.
const DefaultSessionTTL = 24 * time.Hour

// Store holds every live session in the process, keyed by session ID.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
}

func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Store{sessions: make(map[string]*Session), ttl: ttl}
}

// Get returns the session for id, or nil when none exists.
func (st *Store) Get(id string) *Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.sessions[id]
}

// GetOrCreate returns the session for id, creating it when absent. Expired
// idle sessions are swept on the way in.
func (st *Store) GetOrCreate(id string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sweepLocked()
	if s, ok := st.sessions[id]; ok {
		return s
	}
	s := NewSession(id)
	st.sessions[id] = s
	return s
}

// Clear resets the session's state and removes it from the store.
func (st *Store) Clear(id string) {
	st.mu.Lock()
	s, ok := st.sessions[id]
	if ok {
		delete(st.sessions, id)
	}
	st.mu.Unlock()
	if ok {
		s.Clear()
	}
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

func (st *Store) sweepLocked() {
	cutoff := time.Now().Add(-st.ttl)
	for id, s := range st.sessions {
		if s.Streaming() {
			continue
		}
		if s.LastSeen().Before(cutoff) {
			delete(st.sessions, id)
		}
	}
}
