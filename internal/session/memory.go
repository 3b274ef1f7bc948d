package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store with TTL-based expiry of abandoned
// sessions. Suitable for a single bot instance.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
	ttl      time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore creates a MemoryStore. Sessions untouched for longer than ttl
// are treated as abandoned and purged; ttl <= 0 disables expiry.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	m := &MemoryStore{
		sessions: make(map[int64]*Session),
		ttl:      ttl,
		stop:     make(chan struct{}),
	}
	if ttl > 0 {
		go m.janitor()
	}
	return m
}

// GetOrCreate returns a copy of the user's session, creating an idle one if absent.
func (m *MemoryStore) GetOrCreate(_ context.Context, userID int64) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[userID]
	if !ok || m.expired(s) {
		s = &Session{UserID: userID, Step: StepIdle, UpdatedAt: time.Now()}
		m.sessions[userID] = s
	}
	cp := *s
	return &cp, nil
}

// Get returns a copy of the user's session or ErrNotFound.
func (m *MemoryStore) Get(_ context.Context, userID int64) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[userID]
	if !ok || m.expired(s) {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

// Save stores a copy of the session and refreshes its expiry.
func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	cp := *s
	cp.UpdatedAt = time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.UserID] = &cp
	return nil
}

// Clear removes the user's session.
func (m *MemoryStore) Clear(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}

// Close stops the expiry janitor.
func (m *MemoryStore) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *MemoryStore) expired(s *Session) bool {
	return m.ttl > 0 && time.Since(s.UpdatedAt) > m.ttl
}

func (m *MemoryStore) janitor() {
	interval := m.ttl / 2
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.mu.Lock()
			for id, s := range m.sessions {
				if m.expired(s) {
					delete(m.sessions, id)
				}
			}
			m.mu.Unlock()
		}
	}
}
