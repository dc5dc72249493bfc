package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryEntry struct {
	data    []byte
	session *Session
	expires time.Time
}

// MemoryManager keeps sessions and cached lists in process memory. The
// server uses it in the "test" environment.
type MemoryManager struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	byUser  map[uuid.UUID]map[string]struct{}
	now     func() time.Time
}

func NewMemoryManager() *MemoryManager {
	return &MemoryManager{
		entries: make(map[string]memoryEntry),
		byUser:  make(map[uuid.UUID]map[string]struct{}),
		now:     time.Now,
	}
}

func (m *MemoryManager) get(key string) (memoryEntry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !e.expires.IsZero() && m.now().After(e.expires) {
		delete(m.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (m *MemoryManager) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

func (m *MemoryManager) CreateSession(_ context.Context, s *Session, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	m.entries[sessionKey(s.ID)] = memoryEntry{session: &cp, expires: m.expiry(ttl)}

	if m.byUser[s.UserID] == nil {
		m.byUser[s.UserID] = make(map[string]struct{})
	}
	m.byUser[s.UserID][s.ID] = struct{}{}

	return nil
}

func (m *MemoryManager) GetSession(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.get(sessionKey(id))
	if !ok || e.session == nil {
		return nil, ErrSessionNotFound
	}

	cp := *e.session
	return &cp, nil
}

func (m *MemoryManager) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, sessionKey(id))
	return nil
}

func (m *MemoryManager) DeleteUserSessions(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id := range m.byUser[userID] {
		delete(m.entries, sessionKey(id))
	}
	delete(m.byUser, userID)

	return nil
}

func (m *MemoryManager) GetList(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.get(key)
	if !ok {
		return nil, false, nil
	}
	return e.data, true, nil
}

func (m *MemoryManager) SetList(_ context.Context, key string, data []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memoryEntry{data: append([]byte(nil), data...), expires: m.expiry(ttl)}
	return nil
}

func (m *MemoryManager) Invalidate(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range keys {
		delete(m.entries, k)
	}
	return nil
}

func (m *MemoryManager) Close() {}
