package sessions

import (
	"context"
	"sync"
	"time"
)

var _ Repo = (*MemoryRepo)(nil)

type MemoryRepo struct {
	sessions map[string]Session
	lock     sync.RWMutex
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{sessions: make(map[string]Session)}
}

func (m *MemoryRepo) Upsert(_ context.Context, session Session) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.sessions[session.ID] = session
	return nil
}

func (m *MemoryRepo) Get(_ context.Context, sessionID string) (Session, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return Session{}, ErrNotFound
	}
	return session, nil
}

func (m *MemoryRepo) Delete(_ context.Context, sessionID string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

func (m *MemoryRepo) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	removed := 0
	for id, session := range m.sessions {
		if session.Expired(now) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored sessions, expired or not.
func (m *MemoryRepo) Len() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.sessions)
}
