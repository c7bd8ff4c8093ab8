package repo

import (
	"context"
	"sync"

	"github.com/xxxsen/famlearn/internal/model"
	appErr "github.com/xxxsen/famlearn/internal/pkg/errors"
)

// MemoryUploadSessionStore keeps upload sessions in a map. Values are copied
// on the way in and out.
type MemoryUploadSessionStore struct {
	mu       sync.Mutex
	sessions map[string]model.UploadSession
}

func NewMemoryUploadSessionStore() *MemoryUploadSessionStore {
	return &MemoryUploadSessionStore{sessions: make(map[string]model.UploadSession)}
}

func (m *MemoryUploadSessionStore) GetUploadSession(ctx context.Context, fileID string) (*model.UploadSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[fileID]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	s.Received = append([]int(nil), s.Received...)
	return &s, nil
}

func (m *MemoryUploadSessionStore) SaveUploadSession(ctx context.Context, s *model.UploadSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	cp.Received = append([]int(nil), s.Received...)
	if old, ok := m.sessions[s.FileID]; ok {
		cp.Ctime = old.Ctime
	}
	m.sessions[s.FileID] = cp
	return nil
}

func (m *MemoryUploadSessionStore) DeleteUploadSession(ctx context.Context, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, fileID)
	return nil
}

func (m *MemoryUploadSessionStore) DeleteStaleUploadSessions(ctx context.Context, before int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if s.Status != model.UploadMerged && s.Mtime < before {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

type MemoryAuthStore struct {
	mu       sync.Mutex
	sessions map[string]model.AuthSession
	attempts map[string]model.LoginAttempt
}

func NewMemoryAuthStore() *MemoryAuthStore {
	return &MemoryAuthStore{
		sessions: make(map[string]model.AuthSession),
		attempts: make(map[string]model.LoginAttempt),
	}
}

func (m *MemoryAuthStore) CreateSession(ctx context.Context, s *model.AuthSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; ok {
		return appErr.ErrConflict
	}
	m.sessions[s.ID] = *s
	return nil
}

func (m *MemoryAuthStore) GetSession(ctx context.Context, id string) (*model.AuthSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return &s, nil
}

func (m *MemoryAuthStore) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemoryAuthStore) DeleteExpiredSessions(ctx context.Context, now int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if s.Expire < now {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryAuthStore) GetAttempt(ctx context.Context, clientKey string) (*model.LoginAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[clientKey]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return &a, nil
}

func (m *MemoryAuthStore) SaveAttempt(ctx context.Context, a *model.LoginAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[a.ClientKey] = *a
	return nil
}

func (m *MemoryAuthStore) DeleteAttempt(ctx context.Context, clientKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.attempts, clientKey)
	return nil
}
