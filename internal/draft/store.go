// Package draft keeps the unsaved create-note form state of each browser session.
package draft

import (
	"context"
	"errors"
	"sync"

	"notehub/internal/model"
)

// ErrNoDraft is returned by Store.Get when the session has no draft.
var ErrNoDraft = errors.New("no draft")

// Store persists drafts keyed by session ID.
type Store interface {
	Get(ctx context.Context, sessionID string) (model.Draft, error)
	Save(ctx context.Context, sessionID string, d model.Draft) error
	Clear(ctx context.Context, sessionID string) error
}

// MemoryStore keeps drafts in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	drafts map[string]model.Draft
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{drafts: make(map[string]model.Draft)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Get(_ context.Context, sessionID string) (model.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.drafts[sessionID]
	if !ok {
		return model.Draft{}, ErrNoDraft
	}
	return d, nil
}

func (s *MemoryStore) Save(_ context.Context, sessionID string, d model.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[sessionID] = d
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, sessionID)
	return nil
}
