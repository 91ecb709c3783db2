package draft

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"notehub/internal/model"
)

var ErrSessionRequired = errors.New("session id is required")

// Service applies form keystrokes to the stored draft. Updates and clears
// for one session are serialized so concurrent field saves do not overwrite
// each other.
type Service struct {
	store Store

	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	sync.Mutex
	refs int
}

func NewService(store Store) *Service {
	return &Service{store: store, locks: make(map[string]*sessionLock)}
}

func (s *Service) lock(sessionID string) func() {
	s.mu.Lock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		s.locks[sessionID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		s.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(s.locks, sessionID)
		}
		s.mu.Unlock()
	}
}

// Current returns the session's draft, or the initial draft when none exists.
func (s *Service) Current(ctx context.Context, sessionID string) (model.Draft, error) {
	if sessionID == "" {
		return model.InitialDraft(), nil
	}
	d, err := s.store.Get(ctx, sessionID)
	if errors.Is(err, ErrNoDraft) {
		return model.InitialDraft(), nil
	}
	if err != nil {
		return model.InitialDraft(), err
	}
	return d, nil
}

// Update merges one field into the draft and stores the result.
func (s *Service) Update(ctx context.Context, sessionID, field, value string) (model.Draft, error) {
	if sessionID == "" {
		return model.Draft{}, ErrSessionRequired
	}
	unlock := s.lock(sessionID)
	defer unlock()

	cur, err := s.Current(ctx, sessionID)
	if err != nil {
		return model.Draft{}, err
	}
	next, err := cur.Merge(field, value)
	if err != nil {
		return model.Draft{}, err
	}
	if err := s.store.Save(ctx, sessionID, next); err != nil {
		return model.Draft{}, fmt.Errorf("save draft: %w", err)
	}
	return next, nil
}

// Clear drops the session's draft.
func (s *Service) Clear(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	unlock := s.lock(sessionID)
	defer unlock()
	return s.store.Clear(ctx, sessionID)
}
