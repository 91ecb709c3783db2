package draft

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"notehub/internal/model"
	"notehub/internal/storage"
)

const draftPrefix = "drafts/"

// ObjectStore keeps one JSON object per session in an S3-compatible bucket,
// so drafts survive restarts and are shared between web replicas.
type ObjectStore struct {
	store storage.Storage
}

func NewObjectStore(store storage.Storage) *ObjectStore {
	return &ObjectStore{store: store}
}

var _ Store = (*ObjectStore)(nil)

func objectKey(sessionID string) string {
	return draftPrefix + sessionID + ".json"
}

func (s *ObjectStore) Get(ctx context.Context, sessionID string) (model.Draft, error) {
	rc, _, err := s.store.Get(ctx, objectKey(sessionID))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return model.Draft{}, ErrNoDraft
		}
		return model.Draft{}, fmt.Errorf("get draft: %w", err)
	}
	defer rc.Close()

	var d model.Draft
	if err := json.NewDecoder(rc).Decode(&d); err != nil {
		return model.Draft{}, fmt.Errorf("decode draft: %w", err)
	}
	return d, nil
}

func (s *ObjectStore) Save(ctx context.Context, sessionID string, d model.Draft) error {
	b, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	_, err = s.store.Put(ctx, objectKey(sessionID), bytes.NewReader(b), storage.PutObjectOptions{
		Size:        int64(len(b)),
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("put draft: %w", err)
	}
	return nil
}

func (s *ObjectStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.store.Delete(ctx, objectKey(sessionID)); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}
