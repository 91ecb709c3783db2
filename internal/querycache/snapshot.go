package querycache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// SaveSnapshot writes the dehydrated cache to path.
func (c *Cache) SaveSnapshot(path string) error {
	st, err := c.Dehydrate()
	if err != nil {
		return err
	}
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".querycache-*")
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// LoadSnapshot hydrates the cache from path. A missing file is not an error.
func (c *Cache) LoadSnapshot(path string) (int, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read snapshot: %w", err)
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return 0, fmt.Errorf("decode snapshot: %w", err)
	}
	c.Hydrate(st)
	return len(st.Queries), nil
}
