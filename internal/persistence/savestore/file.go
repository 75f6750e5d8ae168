package savestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"kingdomkeep.app/internal/persistence/snapshot"
)

const FileName = "save.snap.zst"

type FileStore struct {
	path string
}

// NewFileStore stores the save under dataDir.
func NewFileStore(dataDir string) *FileStore {
	return &FileStore{path: filepath.Join(dataDir, FileName)}
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(ctx context.Context) (snapshot.DocumentV1, error) {
	if err := ctx.Err(); err != nil {
		return snapshot.DocumentV1{}, err
	}
	doc, _, err := snapshot.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return snapshot.DocumentV1{}, ErrNotFound
	}
	if err != nil {
		return snapshot.DocumentV1{}, fmt.Errorf("read %s: %w", s.path, err)
	}
	return doc, nil
}

func (s *FileStore) Save(ctx context.Context, doc snapshot.DocumentV1) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := snapshot.WriteFile(s.path, doc); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}

func (s *FileStore) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *FileStore) Close() error { return nil }
