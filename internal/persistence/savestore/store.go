// Package savestore persists the single kingdom save. FileStore keeps a
// zstd snapshot on disk; SQLStore keeps the JSON document in sqlite or
// postgres.
package savestore

import (
	"context"
	"errors"

	"kingdomkeep.app/internal/persistence/snapshot"
)

// ErrNotFound is returned by Load when no save exists.
var ErrNotFound = errors.New("save not found")

type Store interface {
	Load(ctx context.Context) (snapshot.DocumentV1, error)
	Save(ctx context.Context, doc snapshot.DocumentV1) error
	Delete(ctx context.Context) error
	Close() error
}
