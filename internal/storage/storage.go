package storage

import (
	"context"
	"io"
)

// FileStorage is a blob store keyed by slash-separated paths. It knows
// nothing about tasks, projects, or authorization.
type FileStorage interface {
	Save(ctx context.Context, key string, r io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}
