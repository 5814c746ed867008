package remotestore

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("object not found")

// ObjectRevision is the metadata of a stored object at the time of the call.
type ObjectRevision struct {
	ETag         string
	LastModified time.Time
	Size         int64
}

// Store is the authoritative dataset of submission files and the vote log.
// Keys are slash separated paths. Upload replaces an object atomically.
type Store interface {
	List(ctx context.Context, prefix string) ([]string, error)
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, content []byte, mediaType string) error
	Exists(ctx context.Context, key string) (bool, error)
	Revision(ctx context.Context, key string) (ObjectRevision, error)
}
