package remotestore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type inMemObject struct {
	content  []byte
	revision int
	modified time.Time
}

// InMemStore is a process-local Store used by tests and local development.
// The Fail* hooks let callers inject remote failures.
type InMemStore struct {
	mu      sync.RWMutex
	objects map[string]inMemObject
	nextRev int

	// FailList, when set, is returned by List.
	FailList error
	// FailDownload maps a key to the error its Download returns.
	FailDownload map[string]error
	// FailUpload, when set, is returned by Upload.
	FailUpload error

	calls map[string]int
}

func NewInMemStore() *InMemStore {
	return &InMemStore{
		objects:      make(map[string]inMemObject),
		FailDownload: make(map[string]error),
		calls:        make(map[string]int),
	}
}

func (s *InMemStore) count(op string) {
	s.calls[op]++
}

// Calls reports how many times an operation was invoked.
func (s *InMemStore) Calls(op string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[op]
}

func (s *InMemStore) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("list")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.FailList != nil {
		return nil, s.FailList
	}
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *InMemStore) Download(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("download")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := s.FailDownload[key]; ok {
		return nil, err
	}
	obj, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	content := make([]byte, len(obj.content))
	copy(content, obj.content)
	return content, nil
}

func (s *InMemStore) Upload(ctx context.Context, key string, content []byte, mediaType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count("upload")
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.FailUpload != nil {
		return s.FailUpload
	}
	stored := make([]byte, len(content))
	copy(stored, content)
	s.nextRev++
	s.objects[key] = inMemObject{
		content:  stored,
		revision: s.nextRev,
		modified: time.Now().UTC(),
	}
	return nil
}

func (s *InMemStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, ok := s.objects[key]
	return ok, nil
}

func (s *InMemStore) Revision(ctx context.Context, key string) (ObjectRevision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return ObjectRevision{}, err
	}
	obj, ok := s.objects[key]
	if !ok {
		return ObjectRevision{}, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return ObjectRevision{
		ETag:         fmt.Sprintf("\"%d\"", obj.revision),
		LastModified: obj.modified,
		Size:         int64(len(obj.content)),
	}, nil
}
