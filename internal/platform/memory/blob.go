package memory

import (
	"context"
	"sync"

	"github.com/phrazzld/jobpipe/internal/store"
)

// BlobStore is a map-backed store.BlobStore.
type BlobStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string]store.Object
}

var _ store.BlobStore = (*BlobStore)(nil)

// NewBlobStore returns an empty blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{buckets: make(map[string]map[string]store.Object)}
}

// EnsureBucket implements store.BlobStore.
func (s *BlobStore) EnsureBucket(ctx context.Context, bucket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[bucket]; !ok {
		s.buckets[bucket] = make(map[string]store.Object)
	}
	return nil
}

// Put implements store.BlobStore. Writing to a bucket that was never ensured
// is a storage error, matching object stores that reject unknown buckets.
func (s *BlobStore) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return store.NewStorageError("put", "object", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	objects, ok := s.buckets[bucket]
	if !ok {
		return store.NewStorageError("put", "object", errNoSuchBucket(bucket))
	}
	objects[key] = store.Object{Data: append([]byte(nil), data...), ContentType: contentType}
	return nil
}

// Get implements store.BlobStore.
func (s *BlobStore) Get(ctx context.Context, bucket, key string) (*store.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.buckets[bucket][key]
	if !ok {
		return nil, store.ErrObjectNotFound
	}
	return &store.Object{Data: append([]byte(nil), obj.Data...), ContentType: obj.ContentType}, nil
}

// Delete implements store.BlobStore.
func (s *BlobStore) Delete(ctx context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	objects := s.buckets[bucket]
	if _, ok := objects[key]; !ok {
		return store.ErrObjectNotFound
	}
	delete(objects, key)
	return nil
}

// Len returns the number of objects in bucket.
func (s *BlobStore) Len(bucket string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buckets[bucket])
}

type errNoSuchBucket string

func (e errNoSuchBucket) Error() string {
	return "bucket " + string(e) + " does not exist"
}
