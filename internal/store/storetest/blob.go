package storetest

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/jobpipe/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunBlobSuite exercises the store.BlobStore contract. newStore must return a
// store in which the returned bucket name is usable but empty.
func RunBlobSuite(t *testing.T, newStore func(t *testing.T) (store.BlobStore, string)) {
	t.Run("ensure bucket is idempotent", func(t *testing.T) {
		s, bucket := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.EnsureBucket(ctx, bucket))
		require.NoError(t, s.EnsureBucket(ctx, bucket))
	})

	t.Run("put get delete", func(t *testing.T) {
		s, bucket := newStore(t)
		ctx := context.Background()
		key := uuid.NewString() + "/vocals.wav"

		require.NoError(t, s.Put(ctx, bucket, key, []byte("bytes"), "audio/wav"))

		obj, err := s.Get(ctx, bucket, key)
		require.NoError(t, err)
		assert.Equal(t, []byte("bytes"), obj.Data)
		assert.Equal(t, "audio/wav", obj.ContentType)

		require.NoError(t, s.Delete(ctx, bucket, key))
		_, err = s.Get(ctx, bucket, key)
		assert.ErrorIs(t, err, store.ErrObjectNotFound)
	})

	t.Run("put overwrites", func(t *testing.T) {
		s, bucket := newStore(t)
		ctx := context.Background()
		key := uuid.NewString() + ".input"

		require.NoError(t, s.Put(ctx, bucket, key, []byte("one"), "text/plain"))
		require.NoError(t, s.Put(ctx, bucket, key, []byte("two"), "text/plain"))

		obj, err := s.Get(ctx, bucket, key)
		require.NoError(t, err)
		assert.Equal(t, []byte("two"), obj.Data)
	})

	t.Run("missing objects", func(t *testing.T) {
		s, bucket := newStore(t)
		ctx := context.Background()

		_, err := s.Get(ctx, bucket, "nope")
		assert.ErrorIs(t, err, store.ErrObjectNotFound)
		assert.ErrorIs(t, s.Delete(ctx, bucket, "nope"), store.ErrObjectNotFound)
	})

	t.Run("empty object", func(t *testing.T) {
		s, bucket := newStore(t)
		ctx := context.Background()
		key := uuid.NewString()

		require.NoError(t, s.Put(ctx, bucket, key, []byte{}, "application/octet-stream"))
		obj, err := s.Get(ctx, bucket, key)
		require.NoError(t, err)
		assert.Empty(t, obj.Data)
	})
}
