package minio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/jobpipe/internal/ciutil"
	"github.com/phrazzld/jobpipe/internal/domain"
	"github.com/phrazzld/jobpipe/internal/store"
	"github.com/phrazzld/jobpipe/internal/store/storetest"
)

func TestBlobStore(t *testing.T) {
	endpoint := ciutil.RequireBackend(t, ciutil.EnvTestMinioEndpoint)

	s, err := New(Options{
		Endpoint:  endpoint,
		AccessKey: envOr(ciutil.EnvTestMinioAccessKey, "minioadmin"),
		SecretKey: envOr(ciutil.EnvTestMinioSecretKey, "minioadmin"),
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	bucket := "jobpipe-test-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	require.NoError(t, s.EnsureBucket(context.Background(), bucket))

	storetest.RunBlobSuite(t, func(t *testing.T) (store.BlobStore, string) {
		return s, bucket
	})
}

func TestMapError(t *testing.T) {
	t.Parallel()

	notFound := miniogo.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}
	assert.ErrorIs(t, mapError("get", notFound), store.ErrObjectNotFound)

	noBucket := miniogo.ErrorResponse{Code: "NoSuchBucket", StatusCode: http.StatusNotFound}
	assert.ErrorIs(t, mapError("get", noBucket), domain.ErrStorage)

	transient := errors.New("dial tcp: connection refused")
	err := mapError("put", transient)
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.ErrorIs(t, err, transient)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
