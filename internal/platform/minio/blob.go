// Package minio implements the blob store on MinIO or any S3-compatible
// object store.
package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/phrazzld/jobpipe/internal/store"
)

// Options configures the connection to the object store.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
}

// BlobStore is a store.BlobStore backed by an S3-compatible service.
type BlobStore struct {
	client *miniogo.Client
	region string
	logger *slog.Logger
}

var _ store.BlobStore = (*BlobStore)(nil)

// New creates a client for the configured endpoint. No request is made
// until the first operation.
func New(opts Options, logger *slog.Logger) (*BlobStore, error) {
	client, err := miniogo.New(opts.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client for %s: %w", opts.Endpoint, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BlobStore{
		client: client,
		region: opts.Region,
		logger: logger.With("component", "minio_blob_store"),
	}, nil
}

// EnsureBucket implements store.BlobStore.
func (s *BlobStore) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return store.NewStorageError("ensure_bucket", "bucket", err)
	}
	if exists {
		return nil
	}

	err = s.client.MakeBucket(ctx, bucket, miniogo.MakeBucketOptions{Region: s.region})
	if err != nil {
		// Another process may have created it between the two calls.
		code := miniogo.ToErrorResponse(err).Code
		if code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists" {
			return nil
		}
		return store.NewStorageError("ensure_bucket", "bucket", err)
	}
	s.logger.Info("created bucket", "bucket", bucket)
	return nil
}

// Put implements store.BlobStore.
func (s *BlobStore) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)),
		miniogo.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return mapError("put", err)
	}
	return nil
}

// Get implements store.BlobStore.
func (s *BlobStore) Get(ctx context.Context, bucket, key string) (*store.Object, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, mapError("get", err)
	}
	defer func() { _ = obj.Close() }()

	// GetObject is lazy; Stat issues the request and surfaces NoSuchKey.
	info, err := obj.Stat()
	if err != nil {
		return nil, mapError("get", err)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapError("get", err)
	}
	return &store.Object{Data: data, ContentType: info.ContentType}, nil
}

// Delete implements store.BlobStore. S3 deletes succeed for missing keys, so
// the object is checked first to report ErrObjectNotFound.
func (s *BlobStore) Delete(ctx context.Context, bucket, key string) error {
	if _, err := s.client.StatObject(ctx, bucket, key, miniogo.StatObjectOptions{}); err != nil {
		return mapError("delete", err)
	}
	if err := s.client.RemoveObject(ctx, bucket, key, miniogo.RemoveObjectOptions{}); err != nil {
		return mapError("delete", err)
	}
	return nil
}

// Ping checks that the endpoint answers by listing buckets.
func (s *BlobStore) Ping(ctx context.Context) error {
	if _, err := s.client.ListBuckets(ctx); err != nil {
		return store.NewStorageError("ping", "object_store", err)
	}
	return nil
}

func mapError(op string, err error) error {
	if isNotFound(err) {
		return store.ErrObjectNotFound
	}
	return store.NewStorageError(op, "object", err)
}

// isNotFound reports a missing key. A missing bucket is a deployment fault
// and stays a storage error.
func isNotFound(err error) bool {
	var resp miniogo.ErrorResponse
	if !errors.As(err, &resp) {
		return false
	}
	if resp.Code == "NoSuchKey" {
		return true
	}
	// HEAD responses carry no body, only the status.
	return resp.Code == "" && resp.StatusCode == http.StatusNotFound
}
