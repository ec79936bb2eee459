package file

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrNotFound is returned by Open when the bucket or object does not exist.
var ErrNotFound = errors.New("object not found")

// Storage provides read access to source images kept in S3-compatible storage.
type Storage struct {
	client *minio.Client
}

// NewStorage creates a new Storage instance connected to the specified MinIO server.
func NewStorage(endpoint, accessKey, secretKey string, useSSL bool) (*Storage, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio client: %w", err)
	}

	return &Storage{client: client}, nil
}

// Ping checks that the given bucket is reachable.
func (s *Storage) Ping(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to check if bucket exists: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket %q: %w", bucket, ErrNotFound)
	}
	return nil
}

// Open returns a reader over the object together with its size in bytes.
// The caller must close the reader.
func (s *Storage) Open(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, mapError(err)
	}

	// GetObject is lazy; Stat performs the request and surfaces missing objects.
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, 0, mapError(err)
	}

	return obj, info.Size, nil
}

func mapError(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("failed to load file: %w: %w", ErrNotFound, err)
	default:
		return fmt.Errorf("failed to load file: %w", err)
	}
}
