// Package files stores task attachments in MinIO-compatible object storage.
package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"taskboard/api/internal/logging"
)

// ErrNotConfigured is returned when no object storage endpoint is set;
// attachment endpoints degrade instead of failing the whole process.
var ErrNotConfigured = errors.New("object storage not configured")

// MaxAttachmentSize caps uploads at 10 MiB.
const MaxAttachmentSize = 10 << 20

type Service struct {
	client *minio.Client
	bucket string
}

// NewService connects to MinIO and ensures the bucket exists. An empty
// endpoint returns a nil service; callers treat nil as not configured.
func NewService(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Service, error) {
	if endpoint == "" {
		return nil, nil
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to object storage: %w", err)
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(checkCtx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(checkCtx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
		logging.Component("files").WithField("bucket", bucket).Info("created attachment bucket")
	}

	return &Service{client: client, bucket: bucket}, nil
}

// Upload streams one attachment into the bucket under key.
func (s *Service) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	if s == nil {
		return ErrNotConfigured
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// Download opens the stored object for streaming to the client. The
// caller must close the returned reader.
func (s *Service) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	if s == nil {
		return nil, ErrNotConfigured
	}
	object, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	return object, nil
}

// Remove deletes the stored object. Removing an absent object is not an
// error; the metadata row is the source of truth.
func (s *Service) Remove(ctx context.Context, key string) error {
	if s == nil {
		return ErrNotConfigured
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}
