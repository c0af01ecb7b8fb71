// Package storage persists uploaded blobs (avatars, chat attachments) in an
// S3-compatible object store.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	BucketAvatars     = "avatars"
	BucketAttachments = "chat-attachments"
)

// BlobStore is the subset of object-store operations the API needs.
type BlobStore interface {
	Upload(ctx context.Context, bucket, objectName string, r io.Reader, size int64, contentType string) (string, error)
}

type MinioStore struct {
	client   *minio.Client
	endpoint string
	useSSL   bool
}

func NewMinioStore(endpoint, accessKey, secretKey string, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}

	s := &MinioStore{client: client, endpoint: endpoint, useSSL: useSSL}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for _, bucket := range []string{BucketAvatars, BucketAttachments} {
		if err := s.ensureBucket(ctx, bucket); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *MinioStore) ensureBucket(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", bucket, err)
	}
	if exists {
		return nil
	}

	if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %q: %w", bucket, err)
	}

	return nil
}

// Upload stores the object and returns its public URL.
func (s *MinioStore) Upload(ctx context.Context, bucket, objectName string, r io.Reader, size int64, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, bucket, objectName, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put object %q: %w", objectName, err)
	}

	return s.publicURL(bucket, objectName), nil
}

func (s *MinioStore) publicURL(bucket, objectName string) string {
	scheme := "http"
	if s.useSSL {
		scheme = "https"
	}

	u := url.URL{
		Scheme: scheme,
		Host:   s.endpoint,
		Path:   "/" + bucket + "/" + objectName,
	}

	return u.String()
}
