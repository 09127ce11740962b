// Package blob stores attachment payloads in S3-compatible object storage.
// The rest of the system only ever sees opaque locators.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Store wraps a MinIO client bound to a single bucket. A nil *Store is a
// valid disabled store: Put reports ErrDisabled and callers keep the
// attachment metadata without a locator.
type Store struct {
	client *minio.Client
	bucket string
}

var ErrDisabled = fmt.Errorf("blob: store not configured")

// NewFromEnv builds a Store from JURALIS_S3_* variables, or returns
// (nil, nil) when JURALIS_S3_ENDPOINT is unset so deployments without
// object storage still run.
func NewFromEnv(ctx context.Context) (*Store, error) {
	endpoint := os.Getenv("JURALIS_S3_ENDPOINT")
	if endpoint == "" {
		return nil, nil
	}
	bucket := os.Getenv("JURALIS_S3_BUCKET")
	if bucket == "" {
		bucket = "juralis-attachments"
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds: credentials.NewStaticV4(
			os.Getenv("JURALIS_S3_ACCESS_KEY"),
			os.Getenv("JURALIS_S3_SECRET_KEY"),
			"",
		),
		Secure: os.Getenv("JURALIS_S3_USE_SSL") == "true",
	})
	if err != nil {
		return nil, fmt.Errorf("blob: connect %s: %w", endpoint, err)
	}
	s := &Store{client: client, bucket: bucket}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func New(client *minio.Client, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

func (s *Store) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("blob: bucket check %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("blob: create bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// Put uploads data under key and returns an s3:// locator.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if s == nil {
		return "", ErrDisabled
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("blob: put %s: %w", key, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

// Get fetches an object previously stored by Put.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if s == nil {
		return nil, ErrDisabled
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("blob: get %s: %w", key, err)
	}
	defer obj.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(obj); err != nil {
		return nil, fmt.Errorf("blob: read %s: %w", key, err)
	}
	return buf.Bytes(), nil
}
