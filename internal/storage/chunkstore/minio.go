package chunkstore

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOConfig holds object storage settings.
type MinIOConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Prefix          string
	UseSSL          bool
}

// MinIOStore uploads chunks to an S3-compatible bucket.
type MinIOStore struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinIOStore connects to MinIO and creates the bucket if it is missing.
func NewMinIOStore(ctx context.Context, cfg MinIOConfig) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &MinIOStore{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// ObjectName returns the object key used for a chunk key.
func (s *MinIOStore) ObjectName(key string) string {
	return ObjectName(s.prefix, key)
}

// Put uploads wav and returns an s3:// location.
func (s *MinIOStore) Put(ctx context.Context, key string, wav []byte) (string, error) {
	object := s.ObjectName(key)
	_, err := s.client.PutObject(ctx, s.bucket, object, bytes.NewReader(wav), int64(len(wav)), minio.PutObjectOptions{
		ContentType: "audio/wav",
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload chunk: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, object), nil
}

// ObjectName joins prefix and key into an object key.
func ObjectName(prefix, key string) string {
	if prefix == "" {
		return path.Clean(key)
	}
	return path.Join(prefix, key)
}
