package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"assignly/internal/config"
	"assignly/internal/model"
)

// MinIO implements FileStore using an S3-compatible backend (MinIO, AWS S3, etc.).
// It is safe for concurrent use by multiple goroutines.
type MinIO struct {
	client *minio.Client
	bucket string
	prefix string
}

var _ FileStore = (*MinIO)(nil)

// NewMinIO creates a new S3-compatible file store backed by MinIO.
// It validates connectivity and ensures the bucket exists (creates it if missing).
func NewMinIO(ctx context.Context, cfg config.MinIOConfig, prefix string) (*MinIO, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("minio credentials are required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("minio bucket is required")
	}

	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &MinIO{client: cli, bucket: cfg.Bucket, prefix: prefix}, nil
}

func (m *MinIO) CreateContainer(_ context.Context, label string) (string, error) {
	return containerID(m.prefix, label)
}

// Upload streams r to the bucket; nothing touches local disk.
func (m *MinIO) Upload(ctx context.Context, containerID, name string, r io.Reader, opt PutObjectOptions) (model.FileRef, error) {
	key, err := objectKey(containerID, name, uuid.NewString()[:8])
	if err != nil {
		return model.FileRef{}, err
	}
	putOpts := minio.PutObjectOptions{
		ContentType:  opt.ContentType,
		UserMetadata: opt.Metadata,
	}
	if _, err := m.client.PutObject(ctx, m.bucket, key, r, opt.Size, putOpts); err != nil {
		return model.FileRef{}, fmt.Errorf("put %s: %w", key, err)
	}
	u := *m.client.EndpointURL()
	u.Path = "/" + m.bucket + "/" + key
	return model.FileRef{Name: name, FileID: key, URL: u.String()}, nil
}

func (m *MinIO) ListContainer(ctx context.Context, containerID string) ([]string, error) {
	prefix, err := listPrefix(containerID)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0)
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// DeleteContainer batch-removes every object under the container prefix.
func (m *MinIO) DeleteContainer(ctx context.Context, containerID string) (int, error) {
	keys, err := m.ListContainer(ctx, containerID)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	objects := make(chan minio.ObjectInfo, len(keys))
	for _, k := range keys {
		objects <- minio.ObjectInfo{Key: k}
	}
	close(objects)

	failed := 0
	var firstErr error
	for rerr := range m.client.RemoveObjects(ctx, m.bucket, objects, minio.RemoveObjectsOptions{}) {
		failed++
		if firstErr == nil {
			firstErr = fmt.Errorf("remove %s: %w", rerr.ObjectName, rerr.Err)
		}
	}
	return len(keys) - failed, firstErr
}

// DeleteFile removes an object by key. S3 treats missing keys as deleted.
func (m *MinIO) DeleteFile(ctx context.Context, fileID string) error {
	return m.client.RemoveObject(ctx, m.bucket, fileID, minio.RemoveObjectOptions{})
}

// PresignGet generates a pre-signed URL for GET with the specified expiry.
func (m *MinIO) PresignGet(ctx context.Context, fileID string, expiry time.Duration) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, m.bucket, fileID, expiry, url.Values{})
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
