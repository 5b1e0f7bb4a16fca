package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"assignly/internal/config"
	"assignly/internal/model"
)

// GCS implements FileStore on a Google Cloud Storage bucket.
type GCS struct {
	client *gcs.Client
	bucket *gcs.BucketHandle
	name   string
	prefix string
}

var _ FileStore = (*GCS)(nil)

// NewGCS creates a client using application default credentials.
func NewGCS(ctx context.Context, cfg config.GCSConfig, prefix string) (*GCS, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCS{client: client, bucket: client.Bucket(cfg.Bucket), name: cfg.Bucket, prefix: prefix}, nil
}

// Close releases the underlying client.
func (g *GCS) Close() error {
	return g.client.Close()
}

func (g *GCS) CreateContainer(_ context.Context, label string) (string, error) {
	return containerID(g.prefix, label)
}

func (g *GCS) Upload(ctx context.Context, containerID, name string, r io.Reader, opt PutObjectOptions) (model.FileRef, error) {
	key, err := objectKey(containerID, name, uuid.NewString()[:8])
	if err != nil {
		return model.FileRef{}, err
	}
	w := g.bucket.Object(key).NewWriter(ctx)
	w.ContentType = opt.ContentType
	w.Metadata = opt.Metadata
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return model.FileRef{}, fmt.Errorf("write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return model.FileRef{}, fmt.Errorf("finalize %s: %w", key, err)
	}
	u := url.URL{Scheme: "https", Host: "storage.googleapis.com", Path: "/" + g.name + "/" + key}
	return model.FileRef{Name: name, FileID: key, URL: u.String()}, nil
}

func (g *GCS) ListContainer(ctx context.Context, containerID string) ([]string, error) {
	prefix, err := listPrefix(containerID)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0)
	it := g.bucket.Objects(ctx, &gcs.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}

// DeleteContainer deletes the listed objects one by one; GCS has no batch
// delete in the Go client.
func (g *GCS) DeleteContainer(ctx context.Context, containerID string) (int, error) {
	keys, err := g.ListContainer(ctx, containerID)
	if err != nil {
		return 0, err
	}
	removed := 0
	var firstErr error
	for _, k := range keys {
		if err := g.DeleteFile(ctx, k); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		removed++
	}
	return removed, firstErr
}

func (g *GCS) DeleteFile(ctx context.Context, fileID string) error {
	err := g.bucket.Object(fileID).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("delete %s: %w", fileID, err)
	}
	return nil
}

func (g *GCS) PresignGet(_ context.Context, fileID string, expiry time.Duration) (string, error) {
	return g.bucket.SignedURL(fileID, &gcs.SignedURLOptions{
		Method:  "GET",
		Expires: time.Now().Add(expiry),
	})
}
