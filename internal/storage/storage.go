// Package storage holds the file storage collaborator used for order uploads.
// Backends are object stores (MinIO/S3 or Google Cloud Storage); a container
// is a key prefix, so creating one needs no round trip.
// Implementations must avoid using local disk and rely on streaming I/O only.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"

	"assignly/internal/model"
)

// ErrInvalidContainer is returned when a container id is empty or escapes the prefix.
var ErrInvalidContainer = errors.New("invalid container id")

// PutObjectOptions define optional parameters for uploading objects.
// Size should be the exact number of bytes if known; if unknown, set to -1 and the implementation
// will buffer/chunk as supported by the backend.
type PutObjectOptions struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// FileStore is the external file storage used by order submission and cleanup.
// Every call may block on the network and must be bounded by ctx.
type FileStore interface {
	// CreateContainer returns the id of a new, empty container for label.
	CreateContainer(ctx context.Context, label string) (string, error)
	// Upload stores r under the container and returns its reference.
	Upload(ctx context.Context, containerID, name string, r io.Reader, opt PutObjectOptions) (model.FileRef, error)
	// ListContainer returns the file ids currently stored under the container.
	ListContainer(ctx context.Context, containerID string) ([]string, error)
	// DeleteContainer removes every file under the container and reports how many were removed.
	DeleteContainer(ctx context.Context, containerID string) (int, error)
	// DeleteFile removes one file. Deleting a missing file is not an error.
	DeleteFile(ctx context.Context, fileID string) error
	// PresignGet returns a time-limited download URL for a file.
	PresignGet(ctx context.Context, fileID string, expiry time.Duration) (string, error)
}

// containerID joins the configured prefix and a label into a container id.
func containerID(prefix, label string) (string, error) {
	label = sanitize(label)
	if label == "" {
		return "", ErrInvalidContainer
	}
	if prefix == "" {
		return label, nil
	}
	return strings.Trim(prefix, "/") + "/" + label, nil
}

// listPrefix is the key prefix that matches exactly the files of a container.
func listPrefix(containerID string) (string, error) {
	c := strings.Trim(containerID, "/")
	if c == "" || c == "." || strings.Contains(c, "..") {
		return "", ErrInvalidContainer
	}
	return c + "/", nil
}

// objectKey builds a unique key for name inside the container.
func objectKey(containerID, name, unique string) (string, error) {
	p, err := listPrefix(containerID)
	if err != nil {
		return "", err
	}
	base := sanitize(path.Base(name))
	if base == "" {
		base = "file"
	}
	return p + unique + "-" + base, nil
}

// sanitize keeps keys printable and free of path separators.
func sanitize(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\':
			return '_'
		case r < 0x20 || r == 0x7f:
			return -1
		}
		return r
	}, s)
}
