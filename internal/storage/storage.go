// Package storage is the media storage gateway: it moves staged local files
// to an object store and hands back durable public URLs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"picshare/internal/config"

	"github.com/google/uuid"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrForeignURL     = errors.New("url does not belong to this storage")
)

// MediaStore uploads staged files and deletes them again by URL.
// Implementations must be safe for concurrent use.
type MediaStore interface {
	Upload(ctx context.Context, file *Upload) (string, error)
	Delete(ctx context.Context, objectURL string) error
}

// New builds the media store selected by cfg.Driver.
func New(ctx context.Context, cfg config.StorageConfig) (MediaStore, error) {
	switch cfg.Driver {
	case config.StorageDriverLocal:
		return NewLocalStorage(cfg.Local.Path, cfg.Local.PublicURL)
	case config.StorageDriverMinIO:
		return NewMinIOStorage(ctx, cfg.MinIO)
	case config.StorageDriverS3:
		return NewS3Storage(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// objectKey builds a collision-free key that keeps the original extension.
func objectKey(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return "images/" + uuid.NewString() + ext
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}

// keyFromURL strips base from objectURL and returns the object key.
func keyFromURL(base, objectURL string) (string, error) {
	u, err := url.Parse(objectURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrForeignURL, err)
	}
	b, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", err
	}
	if u.Scheme != b.Scheme || u.Host != b.Host || !strings.HasPrefix(u.Path, b.Path+"/") {
		return "", ErrForeignURL
	}

	key := strings.TrimPrefix(u.Path, b.Path+"/")
	if key == "" || strings.Contains(key, "..") {
		return "", ErrForeignURL
	}
	return key, nil
}
