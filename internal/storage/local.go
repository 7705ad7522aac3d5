package storage

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage keeps objects on the local filesystem and serves them through
// Handler under publicURL.
type LocalStorage struct {
	basePath  string
	publicURL string
}

func NewLocalStorage(basePath, publicURL string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, os.ModePerm); err != nil {
		return nil, err
	}
	return &LocalStorage{basePath: basePath, publicURL: publicURL}, nil
}

func (ls *LocalStorage) getPathFromKey(key string) string {
	return filepath.Join(ls.basePath, filepath.FromSlash(key))
}

func (ls *LocalStorage) Upload(ctx context.Context, file *Upload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	src, err := os.Open(file.Path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	key := objectKey(file.Filename)
	filePath := ls.getPathFromKey(key)

	if err := os.MkdirAll(filepath.Dir(filePath), os.ModePerm); err != nil {
		return "", err
	}

	dst, err := os.Create(filePath)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(filePath)
		return "", err
	}

	return joinURL(ls.publicURL, key), nil
}

func (ls *LocalStorage) Delete(ctx context.Context, objectURL string) error {
	key, err := keyFromURL(ls.publicURL, objectURL)
	if err != nil {
		return err
	}

	err = os.Remove(ls.getPathFromKey(key))
	if os.IsNotExist(err) {
		return ErrObjectNotFound
	}

	return err
}

// Handler serves stored objects; mount it with the public URL's path
// stripped.
func (ls *LocalStorage) Handler() http.Handler {
	return http.FileServer(http.Dir(ls.basePath))
}

// MountPath is the URL path prefix Handler expects to be stripped.
func (ls *LocalStorage) MountPath() string {
	u, err := url.Parse(ls.publicURL)
	if err != nil || strings.Trim(u.Path, "/") == "" {
		return "/media"
	}
	return "/" + strings.Trim(u.Path, "/")
}
