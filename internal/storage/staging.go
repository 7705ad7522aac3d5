package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

var ErrNotAnImage = errors.New("file is not an image")

// Upload is a file staged on local disk, waiting to be forwarded to the
// media store.
type Upload struct {
	Path        string
	Filename    string
	ContentType string
	Size        int64
}

// Remove deletes the staged file. It is safe to call more than once.
func (u *Upload) Remove() error {
	if u == nil || u.Path == "" {
		return nil
	}
	err := os.Remove(u.Path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

type Stager struct {
	dir string
}

func NewStager(dir string) (*Stager, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, err
	}
	return &Stager{dir: dir}, nil
}

// Stage copies src into a temporary file. Content that does not sniff as an
// image is rejected with ErrNotAnImage and leaves nothing behind.
func (s *Stager) Stage(src io.Reader, filename string) (*Upload, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	head = head[:n]

	contentType := http.DetectContentType(head)
	if !strings.HasPrefix(contentType, "image/") {
		return nil, ErrNotAnImage
	}

	tmp, err := os.CreateTemp(s.dir, "upload-*"+filepath.Ext(filepath.Base(filename)))
	if err != nil {
		return nil, err
	}
	defer tmp.Close()

	size, err := io.Copy(tmp, io.MultiReader(bytes.NewReader(head), src))
	if err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("failed to stage upload: %w", err)
	}

	return &Upload{
		Path:        tmp.Name(),
		Filename:    filepath.Base(filename),
		ContentType: contentType,
		Size:        size,
	}, nil
}
