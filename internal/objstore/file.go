package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const fileKeyMarker = "_objects"

// FileStore keeps objects under a local directory. It backs fake mode and
// development setups without a bucket.
type FileStore struct {
	root   string
	logger *slog.Logger
}

func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	root, err := filepath.Abs(filepath.Join(dir, fileKeyMarker))
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create object dir: %w", err)
	}
	return &FileStore{root: root, logger: logger}, nil
}

func (s *FileStore) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

func (s *FileStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string, onProgress ProgressFunc) (Location, error) {
	dst, err := s.path(key)
	if err != nil {
		return Location{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return Location{}, fmt.Errorf("create object dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".put-*")
	if err != nil {
		return Location{}, fmt.Errorf("create temp object: %w", err)
	}
	defer os.Remove(tmp.Name())

	src := &countingReader{r: contextReader{ctx: ctx, r: r}, onProgress: onProgress}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return Location{}, fmt.Errorf("write object %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return Location{}, fmt.Errorf("close object %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return Location{}, fmt.Errorf("commit object %s: %w", key, err)
	}

	s.logger.Info("object stored", "key", key, "bytes", src.n, "content_type", contentType)
	return Location{
		Bucket: filepath.Dir(s.root),
		Key:    key,
		URL:    "file://" + filepath.ToSlash(s.root) + "/" + key,
	}, nil
}

func (s *FileStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
