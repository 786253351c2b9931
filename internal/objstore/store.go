// Package objstore writes uploaded videos to object storage and reads them
// back for playback.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("object not found")

// ProgressFunc receives the cumulative number of bytes written.
type ProgressFunc func(written int64)

// Location identifies a stored object.
type Location struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
	URL    string `json:"url"`
}

type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string, onProgress ProgressFunc) (Location, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// ParseLocation recovers bucket and key from a stored object URL. It accepts
// GCS https and gs:// URLs, S3 virtual-hosted URLs and file:// URLs (whose
// bucket is the base directory's name and whose key is the remainder).
func ParseLocation(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parse location: %w", err)
	}

	switch u.Scheme {
	case "gs":
		bucket, key = u.Host, strings.TrimPrefix(u.Path, "/")
	case "file":
		dir, rest, ok := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/"+fileKeyMarker+"/")
		if !ok {
			return "", "", fmt.Errorf("file location %q has no key marker", raw)
		}
		bucket, key = "/"+dir, rest
	case "http", "https":
		switch {
		case u.Host == "storage.googleapis.com":
			bucket, key, _ = strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
		case strings.Contains(u.Host, ".s3.") || strings.HasSuffix(u.Host, ".s3.amazonaws.com"):
			bucket, _, _ = strings.Cut(u.Host, ".s3.")
			key = strings.TrimPrefix(u.Path, "/")
		default:
			return "", "", fmt.Errorf("unrecognised storage host %q", u.Host)
		}
	default:
		return "", "", fmt.Errorf("unsupported location scheme %q", u.Scheme)
	}

	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("location %q is missing bucket or key", raw)
	}
	return bucket, key, nil
}

// countingReader reports cumulative bytes read.
type countingReader struct {
	r          io.Reader
	n          int64
	onProgress ProgressFunc
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.n += int64(n)
		if c.onProgress != nil {
			c.onProgress(c.n)
		}
	}
	return n, err
}
