package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStore stores objects in a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
	logger *slog.Logger
}

// NewGCSStore creates a client for bucket. A non-empty endpoint points the
// client at an emulator without credentials.
func NewGCSStore(ctx context.Context, bucket, endpoint string, logger *slog.Logger) (*GCSStore, error) {
	var opts []option.ClientOption
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint), option.WithoutAuthentication())
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	return &GCSStore{client: client, bucket: bucket, logger: logger}, nil
}

func (s *GCSStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string, onProgress ProgressFunc) (Location, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if onProgress != nil {
		w.ProgressFunc = onProgress
	}

	written, err := io.Copy(w, r)
	if err != nil {
		// Cancelling before Close aborts the resumable upload.
		cancel()
		_ = w.Close()
		return Location{}, fmt.Errorf("write gs://%s/%s after %d bytes: %w", s.bucket, key, written, err)
	}
	// Close finalizes the upload; the object does not exist until it succeeds.
	if err := w.Close(); err != nil {
		return Location{}, fmt.Errorf("finalize gs://%s/%s: %w", s.bucket, key, err)
	}
	if onProgress != nil {
		onProgress(written)
	}

	s.logger.Info("object stored", "bucket", s.bucket, "key", key, "bytes", written, "expected", size)
	return Location{Bucket: s.bucket, Key: key, URL: GCSURL(s.bucket, key)}, nil
}

func (s *GCSStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read gs://%s/%s: %w", s.bucket, key, err)
	}
	return r, nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}

// GCSURL renders the public https URL for an object.
func GCSURL(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return "https://storage.googleapis.com/" + bucket + "/" + strings.Join(segments, "/")
}
