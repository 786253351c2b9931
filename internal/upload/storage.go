package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/h2non/filetype"

	"github.com/ringside/ringside-agent/internal/backend"
	"github.com/ringside/ringside-agent/internal/objstore"
	"github.com/ringside/ringside-agent/internal/state"
)

const sniffLen = 262

// StorageUploader writes the video to object storage, then registers the
// stored key with the backend.
type StorageUploader struct {
	store   objstore.Store
	backend backend.Client
	last    LastUploadStore
	logger  *slog.Logger
	now     func() time.Time
}

func NewStorageUploader(store objstore.Store, client backend.Client, last LastUploadStore, logger *slog.Logger) *StorageUploader {
	return &StorageUploader{
		store:   store,
		backend: client,
		last:    last,
		logger:  logger,
		now:     time.Now,
	}
}

func (u *StorageUploader) Upload(ctx context.Context, v Video, onProgress ProgressFunc) (backend.Job, error) {
	key := StorageKey(v.Name, u.now())
	log := u.logger.With("key", key, "size", v.Size)

	rc, err := v.Open()
	if err != nil {
		return backend.Job{}, &StorageError{Key: key, Err: fmt.Errorf("open video: %w", err)}
	}
	defer rc.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(rc, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return backend.Job{}, &StorageError{Key: key, Err: fmt.Errorf("read video header: %w", err)}
	}
	head = head[:n]

	contentType, err := sniffVideo(head)
	if err != nil {
		return backend.Job{}, err
	}

	progress := newProgressReporter(v.Size, onProgress)
	progress.report(0)

	body := io.MultiReader(bytes.NewReader(head), rc)
	loc, err := u.store.Put(ctx, key, body, v.Size, contentType, progress.bytes)
	if err != nil {
		log.Error("storage write failed", "error", err)
		return backend.Job{}, &StorageError{Key: key, Err: err}
	}
	progress.report(100)

	job, err := u.backend.Register(ctx, backend.RegisterRequest{
		S3Key:   key,
		FileKey: key,
		S3Path:  loc.URL,
	})
	if err != nil {
		log.Error("backend registration failed", "location", loc.URL, "error", err)
		return backend.Job{}, &RegistrationError{Key: key, Location: loc, Err: err}
	}
	job.Location = loc.URL

	if u.last != nil {
		if err := u.last.SaveLastUpload(ctx, state.LastUpload{VideoURL: loc.URL, JobID: job.ID}); err != nil {
			log.Warn("failed to persist last upload", "error", err)
		}
	}

	log.Info("video uploaded", "job_id", job.ID, "content_type", contentType)
	return job, nil
}

func sniffVideo(head []byte) (string, error) {
	kind, err := filetype.Match(head)
	if err != nil || kind == filetype.Unknown {
		return "", fmt.Errorf("%w: unrecognised content", ErrNotVideo)
	}
	if !filetype.IsVideo(head) {
		return "", fmt.Errorf("%w: detected %s", ErrNotVideo, kind.MIME.Value)
	}
	return kind.MIME.Value, nil
}
