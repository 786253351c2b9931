package upload

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ringside/ringside-agent/internal/backend"
	"github.com/ringside/ringside-agent/internal/state"
)

// ChunkedUploader posts the video to the backend's chunk endpoint in
// fixed-size pieces. No object storage is involved.
type ChunkedUploader struct {
	backend   backend.Client
	last      LastUploadStore
	chunkSize int64
	logger    *slog.Logger
}

func NewChunkedUploader(client backend.Client, last LastUploadStore, chunkSize int64, logger *slog.Logger) *ChunkedUploader {
	if chunkSize <= 0 {
		chunkSize = 8 << 20
	}
	return &ChunkedUploader{
		backend:   client,
		last:      last,
		chunkSize: chunkSize,
		logger:    logger,
	}
}

// Upload sends every piece in order. The job id is the first one the backend
// returns in a receipt, falling back to the client session id.
func (u *ChunkedUploader) Upload(ctx context.Context, v Video, onProgress ProgressFunc) (backend.Job, error) {
	sessionID := uuid.NewString()
	log := u.logger.With("session_id", sessionID, "size", v.Size)

	rc, err := v.Open()
	if err != nil {
		return backend.Job{}, &StorageError{Key: sessionID, Err: fmt.Errorf("open video: %w", err)}
	}
	defer rc.Close()

	progress := newProgressReporter(v.Size, onProgress)
	progress.report(0)

	var (
		jobID string
		sent  int64
		index int
	)
	buf := make([]byte, u.chunkSize)
	for {
		n, readErr := io.ReadFull(rc, buf)
		if n > 0 {
			receipt, err := u.backend.UploadChunk(ctx, sessionID, index, buf[:n])
			if err != nil {
				log.Error("chunk upload failed", "index", index, "error", err)
				return backend.Job{}, &StorageError{Key: sessionID, Err: fmt.Errorf("chunk %d: %w", index, err)}
			}
			if jobID == "" && receipt.JobID != "" {
				jobID = receipt.JobID
			}
			sent += int64(n)
			index++
			progress.bytes(sent)
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return backend.Job{}, &StorageError{Key: sessionID, Err: fmt.Errorf("read video: %w", readErr)}
		}
	}

	if index == 0 {
		return backend.Job{}, &StorageError{Key: sessionID, Err: fmt.Errorf("video %q is empty", v.Name)}
	}
	progress.report(100)

	if jobID == "" {
		jobID = sessionID
	}
	job := backend.Job{ID: jobID}

	if u.last != nil {
		if err := u.last.SaveLastUpload(ctx, state.LastUpload{JobID: job.ID}); err != nil {
			log.Warn("failed to persist last upload", "error", err)
		}
	}

	log.Info("video uploaded in chunks", "job_id", job.ID, "chunks", index)
	return job, nil
}
