package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/ringside/ringside-agent/internal/backend"
	"github.com/ringside/ringside-agent/internal/state"
)

var ErrNoRecording = errors.New("no recording session")

// RecordingSink sends live capture chunks to the backend as they are cut.
// Begin opens a session, Send forwards one chunk and Finish closes the
// session and fetches the backend's summary of everything it received.
type RecordingSink struct {
	backend backend.Client
	last    LastUploadStore
	logger  *slog.Logger

	mu        sync.Mutex
	sessionID string
	jobID     string
	sent      int
	failed    int
	summary   json.RawMessage
}

func NewRecordingSink(client backend.Client, last LastUploadStore, logger *slog.Logger) *RecordingSink {
	return &RecordingSink{backend: client, last: last, logger: logger}
}

// Begin starts a new session and returns its id.
func (s *RecordingSink) Begin() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = uuid.NewString()
	s.jobID = ""
	s.sent = 0
	s.failed = 0
	s.summary = nil
	s.logger.Info("recording session opened", "session_id", s.sessionID)
	return s.sessionID
}

// Send forwards chunk index of the current session.
func (s *RecordingSink) Send(ctx context.Context, index int, data []byte) error {
	s.mu.Lock()
	sessionID := s.sessionID
	s.mu.Unlock()
	if sessionID == "" {
		return ErrNoRecording
	}

	receipt, err := s.backend.UploadChunk(ctx, sessionID, index, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failed++
		return &StorageError{Key: fmt.Sprintf("%s/%d", sessionID, index), Err: err}
	}
	s.sent++
	if s.jobID == "" && receipt.JobID != "" {
		s.jobID = receipt.JobID
	}
	return nil
}

// Finish ends the session. The returned job is the recording's analysis job;
// its id falls back to the session id when no receipt named one.
func (s *RecordingSink) Finish(ctx context.Context) (backend.Job, json.RawMessage, error) {
	s.mu.Lock()
	sessionID, jobID, sent, failed := s.sessionID, s.jobID, s.sent, s.failed
	s.mu.Unlock()
	if sessionID == "" {
		return backend.Job{}, nil, ErrNoRecording
	}
	if jobID == "" {
		jobID = sessionID
	}
	log := s.logger.With("session_id", sessionID, "job_id", jobID)

	if sent == 0 {
		log.Warn("recording ended without any delivered chunk", "failed", failed)
		return backend.Job{}, nil, fmt.Errorf("%w: nothing was delivered", ErrNoRecording)
	}

	summary, err := s.backend.FinalSummary(ctx)
	if err != nil {
		return backend.Job{}, nil, fmt.Errorf("final summary: %w", err)
	}

	s.mu.Lock()
	s.summary = summary
	s.mu.Unlock()

	job := backend.Job{ID: jobID}
	if s.last != nil {
		if err := s.last.SaveLastUpload(ctx, state.LastUpload{JobID: job.ID}); err != nil {
			log.Warn("failed to persist last upload", "error", err)
		}
	}

	log.Info("recording delivered", "chunks", sent, "failed", failed)
	return job, summary, nil
}

// Summary returns the summary fetched by the last Finish.
func (s *RecordingSink) Summary() json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary
}
