package api

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/ringside/ringside-agent/internal/backend"
	"github.com/ringside/ringside-agent/internal/upload"
)

const (
	uploadStateRunning = "uploading"
	uploadStateDone    = "done"
	uploadStateFailed  = "failed"

	maxUploadMemory = 32 << 20
)

// uploadTracker remembers the latest upload so /status can show a live
// progress bar while POST /uploads is still in flight.
type uploadTracker struct {
	mu      sync.Mutex
	current *UploadStatus
}

func (t *uploadTracker) begin(name string) *UploadStatus {
	st := &UploadStatus{Name: name, State: uploadStateRunning}
	t.mu.Lock()
	t.current = st
	t.mu.Unlock()
	return st
}

func (t *uploadTracker) progress(st *UploadStatus, pct int) {
	t.mu.Lock()
	st.Percent = pct
	t.mu.Unlock()
}

func (t *uploadTracker) finish(st *UploadStatus, job backend.Job, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		st.State = uploadStateFailed
		st.Error = err.Error()
		return
	}
	st.State = uploadStateDone
	st.Percent = 100
	st.JobID = job.ID
}

func (t *uploadTracker) snapshot() *UploadStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return nil
	}
	cp := *t.current
	return &cp
}

// uploadHandler stores the multipart "file" field, sends it with the
// configured uploader and starts tracking the returned job.
func uploadHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid multipart body", "BAD_REQUEST")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			WriteError(w, http.StatusBadRequest, "file is required", "BAD_REQUEST")
			return
		}
		defer file.Close()

		dir := filepath.Join(cfg.UploadDir, uuid.NewString())
		if err := os.MkdirAll(dir, 0755); err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to stage upload", "INTERNAL_ERROR")
			return
		}
		defer os.RemoveAll(dir)

		path := filepath.Join(dir, upload.SanitizeName(header.Filename))
		if err := stageFile(path, file); err != nil {
			cfg.Logger.Error("stage upload", "error", err)
			WriteError(w, http.StatusInternalServerError, "failed to stage upload", "INTERNAL_ERROR")
			return
		}

		video, err := upload.FileVideo(path)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to stage upload", "INTERNAL_ERROR")
			return
		}
		video.Name = header.Filename

		st := cfg.uploads.begin(header.Filename)
		job, err := cfg.Uploader.Upload(r.Context(), video, func(pct int) {
			cfg.uploads.progress(st, pct)
		})
		cfg.uploads.finish(st, job, err)
		if err != nil {
			writeUploadError(cfg, w, err)
			return
		}

		snap := trackJob(cfg, job)
		WriteJSON(w, http.StatusCreated, UploadResponse{
			JobID:    job.ID,
			Location: job.Location,
			Job:      snap,
		})
	}
}

func stageFile(path string, src io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeUploadError(cfg ServerConfig, w http.ResponseWriter, err error) {
	var (
		storageErr *upload.StorageError
		regErr     *upload.RegistrationError
	)
	switch {
	case errors.Is(err, upload.ErrNotVideo):
		WriteError(w, http.StatusUnsupportedMediaType, err.Error(), "NOT_VIDEO")
	case errors.As(err, &regErr):
		cfg.Logger.Error("backend registration failed after store", "location", regErr.Location, "error", regErr.Err)
		WriteJSON(w, http.StatusBadGateway, UploadErrorResponse{
			ErrorResponse: ErrorResponse{Error: err.Error(), Code: "REGISTRATION_ERROR"},
			Location:      regErr.Location.URL,
		})
	case errors.As(err, &storageErr):
		cfg.Logger.Error("upload storage failed", "key", storageErr.Key, "error", storageErr.Err)
		WriteError(w, http.StatusBadGateway, err.Error(), "STORAGE_ERROR")
	default:
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}
