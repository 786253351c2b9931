package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ringside/ringside-agent/internal/backend"
	"github.com/ringside/ringside-agent/internal/processing"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	if cfg.uploads == nil {
		cfg.uploads = &uploadTracker{}
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist())

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))

		r.Post("/recordings", startRecordingHandler(cfg))
		r.Delete("/recordings", stopRecordingHandler(cfg))
		r.Get("/recordings/summary", recordingSummaryHandler(cfg))

		r.Post("/uploads", uploadHandler(cfg))

		r.Get("/jobs", listJobsHandler(cfg))
		r.Get("/jobs/{id}", getJobHandler(cfg))
		r.Get("/jobs/{id}/events", jobEventsHandler(cfg))
		r.Post("/jobs/{id}/tracking", resumeTrackingHandler(cfg))
		r.Delete("/jobs/{id}/tracking", cancelTrackingHandler(cfg))
		r.Get("/jobs/{id}/analysis", analysisHandler(cfg))
		r.Get("/jobs/{id}/content", contentHandler(cfg))
		r.Put("/jobs/{id}/selection", selectionHandler(cfg))
		r.Put("/jobs/{id}/category", categoryHandler(cfg))
		r.Get("/jobs/{id}/chat", chatHistoryHandler(cfg))
		r.Post("/jobs/{id}/chat", sendChatHandler(cfg))
		r.Get("/jobs/{id}/export.edl", exportEDLHandler(cfg))

		r.Get("/state/last", lastUploadHandler(cfg))
		r.Get("/playback/last", playbackLastHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:   "ok",
			Version:  cfg.Version,
			UptimeS:  uptime,
			DeviceID: cfg.DeviceID,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{State: "idle"}

		jobs := cfg.Manager.List()
		for i := len(jobs) - 1; i >= 0; i-- {
			j := jobs[i]
			if j.State == processing.StateTracking {
				if resp.ActiveJob == nil {
					resp.ActiveJob = &j
				}
				resp.JobsTracking++
			}
			if j.State == processing.StateFailed && resp.LastError == "" {
				resp.LastError = j.Error
			}
		}
		if resp.JobsTracking > 0 {
			resp.State = "processing"
		}

		if up := cfg.uploads.snapshot(); up != nil {
			resp.Upload = up
			if up.State == uploadStateRunning {
				resp.State = "uploading"
			}
		}

		if cfg.Recorder != nil {
			resp.Recording = cfg.Recorder.Recording()
			resp.ChunksCaptured = len(cfg.Recorder.Chunks())
			if resp.Recording {
				resp.State = "recording"
			}
		}

		if cfg.Doctor != nil {
			if caps, err := cfg.Doctor.Get(r.Context()); err == nil {
				resp.Capture = caps
			}
		}

		if resp.LastError != "" && resp.State == "idle" {
			resp.State = "error"
		}

		if last, err := cfg.Repository.LastUpload(r.Context()); err == nil && !last.Empty() {
			resp.LastUpload = &last
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func listJobsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs := cfg.Manager.List()
		if jobs == nil {
			jobs = []processing.Job{}
		}
		WriteJSON(w, http.StatusOK, JobsResponse{Jobs: jobs})
	}
}

func getJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := cfg.Manager.Get(chi.URLParam(r, "id"))
		if !ok {
			WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
			return
		}
		WriteJSON(w, http.StatusOK, job)
	}
}

// resumeTrackingHandler polls a known job again from the split phase. Any
// open review session for it is dropped since its result is replaced.
func resumeTrackingHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		job, ok := cfg.Manager.Get(id)
		if !ok {
			WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
			return
		}
		snap := trackJob(cfg, backend.Job{ID: job.ID, Location: job.Location})
		WriteJSON(w, http.StatusAccepted, snap)
	}
}

func trackJob(cfg ServerConfig, job backend.Job) processing.Job {
	if cfg.Sessions != nil {
		cfg.Sessions.Close(job.ID)
	}
	return cfg.Manager.Track(job)
}

func cancelTrackingHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := cfg.Manager.Cancel(id); err != nil {
			if errors.Is(err, processing.ErrNotTracking) {
				WriteError(w, http.StatusNotFound, err.Error(), "NOT_TRACKING")
				return
			}
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		job, _ := cfg.Manager.Get(id)
		WriteJSON(w, http.StatusOK, job)
	}
}

func lastUploadHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		last, err := cfg.Repository.LastUpload(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to read state", "INTERNAL_ERROR")
			return
		}
		if last.Empty() {
			WriteError(w, http.StatusNotFound, "nothing uploaded yet", "NOT_FOUND")
			return
		}
		WriteJSON(w, http.StatusOK, last)
	}
}

func playbackLastHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		last, err := cfg.Repository.LastUpload(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to read state", "INTERNAL_ERROR")
			return
		}
		if last.VideoURL == "" {
			WriteError(w, http.StatusNotFound, "no stored video to play", "NOT_FOUND")
			return
		}

		path, err := cfg.Cache.Fetch(r.Context(), last.VideoURL)
		if err != nil {
			cfg.Logger.Error("fetch video for playback", "location", last.VideoURL, "error", err)
			WriteError(w, http.StatusBadGateway, "failed to fetch video", "STORAGE_ERROR")
			return
		}

		if err := cfg.PlaybackServer.ServeFile(w, r, path); err != nil {
			cfg.Logger.Error("playback error", "error", err)
			WriteError(w, http.StatusInternalServerError, "playback failed", "INTERNAL_ERROR")
		}
	}
}

// writeBackendError maps a backend failure onto the agent's error shape.
func writeBackendError(w http.ResponseWriter, err error) {
	var apiErr *backend.APIError
	switch {
	case errors.Is(err, processing.ErrNotReady):
		WriteError(w, http.StatusConflict, err.Error(), "NOT_READY")
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound:
		WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
	case errors.As(err, &apiErr) && apiErr.IsRetryable():
		WriteError(w, http.StatusServiceUnavailable, err.Error(), "BACKEND_UNAVAILABLE")
	default:
		WriteError(w, http.StatusBadGateway, err.Error(), "BACKEND_ERROR")
	}
}
