package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ringside/ringside-agent/internal/capture"
)

func startRecordingHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Recorder == nil || cfg.NewSource == nil {
			WriteError(w, http.StatusServiceUnavailable, "recording is not available", "SOURCE_UNAVAILABLE")
			return
		}

		err := cfg.Recorder.Start(r.Context(), cfg.NewSource())
		switch {
		case errors.Is(err, capture.ErrAlreadyRecording):
			WriteError(w, http.StatusConflict, err.Error(), "ALREADY_RECORDING")
			return
		case errors.Is(err, capture.ErrSourceUnavailable):
			cfg.Logger.Warn("capture device unavailable", "error", err)
			if cfg.Doctor != nil {
				cfg.Doctor.Invalidate()
			}
			WriteError(w, http.StatusServiceUnavailable, err.Error(), "SOURCE_UNAVAILABLE")
			return
		case err != nil:
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusCreated, RecordingResponse{Recording: true, Chunks: []capture.Chunk{}})
	}
}

// stopRecordingHandler returns once the final chunk has been handed off.
func stopRecordingHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Recorder == nil {
			WriteError(w, http.StatusServiceUnavailable, "recording is not available", "SOURCE_UNAVAILABLE")
			return
		}

		if err := cfg.Recorder.Stop(r.Context()); err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusOK, RecordingResponse{
			Recording: cfg.Recorder.Recording(),
			Chunks:    cfg.Recorder.Chunks(),
		})
	}
}

// recordingSummaryHandler serves the summary taken when the last recording
// stopped. While recording, or before the first stop, it asks the backend
// for its summary of every chunk sent so far.
func recordingSummaryHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Recordings != nil && (cfg.Recorder == nil || !cfg.Recorder.Recording()) {
			if summary := cfg.Recordings.Summary(); summary != nil {
				WriteJSON(w, http.StatusOK, summary)
				return
			}
		}

		summary, err := cfg.Backend.FinalSummary(r.Context())
		if err != nil {
			writeBackendError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, json.RawMessage(summary))
	}
}
