package api

import (
	"github.com/ringside/ringside-agent/internal/capture"
	"github.com/ringside/ringside-agent/internal/processing"
	"github.com/ringside/ringside-agent/internal/session"
	"github.com/ringside/ringside-agent/internal/state"
)

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	UptimeS  int64  `json:"uptime_s"`
	DeviceID string `json:"device_id"`
}

type StatusResponse struct {
	State          string                `json:"state"`
	LastError      string                `json:"last_error,omitempty"`
	Recording      bool                  `json:"recording"`
	ChunksCaptured int                   `json:"chunks_captured"`
	JobsTracking   int                   `json:"jobs_tracking"`
	ActiveJob      *processing.Job       `json:"active_job,omitempty"`
	Upload         *UploadStatus         `json:"upload,omitempty"`
	LastUpload     *state.LastUpload     `json:"last_upload,omitempty"`
	Capture        *capture.Capabilities `json:"capture,omitempty"`
}

// UploadStatus describes the most recent POST /uploads.
type UploadStatus struct {
	Name    string `json:"name"`
	Percent int    `json:"percent"`
	State   string `json:"state"`
	JobID   string `json:"job_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

type RecordingResponse struct {
	Recording bool            `json:"recording"`
	Chunks    []capture.Chunk `json:"chunks"`
}

type UploadResponse struct {
	JobID    string         `json:"job_id"`
	Location string         `json:"location,omitempty"`
	Job      processing.Job `json:"job"`
}

// UploadErrorResponse reports a failed upload. Location is set when the
// video was stored but the backend refused to register it.
type UploadErrorResponse struct {
	ErrorResponse
	Location string `json:"location,omitempty"`
}

type JobsResponse struct {
	Jobs []processing.Job `json:"jobs"`
}

type SegmentResponse struct {
	Index   int     `json:"index"`
	StartS  float64 `json:"start_s"`
	Status  string  `json:"status,omitempty"`
	Preview string  `json:"preview"`
}

type AnalysisResponse struct {
	JobID          string            `json:"job_id"`
	SplitStatus    string            `json:"split_status,omitempty"`
	AnalysisStatus string            `json:"analysis_status"`
	OverallSummary string            `json:"overall_summary,omitempty"`
	SegmentSize    float64           `json:"segment_size"`
	Segments       []SegmentResponse `json:"segments"`
	Selected       *int              `json:"selected,omitempty"`
	Category       session.Category  `json:"category"`
}

type ContentResponse struct {
	Selected *int             `json:"selected,omitempty"`
	Category session.Category `json:"category"`
	Content  string           `json:"content"`
}

// SelectionRequest picks a segment by index or by playback position. An
// empty body clears the selection.
type SelectionRequest struct {
	Segment *int     `json:"segment,omitempty"`
	AtS     *float64 `json:"at_s,omitempty"`
}

type CategoryRequest struct {
	Category string `json:"category"`
}

type ChatRequest struct {
	Message string `json:"message"`
}

type ChatResponse struct {
	Messages []session.Message `json:"messages"`
	Busy     bool              `json:"busy"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
