package backend

import "encoding/json"

// Phase names one of the backend's processing stages.
type Phase string

const (
	PhaseSplit    Phase = "split"
	PhaseAnalysis Phase = "analysis"
)

// Job is the backend's handle for one uploaded video.
type Job struct {
	ID       string `json:"job_id"`
	Location string `json:"location,omitempty"`
}

// RegisterRequest is the body of POST /upload. Both key spellings are sent
// because the deployed backends disagree on which one they read.
type RegisterRequest struct {
	S3Key   string `json:"s3_key"`
	FileKey string `json:"fileKey,omitempty"`
	S3Path  string `json:"s3Path,omitempty"`
}

// RegisterResponse is the response from POST /upload.
type RegisterResponse struct {
	JobID   string `json:"job_id"`
	Message string `json:"message,omitempty"`
	Status  string `json:"status,omitempty"`
}

// ChunkReceipt is the response from POST /upload_chunk.
type ChunkReceipt struct {
	OK      bool   `json:"ok,omitempty"`
	JobID   string `json:"job_id,omitempty"`
	Message string `json:"message,omitempty"`
}

// SplitStatus is the response from GET /split/{id}.
type SplitStatus struct {
	JobID           string   `json:"job_id"`
	SplitStatus     string   `json:"split_status"`
	TotalChunks     int      `json:"total_chunks"`
	CompletedChunks int      `json:"completed_chunks"`
	SplitPct        float64  `json:"split_pct"`
	Chunks          []string `json:"chunks"`
}

// SegmentAnalysis holds the per-category commentary for one analysed segment.
// Text fields are empty when the backend did not produce them.
type SegmentAnalysis struct {
	ChunkIndex     int    `json:"chunk_index"`
	ChunkFilename  string `json:"chunk_filename"`
	Status         string `json:"status"`
	GeneralAnalyst string `json:"general_analyst,omitempty"`
	Striking       string `json:"striking,omitempty"`
	Grappling      string `json:"grappling,omitempty"`
	Submission     string `json:"submission,omitempty"`
	HeadCoach      string `json:"head_coach,omitempty"`
	Error          string `json:"error,omitempty"`
}

// AnalysisResult is the response from GET /analysis/{id}.
type AnalysisResult struct {
	JobID          string            `json:"job_id"`
	SplitStatus    string            `json:"split_status"`
	AnalysisStatus string            `json:"analysis_status"`
	TotalChunks    int               `json:"total_chunks"`
	AnalyzedChunks int               `json:"analyzed_chunks"`
	AnalysisPct    float64           `json:"analysis_pct"`
	OverallSummary string            `json:"overall_summary,omitempty"`
	SegmentSize    float64           `json:"segment_size,omitempty"`
	ChunkAnalyses  []SegmentAnalysis `json:"chunk_analyses"`
}

type agentResponse struct {
	Response string `json:"response"`
}

// Summary is the shape the fake backend produces for GET /final_summary.
// The real backend's summary is passed through untouched as raw JSON.
type Summary struct {
	GlobalSummary string            `json:"resumen_global"`
	Intervals     []SummaryInterval `json:"intervalos"`
}

type SummaryInterval struct {
	Interval      string   `json:"intervalo"`
	Errors        []string `json:"errores"`
	Opportunities []string `json:"oportunidades"`
	Intensity     int      `json:"intensidad"`
}

func decodeAnalysis(body []byte) (*AnalysisResult, error) {
	var result AnalysisResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
