package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// DefaultFakeSegments is the number of segments a registered video is split
// into by the fake backend.
const DefaultFakeSegments = 4

// FakeSegmentSize matches the window the real splitter uses.
const FakeSegmentSize = 30

var segmentRef = regexp.MustCompile(`\b(\d{1,4})\b`)

type fakeJob struct {
	total    int
	split    int
	analyzed int
}

// FakeClient simulates the analysis backend in process. Each status call
// advances the job by one chunk, so pollers observe real progress.
type FakeClient struct {
	mu       sync.Mutex
	jobs     map[string]*fakeJob
	received map[string]int
	lastSess string
	segments int
	logger   *slog.Logger
}

func NewFakeClient(logger *slog.Logger) *FakeClient {
	return &FakeClient{
		jobs:     make(map[string]*fakeJob),
		received: make(map[string]int),
		segments: DefaultFakeSegments,
		logger:   logger,
	}
}

// SetSegments changes how many segments later registrations produce.
func (c *FakeClient) SetSegments(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n > 0 {
		c.segments = n
	}
}

func (c *FakeClient) Register(ctx context.Context, req RegisterRequest) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	if req.S3Key == "" && req.FileKey == "" {
		return Job{}, &APIError{Method: http.MethodPost, Path: "/upload", StatusCode: http.StatusUnprocessableEntity, Body: "s3_key is required"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id := uuid.NewString()
	c.jobs[id] = &fakeJob{total: c.segments}
	c.logger.Info("fake backend: video registered", "job_id", id, "key", req.S3Key)
	return Job{ID: id}, nil
}

func (c *FakeClient) UploadChunk(ctx context.Context, sessionID string, index int, data []byte) (ChunkReceipt, error) {
	if err := ctx.Err(); err != nil {
		return ChunkReceipt{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.received[sessionID]++
	c.lastSess = sessionID

	job, ok := c.jobs[sessionID]
	if !ok {
		job = &fakeJob{}
		c.jobs[sessionID] = job
	}
	job.total = c.received[sessionID]

	c.logger.Debug("fake backend: chunk received", "session_id", sessionID, "index", index, "bytes", len(data))
	return ChunkReceipt{OK: true}, nil
}

func (c *FakeClient) FinalSummary(ctx context.Context) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	n := c.received[c.lastSess]
	c.mu.Unlock()

	return json.Marshal(fakeSummary(n))
}

func fakeSummary(chunks int) Summary {
	s := Summary{
		GlobalSummary: fmt.Sprintf(
			"The analysed video runs for roughly %d seconds. Movement patterns, defensive openings and key moments were identified across several segments.",
			chunks*FakeSegmentSize,
		),
		Intervals: make([]SummaryInterval, 0, chunks),
	}
	for i := range chunks {
		s.Intervals = append(s.Intervals, SummaryInterval{
			Interval: fmt.Sprintf("Segment %d (minute %.1f - %.1f)", i+1, float64(i)*0.5, float64(i)*0.5+0.5),
			Errors: []string{
				"Guard drops during transitions.",
				"Slow recovery after jabs.",
			},
			Opportunities: []string{
				"Counter window while the opponent retreats.",
				"Opening when attacking the weak side.",
			},
			Intensity: rand.IntN(100),
		})
	}
	return s
}

func (c *FakeClient) Status(ctx context.Context, jobID string, phase Phase) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	job, ok := c.jobs[jobID]
	if !ok {
		return nil, &APIError{Method: http.MethodGet, Path: "/" + string(phase) + "/" + jobID, StatusCode: http.StatusNotFound, Body: "job not found"}
	}

	switch phase {
	case PhaseSplit:
		if job.split < job.total {
			job.split++
		}
		return json.Marshal(c.splitStatus(jobID, job))
	case PhaseAnalysis:
		if job.split == job.total && job.analyzed < job.total {
			job.analyzed++
		}
		return json.Marshal(c.analysis(jobID, job))
	default:
		return nil, fmt.Errorf("unknown phase %q", phase)
	}
}

func (c *FakeClient) Analysis(ctx context.Context, jobID string) (*AnalysisResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	job, ok := c.jobs[jobID]
	if !ok {
		return nil, &APIError{Method: http.MethodGet, Path: "/analysis/" + jobID, StatusCode: http.StatusNotFound, Body: "job not found"}
	}
	return c.analysis(jobID, job), nil
}

func (c *FakeClient) Ask(ctx context.Context, jobID, question string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	job, ok := c.jobs[jobID]
	if jobID == "" || !ok {
		return "Upload a fight first and I will answer questions about its analysis.", nil
	}

	result := c.analysis(jobID, job)
	if m := segmentRef.FindStringSubmatch(question); m != nil {
		n, _ := strconv.Atoi(m[1])
		if n >= 1 && n <= len(result.ChunkAnalyses) {
			seg := result.ChunkAnalyses[n-1]
			if seg.GeneralAnalyst != "" {
				return fmt.Sprintf("Segment %d: %s", n, stripMarkdown(seg.GeneralAnalyst)), nil
			}
			return fmt.Sprintf("Segment %d has not been analysed yet.", n), nil
		}
	}

	return fmt.Sprintf("Across %d analysed segments: %s", result.AnalyzedChunks, result.OverallSummary), nil
}

func (c *FakeClient) splitStatus(jobID string, job *fakeJob) SplitStatus {
	status := "processing"
	if job.split >= job.total {
		status = "completed"
	}
	chunks := make([]string, 0, job.split)
	for i := range job.split {
		chunks = append(chunks, chunkName(jobID, i))
	}
	return SplitStatus{
		JobID:           jobID,
		SplitStatus:     status,
		TotalChunks:     job.total,
		CompletedChunks: job.split,
		SplitPct:        percent(job.split, job.total),
		Chunks:          chunks,
	}
}

func (c *FakeClient) analysis(jobID string, job *fakeJob) *AnalysisResult {
	splitStatus := "processing"
	if job.split >= job.total {
		splitStatus = "completed"
	}

	status := "pending"
	switch {
	case job.split < job.total:
	case job.analyzed >= job.total:
		status = "completed"
	default:
		status = "processing"
	}

	segments := make([]SegmentAnalysis, 0, job.total)
	for i := range job.total {
		seg := SegmentAnalysis{
			ChunkIndex:    i,
			ChunkFilename: chunkName(jobID, i),
			Status:        "pending",
		}
		if i < job.analyzed {
			start := i * FakeSegmentSize
			seg.Status = "completed"
			seg.GeneralAnalyst = fmt.Sprintf(
				"**Statistical Summary:** %d strikes thrown, %d landed. Pressure stays with the fighter in the blue corner from %s to %s.",
				12+i*3, 5+i, clock(start), clock(start+FakeSegmentSize),
			)
			seg.Striking = fmt.Sprintf("Jab is pawing rather than scoring in segment %d. Hands drop after combinations.", i+1)
			seg.Grappling = fmt.Sprintf("One clinch entry in segment %d, broken without damage.", i+1)
			if i%2 == 0 {
				seg.Submission = "No submission attempts. Neck exposed once on a level change."
			}
			seg.HeadCoach = "Keep the right hand home after the jab and circle away from the power side."
		}
		segments = append(segments, seg)
	}

	result := &AnalysisResult{
		JobID:          jobID,
		SplitStatus:    splitStatus,
		AnalysisStatus: status,
		TotalChunks:    job.total,
		AnalyzedChunks: job.analyzed,
		AnalysisPct:    percent(job.analyzed, job.total),
		SegmentSize:    FakeSegmentSize,
		ChunkAnalyses:  segments,
	}
	if status == "completed" {
		result.OverallSummary = fmt.Sprintf(
			"The fight was split into %d segments of %d seconds. Striking volume rises in the later rounds while takedown defence holds throughout.",
			job.total, FakeSegmentSize,
		)
	}
	return result
}

func chunkName(jobID string, i int) string {
	return fmt.Sprintf("%s/chunk_%03d.mp4", jobID, i)
}

func percent(done, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(done) * 100 / float64(total)
}

func clock(seconds int) string {
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

func stripMarkdown(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "*", ""))
}
