package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const maxResponseBytes = 16 << 20

// APIError represents a non-2xx answer from the analysis backend.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend %s %s failed: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx) and rate limiting.
// Other client errors (4xx) are considered permanent.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// HTTPClient is the real backend client.
type HTTPClient struct {
	baseURL    string
	token      string
	deviceID   string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewHTTPClient creates a client for baseURL. requestsPerSecond <= 0 disables
// client-side throttling.
func NewHTTPClient(baseURL, token string, requestsPerSecond float64, logger *slog.Logger) *HTTPClient {
	limit := rate.Inf
	burst := 1
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
		burst = max(1, int(requestsPerSecond))
	}

	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

func (c *HTTPClient) SetDeviceID(id string) {
	c.deviceID = id
}

func (c *HTTPClient) Register(ctx context.Context, reqBody RegisterRequest) (Job, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return Job{}, fmt.Errorf("marshal register request: %w", err)
	}

	respBody, err := c.do(ctx, http.MethodPost, "/upload", bytes.NewReader(body), "application/json")
	if err != nil {
		return Job{}, err
	}

	var resp RegisterResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return Job{}, fmt.Errorf("decode register response: %w", err)
	}
	if resp.JobID == "" {
		return Job{}, fmt.Errorf("register response missing job_id")
	}

	c.logger.Info("video registered", "job_id", resp.JobID, "key", reqBody.S3Key, "status", resp.Status)
	return Job{ID: resp.JobID}, nil
}

func (c *HTTPClient) UploadChunk(ctx context.Context, sessionID string, index int, data []byte) (ChunkReceipt, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("session_id", sessionID)
	_ = mw.WriteField("index", strconv.Itoa(index))
	part, err := mw.CreateFormFile("chunk", fmt.Sprintf("chunk-%05d.webm", index))
	if err != nil {
		return ChunkReceipt{}, fmt.Errorf("create chunk part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return ChunkReceipt{}, fmt.Errorf("write chunk part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return ChunkReceipt{}, fmt.Errorf("close multipart: %w", err)
	}

	respBody, err := c.do(ctx, http.MethodPost, "/upload_chunk", &buf, mw.FormDataContentType())
	if err != nil {
		return ChunkReceipt{}, err
	}

	var receipt ChunkReceipt
	if len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, &receipt); err != nil {
			c.logger.Debug("chunk receipt not json", "index", index, "error", err)
		}
	}
	return receipt, nil
}

func (c *HTTPClient) FinalSummary(ctx context.Context) (json.RawMessage, error) {
	body, err := c.do(ctx, http.MethodGet, "/final_summary", nil, "")
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("final summary is not valid json")
	}
	return json.RawMessage(body), nil
}

func (c *HTTPClient) Status(ctx context.Context, jobID string, phase Phase) ([]byte, error) {
	switch phase {
	case PhaseSplit:
		return c.do(ctx, http.MethodGet, "/split/"+url.PathEscape(jobID), nil, "")
	case PhaseAnalysis:
		return c.do(ctx, http.MethodGet, "/analysis/"+url.PathEscape(jobID), nil, "")
	default:
		return nil, fmt.Errorf("unknown phase %q", phase)
	}
}

func (c *HTTPClient) Analysis(ctx context.Context, jobID string) (*AnalysisResult, error) {
	body, err := c.Status(ctx, jobID, PhaseAnalysis)
	if err != nil {
		return nil, err
	}
	result, err := decodeAnalysis(body)
	if err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}
	return result, nil
}

// Ask queries the conversational agent. An empty jobID targets the
// unscoped agent route.
func (c *HTTPClient) Ask(ctx context.Context, jobID, question string) (string, error) {
	path := "/agent/" + url.PathEscape(jobID) + "?question=" + url.QueryEscape(question)

	body, err := c.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return "", err
	}

	var resp agentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode agent response: %w", err)
	}
	return resp.Response, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body io.Reader, contentType string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("X-Ringside-Request-Id", uuid.NewString())
	if c.deviceID != "" {
		req.Header.Set("X-Ringside-Device-Id", c.deviceID)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("backend request",
		"method", method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(respBody) > 4096 {
			respBody = respBody[:4096]
		}
		return nil, &APIError{Method: method, Path: req.URL.Path, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, nil
}
