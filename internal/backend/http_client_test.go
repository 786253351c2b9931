package backend

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestHTTPClient_Register_Success(t *testing.T) {
	var received RegisterRequest
	var receivedAuth string
	var receivedRequestID string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/upload", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		receivedAuth = r.Header.Get("Authorization")
		receivedRequestID = r.Header.Get("X-Ringside-Request-Id")

		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)

		json.NewEncoder(w).Encode(RegisterResponse{JobID: "job-1", Message: "queued", Status: "pending"})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "test-token", 0, testLogger())

	job, err := client.Register(context.Background(), RegisterRequest{
		S3Key:   "videos/1-abc-bout.mp4",
		FileKey: "videos/1-abc-bout.mp4",
		S3Path:  "https://storage.googleapis.com/fights/videos/1-abc-bout.mp4",
	})
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, "Bearer test-token", receivedAuth)
	assert.NotEmpty(t, receivedRequestID, "expected request id header")
	assert.Equal(t, "videos/1-abc-bout.mp4", received.S3Key)
}

func TestHTTPClient_Register_MissingJobID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":"ok"}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "", 0, testLogger())
	_, err := client.Register(context.Background(), RegisterRequest{S3Key: "k"})
	assert.Error(t, err, "expected error for response without job_id")
}

func TestHTTPClient_Returns_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"detail":"bad key"}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "", 0, testLogger())
	_, err := client.Register(context.Background(), RegisterRequest{S3Key: "k"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.False(t, apiErr.IsRetryable(), "expected 400 to be permanent")
}

func TestAPIError_IsRetryable(t *testing.T) {
	assert.True(t, (&APIError{StatusCode: http.StatusBadGateway}).IsRetryable())
	assert.True(t, (&APIError{StatusCode: http.StatusTooManyRequests}).IsRetryable())
	assert.False(t, (&APIError{StatusCode: http.StatusNotFound}).IsRetryable())
}

func TestHTTPClient_UploadChunk_Multipart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/upload_chunk", r.URL.Path)
		file, _, err := r.FormFile("chunk")
		if !assert.NoError(t, err, "missing chunk part") {
			return
		}
		data, _ := io.ReadAll(file)
		assert.Equal(t, "webm-bytes", string(data))
		assert.Equal(t, "3", r.FormValue("index"))
		w.Write([]byte(`{"ok":true,"job_id":"job-9"}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "", 0, testLogger())
	receipt, err := client.UploadChunk(context.Background(), "sess-1", 3, []byte("webm-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "job-9", receipt.JobID)
}

func TestHTTPClient_StatusPaths(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "", 0, testLogger())
	ctx := context.Background()

	_, err := client.Status(ctx, "j1", PhaseSplit)
	require.NoError(t, err)
	_, err = client.Status(ctx, "j1", PhaseAnalysis)
	require.NoError(t, err)
	_, err = client.Status(ctx, "j1", Phase("render"))
	require.Error(t, err, "expected error for unknown phase")

	assert.Equal(t, []string{"/split/j1", "/analysis/j1"}, paths)
}

func TestHTTPClient_Analysis_Decodes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"job_id": "j1",
			"analysis_status": "completed",
			"analysis_pct": 100,
			"overall_summary": "solid",
			"segment_size": 30,
			"chunk_analyses": [{"chunk_index": 0, "striking": "jab"}, {"chunk_index": 1}]
		}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "", 0, testLogger())
	result, err := client.Analysis(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, "solid", result.OverallSummary)
	assert.Equal(t, 30.0, result.SegmentSize)
	require.Len(t, result.ChunkAnalyses, 2)
	assert.Equal(t, "jab", result.ChunkAnalyses[0].Striking)
}

func TestHTTPClient_Ask(t *testing.T) {
	tests := []struct {
		name     string
		jobID    string
		wantPath string
	}{
		{"scoped", "j1", "/agent/j1"},
		{"unscoped", "", "/agent/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, tt.wantPath, r.URL.Path)
				assert.Equal(t, "what about round 2?", r.URL.Query().Get("question"))
				w.Write([]byte(`{"response":"more pressure"}`))
			}))
			defer server.Close()

			client := NewHTTPClient(server.URL, "", 0, testLogger())
			answer, err := client.Ask(context.Background(), tt.jobID, "what about round 2?")
			require.NoError(t, err)
			assert.Equal(t, "more pressure", answer)
		})
	}
}

func TestHTTPClient_FinalSummary_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "", 0, testLogger())
	_, err := client.FinalSummary(context.Background())
	assert.Error(t, err, "expected error for invalid summary body")
}

func TestHTTPClient_RateLimitHonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "", 0.001, testLogger())
	_, err := client.Status(context.Background(), "j", PhaseSplit)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.Status(ctx, "j", PhaseSplit)
	assert.Error(t, err, "expected throttled request with cancelled context to fail")
}
