package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeClient_SplitThenAnalysis(t *testing.T) {
	c := NewFakeClient(testLogger())
	c.SetSegments(3)
	ctx := context.Background()

	job, err := c.Register(ctx, RegisterRequest{S3Key: "videos/a.mp4"})
	require.NoError(t, err)

	// Analysis does not advance while splitting.
	body, _ := c.Status(ctx, job.ID, PhaseAnalysis)
	var early AnalysisResult
	require.NoError(t, json.Unmarshal(body, &early))
	require.Equal(t, "pending", early.AnalysisStatus)
	require.Zero(t, early.AnalyzedChunks)

	prev := -1
	var split SplitStatus
	for i := 0; i < 10; i++ {
		body, err := c.Status(ctx, job.ID, PhaseSplit)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &split))
		require.GreaterOrEqual(t, split.CompletedChunks, prev, "completed_chunks went backwards")
		prev = split.CompletedChunks
		if split.SplitStatus == "completed" {
			break
		}
	}
	require.Equal(t, "completed", split.SplitStatus)
	require.Equal(t, 3, split.TotalChunks)
	require.Equal(t, split.TotalChunks, split.CompletedChunks)

	for i := 0; i < 3; i++ {
		_, err := c.Status(ctx, job.ID, PhaseAnalysis)
		require.NoError(t, err)
	}

	result, err := c.Analysis(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, "completed", result.AnalysisStatus)
	require.NotEmpty(t, result.OverallSummary)
	require.Len(t, result.ChunkAnalyses, 3)
	assert.NotEmpty(t, result.ChunkAnalyses[2].Striking)
	assert.Empty(t, result.ChunkAnalyses[1].Submission, "odd segments carry no submission notes in the fake")
}

func TestFakeClient_UnknownJob(t *testing.T) {
	c := NewFakeClient(testLogger())

	_, err := c.Status(context.Background(), "nope", PhaseSplit)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestFakeClient_ChunkSessionSummary(t *testing.T) {
	c := NewFakeClient(testLogger())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := c.UploadChunk(ctx, "sess", i, []byte{1})
		require.NoError(t, err)
	}

	raw, err := c.FinalSummary(ctx)
	require.NoError(t, err)
	var summary Summary
	require.NoError(t, json.Unmarshal(raw, &summary))
	assert.Len(t, summary.Intervals, 4)
	assert.Contains(t, summary.GlobalSummary, "120 seconds")

	body, err := c.Status(ctx, "sess", PhaseSplit)
	require.NoError(t, err, "chunk session should be pollable")
	var split SplitStatus
	require.NoError(t, json.Unmarshal(body, &split))
	assert.Equal(t, 4, split.TotalChunks)
}

func TestFakeClient_Ask(t *testing.T) {
	c := NewFakeClient(testLogger())
	c.SetSegments(2)
	ctx := context.Background()

	job, _ := c.Register(ctx, RegisterRequest{S3Key: "k"})
	for i := 0; i < 2; i++ {
		c.Status(ctx, job.ID, PhaseSplit)
	}
	c.Status(ctx, job.ID, PhaseAnalysis)

	answer, err := c.Ask(ctx, job.ID, "what happened in segment 1?")
	require.NoError(t, err)
	assert.Regexp(t, `^Segment 1:`, answer)
	assert.NotContains(t, answer, "*")

	answer, _ = c.Ask(ctx, job.ID, "and segment 2?")
	assert.Contains(t, answer, "not been analysed")

	answer, _ = c.Ask(ctx, "", "hello")
	assert.NotEmpty(t, answer, "expected a canned answer without a job")
}

func TestNew_SelectsImplementation(t *testing.T) {
	assert.IsType(t, &FakeClient{}, New(Options{Fake: true}, testLogger()))
	assert.IsType(t, &HTTPClient{}, New(Options{BaseURL: "http://x"}, testLogger()))
}
