// Package backend talks to the remote analysis service: registering uploaded
// videos, receiving captured chunks, reporting split and analysis progress,
// and answering chat questions.
package backend

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Client is the analysis backend. HTTPClient talks to a deployed service;
// FakeClient simulates one in process.
type Client interface {
	Register(ctx context.Context, req RegisterRequest) (Job, error)
	UploadChunk(ctx context.Context, sessionID string, index int, data []byte) (ChunkReceipt, error)
	FinalSummary(ctx context.Context) (json.RawMessage, error)

	// Status returns the raw status body for a phase so pollers can apply
	// their own tolerant parsing.
	Status(ctx context.Context, jobID string, phase Phase) ([]byte, error)
	Analysis(ctx context.Context, jobID string) (*AnalysisResult, error)
	Ask(ctx context.Context, jobID, question string) (string, error)
}

// Options configures New.
type Options struct {
	Fake      bool
	BaseURL   string
	Token     string
	RateLimit float64
	DeviceID  string
}

// New selects the real or simulated backend at runtime.
func New(opts Options, logger *slog.Logger) Client {
	if opts.Fake {
		return NewFakeClient(logger)
	}
	c := NewHTTPClient(opts.BaseURL, opts.Token, opts.RateLimit, logger)
	c.SetDeviceID(opts.DeviceID)
	return c
}
