// Package processing follows backend jobs through the split and analysis
// phases and keeps the latest known state of each tracked job.
package processing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ringside/ringside-agent/internal/backend"
	"github.com/ringside/ringside-agent/internal/logging"
	"github.com/ringside/ringside-agent/internal/progress"
)

// Tracker runs the two poll phases of one job in order.
type Tracker struct {
	poller *progress.Poller
	client backend.Client
	logger *slog.Logger
}

func NewTracker(poller *progress.Poller, client backend.Client, logger *slog.Logger) *Tracker {
	return &Tracker{poller: poller, client: client, logger: logger}
}

// Run polls the split phase to a terminal status, then the analysis phase,
// then fetches the analysis result. A failed analysis still returns whatever
// result the backend produced alongside the error. onRetry, if not nil, is
// told about every fetch that will be retried.
func (t *Tracker) Run(ctx context.Context, jobID string, onProgress func(progress.State), onRetry func(backend.Phase, int, error)) (*backend.AnalysisResult, error) {
	log := logging.WithJobID(t.logger, jobID)

	p := *t.poller
	if onRetry != nil {
		p.OnError = onRetry
	}

	log.Info("tracking split phase")
	if _, err := p.Poll(ctx, jobID, backend.PhaseSplit, onProgress); err != nil {
		return nil, fmt.Errorf("split phase: %w", err)
	}

	log.Info("tracking analysis phase")
	_, pollErr := p.Poll(ctx, jobID, backend.PhaseAnalysis, onProgress)
	if pollErr != nil && !errors.Is(pollErr, progress.ErrPhaseFailed) {
		return nil, fmt.Errorf("analysis phase: %w", pollErr)
	}

	result, err := t.client.Analysis(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("fetch analysis: %w", err)
	}

	if pollErr != nil {
		return result, fmt.Errorf("analysis phase: %w", pollErr)
	}

	log.Info("analysis ready", "status", result.AnalysisStatus, "segments", len(result.ChunkAnalyses))
	return result, nil
}
