// Package progress polls the backend's phase status endpoints until a
// terminal status is observed.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/ringside/ringside-agent/internal/backend"
	"github.com/ringside/ringside-agent/internal/logging"
)

var (
	// ErrPhaseFailed is returned with the final body when the backend reports
	// the phase as failed.
	ErrPhaseFailed = errors.New("phase failed")

	// ErrAttemptsExhausted is returned when MaxAttempts fetches were made
	// without reaching a terminal status.
	ErrAttemptsExhausted = errors.New("poll attempts exhausted")
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusPartial    = "partial"
	StatusFailed     = "failed"
)

// Fetcher returns the raw status body for a job phase.
type Fetcher interface {
	Status(ctx context.Context, jobID string, phase backend.Phase) ([]byte, error)
}

// State is the progress observed after one successful fetch.
type State struct {
	Phase     backend.Phase `json:"phase"`
	Percent   int           `json:"percent"`
	Terminal  bool          `json:"terminal"`
	Status    string        `json:"status"`
	Completed int           `json:"completed"`
	Total     int           `json:"total"`
}

// Poller repeatedly fetches a phase status. The zero values of Interval and
// ErrorBackoff fall back to one second and twice the interval.
type Poller struct {
	Fetcher      Fetcher
	Interval     time.Duration
	ErrorBackoff time.Duration
	MaxAttempts  int
	Logger       *slog.Logger

	// OnError, when set, is told about each failed fetch before the backoff
	// sleep so callers can show the loop is still alive.
	OnError func(phase backend.Phase, attempt int, err error)
}

type fields struct {
	status    string
	percent   string
	completed string
}

var phaseFields = map[backend.Phase]fields{
	backend.PhaseSplit:    {status: "split_status", percent: "split_pct", completed: "completed_chunks"},
	backend.PhaseAnalysis: {status: "analysis_status", percent: "analysis_pct", completed: "analyzed_chunks"},
}

// Poll fetches until the phase reaches a terminal status and returns that
// response body. onProgress is called after every successful fetch, even if
// the percentage did not change. Fetch errors are retried after ErrorBackoff
// and never end the loop; only ctx, MaxAttempts or a failed status do.
func (p *Poller) Poll(ctx context.Context, jobID string, phase backend.Phase, onProgress func(State)) (json.RawMessage, error) {
	f, ok := phaseFields[phase]
	if !ok {
		return nil, fmt.Errorf("unknown phase %q", phase)
	}

	interval := p.Interval
	if interval <= 0 {
		interval = time.Second
	}
	backoff := p.ErrorBackoff
	if backoff <= 0 {
		backoff = 2 * interval
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logging.WithPhase(logging.WithJobID(logger, jobID), string(phase))

	last := State{Phase: phase}
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if p.MaxAttempts > 0 && attempt > p.MaxAttempts {
			return nil, fmt.Errorf("%w after %d attempts", ErrAttemptsExhausted, p.MaxAttempts)
		}

		body, err := p.Fetcher.Status(ctx, jobID, phase)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("status poll failed, backing off", "attempt", attempt, "backoff", backoff, "error", err)
			if p.OnError != nil {
				p.OnError(phase, attempt, err)
			}
			if err := sleep(ctx, backoff); err != nil {
				return nil, err
			}
			continue
		}

		st, err := parseState(body, phase, f, last)
		if err != nil {
			logger.Warn("status body not decodable, polling again", "attempt", attempt, "error", err)
		}
		last = st

		if onProgress != nil {
			onProgress(st)
		}

		if st.Terminal {
			logger.Info("phase reached terminal status", "status", st.Status, "attempts", attempt)
			if st.Status == StatusFailed {
				return json.RawMessage(body), fmt.Errorf("%s: %w", phase, ErrPhaseFailed)
			}
			return json.RawMessage(body), nil
		}

		if err := sleep(ctx, interval); err != nil {
			return nil, err
		}
	}
}

// parseState extracts progress tolerantly. Missing or mistyped fields keep
// the previous value; a status that is not a recognised terminal string is
// never terminal.
func parseState(body []byte, phase backend.Phase, f fields, prev State) (State, error) {
	st := State{
		Phase:     phase,
		Percent:   prev.Percent,
		Completed: prev.Completed,
		Total:     prev.Total,
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return st, err
	}

	if s, ok := raw[f.status].(string); ok {
		st.Status = strings.ToLower(strings.TrimSpace(s))
	}
	if pct, ok := raw[f.percent].(float64); ok && !math.IsNaN(pct) {
		st.Percent = int(math.Floor(math.Max(0, math.Min(100, pct))))
	}
	if n, ok := raw[f.completed].(float64); ok {
		st.Completed = int(n)
	}
	if n, ok := raw["total_chunks"].(float64); ok {
		st.Total = int(n)
	}

	st.Terminal = IsTerminal(st.Status)
	return st, nil
}

// IsTerminal applies one rule to both phases: completed, partial and failed
// end the phase; anything else, including an empty status, does not.
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusPartial, StatusFailed:
		return true
	default:
		return false
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
