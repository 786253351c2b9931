package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ringside/ringside-agent/internal/backend"
)

// ResultSource returns the finished analysis of a job.
type ResultSource interface {
	Result(ctx context.Context, jobID string) (*backend.AnalysisResult, error)
}

// Registry keeps one Session per job, opened on first use.
type Registry struct {
	results ResultSource
	agent   Agent
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(results ResultSource, agent Agent, logger *slog.Logger) *Registry {
	return &Registry{
		results:  results,
		agent:    agent,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Open returns the session for jobID, fetching the analysis the first time.
// Errors from the result source are returned unchanged.
func (r *Registry) Open(ctx context.Context, jobID string) (*Session, error) {
	r.mu.Lock()
	s, ok := r.sessions[jobID]
	r.mu.Unlock()
	if ok {
		return s, nil
	}

	result, err := r.results.Result(ctx, jobID)
	if err != nil {
		return nil, err
	}
	fresh, err := New(jobID, result, r.agent, r.logger)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[jobID]; ok {
		return s, nil
	}
	r.sessions[jobID] = fresh
	return fresh, nil
}

// Close drops the session for jobID. Its chat history is lost.
func (r *Registry) Close(jobID string) {
	r.mu.Lock()
	delete(r.sessions, jobID)
	r.mu.Unlock()
}
