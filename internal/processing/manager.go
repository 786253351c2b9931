package processing

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ringside/ringside-agent/internal/backend"
	"github.com/ringside/ringside-agent/internal/progress"
)

var (
	ErrNotTracking = errors.New("job is not being tracked")
	ErrNotReady    = errors.New("analysis not ready")
)

// State is the local lifecycle of a tracked job.
type State string

const (
	StateTracking  State = "tracking"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Job is a snapshot of a tracked job.
type Job struct {
	ID        string        `json:"id"`
	Location  string        `json:"location,omitempty"`
	State     State         `json:"state"`
	Phase     backend.Phase `json:"phase"`
	Percent   int           `json:"percent"`
	Status    string        `json:"status,omitempty"`
	Completed int           `json:"completed"`
	Total     int           `json:"total"`
	Retries   int           `json:"retries"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Event is broadcast to subscribers on every job change.
type Event struct {
	Type string `json:"type"`
	Job  Job    `json:"job"`
}

const (
	EventStarted   = "started"
	EventProgress  = "progress"
	EventRetry     = "retry"
	EventCompleted = "completed"
	EventFailed    = "failed"
	EventCancelled = "cancelled"
)

type run struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager runs one Tracker per job in the background.
type Manager struct {
	tracker *Tracker
	client  backend.Client
	logger  *slog.Logger

	mu      sync.RWMutex
	jobs    map[string]*Job
	order   []string
	results map[string]*backend.AnalysisResult
	runs    map[string]*run

	subsMu      sync.RWMutex
	subscribers map[chan Event]struct{}

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

func NewManager(tracker *Tracker, client backend.Client, logger *slog.Logger) *Manager {
	ctx, stop := context.WithCancel(context.Background())
	return &Manager{
		tracker:     tracker,
		client:      client,
		logger:      logger,
		jobs:        make(map[string]*Job),
		results:     make(map[string]*backend.AnalysisResult),
		runs:        make(map[string]*run),
		subscribers: make(map[chan Event]struct{}),
		ctx:         ctx,
		stop:        stop,
	}
}

// Track starts following job in the background. Tracking a job that is
// already being followed returns its current snapshot.
func (m *Manager) Track(job backend.Job) Job {
	m.mu.Lock()
	if _, running := m.runs[job.ID]; running {
		snap := *m.jobs[job.ID]
		m.mu.Unlock()
		return snap
	}

	now := time.Now().UTC()
	j, ok := m.jobs[job.ID]
	if !ok {
		j = &Job{ID: job.ID}
		m.jobs[job.ID] = j
		m.order = append(m.order, job.ID)
	}
	*j = Job{
		ID:        job.ID,
		Location:  job.Location,
		State:     StateTracking,
		Phase:     backend.PhaseSplit,
		StartedAt: now,
		UpdatedAt: now,
	}
	delete(m.results, job.ID)

	ctx, cancel := context.WithCancel(m.ctx)
	r := &run{cancel: cancel, done: make(chan struct{})}
	m.runs[job.ID] = r
	snap := *j
	m.mu.Unlock()

	m.broadcast(Event{Type: EventStarted, Job: snap})

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(r.done)
		defer cancel()
		m.run(ctx, job.ID)
	}()

	return snap
}

func (m *Manager) run(ctx context.Context, jobID string) {
	result, err := m.tracker.Run(ctx, jobID, func(s progress.State) {
		m.update(jobID, EventProgress, func(j *Job) {
			j.Phase = s.Phase
			j.Percent = s.Percent
			j.Status = s.Status
			j.Completed = s.Completed
			j.Total = s.Total
		})
	}, func(phase backend.Phase, attempt int, err error) {
		m.retry(jobID, phase, err)
	})

	if result != nil {
		m.mu.Lock()
		m.results[jobID] = result
		m.mu.Unlock()
	}
	// The run entry goes last so Wait and Cancel observe the final state.
	defer func() {
		m.mu.Lock()
		delete(m.runs, jobID)
		m.mu.Unlock()
	}()

	switch {
	case err == nil:
		m.update(jobID, EventCompleted, func(j *Job) {
			j.State = StateCompleted
			j.Percent = 100
		})
	case errors.Is(err, context.Canceled):
		m.update(jobID, EventCancelled, func(j *Job) { j.State = StateCancelled })
	default:
		m.logger.Error("job tracking failed", "job_id", jobID, "error", err)
		m.update(jobID, EventFailed, func(j *Job) {
			j.State = StateFailed
			j.Error = err.Error()
		})
	}
}

// retry records a soft failure so clients can see the loop is alive.
func (m *Manager) retry(jobID string, phase backend.Phase, err error) {
	m.update(jobID, EventRetry, func(j *Job) {
		j.Phase = phase
		j.Retries++
		j.Error = err.Error()
	})
}

func (m *Manager) update(jobID, eventType string, fn func(*Job)) {
	m.mu.Lock()
	j, ok := m.jobs[jobID]
	if !ok {
		m.mu.Unlock()
		return
	}
	if eventType != EventRetry && eventType != EventFailed {
		j.Error = ""
	}
	fn(j)
	j.UpdatedAt = time.Now().UTC()
	snap := *j
	m.mu.Unlock()

	m.broadcast(Event{Type: eventType, Job: snap})
}

// Cancel stops following a job. The backend keeps processing it.
func (m *Manager) Cancel(jobID string) error {
	m.mu.RLock()
	r, ok := m.runs[jobID]
	m.mu.RUnlock()
	if !ok {
		return ErrNotTracking
	}
	r.cancel()
	<-r.done
	return nil
}

// Wait blocks until the job's tracker returns or ctx is done.
func (m *Manager) Wait(ctx context.Context, jobID string) error {
	m.mu.RLock()
	r, ok := m.runs[jobID]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) Get(jobID string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// List returns jobs in the order they were first tracked.
func (m *Manager) List() []Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Job, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.jobs[id])
	}
	return out
}

// Result returns the cached analysis for a finished job, fetching it from the
// backend when the job was not tracked in this process (e.g. the last job of
// a previous run). A result still in progress is ErrNotReady.
func (m *Manager) Result(ctx context.Context, jobID string) (*backend.AnalysisResult, error) {
	m.mu.RLock()
	cached, ok := m.results[jobID]
	_, running := m.runs[jobID]
	m.mu.RUnlock()
	if ok {
		return cached, nil
	}
	if running {
		return nil, ErrNotReady
	}

	result, err := m.client.Analysis(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !progress.IsTerminal(result.AnalysisStatus) {
		return nil, ErrNotReady
	}

	m.mu.Lock()
	m.results[jobID] = result
	m.mu.Unlock()
	return result, nil
}

// Shutdown cancels every tracker and waits for them to return.
func (m *Manager) Shutdown() {
	m.stop()
	m.wg.Wait()
}

func (m *Manager) Subscribe() chan Event {
	ch := make(chan Event, 100)

	m.subsMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subsMu.Unlock()

	return ch
}

func (m *Manager) Unsubscribe(ch chan Event) {
	m.subsMu.Lock()
	delete(m.subscribers, ch)
	m.subsMu.Unlock()

	close(ch)
}

func (m *Manager) broadcast(event Event) {
	m.subsMu.RLock()
	defer m.subsMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- event:
		default:
			// Slow subscriber; it will catch up on the next event.
		}
	}
}
