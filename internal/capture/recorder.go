// Package capture slices a live media stream into fixed-duration chunks.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

var (
	ErrAlreadyRecording  = errors.New("already recording")
	ErrSourceUnavailable = errors.New("capture source unavailable")
)

const readBufferSize = 32 * 1024

// Chunk is one time slice of captured media. It is not modified after it
// is handed to OnChunk.
type Chunk struct {
	Index     int       `json:"index"`
	Data      []byte    `json:"-"`
	Size      int       `json:"size"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// Recorder owns at most one capture session at a time. A single emitter
// goroutine produces chunks, so OnChunk calls never overlap and arrive in
// capture order.
type Recorder struct {
	Interval time.Duration

	// OnChunk is called once per chunk. The next chunk is not cut until it
	// returns. Errors are logged and recording continues.
	OnChunk func(ctx context.Context, c Chunk) error

	// OnStopAll is called exactly once per session, after the final chunk's
	// OnChunk has returned.
	OnStopAll func(ctx context.Context, chunks []Chunk)

	OnStateChange func(recording bool)

	Logger *slog.Logger

	mu       sync.Mutex
	sess     *captureSession
	starting bool
	chunks   []Chunk
}

type captureSession struct {
	ctx    context.Context
	cancel context.CancelFunc
	stream io.ReadCloser

	stopOnce   sync.Once
	stopCh     chan struct{}
	readerDone chan struct{}
	done       chan struct{}

	bufMu      sync.Mutex
	buf        []byte
	sliceStart time.Time
}

func (s *captureSession) requestStop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Start opens src and begins slicing. The session outlives ctx; only Stop,
// end of stream or a read error ends it.
func (r *Recorder) Start(ctx context.Context, src Source) error {
	r.mu.Lock()
	if r.sess != nil || r.starting {
		r.mu.Unlock()
		return ErrAlreadyRecording
	}
	r.starting = true
	r.mu.Unlock()

	stream, err := src.Open(ctx)

	r.mu.Lock()
	r.starting = false
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sess := &captureSession{
		ctx:        sessCtx,
		cancel:     cancel,
		stream:     stream,
		stopCh:     make(chan struct{}),
		readerDone: make(chan struct{}),
		done:       make(chan struct{}),
		sliceStart: time.Now(),
	}
	r.sess = sess
	r.chunks = nil
	r.mu.Unlock()

	r.logger().Info("recording started", "interval", r.interval())
	if r.OnStateChange != nil {
		r.OnStateChange(true)
	}

	go r.read(sess)
	go r.emit(sess)
	return nil
}

// Stop ends the current session, flushes the final chunk and waits for
// OnStopAll to return. Stop without a live session is a no-op.
func (r *Recorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	sess := r.sess
	r.mu.Unlock()
	if sess == nil {
		return nil
	}

	sess.requestStop()
	select {
	case <-sess.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sess != nil
}

// Chunks returns a copy of the chunks produced by the current or last
// session.
func (r *Recorder) Chunks() []Chunk {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Chunk, len(r.chunks))
	copy(out, r.chunks)
	return out
}

func (r *Recorder) read(s *captureSession) {
	defer close(s.readerDone)
	defer s.requestStop()

	tmp := make([]byte, readBufferSize)
	for {
		n, err := s.stream.Read(tmp)
		if n > 0 {
			s.bufMu.Lock()
			s.buf = append(s.buf, tmp[:n]...)
			s.bufMu.Unlock()
		}
		if err != nil {
			select {
			case <-s.stopCh:
				// Stream closed by Stop.
			default:
				if errors.Is(err, io.EOF) {
					r.logger().Info("capture stream ended")
				} else {
					r.logger().Warn("capture stream read failed", "error", err)
				}
			}
			return
		}
	}
}

func (r *Recorder) emit(s *captureSession) {
	ticker := time.NewTicker(r.interval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.cut(s)
		case <-s.stopCh:
			ticker.Stop()
			s.stream.Close()
			<-s.readerDone
			r.cut(s)
			r.finish(s)
			return
		}
	}
}

// cut turns the bytes captured since the last cut into a chunk and hands it
// to OnChunk. Empty slices produce no chunk.
func (r *Recorder) cut(s *captureSession) {
	now := time.Now()

	s.bufMu.Lock()
	data := s.buf
	s.buf = nil
	started := s.sliceStart
	s.sliceStart = now
	s.bufMu.Unlock()

	if len(data) == 0 {
		return
	}

	r.mu.Lock()
	c := Chunk{
		Index:     len(r.chunks),
		Data:      data,
		Size:      len(data),
		StartedAt: started,
		EndedAt:   now,
	}
	r.chunks = append(r.chunks, c)
	r.mu.Unlock()

	if r.OnChunk == nil {
		return
	}
	if err := r.OnChunk(s.ctx, c); err != nil {
		r.logger().Warn("chunk handler failed", "index", c.Index, "bytes", c.Size, "error", err)
	}
}

func (r *Recorder) finish(s *captureSession) {
	chunks := r.Chunks()
	if r.OnStopAll != nil {
		r.OnStopAll(s.ctx, chunks)
	}
	s.cancel()

	r.logger().Info("recording stopped", "chunks", len(chunks))
	// The session is released only after the idle notification so a new
	// Start cannot report true ahead of this false.
	if r.OnStateChange != nil {
		r.OnStateChange(false)
	}

	r.mu.Lock()
	r.sess = nil
	r.mu.Unlock()
	close(s.done)
}

func (r *Recorder) interval() time.Duration {
	if r.Interval <= 0 {
		return time.Second
	}
	return r.Interval
}

func (r *Recorder) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.Logger
}
