package capture

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// feed writes to w every millisecond until the pipe is closed.
func feed(w *io.PipeWriter) {
	payload := make([]byte, 512)
	for {
		if _, err := w.Write(payload); err != nil {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

type trackingStream struct {
	io.ReadCloser
	closed atomic.Bool
}

func (s *trackingStream) Close() error {
	s.closed.Store(true)
	return s.ReadCloser.Close()
}

type failingSource struct{}

func (failingSource) Open(ctx context.Context) (io.ReadCloser, error) {
	return nil, errors.New("permission denied")
}

func TestRecorder_ChunkCountAndOrder(t *testing.T) {
	pr, pw := io.Pipe()
	go feed(pw)
	stream := &trackingStream{ReadCloser: pr}

	const interval = 50 * time.Millisecond
	var mu sync.Mutex
	var got []Chunk
	stopAll := 0

	r := &Recorder{
		Interval: interval,
		OnChunk: func(ctx context.Context, c Chunk) error {
			mu.Lock()
			got = append(got, c)
			mu.Unlock()
			return nil
		},
		OnStopAll: func(ctx context.Context, chunks []Chunk) {
			stopAll++
		},
	}

	start := time.Now()
	if err := r.Start(context.Background(), &ReaderSource{R: stream}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !r.Recording() {
		t.Fatal("Recording() = false after Start")
	}

	time.Sleep(520 * time.Millisecond)
	if err := r.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	elapsed := time.Since(start)

	if r.Recording() {
		t.Error("Recording() = true after Stop")
	}
	if !stream.closed.Load() {
		t.Error("stream was not released on Stop")
	}
	if stopAll != 1 {
		t.Errorf("OnStopAll called %d times, want 1", stopAll)
	}

	want := int(elapsed / interval)
	if n := len(got); n < want-1 || n > want+1 {
		t.Errorf("chunk count = %d, want %d ± 1 (elapsed %v)", n, want, elapsed)
	}
	for i, c := range got {
		if c.Index != i {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
		if len(c.Data) == 0 {
			t.Errorf("chunk %d is empty", i)
		}
		if i > 0 && c.StartedAt.Before(got[i-1].StartedAt) {
			t.Errorf("chunk %d started before chunk %d", i, i-1)
		}
	}
	if len(r.Chunks()) != len(got) {
		t.Errorf("Chunks() = %d, want %d", len(r.Chunks()), len(got))
	}
}

func TestRecorder_StopTwiceCallsStopAllOnce(t *testing.T) {
	pr, pw := io.Pipe()
	go feed(pw)

	var stopAll atomic.Int32
	r := &Recorder{
		Interval:  10 * time.Millisecond,
		OnStopAll: func(ctx context.Context, chunks []Chunk) { stopAll.Add(1) },
	}
	if err := r.Start(context.Background(), &ReaderSource{R: pr}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Stop(context.Background())
		}()
	}
	wg.Wait()
	r.Stop(context.Background())

	if n := stopAll.Load(); n != 1 {
		t.Errorf("OnStopAll called %d times, want 1", n)
	}
}

func TestRecorder_StopWhenIdleIsNoop(t *testing.T) {
	r := &Recorder{}
	if err := r.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() on idle recorder error = %v", err)
	}
}

func TestRecorder_StartFailure(t *testing.T) {
	changes := 0
	r := &Recorder{OnStateChange: func(bool) { changes++ }}

	err := r.Start(context.Background(), failingSource{})
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("Start() error = %v, want ErrSourceUnavailable", err)
	}
	if r.Recording() {
		t.Error("Recording() = true after failed Start")
	}
	if changes != 0 {
		t.Errorf("OnStateChange called %d times on failed start", changes)
	}
}

func TestRecorder_AlreadyRecording(t *testing.T) {
	pr, pw := io.Pipe()
	go feed(pw)

	r := &Recorder{Interval: 10 * time.Millisecond}
	if err := r.Start(context.Background(), &ReaderSource{R: pr}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer r.Stop(context.Background())

	if err := r.Start(context.Background(), &ReaderSource{R: pr}); !errors.Is(err, ErrAlreadyRecording) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRecording", err)
	}
}

func TestRecorder_FinalChunkAwaitedBeforeStopAll(t *testing.T) {
	pr, pw := io.Pipe()

	var mu sync.Mutex
	var order []string
	r := &Recorder{
		Interval: time.Hour,
		OnChunk: func(ctx context.Context, c Chunk) error {
			time.Sleep(20 * time.Millisecond)
			mu.Lock()
			order = append(order, "chunk")
			mu.Unlock()
			return nil
		},
		OnStopAll: func(ctx context.Context, chunks []Chunk) {
			mu.Lock()
			order = append(order, "stop")
			mu.Unlock()
			if len(chunks) != 1 || string(chunks[0].Data) != "tail" {
				t.Errorf("chunks at stop = %+v", chunks)
			}
		},
	}
	if err := r.Start(context.Background(), &ReaderSource{R: pr}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := pw.Write([]byte("tail")); err != nil {
		t.Fatalf("write: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	if err := r.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "chunk" || order[1] != "stop" {
		t.Errorf("order = %v, want [chunk stop]", order)
	}
}

func TestRecorder_EndOfStreamStopsOnItsOwn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bout.webm")
	if err := os.WriteFile(path, make([]byte, 4096), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	done := make(chan []Chunk, 1)
	r := &Recorder{
		Interval:  time.Hour,
		OnStopAll: func(ctx context.Context, chunks []Chunk) { done <- chunks },
	}
	if err := r.Start(context.Background(), &FileSource{Path: path}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	select {
	case chunks := <-done:
		total := 0
		for _, c := range chunks {
			total += c.Size
		}
		if total != 4096 {
			t.Errorf("captured %d bytes, want 4096", total)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("recording did not stop at end of file")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if r.Recording() {
		t.Error("Recording() = true after end of stream")
	}
}

func TestFileSource_Paced(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.webm")
	if err := os.WriteFile(path, make([]byte, 3000), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	src := &FileSource{Path: path, BytesPerSecond: 10000}
	rc, err := src.Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()

	start := time.Now()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(data) != 3000 {
		t.Errorf("read %d bytes, want 3000", len(data))
	}
	if time.Since(start) > time.Second {
		t.Error("paced read of a file under the burst size should not block")
	}
}

func TestFFmpegSource_MissingBinary(t *testing.T) {
	src := &FFmpegSource{Binary: "/nonexistent/ffmpeg", Format: "v4l2", Device: "/dev/video0"}
	if _, err := src.Open(context.Background()); err == nil {
		t.Fatal("expected error for missing ffmpeg binary")
	}
}

func TestRecorder_StateChangesNeverInterleave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bout.webm")
	if err := os.WriteFile(path, make([]byte, 1024), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	var mu sync.Mutex
	var states []bool
	restartErr := make(chan error, 1)
	var r *Recorder
	r = &Recorder{
		Interval: time.Hour,
		OnStateChange: func(recording bool) {
			mu.Lock()
			states = append(states, recording)
			mu.Unlock()
			if !recording {
				// A Start racing the end of the session must not slip in
				// before the idle notification has been delivered.
				restartErr <- r.Start(context.Background(), &FileSource{Path: path})
			}
		},
	}
	if err := r.Start(context.Background(), &FileSource{Path: path}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	select {
	case err := <-restartErr:
		if !errors.Is(err, ErrAlreadyRecording) {
			t.Errorf("Start() during idle notification error = %v, want ErrAlreadyRecording", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("recording did not stop at end of file")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if r.Recording() {
		t.Error("Recording() = true after end of stream")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(states) != 2 || !states[0] || states[1] {
		t.Errorf("state changes = %v, want [true false]", states)
	}
}
