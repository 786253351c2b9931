package capture

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// Source acquires a live media stream. Closing the returned stream releases
// the underlying device.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// FFmpegSource captures from a local device by running ffmpeg and reading
// Matroska/WebM from its stdout.
type FFmpegSource struct {
	Binary string
	Format string
	Device string
	Logger *slog.Logger
}

func (s *FFmpegSource) Open(ctx context.Context) (io.ReadCloser, error) {
	binary := s.Binary
	if binary == "" {
		binary = "ffmpeg"
	}
	if _, err := exec.LookPath(binary); err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", s.Format, "-i", s.Device,
		"-c:v", "libvpx", "-deadline", "realtime", "-b:v", "1M",
		"-c:a", "libopus",
		"-f", "webm", "pipe:1",
	}

	// The process outlives the Open call; it is stopped through Close.
	cmd := exec.Command(binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr := &tailBuffer{limit: 4096}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	stream := &processStream{cmd: cmd, stdout: stdout, br: bufio.NewReaderSize(stdout, 64<<10), stderr: stderr, logger: s.Logger}

	// A device that cannot be opened makes ffmpeg exit without output, so
	// Open waits for the first bytes before reporting success.
	ready := make(chan error, 1)
	go func() {
		_, err := stream.br.Peek(1)
		ready <- err
	}()
	select {
	case err := <-ready:
		if err != nil {
			stream.Close()
			return nil, fmt.Errorf("capture device produced no data: %s", strings.TrimSpace(stderr.String()))
		}
	case <-ctx.Done():
		stream.Close()
		<-ready
		return nil, ctx.Err()
	}

	if s.Logger != nil {
		s.Logger.Debug("ffmpeg capture started", "format", s.Format, "device", s.Device, "pid", cmd.Process.Pid)
	}
	return stream, nil
}

type processStream struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	br     *bufio.Reader
	stderr *tailBuffer
	logger *slog.Logger
	once   sync.Once
}

func (p *processStream) Read(b []byte) (int, error) {
	n, err := p.br.Read(b)
	if err == io.EOF && n == 0 && p.stderr.Len() > 0 {
		// ffmpeg exiting on its own with output on stderr means the device
		// went away or was never usable.
		return 0, fmt.Errorf("ffmpeg exited: %s", strings.TrimSpace(p.stderr.String()))
	}
	return n, err
}

// Close stops the capture process and reaps it.
func (p *processStream) Close() error {
	p.once.Do(func() {
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
		_ = p.stdout.Close()
		_ = p.cmd.Wait()
		if p.logger != nil {
			p.logger.Debug("ffmpeg capture stopped")
		}
	})
	return nil
}

// FileSource streams a local file as if it were a live capture. The
// recording ends on its own at EOF. A positive BytesPerSecond paces reads so
// the file is sliced over time like a live feed.
type FileSource struct {
	Path           string
	BytesPerSecond int
}

func (s *FileSource) Open(ctx context.Context) (io.ReadCloser, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, err
	}
	if s.BytesPerSecond <= 0 {
		return f, nil
	}

	pacedCtx, cancel := context.WithCancel(context.Background())
	return &pacedReader{
		f:       f,
		limiter: rate.NewLimiter(rate.Limit(s.BytesPerSecond), s.BytesPerSecond),
		ctx:     pacedCtx,
		cancel:  cancel,
	}, nil
}

type pacedReader struct {
	f       *os.File
	limiter *rate.Limiter
	ctx     context.Context
	cancel  context.CancelFunc
}

func (p *pacedReader) Read(b []byte) (int, error) {
	if burst := p.limiter.Burst(); len(b) > burst {
		b = b[:burst]
	}
	n, err := p.f.Read(b)
	if n > 0 {
		if werr := p.limiter.WaitN(p.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}

func (p *pacedReader) Close() error {
	p.cancel()
	return p.f.Close()
}

// ReaderSource wraps an already open stream.
type ReaderSource struct {
	R io.ReadCloser
}

func (s *ReaderSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if s.R == nil {
		return nil, fmt.Errorf("no stream")
	}
	return s.R, nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if over := t.buf.Len() - t.limit; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *tailBuffer) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.Len()
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}
