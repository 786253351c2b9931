package capture

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const (
	defaultDoctorTTL     = 5 * time.Minute
	defaultDoctorTimeout = 10 * time.Second
)

// Capabilities describes whether live capture can work on this host.
type Capabilities struct {
	FFmpegPath    string    `json:"ffmpeg_path,omitempty"`
	FFmpegVersion string    `json:"ffmpeg_version,omitempty"`
	Format        string    `json:"format"`
	Device        string    `json:"device"`
	Available     bool      `json:"available"`
	Error         string    `json:"error,omitempty"`
	ProbedAt      time.Time `json:"probed_at"`
}

// Prober inspects the capture toolchain.
type Prober interface {
	Probe(ctx context.Context) (*Capabilities, error)
}

// FFmpegProber locates the ffmpeg binary and reads its version. File replays
// need no binary and always probe as available.
type FFmpegProber struct {
	Binary  string
	Format  string
	Device  string
	Timeout time.Duration
}

func (p *FFmpegProber) Probe(ctx context.Context) (*Capabilities, error) {
	caps := &Capabilities{Format: p.Format, Device: p.Device, ProbedAt: time.Now()}
	if p.Format == "file" {
		caps.Available = true
		return caps, nil
	}

	path, err := exec.LookPath(p.Binary)
	if err != nil {
		caps.Error = err.Error()
		return caps, nil
	}
	caps.FFmpegPath = path

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultDoctorTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, path, "-hide_banner", "-version").Output()
	if err != nil {
		return nil, fmt.Errorf("run %s -version: %w", path, err)
	}
	caps.FFmpegVersion = parseFFmpegVersion(out)
	caps.Available = true
	return caps, nil
}

// parseFFmpegVersion reads "ffmpeg version 6.1.1 Copyright ..." style output.
func parseFFmpegVersion(out []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(out))
	if !sc.Scan() {
		return ""
	}
	fields := strings.Fields(sc.Text())
	for i := 0; i+1 < len(fields); i++ {
		if fields[i] == "version" {
			return fields[i+1]
		}
	}
	return ""
}

// CachedDoctor wraps a Prober and caches its result for a TTL so status
// requests do not spawn a process each time.
type CachedDoctor struct {
	prober Prober
	ttl    time.Duration
	logger *slog.Logger

	mu     sync.RWMutex
	cached *Capabilities
}

func NewCachedDoctor(prober Prober, logger *slog.Logger) *CachedDoctor {
	return &CachedDoctor{
		prober: prober,
		ttl:    defaultDoctorTTL,
		logger: logger,
	}
}

// Get returns cached capabilities if fresh, otherwise re-probes.
func (d *CachedDoctor) Get(ctx context.Context) (*Capabilities, error) {
	d.mu.RLock()
	if d.cached != nil && time.Since(d.cached.ProbedAt) < d.ttl {
		caps := d.cached
		d.mu.RUnlock()
		return caps, nil
	}
	d.mu.RUnlock()

	return d.Refresh(ctx)
}

func (d *CachedDoctor) Peek() *Capabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

// Refresh probes again. A failed probe falls back to the stale result when
// there is one.
func (d *CachedDoctor) Refresh(ctx context.Context) (*Capabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	caps, err := d.prober.Probe(ctx)
	if err != nil {
		d.logger.Warn("capture probe failed", "error", err)
		if d.cached != nil {
			d.logger.Info("returning stale capture capabilities")
			return d.cached, nil
		}
		return nil, err
	}

	d.cached = caps
	return caps, nil
}

// Invalidate forces the next Get to probe. Called after a failed start so a
// newly plugged camera is noticed.
func (d *CachedDoctor) Invalidate() {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
}
