package ui

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/getlantern/systray"

	"github.com/ringside/ringside-agent/internal/backend"
	"github.com/ringside/ringside-agent/internal/capture"
	"github.com/ringside/ringside-agent/internal/processing"
)

//go:embed icon.png
var iconBytes []byte

const startTimeout = 10 * time.Second

type Tray struct {
	recorder  *capture.Recorder
	newSource func() capture.Source
	manager   *processing.Manager
	logger    *slog.Logger

	statusItem *systray.MenuItem
	jobItem    *systray.MenuItem
	startItem  *systray.MenuItem
	stopItem   *systray.MenuItem

	mu    sync.Mutex
	ready bool

	onQuit func()
}

type TrayConfig struct {
	Recorder  *capture.Recorder
	NewSource func() capture.Source
	Manager   *processing.Manager
	Logger    *slog.Logger
	OnQuit    func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		recorder:  cfg.Recorder,
		newSource: cfg.NewSource,
		manager:   cfg.Manager,
		logger:    cfg.Logger,
		onQuit:    cfg.OnQuit,
	}
}

// Run blocks on the platform event loop until Quit.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("Ringside")
	systray.SetTooltip("Ringside Agent")

	t.statusItem = systray.AddMenuItem("Status: Idle", "Current agent status")
	t.statusItem.Disable()

	t.jobItem = systray.AddMenuItem("No analysis yet", "Latest tracked job")
	t.jobItem.Disable()

	systray.AddSeparator()

	t.startItem = systray.AddMenuItem("Start Recording", "Capture from the configured device")
	t.stopItem = systray.AddMenuItem("Stop Recording", "Stop capturing and send the last chunk")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit Ringside Agent")

	t.mu.Lock()
	t.ready = true
	t.mu.Unlock()
	t.SetRecording(t.recorder != nil && t.recorder.Recording())

	if t.manager != nil {
		go t.followJobs()
	}

	go func() {
		for {
			select {
			case <-t.startItem.ClickedCh:
				t.startRecording()
			case <-t.stopItem.ClickedCh:
				t.stopRecording()
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

func (t *Tray) startRecording() {
	if t.recorder == nil || t.newSource == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()
	if err := t.recorder.Start(ctx, t.newSource()); err != nil {
		t.logger.Error("failed to start recording", "error", err)
		t.UpdateStatus("Camera unavailable")
	}
}

func (t *Tray) stopRecording() {
	if t.recorder == nil {
		return
	}
	go func() {
		if err := t.recorder.Stop(context.Background()); err != nil {
			t.logger.Error("failed to stop recording", "error", err)
		}
	}()
}

// SetRecording flips the Start/Stop items. It is safe to call before the
// tray is ready.
func (t *Tray) SetRecording(recording bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.ready {
		return
	}

	if recording {
		t.startItem.Disable()
		t.stopItem.Enable()
		t.statusItem.SetTitle("Status: Recording")
		return
	}
	t.startItem.Enable()
	t.stopItem.Disable()
	t.statusItem.SetTitle("Status: Idle")
}

func (t *Tray) UpdateStatus(status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.ready {
		return
	}
	t.statusItem.SetTitle("Status: " + status)
}

func (t *Tray) followJobs() {
	events := t.manager.Subscribe()
	defer t.manager.Unsubscribe(events)

	for ev := range events {
		t.mu.Lock()
		t.jobItem.SetTitle(jobTitle(ev.Job))
		t.mu.Unlock()
	}
}

// jobTitle is the one-line menu label for a tracked job.
func jobTitle(j processing.Job) string {
	short := j.ID
	if len(short) > 8 {
		short = short[:8]
	}

	switch j.State {
	case processing.StateCompleted:
		return fmt.Sprintf("Job %s: analysis ready", short)
	case processing.StateFailed:
		return fmt.Sprintf("Job %s: failed", short)
	case processing.StateCancelled:
		return fmt.Sprintf("Job %s: no longer tracked", short)
	}

	phase := "Splitting"
	if j.Phase == backend.PhaseAnalysis {
		phase = "Analysing"
	}
	if j.Retries > 0 && j.Error != "" {
		return fmt.Sprintf("Job %s: %s %d%% (retrying)", short, phase, j.Percent)
	}
	return fmt.Sprintf("Job %s: %s %d%%", short, phase, j.Percent)
}

func (t *Tray) Quit() {
	systray.Quit()
}
