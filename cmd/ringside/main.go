package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/ringside/ringside-agent/internal/api"
	"github.com/ringside/ringside-agent/internal/backend"
	"github.com/ringside/ringside-agent/internal/capture"
	"github.com/ringside/ringside-agent/internal/config"
	"github.com/ringside/ringside-agent/internal/db"
	"github.com/ringside/ringside-agent/internal/logging"
	"github.com/ringside/ringside-agent/internal/objstore"
	"github.com/ringside/ringside-agent/internal/playback"
	"github.com/ringside/ringside-agent/internal/processing"
	"github.com/ringside/ringside-agent/internal/progress"
	"github.com/ringside/ringside-agent/internal/session"
	"github.com/ringside/ringside-agent/internal/state"
	"github.com/ringside/ringside-agent/internal/ui"
	"github.com/ringside/ringside-agent/internal/upload"
)

var Version = "0.1.0"

// fileCaptureRate paces file replays so they are sliced like a live feed.
const fileCaptureRate = 512 << 10

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := os.MkdirAll(cfg.CacheDir(), 0755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting ringside agent", "version", Version, "data_dir", logging.SanitizePath(cfg.DataDir()))

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := state.NewRepository(database.Conn())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deviceID, err := state.EnsureSecret(ctx, repo, state.KeyDeviceID, 16)
	if err != nil {
		return fmt.Errorf("failed to ensure device ID: %w", err)
	}
	authToken, err := state.EnsureSecret(ctx, repo, state.KeyAuthToken, 32)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Printf("║  %-56s ║\n", "RINGSIDE AGENT v"+Version)
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-27d ║\n", cfg.Port())
	fmt.Printf("║  Auth Token: %-45s ║\n", authToken)
	fmt.Printf("║  Device ID:  %-45s ║\n", deviceID[:16]+"...")
	fmt.Printf("║  Backend:    %-45s ║\n", cfg.BackendMode())
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open object store: %w", err)
	}
	defer closeStore()

	client := backend.New(backend.Options{
		Fake:      cfg.BackendMode() == config.BackendModeFake,
		BaseURL:   cfg.BackendURL(),
		Token:     cfg.BackendToken(),
		RateLimit: cfg.BackendRateLimit(),
		DeviceID:  deviceID,
	}, logging.WithComponent(logger, "backend"))
	logger.Info("backend selected", "mode", cfg.BackendMode(), "base_url", cfg.BackendURL())

	var uploader upload.Uploader
	switch cfg.UploadMode() {
	case config.UploadModeChunked:
		uploader = upload.NewChunkedUploader(client, repo, cfg.UploadChunkSize(), logger)
	default:
		uploader = upload.NewStorageUploader(store, client, repo, logger)
	}

	poller := &progress.Poller{
		Fetcher:      client,
		Interval:     cfg.PollInterval(),
		ErrorBackoff: cfg.PollBackoff(),
		MaxAttempts:  cfg.PollMaxAttempts(),
		Logger:       logging.WithComponent(logger, "poller"),
	}
	manager := processing.NewManager(processing.NewTracker(poller, client, logger), client, logger)
	sessions := session.NewRegistry(manager, client, logger)

	newSource := func() capture.Source {
		if cfg.CaptureFormat() == config.CaptureFormatFile {
			return &capture.FileSource{Path: cfg.CaptureDevice(), BytesPerSecond: fileCaptureRate}
		}
		return &capture.FFmpegSource{
			Binary: cfg.CaptureFFmpeg(),
			Format: cfg.CaptureFormat(),
			Device: cfg.CaptureDevice(),
			Logger: logger,
		}
	}

	doctor := capture.NewCachedDoctor(&capture.FFmpegProber{
		Binary: cfg.CaptureFFmpeg(),
		Format: cfg.CaptureFormat(),
		Device: cfg.CaptureDevice(),
	}, logger)
	if caps, err := doctor.Refresh(ctx); err != nil {
		logger.Warn("initial capture probe failed", "error", err)
	} else {
		logger.Info("capture capabilities detected",
			"available", caps.Available,
			"ffmpeg", caps.FFmpegVersion,
			"format", caps.Format,
			"device", caps.Device,
		)
	}

	var tray *ui.Tray
	sink := upload.NewRecordingSink(client, repo, logging.WithComponent(logger, "recording"))
	recorder := &capture.Recorder{
		Interval: cfg.CaptureInterval(),
		Logger:   logging.WithComponent(logger, "capture"),
		OnChunk: func(ctx context.Context, c capture.Chunk) error {
			return sink.Send(ctx, c.Index, c.Data)
		},
		OnStopAll: func(ctx context.Context, chunks []capture.Chunk) {
			job, summary, err := sink.Finish(ctx)
			if err != nil {
				logger.Error("recording could not be finalised", "chunks", len(chunks), "error", err)
				return
			}
			logSummary(logger, summary)
			sessions.Close(job.ID)
			manager.Track(job)
		},
		OnStateChange: func(recording bool) {
			if recording {
				sink.Begin()
			}
			if tray != nil {
				tray.SetRecording(recording)
			}
		},
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})
	quit := sync.OnceFunc(func() { close(quitCh) })

	if !cfg.Headless() {
		tray = ui.NewTray(ui.TrayConfig{
			Recorder:  recorder,
			NewSource: newSource,
			Manager:   manager,
			Logger:    logger,
			OnQuit:    quit,
		})
	}

	if last, err := repo.LastUpload(ctx); err == nil && last.JobID != "" {
		logger.Info("last upload available for review", "job_id", last.JobID, "video_url", last.VideoURL)
	}

	apiServer := api.NewServer(api.ServerConfig{
		Port:           cfg.Port(),
		Repository:     repo,
		Backend:        client,
		Manager:        manager,
		Sessions:       sessions,
		Recorder:       recorder,
		Recordings:     sink,
		Doctor:         doctor,
		NewSource:      newSource,
		Uploader:       uploader,
		UploadDir:      filepath.Join(cfg.DataDir(), "incoming"),
		Cache:          playback.NewCache(store, filepath.Join(cfg.CacheDir(), "videos"), logger),
		PlaybackServer: playback.NewServer(logger),
		Logger:         logger,
		StartTime:      startTime,
		DeviceID:       deviceID,
		Version:        Version,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			quit()
		case <-quitCh:
		}
	}()

	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		go tray.Run()
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := recorder.Stop(shutdownCtx); err != nil {
		logger.Error("failed to stop recording", "error", err)
	}
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}
	manager.Shutdown()
	if tray != nil {
		tray.Quit()
	}

	logger.Info("shutdown complete")
	return nil
}

// openStore returns the configured object store and a func releasing it.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (objstore.Store, func(), error) {
	log := logging.WithComponent(logger, "objstore")
	if cfg.StorageMode() == config.StorageModeGCS {
		s, err := objstore.NewGCSStore(ctx, cfg.StorageBucket(), cfg.StorageEndpoint(), log)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	}

	s, err := objstore.NewFileStore(cfg.StorageDir(), log)
	if err != nil {
		return nil, nil, err
	}
	return s, func() {}, nil
}

func logSummary(logger *slog.Logger, raw json.RawMessage) {
	var summary backend.Summary
	if err := json.Unmarshal(raw, &summary); err != nil {
		logger.Warn("final summary is not in the expected shape", "error", err)
		return
	}
	logger.Info("recording summary received", "intervals", len(summary.Intervals), "summary", summary.GlobalSummary)
}
