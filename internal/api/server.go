package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ringside/ringside-agent/internal/backend"
	"github.com/ringside/ringside-agent/internal/capture"
	"github.com/ringside/ringside-agent/internal/playback"
	"github.com/ringside/ringside-agent/internal/processing"
	"github.com/ringside/ringside-agent/internal/session"
	"github.com/ringside/ringside-agent/internal/state"
	"github.com/ringside/ringside-agent/internal/upload"
)

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port       int
	Repository state.Repository
	Backend    backend.Client
	Manager    *processing.Manager
	Sessions   *session.Registry
	Recorder   *capture.Recorder
	// Recordings holds the summary fetched when the last recording stopped.
	Recordings *upload.RecordingSink
	Doctor     *capture.CachedDoctor
	// NewSource opens a fresh capture device for every recording.
	NewSource func() capture.Source
	Uploader  upload.Uploader
	// UploadDir holds files received on POST /uploads until they are sent.
	UploadDir      string
	Cache          *playback.Cache
	PlaybackServer *playback.Server
	Logger         *slog.Logger
	StartTime      time.Time
	DeviceID       string
	Version        string

	uploads *uploadTracker
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  0,
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
