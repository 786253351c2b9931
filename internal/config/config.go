// Package config provides configuration management for the Ringside Agent.
// Configuration is built from defaults, an optional TOML file and environment
// variable overrides, applied in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	// Default values
	DefaultPort     = 8788
	DefaultLogLevel = "info"
	DefaultDataDir  = ".ringside"

	// Environment variable names
	EnvConfigFile = "RINGSIDE_CONFIG_FILE"
	EnvPort       = "RINGSIDE_PORT"
	EnvLogLevel   = "RINGSIDE_LOG_LEVEL"
	EnvDataDir    = "RINGSIDE_DATA_DIR"
	EnvHeadless   = "RINGSIDE_HEADLESS"

	// Backend environment variable names
	EnvBackendMode      = "RINGSIDE_BACKEND_MODE"
	EnvBackendURL       = "RINGSIDE_BACKEND_URL"
	EnvBackendToken     = "RINGSIDE_BACKEND_TOKEN"
	EnvBackendRateLimit = "RINGSIDE_BACKEND_RPS"

	// Storage environment variable names
	EnvStorageMode     = "RINGSIDE_STORAGE_MODE"
	EnvStorageBucket   = "RINGSIDE_STORAGE_BUCKET"
	EnvStorageEndpoint = "RINGSIDE_STORAGE_ENDPOINT"

	// Upload environment variable names
	EnvUploadMode      = "RINGSIDE_UPLOAD_MODE"
	EnvUploadChunkSize = "RINGSIDE_UPLOAD_CHUNK_BYTES"

	// Capture environment variable names
	EnvCaptureFFmpeg   = "RINGSIDE_CAPTURE_FFMPEG"
	EnvCaptureFormat   = "RINGSIDE_CAPTURE_FORMAT"
	EnvCaptureDevice   = "RINGSIDE_CAPTURE_DEVICE"
	EnvCaptureInterval = "RINGSIDE_CAPTURE_INTERVAL_MS"

	// Poll environment variable names
	EnvPollInterval    = "RINGSIDE_POLL_INTERVAL_MS"
	EnvPollBackoff     = "RINGSIDE_POLL_BACKOFF_MS"
	EnvPollMaxAttempts = "RINGSIDE_POLL_MAX_ATTEMPTS"

	// Database filename
	DBFilename = "ringside.db"

	BackendModeReal = "real"
	BackendModeFake = "fake"

	StorageModeGCS  = "gcs"
	StorageModeFile = "file"

	UploadModeStorage = "storage"
	UploadModeChunked = "chunked"

	// CaptureFormatFile replays the file named by the capture device instead
	// of opening a camera.
	CaptureFormatFile = "file"

	DefaultBackendRateLimit = 10.0
	DefaultUploadChunkSize  = 8 * 1024 * 1024
	DefaultCaptureFFmpeg    = "ffmpeg"
	DefaultCaptureInterval  = 1000 // milliseconds
	DefaultPollInterval     = 1000 // milliseconds
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	CacheDir() string
	Headless() bool

	BackendMode() string
	BackendURL() string
	BackendToken() string
	BackendRateLimit() float64

	StorageMode() string
	StorageBucket() string
	StorageEndpoint() string
	StorageDir() string

	UploadMode() string
	UploadChunkSize() int64

	CaptureFFmpeg() string
	CaptureFormat() string
	CaptureDevice() string
	CaptureInterval() time.Duration

	PollInterval() time.Duration
	PollBackoff() time.Duration
	PollMaxAttempts() int
}

// fileConfig mirrors the optional TOML file.
type fileConfig struct {
	Port     int    `toml:"port"`
	LogLevel string `toml:"log_level"`
	DataDir  string `toml:"data_dir"`
	Headless bool   `toml:"headless"`

	Backend struct {
		Mode      string  `toml:"mode"`
		URL       string  `toml:"url"`
		Token     string  `toml:"token"`
		RateLimit float64 `toml:"requests_per_second"`
	} `toml:"backend"`

	Storage struct {
		Mode     string `toml:"mode"`
		Bucket   string `toml:"bucket"`
		Endpoint string `toml:"endpoint"`
	} `toml:"storage"`

	Upload struct {
		Mode       string `toml:"mode"`
		ChunkBytes int64  `toml:"chunk_bytes"`
	} `toml:"upload"`

	Capture struct {
		FFmpeg     string `toml:"ffmpeg"`
		Format     string `toml:"format"`
		Device     string `toml:"device"`
		IntervalMs int    `toml:"interval_ms"`
	} `toml:"capture"`

	Poll struct {
		IntervalMs  int `toml:"interval_ms"`
		BackoffMs   int `toml:"backoff_ms"`
		MaxAttempts int `toml:"max_attempts"`
	} `toml:"poll"`
}

// EnvConfig holds the resolved configuration
type EnvConfig struct {
	port     int
	logLevel string
	dataDir  string
	headless bool

	backendMode      string
	backendURL       string
	backendToken     string
	backendRateLimit float64

	storageMode     string
	storageBucket   string
	storageEndpoint string

	uploadMode      string
	uploadChunkSize int64

	captureFFmpeg   string
	captureFormat   string
	captureDevice   string
	captureInterval time.Duration

	pollInterval    time.Duration
	pollBackoff     time.Duration
	pollMaxAttempts int
}

// New creates a new EnvConfig with defaults, file values and environment overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:             DefaultPort,
		logLevel:         DefaultLogLevel,
		dataDir:          defaultDataDir(),
		backendMode:      BackendModeFake,
		backendRateLimit: DefaultBackendRateLimit,
		storageMode:      StorageModeFile,
		uploadMode:       UploadModeStorage,
		uploadChunkSize:  DefaultUploadChunkSize,
		captureFFmpeg:    DefaultCaptureFFmpeg,
		captureFormat:    defaultCaptureFormat(),
		captureInterval:  DefaultCaptureInterval * time.Millisecond,
		pollInterval:     DefaultPollInterval * time.Millisecond,
	}

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *EnvConfig) loadFile(path string) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if fc.Port != 0 {
		c.port = fc.Port
	}
	if fc.LogLevel != "" {
		c.logLevel = fc.LogLevel
	}
	if fc.DataDir != "" {
		c.dataDir = fc.DataDir
	}
	c.headless = c.headless || fc.Headless

	if fc.Backend.Mode != "" {
		c.backendMode = fc.Backend.Mode
	}
	if fc.Backend.URL != "" {
		c.backendURL = fc.Backend.URL
	}
	if fc.Backend.Token != "" {
		c.backendToken = fc.Backend.Token
	}
	if fc.Backend.RateLimit > 0 {
		c.backendRateLimit = fc.Backend.RateLimit
	}

	if fc.Storage.Mode != "" {
		c.storageMode = fc.Storage.Mode
	}
	if fc.Storage.Bucket != "" {
		c.storageBucket = fc.Storage.Bucket
	}
	if fc.Storage.Endpoint != "" {
		c.storageEndpoint = fc.Storage.Endpoint
	}

	if fc.Upload.Mode != "" {
		c.uploadMode = fc.Upload.Mode
	}
	if fc.Upload.ChunkBytes > 0 {
		c.uploadChunkSize = fc.Upload.ChunkBytes
	}

	if fc.Capture.FFmpeg != "" {
		c.captureFFmpeg = fc.Capture.FFmpeg
	}
	if fc.Capture.Format != "" {
		c.captureFormat = fc.Capture.Format
	}
	if fc.Capture.Device != "" {
		c.captureDevice = fc.Capture.Device
	}
	if fc.Capture.IntervalMs > 0 {
		c.captureInterval = time.Duration(fc.Capture.IntervalMs) * time.Millisecond
	}

	if fc.Poll.IntervalMs > 0 {
		c.pollInterval = time.Duration(fc.Poll.IntervalMs) * time.Millisecond
	}
	if fc.Poll.BackoffMs > 0 {
		c.pollBackoff = time.Duration(fc.Poll.BackoffMs) * time.Millisecond
	}
	if fc.Poll.MaxAttempts > 0 {
		c.pollMaxAttempts = fc.Poll.MaxAttempts
	}

	return nil
}

func (c *EnvConfig) loadEnv() error {
	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		c.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		c.logLevel = ll
	}

	if dd := os.Getenv(EnvDataDir); dd != "" {
		c.dataDir = dd
	}

	if h := os.Getenv(EnvHeadless); h != "" {
		headless, err := strconv.ParseBool(h)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvHeadless, err)
		}
		c.headless = headless
	}

	if v := os.Getenv(EnvBackendMode); v != "" {
		c.backendMode = strings.ToLower(v)
	}
	if v := os.Getenv(EnvBackendURL); v != "" {
		c.backendURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv(EnvBackendToken); v != "" {
		c.backendToken = v
	}
	if v := os.Getenv(EnvBackendRateLimit); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvBackendRateLimit, err)
		}
		c.backendRateLimit = rps
	}

	if v := os.Getenv(EnvStorageMode); v != "" {
		c.storageMode = strings.ToLower(v)
	}
	if v := os.Getenv(EnvStorageBucket); v != "" {
		c.storageBucket = v
	}
	if v := os.Getenv(EnvStorageEndpoint); v != "" {
		c.storageEndpoint = v
	}

	if v := os.Getenv(EnvUploadMode); v != "" {
		c.uploadMode = strings.ToLower(v)
	}
	if v := os.Getenv(EnvUploadChunkSize); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvUploadChunkSize, err)
		}
		c.uploadChunkSize = n
	}

	if v := os.Getenv(EnvCaptureFFmpeg); v != "" {
		c.captureFFmpeg = v
	}
	if v := os.Getenv(EnvCaptureFormat); v != "" {
		c.captureFormat = v
	}
	if v := os.Getenv(EnvCaptureDevice); v != "" {
		c.captureDevice = v
	}

	var err error
	if c.captureInterval, err = envMillis(EnvCaptureInterval, c.captureInterval); err != nil {
		return err
	}
	if c.pollInterval, err = envMillis(EnvPollInterval, c.pollInterval); err != nil {
		return err
	}
	if c.pollBackoff, err = envMillis(EnvPollBackoff, c.pollBackoff); err != nil {
		return err
	}

	if v := os.Getenv(EnvPollMaxAttempts); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPollMaxAttempts, err)
		}
		c.pollMaxAttempts = n
	}

	return nil
}

func (c *EnvConfig) validate() error {
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port %d: port must be between 1 and 65535", c.port)
	}

	switch c.backendMode {
	case BackendModeReal:
		if c.backendURL == "" {
			return fmt.Errorf("%s is required when backend mode is %q", EnvBackendURL, BackendModeReal)
		}
	case BackendModeFake:
	default:
		return fmt.Errorf("invalid backend mode %q", c.backendMode)
	}

	switch c.storageMode {
	case StorageModeGCS:
		if c.storageBucket == "" {
			return fmt.Errorf("%s is required when storage mode is %q", EnvStorageBucket, StorageModeGCS)
		}
	case StorageModeFile:
	default:
		return fmt.Errorf("invalid storage mode %q", c.storageMode)
	}

	switch c.uploadMode {
	case UploadModeStorage, UploadModeChunked:
	default:
		return fmt.Errorf("invalid upload mode %q", c.uploadMode)
	}

	if c.uploadChunkSize <= 0 {
		return fmt.Errorf("upload chunk size must be positive")
	}
	if c.captureFormat == CaptureFormatFile && c.captureDevice == "" {
		return fmt.Errorf("%s must name a file when capture format is %q", EnvCaptureDevice, CaptureFormatFile)
	}
	if c.captureInterval <= 0 {
		return fmt.Errorf("capture interval must be positive")
	}
	if c.pollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.pollMaxAttempts < 0 {
		return fmt.Errorf("poll max attempts cannot be negative")
	}

	return nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// CacheDir returns the cache directory path
func (c *EnvConfig) CacheDir() string {
	return filepath.Join(c.dataDir, "cache")
}

// Headless reports whether the tray UI is disabled
func (c *EnvConfig) Headless() bool {
	return c.headless
}

func (c *EnvConfig) BackendMode() string {
	return c.backendMode
}

func (c *EnvConfig) BackendURL() string {
	return c.backendURL
}

func (c *EnvConfig) BackendToken() string {
	return c.backendToken
}

func (c *EnvConfig) BackendRateLimit() float64 {
	return c.backendRateLimit
}

func (c *EnvConfig) StorageMode() string {
	return c.storageMode
}

func (c *EnvConfig) StorageBucket() string {
	return c.storageBucket
}

func (c *EnvConfig) StorageEndpoint() string {
	return c.storageEndpoint
}

// StorageDir is the root of the local object store used in file mode
func (c *EnvConfig) StorageDir() string {
	return filepath.Join(c.dataDir, "objects")
}

func (c *EnvConfig) UploadMode() string {
	return c.uploadMode
}

func (c *EnvConfig) UploadChunkSize() int64 {
	return c.uploadChunkSize
}

func (c *EnvConfig) CaptureFFmpeg() string {
	return c.captureFFmpeg
}

func (c *EnvConfig) CaptureFormat() string {
	return c.captureFormat
}

func (c *EnvConfig) CaptureDevice() string {
	if c.captureDevice != "" {
		return c.captureDevice
	}
	return defaultCaptureDevice(c.captureFormat)
}

func (c *EnvConfig) CaptureInterval() time.Duration {
	return c.captureInterval
}

func (c *EnvConfig) PollInterval() time.Duration {
	return c.pollInterval
}

// PollBackoff returns the sleep after a failed status request.
// Defaults to twice the poll interval.
func (c *EnvConfig) PollBackoff() time.Duration {
	if c.pollBackoff > 0 {
		return c.pollBackoff
	}
	return 2 * c.pollInterval
}

// PollMaxAttempts returns the retry cap for a poll loop; 0 means unlimited.
func (c *EnvConfig) PollMaxAttempts() int {
	return c.pollMaxAttempts
}

func envMillis(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
