package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNew_Defaults(t *testing.T) {
	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != DefaultPort {
		t.Errorf("Port() = %d, want %d", cfg.Port(), DefaultPort)
	}
	if cfg.BackendMode() != BackendModeFake {
		t.Errorf("BackendMode() = %q, want %q", cfg.BackendMode(), BackendModeFake)
	}
	if cfg.UploadMode() != UploadModeStorage {
		t.Errorf("UploadMode() = %q, want %q", cfg.UploadMode(), UploadModeStorage)
	}
	if cfg.PollBackoff() != 2*cfg.PollInterval() {
		t.Errorf("PollBackoff() = %v, want twice the interval %v", cfg.PollBackoff(), cfg.PollInterval())
	}
	if cfg.PollMaxAttempts() != 0 {
		t.Errorf("PollMaxAttempts() = %d, want 0", cfg.PollMaxAttempts())
	}
}

func TestNew_EnvOverrides(t *testing.T) {
	t.Setenv(EnvBackendMode, "REAL")
	t.Setenv(EnvBackendURL, "https://api.example.com/")
	t.Setenv(EnvPollInterval, "350")
	t.Setenv(EnvCaptureInterval, "30000")

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BackendMode() != BackendModeReal {
		t.Errorf("BackendMode() = %q, want %q", cfg.BackendMode(), BackendModeReal)
	}
	if cfg.BackendURL() != "https://api.example.com" {
		t.Errorf("BackendURL() = %q, want trailing slash trimmed", cfg.BackendURL())
	}
	if cfg.PollInterval() != 350*time.Millisecond {
		t.Errorf("PollInterval() = %v, want 350ms", cfg.PollInterval())
	}
	if cfg.PollBackoff() != 700*time.Millisecond {
		t.Errorf("PollBackoff() = %v, want 700ms", cfg.PollBackoff())
	}
	if cfg.CaptureInterval() != 30*time.Second {
		t.Errorf("CaptureInterval() = %v, want 30s", cfg.CaptureInterval())
	}
}

func TestNew_RealBackendRequiresURL(t *testing.T) {
	t.Setenv(EnvBackendMode, BackendModeReal)

	if _, err := New(); err == nil {
		t.Fatal("expected error when backend url is missing")
	}
}

func TestNew_GCSRequiresBucket(t *testing.T) {
	t.Setenv(EnvStorageMode, StorageModeGCS)

	if _, err := New(); err == nil {
		t.Fatal("expected error when bucket is missing")
	}
}

func TestNew_InvalidPort(t *testing.T) {
	t.Setenv(EnvPort, "70000")

	if _, err := New(); err == nil {
		t.Fatal("expected error for out of range port")
	}
}

func TestNew_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ringside.toml")
	content := `
port = 9000
log_level = "debug"

[backend]
mode = "real"
url = "http://backend.local"

[storage]
mode = "gcs"
bucket = "fight-videos"

[poll]
interval_ms = 500
max_attempts = 20
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(EnvConfigFile, path)
	t.Setenv(EnvPort, "9100")

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != 9100 {
		t.Errorf("Port() = %d, want env override 9100", cfg.Port())
	}
	if cfg.LogLevel() != "debug" {
		t.Errorf("LogLevel() = %q, want debug", cfg.LogLevel())
	}
	if cfg.StorageBucket() != "fight-videos" {
		t.Errorf("StorageBucket() = %q, want fight-videos", cfg.StorageBucket())
	}
	if cfg.PollInterval() != 500*time.Millisecond {
		t.Errorf("PollInterval() = %v, want 500ms", cfg.PollInterval())
	}
	if cfg.PollMaxAttempts() != 20 {
		t.Errorf("PollMaxAttempts() = %d, want 20", cfg.PollMaxAttempts())
	}
}

func TestCaptureDevice_DefaultsByFormat(t *testing.T) {
	t.Setenv(EnvCaptureFormat, "v4l2")

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.CaptureDevice() != "/dev/video0" {
		t.Errorf("CaptureDevice() = %q, want /dev/video0", cfg.CaptureDevice())
	}
}

func TestNew_FileCaptureRequiresDevice(t *testing.T) {
	t.Setenv(EnvCaptureFormat, CaptureFormatFile)

	if _, err := New(); err == nil {
		t.Fatal("expected error when file capture has no path")
	}

	t.Setenv(EnvCaptureDevice, "/tmp/sparring.webm")
	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.CaptureDevice() != "/tmp/sparring.webm" {
		t.Errorf("CaptureDevice() = %q", cfg.CaptureDevice())
	}
}
