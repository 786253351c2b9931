package playback

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ringside/ringside-agent/internal/objstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func mp4Bytes(size int) []byte {
	b := make([]byte, size)
	copy(b, []byte{0x00, 0x00, 0x00, 0x20, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm'})
	for i := 12; i < size; i++ {
		b[i] = byte(i)
	}
	return b
}

func writeVideo(t *testing.T, size int) (string, []byte) {
	t.Helper()
	data := mp4Bytes(size)
	path := filepath.Join(t.TempDir(), "bout.bin")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write video: %v", err)
	}
	return path, data
}

func TestServer_ServeFile(t *testing.T) {
	path, data := writeVideo(t, 1000)
	s := NewServer(testLogger())

	tests := []struct {
		name       string
		rangeHdr   string
		wantStatus int
		wantBody   []byte
		wantRange  string
	}{
		{"full", "", http.StatusOK, data, ""},
		{"partial", "bytes=100-199", http.StatusPartialContent, data[100:200], "bytes 100-199/1000"},
		{"malformed ignored", "frames=1-2", http.StatusOK, data, ""},
		{"unsatisfiable", "bytes=5000-", http.StatusRequestedRangeNotSatisfiable, nil, "bytes */1000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/playback/last", nil)
			if tt.rangeHdr != "" {
				req.Header.Set("Range", tt.rangeHdr)
			}
			rec := httptest.NewRecorder()

			if err := s.ServeFile(rec, req, path); err != nil {
				t.Fatalf("ServeFile() error = %v", err)
			}
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Content-Range"); got != tt.wantRange {
				t.Errorf("Content-Range = %q, want %q", got, tt.wantRange)
			}
			if tt.wantBody != nil && !bytes.Equal(rec.Body.Bytes(), tt.wantBody) {
				t.Errorf("body length = %d, want %d", rec.Body.Len(), len(tt.wantBody))
			}
			if tt.wantStatus != http.StatusRequestedRangeNotSatisfiable {
				if ct := rec.Header().Get("Content-Type"); ct != "video/mp4" {
					t.Errorf("Content-Type = %q, want video/mp4", ct)
				}
			}
		})
	}
}

func TestServer_ServeFile_Missing(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/playback/last", nil)
	if err := NewServer(testLogger()).ServeFile(rec, req, filepath.Join(t.TempDir(), "nope.mp4")); err != nil {
		t.Fatalf("ServeFile() error = %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

type countingStore struct {
	objstore.Store
	gets int
}

func (s *countingStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.gets++
	return s.Store.Get(ctx, key)
}

func TestCache_FetchOnce(t *testing.T) {
	fs, err := objstore.NewFileStore(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	data := mp4Bytes(2048)
	loc, err := fs.Put(context.Background(), "videos/1-a-bout.mp4", bytes.NewReader(data), int64(len(data)), "video/mp4", nil)
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	store := &countingStore{Store: fs}
	cache := NewCache(store, filepath.Join(t.TempDir(), "cache"), testLogger())

	first, err := cache.Fetch(context.Background(), loc.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	second, err := cache.Fetch(context.Background(), loc.URL)
	if err != nil {
		t.Fatalf("second Fetch() error = %v", err)
	}
	if first != second {
		t.Errorf("paths differ: %q vs %q", first, second)
	}
	if store.gets != 1 {
		t.Errorf("store.Get called %d times, want 1", store.gets)
	}
	if filepath.Ext(first) != ".mp4" {
		t.Errorf("cached path %q lost its extension", first)
	}

	got, _ := os.ReadFile(first)
	if !bytes.Equal(got, data) {
		t.Error("cached video differs from stored object")
	}
}

func TestCache_MissingObject(t *testing.T) {
	fs, err := objstore.NewFileStore(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	cache := NewCache(fs, t.TempDir(), testLogger())

	_, err = cache.Fetch(context.Background(), "gs://fights/videos/missing.mp4")
	if !errors.Is(err, objstore.ErrNotFound) {
		t.Errorf("Fetch() error = %v, want ErrNotFound", err)
	}

	if _, err := cache.Fetch(context.Background(), "not a url"); err == nil {
		t.Error("expected error for unparseable location")
	}
}
