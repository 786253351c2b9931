package objstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantBucket string
		wantKey    string
		wantErr    bool
	}{
		{"gcs https", "https://storage.googleapis.com/fights/videos/1-a-bout.mp4", "fights", "videos/1-a-bout.mp4", false},
		{"gcs escaped", GCSURL("fights", "videos/my bout.mp4"), "fights", "videos/my bout.mp4", false},
		{"gs scheme", "gs://fights/videos/x.mp4", "fights", "videos/x.mp4", false},
		{"s3 regional", "https://mma-videos.s3.us-east-1.amazonaws.com/videos/x.webm", "mma-videos", "videos/x.webm", false},
		{"s3 global", "https://mma-videos.s3.amazonaws.com/x.webm", "mma-videos", "x.webm", false},
		{"file", "file:///data/ringside/_objects/videos/x.mp4", "/data/ringside", "videos/x.mp4", false},
		{"unknown host", "https://example.com/a/b", "", "", true},
		{"no key", "gs://fights/", "", "", true},
		{"ftp", "ftp://host/a", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, key, err := ParseLocation(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLocation(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if bucket != tt.wantBucket || key != tt.wantKey {
				t.Errorf("ParseLocation(%q) = (%q, %q), want (%q, %q)", tt.raw, bucket, key, tt.wantBucket, tt.wantKey)
			}
		})
	}
}

func TestFileStore_PutGet(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	ctx := context.Background()
	payload := bytes.Repeat([]byte("x"), 100_000)

	var last int64
	calls := 0
	loc, err := store.Put(ctx, "videos/a.mp4", bytes.NewReader(payload), int64(len(payload)), "video/mp4", func(n int64) {
		if n < last {
			t.Errorf("progress went backwards: %d after %d", n, last)
		}
		last = n
		calls++
	})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if last != int64(len(payload)) || calls == 0 {
		t.Errorf("final progress = %d after %d calls, want %d", last, calls, len(payload))
	}
	if loc.Key != "videos/a.mp4" || !strings.HasPrefix(loc.URL, "file://") {
		t.Errorf("location = %+v", loc)
	}

	bucket, key, err := ParseLocation(loc.URL)
	if err != nil {
		t.Fatalf("ParseLocation(%q) error = %v", loc.URL, err)
	}
	if bucket != loc.Bucket || key != loc.Key {
		t.Errorf("round trip = (%q, %q), want (%q, %q)", bucket, key, loc.Bucket, loc.Key)
	}

	rc, err := store.Get(ctx, "videos/a.mp4")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	got, _ := io.ReadAll(rc)
	rc.Close()
	if !bytes.Equal(got, payload) {
		t.Errorf("Get() returned %d bytes, want %d", len(got), len(payload))
	}

	if _, err := store.Get(ctx, "videos/missing.mp4"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() of a missing key error = %v, want ErrNotFound", err)
	}
}

func TestFileStore_RejectsTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	if _, err := store.Put(context.Background(), "../escape", strings.NewReader("x"), 1, "", nil); err == nil {
		t.Fatal("expected error for traversal key")
	}
}

func TestFileStore_CancelledPut(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.Put(ctx, "videos/c.mp4", strings.NewReader("data"), 4, "", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("Put() error = %v, want context.Canceled", err)
	}
	if _, err := store.Get(context.Background(), "videos/c.mp4"); !errors.Is(err, ErrNotFound) {
		t.Errorf("cancelled put left an object behind: %v", err)
	}
}
