package playback

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/ringside/ringside-agent/internal/logging"
	"github.com/ringside/ringside-agent/internal/objstore"
)

// Cache keeps local copies of stored videos so they can be replayed with
// seeking, without downloading them again.
type Cache struct {
	store  objstore.Store
	dir    string
	logger *slog.Logger

	mu sync.Mutex
}

func NewCache(store objstore.Store, dir string, logger *slog.Logger) *Cache {
	return &Cache{store: store, dir: dir, logger: logger}
}

// Fetch returns the local path of the video stored at location, downloading
// it on first use.
func (c *Cache) Fetch(ctx context.Context, location string) (string, error) {
	_, key, err := objstore.ParseLocation(location)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256([]byte(location))
	local := filepath.Join(c.dir, hex.EncodeToString(sum[:8])+path.Ext(key))

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := os.Stat(local); err == nil {
		return local, nil
	}

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}

	rc, err := c.store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	defer rc.Close()

	tmp, err := os.CreateTemp(c.dir, ".fetch-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, rc)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("download %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), local); err != nil {
		return "", fmt.Errorf("commit cached video: %w", err)
	}

	c.logger.Info("video cached for playback", "key", key, "bytes", n, "path", logging.SanitizePath(local))
	return local, nil
}
