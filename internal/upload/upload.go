// Package upload ships a complete video to the analysis backend, either by
// writing it to object storage and registering the stored key, or by posting
// it piecewise to the backend's chunk endpoint.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ringside/ringside-agent/internal/backend"
	"github.com/ringside/ringside-agent/internal/objstore"
	"github.com/ringside/ringside-agent/internal/state"
)

// ErrNotVideo is returned when the content does not sniff as video.
var ErrNotVideo = errors.New("file is not a video")

// ProgressFunc receives upload progress as a percentage in [0,100].
type ProgressFunc func(percent int)

// Video is a complete file to upload. Open may be called more than once.
type Video struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

// FileVideo describes a local file.
func FileVideo(path string) (Video, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Video{}, err
	}
	if info.IsDir() {
		return Video{}, fmt.Errorf("%s is a directory", path)
	}
	return Video{
		Name: filepath.Base(path),
		Size: info.Size(),
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

type Uploader interface {
	Upload(ctx context.Context, v Video, onProgress ProgressFunc) (backend.Job, error)
}

// LastUploadStore persists the pointer to the most recent upload.
type LastUploadStore interface {
	SaveLastUpload(ctx context.Context, last state.LastUpload) error
}

// StorageError means the bytes never reached their destination. Nothing was
// registered with the backend.
type StorageError struct {
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("upload %s: storage write failed: %v", e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// RegistrationError means the object is in storage but the backend did not
// accept it. Location names the orphaned object.
type RegistrationError struct {
	Key      string
	Location objstore.Location
	Err      error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("upload %s: stored at %s but backend registration failed: %v", e.Key, e.Location.URL, e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// progressReporter converts byte counts to monotonic percentages and drops
// repeats.
type progressReporter struct {
	total int64
	last  int
	fn    ProgressFunc
}

func newProgressReporter(total int64, fn ProgressFunc) *progressReporter {
	return &progressReporter{total: total, last: -1, fn: fn}
}

func (p *progressReporter) bytes(n int64) {
	if p.total <= 0 {
		return
	}
	p.report(int(n * 100 / p.total))
}

func (p *progressReporter) report(pct int) {
	if p.fn == nil {
		return
	}
	pct = min(max(pct, 0), 100)
	if pct <= p.last {
		return
	}
	p.last = pct
	p.fn(pct)
}
