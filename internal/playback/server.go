// Package playback serves the uploaded video back to a local player with
// byte-range support.
package playback

import (
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/h2non/filetype"
)

type Server struct {
	logger *slog.Logger
}

func NewServer(logger *slog.Logger) *Server {
	return &Server{logger: logger}
}

// ServeFile writes the video at path, honouring a single Range request.
func (s *Server) ServeFile(w http.ResponseWriter, r *http.Request, path string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		http.Error(w, "video not found", http.StatusNotFound)
		return nil
	}
	if err != nil {
		return fmt.Errorf("open video: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat video: %w", err)
	}
	size := info.Size()

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", contentType(f, path))

	rng, partial, err := ParseRange(r.Header.Get("Range"), size)
	switch {
	case err == ErrUnsatisfiable:
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	case err == ErrInvalidRange:
		// Malformed ranges are ignored and the whole video is sent.
		partial = false
	case err != nil:
		return err
	}

	if !partial {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", size))
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			io.Copy(w, f)
		}
		return nil
	}

	if _, err := f.Seek(rng.Start, io.SeekStart); err != nil {
		return fmt.Errorf("seek video: %w", err)
	}
	w.Header().Set("Content-Length", fmt.Sprintf("%d", rng.Length()))
	w.Header().Set("Content-Range", rng.Header(size))
	w.WriteHeader(http.StatusPartialContent)
	if r.Method != http.MethodHead {
		io.CopyN(w, f, rng.Length())
	}
	return nil
}

// contentType sniffs the container, falling back to the extension.
func contentType(f *os.File, path string) string {
	head := make([]byte, 262)
	n, _ := f.ReadAt(head, 0)
	if kind, err := filetype.Match(head[:n]); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value
	}
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
