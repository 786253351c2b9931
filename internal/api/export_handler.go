package api

import (
	"fmt"
	"net/http"
	"path"
	"strconv"

	"github.com/ringside/ringside-agent/internal/export"
)

// exportEDLHandler downloads the segment breakdown of a job as an EDL.
// Optional query parameters: fps (default 30) and title.
func exportEDLHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		frameRate := 30.0
		if raw := r.URL.Query().Get("fps"); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil || v <= 0 || v > 120 {
				WriteError(w, http.StatusBadRequest, "fps must be a number between 0 and 120", "BAD_REQUEST")
				return
			}
			frameRate = v
		}

		s, ok := openSession(cfg, w, r)
		if !ok {
			return
		}

		events := export.Events(s.Result())
		if len(events) == 0 {
			WriteError(w, http.StatusUnprocessableEntity, "analysis has no segments", "NO_SEGMENTS")
			return
		}

		title := export.SanitizeName(r.URL.Query().Get("title"), 70)
		if title == "" {
			title = "ringside_" + s.JobID()
		}

		mediaPath := s.JobID()
		if job, found := cfg.Manager.Get(s.JobID()); found && job.Location != "" {
			mediaPath = path.Base(job.Location)
		}

		edl := export.GenerateEDL(events, title, mediaPath, frameRate)
		filename := export.SanitizeName(title, 120) + ".edl"

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(filename)))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(edl))
	}
}
