package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ringside/ringside-agent/internal/processing"
)

// jobEventsHandler streams one job's progress as server-sent events. The
// stream ends after the job's terminal event.
func jobEventsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		flusher, ok := w.(http.Flusher)
		if !ok {
			WriteError(w, http.StatusInternalServerError, "streaming unsupported", "INTERNAL_ERROR")
			return
		}

		// Subscribe first so no event between the snapshot and the loop is lost.
		eventCh := cfg.Manager.Subscribe()
		defer cfg.Manager.Unsubscribe(eventCh)

		job, found := cfg.Manager.Get(id)
		if !found {
			WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		writeEvent(w, processing.Event{Type: "init", Job: job})
		flusher.Flush()
		if job.State != processing.StateTracking {
			return
		}

		for {
			select {
			case <-r.Context().Done():
				return
			case event, ok := <-eventCh:
				if !ok {
					return
				}
				if event.Job.ID != id {
					continue
				}

				writeEvent(w, event)
				flusher.Flush()

				if event.Job.State != processing.StateTracking {
					return
				}
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, event processing.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
