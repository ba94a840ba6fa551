package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	mw "compareboard/internal/api/middleware"
	"compareboard/internal/api/response"
	"compareboard/internal/feed"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// StatusReader serves the coarse job status the ingest handler caches on
// every stage transition.
type StatusReader interface {
	GetJobStatus(ctx context.Context, jobID uuid.UUID) (string, bool, error)
}

// NewJobStreamHandler returns an http.HandlerFunc for
// GET /api/v1/jobs/{jobID}/stream. It serves the live update feed over
// Server-Sent Events: a cached "status" event first when one is available,
// then one "snapshot" event per committed fetch, "error" events for
// transient failures, and a terminal "not_found" event when the job does
// not exist. The stream ends when the client disconnects.
func NewJobStreamHandler(fetcher feed.Fetcher, sub feed.Subscriber, statuses StatusReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be a valid UUID", nil)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Streaming not supported", nil)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		// Cached coarse status, so the page shows something before the
		// first full fetch lands.
		if status, found, err := statuses.GetJobStatus(r.Context(), jobID); err == nil && found {
			writeSSE(w, "status", map[string]string{"status": status})
			flusher.Flush()
		}

		watcher := feed.NewWatcher(fetcher, sub, jobID, userID)
		done := make(chan struct{})
		go func() {
			defer close(done)
			// Run exits when the request context is cancelled or the
			// watcher reaches a terminal state.
			_ = watcher.Run(r.Context())
		}()

		for snap := range watcher.Updates() {
			switch snap.State {
			case feed.StateNotFound:
				writeSSE(w, "not_found", map[string]string{"message": "Job not found"})
			case feed.StateSubscribed:
				if snap.Err != nil {
					writeSSE(w, "error", map[string]string{"message": snap.Err.Error()})
					break
				}
				if snap.Job == nil {
					break
				}
				writeSSE(w, "snapshot", BuildJobView(snap.Job, snap.Stages))
			}
			flusher.Flush()
		}
		<-done
	}
}

func writeSSE(w http.ResponseWriter, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
}
