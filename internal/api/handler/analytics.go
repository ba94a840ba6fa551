package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"compareboard/internal/analytics"
	mw "compareboard/internal/api/middleware"
	"compareboard/internal/api/response"
	"compareboard/internal/compareapi"
	"compareboard/pkg/models"

	"github.com/google/uuid"
)

const defaultLatencyWindow = 1000

// AnalyticsStore is the local event-log surface.
type AnalyticsStore interface {
	InsertAnalyticsEvent(ctx context.Context, event *models.AnalyticsEvent) error
	ListAnalyticsEvents(ctx context.Context, limit int) ([]models.AnalyticsEvent, error)
}

// EventForwarder mirrors tracked events to the upstream analytics sink.
type EventForwarder interface {
	TrackEvent(ctx context.Context, token string, event compareapi.TrackEventRequest) error
}

// EventFetcher reads events back from the upstream analytics sink. Used as
// a fallback when the local log is empty.
type EventFetcher interface {
	GetAnalyticsEvents(ctx context.Context, token string, limit int) ([]models.AnalyticsEvent, error)
}

// NewTrackEventHandler returns an http.HandlerFunc for POST /api/v1/analytics/events.
// Events land in the local log (which feeds the latency table) and are
// forwarded upstream best-effort.
func NewTrackEventHandler(s AnalyticsStore, forwarder EventForwarder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, _ := mw.GetRawToken(r)

		var req struct {
			EventName   string         `json:"event_name"`
			JobID       *uuid.UUID     `json:"job_id"`
			StageNumber *int           `json:"stage_number"`
			Properties  map[string]any `json:"properties"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.EventName == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "event_name is required", nil)
			return
		}

		event := &models.AnalyticsEvent{
			ID:          uuid.New(),
			EventName:   req.EventName,
			JobID:       req.JobID,
			StageNumber: req.StageNumber,
			Properties:  req.Properties,
			CreatedAt:   time.Now().UTC(),
		}
		if err := s.InsertAnalyticsEvent(r.Context(), event); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to record event", nil)
			return
		}

		if err := forwarder.TrackEvent(r.Context(), token, compareapi.TrackEventRequest{
			EventName:   req.EventName,
			JobID:       req.JobID,
			StageNumber: req.StageNumber,
			Properties:  req.Properties,
		}); err != nil {
			slog.Warn("forwarding analytics event failed", "event_name", req.EventName, "error", err)
		}

		response.Created(w, event)
	}
}

// NewStageLatencyHandler returns an http.HandlerFunc for GET /api/v1/analytics/latency.
func NewStageLatencyHandler(s AnalyticsStore, upstream EventFetcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultLatencyWindow
		if raw := r.URL.Query().Get("window"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "window must be a positive integer", nil)
				return
			}
			limit = n
		}

		events, err := s.ListAnalyticsEvents(r.Context(), limit)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load events", nil)
			return
		}

		// An empty local log falls back to events recorded upstream before
		// this dashboard started mirroring them.
		if len(events) == 0 {
			if token, ok := mw.GetRawToken(r); ok {
				remote, err := upstream.GetAnalyticsEvents(r.Context(), token, limit)
				if err != nil {
					slog.Warn("upstream analytics events fallback failed", "error", err)
				}
				events = remote
			}
		}

		response.JSON(w, analytics.Summarize(events))
	}
}
