package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"compareboard/internal/api/response"
	"compareboard/internal/notify"
	"compareboard/pkg/models"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

var validStageStatuses = map[string]bool{
	models.StageStatusPending:    true,
	models.StageStatusInProgress: true,
	models.StageStatusCompleted:  true,
	models.StageStatusFailed:     true,
	models.StageStatusSkipped:    true,
}

// StageStore is the write surface for stage ingest.
type StageStore interface {
	UpsertStage(ctx context.Context, rec *models.StageRecord) error
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status string) error
	InsertAnalyticsEvent(ctx context.Context, event *models.AnalyticsEvent) error
}

// ChangePublisher fans a stage-change signal out to live feed subscribers.
type ChangePublisher interface {
	PublishStageChange(ctx context.Context, change notify.StageChange) error
}

// StatusCache keeps the job's coarse status available without a DB hit.
type StatusCache interface {
	SetJobStatus(ctx context.Context, jobID uuid.UUID, status string, ttl time.Duration) error
}

const jobStatusTTL = time.Hour

// NewIngestStageHandler returns an http.HandlerFunc for
// POST /api/v1/jobs/{jobID}/stages. The pipeline pushes each stage
// transition here; subscribers are signalled after the row is durable.
func NewIngestStageHandler(s StageStore, pub ChangePublisher, statuses StatusCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be a valid UUID", nil)
			return
		}

		var req struct {
			StageNumber *int    `json:"stage_number"`
			Status      string  `json:"status"`
			Output      any     `json:"output"`
			DurationMs  float64 `json:"duration_ms"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if req.StageNumber == nil || *req.StageNumber < 0 || *req.StageNumber >= models.StageCount {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "stage_number must be between 0 and 5", nil)
			return
		}
		if !validStageStatuses[req.Status] {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "status is not a valid stage status", nil)
			return
		}

		now := time.Now().UTC()
		rec := &models.StageRecord{
			ID:          uuid.New(),
			JobID:       jobID,
			StageNumber: *req.StageNumber,
			Status:      req.Status,
			Output:      req.Output,
			CreatedAt:   now,
		}
		if req.Status == models.StageStatusCompleted || req.Status == models.StageStatusFailed {
			rec.CompletedAt = &now
		}

		if err := s.UpsertStage(r.Context(), rec); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to store stage", nil)
			return
		}

		jobStatus := deriveJobStatus(*req.StageNumber, req.Status)
		if jobStatus != "" {
			if err := s.UpdateJobStatus(r.Context(), jobID, jobStatus); err != nil {
				slog.Error("updating job status failed", "job_id", jobID, "error", err)
			}
			if err := statuses.SetJobStatus(r.Context(), jobID, jobStatus, jobStatusTTL); err != nil {
				slog.Warn("caching job status failed", "job_id", jobID, "error", err)
			}
		}

		if req.Status == models.StageStatusCompleted && req.DurationMs > 0 {
			stageNum := *req.StageNumber
			event := &models.AnalyticsEvent{
				ID:          uuid.New(),
				EventName:   models.EventStageCompleted,
				JobID:       &jobID,
				StageNumber: &stageNum,
				Properties:  map[string]any{"duration_ms": req.DurationMs},
				CreatedAt:   now,
			}
			if err := s.InsertAnalyticsEvent(r.Context(), event); err != nil {
				slog.Warn("recording stage latency failed", "job_id", jobID, "error", err)
			}
		}

		// Publish after the write so subscribers re-fetching always see the
		// new row.
		change := notify.StageChange{
			JobID:       jobID,
			StageNumber: *req.StageNumber,
			Status:      req.Status,
			At:          now,
		}
		if err := pub.PublishStageChange(r.Context(), change); err != nil {
			slog.Error("publishing stage change failed", "job_id", jobID, "error", err)
		}

		response.Accepted(w, map[string]any{
			"job_id":       jobID,
			"stage_number": *req.StageNumber,
			"status":       req.Status,
		})
	}
}

// deriveJobStatus maps a stage transition to the job's coarse status, or ""
// when the transition says nothing new about the job.
func deriveJobStatus(stageNumber int, stageStatus string) string {
	switch {
	case stageStatus == models.StageStatusFailed:
		return models.JobStatusFailed
	case stageNumber == models.StageCount-1 && stageStatus == models.StageStatusCompleted:
		return models.JobStatusCompleted
	case stageStatus == models.StageStatusInProgress || stageStatus == models.StageStatusCompleted:
		return models.JobStatusInProgress
	default:
		return ""
	}
}
