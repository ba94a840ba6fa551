package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	mw "compareboard/internal/api/middleware"
	"compareboard/internal/api/response"
	"compareboard/internal/stage"
	"compareboard/internal/store"
	"compareboard/internal/verdict"
	"compareboard/pkg/models"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// JobReader is the read surface for the job view.
type JobReader interface {
	GetJob(ctx context.Context, id, userID uuid.UUID) (*models.Job, error)
	ListStages(ctx context.Context, jobID uuid.UUID) ([]models.StageRecord, error)
}

// StageView is one stage slot in the dashboard: the fixed slot metadata
// plus whatever the pipeline has reported so far. Slots the pipeline has
// not touched yet render as pending with no output.
type StageView struct {
	Number      int        `json:"number"`
	Key         string     `json:"key"`
	Label       string     `json:"label"`
	Status      string     `json:"status"`
	Output      any        `json:"output,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// JobView is the full dashboard payload for one job.
type JobView struct {
	Job            *models.Job          `json:"job"`
	Stages         []StageView          `json:"stages"`
	CompletedCount int                  `json:"completed_count"`
	Listing        *stage.ListingOutput `json:"listing,omitempty"`
	Verdict        verdict.Projection   `json:"verdict"`
}

// BuildJobView assembles the dashboard payload from a job and its
// aggregated stage map. Shared by the one-shot view handler and the SSE
// stream.
func BuildJobView(job *models.Job, agg map[int]models.StageRecord) JobView {
	stages := make([]StageView, 0, len(stage.Metas))
	for _, meta := range stage.Metas {
		sv := StageView{
			Number: meta.Number,
			Key:    meta.Key,
			Label:  meta.Label,
			Status: stage.StatusFor(agg, meta.Number),
		}
		if rec, ok := agg[meta.Number]; ok {
			sv.Output = rec.Output
			sv.CompletedAt = rec.CompletedAt
		}
		stages = append(stages, sv)
	}

	view := JobView{
		Job:            job,
		Stages:         stages,
		CompletedCount: stage.CompletedCount(agg),
		Verdict:        verdict.Project(agg),
	}
	if out := stage.Output(agg, 0); out != nil {
		listing := stage.ParseListing(out)
		view.Listing = &listing
	}
	return view
}

// NewJobViewHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}/view.
func NewJobViewHandler(s JobReader) http.HandlerFunc {
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

		job, err := s.GetJob(r.Context(), jobID, userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load job", nil)
			return
		}

		records, err := s.ListStages(r.Context(), jobID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load stages", nil)
			return
		}

		response.JSON(w, BuildJobView(job, stage.Aggregate(records)))
	}
}
