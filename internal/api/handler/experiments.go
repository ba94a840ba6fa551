package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	mw "compareboard/internal/api/middleware"
	"compareboard/internal/api/response"
	"compareboard/internal/experiment"
	"compareboard/internal/stage"
	"compareboard/internal/store"
	"compareboard/pkg/models"

	"github.com/google/uuid"
)

// maxChangeTags caps the free-form tag list on a saved experiment.
const maxChangeTags = 8

// defaultExperimentLimit bounds a listing when the client sends no limit.
const defaultExperimentLimit = 50

// ExperimentStore is the data surface for experiment handlers.
type ExperimentStore interface {
	GetJob(ctx context.Context, id, userID uuid.UUID) (*models.Job, error)
	ListStages(ctx context.Context, jobID uuid.UUID) ([]models.StageRecord, error)
	InsertExperiment(ctx context.Context, exp *models.Experiment) error
	ListExperiments(ctx context.Context, filter store.ExperimentFilter) ([]*models.Experiment, error)
	GetExperimentsByIDs(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]*models.Experiment, error)
}

// NewSaveExperimentHandler returns an http.HandlerFunc for POST /api/v1/experiments.
// Saving freezes the job's stage-5 scores; the snapshot never changes even
// if the job is re-run.
func NewSaveExperimentHandler(s ExperimentStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		var req struct {
			JobID      string   `json:"job_id"`
			ChangeTags []string `json:"change_tags"`
			Notes      *string  `json:"notes"`
			IsPinned   bool     `json:"is_pinned"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		jobID, err := uuid.Parse(req.JobID)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "job_id must be a valid UUID", nil)
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

		agg := stage.Aggregate(records)
		verdictOut := stage.Output(agg, 5)
		if verdictOut == nil {
			response.Error(w, http.StatusConflict, "VERDICT_NOT_READY",
				"The job has no verdict yet; wait for stage 5 to complete", nil)
			return
		}

		tags := make([]string, 0, len(req.ChangeTags))
		for _, tag := range req.ChangeTags {
			tag = strings.TrimSpace(tag)
			if tag == "" {
				continue
			}
			tags = append(tags, tag)
			if len(tags) == maxChangeTags {
				break
			}
		}

		exp := &models.Experiment{
			ID:             uuid.New(),
			UserID:         userID,
			JobID:          jobID,
			ItemA:          job.ItemA,
			ItemB:          job.ItemB,
			ScoresSnapshot: verdictOut,
			ChangeTags:     tags,
			Notes:          req.Notes,
			IsPinned:       req.IsPinned,
			CreatedAt:      time.Now().UTC(),
		}
		if err := s.InsertExperiment(r.Context(), exp); err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				response.Error(w, http.StatusConflict, "DUPLICATE", "Experiment already exists", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to save experiment", nil)
			return
		}

		response.Created(w, exp)
	}
}

// ExperimentFetcher reads recent experiments from the upstream compare API.
// Used as a fallback when the local store has none for the user.
type ExperimentFetcher interface {
	RecentExperiments(ctx context.Context, token string, limit int) ([]models.Experiment, error)
}

// NewListExperimentsHandler returns an http.HandlerFunc for GET /api/v1/experiments.
// Supports ?item= substring filtering, ?pinned=true, and ?limit=.
func NewListExperimentsHandler(s ExperimentStore, upstream ExperimentFetcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		filter := store.ExperimentFilter{
			UserID:     userID,
			Item:       strings.TrimSpace(r.URL.Query().Get("item")),
			PinnedOnly: r.URL.Query().Get("pinned") == "true",
			Limit:      defaultExperimentLimit,
		}
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a positive integer", nil)
				return
			}
			filter.Limit = n
		}

		exps, err := s.ListExperiments(r.Context(), filter)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list experiments", nil)
			return
		}

		// An unfiltered empty listing falls back to the upstream's recent
		// experiments, for users whose saves predate this dashboard.
		if len(exps) == 0 && filter.Item == "" && !filter.PinnedOnly {
			if token, ok := mw.GetRawToken(r); ok {
				remote, err := upstream.RecentExperiments(r.Context(), token, filter.Limit)
				if err != nil {
					slog.Warn("upstream recent experiments fallback failed", "error", err)
				}
				for i := range remote {
					exps = append(exps, &remote[i])
				}
			}
		}

		if exps == nil {
			exps = []*models.Experiment{}
		}
		response.Collection(w, exps, response.PaginationMeta{
			Page:    1,
			Limit:   filter.Limit,
			Total:   len(exps),
			HasNext: len(exps) == filter.Limit,
		})
	}
}

// NewCompareExperimentsHandler returns an http.HandlerFunc for
// POST /api/v1/experiments/compare. The request carries experiment ids in
// selection order; selecting more than three keeps the three most recent,
// and the first remaining id is the baseline.
func NewCompareExperimentsHandler(s ExperimentStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		var req struct {
			ExperimentIDs []string `json:"experiment_ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		sel := experiment.NewSelection()
		for _, raw := range req.ExperimentIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "experiment_ids must be valid UUIDs", nil)
				return
			}
			sel.Select(id)
		}

		ids := sel.IDs()
		if len(ids) < 2 {
			response.Error(w, http.StatusBadRequest, "INSUFFICIENT_SELECTION",
				experiment.ErrInsufficientSelection.Error(), nil)
			return
		}

		fetched, err := s.GetExperimentsByIDs(r.Context(), userID, ids)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load experiments", nil)
			return
		}

		byID := make(map[uuid.UUID]*models.Experiment, len(fetched))
		for _, exp := range fetched {
			byID[exp.ID] = exp
		}

		// Reassemble in selection order; the store returns rows unordered.
		ordered := make([]models.Experiment, 0, len(ids))
		for _, id := range ids {
			exp, found := byID[id]
			if !found {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "One or more experiments not found", nil)
				return
			}
			ordered = append(ordered, *exp)
		}

		rows, err := experiment.Compare(ordered)
		if err != nil {
			if errors.Is(err, experiment.ErrInsufficientSelection) {
				response.Error(w, http.StatusBadRequest, "INSUFFICIENT_SELECTION", err.Error(), nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to compare experiments", nil)
			return
		}

		response.JSON(w, rows)
	}
}
