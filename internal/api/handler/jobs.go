package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	mw "compareboard/internal/api/middleware"
	"compareboard/internal/api/response"
	"compareboard/internal/compareapi"
	"compareboard/pkg/models"

	"github.com/google/uuid"
)

const (
	defaultRecentLimit = 6
	maxRecentLimit     = 100
)

// JobSubmitter submits new comparison runs to the upstream compare API.
type JobSubmitter interface {
	CreateJob(ctx context.Context, token string, req compareapi.CreateJobRequest) (*compareapi.CreateJobResponse, error)
}

// JobWriter mirrors submitted jobs into the local store so stage ingest and
// the live feed have a row to attach to.
type JobWriter interface {
	CreateJob(ctx context.Context, job *models.Job) error
}

// JobLister reads a user's recent jobs from the local store.
type JobLister interface {
	ListRecentJobs(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Job, error)
}

// RecentFetcher reads recent jobs from the upstream compare API. Used as a
// fallback when the local mirror has no rows for the user.
type RecentFetcher interface {
	RecentJobs(ctx context.Context, token string, limit int) ([]models.Job, error)
}

// NewCreateJobHandler returns an http.HandlerFunc for POST /api/v1/jobs.
// The upstream compare API owns job admission (credit checks included); on
// success the job is mirrored locally.
func NewCreateJobHandler(upstream JobSubmitter, local JobWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}
		token, _ := mw.GetRawToken(r)

		var req struct {
			ItemA string `json:"item_a"`
			ItemB string `json:"item_b"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		req.ItemA = strings.TrimSpace(req.ItemA)
		req.ItemB = strings.TrimSpace(req.ItemB)
		if req.ItemA == "" || req.ItemB == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "item_a and item_b are required", nil)
			return
		}
		if req.ItemA == req.ItemB {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "item_a and item_b must differ", nil)
			return
		}

		created, err := upstream.CreateJob(r.Context(), token, compareapi.CreateJobRequest{
			ItemA: req.ItemA,
			ItemB: req.ItemB,
		})
		if err != nil {
			respondUpstreamError(w, err)
			return
		}

		job := &models.Job{
			ID:        created.JobID,
			UserID:    userID,
			ItemA:     req.ItemA,
			ItemB:     req.ItemB,
			Status:    created.Status,
			CreatedAt: time.Now().UTC(),
		}
		if job.Status == "" {
			job.Status = models.JobStatusPending
		}
		if err := local.CreateJob(r.Context(), job); err != nil {
			// The upstream accepted the job; a mirror failure should not
			// fail the submission. Stage ingest will still upsert rows.
			slog.Error("mirroring job failed", "job_id", created.JobID, "error", err)
		}

		response.Created(w, job)
	}
}

// NewRecentJobsHandler returns an http.HandlerFunc for GET /api/v1/jobs/recent.
func NewRecentJobsHandler(local JobLister, upstream RecentFetcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := mw.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		limit := defaultRecentLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a positive integer", nil)
				return
			}
			limit = n
		}
		if limit > maxRecentLimit {
			limit = maxRecentLimit
		}

		jobs, err := local.ListRecentJobs(r.Context(), userID, limit)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list jobs", nil)
			return
		}

		// The local mirror can miss jobs submitted before mirroring, or
		// whose mirror write failed. Fall back to the upstream listing
		// rather than showing an empty dashboard.
		if len(jobs) == 0 {
			if token, ok := mw.GetRawToken(r); ok {
				remote, err := upstream.RecentJobs(r.Context(), token, limit)
				if err != nil {
					slog.Warn("upstream recent jobs fallback failed", "error", err)
				}
				for i := range remote {
					jobs = append(jobs, &remote[i])
				}
			}
		}

		if jobs == nil {
			jobs = []*models.Job{}
		}
		response.Collection(w, jobs, response.PaginationMeta{
			Page:    1,
			Limit:   limit,
			Total:   len(jobs),
			HasNext: len(jobs) == limit,
		})
	}
}
