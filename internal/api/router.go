package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "compareboard/internal/api/middleware"
	"compareboard/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	CreateJobHandler  http.HandlerFunc
	RecentJobsHandler http.HandlerFunc
	JobViewHandler    http.HandlerFunc
	JobStreamHandler  http.HandlerFunc
	IngestStage       http.HandlerFunc

	SaveExperiment     http.HandlerFunc
	ListExperiments    http.HandlerFunc
	CompareExperiments http.HandlerFunc

	CreditPacksHandler      http.HandlerFunc
	CheckoutHandler         http.HandlerFunc
	CreditOperationsHandler http.HandlerFunc

	TrackEventHandler   http.HandlerFunc
	StageLatencyHandler http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/jobs", orNotImplemented(deps.CreateJobHandler))
		r.Get("/api/v1/jobs/recent", orNotImplemented(deps.RecentJobsHandler))
		r.Get("/api/v1/jobs/{jobID}/view", orNotImplemented(deps.JobViewHandler))
		r.Get("/api/v1/jobs/{jobID}/stream", orNotImplemented(deps.JobStreamHandler))

		r.Post("/api/v1/experiments", orNotImplemented(deps.SaveExperiment))
		r.Get("/api/v1/experiments", orNotImplemented(deps.ListExperiments))
		r.Post("/api/v1/experiments/compare", orNotImplemented(deps.CompareExperiments))

		r.Get("/api/v1/credits/packs", orNotImplemented(deps.CreditPacksHandler))
		r.Post("/api/v1/credits/checkout", orNotImplemented(deps.CheckoutHandler))
		r.Get("/api/v1/credits/operations", orNotImplemented(deps.CreditOperationsHandler))

		r.Post("/api/v1/analytics/events", orNotImplemented(deps.TrackEventHandler))
		r.Get("/api/v1/analytics/latency", orNotImplemented(deps.StageLatencyHandler))

		// Ingest routes: the pipeline pushes stage transitions here.
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope("ingest"))

			r.Post("/api/v1/jobs/{jobID}/stages", orNotImplemented(deps.IngestStage))
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope("admin"))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
