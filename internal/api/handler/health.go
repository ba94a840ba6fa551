package handler

import (
	"context"
	"net/http"

	"compareboard/internal/api/response"
)

// Pinger is anything with a health-checkable connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHealthHandler returns an http.HandlerFunc for GET /api/v1/health.
// It reports the status of the database and cache connections.
func NewHealthHandler(db, cache Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}
		healthy := true

		if err := db.Ping(r.Context()); err != nil {
			status["database"] = "unreachable"
			healthy = false
		}
		if err := cache.Ping(r.Context()); err != nil {
			status["cache"] = "unreachable"
			healthy = false
		}

		if !healthy {
			response.Error(w, http.StatusServiceUnavailable, "UNHEALTHY", "One or more dependencies are down", status)
			return
		}
		response.JSON(w, status)
	}
}
