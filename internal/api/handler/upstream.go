package handler

import (
	"errors"
	"net/http"

	"compareboard/internal/api/response"
	"compareboard/internal/compareapi"
)

// respondUpstreamError maps a compare API error onto our error envelope.
// Upstream "detail" strings pass through unmodified; the user sees exactly
// what the upstream said.
func respondUpstreamError(w http.ResponseWriter, err error) {
	var apiErr *compareapi.APIError
	switch {
	case errors.As(err, &apiErr):
		response.Error(w, apiErr.StatusCode, "UPSTREAM_ERROR", apiErr.Error(), nil)
	case errors.Is(err, compareapi.ErrUpstreamTimeout):
		response.Error(w, http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT",
			"The compare API took too long to respond", nil)
	case errors.Is(err, compareapi.ErrUpstreamUnreachable):
		response.Error(w, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE",
			"The compare API is not reachable", nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}
