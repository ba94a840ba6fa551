// Package compareapi is the HTTP client for the upstream job-submission and
// credits API. Every request carries the caller's bearer token; non-2xx
// responses carry a JSON body with a "detail" string, which is surfaced
// verbatim as the user-visible error.
package compareapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"compareboard/pkg/models"

	"github.com/google/uuid"
)

// Sentinel errors for upstream transport failures.
var (
	ErrUpstreamUnreachable = errors.New("compare api unreachable")
	ErrUpstreamTimeout     = errors.New("compare api timeout")
)

// APIError is a non-2xx upstream response. Detail is the upstream "detail"
// string, shown to the user unmodified.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("upstream error (status %d)", e.StatusCode)
}

// Client is the interface for the upstream compare API.
type Client interface {
	CreateJob(ctx context.Context, token string, req CreateJobRequest) (*CreateJobResponse, error)
	RecentJobs(ctx context.Context, token string, limit int) ([]models.Job, error)
	RecentExperiments(ctx context.Context, token string, limit int) ([]models.Experiment, error)
	GetCreditPacks(ctx context.Context, token string) ([]models.CreditPack, error)
	CreateCheckout(ctx context.Context, token, packID string) (*models.CheckoutSession, error)
	GetCreditOperations(ctx context.Context, token string) ([]models.CreditOperation, error)
	TrackEvent(ctx context.Context, token string, event TrackEventRequest) error
	GetAnalyticsEvents(ctx context.Context, token string, limit int) ([]models.AnalyticsEvent, error)
}

// CreateJobRequest submits one comparison run.
type CreateJobRequest struct {
	ItemA string `json:"item_a"`
	ItemB string `json:"item_b"`
}

// CreateJobResponse acknowledges a submitted run.
type CreateJobResponse struct {
	JobID  uuid.UUID `json:"job_id"`
	Status string    `json:"status"`
}

// TrackEventRequest appends one analytics event upstream.
type TrackEventRequest struct {
	EventName   string         `json:"event_name"`
	JobID       *uuid.UUID     `json:"job_id,omitempty"`
	StageNumber *int           `json:"stage_number,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
}

// HTTPClient implements Client against the upstream HTTP API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a new compare API client.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) CreateJob(ctx context.Context, token string, req CreateJobRequest) (*CreateJobResponse, error) {
	var out CreateJobResponse
	if err := c.do(ctx, http.MethodPost, "/jobs", token, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) RecentJobs(ctx context.Context, token string, limit int) ([]models.Job, error) {
	var out struct {
		Jobs []models.Job `json:"jobs"`
	}
	path := "/jobs/recent"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	if err := c.do(ctx, http.MethodGet, path, token, nil, &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

func (c *HTTPClient) RecentExperiments(ctx context.Context, token string, limit int) ([]models.Experiment, error) {
	var out struct {
		Experiments []models.Experiment `json:"experiments"`
	}
	path := "/experiments/recent"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	if err := c.do(ctx, http.MethodGet, path, token, nil, &out); err != nil {
		return nil, err
	}
	return out.Experiments, nil
}

func (c *HTTPClient) GetCreditPacks(ctx context.Context, token string) ([]models.CreditPack, error) {
	var out struct {
		Packs []models.CreditPack `json:"packs"`
	}
	if err := c.do(ctx, http.MethodGet, "/credits/packs", token, nil, &out); err != nil {
		return nil, err
	}
	return out.Packs, nil
}

func (c *HTTPClient) CreateCheckout(ctx context.Context, token, packID string) (*models.CheckoutSession, error) {
	body := map[string]string{"pack_id": packID}
	var out models.CheckoutSession
	if err := c.do(ctx, http.MethodPost, "/credits/checkout", token, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) GetCreditOperations(ctx context.Context, token string) ([]models.CreditOperation, error) {
	var out struct {
		Operations []models.CreditOperation `json:"operations"`
	}
	if err := c.do(ctx, http.MethodGet, "/credits/operations", token, nil, &out); err != nil {
		return nil, err
	}
	return out.Operations, nil
}

func (c *HTTPClient) TrackEvent(ctx context.Context, token string, event TrackEventRequest) error {
	return c.do(ctx, http.MethodPost, "/analytics/events", token, event, nil)
}

func (c *HTTPClient) GetAnalyticsEvents(ctx context.Context, token string, limit int) ([]models.AnalyticsEvent, error) {
	var out struct {
		Events []models.AnalyticsEvent `json:"events"`
	}
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	path := "/analytics/events"
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}
	if err := c.do(ctx, http.MethodGet, path, token, nil, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

// do runs one request. body (if non-nil) is JSON-encoded; out (if non-nil)
// receives the decoded 2xx response.
func (c *HTTPClient) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload := &bytes.Buffer{}
		if err := json.NewEncoder(payload).Encode(body); err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = payload
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// decodeAPIError extracts the upstream "detail" string from an error body.
// A missing or malformed body still yields an APIError with the status.
func decodeAPIError(resp *http.Response) error {
	var body struct {
		Detail string `json:"detail"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return &APIError{StatusCode: resp.StatusCode, Detail: body.Detail}
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrUpstreamUnreachable, err)
	}

	return fmt.Errorf("%w: %v", ErrUpstreamUnreachable, err)
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
