// Package client is the HTTP client for the poliscope evaluation backend.
// All calls are rate-limited so the queue's enrichment polling can never
// stampede the API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/poliscope/poliscope/internal/model"
)

const fetchMaxRetries = 3

// fetchSleepFunc is the sleep function used between retries (injectable for tests)
var fetchSleepFunc = time.Sleep

// Client talks to the evaluation backend
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	maxBytes   int64
	apiToken   string
	limiter    *rate.Limiter
}

// New creates a backend client from configuration
func New(cfg model.BackendConfig) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 4
	}
	maxBytes := cfg.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = 4_000_000
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		maxBytes:  maxBytes,
		apiToken:  cfg.APIToken,
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// FetchMeta is backend metadata accompanying a subjects page
type FetchMeta struct {
	// HasEnrichablePoliticians signals that no subjects matched right now
	// but enrichment may produce more; the queue polls on it.
	HasEnrichablePoliticians bool `json:"has_enrichable_politicians"`
	TotalMatchingFilters     int  `json:"total_matching_filters"`
}

// SubjectsPage is one response from the politicians endpoint
type SubjectsPage struct {
	Subjects []model.Subject `json:"politicians"`
	Meta     FetchMeta       `json:"meta"`
}

// SubmitResponse is the backend's verdict on a submitted batch
type SubmitResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Errors  []string `json:"errors"`
}

// FetchSubjects requests up to limit review subjects matching the filters,
// excluding already-seen IDs. Transient 5xx responses are retried with
// backoff.
func (c *Client) FetchSubjects(ctx context.Context, filters []model.Filter, limit int, excludeIDs []string) (*SubjectsPage, error) {
	q := url.Values{}
	q.Set("limit", fmt.Sprintf("%d", limit))
	for _, id := range model.LanguageIDs(filters) {
		q.Add("languages", id)
	}
	for _, id := range model.CountryIDs(filters) {
		q.Add("countries", id)
	}
	if len(excludeIDs) > 0 {
		q.Set("exclude_ids", strings.Join(excludeIDs, ","))
	}

	endpoint := c.baseURL + "/api/evaluations/politicians?" + q.Encode()

	var lastErr error
	for attempt := 1; attempt <= fetchMaxRetries; attempt++ {
		if attempt > 1 {
			fetchSleepFunc(time.Duration(attempt-1) * 500 * time.Millisecond)
		}

		body, status, err := c.do(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			lastErr = err
			continue
		}
		if status >= 500 {
			lastErr = fmt.Errorf("fetch subjects: status %d", status)
			continue
		}
		if status < 200 || status >= 300 {
			return nil, fmt.Errorf("fetch subjects: status %d", status)
		}

		var page SubjectsPage
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("decode subjects: %w", err)
		}
		return &page, nil
	}
	return nil, fmt.Errorf("fetch subjects: %w", lastErr)
}

// SubmitEvaluations posts a reviewed batch. A non-2xx status or a 2xx body
// reporting success=false are both failures.
func (c *Client) SubmitEvaluations(ctx context.Context, items []model.Evaluation) error {
	payload, err := json.Marshal(map[string]any{"evaluations": items})
	if err != nil {
		return fmt.Errorf("encode evaluations: %w", err)
	}

	body, status, err := c.do(ctx, http.MethodPost, c.baseURL+"/api/evaluations", payload)
	if err != nil {
		return fmt.Errorf("submit evaluations: %w", err)
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("submit evaluations: status %d", status)
	}

	var resp SubmitResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decode submit response: %w", err)
	}
	if !resp.Success {
		if len(resp.Errors) > 0 {
			return fmt.Errorf("submit rejected: %s (%s)", resp.Message, strings.Join(resp.Errors, "; "))
		}
		return fmt.Errorf("submit rejected: %s", resp.Message)
	}
	return nil
}

// TriggerEnrich asks the backend to enrich politicians matching the filters.
// Any 2xx counts as accepted.
func (c *Client) TriggerEnrich(ctx context.Context, filters []model.Filter) error {
	q := url.Values{}
	if langs := model.LanguageIDs(filters); len(langs) > 0 {
		q.Set("languages", strings.Join(langs, ","))
	}
	if countries := model.CountryIDs(filters); len(countries) > 0 {
		q.Set("countries", strings.Join(countries, ","))
	}

	endpoint := c.baseURL + "/api/enrich"
	if enc := q.Encode(); enc != "" {
		endpoint += "?" + enc
	}

	_, status, err := c.do(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("trigger enrich: %w", err)
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("trigger enrich: status %d", status)
	}
	return nil
}

// do performs one rate-limited request and returns the size-capped body
func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, fmt.Errorf("rate limit: %w", err)
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	return body, resp.StatusCode, nil
}
