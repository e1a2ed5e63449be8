package source

import (
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

	"golang.org/x/time/rate"
)

const apiBasePath = "/api/v1/"

// HTTPClient is the Client implementation against the ERP source API.
//
// Pagination is deliberately offset-based with the offset computed
// client-side as "records already accumulated": the upstream's own cursor
// is known not to advance correctly, so no server-echoed token is ever
// trusted. Keep that property if the fetch loop is ever reworked.
type HTTPClient struct {
	httpClient  *http.Client
	baseURL     string
	apiToken    string
	pageSize    int
	rateLimiter *rate.Limiter
	retrier     *Retrier
}

// Option configures an HTTPClient
type Option func(*HTTPClient)

// WithRetrier overrides the default retrier
func WithRetrier(retrier *Retrier) Option {
	return func(c *HTTPClient) {
		c.retrier = retrier
	}
}

// WithRateLimit overrides the default request rate (requests per second)
func WithRateLimit(rps int) Option {
	return func(c *HTTPClient) {
		c.rateLimiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// NewHTTPClient creates a source API client. The token is optional; record
// types that require a bearer credential fail with 401 without one.
func NewHTTPClient(baseURL, apiToken string, timeout time.Duration, pageSize int, opts ...Option) *HTTPClient {
	if pageSize <= 0 {
		pageSize = 500
	}
	c := &HTTPClient{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     baseURL,
		apiToken:    apiToken,
		pageSize:    pageSize,
		rateLimiter: rate.NewLimiter(rate.Limit(5), 1),
		retrier:     NewRetrier(DefaultRetryConfig()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchAll accumulates pages until the server reports zero remaining or the
// cap is reached. A page failure after retries is fatal to the whole fetch.
func (c *HTTPClient) FetchAll(ctx context.Context, resource string, query Query, opts FetchOptions) ([]Record, error) {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = c.pageSize
	}

	var records []Record
	for {
		// Offset is always the count already accumulated, never a
		// server-returned position.
		page, err := c.FetchPage(ctx, resource, query, len(records), pageSize)
		if err != nil {
			return nil, err
		}

		records = append(records, page.Results...)

		if opts.Cap > 0 && len(records) >= opts.Cap {
			return records[:opts.Cap], nil
		}
		if page.Remaining <= 0 || len(page.Results) == 0 {
			return records, nil
		}
	}
}

// FetchPage fetches a single page at the given offset
func (c *HTTPClient) FetchPage(ctx context.Context, resource string, query Query, offset, limit int) (*PageResult, error) {
	params := url.Values{}
	params.Set("offset", strconv.Itoa(offset))
	params.Set("limit", strconv.Itoa(limit))
	if len(query) > 0 {
		filters, err := json.Marshal(query)
		if err != nil {
			return nil, fmt.Errorf("failed to encode query: %w", err)
		}
		params.Set("filters", string(filters))
	}

	body, err := c.doRequest(ctx, apiBasePath+resource, params)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Results   []json.RawMessage `json:"results"`
		Remaining int               `json:"remaining"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse page response: %w", err)
	}

	page := &PageResult{
		Results:   make([]Record, 0, len(raw.Results)),
		Remaining: raw.Remaining,
	}
	for _, item := range raw.Results {
		var record Record
		if err := json.Unmarshal(item, &record); err != nil {
			return nil, fmt.Errorf("failed to parse record: %w", err)
		}
		// Keep the untyped payload for error context
		_ = json.Unmarshal(item, &record.Raw)
		page.Results = append(page.Results, record)
	}

	return page, nil
}

// TestConnection fetches one record and maps any failure to false
func (c *HTTPClient) TestConnection(ctx context.Context) bool {
	_, err := c.FetchPage(ctx, ResourceCategories, nil, 0, 1)
	return err == nil
}

// doRequest performs a rate-limited, retried GET against the source API
func (c *HTTPClient) doRequest(ctx context.Context, path string, params url.Values) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	resp, result := c.retrier.DoHTTP(ctx, func(ctx context.Context) (*http.Response, error) {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if c.apiToken != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiToken)
		}
		return c.httpClient.Do(req)
	})

	if result.LastError != nil {
		if isTimeout(result.LastError) {
			return nil, &TimeoutError{Operation: path, Err: result.LastError}
		}
		return nil, fmt.Errorf("source API request failed after %d attempts: %w", result.Attempts, result.LastError)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return body, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
