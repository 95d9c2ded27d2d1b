// ABOUTME: Gripp JSON-RPC API client with request queueing and pagination
// ABOUTME: Serializes requests FIFO with a minimum inter-request delay and retries rate-limited calls
package gripp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const (
	defaultPageSize    = 250
	defaultMinDelay    = 600 * time.Millisecond
	defaultMaxInFlight = 2
	defaultRetryAfter  = 5 * time.Second
	requestTimeout     = 30 * time.Second
	maxRateLimitTries  = 5
)

// Filter is a Gripp API filter expression.
type Filter struct {
	Field    string      `json:"field"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value"`
}

// Result is the paged result envelope Gripp returns per request.
type Result struct {
	Rows      json.RawMessage `json:"rows"`
	Count     int             `json:"count"`
	Start     int             `json:"start"`
	Limit     int             `json:"limit"`
	NextStart int             `json:"next_start"`
	MoreItems bool            `json:"more_items_in_collection"`
}

type apiRequest struct {
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
	ID     string        `json:"id"`
}

type apiResponse struct {
	ID     string      `json:"id"`
	Result *Result     `json:"result"`
	Error  interface{} `json:"error"`
}

// Client talks to the Gripp API. All requests flow through a single FIFO
// dispatcher owned by the client: each request starts at least minDelay
// after the previous request's start, and at most maxInFlight requests are
// in flight at once. Close stops the dispatcher; pending retries are lost.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	pageSize    int
	minDelay    time.Duration
	maxInFlight int

	jobs      chan *job
	closed    chan struct{}
	closeOnce sync.Once
}

type job struct {
	ctx      context.Context
	method   string
	filters  []Filter
	options  map[string]interface{}
	bust     bool
	attempts int
	done     chan jobResult
}

type jobResult struct {
	result *Result
	err    error
}

// Option configures a Client.
type Option func(*Client)

// WithMinDelay sets the minimum delay between request starts.
func WithMinDelay(d time.Duration) Option {
	return func(c *Client) { c.minDelay = d }
}

// WithMaxInFlight sets the in-flight request ceiling.
func WithMaxInFlight(n int) Option {
	return func(c *Client) { c.maxInFlight = n }
}

// WithPageSize sets the page size used by GetAll.
func WithPageSize(n int) Option {
	return func(c *Client) { c.pageSize = n }
}

// WithHTTPClient replaces the default token-authenticated HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a Gripp client authenticated with the given API token
// and starts its dispatcher.
func NewClient(baseURL, token string, opts ...Option) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(context.Background(), ts)
	httpClient.Timeout = requestTimeout

	c := &Client{
		baseURL:     baseURL,
		httpClient:  httpClient,
		pageSize:    defaultPageSize,
		minDelay:    defaultMinDelay,
		maxInFlight: defaultMaxInFlight,
		jobs:        make(chan *job, 64),
		closed:      make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	go c.dispatch()

	return c
}

// Close stops the dispatcher. In-flight requests finish; queued retries are
// dropped with an error.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// Execute issues a single API call for the given method, filters, and
// options, returning the paged result.
func (c *Client) Execute(ctx context.Context, method string, filters []Filter, options map[string]interface{}) (*Result, error) {
	return c.enqueue(ctx, method, filters, options, false)
}

// Get fetches the first page of rows for a method.
func (c *Client) Get(ctx context.Context, method string, filters []Filter) ([]json.RawMessage, error) {
	result, err := c.Execute(ctx, method, filters, c.pagingOptions(0))
	if err != nil {
		return nil, err
	}
	return decodeRows(result.Rows)
}

// GetAll walks every page for a method and returns the concatenated rows.
func (c *Client) GetAll(ctx context.Context, method string, filters []Filter) ([]json.RawMessage, error) {
	return c.getAll(ctx, method, filters, false)
}

// GetAllFresh is GetAll with a cache-busting query parameter on each
// request, bypassing any intermediate HTTP caches after a sync.
func (c *Client) GetAllFresh(ctx context.Context, method string, filters []Filter) ([]json.RawMessage, error) {
	return c.getAll(ctx, method, filters, true)
}

func (c *Client) getAll(ctx context.Context, method string, filters []Filter, bust bool) ([]json.RawMessage, error) {
	var all []json.RawMessage
	start := 0

	for {
		result, err := c.enqueue(ctx, method, filters, c.pagingOptions(start), bust)
		if err != nil {
			return nil, err
		}

		page, err := decodeRows(result.Rows)
		if err != nil {
			return nil, fmt.Errorf("failed to decode rows for %s: %w", method, err)
		}
		all = append(all, page...)

		// A short page means the collection is exhausted even if the
		// server forgot to clear more_items_in_collection.
		if !result.MoreItems || len(page) < c.pageSize {
			break
		}

		if result.NextStart > start {
			start = result.NextStart
		} else {
			start += c.pageSize
		}
	}

	return all, nil
}

func (c *Client) pagingOptions(start int) map[string]interface{} {
	return map[string]interface{}{
		"paging": map[string]int{
			"firstresult": start,
			"maxresults":  c.pageSize,
		},
	}
}

func (c *Client) enqueue(ctx context.Context, method string, filters []Filter, options map[string]interface{}, bust bool) (*Result, error) {
	j := &job{
		ctx:     ctx,
		method:  method,
		filters: filters,
		options: options,
		bust:    bust,
		done:    make(chan jobResult, 1),
	}

	select {
	case c.jobs <- j:
	case <-c.closed:
		return nil, fmt.Errorf("gripp client is closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-j.done:
		return r.result, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// dispatch runs the FIFO queue. It alone tracks the last request start
// time, so no locking is needed around it.
func (c *Client) dispatch() {
	inflight := make(chan struct{}, c.maxInFlight)
	var lastStart time.Time

	for {
		var j *job
		select {
		case <-c.closed:
			return
		case j = <-c.jobs:
		}

		if wait := c.minDelay - time.Since(lastStart); wait > 0 {
			select {
			case <-time.After(wait):
			case <-c.closed:
				j.done <- jobResult{err: fmt.Errorf("gripp client is closed")}
				return
			}
		}

		select {
		case inflight <- struct{}{}:
		case <-c.closed:
			j.done <- jobResult{err: fmt.Errorf("gripp client is closed")}
			return
		}

		lastStart = time.Now()
		go func(j *job) {
			defer func() { <-inflight }()
			c.perform(j)
		}(j)
	}
}

// perform executes one job. Rate-limited responses are re-queued after the
// server-suggested delay instead of failing the caller.
func (c *Client) perform(j *job) {
	result, retryAfter, err := c.do(j)
	if err == nil {
		j.done <- jobResult{result: result}
		return
	}

	if retryAfter > 0 && j.attempts < maxRateLimitTries {
		j.attempts++
		log.Printf("Gripp rate limited on %s, re-queueing in %s (attempt %d)", j.method, retryAfter, j.attempts)
		time.AfterFunc(retryAfter, func() {
			select {
			case c.jobs <- j:
			case <-c.closed:
				j.done <- jobResult{err: fmt.Errorf("gripp client closed during retry")}
			case <-j.ctx.Done():
				j.done <- jobResult{err: j.ctx.Err()}
			}
		})
		return
	}

	j.done <- jobResult{err: err}
}

// do issues the HTTP request. The second return value is non-zero when the
// server asked us to back off (503).
func (c *Client) do(j *job) (*Result, time.Duration, error) {
	filters := j.filters
	if filters == nil {
		filters = []Filter{}
	}
	options := j.options
	if options == nil {
		options = map[string]interface{}{}
	}

	batch := []apiRequest{{
		Method: j.method,
		Params: []interface{}{filters, options},
		ID:     uuid.New().String(),
	}}

	body, err := json.Marshal(batch)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to encode request: %w", err)
	}

	url := c.baseURL
	if j.bust {
		url = fmt.Sprintf("%s?cb=%d", url, time.Now().UnixNano())
	}

	req, err := http.NewRequestWithContext(j.ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("gripp request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusServiceUnavailable {
		return nil, parseRetryAfter(resp.Header.Get("Retry-After")), fmt.Errorf("gripp rate limited (503)")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("gripp returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}

	var responses []apiResponse
	if err := json.Unmarshal(data, &responses); err != nil {
		return nil, 0, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(responses) == 0 {
		return nil, 0, fmt.Errorf("empty response batch")
	}

	first := responses[0]
	if first.Error != nil {
		return nil, 0, fmt.Errorf("gripp error for %s: %v", j.method, first.Error)
	}
	if first.Result == nil {
		return nil, 0, fmt.Errorf("gripp returned no result for %s", j.method)
	}

	return first.Result, 0, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return defaultRetryAfter
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds <= 0 {
		return defaultRetryAfter
	}
	return time.Duration(seconds) * time.Second
}

func decodeRows(raw json.RawMessage) ([]json.RawMessage, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
