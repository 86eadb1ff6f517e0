// Package postgrest is a minimal client for a PostgREST-style hosted
// table service. It exposes paginated row fetch with bounded retry and
// an exact row count, and nothing else: the hosted database is an
// external collaborator, not something this repository reimplements.
package postgrest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/openy9c/y9cdash/internal/infra"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Row is one raw table row as returned by the service.
type Row map[string]any

// Query describes one table read.
type Query struct {
	Table   string
	Columns []string          // empty means "*"
	Filters map[string]string // column -> PostgREST operator expression, e.g. "eq.2023-03-31"
	OrderBy string            // e.g. "report_period.desc"
	// PageSize is the offset/limit window per request.
	PageSize int
	// MaxRows caps the total rows fetched; 0 means unbounded.
	MaxRows int
}

// Client fetches rows from a PostgREST endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *infra.RateLimiter
	maxRetries int
	retryBase  time.Duration
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithMaxRetries sets the per-page retry attempt cap.
func WithMaxRetries(n int) Option {
	return func(cl *Client) { cl.maxRetries = n }
}

// WithRetryBase sets the base backoff delay; the delay doubles each
// attempt.
func WithRetryBase(d time.Duration) Option {
	return func(cl *Client) { cl.retryBase = d }
}

// WithRateLimit installs a courtesy throttle between page requests.
// requests <= 0 disables the throttle entirely; a limiter with no
// tokens would block every fetch until its context died.
func WithRateLimit(requests int, window time.Duration) Option {
	return func(cl *Client) {
		if requests > 0 {
			cl.limiter = infra.NewRateLimiter(requests, window)
		}
	}
}

// New creates a client for the given service URL and API key.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: infra.DefaultHTTPClient,
		maxRetries: 3,
		retryBase:  500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ping verifies connectivity and credentials against the service root.
func (c *Client) Ping(ctx context.Context) error {
	_, status, err := infra.DoGet(ctx, c.httpClient, c.baseURL+"/rest/v1/", c.headers())
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return schemaErr("ping", fmt.Errorf("rejected credentials (HTTP %d)", status))
	}
	if err != nil && status == 0 {
		return transientErr("ping", err)
	}
	return nil
}

// FetchAll retrieves every row matching the query in PageSize windows.
// Termination is driven by page contents alone: a page shorter than
// PageSize ends the loop, as does reaching MaxRows. Advertised totals
// are never trusted for loop control. On failure no partial result is
// returned.
func (c *Client) FetchAll(ctx context.Context, q Query) ([]Row, error) {
	if q.Table == "" {
		return nil, schemaErr("fetch", fmt.Errorf("empty table name"))
	}
	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}

	var all []Row
	for page := 0; ; page++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		offset := page * pageSize
		rows, err := c.fetchPage(ctx, q, offset, pageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)

		if q.MaxRows > 0 && len(all) >= q.MaxRows {
			return all[:q.MaxRows], nil
		}
		if len(rows) < pageSize {
			return all, nil
		}
	}
}

// Count returns the exact row count of a table using the service's
// count preference header.
func (c *Client) Count(ctx context.Context, table string) (int, error) {
	u := fmt.Sprintf("%s/rest/v1/%s?select=*&limit=1", c.baseURL, url.PathEscape(table))
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u, nil)
	if err != nil {
		return 0, err
	}
	for k, v := range c.headers() {
		req.Header.Set(k, v)
	}
	req.Header.Set("Prefer", "count=exact")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, transientErr("count "+table, err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return 0, transientErr("count "+table, fmt.Errorf("HTTP %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return 0, schemaErr("count "+table, fmt.Errorf("HTTP %d", resp.StatusCode))
	}

	// Content-Range: 0-0/3573
	cr := resp.Header.Get("Content-Range")
	slash := strings.LastIndex(cr, "/")
	if slash < 0 {
		return 0, schemaErr("count "+table, fmt.Errorf("missing Content-Range total in %q", cr))
	}
	total, err := strconv.Atoi(cr[slash+1:])
	if err != nil {
		return 0, schemaErr("count "+table, fmt.Errorf("bad Content-Range total in %q", cr))
	}
	return total, nil
}

// fetchPage retrieves one offset/limit window, retrying transient
// failures with exponential backoff up to the attempt cap.
func (c *Client) fetchPage(ctx context.Context, q Query, offset, limit int) ([]Row, error) {
	op := fmt.Sprintf("fetch %s offset %d", q.Table, offset)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryBase << (attempt - 1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		rows, err := c.doFetch(ctx, q, offset, limit, op)
		if err == nil {
			return rows, nil
		}
		lastErr = err

		if !IsTransient(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) doFetch(ctx context.Context, q Query, offset, limit int, op string) ([]Row, error) {
	body, status, err := infra.DoGet(ctx, c.httpClient, c.pageURL(q, offset, limit), c.headers())
	if err != nil {
		switch {
		case status >= 500, status == http.StatusTooManyRequests:
			return nil, transientErr(op, err)
		case status >= 400:
			return nil, schemaErr(op, err)
		default:
			// Request construction, network, or body-read failure.
			return nil, transientErr(op, err)
		}
	}

	// The service must return a JSON array of objects; anything else
	// (an error document, a bare object) is a shape violation.
	var rows []Row
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, schemaErr(op, fmt.Errorf("decode response: %w", err))
	}
	return rows, nil
}

func (c *Client) pageURL(q Query, offset, limit int) string {
	sel := "*"
	if len(q.Columns) > 0 {
		sel = strings.Join(q.Columns, ",")
	}

	v := url.Values{}
	v.Set("select", sel)
	v.Set("offset", strconv.Itoa(offset))
	v.Set("limit", strconv.Itoa(limit))
	if q.OrderBy != "" {
		v.Set("order", q.OrderBy)
	}
	for col, expr := range q.Filters {
		v.Set(col, expr)
	}
	return fmt.Sprintf("%s/rest/v1/%s?%s", c.baseURL, url.PathEscape(q.Table), v.Encode())
}

func (c *Client) headers() map[string]string {
	return map[string]string{
		"apikey":        c.apiKey,
		"Authorization": "Bearer " + c.apiKey,
		"Accept":        "application/json",
	}
}
