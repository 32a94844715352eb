// Package gather fetches query columns from a column server over HTTP.
package gather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/leapstack-labs/leaptable/internal/query"
	"github.com/leapstack-labs/leaptable/pkg/core"
)

// Default retry settings.
const (
	DefaultRetryMax     = 3
	DefaultRetryWaitMin = 100 * time.Millisecond
	DefaultRetryWaitMax = 2 * time.Second
	DefaultTimeout      = 30 * time.Second
)

// maxBodyBytes bounds a gather response.
const maxBodyBytes = 64 << 20

// Options configures a Client.
type Options struct {
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Timeout      time.Duration
	// HTTPClient replaces the underlying client, mainly for tests.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client fetches columns from {base}/gather/{objectType}/{query}.json.
type Client struct {
	base   string
	http   *retryablehttp.Client
	logger *slog.Logger
}

var _ core.Fetcher = (*Client)(nil)

// New creates a client for the column server at baseURL.
func New(baseURL string, opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.RetryMax == 0 {
		opts.RetryMax = DefaultRetryMax
	}
	if opts.RetryWaitMin == 0 {
		opts.RetryWaitMin = DefaultRetryWaitMin
	}
	if opts.RetryWaitMax == 0 {
		opts.RetryWaitMax = DefaultRetryWaitMax
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = max(opts.RetryMax, 0)
	rc.RetryWaitMin = opts.RetryWaitMin
	rc.RetryWaitMax = opts.RetryWaitMax
	rc.Logger = opts.Logger
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if opts.HTTPClient != nil {
		rc.HTTPClient = opts.HTTPClient
	}
	rc.HTTPClient.Timeout = opts.Timeout

	return &Client{
		base:   strings.TrimSuffix(baseURL, "/"),
		http:   rc,
		logger: opts.Logger,
	}
}

// URL returns the gather URL of a query.
func (c *Client) URL(objectType core.ObjectType, q string) string {
	return fmt.Sprintf("%s/gather/%s/%s.json", c.base, query.Encode(string(objectType)), query.Encode(q))
}

// Fetch implements core.Fetcher. A response that is not 200 is still decoded
// when it carries an error-flagged result; anything else is a transport
// failure.
func (c *Client) Fetch(ctx context.Context, objectType core.ObjectType, q string) (*core.ColumnResult, error) {
	url := c.URL(objectType, q)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", url, err)
	}

	var res core.ColumnResult
	decodeErr := json.Unmarshal(body, &res)

	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && res.Failed() {
			return &res, nil
		}
		return nil, fmt.Errorf("failed to fetch %s: %s", url, resp.Status)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", url, decodeErr)
	}

	c.logger.Debug("column fetched", "object_type", objectType, "query", q, "rows", res.Len(), "failed", res.Failed())
	return &res, nil
}
