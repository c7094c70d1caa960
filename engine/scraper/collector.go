// Package scraper defines the Collector contract shared by the per-platform
// collectors and the helpers they have in common.
package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/WessleyAI/pulse/engine/domain"
	"github.com/WessleyAI/pulse/pkg/fn"
)

// Collector fetches records matching a keyword from one platform.
//
// Search returns an error only for invalid arguments. Transport and remote
// failures end the crawl early and yield whatever was gathered so far.
type Collector interface {
	Source() domain.Source
	Search(ctx context.Context, keyword string, limit, minScore int) ([]domain.Record, error)
}

// DefaultUserAgent identifies collectors that were not given one.
const DefaultUserAgent = "pulse-collector/1.0 (keyword sentiment monitor)"

// NewHTTPClient returns a client with tracing on its transport.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// Get issues a GET and returns the body of a 200 response. Client errors
// other than 429 are wrapped in fn.ErrPermanent so retries stop early.
func Get(ctx context.Context, client *http.Client, url string, header http.Header) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", fn.ErrPermanent, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", DefaultUserAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusOK:
		return resp.Body, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, URL: url, RetryAfter: retryAfter(resp.Header.Get("Retry-After"))}
	default:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: unexpected status %d from %s", fn.ErrPermanent, resp.StatusCode, url)
	}
}

// StatusError is a retryable HTTP failure.
type StatusError struct {
	Code int
	URL  string
	// RetryAfter is the server's requested delay, zero when absent.
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d from %s", e.Code, e.URL)
}

// retryAfter reads the delay-seconds form of Retry-After.
func retryAfter(v string) time.Duration {
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
