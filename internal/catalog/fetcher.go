// Package catalog lists and downloads the DWD annual grid archive.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

const (
	userAgent      = "ZonalClimateAnalyzer/1.0"
	requestTimeout = 30 * time.Second
	maxRetries     = 5
	// requestsPerSecond keeps listing and download fan-out polite towards
	// the open-data server, retries included.
	requestsPerSecond = 8
)

// Fetcher talks to the DWD open-data server.
type Fetcher struct {
	baseURL string
	client  *http.Client
	workers int
	pacer   *rate.Limiter
	logger  *slog.Logger

	// newBackOff builds the retry schedule for one request; tests shorten it.
	newBackOff func() backoff.BackOff
}

// NewFetcher creates a Fetcher for the folder tree rooted at baseURL, which
// must end with a slash. workers bounds concurrent downloads.
func NewFetcher(baseURL string, workers int, logger *slog.Logger) *Fetcher {
	if workers < 1 {
		workers = 1
	}
	return &Fetcher{
		baseURL: baseURL,
		client:  &http.Client{Timeout: requestTimeout},
		workers: workers,
		pacer:   rate.NewLimiter(requestsPerSecond, workers),
		logger:  logger,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return backoff.WithMaxRetries(b, maxRetries)
		},
	}
}

// statusError is a non-200 response that survived all retries.
type statusError struct {
	URL    string
	Status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.Status)
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// get issues a GET, retrying transport errors and transient statuses with
// exponential backoff. The caller owns the body of a 200 response.
func (f *Fetcher) get(ctx context.Context, url string) (*http.Response, error) {
	op := func() (*http.Response, error) {
		if err := f.pacer.Wait(ctx); err != nil {
			return nil, backoff.Permanent(fmt.Errorf("GET %s: %w", url, err))
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := f.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, fmt.Errorf("GET %s: %w", url, err)
		}
		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		io.Copy(io.Discard, resp.Body) //nolint:errcheck // draining for connection reuse
		resp.Body.Close()
		serr := &statusError{URL: url, Status: resp.StatusCode}
		if retryable(resp.StatusCode) {
			return nil, serr
		}
		return nil, backoff.Permanent(serr)
	}

	notify := func(err error, wait time.Duration) {
		f.logger.Debug("retrying request", "url", url, "error", err, "wait", wait)
	}
	return backoff.RetryNotifyWithData(op, backoff.WithContext(f.newBackOff(), ctx), notify)
}

// statusOf extracts the HTTP status from a get error, or 0.
func statusOf(err error) int {
	var serr *statusError
	if errors.As(err, &serr) {
		return serr.Status
	}
	return 0
}
