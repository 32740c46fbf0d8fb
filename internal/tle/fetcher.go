package tle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// maxBodyBytes caps a single source response. CelesTrak's largest groups are
// a few MB; anything near this is a misbehaving upstream.
const maxBodyBytes = 50 << 20

// Retry defaults for remote sources.
const (
	defaultRetries = 2
	defaultBackoff = 500 * time.Millisecond
	maxBackoff     = 10 * time.Second
)

// StatusError is a non-200 response from a remote source.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d from %s", e.Code, e.URL)
}

// retryable reports whether a later attempt might succeed.
func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return !errors.Is(err, errBodyTooLarge)
}

var errBodyTooLarge = errors.New("response exceeds byte limit")

// Fetcher retrieves element sets over HTTP(S), retrying transient failures
// with exponential backoff.
type Fetcher struct {
	sourceURL  string
	httpClient *http.Client
	retries    int
	backoff    time.Duration
	logger     *slog.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithRetry sets how many times a failed fetch is retried and the initial
// delay, which doubles per attempt.
func WithRetry(retries int, backoff time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.retries = max(0, retries)
		f.backoff = backoff
	}
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) { f.httpClient = c }
}

// NewFetcher creates a Fetcher for sourceURL.
func NewFetcher(sourceURL string, logger *slog.Logger, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		sourceURL:  sourceURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retries:    defaultRetries,
		backoff:    defaultBackoff,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Locator returns the configured source URL.
func (f *Fetcher) Locator() string {
	return f.sourceURL
}

// Fetch downloads the source, retrying connection errors, 429 and 5xx.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	var lastErr error
	delay := f.backoff

	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			f.logger.Debug("retrying TLE source",
				"component", "tle",
				"source", f.sourceURL,
				"attempt", attempt,
				"error", lastErr,
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			delay = min(delay*2, maxBackoff)
		}

		body, err := f.fetchOnce(ctx)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !retryable(err) {
			break
		}
	}
	return nil, lastErr
}

func (f *Fetcher) fetchOnce(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching TLE data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: f.sourceURL, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("%s: %w (%d bytes)", f.sourceURL, errBodyTooLarge, maxBodyBytes)
	}

	f.logger.Debug("fetched TLE source",
		"component", "tle",
		"source", f.sourceURL,
		"bytes", len(body),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return body, nil
}
