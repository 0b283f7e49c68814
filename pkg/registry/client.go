// Package registry downloads published package archives.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yuya-takeyama/cargo-safe-publish/internal/retry"
	"github.com/yuya-takeyama/cargo-safe-publish/pkg/logger"
)

const (
	DefaultBaseURL = "https://crates.io"

	// MaxArchiveSize bounds the body read from the registry. crates.io
	// rejects uploads above 10 MiB by default; this leaves room for
	// registries with a raised limit.
	MaxArchiveSize = 64 << 20
)

var (
	// ErrNotFound is returned when the registry does not know the version.
	// Right after an upload this is usually propagation delay.
	ErrNotFound = errors.New("version not found in registry")
	// ErrUnavailable is returned once every attempt failed transiently.
	ErrUnavailable = errors.New("registry unavailable")
)

// Client fetches the archive of a published version.
type Client interface {
	Download(ctx context.Context, name, version string) ([]byte, error)
}

// StatusError is a response the client did not expect.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// HTTPClient talks to a crates.io compatible download endpoint.
type HTTPClient struct {
	baseURL   string
	userAgent string
	policy    retry.Policy
	http      *http.Client
	log       *slog.Logger
}

type Option func(*HTTPClient)

func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) { h.http = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(h *HTTPClient) { h.log = l }
}

func NewHTTPClient(baseURL, userAgent string, policy retry.Policy, opts ...Option) *HTTPClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &HTTPClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: userAgent,
		policy:    policy,
		http:      &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	c.log = logger.OrDiscard(c.log)
	return c
}

// DownloadURL is the archive location of name@version.
func (c *HTTPClient) DownloadURL(name, version string) string {
	return fmt.Sprintf("%s/api/v1/crates/%s/%s/download", c.baseURL, url.PathEscape(name), url.PathEscape(version))
}

// Download fetches the archive, retrying transient failures sequentially
// according to the policy. Permanent failures are returned at once;
// exhausting the retries yields an error wrapping ErrUnavailable and the
// last failure.
func (c *HTTPClient) Download(ctx context.Context, name, version string) ([]byte, error) {
	u := c.DownloadURL(name, version)
	if _, err := url.ParseRequestURI(u); err != nil {
		return nil, fmt.Errorf("invalid registry URL: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			c.log.Info("registry not ready, retrying", logger.URL(u), logger.Attempt(attempt), logger.Error(lastErr))
			if err := c.policy.Wait(ctx, attempt); err != nil {
				return nil, err
			}
		}

		data, err := c.get(ctx, u)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !isRetryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrUnavailable, c.policy.MaxRetries+1, lastErr)
}

func (c *HTTPClient) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", u, err)
	}
	defer resp.Body.Close()

	c.log.Debug("registry response", logger.URL(u), logger.HTTPStatus(resp.StatusCode))
	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("GET %s: %w", u, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: u, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxArchiveSize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", u, err)
	}
	if len(data) > MaxArchiveSize {
		return nil, fmt.Errorf("GET %s: archive exceeds %d bytes", u, MaxArchiveSize)
	}
	return data, nil
}

// isRetryable treats not-found, throttling, server errors and transport
// failures as transient.
func isRetryable(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	var ue *url.Error
	return errors.As(err, &ue) || errors.Is(err, io.ErrUnexpectedEOF)
}
