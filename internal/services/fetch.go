package services

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// crawlerUserAgent identifies this service to the sites it fetches.
const crawlerUserAgent = "SeattleEventsWorkbench/1.0 (+https://seattle-events.example.com/crawler)"

// maxFetchBody caps how much of a response body is read.
const maxFetchBody = 4 << 20 // 4 MiB

// HTTPFetcher fetches raw pages for structured-source parsing, detail-page
// scraping and image backfill. Redirects are followed by default.
type HTTPFetcher struct {
	httpClient *http.Client
	userAgent  string
}

// Fetcher is the raw-page fetch contract.
type Fetcher interface {
	FetchHTML(ctx context.Context, url string) (string, error)
}

var _ Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher creates a fetcher with a sane TLS configuration and timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		IdleConnTimeout: 90 * time.Second,
	}

	return &HTTPFetcher{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		userAgent: crawlerUserAgent,
	}
}

// FetchHTML retrieves a page body as a string. Non-HTML content types return
// ErrEmptyPage so opportunistic callers treat them as "nothing here" rather
// than failures.
func (f *HTTPFetcher) FetchHTML(ctx context.Context, url string) (string, error) {
	if url == "" {
		return "", fmt.Errorf("%w: URL cannot be empty", ErrInvalidInput)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("%w: %s", ErrRateLimited, url)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch returned status %d for %s", resp.StatusCode, url)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "html") && !strings.Contains(contentType, "xml") {
		return "", fmt.Errorf("%w: content type %s", ErrEmptyPage, contentType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	return string(body), nil
}
