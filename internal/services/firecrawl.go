package services

import (
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"github.com/mendableai/firecrawl-go"
)

// ScrapeResult is the scrape collaborator contract: clean markdown for the
// extractor, same-site links for enrichment, and a best-effort page title.
// An empty or unreadable page yields empty Markdown, not an error.
type ScrapeResult struct {
	Markdown string   `json:"markdown"`
	Links    []string `json:"links"`
	Title    string   `json:"title"`
}

// Scraper fetches a page and returns its readable content.
type Scraper interface {
	Scrape(url string) (*ScrapeResult, error)
}

// RetryConfig defines retry behavior for failed scrape requests.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// FireCrawlClient handles content extraction from web pages using FireCrawl.
type FireCrawlClient struct {
	client      *firecrawl.FirecrawlApp
	timeout     time.Duration
	retryConfig RetryConfig
}

var _ Scraper = (*FireCrawlClient)(nil)

// NewFireCrawlClient creates a new FireCrawl client.
func NewFireCrawlClient(apiKey string) (*FireCrawlClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("FireCrawl API key is required")
	}

	app, err := firecrawl.NewFirecrawlApp(apiKey, "https://api.firecrawl.dev")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize FireCrawl client: %w", err)
	}

	return &FireCrawlClient{
		client:  app,
		timeout: 60 * time.Second,
		retryConfig: RetryConfig{
			MaxRetries:    3,
			InitialDelay:  1 * time.Second,
			MaxDelay:      10 * time.Second,
			BackoffFactor: 2.0,
		},
	}, nil
}

// NewFireCrawlClientWithTimeout creates a new FireCrawl client with custom timeout.
func NewFireCrawlClientWithTimeout(apiKey string, timeout time.Duration) (*FireCrawlClient, error) {
	client, err := NewFireCrawlClient(apiKey)
	if err != nil {
		return nil, err
	}
	client.timeout = timeout
	return client, nil
}

// Scrape fetches a page through FireCrawl with retry and exponential backoff.
// Rate-limit responses surface as ErrRateLimited so callers can map them to
// a distinct failure mode.
func (fc *FireCrawlClient) Scrape(url string) (*ScrapeResult, error) {
	if url == "" {
		return nil, fmt.Errorf("URL cannot be empty")
	}

	startTime := time.Now()
	var lastErr error

	for attempt := 0; attempt <= fc.retryConfig.MaxRetries; attempt++ {
		result, err := fc.attemptScrape(url)
		if err == nil {
			if elapsed := time.Since(startTime); elapsed > 10*time.Second {
				log.Printf("[SCRAPE] Warning: scrape took %v for URL: %s (attempt %d)", elapsed, url, attempt+1)
			}
			return result, nil
		}

		lastErr = err

		// Client errors and rate limits don't improve with retries here;
		// rate limits are the caller's decision to surface.
		if strings.Contains(err.Error(), "status 4") || isRateLimitError(err) {
			break
		}

		if attempt < fc.retryConfig.MaxRetries {
			delay := fc.calculateDelay(attempt)
			log.Printf("[SCRAPE] Attempt %d failed for %s, retrying in %v: %v", attempt+1, url, delay, err)
			time.Sleep(delay)
		}
	}

	if isRateLimitError(lastErr) {
		return nil, fmt.Errorf("%w: %v", ErrRateLimited, lastErr)
	}
	return nil, fmt.Errorf("scrape failed after %d attempts: %w", fc.retryConfig.MaxRetries+1, lastErr)
}

// attemptScrape performs a single scrape attempt.
func (fc *FireCrawlClient) attemptScrape(url string) (*ScrapeResult, error) {
	doc, err := fc.client.ScrapeURL(url, nil)
	if err != nil {
		return nil, fmt.Errorf("firecrawl request failed: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("firecrawl returned no document")
	}

	return &ScrapeResult{
		Markdown: doc.Markdown,
		Links:    doc.Links,
		Title:    titleFromMarkdown(doc.Markdown),
	}, nil
}

// calculateDelay calculates exponential backoff delay with jitter.
func (fc *FireCrawlClient) calculateDelay(attempt int) time.Duration {
	delay := float64(fc.retryConfig.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= fc.retryConfig.BackoffFactor
	}
	delay += rand.Float64() * 0.1 * float64(fc.retryConfig.InitialDelay)

	if delay > float64(fc.retryConfig.MaxDelay) {
		delay = float64(fc.retryConfig.MaxDelay)
	}
	return time.Duration(delay)
}

// titleFromMarkdown pulls the first top-level heading out of scraped content.
func titleFromMarkdown(markdown string) string {
	for _, line := range strings.Split(markdown, "\n") {
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return ""
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(strings.ToLower(msg), "rate limit")
}
