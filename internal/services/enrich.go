package services

import (
	"context"
	"log"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"seattle-events-workbench/internal/models"
)

// Pricing-subpage discovery: links whose path or text suggests a
// registration or ticketing page.
var pricingLinkPattern = regexp.MustCompile(`(?i)(register|tickets?|attend|pricing|buy|passes)`)

const (
	maxPricingPages      = 3
	maxImageBackfill     = 10
	imageBackfillWorkers = 4
	imageBackfillTimeout = 8 * time.Second
)

// Enricher fills gaps in extracted candidates with follow-up fetches:
// a pricing-subpage pass for single events missing a price, and an image
// backfill pass for events missing an image. Both passes are best-effort
// and never fail the import.
type Enricher struct {
	scraper Scraper
	fetcher Fetcher
}

// NewEnricher creates an enricher using scraper for content pages and
// fetcher for lightweight image lookups.
func NewEnricher(scraper Scraper, fetcher Fetcher) *Enricher {
	return &Enricher{scraper: scraper, fetcher: fetcher}
}

// FindPricingLinks returns same-site links from pageLinks that look like
// registration or ticketing pages, capped at maxPricingPages.
func FindPricingLinks(sourceURL string, pageLinks []string) []string {
	source, err := url.Parse(sourceURL)
	if err != nil {
		return nil
	}
	sourceHost := strings.TrimPrefix(strings.ToLower(source.Host), "www.")

	var links []string
	seen := make(map[string]bool)
	for _, link := range pageLinks {
		parsed, err := url.Parse(link)
		if err != nil || parsed.Host == "" {
			continue
		}
		host := strings.TrimPrefix(strings.ToLower(parsed.Host), "www.")
		if host != sourceHost {
			continue
		}
		if !pricingLinkPattern.MatchString(parsed.Path) {
			continue
		}
		if seen[link] || link == sourceURL {
			continue
		}
		seen[link] = true
		links = append(links, link)
		if len(links) >= maxPricingPages {
			break
		}
	}
	return links
}

// FetchPricingContent scrapes each pricing link concurrently and joins the
// markdown of the ones that succeeded. Individual failures are logged and
// dropped.
func (e *Enricher) FetchPricingContent(ctx context.Context, links []string) string {
	if len(links) == 0 {
		return ""
	}

	contents := make([]string, len(links))
	var wg sync.WaitGroup
	for i, link := range links {
		wg.Add(1)
		go func(i int, link string) {
			defer wg.Done()
			scraped, err := e.scraper.Scrape(link)
			if err != nil {
				log.Printf("[ENRICHMENT] Pricing page %s skipped: %v", link, err)
				return
			}
			contents[i] = scraped.Markdown
		}(i, link)
	}
	wg.Wait()

	var kept []string
	for _, c := range contents {
		if strings.TrimSpace(c) != "" {
			kept = append(kept, c)
		}
	}
	return strings.Join(kept, "\n\n---\n\n")
}

// BackfillImages fetches each image-less candidate's page and pulls an
// image from its meta tags or JSON-LD. At most maxImageBackfill candidates
// are attempted per batch.
func (e *Enricher) BackfillImages(ctx context.Context, events []models.CandidateEvent) []models.CandidateEvent {
	result := make([]models.CandidateEvent, len(events))
	copy(result, events)

	type target struct {
		index int
		url   string
	}
	var targets []target
	for i, event := range result {
		if event.ImageURL != "" || event.Website == "" {
			continue
		}
		targets = append(targets, target{index: i, url: event.Website})
		if len(targets) >= maxImageBackfill {
			break
		}
	}
	if len(targets) == 0 {
		return result
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, imageBackfillWorkers)

	for _, tgt := range targets {
		wg.Add(1)
		go func(tgt target) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			fetchCtx, cancel := context.WithTimeout(ctx, imageBackfillTimeout)
			defer cancel()

			image, err := e.lookupPageImage(fetchCtx, tgt.url)
			if err != nil {
				log.Printf("[ENRICHMENT] Image lookup for %s skipped: %v", tgt.url, err)
				return
			}
			if image == "" {
				return
			}

			mu.Lock()
			result[tgt.index].ImageURL = image
			mu.Unlock()
		}(tgt)
	}
	wg.Wait()

	return result
}

// lookupPageImage fetches a page and returns its primary image URL.
func (e *Enricher) lookupPageImage(ctx context.Context, pageURL string) (string, error) {
	html, err := e.fetcher.FetchHTML(ctx, pageURL)
	if err != nil {
		return "", err
	}
	return ExtractPageImage(html), nil
}

// ExtractPageImage pulls the primary image from page HTML, checking Open
// Graph and Twitter meta tags first and JSON-LD image fields last. Only
// absolute http(s) URLs are accepted.
func ExtractPageImage(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	if img := metaImage(doc); img != "" {
		return img
	}

	for _, block := range jsonLDBlocks(doc) {
		obj, ok := block.(map[string]interface{})
		if !ok {
			continue
		}
		if img := absoluteImageURL(imageFromJSONLD(obj["image"])); img != "" {
			return img
		}
	}
	return ""
}

// NeedsPricingPass reports whether a page's extraction warrants the
// pricing-subpage follow-up: a single-event page whose one event has no
// price yet.
func NeedsPricingPass(pageType string, events []models.CandidateEvent) bool {
	return pageType == models.PageTypeSingle && len(events) == 1 && events[0].Price == ""
}
