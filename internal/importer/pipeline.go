package importer

import (
	"context"
	"fmt"
	"log"
	"strings"

	"seattle-events-workbench/internal/models"
	"seattle-events-workbench/internal/services"
)

// ParseOutcomeKind tags how a page's candidates were obtained.
type ParseOutcomeKind string

const (
	// OutcomeStructured means embedded platform data was parsed directly.
	OutcomeStructured ParseOutcomeKind = "structured"
	// OutcomeExtracted means the generic scrape+extract path ran.
	OutcomeExtracted ParseOutcomeKind = "extracted"
)

// ParseOutcome is the result of running one URL through the pipeline.
type ParseOutcome struct {
	Kind     ParseOutcomeKind
	PageType string
	Events   []models.CandidateEvent
}

// StructuredParser is the platform-specific fast path.
type StructuredParser interface {
	Recognizes(url string) bool
	TryStructuredParse(ctx context.Context, url string) (*services.StructuredResult, bool)
}

// Extractor is the LLM-backed generic extraction surface.
type Extractor interface {
	ExtractEvents(ctx context.Context, mainContent, pricingContent, sourceURL string, pageLinks []string) (*services.ExtractionResult, error)
	ClassifyEvents(ctx context.Context, events []models.CandidateEvent) ([]models.CandidateEvent, error)
	EnrichEventsFromDetailPages(ctx context.Context, events []models.CandidateEvent, scraper services.Scraper) []models.CandidateEvent
}

// PageEnricher runs the best-effort follow-up fetches.
type PageEnricher interface {
	FetchPricingContent(ctx context.Context, links []string) string
	BackfillImages(ctx context.Context, events []models.CandidateEvent) []models.CandidateEvent
}

// Pipeline turns one source URL into candidate events: structured parse
// when the platform is recognized, otherwise scrape, extract and enrich.
type Pipeline struct {
	structured StructuredParser
	scraper    services.Scraper
	extractor  Extractor
	enricher   PageEnricher
}

// NewPipeline wires the per-job processing stages.
func NewPipeline(structured StructuredParser, scraper services.Scraper, extractor Extractor, enricher PageEnricher) *Pipeline {
	return &Pipeline{structured: structured, scraper: scraper, extractor: extractor, enricher: enricher}
}

// Run processes one URL end to end. Enrichment stages are best-effort;
// only the scrape and the primary extraction can fail the job.
func (p *Pipeline) Run(ctx context.Context, sourceURL string) (*ParseOutcome, error) {
	if p.structured != nil && p.structured.Recognizes(sourceURL) {
		if result, ok := p.structured.TryStructuredParse(ctx, sourceURL); ok {
			log.Printf("[IMPORT] %s: structured parse produced %d events", sourceURL, len(result.Events))
			return &ParseOutcome{Kind: OutcomeStructured, PageType: result.PageType, Events: result.Events}, nil
		}
	}

	scraped, err := p.scraper.Scrape(sourceURL)
	if err != nil {
		return nil, fmt.Errorf("scrape failed: %w", err)
	}
	if strings.TrimSpace(scraped.Markdown) == "" {
		return nil, fmt.Errorf("page %s has no content: %w", sourceURL, services.ErrEmptyPage)
	}

	extraction, err := p.extractor.ExtractEvents(ctx, scraped.Markdown, "", sourceURL, scraped.Links)
	if err != nil {
		return nil, fmt.Errorf("extraction failed: %w", err)
	}

	events := extraction.Events

	// A single event with no price gets one retry with ticketing-page
	// content folded in.
	if services.NeedsPricingPass(extraction.PageType, events) && p.enricher != nil {
		if links := services.FindPricingLinks(sourceURL, scraped.Links); len(links) > 0 {
			if pricing := p.enricher.FetchPricingContent(ctx, links); pricing != "" {
				retry, err := p.extractor.ExtractEvents(ctx, scraped.Markdown, pricing, sourceURL, scraped.Links)
				if err != nil {
					log.Printf("[ENRICHMENT] Pricing re-extraction for %s skipped: %v", sourceURL, err)
				} else if len(retry.Events) > 0 {
					events = retry.Events
				}
			}
		}
	}

	if extraction.PageType == models.PageTypeListing {
		events = p.extractor.EnrichEventsFromDetailPages(ctx, events, p.scraper)
	}

	if classified, err := p.extractor.ClassifyEvents(ctx, events); err != nil {
		log.Printf("[EXTRACTION] Classification for %s skipped: %v", sourceURL, err)
	} else {
		events = classified
	}

	if p.enricher != nil {
		events = p.enricher.BackfillImages(ctx, events)
	}

	log.Printf("[IMPORT] %s: pageType=%s events=%d", sourceURL, extraction.PageType, len(events))
	return &ParseOutcome{Kind: OutcomeExtracted, PageType: extraction.PageType, Events: events}, nil
}
