package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"seattle-events-workbench/internal/models"
)

// Hosts recognized as the Luma calendar platform. lu.ma and luma.com serve
// the same pages.
var lumaHosts = map[string]bool{
	"lu.ma":        true,
	"www.lu.ma":    true,
	"luma.com":     true,
	"www.luma.com": true,
}

// Confidence assigned to structured parses; embedded data is near-authoritative.
const (
	confidenceStructured = 0.95
	confidenceJSONLDList = 0.9
)

// StructuredResult is the outcome of a successful structured-source parse.
type StructuredResult struct {
	PageType string
	Events   []models.CandidateEvent
}

// LumaParser parses embedded structured data (JSON-LD, page-data payloads)
// from known calendar-platform pages, bypassing free-text extraction.
type LumaParser struct {
	fetcher Fetcher
	loc     *time.Location
}

// NewLumaParser creates a parser resolving naive dates in loc.
func NewLumaParser(fetcher Fetcher, loc *time.Location) *LumaParser {
	return &LumaParser{fetcher: fetcher, loc: loc}
}

// Recognizes reports whether the URL belongs to the structured platform.
func (p *LumaParser) Recognizes(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return lumaHosts[strings.ToLower(parsed.Host)]
}

// TryStructuredParse fetches the page and attempts a structured parse.
// Any fetch or parse failure returns ok=false so the caller falls back to
// generic scrape+extract; it is never fatal to the overall import.
func (p *LumaParser) TryStructuredParse(ctx context.Context, pageURL string) (*StructuredResult, bool) {
	if !p.Recognizes(pageURL) {
		return nil, false
	}

	html, err := p.fetcher.FetchHTML(ctx, pageURL)
	if err != nil {
		log.Printf("[STRUCTURED] Fetch failed for %s, falling back to generic extraction: %v", pageURL, err)
		return nil, false
	}

	return p.Parse(pageURL, html)
}

// Parse attempts the three structured shapes in order: single-event JSON-LD,
// embedded page-data listing payload, JSON-LD listing arrays.
func (p *LumaParser) Parse(pageURL, html string) (*StructuredResult, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, false
	}

	blocks := jsonLDBlocks(doc)

	if event, ok := p.parseSingleEvent(pageURL, doc, blocks); ok {
		return &StructuredResult{PageType: models.PageTypeSingle, Events: []models.CandidateEvent{event}}, true
	}

	if events := p.parsePageDataListing(doc); len(events) > 0 {
		return &StructuredResult{PageType: models.PageTypeListing, Events: events}, true
	}

	if events := p.parseJSONLDListing(blocks); len(events) > 0 {
		return &StructuredResult{PageType: models.PageTypeListing, Events: events}, true
	}

	return nil, false
}

// jsonLDBlocks decodes every ld+json script tag; invalid blocks are skipped.
func jsonLDBlocks(doc *goquery.Document) []interface{} {
	var blocks []interface{}
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var payload interface{}
		if err := json.Unmarshal([]byte(s.Text()), &payload); err != nil {
			return
		}
		blocks = append(blocks, payload)
	})
	return blocks
}

// parseSingleEvent handles a page whose JSON-LD declares one typed Event.
func (p *LumaParser) parseSingleEvent(pageURL string, doc *goquery.Document, blocks []interface{}) (models.CandidateEvent, bool) {
	for _, block := range blocks {
		obj, ok := block.(map[string]interface{})
		if !ok || stringField(obj, "@type") != "Event" {
			continue
		}

		event, ok := p.eventFromJSONLD(obj, confidenceStructured)
		if !ok {
			continue
		}
		if event.Website == "" {
			event.Website = pageURL
		}
		if event.ImageURL == "" {
			event.ImageURL = metaImage(doc)
		}
		return event, true
	}
	return models.CandidateEvent{}, false
}

// parsePageDataListing handles the embedded __NEXT_DATA__ payload that Luma
// listing pages ship: entries carrying name, start_at and a url slug.
func (p *LumaParser) parsePageDataListing(doc *goquery.Document) []models.CandidateEvent {
	raw := doc.Find("script#__NEXT_DATA__").First().Text()
	if raw == "" {
		return nil
	}

	var payload interface{}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil
	}

	var events []models.CandidateEvent
	for _, entry := range collectEventEntries(payload) {
		name := stringField(entry, "name")
		start := p.parseDate(firstNonEmpty(stringField(entry, "start_at"), stringField(entry, "startAt")))
		if name == "" || start == nil {
			continue
		}

		event := models.CandidateEvent{
			TempID:     models.NewTempID(),
			Name:       name,
			StartDate:  start,
			EndDate:    p.parseDate(firstNonEmpty(stringField(entry, "end_at"), stringField(entry, "endAt"))),
			Website:    lumaWebsiteFromEntry(entry),
			ImageURL:   absoluteImageURL(firstNonEmpty(stringField(entry, "cover_url"), stringField(entry, "coverUrl"), stringField(entry, "image"))),
			Confidence: confidenceStructured,
		}
		events = append(events, event)
	}
	return events
}

// parseJSONLDListing handles JSON-LD listing arrays: a top-level array of
// events or an ItemList container with itemListElement entries.
func (p *LumaParser) parseJSONLDListing(blocks []interface{}) []models.CandidateEvent {
	var events []models.CandidateEvent

	appendEvent := func(obj map[string]interface{}) {
		if stringField(obj, "@type") != "Event" {
			return
		}
		if event, ok := p.eventFromJSONLD(obj, confidenceJSONLDList); ok {
			events = append(events, event)
		}
	}

	for _, block := range blocks {
		switch typed := block.(type) {
		case []interface{}:
			for _, item := range typed {
				if obj, ok := item.(map[string]interface{}); ok {
					appendEvent(obj)
				}
			}
		case map[string]interface{}:
			elements, ok := typed["itemListElement"].([]interface{})
			if !ok {
				continue
			}
			for _, el := range elements {
				obj, ok := el.(map[string]interface{})
				if !ok {
					continue
				}
				// ListItem wrapper or the event itself.
				if item, ok := obj["item"].(map[string]interface{}); ok {
					appendEvent(item)
				} else {
					appendEvent(obj)
				}
			}
		}
	}
	return events
}

// eventFromJSONLD maps one JSON-LD Event object to a candidate. Name and
// start date are required; everything else is best-effort.
func (p *LumaParser) eventFromJSONLD(obj map[string]interface{}, confidence float64) (models.CandidateEvent, bool) {
	name := stringField(obj, "name")
	start := p.parseDate(stringField(obj, "startDate"))
	if name == "" || start == nil {
		return models.CandidateEvent{}, false
	}

	return models.CandidateEvent{
		TempID:      models.NewTempID(),
		Name:        name,
		Description: stringField(obj, "description"),
		Website:     stringField(obj, "url"),
		Price:       priceFromOffers(obj["offers"]),
		StartDate:   start,
		EndDate:     p.parseDate(stringField(obj, "endDate")),
		ImageURL:    absoluteImageURL(imageFromJSONLD(obj["image"])),
		Confidence:  confidence,
	}, true
}

// parseDate resolves a platform date string in the platform timezone.
func (p *LumaParser) parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	return ParseNaiveOrAbsolute(s, p.loc)
}

// priceFromOffers renders an offers sub-structure as display text:
// zero price means "Free", otherwise "<currency> <amount>".
func priceFromOffers(offers interface{}) string {
	obj, ok := offers.(map[string]interface{})
	if !ok {
		if arr, isArr := offers.([]interface{}); isArr && len(arr) > 0 {
			obj, ok = arr[0].(map[string]interface{})
		}
		if !ok {
			return ""
		}
	}

	var amount float64
	switch v := obj["price"].(type) {
	case float64:
		amount = v
	case string:
		if _, err := fmt.Sscanf(v, "%f", &amount); err != nil {
			return ""
		}
	default:
		return ""
	}

	if amount == 0 {
		return "Free"
	}

	currency := stringField(obj, "priceCurrency")
	if currency == "" {
		currency = "USD"
	}
	return fmt.Sprintf("%s %g", currency, amount)
}

// imageFromJSONLD handles the three shapes image fields arrive in:
// a string, an array of strings, or an ImageObject.
func imageFromJSONLD(image interface{}) string {
	switch typed := image.(type) {
	case string:
		return typed
	case []interface{}:
		if len(typed) > 0 {
			if s, ok := typed[0].(string); ok {
				return s
			}
		}
	case map[string]interface{}:
		return stringField(typed, "url")
	}
	return ""
}

// metaImage checks Open Graph and Twitter card meta tags in priority order.
func metaImage(doc *goquery.Document) string {
	selectors := []string{
		`meta[property="og:image"]`,
		`meta[name="twitter:image"]`,
	}
	for _, sel := range selectors {
		if content, ok := doc.Find(sel).First().Attr("content"); ok {
			if img := absoluteImageURL(content); img != "" {
				return img
			}
		}
	}
	return ""
}

// absoluteImageURL accepts only absolute http(s) URLs.
func absoluteImageURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if models.IsValidURL(raw) {
		return raw
	}
	return ""
}

// collectEventEntries recursively walks decoded JSON looking for objects
// that look like platform event entries (name plus a start timestamp).
func collectEventEntries(v interface{}) []map[string]interface{} {
	var entries []map[string]interface{}

	switch typed := v.(type) {
	case map[string]interface{}:
		if stringField(typed, "name") != "" &&
			(stringField(typed, "start_at") != "" || stringField(typed, "startAt") != "") {
			entries = append(entries, typed)
			return entries
		}
		for _, child := range typed {
			entries = append(entries, collectEventEntries(child)...)
		}
	case []interface{}:
		for _, child := range typed {
			entries = append(entries, collectEventEntries(child)...)
		}
	}
	return entries
}

// lumaWebsiteFromEntry derives the per-event URL from an entry's url or
// api_id slug field.
func lumaWebsiteFromEntry(entry map[string]interface{}) string {
	raw := firstNonEmpty(stringField(entry, "url"), stringField(entry, "api_id"), stringField(entry, "slug"))
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return "https://lu.ma/" + strings.TrimPrefix(raw, "/")
}

func stringField(obj map[string]interface{}, key string) string {
	if v, ok := obj[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
