package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"

	"seattle-events-workbench/internal/models"
)

// Content budgets for a single extraction prompt. Main page content is
// trimmed first, then the pricing supplement, then the link list.
const (
	maxMainContentChars    = 20000
	maxPricingContentChars = 6000
	maxPromptLinks         = 40

	// Detail-page enrichment caps: at most this many candidates per batch,
	// fetched with a small concurrency ceiling.
	maxEnrichmentPages     = 8
	enrichmentConcurrency  = 3
	detailPageContentChars = 8000
)

// OpenAIClient handles event extraction using OpenAI
type OpenAIClient struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	loc         *time.Location
}

// ExtractionResult is the parsed output of one extraction call: the page
// classification plus zero or more candidate events.
type ExtractionResult struct {
	PageType string                  `json:"pageType"`
	Events   []models.CandidateEvent `json:"events"`
}

// rawExtractedEvent mirrors the JSON shape the model is instructed to emit.
// Dates arrive as strings and are resolved into instants afterwards.
type rawExtractedEvent struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	StartDate   string   `json:"startDate"`
	EndDate     string   `json:"endDate"`
	Location    string   `json:"location"`
	Price       string   `json:"price"`
	Website     string   `json:"website"`
	ImageURL    string   `json:"imageUrl"`
	EventType   string   `json:"eventType"`
	Region      string   `json:"region"`
	IsFeatured  bool     `json:"isFeatured"`
	Confidence  *float64 `json:"confidence"`
}

// NewOpenAIClient creates a new OpenAI client resolving dates in loc
func NewOpenAIClient(apiKey string, loc *time.Location) *OpenAIClient {
	if apiKey == "" {
		log.Fatal("OpenAI API key is required")
	}

	return &OpenAIClient{
		client:      openai.NewClient(apiKey),
		model:       "gpt-4o-mini",
		temperature: 0.1,
		maxTokens:   4000,
		loc:         loc,
	}
}

// NewOpenAIClientWithConfig creates a new OpenAI client with custom configuration
func NewOpenAIClientWithConfig(apiKey, model string, temperature float32, maxTokens int, loc *time.Location) *OpenAIClient {
	if apiKey == "" {
		log.Fatal("OpenAI API key is required")
	}

	return &OpenAIClient{
		client:      openai.NewClient(apiKey),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		loc:         loc,
	}
}

// ExtractEvents extracts structured events from scraped page content.
// pricingContent and pageLinks are optional supplements. A response the
// model mangles beyond JSON repair is treated as "nothing found" rather
// than an error so a single bad completion never fails the import.
func (o *OpenAIClient) ExtractEvents(ctx context.Context, mainContent, pricingContent, sourceURL string, pageLinks []string) (*ExtractionResult, error) {
	if strings.TrimSpace(mainContent) == "" {
		return nil, fmt.Errorf("content cannot be empty: %w", ErrEmptyPage)
	}

	systemPrompt := o.buildExtractionSystemPrompt()
	userPrompt := o.buildExtractionUserPrompt(mainContent, pricingContent, sourceURL, pageLinks)

	responseContent, err := o.complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}

	cleanedContent := o.cleanJSONResponse(responseContent)

	var payload struct {
		PageType string              `json:"pageType"`
		Events   []rawExtractedEvent `json:"events"`
	}
	if err := json.Unmarshal([]byte(cleanedContent), &payload); err != nil {
		log.Printf("[EXTRACTION] Unparseable model response for %s, treating as no events: %v", sourceURL, err)
		return &ExtractionResult{PageType: models.PageTypeNone, Events: []models.CandidateEvent{}}, nil
	}

	pageType := payload.PageType
	if !models.ValidatePageType(pageType) {
		pageType = models.PageTypeNone
	}

	events := make([]models.CandidateEvent, 0, len(payload.Events))
	for _, raw := range payload.Events {
		if event, ok := o.candidateFromRaw(raw, pageType, sourceURL); ok {
			events = append(events, event)
		}
	}

	log.Printf("[EXTRACTION] %s: pageType=%s events=%d", sourceURL, pageType, len(events))
	return &ExtractionResult{PageType: pageType, Events: events}, nil
}

// ClassifyEvents asks the model to fill in missing eventType, region and
// description fields. Fields the caller already has are never overwritten;
// a failed call returns the input unchanged along with the error.
func (o *OpenAIClient) ClassifyEvents(ctx context.Context, events []models.CandidateEvent) ([]models.CandidateEvent, error) {
	if len(events) == 0 {
		return events, nil
	}

	type classifyInput struct {
		TempID      string `json:"tempId"`
		Name        string `json:"name"`
		Description string `json:"description"`
		Location    string `json:"location"`
	}
	inputs := make([]classifyInput, len(events))
	for i, e := range events {
		inputs[i] = classifyInput{TempID: e.TempID, Name: e.Name, Description: e.Description, Location: e.Location}
	}
	encoded, err := json.Marshal(inputs)
	if err != nil {
		return events, fmt.Errorf("failed to encode classification input: %w", err)
	}

	userPrompt := fmt.Sprintf("Classify each of the following events:\n%s", encoded)
	responseContent, err := o.complete(ctx, o.buildClassificationSystemPrompt(), userPrompt)
	if err != nil {
		return events, fmt.Errorf("openai classification failed: %w", err)
	}

	var payload struct {
		Events []struct {
			TempID      string `json:"tempId"`
			EventType   string `json:"eventType"`
			Region      string `json:"region"`
			Description string `json:"description"`
		} `json:"events"`
	}
	if err := json.Unmarshal([]byte(o.cleanJSONResponse(responseContent)), &payload); err != nil {
		return events, fmt.Errorf("failed to parse classification response: %w", err)
	}

	classified := make(map[string]classification, len(payload.Events))
	for _, e := range payload.Events {
		classified[e.TempID] = classification{eventType: e.EventType, region: e.Region, description: e.Description}
	}

	result := make([]models.CandidateEvent, len(events))
	for i, event := range events {
		result[i] = mergeClassification(event, classified[event.TempID])
	}
	return result, nil
}

type classification struct {
	eventType   string
	region      string
	description string
}

// EnrichEventsFromDetailPages scrapes each candidate's own page and asks
// the model to fill gaps. Only the first maxEnrichmentPages candidates
// with a website are attempted; every per-candidate failure is logged and
// skipped so enrichment never fails the batch.
func (o *OpenAIClient) EnrichEventsFromDetailPages(ctx context.Context, events []models.CandidateEvent, scraper Scraper) []models.CandidateEvent {
	result := make([]models.CandidateEvent, len(events))
	copy(result, events)

	type target struct {
		index int
		url   string
	}
	var targets []target
	for i, event := range result {
		if event.Website == "" || !eventNeedsEnrichment(event) {
			continue
		}
		targets = append(targets, target{index: i, url: event.Website})
		if len(targets) >= maxEnrichmentPages {
			break
		}
	}
	if len(targets) == 0 {
		return result
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, enrichmentConcurrency)

	for _, tgt := range targets {
		wg.Add(1)
		go func(tgt target) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			enriched, err := o.enrichFromDetailPage(ctx, result[tgt.index], scraper)
			if err != nil {
				log.Printf("[ENRICHMENT] Detail page %s skipped: %v", tgt.url, err)
				return
			}

			mu.Lock()
			result[tgt.index] = enriched
			mu.Unlock()
		}(tgt)
	}
	wg.Wait()

	return result
}

// enrichFromDetailPage runs one scrape+extract round trip for a single
// candidate and merges only the fields still missing.
func (o *OpenAIClient) enrichFromDetailPage(ctx context.Context, event models.CandidateEvent, scraper Scraper) (models.CandidateEvent, error) {
	scraped, err := scraper.Scrape(event.Website)
	if err != nil {
		return event, fmt.Errorf("scrape failed: %w", err)
	}

	content := scraped.Markdown
	if len(content) > detailPageContentChars {
		content = content[:detailPageContentChars]
	}

	extraction, err := o.ExtractEvents(ctx, content, "", event.Website, nil)
	if err != nil {
		return event, err
	}
	if len(extraction.Events) == 0 {
		return event, fmt.Errorf("no event found on detail page")
	}

	return mergeEnrichment(event, extraction.Events[0]), nil
}

// complete runs one chat completion and returns the raw message content.
func (o *OpenAIClient) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model:       o.model,
			Temperature: o.temperature,
			MaxTokens:   o.maxTokens,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: systemPrompt,
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: userPrompt,
				},
			},
		},
	)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices from OpenAI")
	}
	return resp.Choices[0].Message.Content, nil
}

// candidateFromRaw converts one raw model event into a candidate. Name is
// required; invalid enum values are blanked rather than rejected, and the
// page URL stands in for a missing website on single-event pages only. On
// a listing page an event without its own URL stays blank so it is never
// deduplicated against the listing itself.
func (o *OpenAIClient) candidateFromRaw(raw rawExtractedEvent, pageType, sourceURL string) (models.CandidateEvent, bool) {
	name := strings.TrimSpace(raw.Name)
	if name == "" {
		return models.CandidateEvent{}, false
	}

	eventType := raw.EventType
	if eventType != "" && !models.ValidateEventType(eventType) {
		eventType = ""
	}
	region := raw.Region
	if region != "" && !models.ValidateRegion(region) {
		region = ""
	}

	website := strings.TrimSpace(raw.Website)
	if website == "" && pageType != models.PageTypeListing {
		website = sourceURL
	}

	var confidence float64
	if raw.Confidence != nil {
		confidence = *raw.Confidence
	}

	return models.CandidateEvent{
		TempID:      models.NewTempID(),
		Name:        name,
		Description: strings.TrimSpace(raw.Description),
		StartDate:   ParseNaiveOrAbsolute(StripTimezoneSuffix(raw.StartDate), o.loc),
		EndDate:     ParseNaiveOrAbsolute(StripTimezoneSuffix(raw.EndDate), o.loc),
		Location:    strings.TrimSpace(raw.Location),
		Price:       strings.TrimSpace(raw.Price),
		Website:     website,
		ImageURL:    strings.TrimSpace(raw.ImageURL),
		EventType:   eventType,
		Region:      region,
		IsFeatured:  raw.IsFeatured,
		Confidence:  models.ClampConfidence(confidence, raw.Confidence != nil),
	}, true
}

// buildExtractionSystemPrompt creates the system prompt for event extraction
func (o *OpenAIClient) buildExtractionSystemPrompt() string {
	today := time.Now().In(o.loc).Format("2006-01-02")

	return fmt.Sprintf(`You are an expert at extracting structured data about community events from web content.

Today's date is %s. Use it to resolve relative or year-less dates; assume an event is upcoming unless the content says otherwise.

IMPORTANT GUIDELINES:
1. First classify the page: "single" (one event's own page), "listing" (a page listing multiple events), or "none" (no event content)
2. Extract every distinct event you can identify
3. Dates and times must be written as local wall-clock time in the format YYYY-MM-DDTHH:MM:SS with NO timezone suffix and NO "Z"
4. Don't make up details not present in the content; leave unknown fields empty
5. On a listing page, only set an event's website if the page links to that event's own page

EVENT TYPES (use these exact values or leave empty):
- "conference": Multi-track or multi-day professional gatherings
- "meetup": Recurring community get-togethers
- "workshop": Hands-on instruction sessions
- "hackathon": Competitive building events
- "networking": Mixers, happy hours, social professional events
- "festival": Public festivals and fairs
- "other": Anything else

REGIONS (use these exact values or leave empty):
- "seattle": Seattle proper
- "eastside": Bellevue, Redmond, Kirkland, Issaquah, Sammamish
- "south-sound": Tacoma, Kent, Federal Way, Renton and south
- "north-sound": Everett, Lynnwood, Edmonds and north
- "online": Virtual or online-only events

OUTPUT FORMAT:
Return a JSON object with this exact structure and nothing else:
{
  "pageType": "single|listing|none",
  "events": [
    {
      "name": "Event Name",
      "description": "Short description",
      "startDate": "YYYY-MM-DDTHH:MM:SS",
      "endDate": "YYYY-MM-DDTHH:MM:SS",
      "location": "Venue name and address",
      "price": "Free or display price like USD 25",
      "website": "event's own page URL",
      "imageUrl": "absolute image URL",
      "eventType": "value from the list above",
      "region": "value from the list above",
      "isFeatured": false,
      "confidence": 0.8
    }
  ]
}

Set confidence between 0 and 1 based on how complete and unambiguous the event information is. Focus on accuracy over quantity.`, today)
}

// buildExtractionUserPrompt assembles page content, the optional pricing
// supplement and a trimmed link list into one user message.
func (o *OpenAIClient) buildExtractionUserPrompt(mainContent, pricingContent, sourceURL string, pageLinks []string) string {
	if len(mainContent) > maxMainContentChars {
		mainContent = mainContent[:maxMainContentChars]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Source URL: %s\n\nPage content:\n%s\n", sourceURL, mainContent)

	if pricingContent != "" {
		if len(pricingContent) > maxPricingContentChars {
			pricingContent = pricingContent[:maxPricingContentChars]
		}
		fmt.Fprintf(&b, "\nAdditional pricing page content:\n%s\n", pricingContent)
	}

	if len(pageLinks) > 0 {
		if len(pageLinks) > maxPromptLinks {
			pageLinks = pageLinks[:maxPromptLinks]
		}
		fmt.Fprintf(&b, "\nLinks found on the page:\n%s\n", strings.Join(pageLinks, "\n"))
	}

	b.WriteString("\nExtract the events as structured JSON following the schema in the system prompt.")
	return b.String()
}

// buildClassificationSystemPrompt creates the system prompt for type/region classification
func (o *OpenAIClient) buildClassificationSystemPrompt() string {
	return `You classify community events by type and region.

EVENT TYPES: conference, meetup, workshop, hackathon, networking, festival, other
REGIONS: seattle, eastside, south-sound, north-sound, online

For each input event return its tempId with your best eventType and region,
plus a one-sentence description when the input has none. Leave a field empty
if the input gives you nothing to go on.

Return a JSON object with this exact structure and nothing else:
{"events": [{"tempId": "tmp_xxx", "eventType": "meetup", "region": "seattle", "description": "..."}]}`
}

// mergeClassification fills eventType, region and description only where
// missing, and enum fields only with valid values.
func mergeClassification(event models.CandidateEvent, c classification) models.CandidateEvent {
	if event.EventType == "" && models.ValidateEventType(c.eventType) {
		event.EventType = c.eventType
	}
	if event.Region == "" && models.ValidateRegion(c.region) {
		event.Region = c.region
	}
	if event.Description == "" {
		event.Description = strings.TrimSpace(c.description)
	}
	return event
}

// mergeEnrichment copies detail-page fields into the original candidate,
// never overwriting anything the original already has. Identity fields
// (tempId, name, website) always stay as they were.
func mergeEnrichment(original, detail models.CandidateEvent) models.CandidateEvent {
	if original.Description == "" {
		original.Description = detail.Description
	}
	if original.StartDate == nil {
		original.StartDate = detail.StartDate
	}
	if original.EndDate == nil {
		original.EndDate = detail.EndDate
	}
	if original.Location == "" {
		original.Location = detail.Location
	}
	if original.Price == "" {
		original.Price = detail.Price
	}
	if original.ImageURL == "" {
		original.ImageURL = detail.ImageURL
	}
	if original.EventType == "" {
		original.EventType = detail.EventType
	}
	if original.Region == "" {
		original.Region = detail.Region
	}
	return original
}

// eventNeedsEnrichment reports whether a candidate's own page is worth a
// scrape. Only candidates with no resolvable start date qualify; the merge
// still fills any other gaps the detail page happens to cover.
func eventNeedsEnrichment(event models.CandidateEvent) bool {
	return event.StartDate == nil
}

// cleanJSONResponse removes markdown code blocks and other formatting from OpenAI response
func (o *OpenAIClient) cleanJSONResponse(response string) string {
	cleaned := strings.TrimSpace(response)

	if strings.HasPrefix(cleaned, "```json") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
	}
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```")
	}
	if strings.HasSuffix(cleaned, "```") {
		cleaned = strings.TrimSuffix(cleaned, "```")
	}

	return strings.TrimSpace(cleaned)
}
