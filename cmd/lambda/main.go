package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"seattle-events-workbench/internal/importer"
	"seattle-events-workbench/internal/models"
	"seattle-events-workbench/internal/services"
)

// ExtractRequest is the API Gateway request body
type ExtractRequest struct {
	URL string `json:"url"`
}

// ExtractResponse is the function response body
type ExtractResponse struct {
	Success        bool                    `json:"success"`
	SourceURL      string                  `json:"sourceUrl"`
	PageType       string                  `json:"pageType,omitempty"`
	Kind           string                  `json:"kind,omitempty"`
	Events         []models.CandidateEvent `json:"events"`
	ProcessingTime int64                   `json:"processing_time_ms"`
	Error          string                  `json:"error,omitempty"`
}

var pipeline *importer.Pipeline

func init() {
	loc := services.LoadReferenceTimezone(os.Getenv("EVENTS_TIMEZONE"))

	scraper, err := services.NewFireCrawlClient(os.Getenv("FIRECRAWL_API_KEY"))
	if err != nil {
		log.Fatalf("Failed to initialize Firecrawl client: %v", err)
	}

	fetcher := services.NewHTTPFetcher(15 * time.Second)
	structured := services.NewLumaParser(fetcher, loc)
	extractor := services.NewOpenAIClient(os.Getenv("OPENAI_API_KEY"), loc)
	enricher := services.NewEnricher(scraper, fetcher)

	pipeline = importer.NewPipeline(structured, scraper, extractor, enricher)
}

// handleRequest extracts candidate events from one URL. The function is
// stateless: no workbench session, no duplicate checks, no storage.
func handleRequest(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	startTime := time.Now()

	var req ExtractRequest
	if err := json.Unmarshal([]byte(request.Body), &req); err != nil || req.URL == "" {
		return respond(http.StatusBadRequest, ExtractResponse{
			Success: false,
			Error:   "request body must be {\"url\": \"...\"}",
		})
	}

	log.Printf("[LAMBDA] Extracting events from %s", req.URL)

	outcome, err := pipeline.Run(ctx, req.URL)
	if err != nil {
		return respond(extractErrorStatus(err), ExtractResponse{
			Success:        false,
			SourceURL:      req.URL,
			Events:         []models.CandidateEvent{},
			ProcessingTime: time.Since(startTime).Milliseconds(),
			Error:          err.Error(),
		})
	}

	log.Printf("[LAMBDA] Extracted %d events from %s (%s)", len(outcome.Events), req.URL, outcome.PageType)

	return respond(http.StatusOK, ExtractResponse{
		Success:        true,
		SourceURL:      req.URL,
		PageType:       outcome.PageType,
		Kind:           string(outcome.Kind),
		Events:         outcome.Events,
		ProcessingTime: time.Since(startTime).Milliseconds(),
	})
}

func extractErrorStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrEmptyPage):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func respond(status int, body ExtractResponse) (events.APIGatewayProxyResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError}, fmt.Errorf("failed to marshal response: %w", err)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":                "application/json",
			"Access-Control-Allow-Origin": "*",
		},
		Body: string(payload),
	}, nil
}

func main() {
	lambda.Start(handleRequest)
}
