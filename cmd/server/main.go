package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"seattle-events-workbench/internal/api"
	"seattle-events-workbench/internal/cfg"
	"seattle-events-workbench/internal/importer"
	"seattle-events-workbench/internal/services"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	appCfg, err := cfg.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	log.Println("Starting events workbench server...")

	loc := services.LoadReferenceTimezone(appCfg.Timezone)

	ctx := context.Background()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatalf("Failed to load AWS config: %v", err)
	}

	store := services.NewDynamoDBService(
		dynamodb.NewFromConfig(awsCfg),
		appCfg.EventsTable,
		appCfg.RejectedImportsTable,
	)

	scraper, err := services.NewFireCrawlClientWithTimeout(appCfg.FirecrawlAPIKey, 60*time.Second)
	if err != nil {
		log.Fatalf("Failed to initialize Firecrawl client: %v", err)
	}

	fetcher := services.NewHTTPFetcher(15 * time.Second)
	structured := services.NewLumaParser(fetcher, loc)
	extractor := services.NewOpenAIClientWithConfig(appCfg.OpenAIAPIKey, appCfg.OpenAIModel, 0.1, 4000, loc)
	enricher := services.NewEnricher(scraper, fetcher)
	resolver := services.NewResolver(store, store, loc)

	pipeline := importer.NewPipeline(structured, scraper, extractor, enricher)

	orchestrator := importer.NewOrchestrator(pipeline, store, resolver, loc)
	orchestrator.SetWorkerLimit(appCfg.WorkerLimit)
	if appCfg.SnapshotBucket != "" {
		s3Client, err := services.NewS3Client(ctx, appCfg.SnapshotBucket)
		if err != nil {
			log.Fatalf("Failed to initialize S3 client: %v", err)
		}
		orchestrator.SetSnapshotPublisher(services.NewSnapshotService(store, s3Client))
		log.Printf("Snapshot publishing enabled for bucket %s", s3Client.GetBucketName())
	}
	orchestrator.Start()
	defer orchestrator.Stop()

	handler := api.NewHandler(orchestrator, resolver, store)
	server := api.NewServer(handler)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		log.Printf("Starting HTTP server on port %s", appCfg.Port)
		log.Printf("  Submit import: http://localhost:%s/api/import/submit", appCfg.Port)
		log.Printf("  Workbench:     http://localhost:%s/api/workbench", appCfg.Port)
		log.Printf("  Health check:  http://localhost:%s/api/health", appCfg.Port)
		serverErrChan <- httpServer.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	case sig := <-quit:
		log.Printf("Received signal %v, shutting down...", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
