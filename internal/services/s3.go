package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"seattle-events-workbench/internal/models"
)

// S3Client publishes event snapshots for frontend consumption
type S3Client struct {
	client     *s3.Client
	bucketName string
	region     string
}

// SnapshotMetadata describes one published snapshot
type SnapshotMetadata struct {
	GeneratedAt time.Time `json:"generatedAt"`
	TotalEvents int       `json:"totalEvents"`
	Version     string    `json:"version"`
}

// EventsSnapshot is the JSON document written to the bucket
type EventsSnapshot struct {
	Metadata SnapshotMetadata     `json:"metadata"`
	Events   []models.StoredEvent `json:"events"`
}

// S3UploadResult represents the result of an S3 upload operation
type S3UploadResult struct {
	Key        string    `json:"key"`
	PublicURL  string    `json:"publicUrl"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// NewS3Client creates a new S3 client with AWS SDK v2
func NewS3Client(ctx context.Context, bucketName string) (*S3Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &S3Client{
		client:     s3.NewFromConfig(cfg),
		bucketName: bucketName,
		region:     cfg.Region,
	}, nil
}

// UploadLatestEvents publishes events as the "latest" snapshot
func (s *S3Client) UploadLatestEvents(ctx context.Context, events []models.StoredEvent) (*S3UploadResult, error) {
	return s.uploadSnapshot(ctx, events, "events/latest.json")
}

// UploadEventsSnapshot publishes events under a timestamped key
func (s *S3Client) UploadEventsSnapshot(ctx context.Context, events []models.StoredEvent) (*S3UploadResult, error) {
	timestamp := time.Now().UTC().Format("2006-01-02T15-04-05Z")
	return s.uploadSnapshot(ctx, events, fmt.Sprintf("events/%s.json", timestamp))
}

func (s *S3Client) uploadSnapshot(ctx context.Context, events []models.StoredEvent, key string) (*S3UploadResult, error) {
	snapshot := EventsSnapshot{
		Metadata: SnapshotMetadata{
			GeneratedAt: time.Now(),
			TotalEvents: len(events),
			Version:     "1.0",
		},
		Events: events,
	}

	jsonData, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal events snapshot: %w", err)
	}

	return s.uploadJSON(ctx, jsonData, key)
}

// uploadJSON is a helper method to upload JSON data to S3
func (s *S3Client) uploadJSON(ctx context.Context, data []byte, key string) (*S3UploadResult, error) {
	key = strings.TrimPrefix(key, "/")

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		// Short cache so the frontend picks snapshots up quickly
		CacheControl: aws.String("public, max-age=300"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}

	return &S3UploadResult{
		Key:        key,
		PublicURL:  s.GetPublicURL(key),
		Size:       int64(len(data)),
		UploadedAt: time.Now(),
	}, nil
}

// GetPublicURL generates the public URL for an S3 object
func (s *S3Client) GetPublicURL(key string) string {
	key = strings.TrimPrefix(key, "/")
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucketName, s.region, key)
}

// GetBucketName returns the configured bucket name
func (s *S3Client) GetBucketName() string {
	return s.bucketName
}
