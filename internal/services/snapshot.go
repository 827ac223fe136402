package services

import (
	"context"
	"fmt"
	"log"

	"seattle-events-workbench/internal/models"
)

// EventLister provides the stored events for snapshot publication.
type EventLister interface {
	ListEvents(ctx context.Context, limit int32) ([]models.StoredEvent, error)
}

// SnapshotUploader writes event snapshots to object storage.
type SnapshotUploader interface {
	UploadLatestEvents(ctx context.Context, events []models.StoredEvent) (*S3UploadResult, error)
	UploadEventsSnapshot(ctx context.Context, events []models.StoredEvent) (*S3UploadResult, error)
}

// SnapshotService publishes the full stored-event set as a public JSON
// snapshot after each successful import.
type SnapshotService struct {
	events  EventLister
	uploads SnapshotUploader
}

func NewSnapshotService(events EventLister, uploads SnapshotUploader) *SnapshotService {
	return &SnapshotService{events: events, uploads: uploads}
}

// PublishLatest uploads the current stored events as the latest snapshot
// plus a timestamped archive copy. The archive is best-effort; only the
// latest upload can fail the publish.
func (s *SnapshotService) PublishLatest(ctx context.Context) error {
	events, err := s.events.ListEvents(ctx, snapshotEventLimit)
	if err != nil {
		return fmt.Errorf("failed to list events for snapshot: %w", err)
	}

	result, err := s.uploads.UploadLatestEvents(ctx, events)
	if err != nil {
		return fmt.Errorf("failed to upload snapshot: %w", err)
	}

	if _, err := s.uploads.UploadEventsSnapshot(ctx, events); err != nil {
		log.Printf("[SNAPSHOT] Archive copy failed: %v", err)
	}

	log.Printf("[SNAPSHOT] Published %d events to %s", len(events), result.PublicURL)
	return nil
}

const snapshotEventLimit = 1000
