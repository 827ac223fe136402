package services

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"seattle-events-workbench/internal/models"
)

// DynamoDBService provides CRUD operations for the events and rejected
// imports tables
type DynamoDBService struct {
	client               *dynamodb.Client
	eventsTable          string
	rejectedImportsTable string
}

// NewDynamoDBService creates a new DynamoDB service instance
func NewDynamoDBService(client *dynamodb.Client, eventsTable, rejectedImportsTable string) *DynamoDBService {
	return &DynamoDBService{
		client:               client,
		eventsTable:          eventsTable,
		rejectedImportsTable: rejectedImportsTable,
	}
}

// Events Table Operations

// CreateEvent stores an event. Unless force is set, a stored event already
// holding the same normalized website URL makes the call fail with a
// DuplicateError carrying the existing event's summary.
func (s *DynamoDBService) CreateEvent(ctx context.Context, event *models.StoredEvent, force bool) error {
	if !force && event.NormalizedWebsite != "" {
		existing, err := s.FindEventByNormalizedURL(ctx, event.NormalizedWebsite)
		if err != nil {
			return err
		}
		if existing != nil && existing.ID != event.ID {
			return &DuplicateError{Existing: *existing}
		}
	}

	now := time.Now()
	event.CreatedAt = now
	event.UpdatedAt = now
	s.populateEventKeys(event)

	item, err := attributevalue.MarshalMap(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.eventsTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}

	return nil
}

// GetEvent retrieves an event by ID
func (s *DynamoDBService) GetEvent(ctx context.Context, eventID string) (*models.StoredEvent, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.eventsTable),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: models.CreateEventPK(eventID)},
			"SK": &types.AttributeValueMemberS{Value: models.SortKeyMetadata},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	if result.Item == nil {
		return nil, fmt.Errorf("event %s: %w", eventID, ErrNotFound)
	}

	var event models.StoredEvent
	if err := attributevalue.UnmarshalMap(result.Item, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	return &event, nil
}

// UpdateEvent updates an existing event
func (s *DynamoDBService) UpdateEvent(ctx context.Context, event *models.StoredEvent) error {
	event.UpdatedAt = time.Now()
	s.populateEventKeys(event)

	item, err := attributevalue.MarshalMap(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.eventsTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}

	return nil
}

// DeleteEvent removes an event
func (s *DynamoDBService) DeleteEvent(ctx context.Context, eventID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.eventsTable),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: models.CreateEventPK(eventID)},
			"SK": &types.AttributeValueMemberS{Value: models.SortKeyMetadata},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}

	return nil
}

// FindEventByNormalizedURL looks up a stored event by its normalized
// website URL using the website GSI. Returns nil when nothing matches.
func (s *DynamoDBService) FindEventByNormalizedURL(ctx context.Context, normalizedURL string) (*models.StoredEventSummary, error) {
	if normalizedURL == "" {
		return nil, nil
	}

	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.eventsTable),
		IndexName:              aws.String("website-index"),
		KeyConditionExpression: aws.String("WebsiteKey = :websiteKey"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":websiteKey": &types.AttributeValueMemberS{Value: models.GenerateWebsiteKey(normalizedURL)},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query events by website: %w", err)
	}

	if len(result.Items) == 0 {
		return nil, nil
	}

	var event models.StoredEvent
	if err := attributevalue.UnmarshalMap(result.Items[0], &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	summary := event.Summary()
	return &summary, nil
}

// ListEventsByDate queries events for a single calendar day using the
// date GSI
func (s *DynamoDBService) ListEventsByDate(ctx context.Context, day time.Time, limit int32) ([]models.StoredEvent, error) {
	dateKey := models.GenerateDateKey(&day)

	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.eventsTable),
		IndexName:              aws.String("date-index"),
		KeyConditionExpression: aws.String("DateKey = :dateKey"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":dateKey": &types.AttributeValueMemberS{Value: dateKey},
		},
		Limit: aws.Int32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query events by date: %w", err)
	}

	var events []models.StoredEvent
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &events); err != nil {
		return nil, fmt.Errorf("failed to unmarshal events: %w", err)
	}

	return events, nil
}

// ListEvents scans the events table up to limit items. Used by the admin
// listing endpoint; the table stays small enough that a scan is fine.
func (s *DynamoDBService) ListEvents(ctx context.Context, limit int32) ([]models.StoredEvent, error) {
	result, err := s.client.Scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String(s.eventsTable),
		Limit:     aws.Int32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan events: %w", err)
	}

	var events []models.StoredEvent
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &events); err != nil {
		return nil, fmt.Errorf("failed to unmarshal events: %w", err)
	}

	return events, nil
}

// populateEventKeys fills the table and GSI keys from the event's fields
func (s *DynamoDBService) populateEventKeys(event *models.StoredEvent) {
	event.PK = models.CreateEventPK(event.ID)
	event.SK = models.SortKeyMetadata
	event.WebsiteKey = models.GenerateWebsiteKey(event.NormalizedWebsite)
	event.DateKey = models.GenerateDateKey(event.StartDate)
}

// Rejected Imports Table Operations

// CreateRejectedImport records a rejected candidate URL so future imports
// can flag it
func (s *DynamoDBService) CreateRejectedImport(ctx context.Context, rejected *models.RejectedImport) error {
	rejected.PK = models.CreateRejectedImportPK(rejected.NormalizedURL)
	rejected.SK = models.SortKeyMetadata
	rejected.RejectedAt = time.Now()

	item, err := attributevalue.MarshalMap(rejected)
	if err != nil {
		return fmt.Errorf("failed to marshal rejected import: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.rejectedImportsTable),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to create rejected import: %w", err)
	}

	return nil
}

// DeleteRejectedImport removes a rejection so the URL imports cleanly again
func (s *DynamoDBService) DeleteRejectedImport(ctx context.Context, normalizedURL string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.rejectedImportsTable),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: models.CreateRejectedImportPK(normalizedURL)},
			"SK": &types.AttributeValueMemberS{Value: models.SortKeyMetadata},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete rejected import: %w", err)
	}

	return nil
}

// FindRejectedImports returns the rejection records for any of the given
// normalized URLs that were rejected before, keyed by normalized URL.
// BatchGetItem handles up to 100 keys; candidate batches stay far below
// that.
func (s *DynamoDBService) FindRejectedImports(ctx context.Context, normalizedURLs []string) (map[string]models.RejectedImport, error) {
	rejected := make(map[string]models.RejectedImport)
	if len(normalizedURLs) == 0 {
		return rejected, nil
	}

	keys := make([]map[string]types.AttributeValue, 0, len(normalizedURLs))
	seen := make(map[string]bool, len(normalizedURLs))
	for _, u := range normalizedURLs {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		keys = append(keys, map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: models.CreateRejectedImportPK(u)},
			"SK": &types.AttributeValueMemberS{Value: models.SortKeyMetadata},
		})
	}
	if len(keys) == 0 {
		return rejected, nil
	}

	result, err := s.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
		RequestItems: map[string]types.KeysAndAttributes{
			s.rejectedImportsTable: {Keys: keys},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to batch get rejected imports: %w", err)
	}

	for _, item := range result.Responses[s.rejectedImportsTable] {
		var r models.RejectedImport
		if err := attributevalue.UnmarshalMap(item, &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal rejected import: %w", err)
		}
		rejected[r.NormalizedURL] = r
	}

	return rejected, nil
}
