package models

import (
	"fmt"
	"strings"
	"time"
)

// Event types form a closed set; an empty string means the extractor could
// not classify the event.
const (
	EventTypeConference = "conference"
	EventTypeMeetup     = "meetup"
	EventTypeWorkshop   = "workshop"
	EventTypeHackathon  = "hackathon"
	EventTypeNetworking = "networking"
	EventTypeFestival   = "festival"
	EventTypeOther      = "other"
)

// Regions form a closed set; an empty string means unknown.
const (
	RegionSeattle    = "seattle"
	RegionEastside   = "eastside"
	RegionSouthSound = "south-sound"
	RegionNorthSound = "north-sound"
	RegionOnline     = "online"
)

// PageType classifies what kind of page an extraction came from.
const (
	PageTypeSingle  = "single"
	PageTypeListing = "listing"
	PageTypeNone    = "none"
)

// CandidateEvent is an extracted event proposal that has not been persisted.
// StartDate and EndDate are absolute instants by the time a candidate leaves
// the import pipeline; naive strings never escape the extraction layer.
type CandidateEvent struct {
	TempID      string     `json:"tempId"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Website     string     `json:"website"`
	Price       string     `json:"price"`
	StartDate   *time.Time `json:"startDate"`
	EndDate     *time.Time `json:"endDate"`
	Location    string     `json:"location"`
	EventType   string     `json:"eventType"`
	Region      string     `json:"region"`
	IsFeatured  bool       `json:"isFeatured"`
	Confidence  float64    `json:"confidence"`
	ImageURL    string     `json:"imageUrl"`
}

// Validate checks the closed enum fields and confidence range.
func (c *CandidateEvent) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if c.EventType != "" && !ValidateEventType(c.EventType) {
		return fmt.Errorf("invalid event type: %s", c.EventType)
	}
	if c.Region != "" && !ValidateRegion(c.Region) {
		return fmt.Errorf("invalid region: %s", c.Region)
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("confidence out of range: %f", c.Confidence)
	}
	return nil
}

// ImportJobStatus tracks the lifecycle of one submitted URL.
type ImportJobStatus string

const (
	JobStatusQueued     ImportJobStatus = "queued"
	JobStatusProcessing ImportJobStatus = "processing"
	JobStatusDone       ImportJobStatus = "done"
	JobStatusError      ImportJobStatus = "error"
)

// ImportJob represents one submitted source URL and its processing state.
// Status transitions are driven solely by the import orchestrator.
type ImportJob struct {
	ID         string          `json:"id"`
	URL        string          `json:"url"`
	Status     ImportJobStatus `json:"status"`
	Error      string          `json:"error,omitempty"`
	PageType   string          `json:"pageType,omitempty"`
	EventCount int             `json:"eventCount"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// IsTerminal reports whether the job has reached a final state.
func (j *ImportJob) IsTerminal() bool {
	return j.Status == JobStatusDone || j.Status == JobStatusError
}

// WorkbenchStatus tracks a candidate through the review session.
type WorkbenchStatus string

const (
	RecordStatusPending   WorkbenchStatus = "pending"
	RecordStatusImporting WorkbenchStatus = "importing"
	RecordStatusImported  WorkbenchStatus = "imported"
	RecordStatusRejected  WorkbenchStatus = "rejected"
	RecordStatusError     WorkbenchStatus = "error"
)

// DuplicateKind classifies how a candidate collides with a stored event.
type DuplicateKind string

const (
	// DuplicateExact means URL and calendar day both match (or the
	// candidate's date could not be resolved).
	DuplicateExact DuplicateKind = "exact"
	// DuplicateCycle means the URL matches but the calendar day differs,
	// suggesting a new instance of a recurring event. This is a review
	// hint, not a guaranteed identity signal.
	DuplicateCycle DuplicateKind = "cycle"
	DuplicateNone  DuplicateKind = ""
)

// WorkbenchRecord is a CandidateEvent plus review and import state, held in
// the in-session batch awaiting accept/reject decisions.
type WorkbenchRecord struct {
	Event CandidateEvent `json:"event"`
	// Edits, when present, replaces Event for all downstream operations.
	Edits                *CandidateEvent     `json:"edits,omitempty"`
	SourceURL            string              `json:"sourceUrl"`
	SourceJobID          string              `json:"sourceJobId"`
	Status               WorkbenchStatus     `json:"status"`
	Selected             bool                `json:"selected"`
	ImportError          string              `json:"importError,omitempty"`
	IsDuplicate          bool                `json:"isDuplicate"`
	DuplicateKind        DuplicateKind       `json:"duplicateKind,omitempty"`
	DuplicateInfo        *StoredEventSummary `json:"duplicateInfo,omitempty"`
	IsPreviouslyRejected bool                `json:"isPreviouslyRejected"`
	PreviousRejection    *RejectedImport     `json:"previousRejection,omitempty"`
	DuplicateChecked     bool                `json:"-"`
}

// Effective returns the event that downstream operations should act on:
// the human-edited overlay when present, otherwise the extracted base.
func (r *WorkbenchRecord) Effective() CandidateEvent {
	if r.Edits != nil {
		return *r.Edits
	}
	return r.Event
}

// StoredEventSummary is the partial view of a persisted event returned by
// duplicate lookups, sufficient to render a warning but never the full record.
type StoredEventSummary struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Website   string     `json:"website"`
	StartDate *time.Time `json:"startDate,omitempty"`
}

// StoredEvent is a persisted calendar event.
type StoredEvent struct {
	PK string `json:"pk" dynamodbav:"PK"` // EVENT#{event_id}
	SK string `json:"sk" dynamodbav:"SK"` // METADATA

	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Description       string     `json:"description"`
	Website           string     `json:"website"`
	NormalizedWebsite string     `json:"normalizedWebsite"`
	Price             string     `json:"price"`
	StartDate         *time.Time `json:"startDate"`
	EndDate           *time.Time `json:"endDate,omitempty"`
	Location          string     `json:"location,omitempty"`
	EventType         string     `json:"eventType,omitempty"`
	Region            string     `json:"region,omitempty"`
	IsFeatured        bool       `json:"isFeatured"`
	Confidence        float64    `json:"confidence"`
	ImageURL          string     `json:"imageUrl,omitempty"`
	SourceURL         string     `json:"sourceUrl,omitempty"`

	// GSI keys
	WebsiteKey string `json:"websiteKey,omitempty"` // WEBSITE#{normalized_website}
	DateKey    string `json:"dateKey,omitempty"`    // DATE#{yyyy-mm-dd}

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Summary reduces a stored event to the shape duplicate lookups return.
func (e *StoredEvent) Summary() StoredEventSummary {
	return StoredEventSummary{
		ID:        e.ID,
		Name:      e.Name,
		Website:   e.Website,
		StartDate: e.StartDate,
	}
}

// RejectedImport records a previously-rejected import, keyed by normalized
// URL. Used to warn reviewers without blocking re-import.
type RejectedImport struct {
	PK string `json:"pk" dynamodbav:"PK"` // REJECTED#{normalized_url}
	SK string `json:"sk" dynamodbav:"SK"` // METADATA

	NormalizedURL string    `json:"normalizedUrl"`
	EventName     string    `json:"eventName,omitempty"`
	RejectedAt    time.Time `json:"rejectedAt"`
}

// DynamoDB key helpers.

func CreateEventPK(eventID string) string {
	return fmt.Sprintf("EVENT#%s", eventID)
}

func CreateRejectedImportPK(normalizedURL string) string {
	return fmt.Sprintf("REJECTED#%s", normalizedURL)
}

func GenerateWebsiteKey(normalizedWebsite string) string {
	if normalizedWebsite == "" {
		return ""
	}
	return fmt.Sprintf("WEBSITE#%s", normalizedWebsite)
}

func GenerateDateKey(t *time.Time) string {
	if t == nil {
		return ""
	}
	return fmt.Sprintf("DATE#%s", t.UTC().Format("2006-01-02"))
}

// SortKeyMetadata is the single-item sort key used by both tables.
const SortKeyMetadata = "METADATA"

// ValidateEventType checks the event type against the closed set.
func ValidateEventType(eventType string) bool {
	validTypes := []string{
		EventTypeConference,
		EventTypeMeetup,
		EventTypeWorkshop,
		EventTypeHackathon,
		EventTypeNetworking,
		EventTypeFestival,
		EventTypeOther,
	}

	for _, validType := range validTypes {
		if eventType == validType {
			return true
		}
	}
	return false
}

// ValidateRegion checks the region against the closed set.
func ValidateRegion(region string) bool {
	validRegions := []string{
		RegionSeattle,
		RegionEastside,
		RegionSouthSound,
		RegionNorthSound,
		RegionOnline,
	}

	for _, validRegion := range validRegions {
		if region == validRegion {
			return true
		}
	}
	return false
}

// ValidatePageType checks the page type against the closed set.
func ValidatePageType(pageType string) bool {
	switch pageType {
	case PageTypeSingle, PageTypeListing, PageTypeNone:
		return true
	}
	return false
}
