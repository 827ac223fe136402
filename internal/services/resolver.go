package services

import (
	"context"
	"fmt"
	"time"

	"seattle-events-workbench/internal/models"
)

// EventLookup is the slice of the event store the resolver needs.
type EventLookup interface {
	FindEventByNormalizedURL(ctx context.Context, normalizedURL string) (*models.StoredEventSummary, error)
}

// RejectionStore persists and queries rejected import URLs.
type RejectionStore interface {
	CreateRejectedImport(ctx context.Context, rejected *models.RejectedImport) error
	DeleteRejectedImport(ctx context.Context, normalizedURL string) error
	FindRejectedImports(ctx context.Context, normalizedURLs []string) (map[string]models.RejectedImport, error)
}

// DuplicateCheck is the resolver's verdict for one candidate URL.
type DuplicateCheck struct {
	IsDuplicate bool                       `json:"isDuplicate"`
	Kind        models.DuplicateKind       `json:"kind,omitempty"`
	Existing    *models.StoredEventSummary `json:"existing,omitempty"`
}

// Resolver answers duplicate and prior-rejection questions about candidate
// events by checking every normalized variant of their URLs against the
// store.
type Resolver struct {
	events     EventLookup
	rejections RejectionStore
	loc        *time.Location
}

// NewResolver creates a resolver classifying calendar days in loc.
func NewResolver(events EventLookup, rejections RejectionStore, loc *time.Location) *Resolver {
	return &Resolver{events: events, rejections: rejections, loc: loc}
}

// FindDuplicate returns the stored event sharing any normalized variant of
// website, or nil. A blank or unparseable URL never matches anything, and
// excludeID keeps an already-imported record from colliding with itself.
func (r *Resolver) FindDuplicate(ctx context.Context, website, excludeID string) (*models.StoredEventSummary, error) {
	for _, candidate := range NormalizeURLCandidates(website) {
		existing, err := r.events.FindEventByNormalizedURL(ctx, candidate)
		if err != nil {
			return nil, fmt.Errorf("duplicate lookup for %s: %w", website, err)
		}
		if existing != nil && existing.ID != excludeID {
			return existing, nil
		}
	}
	return nil, nil
}

// CheckDuplicate resolves one candidate URL and start date into a verdict.
func (r *Resolver) CheckDuplicate(ctx context.Context, website string, startDate *time.Time) (DuplicateCheck, error) {
	existing, err := r.FindDuplicate(ctx, website, "")
	if err != nil {
		return DuplicateCheck{}, err
	}
	if existing == nil {
		return DuplicateCheck{}, nil
	}
	return DuplicateCheck{
		IsDuplicate: true,
		Kind:        r.ClassifyDuplicate(existing, startDate),
		Existing:    existing,
	}, nil
}

// ClassifyDuplicate decides exact versus cycle for a URL collision. Same
// calendar day in the reference timezone means the same event instance;
// a different day suggests a recurring event's next cycle. When either
// date is unresolvable the safe answer is exact.
func (r *Resolver) ClassifyDuplicate(existing *models.StoredEventSummary, candidateStart *time.Time) models.DuplicateKind {
	if existing == nil {
		return models.DuplicateNone
	}
	if candidateStart == nil || existing.StartDate == nil {
		return models.DuplicateExact
	}
	if SameCalendarDay(*candidateStart, *existing.StartDate, r.loc) {
		return models.DuplicateExact
	}
	return models.DuplicateCycle
}

// FindRejectedURLs returns prior rejection records for the given raw URLs,
// keyed by the raw URL as passed in.
func (r *Resolver) FindRejectedURLs(ctx context.Context, websites []string) (map[string]models.RejectedImport, error) {
	var normalized []string
	byNormalized := make(map[string][]string)
	for _, website := range websites {
		for _, candidate := range NormalizeURLCandidates(website) {
			normalized = append(normalized, candidate)
			byNormalized[candidate] = append(byNormalized[candidate], website)
		}
	}

	hits, err := r.rejections.FindRejectedImports(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("rejection lookup: %w", err)
	}

	result := make(map[string]models.RejectedImport, len(websites))
	for candidate, rejection := range hits {
		for _, website := range byNormalized[candidate] {
			result[website] = rejection
		}
	}
	return result, nil
}

// RecordRejection persists a rejection under the URL's primary normalized
// form.
func (r *Resolver) RecordRejection(ctx context.Context, website, eventName string) error {
	normalized := NormalizeURL(website)
	if normalized == "" {
		return fmt.Errorf("cannot record rejection for unparseable URL %q: %w", website, ErrInvalidInput)
	}
	return r.rejections.CreateRejectedImport(ctx, &models.RejectedImport{
		NormalizedURL: normalized,
		EventName:     eventName,
	})
}

// ClearRejection removes a rejection for every normalized variant of the
// URL so the alias form cannot keep it alive.
func (r *Resolver) ClearRejection(ctx context.Context, website string) error {
	candidates := NormalizeURLCandidates(website)
	if len(candidates) == 0 {
		return fmt.Errorf("cannot clear rejection for unparseable URL %q: %w", website, ErrInvalidInput)
	}
	for _, candidate := range candidates {
		if err := r.rejections.DeleteRejectedImport(ctx, candidate); err != nil {
			return fmt.Errorf("clearing rejection for %s: %w", candidate, err)
		}
	}
	return nil
}
