package services

import (
	"errors"
	"fmt"

	"seattle-events-workbench/internal/models"
)

// Sentinel errors mapped to HTTP status codes at the API layer.
var (
	// ErrInvalidInput covers malformed URLs and missing required fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrEmptyPage means the scraper returned no readable content.
	ErrEmptyPage = errors.New("page has no readable content")
	// ErrRateLimited means an upstream service refused the request.
	ErrRateLimited = errors.New("rate limited by upstream service")
	// ErrNotFound means a stored record does not exist.
	ErrNotFound = errors.New("not found")
)

// DuplicateError is returned by the commit path when a normalized-URL
// collision exists and force was not set. It carries the colliding event's
// summary so the caller can render a decision prompt.
type DuplicateError struct {
	Existing models.StoredEventSummary
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("event with the same website already exists: %s (%s)", e.Existing.Name, e.Existing.ID)
}

// AsDuplicateError unwraps err into a DuplicateError if possible.
func AsDuplicateError(err error) (*DuplicateError, bool) {
	var dup *DuplicateError
	if errors.As(err, &dup) {
		return dup, true
	}
	return nil, false
}
