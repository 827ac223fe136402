package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewTempID creates a process-local unique token for a candidate event.
func NewTempID() string {
	return "tmp_" + uuid.New().String()[:8]
}

// NewJobID creates a unique ID for an import job.
func NewJobID() string {
	return "job_" + uuid.New().String()[:8]
}

// GenerateEventID creates a stable ID for an event based on its core
// attributes, so re-importing the same event yields the same ID.
func GenerateEventID(name string, startDate *time.Time, website string) string {
	normalizedName := strings.ToLower(strings.TrimSpace(name))
	normalizedDate := ""
	if startDate != nil {
		normalizedDate = startDate.UTC().Format("2006-01-02")
	}
	normalizedWebsite := strings.ToLower(strings.TrimSpace(website))

	input := fmt.Sprintf("%s|%s|%s", normalizedName, normalizedDate, normalizedWebsite)
	hash := sha256.Sum256([]byte(input))
	return "evt_" + hex.EncodeToString(hash[:])[:12]
}

// IsValidURL performs basic URL validation.
func IsValidURL(url string) bool {
	if url == "" {
		return false
	}
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

// ClampConfidence forces a confidence score into [0, 1], defaulting to 0.5
// when the input is not a usable number.
func ClampConfidence(confidence float64, ok bool) float64 {
	if !ok {
		return 0.5
	}
	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}
