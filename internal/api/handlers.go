package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"seattle-events-workbench/internal/importer"
	"seattle-events-workbench/internal/models"
	"seattle-events-workbench/internal/services"
)

// ImportOrchestrator is the import session surface the handlers drive.
type ImportOrchestrator interface {
	SubmitAndWait(ctx context.Context, rawURL string) (models.ImportJob, []models.WorkbenchRecord, error)
	Jobs() []models.ImportJob
	Workbench() []models.WorkbenchRecord
	UpdateRecord(tempID string, edits models.CandidateEvent) error
	SetSelected(tempID string, selected bool) error
	RejectRecord(tempID string) error
	RestoreRecord(tempID string) error
	ImportRecord(ctx context.Context, tempID string, force bool) (*models.StoredEvent, error)
	ImportSelected(ctx context.Context, tempIDs []string) []importer.BulkResult
	Progress() importer.BulkProgress
}

// EventStore is the storage surface for direct event commits and listings.
type EventStore interface {
	CreateEvent(ctx context.Context, event *models.StoredEvent, force bool) error
	ListEvents(ctx context.Context, limit int32) ([]models.StoredEvent, error)
}

// Handler carries the handlers' collaborators.
type Handler struct {
	orchestrator ImportOrchestrator
	resolver     importer.DuplicateResolver
	store        EventStore
}

// NewHandler creates a request handler
func NewHandler(orchestrator ImportOrchestrator, resolver importer.DuplicateResolver, store EventStore) *Handler {
	return &Handler{orchestrator: orchestrator, resolver: resolver, store: store}
}

type submitRequest struct {
	URL string `json:"url" binding:"required"`
}

// SubmitImport runs one URL through the import pipeline and returns the
// extracted candidates.
func (h *Handler) SubmitImport(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	job, records, err := h.orchestrator.SubmitAndWait(c.Request.Context(), req.URL)
	if err != nil {
		status := importErrorStatus(err)
		c.JSON(status, gin.H{"error": err.Error(), "job": job})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job":       job,
		"sourceUrl": req.URL,
		"pageType":  job.PageType,
		"events":    records,
	})
}

// importErrorStatus maps pipeline failures onto HTTP codes.
func importErrorStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrEmptyPage):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

type duplicateCheckRequest struct {
	Website   string     `json:"website"`
	StartDate *time.Time `json:"startDate"`
}

type duplicateCheckResponse struct {
	ExistingEvent  *models.StoredEventSummary `json:"existingEvent"`
	DuplicateKind  models.DuplicateKind       `json:"duplicateKind,omitempty"`
	RejectedImport *models.RejectedImport     `json:"rejectedImport"`
}

// CheckDuplicates answers duplicate and prior-rejection questions for a
// batch of candidate URLs, one result per input index.
func (h *Handler) CheckDuplicates(c *gin.Context) {
	var req []duplicateCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected an array of {website, startDate}"})
		return
	}

	websites := make([]string, 0, len(req))
	for _, item := range req {
		if item.Website != "" {
			websites = append(websites, item.Website)
		}
	}
	rejections, err := h.resolver.FindRejectedURLs(c.Request.Context(), websites)
	if err != nil {
		log.Printf("[API] Rejection lookup failed: %v", err)
		rejections = nil
	}

	results := make([]duplicateCheckResponse, len(req))
	for i, item := range req {
		if item.Website == "" {
			continue
		}
		check, err := h.resolver.CheckDuplicate(c.Request.Context(), item.Website, item.StartDate)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		results[i].ExistingEvent = check.Existing
		results[i].DuplicateKind = check.Kind
		if rejection, ok := rejections[item.Website]; ok {
			r := rejection
			results[i].RejectedImport = &r
		}
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

type rejectRequest struct {
	URL       string `json:"url" binding:"required"`
	EventName string `json:"eventName"`
}

// RejectURL records a rejection for a candidate URL.
func (h *Handler) RejectURL(c *gin.Context) {
	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	if err := h.resolver.RecordRejection(c.Request.Context(), req.URL, req.EventName); err != nil {
		c.JSON(importErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rejected": req.URL})
}

type unrejectRequest struct {
	URL string `json:"url" binding:"required"`
}

// UnrejectURL removes a previously recorded rejection.
func (h *Handler) UnrejectURL(c *gin.Context) {
	var req unrejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	if err := h.resolver.ClearRejection(c.Request.Context(), req.URL); err != nil {
		c.JSON(importErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unrejected": req.URL})
}

type bulkImportRequest struct {
	TempIDs []string `json:"tempIds" binding:"required"`
}

// BulkImport commits the given workbench records sequentially.
func (h *Handler) BulkImport(c *gin.Context) {
	var req bulkImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tempIds is required"})
		return
	}

	results := h.orchestrator.ImportSelected(c.Request.Context(), req.TempIDs)
	c.JSON(http.StatusOK, gin.H{"results": results, "progress": h.orchestrator.Progress()})
}

// ImportProgress reports the state of the current or last bulk import.
func (h *Handler) ImportProgress(c *gin.Context) {
	c.JSON(http.StatusOK, h.orchestrator.Progress())
}

// ListJobs returns every job in submission order.
func (h *Handler) ListJobs(c *gin.Context) {
	jobs := h.orchestrator.Jobs()
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "total": len(jobs)})
}

// GetWorkbench returns the current workbench snapshot.
func (h *Handler) GetWorkbench(c *gin.Context) {
	records := h.orchestrator.Workbench()
	c.JSON(http.StatusOK, gin.H{"records": records, "total": len(records)})
}

// UpdateRecord overlays edits on a workbench record.
func (h *Handler) UpdateRecord(c *gin.Context) {
	var edits models.CandidateEvent
	if err := c.ShouldBindJSON(&edits); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.orchestrator.UpdateRecord(c.Param("tempId"), edits); err != nil {
		c.JSON(recordErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": c.Param("tempId")})
}

type selectRequest struct {
	Selected *bool `json:"selected" binding:"required"`
}

// SelectRecord toggles a record's bulk-import selection.
func (h *Handler) SelectRecord(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "selected is required"})
		return
	}

	if err := h.orchestrator.SetSelected(c.Param("tempId"), *req.Selected); err != nil {
		c.JSON(recordErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tempId": c.Param("tempId"), "selected": *req.Selected})
}

// RejectRecord rejects one workbench record.
func (h *Handler) RejectRecord(c *gin.Context) {
	if err := h.orchestrator.RejectRecord(c.Param("tempId")); err != nil {
		c.JSON(recordErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rejected": c.Param("tempId")})
}

// RestoreRecord returns a rejected record to pending.
func (h *Handler) RestoreRecord(c *gin.Context) {
	if err := h.orchestrator.RestoreRecord(c.Param("tempId")); err != nil {
		c.JSON(recordErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"restored": c.Param("tempId")})
}

type importRecordRequest struct {
	Force bool `json:"force"`
}

// ImportRecord commits one workbench record; duplicate collisions return
// 409 with the colliding summary.
func (h *Handler) ImportRecord(c *gin.Context) {
	var req importRecordRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	stored, err := h.orchestrator.ImportRecord(c.Request.Context(), c.Param("tempId"), req.Force)
	if err != nil {
		if dup, ok := services.AsDuplicateError(err); ok {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "existingEvent": dup.Existing})
			return
		}
		c.JSON(recordErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"event": stored})
}

type createEventRequest struct {
	models.CandidateEvent
	SourceURL string `json:"sourceUrl"`
	Force     bool   `json:"force"`
}

// CreateEvent commits a full candidate payload directly, outside any
// workbench session.
func (h *Handler) CreateEvent(c *gin.Context) {
	var req createEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.CandidateEvent.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	stored := importer.BuildStoredEvent(req.CandidateEvent, req.SourceURL)
	if err := h.store.CreateEvent(c.Request.Context(), stored, req.Force); err != nil {
		if dup, ok := services.AsDuplicateError(err); ok {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "existingEvent": dup.Existing})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"event": stored})
}

// ListEvents returns stored events for the admin listing.
func (h *Handler) ListEvents(c *gin.Context) {
	events, err := h.store.ListEvents(c.Request.Context(), 500)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "total": len(events)})
}

// HealthCheck reports liveness and session counters.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"jobs":      len(h.orchestrator.Jobs()),
		"workbench": len(h.orchestrator.Workbench()),
	})
}

// recordErrorStatus maps workbench operation failures onto HTTP codes.
func recordErrorStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusConflict
	}
}
