package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"seattle-events-workbench/internal/importer"
	"seattle-events-workbench/internal/models"
	"seattle-events-workbench/internal/services"
)

type fakeOrchestrator struct {
	submitJob     models.ImportJob
	submitRecords []models.WorkbenchRecord
	submitErr     error
	jobs          []models.ImportJob
	records       []models.WorkbenchRecord
	updated       map[string]models.CandidateEvent
	selected      map[string]bool
	rejected      []string
	restored      []string
	importResult  *models.StoredEvent
	importErr     error
	bulkResults   []importer.BulkResult
	progress      importer.BulkProgress
}

func (f *fakeOrchestrator) SubmitAndWait(ctx context.Context, rawURL string) (models.ImportJob, []models.WorkbenchRecord, error) {
	return f.submitJob, f.submitRecords, f.submitErr
}

func (f *fakeOrchestrator) Jobs() []models.ImportJob            { return f.jobs }
func (f *fakeOrchestrator) Workbench() []models.WorkbenchRecord { return f.records }
func (f *fakeOrchestrator) Progress() importer.BulkProgress     { return f.progress }
func (f *fakeOrchestrator) RejectRecord(tempID string) error    { return f.recordOp(tempID, &f.rejected) }
func (f *fakeOrchestrator) RestoreRecord(tempID string) error   { return f.recordOp(tempID, &f.restored) }

func (f *fakeOrchestrator) recordOp(tempID string, into *[]string) error {
	if !f.has(tempID) {
		return fmt.Errorf("record %s: %w", tempID, services.ErrNotFound)
	}
	*into = append(*into, tempID)
	return nil
}

func (f *fakeOrchestrator) has(tempID string) bool {
	for _, r := range f.records {
		if r.Event.TempID == tempID {
			return true
		}
	}
	return false
}

func (f *fakeOrchestrator) UpdateRecord(tempID string, edits models.CandidateEvent) error {
	if !f.has(tempID) {
		return fmt.Errorf("record %s: %w", tempID, services.ErrNotFound)
	}
	if f.updated == nil {
		f.updated = make(map[string]models.CandidateEvent)
	}
	f.updated[tempID] = edits
	return nil
}

func (f *fakeOrchestrator) SetSelected(tempID string, selected bool) error {
	if !f.has(tempID) {
		return fmt.Errorf("record %s: %w", tempID, services.ErrNotFound)
	}
	if f.selected == nil {
		f.selected = make(map[string]bool)
	}
	f.selected[tempID] = selected
	return nil
}

func (f *fakeOrchestrator) ImportRecord(ctx context.Context, tempID string, force bool) (*models.StoredEvent, error) {
	if !f.has(tempID) {
		return nil, fmt.Errorf("record %s: %w", tempID, services.ErrNotFound)
	}
	return f.importResult, f.importErr
}

func (f *fakeOrchestrator) ImportSelected(ctx context.Context, tempIDs []string) []importer.BulkResult {
	return f.bulkResults
}

type fakeAPIResolver struct {
	duplicates map[string]services.DuplicateCheck
	rejections map[string]models.RejectedImport
	recorded   []string
	cleared    []string
}

func (f *fakeAPIResolver) CheckDuplicate(ctx context.Context, website string, startDate *time.Time) (services.DuplicateCheck, error) {
	return f.duplicates[website], nil
}

func (f *fakeAPIResolver) FindRejectedURLs(ctx context.Context, websites []string) (map[string]models.RejectedImport, error) {
	found := make(map[string]models.RejectedImport)
	for _, website := range websites {
		if rejection, ok := f.rejections[website]; ok {
			found[website] = rejection
		}
	}
	return found, nil
}

func (f *fakeAPIResolver) RecordRejection(ctx context.Context, website, eventName string) error {
	if strings.Contains(website, "\x00") {
		return fmt.Errorf("cannot parse %q: %w", website, services.ErrInvalidInput)
	}
	f.recorded = append(f.recorded, website)
	return nil
}

func (f *fakeAPIResolver) ClearRejection(ctx context.Context, website string) error {
	f.cleared = append(f.cleared, website)
	return nil
}

type fakeAPIStore struct {
	created   []*models.StoredEvent
	createErr error
	events    []models.StoredEvent
}

func (f *fakeAPIStore) CreateEvent(ctx context.Context, event *models.StoredEvent, force bool) error {
	if f.createErr != nil && !force {
		return f.createErr
	}
	f.created = append(f.created, event)
	return nil
}

func (f *fakeAPIStore) ListEvents(ctx context.Context, limit int32) ([]models.StoredEvent, error) {
	return f.events, nil
}

func newTestServer(orch *fakeOrchestrator, resolver *fakeAPIResolver, store *fakeAPIStore) *httptest.Server {
	if orch == nil {
		orch = &fakeOrchestrator{}
	}
	if resolver == nil {
		resolver = &fakeAPIResolver{}
	}
	if store == nil {
		store = &fakeAPIStore{}
	}
	return httptest.NewServer(NewServer(NewHandler(orch, resolver, store)))
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func TestSubmitImport(t *testing.T) {
	orch := &fakeOrchestrator{
		submitJob: models.ImportJob{
			ID:       "job_abc123",
			URL:      "https://example.com/events",
			Status:   models.JobStatusDone,
			PageType: models.PageTypeListing,
		},
		submitRecords: []models.WorkbenchRecord{
			{Event: models.CandidateEvent{TempID: "tmp_1", Name: "Go Meetup"}},
		},
	}
	server := newTestServer(orch, nil, nil)
	defer server.Close()

	resp := postJSON(t, server.URL+"/api/import/submit", map[string]string{"url": "https://example.com/events"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["pageType"] != "listing" {
		t.Errorf("expected pageType listing, got %v", body["pageType"])
	}
	events, ok := body["events"].([]any)
	if !ok || len(events) != 1 {
		t.Errorf("expected 1 event in response, got %v", body["events"])
	}
}

func TestSubmitImportErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"invalid url", fmt.Errorf("invalid source URL: %w", services.ErrInvalidInput), http.StatusBadRequest},
		{"empty page", fmt.Errorf("scrape: %w", services.ErrEmptyPage), http.StatusUnprocessableEntity},
		{"rate limited", fmt.Errorf("openai: %w", services.ErrRateLimited), http.StatusTooManyRequests},
		{"unknown", fmt.Errorf("something broke"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer(&fakeOrchestrator{submitErr: tt.err}, nil, nil)
			defer server.Close()

			resp := postJSON(t, server.URL+"/api/import/submit", map[string]string{"url": "https://example.com"})
			resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, resp.StatusCode)
			}
		})
	}
}

func TestSubmitImportRequiresURL(t *testing.T) {
	server := newTestServer(nil, nil, nil)
	defer server.Close()

	resp := postJSON(t, server.URL+"/api/import/submit", map[string]string{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for missing url, got %d", resp.StatusCode)
	}
}

func TestCheckDuplicates(t *testing.T) {
	resolver := &fakeAPIResolver{
		duplicates: map[string]services.DuplicateCheck{
			"https://lu.ma/go-meetup": {
				IsDuplicate: true,
				Kind:        models.DuplicateExact,
				Existing:    &models.StoredEventSummary{ID: "evt_aaa", Name: "Go Meetup"},
			},
		},
		rejections: map[string]models.RejectedImport{
			"https://example.com/spam": {NormalizedURL: "https://example.com/spam", EventName: "Spam Expo"},
		},
	}
	server := newTestServer(nil, resolver, nil)
	defer server.Close()

	resp := postJSON(t, server.URL+"/api/import/check-duplicates", []map[string]any{
		{"website": "https://lu.ma/go-meetup"},
		{"website": "https://example.com/spam"},
		{"website": "https://example.com/clean"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	results, ok := body["results"].([]any)
	if !ok || len(results) != 3 {
		t.Fatalf("expected 3 results, got %v", body["results"])
	}

	first := results[0].(map[string]any)
	if first["duplicateKind"] != "exact" {
		t.Errorf("expected exact duplicate at index 0, got %v", first["duplicateKind"])
	}
	second := results[1].(map[string]any)
	if second["rejectedImport"] == nil {
		t.Error("expected a rejection at index 1")
	}
	third := results[2].(map[string]any)
	if third["existingEvent"] != nil || third["rejectedImport"] != nil {
		t.Errorf("expected clean result at index 2, got %v", third)
	}
}

func TestRejectAndUnrejectURL(t *testing.T) {
	resolver := &fakeAPIResolver{}
	server := newTestServer(nil, resolver, nil)
	defer server.Close()

	resp := postJSON(t, server.URL+"/api/import/reject", map[string]string{
		"url":       "https://example.com/spam",
		"eventName": "Spam Expo",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if len(resolver.recorded) != 1 || resolver.recorded[0] != "https://example.com/spam" {
		t.Errorf("expected rejection recorded, got %v", resolver.recorded)
	}

	resp = postJSON(t, server.URL+"/api/import/unreject", map[string]string{"url": "https://example.com/spam"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if len(resolver.cleared) != 1 {
		t.Errorf("expected rejection cleared, got %v", resolver.cleared)
	}
}

func TestUpdateRecord(t *testing.T) {
	orch := &fakeOrchestrator{
		records: []models.WorkbenchRecord{{Event: models.CandidateEvent{TempID: "tmp_1", Name: "Old Name"}}},
	}
	server := newTestServer(orch, nil, nil)
	defer server.Close()

	payload, _ := json.Marshal(models.CandidateEvent{Name: "New Name", EventType: models.EventTypeMeetup})
	req, _ := http.NewRequest(http.MethodPatch, server.URL+"/api/workbench/tmp_1", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PATCH: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if orch.updated["tmp_1"].Name != "New Name" {
		t.Errorf("expected edits applied, got %+v", orch.updated["tmp_1"])
	}

	req, _ = http.NewRequest(http.MethodPatch, server.URL+"/api/workbench/tmp_missing", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PATCH: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown record, got %d", resp.StatusCode)
	}
}

func TestSelectRecord(t *testing.T) {
	orch := &fakeOrchestrator{
		records: []models.WorkbenchRecord{{Event: models.CandidateEvent{TempID: "tmp_1"}}},
	}
	server := newTestServer(orch, nil, nil)
	defer server.Close()

	resp := postJSON(t, server.URL+"/api/workbench/tmp_1/select", map[string]bool{"selected": false})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got, ok := orch.selected["tmp_1"]; !ok || got {
		t.Errorf("expected tmp_1 deselected, got %v", orch.selected)
	}
}

func TestImportRecordEndpoint(t *testing.T) {
	orch := &fakeOrchestrator{
		records:      []models.WorkbenchRecord{{Event: models.CandidateEvent{TempID: "tmp_1"}}},
		importResult: &models.StoredEvent{ID: "evt_abc", Name: "Go Meetup"},
	}
	server := newTestServer(orch, nil, nil)
	defer server.Close()

	resp := postJSON(t, server.URL+"/api/workbench/tmp_1/import", map[string]bool{"force": false})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	event, ok := body["event"].(map[string]any)
	if !ok || event["id"] != "evt_abc" {
		t.Errorf("expected stored event in response, got %v", body["event"])
	}
}

func TestImportRecordDuplicateConflict(t *testing.T) {
	orch := &fakeOrchestrator{
		records: []models.WorkbenchRecord{{Event: models.CandidateEvent{TempID: "tmp_1"}}},
		importErr: &services.DuplicateError{
			Existing: models.StoredEventSummary{ID: "evt_old", Name: "Go Meetup"},
		},
	}
	server := newTestServer(orch, nil, nil)
	defer server.Close()

	resp := postJSON(t, server.URL+"/api/workbench/tmp_1/import", map[string]bool{"force": false})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	existing, ok := body["existingEvent"].(map[string]any)
	if !ok || existing["id"] != "evt_old" {
		t.Errorf("expected colliding event in response, got %v", body["existingEvent"])
	}
}

func TestRejectAndRestoreRecord(t *testing.T) {
	orch := &fakeOrchestrator{
		records: []models.WorkbenchRecord{{Event: models.CandidateEvent{TempID: "tmp_1"}}},
	}
	server := newTestServer(orch, nil, nil)
	defer server.Close()

	resp := postJSON(t, server.URL+"/api/workbench/tmp_1/reject", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reject: expected 200, got %d", resp.StatusCode)
	}
	resp = postJSON(t, server.URL+"/api/workbench/tmp_1/restore", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("restore: expected 200, got %d", resp.StatusCode)
	}
	if len(orch.rejected) != 1 || len(orch.restored) != 1 {
		t.Errorf("expected one reject and one restore, got %v / %v", orch.rejected, orch.restored)
	}
}

func TestBulkImportAndProgress(t *testing.T) {
	orch := &fakeOrchestrator{
		bulkResults: []importer.BulkResult{
			{TempID: "tmp_1", EventID: "evt_abc"},
			{TempID: "tmp_2", Error: "name is required"},
		},
		progress: importer.BulkProgress{Total: 2, Completed: 2, Failed: 1},
	}
	server := newTestServer(orch, nil, nil)
	defer server.Close()

	resp := postJSON(t, server.URL+"/api/import/bulk", map[string][]string{"tempIds": {"tmp_1", "tmp_2"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	results, ok := body["results"].([]any)
	if !ok || len(results) != 2 {
		t.Fatalf("expected 2 results, got %v", body["results"])
	}

	resp, err := http.Get(server.URL + "/api/import/progress")
	if err != nil {
		t.Fatalf("GET progress: %v", err)
	}
	progress := decodeBody(t, resp)
	if progress["failed"] != float64(1) {
		t.Errorf("expected 1 failure in progress, got %v", progress["failed"])
	}
}

func TestCreateEvent(t *testing.T) {
	store := &fakeAPIStore{}
	server := newTestServer(nil, nil, store)
	defer server.Close()

	resp := postJSON(t, server.URL+"/api/events", map[string]any{
		"name":      "Seattle Go Meetup",
		"website":   "https://lu.ma/sea-go",
		"eventType": "meetup",
		"region":    "seattle",
		"sourceUrl": "https://lu.ma/sea-go",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	resp.Body.Close()
	if len(store.created) != 1 {
		t.Fatalf("expected 1 stored event, got %d", len(store.created))
	}
	if store.created[0].NormalizedWebsite == "" {
		t.Error("expected normalized website on stored event")
	}
}

func TestCreateEventValidation(t *testing.T) {
	server := newTestServer(nil, nil, nil)
	defer server.Close()

	resp := postJSON(t, server.URL+"/api/events", map[string]any{"website": "https://example.com"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for nameless event, got %d", resp.StatusCode)
	}
}

func TestCreateEventDuplicateConflict(t *testing.T) {
	store := &fakeAPIStore{
		createErr: &services.DuplicateError{
			Existing: models.StoredEventSummary{ID: "evt_old", Name: "Go Meetup"},
		},
	}
	server := newTestServer(nil, nil, store)
	defer server.Close()

	resp := postJSON(t, server.URL+"/api/events", map[string]any{
		"name":    "Go Meetup",
		"website": "https://lu.ma/sea-go",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}

	resp = postJSON(t, server.URL+"/api/events", map[string]any{
		"name":    "Go Meetup",
		"website": "https://lu.ma/sea-go",
		"force":   true,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("expected force to bypass the conflict, got %d", resp.StatusCode)
	}
}

func TestListEndpointsAndHealth(t *testing.T) {
	orch := &fakeOrchestrator{
		jobs:    []models.ImportJob{{ID: "job_1", Status: models.JobStatusDone}},
		records: []models.WorkbenchRecord{{Event: models.CandidateEvent{TempID: "tmp_1"}}},
	}
	store := &fakeAPIStore{events: []models.StoredEvent{{ID: "evt_abc"}}}
	server := newTestServer(orch, nil, store)
	defer server.Close()

	for _, tt := range []struct {
		path  string
		key   string
		count int
	}{
		{"/api/jobs", "jobs", 1},
		{"/api/workbench", "records", 1},
		{"/api/events", "events", 1},
	} {
		resp, err := http.Get(server.URL + tt.path)
		if err != nil {
			t.Fatalf("GET %s: %v", tt.path, err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s: expected 200, got %d", tt.path, resp.StatusCode)
		}
		body := decodeBody(t, resp)
		items, ok := body[tt.key].([]any)
		if !ok || len(items) != tt.count {
			t.Errorf("GET %s: expected %d %s, got %v", tt.path, tt.count, tt.key, body[tt.key])
		}
	}

	resp, err := http.Get(server.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	body := decodeBody(t, resp)
	if body["status"] != "ok" {
		t.Errorf("expected ok health, got %v", body["status"])
	}
}
