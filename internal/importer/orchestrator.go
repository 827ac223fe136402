package importer

import (
	"context"
	"fmt"
	"log"
	"time"

	"seattle-events-workbench/internal/models"
	"seattle-events-workbench/internal/services"
)

const (
	defaultWorkerLimit   = 3
	defaultCheckDebounce = 300 * time.Millisecond
	batchCheckTimeout    = 15 * time.Second
	sideEffectTimeout    = 10 * time.Second
)

// JobPipeline processes one submitted URL into candidates.
type JobPipeline interface {
	Run(ctx context.Context, sourceURL string) (*ParseOutcome, error)
}

// EventStore is the slice of the storage layer the orchestrator commits
// through.
type EventStore interface {
	CreateEvent(ctx context.Context, event *models.StoredEvent, force bool) error
}

// DuplicateResolver answers duplicate and prior-rejection questions.
type DuplicateResolver interface {
	CheckDuplicate(ctx context.Context, website string, startDate *time.Time) (services.DuplicateCheck, error)
	FindRejectedURLs(ctx context.Context, websites []string) (map[string]models.RejectedImport, error)
	RecordRejection(ctx context.Context, website, eventName string) error
	ClearRejection(ctx context.Context, website string) error
}

// SnapshotPublisher pushes the current event set out after commits.
// Publishing is best-effort and never blocks or fails an import.
type SnapshotPublisher interface {
	PublishLatest(ctx context.Context) error
}

// BulkProgress tracks a sequential bulk import.
type BulkProgress struct {
	Total     int  `json:"total"`
	Completed int  `json:"completed"`
	Failed    int  `json:"failed"`
	Running   bool `json:"running"`
}

// BulkResult is the outcome for one record in a bulk import.
type BulkResult struct {
	TempID  string `json:"tempId"`
	EventID string `json:"eventId,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Orchestrator owns the import session: the job queue, the bounded worker
// pool and the workbench of candidates awaiting review. All session state
// is confined to a single goroutine fed by a command channel; public
// methods post closures into it and wait for the reply, so no mutex guards
// any of the maps below.
type Orchestrator struct {
	pipeline  JobPipeline
	store     EventStore
	resolver  DuplicateResolver
	snapshots SnapshotPublisher
	loc       *time.Location

	workerLimit int
	debounce    time.Duration

	commands chan func()
	done     chan struct{}

	// Owned by the run goroutine.
	jobs       map[string]*models.ImportJob
	jobOrder   []string
	queue      []string
	active     int
	workbench  []*models.WorkbenchRecord
	byTempID   map[string]*models.WorkbenchRecord
	seenURLs   map[string]string
	checkTimer *time.Timer
	bulk       BulkProgress
	waiters    map[string]chan jobResult
}

type jobResult struct {
	outcome *ParseOutcome
	err     error
}

// NewOrchestrator creates a stopped orchestrator; call Start before use.
func NewOrchestrator(pipeline JobPipeline, store EventStore, resolver DuplicateResolver, loc *time.Location) *Orchestrator {
	return &Orchestrator{
		pipeline:    pipeline,
		store:       store,
		resolver:    resolver,
		loc:         loc,
		workerLimit: defaultWorkerLimit,
		debounce:    defaultCheckDebounce,
		commands:    make(chan func()),
		done:        make(chan struct{}),
		jobs:        make(map[string]*models.ImportJob),
		byTempID:    make(map[string]*models.WorkbenchRecord),
		seenURLs:    make(map[string]string),
		waiters:     make(map[string]chan jobResult),
	}
}

// SetSnapshotPublisher enables post-commit snapshot publishing.
func (o *Orchestrator) SetSnapshotPublisher(p SnapshotPublisher) {
	o.snapshots = p
}

// SetWorkerLimit overrides the concurrent job ceiling. Call before Start.
func (o *Orchestrator) SetWorkerLimit(n int) {
	if n > 0 {
		o.workerLimit = n
	}
}

// SetDebounce overrides the duplicate-check debounce window. Call before
// Start.
func (o *Orchestrator) SetDebounce(d time.Duration) {
	if d > 0 {
		o.debounce = d
	}
}

// Start launches the command loop.
func (o *Orchestrator) Start() {
	go o.run()
}

// Stop shuts the command loop down. In-flight jobs finish their pipeline
// work but their results are discarded.
func (o *Orchestrator) Stop() {
	close(o.done)
}

func (o *Orchestrator) run() {
	for {
		select {
		case <-o.done:
			return
		case cmd := <-o.commands:
			cmd()
		}
	}
}

// post hands a closure to the command loop without waiting for it.
func (o *Orchestrator) post(fn func()) {
	select {
	case o.commands <- fn:
	case <-o.done:
	}
}

// do runs a closure on the command loop and waits for it to complete.
func (o *Orchestrator) do(fn func()) {
	replied := make(chan struct{})
	o.post(func() {
		fn()
		close(replied)
	})
	select {
	case <-replied:
	case <-o.done:
	}
}

// SubmitURL queues one source URL for processing and returns the created
// job. The URL must parse and use an http(s) scheme; scheme-less input is
// accepted as https.
func (o *Orchestrator) SubmitURL(rawURL string) (models.ImportJob, error) {
	return o.submit(rawURL, nil)
}

// submit validates and enqueues a URL; waiter, when non-nil, is registered
// in the same actor turn so the completion signal cannot be missed.
func (o *Orchestrator) submit(rawURL string, waiter chan jobResult) (models.ImportJob, error) {
	normalized := services.NormalizeURL(rawURL)
	if normalized == "" {
		return models.ImportJob{}, fmt.Errorf("invalid source URL %q: %w", rawURL, services.ErrInvalidInput)
	}

	job := models.ImportJob{
		ID:        models.NewJobID(),
		URL:       rawURL,
		Status:    models.JobStatusQueued,
		CreatedAt: time.Now(),
	}

	o.do(func() {
		stored := job
		o.jobs[job.ID] = &stored
		o.jobOrder = append(o.jobOrder, job.ID)
		o.queue = append(o.queue, job.ID)
		if waiter != nil {
			o.waiters[job.ID] = waiter
		}
		o.dispatch()
	})

	log.Printf("[IMPORT] Queued job %s for %s", job.ID, rawURL)
	return job, nil
}

// SubmitAndWait queues a URL and blocks until its job finishes or ctx
// expires. On success it returns the finished job and the workbench
// records the job produced.
func (o *Orchestrator) SubmitAndWait(ctx context.Context, rawURL string) (models.ImportJob, []models.WorkbenchRecord, error) {
	waiter := make(chan jobResult, 1)
	job, err := o.submit(rawURL, waiter)
	if err != nil {
		return models.ImportJob{}, nil, err
	}

	select {
	case <-ctx.Done():
		o.do(func() {
			delete(o.waiters, job.ID)
		})
		return job, nil, ctx.Err()
	case result := <-waiter:
		var finished models.ImportJob
		var records []models.WorkbenchRecord
		o.do(func() {
			finished = *o.jobs[job.ID]
			for _, record := range o.workbench {
				if record.SourceJobID == job.ID {
					records = append(records, copyRecord(record))
				}
			}
		})
		return finished, records, result.err
	}
}

// dispatch starts queued jobs while worker slots are free. Actor-only.
func (o *Orchestrator) dispatch() {
	for o.active < o.workerLimit && len(o.queue) > 0 {
		jobID := o.queue[0]
		o.queue = o.queue[1:]

		job := o.jobs[jobID]
		job.Status = models.JobStatusProcessing
		o.active++

		go o.processJob(jobID, job.URL)
	}
}

// processJob runs the pipeline outside the actor and posts the result back.
func (o *Orchestrator) processJob(jobID, sourceURL string) {
	outcome, err := o.pipeline.Run(context.Background(), sourceURL)
	o.post(func() {
		o.finishJob(jobID, sourceURL, outcome, err)
	})
}

// finishJob records a job result, lands its candidates in the workbench
// and frees the worker slot. Actor-only.
func (o *Orchestrator) finishJob(jobID, sourceURL string, outcome *ParseOutcome, err error) {
	job := o.jobs[jobID]

	if err != nil {
		job.Status = models.JobStatusError
		job.Error = err.Error()
		log.Printf("[IMPORT] Job %s failed: %v", jobID, err)
	} else {
		job.Status = models.JobStatusDone
		job.PageType = outcome.PageType
		job.EventCount = len(outcome.Events)
		o.landCandidates(jobID, sourceURL, outcome.Events)
	}

	if waiter, ok := o.waiters[jobID]; ok {
		waiter <- jobResult{outcome: outcome, err: err}
		delete(o.waiters, jobID)
	}

	o.active--
	o.dispatch()
}

// landCandidates appends new workbench records, flagging in-session URL
// duplicates immediately. Actor-only.
func (o *Orchestrator) landCandidates(jobID, sourceURL string, events []models.CandidateEvent) {
	for _, event := range events {
		if event.TempID == "" {
			event.TempID = models.NewTempID()
		}

		record := &models.WorkbenchRecord{
			Event:       event,
			SourceURL:   sourceURL,
			SourceJobID: jobID,
			Status:      models.RecordStatusPending,
			Selected:    true,
		}

		if normalized := services.NormalizeURL(event.Website); normalized != "" {
			if _, dup := o.seenURLs[normalized]; dup {
				record.IsDuplicate = true
				record.DuplicateKind = models.DuplicateExact
				record.Selected = false
			} else {
				o.seenURLs[normalized] = event.TempID
			}
		}

		o.workbench = append(o.workbench, record)
		o.byTempID[event.TempID] = record
	}

	o.scheduleDuplicateCheck()
}

// scheduleDuplicateCheck arms or extends the debounce timer so rapid
// landings coalesce into one server round trip. Actor-only.
func (o *Orchestrator) scheduleDuplicateCheck() {
	if o.checkTimer != nil {
		o.checkTimer.Reset(o.debounce)
		return
	}
	o.checkTimer = time.AfterFunc(o.debounce, func() {
		o.post(o.startDuplicateCheck)
	})
}

type checkTarget struct {
	tempID    string
	website   string
	startDate *time.Time
}

// startDuplicateCheck collects every unchecked pending record and runs the
// batch lookup off the actor goroutine. Actor-only.
func (o *Orchestrator) startDuplicateCheck() {
	o.checkTimer = nil

	var targets []checkTarget
	for _, record := range o.workbench {
		if record.DuplicateChecked || record.Status != models.RecordStatusPending {
			continue
		}
		effective := record.Effective()
		if effective.Website == "" {
			record.DuplicateChecked = true
			continue
		}
		targets = append(targets, checkTarget{
			tempID:    record.Event.TempID,
			website:   effective.Website,
			startDate: effective.StartDate,
		})
	}
	if len(targets) == 0 {
		return
	}

	go o.runDuplicateCheck(targets)
}

type checkResult struct {
	check     services.DuplicateCheck
	rejection *models.RejectedImport
}

// runDuplicateCheck performs the resolver round trips and posts the
// verdicts back to the actor.
func (o *Orchestrator) runDuplicateCheck(targets []checkTarget) {
	ctx, cancel := context.WithTimeout(context.Background(), batchCheckTimeout)
	defer cancel()

	websites := make([]string, 0, len(targets))
	for _, t := range targets {
		websites = append(websites, t.website)
	}
	rejections, err := o.resolver.FindRejectedURLs(ctx, websites)
	if err != nil {
		log.Printf("[IMPORT] Rejection batch check failed: %v", err)
		rejections = nil
	}

	results := make(map[string]checkResult, len(targets))
	for _, t := range targets {
		check, err := o.resolver.CheckDuplicate(ctx, t.website, t.startDate)
		if err != nil {
			log.Printf("[IMPORT] Duplicate check for %s failed: %v", t.website, err)
			continue
		}
		result := checkResult{check: check}
		if rejection, ok := rejections[t.website]; ok {
			r := rejection
			result.rejection = &r
		}
		results[t.tempID] = result
	}

	o.post(func() {
		o.applyCheckResults(results)
	})
}

// applyCheckResults merges verdicts into the workbench. Flags are strictly
// additive; a verdict never clears an earlier one. Actor-only.
func (o *Orchestrator) applyCheckResults(results map[string]checkResult) {
	for tempID, result := range results {
		record := o.byTempID[tempID]
		if record == nil || record.Status != models.RecordStatusPending {
			continue
		}

		record.DuplicateChecked = true
		if result.check.IsDuplicate {
			record.IsDuplicate = true
			record.DuplicateKind = result.check.Kind
			record.DuplicateInfo = result.check.Existing
			record.Selected = false
		}
		if result.rejection != nil {
			record.IsPreviouslyRejected = true
			record.PreviousRejection = result.rejection
			record.Selected = false
		}
	}
}

// Jobs returns a snapshot of every job in submission order.
func (o *Orchestrator) Jobs() []models.ImportJob {
	var jobs []models.ImportJob
	o.do(func() {
		jobs = make([]models.ImportJob, 0, len(o.jobOrder))
		for _, id := range o.jobOrder {
			jobs = append(jobs, *o.jobs[id])
		}
	})
	return jobs
}

// Workbench returns a snapshot of the current workbench. Pointer fields
// are copied so callers can never reach actor-owned state.
func (o *Orchestrator) Workbench() []models.WorkbenchRecord {
	var records []models.WorkbenchRecord
	o.do(func() {
		records = make([]models.WorkbenchRecord, 0, len(o.workbench))
		for _, record := range o.workbench {
			records = append(records, copyRecord(record))
		}
	})
	return records
}

func copyRecord(record *models.WorkbenchRecord) models.WorkbenchRecord {
	clone := *record
	if record.Edits != nil {
		edits := *record.Edits
		clone.Edits = &edits
	}
	if record.DuplicateInfo != nil {
		info := *record.DuplicateInfo
		clone.DuplicateInfo = &info
	}
	if record.PreviousRejection != nil {
		rejection := *record.PreviousRejection
		clone.PreviousRejection = &rejection
	}
	return clone
}

// UpdateRecord overlays human edits on a record. An edit that changes the
// URL re-queues the record for the next duplicate check.
func (o *Orchestrator) UpdateRecord(tempID string, edits models.CandidateEvent) error {
	if err := edits.Validate(); err != nil {
		return fmt.Errorf("invalid edits: %w", err)
	}

	var opErr error
	o.do(func() {
		record := o.byTempID[tempID]
		if record == nil {
			opErr = fmt.Errorf("record %s: %w", tempID, services.ErrNotFound)
			return
		}
		if record.Status == models.RecordStatusImporting || record.Status == models.RecordStatusImported {
			opErr = fmt.Errorf("record %s is %s and cannot be edited", tempID, record.Status)
			return
		}

		previousWebsite := record.Effective().Website
		edits.TempID = record.Event.TempID
		record.Edits = &edits

		if edits.Website != previousWebsite {
			record.DuplicateChecked = false
			o.scheduleDuplicateCheck()
		}
	})
	return opErr
}

// SetSelected toggles a record's membership in the bulk-import selection.
func (o *Orchestrator) SetSelected(tempID string, selected bool) error {
	var opErr error
	o.do(func() {
		record := o.byTempID[tempID]
		if record == nil {
			opErr = fmt.Errorf("record %s: %w", tempID, services.ErrNotFound)
			return
		}
		record.Selected = selected
	})
	return opErr
}

// RejectRecord marks a record rejected and persists the rejection in the
// background. Persistence failures are logged and never surfaced; the
// workbench state change is the authoritative effect.
func (o *Orchestrator) RejectRecord(tempID string) error {
	var opErr error
	var website, name string
	o.do(func() {
		record := o.byTempID[tempID]
		if record == nil {
			opErr = fmt.Errorf("record %s: %w", tempID, services.ErrNotFound)
			return
		}
		if record.Status == models.RecordStatusImported {
			opErr = fmt.Errorf("record %s is already imported", tempID)
			return
		}
		record.Status = models.RecordStatusRejected
		record.Selected = false
		effective := record.Effective()
		website, name = effective.Website, effective.Name
	})
	if opErr != nil {
		return opErr
	}

	if website != "" {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
			defer cancel()
			if err := o.resolver.RecordRejection(ctx, website, name); err != nil {
				log.Printf("[IMPORT] Persisting rejection for %s failed: %v", website, err)
			}
		}()
	}
	return nil
}

// RestoreRecord returns a rejected record to pending and clears the
// persisted rejection in the background.
func (o *Orchestrator) RestoreRecord(tempID string) error {
	var opErr error
	var website string
	o.do(func() {
		record := o.byTempID[tempID]
		if record == nil {
			opErr = fmt.Errorf("record %s: %w", tempID, services.ErrNotFound)
			return
		}
		if record.Status != models.RecordStatusRejected {
			opErr = fmt.Errorf("record %s is not rejected", tempID)
			return
		}
		record.Status = models.RecordStatusPending
		website = record.Effective().Website
	})
	if opErr != nil {
		return opErr
	}

	if website != "" {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
			defer cancel()
			if err := o.resolver.ClearRejection(ctx, website); err != nil {
				log.Printf("[IMPORT] Clearing rejection for %s failed: %v", website, err)
			}
		}()
	}
	return nil
}

// ImportRecord commits one record to storage. Known duplicates are refused
// unless force is set; a storage-level collision surfaces the same way so
// the caller always gets the colliding summary.
func (o *Orchestrator) ImportRecord(ctx context.Context, tempID string, force bool) (*models.StoredEvent, error) {
	var event models.CandidateEvent
	var sourceURL string
	var opErr error

	o.do(func() {
		record := o.byTempID[tempID]
		if record == nil {
			opErr = fmt.Errorf("record %s: %w", tempID, services.ErrNotFound)
			return
		}
		if record.Status != models.RecordStatusPending && record.Status != models.RecordStatusError {
			opErr = fmt.Errorf("record %s is %s and cannot be imported", tempID, record.Status)
			return
		}
		if record.IsDuplicate && !force {
			opErr = o.duplicateRefusal(record)
			return
		}

		event = record.Effective()
		if err := event.Validate(); err != nil {
			opErr = fmt.Errorf("record %s: %w", tempID, err)
			return
		}

		record.Status = models.RecordStatusImporting
		record.ImportError = ""
		sourceURL = record.SourceURL
	})
	if opErr != nil {
		return nil, opErr
	}

	stored := BuildStoredEvent(event, sourceURL)
	createErr := o.store.CreateEvent(ctx, stored, force)

	o.do(func() {
		record := o.byTempID[tempID]
		if record == nil {
			return
		}
		switch {
		case createErr == nil:
			record.Status = models.RecordStatusImported
			record.Selected = false
		default:
			if dup, ok := services.AsDuplicateError(createErr); ok {
				record.IsDuplicate = true
				record.DuplicateInfo = &dup.Existing
				record.DuplicateKind = o.classifyKind(&dup.Existing, event.StartDate)
				record.Status = models.RecordStatusPending
				record.Selected = false
			} else {
				record.Status = models.RecordStatusError
			}
			record.ImportError = createErr.Error()
		}
	})

	if createErr != nil {
		return nil, createErr
	}

	o.publishSnapshot()
	log.Printf("[IMPORT] Imported %s as %s", tempID, stored.ID)
	return stored, nil
}

// ImportSelected commits records one at a time in the given order. A
// failure is recorded and the loop moves on; progress is readable through
// Progress while the run is underway.
func (o *Orchestrator) ImportSelected(ctx context.Context, tempIDs []string) []BulkResult {
	o.do(func() {
		o.bulk = BulkProgress{Total: len(tempIDs), Running: true}
	})

	results := make([]BulkResult, 0, len(tempIDs))
	for _, tempID := range tempIDs {
		result := BulkResult{TempID: tempID}
		stored, err := o.ImportRecord(ctx, tempID, false)
		if err != nil {
			result.Error = err.Error()
		} else {
			result.EventID = stored.ID
		}
		results = append(results, result)

		o.do(func() {
			if result.Error != "" {
				o.bulk.Failed++
			}
			o.bulk.Completed++
		})
	}

	o.do(func() {
		o.bulk.Running = false
	})
	return results
}

// Progress returns the state of the current or last bulk import.
func (o *Orchestrator) Progress() BulkProgress {
	var progress BulkProgress
	o.do(func() {
		progress = o.bulk
	})
	return progress
}

// duplicateRefusal builds the cycle-vs-exact refusal error. Actor-only.
func (o *Orchestrator) duplicateRefusal(record *models.WorkbenchRecord) error {
	if record.DuplicateKind == models.DuplicateCycle {
		return fmt.Errorf("record %s looks like a new cycle of an existing event; confirm with force to import it", record.Event.TempID)
	}
	return fmt.Errorf("record %s duplicates an existing event; use force to import anyway", record.Event.TempID)
}

// classifyKind mirrors the resolver's exact-vs-cycle rule for collisions
// reported by the store at commit time.
func (o *Orchestrator) classifyKind(existing *models.StoredEventSummary, candidateStart *time.Time) models.DuplicateKind {
	if candidateStart == nil || existing.StartDate == nil {
		return models.DuplicateExact
	}
	if services.SameCalendarDay(*candidateStart, *existing.StartDate, o.loc) {
		return models.DuplicateExact
	}
	return models.DuplicateCycle
}

// publishSnapshot fires the post-commit snapshot upload without waiting.
func (o *Orchestrator) publishSnapshot() {
	if o.snapshots == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()
		if err := o.snapshots.PublishLatest(ctx); err != nil {
			log.Printf("[IMPORT] Snapshot publish failed: %v", err)
		}
	}()
}

// BuildStoredEvent converts an accepted candidate into its persisted form.
// The source page URL stands in when the candidate has no URL of its own.
func BuildStoredEvent(event models.CandidateEvent, sourceURL string) *models.StoredEvent {
	website := event.Website
	if website == "" {
		website = sourceURL
	}

	return &models.StoredEvent{
		ID:                models.GenerateEventID(event.Name, event.StartDate, website),
		Name:              event.Name,
		Description:       event.Description,
		Website:           website,
		NormalizedWebsite: services.NormalizeURL(website),
		Price:             event.Price,
		StartDate:         event.StartDate,
		EndDate:           event.EndDate,
		Location:          event.Location,
		EventType:         event.EventType,
		Region:            event.Region,
		IsFeatured:        event.IsFeatured,
		Confidence:        event.Confidence,
		ImageURL:          event.ImageURL,
		SourceURL:         sourceURL,
	}
}
