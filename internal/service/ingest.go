package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/marcusb/corpusd/internal/domain"
	"github.com/marcusb/corpusd/internal/logger"
)

// SkipReasonKeyword tallies records filtered out by the caller's keywords.
const SkipReasonKeyword = "Keyword Mismatch"

// Failure messages surfaced on jobs orphaned by a lost payload. Payloads are
// cached in memory only, so a restart makes the affected jobs unrecoverable.
const (
	errInterrupted = "Job interrupted by server restart."
	errPayloadLost = "Job payload lost."
)

// IngestOptions describes how a submitted payload becomes records.
type IngestOptions struct {
	ProjectID          string            `json:"project_id"`
	Source             string            `json:"source"`
	Type               domain.RecordType `json:"type"`
	FilterKeywords     []string          `json:"filter_keywords,omitempty"`
	GenerateEmbeddings bool              `json:"generate_embeddings,omitempty"`
}

// IngestConfig bounds the storage phase of the pipeline.
type IngestConfig struct {
	ChunkSize int // records persisted per batch
}

// IngestService owns the ingest job queue: payload submission, the
// per-project single-flight drain loop, cooperative cancellation and job
// bookkeeping. Within one project jobs run strictly one at a time; across
// projects they are fully concurrent.
type IngestService struct {
	records    RecordStore
	jobs       IngestJobStore
	filter     *DuplicateFilter
	vectorizer *Vectorizer
	cache      *PayloadCache
	http       *resty.Client
	chunkSize  int

	mu       sync.Mutex
	draining map[string]bool // project id -> drain goroutine running
}

// NewIngestService creates a new IngestService.
// Parameters:
//   - records: record persistence.
//   - jobs: ingest job persistence.
//   - filter: duplicate filter.
//   - vectorizer: embedding phase worker.
//   - cache: in-memory payload cache shared with nothing else.
//   - httpClient: client for fetching remote API payloads.
//   - cfg: chunking bounds; zero values fall back to safe defaults.
// Returns:
//   - *IngestService: initialized service.
func NewIngestService(
	records RecordStore,
	jobs IngestJobStore,
	filter *DuplicateFilter,
	vectorizer *Vectorizer,
	cache *PayloadCache,
	httpClient *resty.Client,
	cfg IngestConfig,
) *IngestService {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 100
	}
	return &IngestService{
		records:    records,
		jobs:       jobs,
		filter:     filter,
		vectorizer: vectorizer,
		cache:      cache,
		http:       httpClient,
		chunkSize:  cfg.ChunkSize,
		draining:   make(map[string]bool),
	}
}

// Submit registers a payload for asynchronous ingestion and returns the job
// id immediately. The payload is parsed and stored by the project's drain
// loop; callers observe progress by polling Status.
func (s *IngestService) Submit(ctx context.Context, kind IngestKind, payload string, opts IngestOptions) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: unknown ingest kind %q", domain.ErrValidation, kind)
	}
	if opts.ProjectID == "" {
		return "", fmt.Errorf("%w: project id is required", domain.ErrValidation)
	}
	if !opts.Type.Valid() {
		return "", fmt.Errorf("%w: unknown record type %q", domain.ErrValidation, opts.Type)
	}
	if strings.TrimSpace(payload) == "" {
		return "", fmt.Errorf("%w: payload is empty", domain.ErrValidation)
	}

	job := &domain.IngestJob{
		ID:        uuid.NewString(),
		ProjectID: opts.ProjectID,
		Type:      opts.Type,
		Status:    domain.IngestStatusPending,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return "", fmt.Errorf("failed to create ingest job: %w", err)
	}

	s.cache.Put(job.ID, CachedPayload{Kind: kind, Payload: payload, Options: opts})
	s.kickDrain(ctx, opts.ProjectID)

	return job.ID, nil
}

// kickDrain starts the drain loop for a project unless one is already
// running. The drain goroutine inherits the request's logger fields but not
// its deadline.
func (s *IngestService) kickDrain(ctx context.Context, projectID string) {
	s.mu.Lock()
	if s.draining[projectID] {
		s.mu.Unlock()
		return
	}
	s.draining[projectID] = true
	s.mu.Unlock()

	bg := logger.FromContext(ctx).
		WithField(logger.FieldProjectID, projectID).
		WithContext(context.Background())

	go func() {
		for {
			s.drain(bg, projectID)

			s.mu.Lock()
			delete(s.draining, projectID)
			s.mu.Unlock()

			// A submit landing between drain's final empty-queue check and
			// the flag clear above saw the flag still set and skipped its
			// kick. Re-check so that job is not stranded in PENDING.
			next, err := s.jobs.FirstPending(bg, projectID)
			if err != nil {
				logger.CtxError(bg, "failed to re-check pending ingest jobs: %v", err)
				return
			}
			if next == nil {
				return
			}
			s.mu.Lock()
			if s.draining[projectID] {
				// A newer submit reclaimed the slot first; its goroutine
				// owns the queue now.
				s.mu.Unlock()
				return
			}
			s.draining[projectID] = true
			s.mu.Unlock()
		}
	}()
}

// drain promotes and runs PENDING jobs for one project until none remain.
// The single-flight invariant holds because at most one drain goroutine per
// project exists and each job runs to a terminal state before the next is
// promoted.
func (s *IngestService) drain(ctx context.Context, projectID string) {
	for {
		active, err := s.jobs.ActiveForProject(ctx, projectID)
		if err != nil {
			logger.CtxError(ctx, "failed to check active ingest job: %v", err)
			return
		}
		if active != nil {
			if _, ok := s.cache.Get(active.ID); ok {
				// Another drain already owns this job; back off.
				return
			}
			// Orphaned by a restart: its payload is gone for good.
			if err := s.jobs.MarkFailed(ctx, active.ID, errInterrupted); err != nil {
				logger.CtxError(ctx, "failed to fail orphaned job %s: %v", active.ID, err)
				return
			}
			logger.CtxWarn(ctx, "marked orphaned ingest job %s as failed", active.ID)
		}

		next, err := s.jobs.FirstPending(ctx, projectID)
		if err != nil {
			logger.CtxError(ctx, "failed to fetch pending ingest job: %v", err)
			return
		}
		if next == nil {
			return
		}

		jctx := logger.WithField(ctx, logger.FieldJobID, next.ID)
		entry, ok := s.cache.Get(next.ID)
		if !ok {
			if err := s.jobs.MarkFailed(jctx, next.ID, errPayloadLost); err != nil {
				logger.CtxError(jctx, "failed to fail payload-less job: %v", err)
				return
			}
			continue
		}

		if err := s.runJob(jctx, next.ID, entry); err != nil {
			logger.CtxError(jctx, "ingest job failed: %v", err)
			if ferr := s.jobs.MarkFailed(jctx, next.ID, err.Error()); ferr != nil {
				logger.CtxError(jctx, "failed to record job failure: %v", ferr)
			}
		}
		s.cache.Delete(next.ID)
	}
}

// runJob drives one job through parsing, storage and the optional embedding
// phase. A returned error means the job must be marked FAILED; records from
// chunks that already committed are kept.
func (s *IngestService) runJob(ctx context.Context, jobID string, entry CachedPayload) error {
	if err := s.jobs.SetStatus(ctx, jobID, domain.IngestStatusProcessing); err != nil {
		return fmt.Errorf("failed to start processing: %w", err)
	}

	records, err := s.parsePayload(ctx, entry)
	if err != nil {
		return err
	}
	logger.CtxInfo(ctx, "parsed %d records from %s payload", len(records), entry.Kind)

	cancelled, err := s.processAndStore(ctx, jobID, records, entry.Options)
	if err != nil {
		return err
	}
	if cancelled {
		logger.CtxInfo(ctx, "ingest job cancelled during storage phase")
		return nil
	}

	if entry.Options.GenerateEmbeddings {
		if err := s.vectorizer.Run(ctx, jobID, entry.Options.ProjectID); err != nil {
			return err
		}
	}

	// The embedding phase may have ended in FAILED or CANCELLED; only a
	// still-active job completes.
	status, err := s.jobs.GetStatus(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to read final job status: %w", err)
	}
	if status.Terminal() {
		return nil
	}
	if err := s.jobs.SetStatus(ctx, jobID, domain.IngestStatusCompleted); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	logger.CtxInfo(ctx, "ingest job completed")
	return nil
}

// parsePayload turns the raw payload into a record sequence. CSV payloads
// are parsed with a header row and tolerant column counts; API payloads are
// URLs returning a JSON array or a single JSON object.
func (s *IngestService) parsePayload(ctx context.Context, entry CachedPayload) ([]interface{}, error) {
	switch entry.Kind {
	case IngestKindCSV:
		return parseCSV(entry.Payload)
	case IngestKindAPI:
		return s.fetchRemote(ctx, entry.Payload)
	default:
		return nil, fmt.Errorf("unknown ingest kind %q", entry.Kind)
	}
}

func parseCSV(payload string) ([]interface{}, error) {
	reader := csv.NewReader(strings.NewReader(payload))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV payload: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("CSV payload has no data rows")
	}

	header := rows[0]
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
	}

	records := make([]interface{}, 0, len(rows)-1)
	for _, row := range rows[1:] {
		record := make(map[string]interface{}, len(header))
		empty := true
		for i, cell := range row {
			if i >= len(header) || header[i] == "" {
				continue
			}
			cell = strings.TrimSpace(cell)
			record[header[i]] = cell
			if cell != "" {
				empty = false
			}
		}
		if empty {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

func (s *IngestService) fetchRemote(ctx context.Context, url string) ([]interface{}, error) {
	resp, err := s.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch API payload: %w", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, fmt.Errorf("API payload fetch returned status %d", resp.StatusCode())
	}

	body := resp.Body()
	var asList []interface{}
	if err := json.Unmarshal(body, &asList); err == nil {
		return asList, nil
	}
	var asObject map[string]interface{}
	if err := json.Unmarshal(body, &asObject); err != nil {
		return nil, fmt.Errorf("failed to decode API payload as JSON: %w", err)
	}
	return []interface{}{asObject}, nil
}

// processAndStore runs the storage phase: chunks of bounded size go through
// extraction, keyword filtering and the duplicate filter, survivors are
// persisted in one batch, and the job counters update after every chunk.
// Cancellation is checked once per chunk, so at most one extra chunk
// commits after a cancel request. Failures abort remaining chunks but keep
// already-committed records.
func (s *IngestService) processAndStore(ctx context.Context, jobID string, records []interface{}, opts IngestOptions) (cancelled bool, err error) {
	saved := 0
	skipped := 0
	details := domain.JSONMap{}

	for start := 0; start < len(records); start += s.chunkSize {
		end := start + s.chunkSize
		if end > len(records) {
			end = len(records)
		}
		chunk := records[start:end]

		status, err := s.jobs.GetStatus(ctx, jobID)
		if err != nil {
			return false, fmt.Errorf("failed to check job status: %w", err)
		}
		if status == domain.IngestStatusCancelled {
			return true, nil
		}

		var candidates []Candidate
		for _, raw := range chunk {
			content := ExtractContent(raw)
			category := ExtractCategory(raw)

			if len(opts.FilterKeywords) > 0 && !matchesKeywords(content, opts.FilterKeywords) {
				skipped++
				bumpReason(details, SkipReasonKeyword)
				continue
			}
			candidates = append(candidates, Candidate{Raw: raw, Content: content, Category: category})
		}

		unique, duplicates, err := s.filter.Partition(ctx, opts.ProjectID, opts.Type, candidates)
		if err != nil {
			return false, err
		}
		skipped += duplicates
		for i := 0; i < duplicates; i++ {
			bumpReason(details, SkipReasonDuplicate)
		}

		batch := make([]*domain.DataRecord, 0, len(unique))
		for _, c := range unique {
			metadata := asRecord(c.Raw)
			metadata["ingest_job_id"] = jobID
			batch = append(batch, &domain.DataRecord{
				ID:        uuid.NewString(),
				ProjectID: opts.ProjectID,
				Type:      opts.Type,
				Category:  c.Category,
				Source:    opts.Source,
				Content:   c.Content,
				Metadata:  metadata,
				Embedding: domain.Vector{},
			})
		}
		if err := s.records.CreateBatch(ctx, batch); err != nil {
			return false, fmt.Errorf("failed to store record chunk: %w", err)
		}
		saved += len(batch)

		if err := s.jobs.UpdateProgress(ctx, jobID, saved, skipped, details); err != nil {
			return false, fmt.Errorf("failed to update job progress: %w", err)
		}
	}

	logger.CtxInfo(ctx, "storage phase done: %d saved, %d skipped", saved, skipped)
	return false, nil
}

func matchesKeywords(content string, keywords []string) bool {
	lower := strings.ToLower(content)
	for _, k := range keywords {
		if strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

func bumpReason(details domain.JSONMap, reason string) {
	switch v := details[reason].(type) {
	case int:
		details[reason] = v + 1
	case float64:
		details[reason] = v + 1
	default:
		details[reason] = 1
	}
}

// Cancel requests cooperative cancellation of a job. The running worker
// observes the flag at the next chunk or batch boundary. Cancelling a
// terminal job is a no-op.
func (s *IngestService) Cancel(ctx context.Context, jobID string) error {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return nil
	}
	if err := s.jobs.SetStatus(ctx, jobID, domain.IngestStatusCancelled); err != nil {
		return err
	}
	// A job cancelled before promotion is terminal now and the drain loop
	// only promotes PENDING jobs, so nothing else would ever release its
	// payload.
	if job.Status == domain.IngestStatusPending {
		s.cache.Delete(jobID)
	}
	return nil
}

// Status returns the current state of a job.
func (s *IngestService) Status(ctx context.Context, jobID string) (*domain.IngestJob, error) {
	return s.jobs.GetByID(ctx, jobID)
}

// List returns all ingest jobs of a project, newest first.
func (s *IngestService) List(ctx context.Context, projectID string) ([]domain.IngestJob, error) {
	if projectID == "" {
		return nil, fmt.Errorf("%w: project id is required", domain.ErrValidation)
	}
	return s.jobs.ListByProject(ctx, projectID)
}

// Delete removes a job and every record it produced. Active jobs cannot be
// deleted; cancel them first.
func (s *IngestService) Delete(ctx context.Context, jobID string) error {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Active() {
		return fmt.Errorf("%w: job %s is still running", domain.ErrValidation, jobID)
	}
	if err := s.records.DeleteByIngestJob(ctx, jobID); err != nil {
		return fmt.Errorf("failed to delete ingested records: %w", err)
	}
	return s.jobs.Delete(ctx, jobID)
}
