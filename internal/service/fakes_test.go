package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/marcusb/corpusd/internal/domain"
)

// sleepBriefly yields to background workers while a test polls for state.
func sleepBriefly() {
	time.Sleep(5 * time.Millisecond)
}

// fakeRecordStore is an in-memory RecordStore for tests.
type fakeRecordStore struct {
	mu      sync.Mutex
	records map[string]*domain.DataRecord
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{records: make(map[string]*domain.DataRecord)}
}

func (f *fakeRecordStore) add(records ...*domain.DataRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range records {
		copied := *r
		f.records[r.ID] = &copied
	}
}

func (f *fakeRecordStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func (f *fakeRecordStore) CreateBatch(_ context.Context, records []*domain.DataRecord) error {
	f.add(records...)
	return nil
}

func (f *fakeRecordStore) GetByID(_ context.Context, id string) (*domain.DataRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *r
	return &copied, nil
}

func (f *fakeRecordStore) GetByIDs(_ context.Context, ids []string) ([]domain.DataRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.DataRecord
	for _, id := range ids {
		if r, ok := f.records[id]; ok {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeRecordStore) List(_ context.Context, projectID string, recordType domain.RecordType, category domain.RecordCategory, limit, offset int) ([]domain.DataRecord, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []domain.DataRecord
	for _, r := range f.records {
		if projectID != "" && r.ProjectID != projectID {
			continue
		}
		if recordType != "" && r.Type != recordType {
			continue
		}
		if category != "" && r.Category != category {
			continue
		}
		all = append(all, *r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := int64(len(all))
	if offset > len(all) {
		offset = len(all)
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

func (f *fakeRecordStore) ExistsByExternalID(_ context.Context, projectID string, recordType domain.RecordType, externalID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.ProjectID != projectID || r.Type != recordType {
			continue
		}
		for _, key := range externalIDFields {
			if v, ok := stringValue(r.Metadata, key); ok && v == externalID {
				return true, nil
			}
		}
	}
	return false, nil
}

func (f *fakeRecordStore) ListEmbeddings(_ context.Context, projectID string, recordType domain.RecordType, excludeID string) ([]domain.RecordEmbedding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.RecordEmbedding
	for _, r := range f.records {
		if r.ProjectID != projectID || r.Type != recordType || r.ID == excludeID || len(r.Embedding) == 0 {
			continue
		}
		out = append(out, domain.RecordEmbedding{ID: r.ID, Embedding: r.Embedding})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRecordStore) ListMissingEmbeddings(_ context.Context, projectID string, limit int, excludeIDs []string) ([]domain.DataRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	excluded := make(map[string]struct{}, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = struct{}{}
	}
	var out []domain.DataRecord
	for _, r := range f.records {
		if r.ProjectID != projectID || len(r.Embedding) > 0 {
			continue
		}
		if _, ok := excluded[r.ID]; ok {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRecordStore) CountMissingEmbeddings(ctx context.Context, projectID string) (int64, error) {
	records, err := f.ListMissingEmbeddings(ctx, projectID, 0, nil)
	return int64(len(records)), err
}

func (f *fakeRecordStore) SaveEmbeddings(_ context.Context, updates []domain.EmbeddingUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range updates {
		if r, ok := f.records[u.ID]; ok {
			r.Embedding = u.Embedding
		}
	}
	return nil
}

func (f *fakeRecordStore) ListMissingAlignment(_ context.Context, projectID string) ([]domain.DataRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.DataRecord
	for _, r := range f.records {
		if r.ProjectID == projectID && r.AlignmentAnalysis == nil {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRecordStore) CountMissingAlignment(ctx context.Context, projectID string) (int64, error) {
	records, err := f.ListMissingAlignment(ctx, projectID)
	return int64(len(records)), err
}

func (f *fakeRecordStore) SaveAlignment(_ context.Context, id, verdict string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.records[id]; ok {
		r.AlignmentAnalysis = &verdict
	}
	return nil
}

func (f *fakeRecordStore) SaveSimilarity(_ context.Context, id, snapshot string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.records[id]; ok {
		r.SimilarityAnalysis = &snapshot
	}
	return nil
}

func (f *fakeRecordStore) DeleteByIngestJob(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, r := range f.records {
		if v, ok := stringValue(r.Metadata, "ingest_job_id"); ok && v == jobID {
			delete(f.records, id)
		}
	}
	return nil
}

// fakeIngestJobStore is an in-memory IngestJobStore. The statusHook, when
// set, overrides GetStatus results per call and drives cancellation tests.
// The pendingHook observes every FirstPending result outside the store lock,
// so it may block to hold a drain loop at a chosen point.
type fakeIngestJobStore struct {
	mu           sync.Mutex
	jobs         map[string]*domain.IngestJob
	statusChecks int
	statusHook   func(check int, current domain.IngestStatus) domain.IngestStatus
	pendingHook  func(next *domain.IngestJob)
}

func newFakeIngestJobStore() *fakeIngestJobStore {
	return &fakeIngestJobStore{jobs: make(map[string]*domain.IngestJob)}
}

func (f *fakeIngestJobStore) Create(_ context.Context, job *domain.IngestJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *job
	f.jobs[job.ID] = &copied
	return nil
}

func (f *fakeIngestJobStore) GetByID(_ context.Context, id string) (*domain.IngestJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (f *fakeIngestJobStore) GetStatus(_ context.Context, id string) (domain.IngestStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return "", domain.ErrNotFound
	}
	f.statusChecks++
	if f.statusHook != nil {
		status := f.statusHook(f.statusChecks, job.Status)
		job.Status = status
		return status, nil
	}
	return job.Status, nil
}

func (f *fakeIngestJobStore) SetStatus(_ context.Context, id string, status domain.IngestStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	job.Status = status
	return nil
}

func (f *fakeIngestJobStore) MarkFailed(_ context.Context, id, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	job.Status = domain.IngestStatusFailed
	job.Error = message
	return nil
}

func (f *fakeIngestJobStore) UpdateProgress(_ context.Context, id string, saved, skipped int, details domain.JSONMap) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	job.SavedCount = saved
	job.SkippedCount = skipped
	copied := domain.JSONMap{}
	for k, v := range details {
		copied[k] = v
	}
	job.SkippedDetails = copied
	return nil
}

func (f *fakeIngestJobStore) ResetForVectorizing(_ context.Context, id string, total int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	job.Status = domain.IngestStatusVectorizing
	job.TotalRecords = total
	job.SavedCount = 0
	return nil
}

func (f *fakeIngestJobStore) UpdateSavedCount(_ context.Context, id string, saved int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	job.SavedCount = saved
	return nil
}

func (f *fakeIngestJobStore) ActiveForProject(_ context.Context, projectID string) (*domain.IngestJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, job := range f.jobs {
		if job.ProjectID == projectID && job.Status.Active() {
			copied := *job
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeIngestJobStore) FirstPending(_ context.Context, projectID string) (*domain.IngestJob, error) {
	f.mu.Lock()
	var pending []*domain.IngestJob
	for _, job := range f.jobs {
		if job.ProjectID == projectID && job.Status == domain.IngestStatusPending {
			pending = append(pending, job)
		}
	}
	var next *domain.IngestJob
	if len(pending) > 0 {
		sort.Slice(pending, func(i, j int) bool {
			if pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
				return pending[i].ID < pending[j].ID
			}
			return pending[i].CreatedAt.Before(pending[j].CreatedAt)
		})
		copied := *pending[0]
		next = &copied
	}
	hook := f.pendingHook
	f.mu.Unlock()

	if hook != nil {
		hook(next)
	}
	return next, nil
}

func (f *fakeIngestJobStore) ListByProject(_ context.Context, projectID string) ([]domain.IngestJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.IngestJob
	for _, job := range f.jobs {
		if job.ProjectID == projectID {
			out = append(out, *job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeIngestJobStore) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.jobs, id)
	return nil
}

// fakeAnalyticsJobStore is an in-memory AnalyticsJobStore.
type fakeAnalyticsJobStore struct {
	mu         sync.Mutex
	jobs       map[string]*domain.AnalyticsJob
	statusHook func(check int, current domain.AnalyticsStatus) domain.AnalyticsStatus
	checks     int
}

func newFakeAnalyticsJobStore() *fakeAnalyticsJobStore {
	return &fakeAnalyticsJobStore{jobs: make(map[string]*domain.AnalyticsJob)}
}

func (f *fakeAnalyticsJobStore) Create(_ context.Context, job *domain.AnalyticsJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *job
	f.jobs[job.ID] = &copied
	return nil
}

func (f *fakeAnalyticsJobStore) GetByID(_ context.Context, id string) (*domain.AnalyticsJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (f *fakeAnalyticsJobStore) GetStatus(_ context.Context, id string) (domain.AnalyticsStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return "", domain.ErrNotFound
	}
	f.checks++
	if f.statusHook != nil {
		job.Status = f.statusHook(f.checks, job.Status)
	}
	return job.Status, nil
}

func (f *fakeAnalyticsJobStore) SetStatus(_ context.Context, id string, status domain.AnalyticsStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	job.Status = status
	return nil
}

func (f *fakeAnalyticsJobStore) MarkFailed(_ context.Context, id, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	job.Status = domain.AnalyticsStatusFailed
	job.Error = message
	return nil
}

func (f *fakeAnalyticsJobStore) UpdateProcessed(_ context.Context, id string, processed int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	job.ProcessedCount = processed
	return nil
}

func (f *fakeAnalyticsJobStore) ActiveForProject(_ context.Context, projectID string) (*domain.AnalyticsJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, job := range f.jobs {
		if job.ProjectID == projectID && job.Status == domain.AnalyticsStatusProcessing {
			copied := *job
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeAnalyticsJobStore) ListByProject(_ context.Context, projectID string) ([]domain.AnalyticsJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.AnalyticsJob
	for _, job := range f.jobs {
		if job.ProjectID == projectID {
			out = append(out, *job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// fakeProjectStore serves a fixed set of projects.
type fakeProjectStore struct {
	projects map[string]*domain.Project
}

func (f *fakeProjectStore) GetByID(_ context.Context, id string) (*domain.Project, error) {
	project, ok := f.projects[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *project
	return &copied, nil
}

// fakeEmbedder replays a queue of canned batch responses.
type fakeEmbedder struct {
	mu        sync.Mutex
	responses []embedResponse
	calls     int
}

type embedResponse struct {
	vectors func(texts []string) []domain.Vector
	err     error
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([]domain.Vector, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.responses) == 0 {
		return nil, fmt.Errorf("unexpected embedding call %d", f.calls)
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	if resp.err != nil {
		return nil, resp.err
	}
	return resp.vectors(texts), nil
}

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// emptyVectors produces a fully failed batch.
func emptyVectors(texts []string) []domain.Vector {
	return make([]domain.Vector, len(texts))
}

// fakeCompleter delegates to a configurable function.
type fakeCompleter struct {
	mu       sync.Mutex
	complete func(prompt, systemPrompt string) (string, error)
	calls    int
}

func (f *fakeCompleter) Complete(_ context.Context, prompt, systemPrompt string) (string, error) {
	f.mu.Lock()
	f.calls++
	fn := f.complete
	f.mu.Unlock()
	if fn == nil {
		return "", fmt.Errorf("no completion configured")
	}
	return fn(prompt, systemPrompt)
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeExtractor returns fixed text for any document.
type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) ExtractText(_ []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}
