package service

import (
	"context"

	"github.com/marcusb/corpusd/internal/domain"
)

// RecordStore is the persistence surface the corpus services depend on.
// Implemented by repository.RecordRepository.
type RecordStore interface {
	CreateBatch(ctx context.Context, records []*domain.DataRecord) error
	GetByID(ctx context.Context, id string) (*domain.DataRecord, error)
	GetByIDs(ctx context.Context, ids []string) ([]domain.DataRecord, error)
	List(ctx context.Context, projectID string, recordType domain.RecordType, category domain.RecordCategory, limit, offset int) ([]domain.DataRecord, int64, error)
	ExistsByExternalID(ctx context.Context, projectID string, recordType domain.RecordType, externalID string) (bool, error)
	ListEmbeddings(ctx context.Context, projectID string, recordType domain.RecordType, excludeID string) ([]domain.RecordEmbedding, error)
	ListMissingEmbeddings(ctx context.Context, projectID string, limit int, excludeIDs []string) ([]domain.DataRecord, error)
	CountMissingEmbeddings(ctx context.Context, projectID string) (int64, error)
	SaveEmbeddings(ctx context.Context, updates []domain.EmbeddingUpdate) error
	ListMissingAlignment(ctx context.Context, projectID string) ([]domain.DataRecord, error)
	CountMissingAlignment(ctx context.Context, projectID string) (int64, error)
	SaveAlignment(ctx context.Context, id, verdict string) error
	SaveSimilarity(ctx context.Context, id, snapshot string) error
	DeleteByIngestJob(ctx context.Context, jobID string) error
}

// IngestJobStore is the persistence surface for ingest job lifecycle state.
// Implemented by repository.IngestJobRepository.
type IngestJobStore interface {
	Create(ctx context.Context, job *domain.IngestJob) error
	GetByID(ctx context.Context, id string) (*domain.IngestJob, error)
	GetStatus(ctx context.Context, id string) (domain.IngestStatus, error)
	SetStatus(ctx context.Context, id string, status domain.IngestStatus) error
	MarkFailed(ctx context.Context, id, message string) error
	UpdateProgress(ctx context.Context, id string, saved, skipped int, details domain.JSONMap) error
	ResetForVectorizing(ctx context.Context, id string, total int) error
	UpdateSavedCount(ctx context.Context, id string, saved int) error
	ActiveForProject(ctx context.Context, projectID string) (*domain.IngestJob, error)
	FirstPending(ctx context.Context, projectID string) (*domain.IngestJob, error)
	ListByProject(ctx context.Context, projectID string) ([]domain.IngestJob, error)
	Delete(ctx context.Context, id string) error
}

// AnalyticsJobStore is the persistence surface for bulk alignment jobs.
// Implemented by repository.AnalyticsJobRepository.
type AnalyticsJobStore interface {
	Create(ctx context.Context, job *domain.AnalyticsJob) error
	GetByID(ctx context.Context, id string) (*domain.AnalyticsJob, error)
	GetStatus(ctx context.Context, id string) (domain.AnalyticsStatus, error)
	SetStatus(ctx context.Context, id string, status domain.AnalyticsStatus) error
	MarkFailed(ctx context.Context, id, message string) error
	UpdateProcessed(ctx context.Context, id string, processed int) error
	ActiveForProject(ctx context.Context, projectID string) (*domain.AnalyticsJob, error)
	ListByProject(ctx context.Context, projectID string) ([]domain.AnalyticsJob, error)
}

// ProjectStore is the persistence surface for project lookups.
// Implemented by repository.ProjectRepository.
type ProjectStore interface {
	GetByID(ctx context.Context, id string) (*domain.Project, error)
}

// EmbeddingProvider generates embeddings through the model gateway.
// An empty vector in the result marks a per-item failure; a non-nil error
// marks a whole-batch failure.
type EmbeddingProvider interface {
	EmbedBatch(ctx context.Context, texts []string) ([]domain.Vector, error)
}

// CompletionProvider generates chat completions through the model gateway.
type CompletionProvider interface {
	Complete(ctx context.Context, prompt, systemPrompt string) (string, error)
}

// TextExtractor pulls plain text out of a binary guidelines document.
type TextExtractor interface {
	ExtractText(doc []byte) (string, error)
}
