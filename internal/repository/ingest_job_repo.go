package repository

import (
	"context"
	"errors"

	"github.com/marcusb/corpusd/internal/domain"
	"gorm.io/gorm"
)

// IngestJobRepository handles ingest job persistence.
type IngestJobRepository struct {
	db *gorm.DB
}

// NewIngestJobRepository creates a new IngestJobRepository.
func NewIngestJobRepository(db *gorm.DB) *IngestJobRepository {
	return &IngestJobRepository{db: db}
}

// Create inserts a new ingest job.
func (r *IngestJobRepository) Create(ctx context.Context, job *domain.IngestJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// GetByID retrieves an ingest job by its ID.
func (r *IngestJobRepository) GetByID(ctx context.Context, id string) (*domain.IngestJob, error) {
	var job domain.IngestJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

// GetStatus reads only the status column; used by the cooperative
// cancellation checks at chunk boundaries.
func (r *IngestJobRepository) GetStatus(ctx context.Context, id string) (domain.IngestStatus, error) {
	var job domain.IngestJob
	if err := r.db.WithContext(ctx).Select("status").First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", domain.ErrNotFound
		}
		return "", err
	}
	return job.Status, nil
}

// SetStatus transitions the job to the given status.
func (r *IngestJobRepository) SetStatus(ctx context.Context, id string, status domain.IngestStatus) error {
	return r.db.WithContext(ctx).Model(&domain.IngestJob{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// MarkFailed transitions the job to FAILED with a human-readable error.
func (r *IngestJobRepository) MarkFailed(ctx context.Context, id, message string) error {
	return r.db.WithContext(ctx).Model(&domain.IngestJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status": domain.IngestStatusFailed,
			"error":  message,
		}).Error
}

// UpdateProgress persists the running counters after a chunk completes.
func (r *IngestJobRepository) UpdateProgress(ctx context.Context, id string, saved, skipped int, details domain.JSONMap) error {
	return r.db.WithContext(ctx).Model(&domain.IngestJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"saved_count":     saved,
			"skipped_count":   skipped,
			"skipped_details": details,
		}).Error
}

// ResetForVectorizing rewrites the counters for the vectorization phase: the
// total becomes the number of records needing embeddings and the saved count
// restarts at zero.
func (r *IngestJobRepository) ResetForVectorizing(ctx context.Context, id string, total int) error {
	return r.db.WithContext(ctx).Model(&domain.IngestJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        domain.IngestStatusVectorizing,
			"total_records": total,
			"saved_count":   0,
		}).Error
}

// UpdateSavedCount persists vectorization progress after each batch.
func (r *IngestJobRepository) UpdateSavedCount(ctx context.Context, id string, saved int) error {
	return r.db.WithContext(ctx).Model(&domain.IngestJob{}).
		Where("id = ?", id).
		Update("saved_count", saved).Error
}

// ActiveForProject returns the job currently holding the project's
// single-flight slot (PROCESSING or VECTORIZING), or nil.
func (r *IngestJobRepository) ActiveForProject(ctx context.Context, projectID string) (*domain.IngestJob, error) {
	var job domain.IngestJob
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND status IN ?", projectID,
			[]domain.IngestStatus{domain.IngestStatusProcessing, domain.IngestStatusVectorizing}).
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// FirstPending returns the oldest PENDING job for the project, or nil.
func (r *IngestJobRepository) FirstPending(ctx context.Context, projectID string) (*domain.IngestJob, error) {
	var job domain.IngestJob
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND status = ?", projectID, domain.IngestStatusPending).
		Order("created_at ASC").
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ListByProject returns all ingest jobs of a project, newest first.
func (r *IngestJobRepository) ListByProject(ctx context.Context, projectID string) ([]domain.IngestJob, error) {
	var jobs []domain.IngestJob
	if err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// Delete removes an ingest job by ID.
func (r *IngestJobRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&domain.IngestJob{}, "id = ?", id).Error
}
