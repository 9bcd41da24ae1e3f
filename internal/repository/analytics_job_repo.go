package repository

import (
	"context"
	"errors"

	"github.com/marcusb/corpusd/internal/domain"
	"gorm.io/gorm"
)

// AnalyticsJobRepository handles bulk alignment job persistence.
type AnalyticsJobRepository struct {
	db *gorm.DB
}

// NewAnalyticsJobRepository creates a new AnalyticsJobRepository.
func NewAnalyticsJobRepository(db *gorm.DB) *AnalyticsJobRepository {
	return &AnalyticsJobRepository{db: db}
}

// Create inserts a new analytics job.
func (r *AnalyticsJobRepository) Create(ctx context.Context, job *domain.AnalyticsJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// GetByID retrieves an analytics job by its ID.
func (r *AnalyticsJobRepository) GetByID(ctx context.Context, id string) (*domain.AnalyticsJob, error) {
	var job domain.AnalyticsJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

// GetStatus reads only the status column for cancellation polling.
func (r *AnalyticsJobRepository) GetStatus(ctx context.Context, id string) (domain.AnalyticsStatus, error) {
	var job domain.AnalyticsJob
	if err := r.db.WithContext(ctx).Select("status").First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", domain.ErrNotFound
		}
		return "", err
	}
	return job.Status, nil
}

// SetStatus transitions the job to the given status.
func (r *AnalyticsJobRepository) SetStatus(ctx context.Context, id string, status domain.AnalyticsStatus) error {
	return r.db.WithContext(ctx).Model(&domain.AnalyticsJob{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// MarkFailed transitions the job to FAILED with a human-readable error.
func (r *AnalyticsJobRepository) MarkFailed(ctx context.Context, id, message string) error {
	return r.db.WithContext(ctx).Model(&domain.AnalyticsJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status": domain.AnalyticsStatusFailed,
			"error":  message,
		}).Error
}

// UpdateProcessed persists per-record progress.
func (r *AnalyticsJobRepository) UpdateProcessed(ctx context.Context, id string, processed int) error {
	return r.db.WithContext(ctx).Model(&domain.AnalyticsJob{}).
		Where("id = ?", id).
		Update("processed_count", processed).Error
}

// ActiveForProject returns the PROCESSING job for the project, or nil.
func (r *AnalyticsJobRepository) ActiveForProject(ctx context.Context, projectID string) (*domain.AnalyticsJob, error) {
	var job domain.AnalyticsJob
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND status = ?", projectID, domain.AnalyticsStatusProcessing).
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ListByProject returns all analytics jobs of a project, newest first.
func (r *AnalyticsJobRepository) ListByProject(ctx context.Context, projectID string) ([]domain.AnalyticsJob, error) {
	var jobs []domain.AnalyticsJob
	if err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}
