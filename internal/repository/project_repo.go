package repository

import (
	"context"
	"errors"

	"github.com/marcusb/corpusd/internal/domain"
	"gorm.io/gorm"
)

// ProjectRepository handles project persistence.
type ProjectRepository struct {
	db *gorm.DB
}

// NewProjectRepository creates a new ProjectRepository.
func NewProjectRepository(db *gorm.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// Create inserts a new project.
func (r *ProjectRepository) Create(ctx context.Context, project *domain.Project) error {
	return r.db.WithContext(ctx).Create(project).Error
}

// GetByID retrieves a project by its ID.
func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*domain.Project, error) {
	var project domain.Project
	if err := r.db.WithContext(ctx).First(&project, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &project, nil
}

// List returns all projects, newest first.
func (r *ProjectRepository) List(ctx context.Context) ([]domain.Project, error) {
	var projects []domain.Project
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&projects).Error; err != nil {
		return nil, err
	}
	return projects, nil
}

// SetGuidelines replaces the project's guidelines document.
func (r *ProjectRepository) SetGuidelines(ctx context.Context, id string, doc []byte) error {
	return r.db.WithContext(ctx).Model(&domain.Project{}).
		Where("id = ?", id).
		Update("guidelines", doc).Error
}

// Delete removes a project and cascades to its records and jobs.
func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("project_id = ?", id).Delete(&domain.DataRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("project_id = ?", id).Delete(&domain.IngestJob{}).Error; err != nil {
			return err
		}
		if err := tx.Where("project_id = ?", id).Delete(&domain.AnalyticsJob{}).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.Project{}, "id = ?", id).Error
	})
}
