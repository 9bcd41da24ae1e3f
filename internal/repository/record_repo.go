package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/marcusb/corpusd/internal/domain"
	"gorm.io/gorm"
)

// externalIDKeys are the metadata keys an external identifier may hide under.
// The duplicate filter must probe all of them.
var externalIDKeys = []string{"task_id", "id", "uuid", "record_id"}

// missingEmbedding matches records that have not been vectorized yet. The
// embedding column stores a JSON array, so "missing" is NULL or the empty
// array literal.
const missingEmbedding = "(embedding IS NULL OR embedding = '[]')"

// RecordRepository handles data record persistence.
type RecordRepository struct {
	db *gorm.DB
}

// NewRecordRepository creates a new RecordRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *RecordRepository: repository instance bound to db.
func NewRecordRepository(db *gorm.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// CreateBatch inserts a chunk of records in one transaction.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - records: records to persist.
// Returns:
//   - error: non-nil if the batch insert fails; nothing from the batch is kept.
func (r *RecordRepository) CreateBatch(ctx context.Context, records []*domain.DataRecord) error {
	if len(records) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(records).Error
}

// GetByID retrieves a record by its ID.
func (r *RecordRepository) GetByID(ctx context.Context, id string) (*domain.DataRecord, error) {
	var record domain.DataRecord
	if err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

// GetByIDs retrieves records by a list of IDs, in no particular order.
func (r *RecordRepository) GetByIDs(ctx context.Context, ids []string) ([]domain.DataRecord, error) {
	if len(ids) == 0 {
		return []domain.DataRecord{}, nil
	}
	var records []domain.DataRecord
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to get records by IDs: %w", err)
	}
	return records, nil
}

// List retrieves records with optional type/category filters and pagination.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - projectID: owning project; empty means all projects.
//   - recordType: type filter; empty means all types.
//   - category: category filter; empty means all categories.
//   - limit, offset: pagination window.
// Returns:
//   - []domain.DataRecord: matching records, newest first.
//   - int64: total number of matches ignoring pagination.
//   - error: non-nil if the query fails.
func (r *RecordRepository) List(ctx context.Context, projectID string, recordType domain.RecordType, category domain.RecordCategory, limit, offset int) ([]domain.DataRecord, int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.DataRecord{})
	if projectID != "" {
		query = query.Where("project_id = ?", projectID)
	}
	if recordType != "" {
		query = query.Where("type = ?", recordType)
	}
	if category != "" {
		query = query.Where("category = ?", category)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var records []domain.DataRecord
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error; err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// ExistsByExternalID checks whether a record of the same project and type
// already carries the given external identifier under any of the known
// metadata keys. Type scoping is a hard invariant: a TASK and a FEEDBACK row
// may share an external id without being duplicates of each other.
func (r *RecordRepository) ExistsByExternalID(ctx context.Context, projectID string, recordType domain.RecordType, externalID string) (bool, error) {
	query := r.db.WithContext(ctx).Model(&domain.DataRecord{}).
		Where("project_id = ? AND type = ?", projectID, recordType)

	or := r.db.Session(&gorm.Session{NewDB: true})
	for _, key := range externalIDKeys {
		or = or.Or(r.metadataEquals(key), externalID)
	}
	query = query.Where(or)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// metadataEquals builds the dialect-specific JSON path predicate for one
// metadata key.
func (r *RecordRepository) metadataEquals(key string) string {
	if r.db.Dialector.Name() == "postgres" {
		return fmt.Sprintf("metadata::jsonb ->> '%s' = ?", key)
	}
	return fmt.Sprintf("json_extract(metadata, '$.%s') = ?", key)
}

// ListEmbeddings projects id+embedding for every vectorized record of the
// same project and type, excluding the target itself. The projection keeps
// the similarity scan cheap regardless of content size.
func (r *RecordRepository) ListEmbeddings(ctx context.Context, projectID string, recordType domain.RecordType, excludeID string) ([]domain.RecordEmbedding, error) {
	var rows []domain.DataRecord
	if err := r.db.WithContext(ctx).
		Select("id", "embedding").
		Where("project_id = ? AND type = ? AND id <> ?", projectID, recordType, excludeID).
		Where("NOT " + missingEmbedding).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.RecordEmbedding, len(rows))
	for i, row := range rows {
		out[i] = domain.RecordEmbedding{ID: row.ID, Embedding: row.Embedding}
	}
	return out, nil
}

// ListMissingEmbeddings fetches up to limit records that still need
// vectorization, skipping the quarantined ids.
func (r *RecordRepository) ListMissingEmbeddings(ctx context.Context, projectID string, limit int, excludeIDs []string) ([]domain.DataRecord, error) {
	query := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Where(missingEmbedding)
	if len(excludeIDs) > 0 {
		query = query.Where("id NOT IN ?", excludeIDs)
	}
	var records []domain.DataRecord
	if err := query.Order("id ASC").Limit(limit).Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// CountMissingEmbeddings counts records in the project lacking an embedding.
func (r *RecordRepository) CountMissingEmbeddings(ctx context.Context, projectID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.DataRecord{}).
		Where("project_id = ?", projectID).
		Where(missingEmbedding).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// SaveEmbeddings persists a batch of freshly generated vectors in one
// transaction so a partial write cannot leave the batch half-applied.
func (r *RecordRepository) SaveEmbeddings(ctx context.Context, updates []domain.EmbeddingUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, u := range updates {
			if err := tx.Model(&domain.DataRecord{}).
				Where("id = ?", u.ID).
				Update("embedding", u.Embedding).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ListMissingAlignment fetches all records in the project without an
// alignment verdict, newest first.
func (r *RecordRepository) ListMissingAlignment(ctx context.Context, projectID string) ([]domain.DataRecord, error) {
	var records []domain.DataRecord
	if err := r.db.WithContext(ctx).
		Where("project_id = ? AND alignment_analysis IS NULL", projectID).
		Order("created_at DESC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// CountMissingAlignment counts records in the project without an alignment verdict.
func (r *RecordRepository) CountMissingAlignment(ctx context.Context, projectID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.DataRecord{}).
		Where("project_id = ? AND alignment_analysis IS NULL", projectID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// SaveAlignment caches an alignment verdict on the record.
func (r *RecordRepository) SaveAlignment(ctx context.Context, id, verdict string) error {
	return r.db.WithContext(ctx).Model(&domain.DataRecord{}).
		Where("id = ?", id).
		Update("alignment_analysis", verdict).Error
}

// SaveSimilarity caches a ranked-match snapshot on the record.
func (r *RecordRepository) SaveSimilarity(ctx context.Context, id, snapshot string) error {
	return r.db.WithContext(ctx).Model(&domain.DataRecord{}).
		Where("id = ?", id).
		Update("similarity_analysis", snapshot).Error
}

// DeleteByIngestJob removes every record produced by the given ingest job.
func (r *RecordRepository) DeleteByIngestJob(ctx context.Context, jobID string) error {
	return r.db.WithContext(ctx).
		Where(r.metadataEquals("ingest_job_id"), jobID).
		Delete(&domain.DataRecord{}).Error
}
