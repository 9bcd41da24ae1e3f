package domain

import "time"

// IngestStatus represents the lifecycle state of an ingest job.
// Transitions are monotonic (PENDING → PROCESSING → VECTORIZING → COMPLETED,
// FAILED reachable from any non-terminal state) except CANCELLED, which is
// injected externally and honored cooperatively at chunk boundaries.
type IngestStatus string

const (
	IngestStatusPending     IngestStatus = "PENDING"
	IngestStatusProcessing  IngestStatus = "PROCESSING"
	IngestStatusVectorizing IngestStatus = "VECTORIZING"
	IngestStatusCompleted   IngestStatus = "COMPLETED"
	IngestStatusFailed      IngestStatus = "FAILED"
	IngestStatusCancelled   IngestStatus = "CANCELLED"
)

// Terminal reports whether no further transitions are possible.
func (s IngestStatus) Terminal() bool {
	return s == IngestStatusCompleted || s == IngestStatusFailed || s == IngestStatusCancelled
}

// Active reports whether the job currently holds the per-project
// single-flight slot.
func (s IngestStatus) Active() bool {
	return s == IngestStatusProcessing || s == IngestStatusVectorizing
}

// IngestJob tracks one payload submission through the ingestion pipeline.
// At most one job per project may be PROCESSING or VECTORIZING at a time.
type IngestJob struct {
	ID             string       `gorm:"type:text;primaryKey" json:"id"`
	ProjectID      string       `gorm:"type:text;not null;index" json:"project_id"`
	Type           RecordType   `gorm:"type:text;not null" json:"type"`
	Status         IngestStatus `gorm:"type:text;default:PENDING;index" json:"status"`
	TotalRecords   int          `gorm:"default:0" json:"total_records"`
	SavedCount     int          `gorm:"default:0" json:"saved_count"`
	SkippedCount   int          `gorm:"default:0" json:"skipped_count"`
	SkippedDetails JSONMap      `gorm:"type:text" json:"skipped_details"`
	Error          string       `gorm:"type:text" json:"error,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// TableName returns the database table name for IngestJob.
func (IngestJob) TableName() string {
	return "ingest_jobs"
}
