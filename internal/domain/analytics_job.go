package domain

import "time"

// AnalyticsStatus represents the lifecycle state of a bulk analytics job.
type AnalyticsStatus string

const (
	AnalyticsStatusPending    AnalyticsStatus = "PENDING"
	AnalyticsStatusProcessing AnalyticsStatus = "PROCESSING"
	AnalyticsStatusCompleted  AnalyticsStatus = "COMPLETED"
	AnalyticsStatusFailed     AnalyticsStatus = "FAILED"
	AnalyticsStatusCancelled  AnalyticsStatus = "CANCELLED"
)

// Terminal reports whether no further transitions are possible.
func (s AnalyticsStatus) Terminal() bool {
	return s == AnalyticsStatusCompleted || s == AnalyticsStatusFailed || s == AnalyticsStatusCancelled
}

// AnalyticsJob tracks a bulk guideline-alignment run over a project's
// records. Single-flight per project, enforced independently of ingest jobs.
type AnalyticsJob struct {
	ID             string          `gorm:"type:text;primaryKey" json:"id"`
	ProjectID      string          `gorm:"type:text;not null;index" json:"project_id"`
	Status         AnalyticsStatus `gorm:"type:text;default:PENDING;index" json:"status"`
	TotalRecords   int             `gorm:"default:0" json:"total_records"`
	ProcessedCount int             `gorm:"default:0" json:"processed_count"`
	Error          string          `gorm:"type:text" json:"error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// TableName returns the database table name for AnalyticsJob.
func (AnalyticsJob) TableName() string {
	return "analytics_jobs"
}
