package domain

import "time"

// Project owns a corpus of data records plus an optional guidelines document
// used by the alignment engine. Deleting a project cascades to its records
// and jobs at the repository level.
type Project struct {
	ID         string `gorm:"type:text;primaryKey" json:"id"`
	Name       string `gorm:"type:text;not null" json:"name"`
	Guidelines []byte `gorm:"type:blob" json:"-"`
	// Trend-analysis verdicts cached per corpus; written by external
	// analysis tooling, stored and served opaquely here.
	LastTaskAnalysis     *string   `gorm:"type:text" json:"last_task_analysis,omitempty"`
	LastFeedbackAnalysis *string   `gorm:"type:text" json:"last_feedback_analysis,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// TableName returns the database table name for Project.
func (Project) TableName() string {
	return "projects"
}

// HasGuidelines reports whether a guidelines document has been uploaded.
func (p *Project) HasGuidelines() bool {
	return len(p.Guidelines) > 0
}
