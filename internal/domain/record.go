package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// RecordType distinguishes the two corpora a project holds.
type RecordType string

const (
	RecordTypeTask     RecordType = "TASK"
	RecordTypeFeedback RecordType = "FEEDBACK"
)

// Valid reports whether t is one of the known record types.
func (t RecordType) Valid() bool {
	return t == RecordTypeTask || t == RecordTypeFeedback
}

// RecordCategory is the quality bucket resolved during ingestion.
// Empty string means no category could be resolved.
type RecordCategory string

const (
	CategoryTop10    RecordCategory = "TOP_10"
	CategoryBottom10 RecordCategory = "BOTTOM_10"
	CategoryNone     RecordCategory = ""
)

// Vector is an embedding stored as a JSON array in a text column.
// An empty vector means the record has not been vectorized yet.
type Vector []float32

// Value implements driver.Valuer.
func (v Vector) Value() (driver.Value, error) {
	if v == nil {
		v = Vector{}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal vector: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (v *Vector) Scan(value interface{}) error {
	if value == nil {
		*v = Vector{}
		return nil
	}
	var data []byte
	switch raw := value.(type) {
	case []byte:
		data = raw
	case string:
		data = []byte(raw)
	default:
		return fmt.Errorf("unsupported vector column type %T", value)
	}
	if len(data) == 0 {
		*v = Vector{}
		return nil
	}
	return json.Unmarshal(data, v)
}

// JSONMap is a schemaless JSON document column (record metadata, skip tallies).
type JSONMap map[string]interface{}

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		m = JSONMap{}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON map: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	var data []byte
	switch raw := value.(type) {
	case []byte:
		data = raw
	case string:
		data = []byte(raw)
	default:
		return fmt.Errorf("unsupported JSON column type %T", value)
	}
	if len(data) == 0 {
		*m = JSONMap{}
		return nil
	}
	return json.Unmarshal(data, m)
}

// DataRecord is a single ingested content unit (task or feedback item).
// The embedding is set by the vectorization worker; the analysis fields are
// cached verdicts written by the on-demand scoring paths.
type DataRecord struct {
	ID                 string         `gorm:"type:text;primaryKey" json:"id"`
	ProjectID          string         `gorm:"type:text;not null;index" json:"project_id"`
	Type               RecordType     `gorm:"type:text;not null;index" json:"type"`
	Category           RecordCategory `gorm:"type:text" json:"category,omitempty"`
	Source             string         `gorm:"type:text" json:"source"`
	Content            string         `gorm:"type:text;not null" json:"content"`
	Metadata           JSONMap        `gorm:"type:text" json:"metadata"`
	Embedding          Vector         `gorm:"type:text" json:"embedding,omitempty"`
	AlignmentAnalysis  *string        `gorm:"type:text" json:"alignment_analysis,omitempty"`
	SimilarityAnalysis *string        `gorm:"type:text" json:"similarity_analysis,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// TableName returns the database table name for DataRecord.
func (DataRecord) TableName() string {
	return "data_records"
}

// HasEmbedding reports whether the record has been vectorized.
func (r *DataRecord) HasEmbedding() bool {
	return len(r.Embedding) > 0
}

// RecordEmbedding is the id+embedding projection used by the similarity scan.
type RecordEmbedding struct {
	ID        string `json:"id"`
	Embedding Vector `json:"embedding"`
}

// EmbeddingUpdate pairs a record id with its freshly generated vector.
type EmbeddingUpdate struct {
	ID        string
	Embedding Vector
}
