package domain

import "errors"

// Error kinds surfaced across the store and service boundaries.
var (
	// ErrNotFound indicates a missing project, record, or job.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates a missing required id or payload.
	ErrValidation = errors.New("validation failed")

	// ErrNoEmbedding indicates a record that has not been vectorized and
	// therefore cannot participate in similarity search.
	ErrNoEmbedding = errors.New("record has no embedding")
)
