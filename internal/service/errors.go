// Package service contains the application services that sit between the
// HTTP handlers and the stores.
package service

import "errors"

// Common service errors.
var (
	// ErrEmptyBatch is returned when a batch operation receives no items.
	ErrEmptyBatch = errors.New("batch cannot be empty")

	// ErrBatchTooLarge is returned when a batch exceeds MaxBatchSize.
	ErrBatchTooLarge = errors.New("batch exceeds maximum size")
)

// MaxBatchSize caps one transactional batch operation.
const MaxBatchSize = 100
