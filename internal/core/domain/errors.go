package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist. Read
	// paths on the storage engine map it to an empty result; it only
	// escapes on operations where absence is a genuine failure.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotInitialized indicates the storage engine has not completed
	// initialization. Mutating and search calls fail with this error
	// until both backends are ready.
	ErrNotInitialized = errors.New("storage engine not initialized")

	// ErrAlreadyInitialized indicates Initialize was called twice.
	ErrAlreadyInitialized = errors.New("storage engine already initialized")

	// ErrEmbeddingUnavailable indicates the embedding service is not
	// configured. Vector/semantic search is disabled without embeddings.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("store closed")
)

// DimensionError reports a vector whose length does not match the store's
// configured dimension. It is a validation error raised before any I/O.
type DimensionError struct {
	Expected int
	Actual   int
}

// Error implements the error interface.
func (e *DimensionError) Error() string {
	return fmt.Sprintf("invalid vector dimension: expected %d, got %d", e.Expected, e.Actual)
}

// Is makes DimensionError match ErrInvalidInput in errors.Is chains.
func (e *DimensionError) Is(target error) bool {
	return target == ErrInvalidInput
}

// BackendError wraps a backend failure with the failing backend, operation
// and document identifier.
type BackendError struct {
	Backend   string
	Operation string
	Document  string
	Err       error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	if e.Document == "" {
		return fmt.Sprintf("%s: %s: %v", e.Backend, e.Operation, e.Err)
	}
	return fmt.Sprintf("%s: %s %q: %v", e.Backend, e.Operation, e.Document, e.Err)
}

// Unwrap returns the underlying backend error.
func (e *BackendError) Unwrap() error {
	return e.Err
}
