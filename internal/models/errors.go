package models

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the store backends, the indexer and the search executor.
// Backends wrap them with context; callers classify with errors.Is.
var (
	// ErrStoreUnavailable means the vector store could not be reached or failed internally.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrDimensionMismatch means a vector does not have the declared length for its kind.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrWriteConflict means a concurrent modification prevented the write from applying.
	ErrWriteConflict = errors.New("write conflict")
	// ErrIndexMissing means the target index does not exist.
	ErrIndexMissing = errors.New("index missing")
	// ErrInvalidArgument means the request itself is malformed.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound means the requested document does not exist.
	ErrNotFound = errors.New("not found")
)

// DimensionError describes a vector whose length does not match its kind.
type DimensionError struct {
	Kind VectorKind
	Got  int
	Want int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("dimension mismatch: %s vector has %d elements, expected %d", e.Kind, e.Got, e.Want)
}

// Unwrap lets errors.Is match ErrDimensionMismatch.
func (e *DimensionError) Unwrap() error {
	return ErrDimensionMismatch
}
