// Package vector provides in-process approximate nearest-neighbor indexes over one embedding field.
package vector

import "context"

// VectorIndex defines vector storage and cosine similarity search for a single field.
// Implementations must be safe for concurrent use.
type VectorIndex interface {
	// Add inserts vectors, replacing any existing vector with the same ID.
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	// Search returns up to k hits ordered by descending similarity.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Remove(ctx context.Context, ids []string) error
	Size() int
	Type() string
	Close() error
}

// VectorResult is a single vector search hit.
type VectorResult struct {
	ID    string
	Score float64 // cosine similarity in [-1, 1]
}
