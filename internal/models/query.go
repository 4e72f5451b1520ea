package models

import (
	"fmt"
	"strings"
)

// KNNQuery is a nearest-neighbor query against a single vector field.
type KNNQuery struct {
	Vector []float32
	Kind   VectorKind
	TopK   int
}

// Validate checks topK and the query vector dimension.
func (q *KNNQuery) Validate() error {
	if q.TopK <= 0 {
		return fmt.Errorf("%w: topK must be positive, got %d", ErrInvalidArgument, q.TopK)
	}
	return q.Kind.CheckDimension(q.Vector)
}

// SearchRequest is the caller-facing text search request.
type SearchRequest struct {
	SearchType string `json:"searchType"`
	Query      string `json:"query"`
	TopK       int    `json:"topK,omitempty"`
}

// Validate ensures the request has a query and a known search type, and normalizes topK.
// defaultTopK applies when TopK is unset; maxTopK caps it.
func (r *SearchRequest) Validate(defaultTopK, maxTopK int) (VectorKind, error) {
	if strings.TrimSpace(r.Query) == "" {
		return 0, fmt.Errorf("%w: query cannot be empty", ErrInvalidArgument)
	}
	kind, err := ParseVectorKind(r.SearchType)
	if err != nil {
		return 0, err
	}
	if r.TopK < 0 {
		return 0, fmt.Errorf("%w: topK must be positive, got %d", ErrInvalidArgument, r.TopK)
	}
	if r.TopK == 0 {
		r.TopK = defaultTopK
	}
	if maxTopK > 0 && r.TopK > maxTopK {
		r.TopK = maxTopK
	}
	return kind, nil
}
