package vector

import "fmt"

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeHNSW is a graph-based approximate index. Default.
	IndexTypeHNSW IndexType = "hnsw"
	// IndexTypeMemory is exact brute-force search. Good for small catalogs (<10k vectors) and tests.
	IndexTypeMemory IndexType = "memory"
)

// NewVectorIndex creates a vector index of the specified type.
// Supported types: "hnsw" (default), "memory". cfg is ignored for "memory".
func NewVectorIndex(indexType string, dimensions int, cfg HNSWConfig) (VectorIndex, error) {
	switch IndexType(indexType) {
	case IndexTypeHNSW, "":
		return NewHNSWIndex(dimensions, cfg)
	case IndexTypeMemory:
		return NewMemoryIndex(dimensions)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: hnsw, memory)", indexType)
	}
}
