package embedding

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/hyperjump/ruiji/internal/models"
)

// MockEmbedder is a deterministic text embedder for tests and model-less deployments.
// Each word is hashed into a few buckets, so texts sharing words get similar vectors.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 768
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed returns a unit-length bag-of-words embedding of text.
func (e *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	emb := make([]float32, e.dimensions)
	for _, word := range SplitWords(text) {
		h := xxhash.Sum64String(word)
		// Three buckets per word with signed weights keep collisions from dominating.
		for i := uint64(0); i < 3; i++ {
			bucket := (h >> (i * 16)) % uint64(e.dimensions)
			if (h>>(48+i))&1 == 1 {
				emb[bucket] -= 1
			} else {
				emb[bucket] += 1
			}
		}
	}
	NormalizeL2Slice(emb)
	return emb, nil
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}

// MockImageEmbedder is a deterministic image embedder that hashes raw bytes in
// fixed-size blocks. Identical files get identical vectors; it does not decode images.
type MockImageEmbedder struct {
	dimensions int
}

// NewMockImageEmbedder returns an image embedder producing vectors of the given dimensions.
func NewMockImageEmbedder(dimensions int) *MockImageEmbedder {
	if dimensions <= 0 {
		dimensions = 2048
	}
	return &MockImageEmbedder{dimensions: dimensions}
}

const mockImageBlock = 64

// EmbedImage returns a unit-length vector derived from data.
func (e *MockImageEmbedder) EmbedImage(_ context.Context, data []byte) ([]float32, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image", models.ErrInvalidArgument)
	}
	emb := make([]float32, e.dimensions)
	for off := 0; off < len(data); off += mockImageBlock {
		end := min(off+mockImageBlock, len(data))
		h := xxhash.Sum64(data[off:end])
		emb[h%uint64(e.dimensions)] += 1
	}
	// Length feature so same-prefix files still differ.
	emb[xxhash.Sum64String(strconv.Itoa(len(data)))%uint64(e.dimensions)] += 0.5
	NormalizeL2Slice(emb)
	return emb, nil
}

// Dimensions returns the embedding dimension.
func (e *MockImageEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockImageEmbedder.
func (e *MockImageEmbedder) Close() error {
	return nil
}
