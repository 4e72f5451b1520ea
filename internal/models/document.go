// Package models defines core data structures for products, indexed documents, queries, and search hits.
package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Metadata is stored verbatim with a document and returned on query. It is never interpreted.
type Metadata map[string]interface{}

// Product is a catalog item as submitted by callers and the seed catalog.
type Product struct {
	ID          int64  `json:"productId" yaml:"productId"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

// Validate checks that the product can be indexed.
func (p *Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: product %d has no name", ErrInvalidArgument, p.ID)
	}
	return nil
}

// EmbeddingText is the text fed to the text embedder for a product.
func (p *Product) EmbeddingText() string {
	return p.Name + " : " + p.Description
}

// Metadata returns the metadata stored alongside the product's text vector.
func (p *Product) Metadata() Metadata {
	return Metadata{
		"name":        p.Name,
		"description": p.Description,
	}
}

// Document is a stored item. Either vector field may be absent.
type Document struct {
	ID          int64     `json:"id"`
	TextVector  []float32 `json:"text_vector_embeddings,omitempty"`
	ImageVector []float32 `json:"image_vector_embeddings,omitempty"`
	Metadata    Metadata  `json:"metadata"`
	Version     int64     `json:"version,omitempty"`
}

// Vector returns the document's vector for kind, or nil when that field is unset.
func (d *Document) Vector(kind VectorKind) []float32 {
	switch kind {
	case KindText:
		return d.TextVector
	case KindImage:
		return d.ImageVector
	default:
		return nil
	}
}

// Apply merges a partial update into d: the update's vector field and the metadata
// are overwritten, the other vector field is left untouched.
func (d *Document) Apply(upd *DocumentUpdate) {
	vec := make([]float32, len(upd.Vector))
	copy(vec, upd.Vector)
	switch upd.Kind {
	case KindText:
		d.TextVector = vec
	case KindImage:
		d.ImageVector = vec
	}
	d.Metadata = upd.Metadata
	if d.Metadata == nil {
		d.Metadata = Metadata{}
	}
}

// DocumentUpdate is a create-if-absent, merge-if-present write of one vector field plus metadata.
type DocumentUpdate struct {
	ID       int64
	Kind     VectorKind
	Vector   []float32
	Metadata Metadata
}

// Validate checks the update's kind and vector dimension.
func (u *DocumentUpdate) Validate() error {
	return u.Kind.CheckDimension(u.Vector)
}

// DocumentKey returns the store key for a product id.
func DocumentKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

// ParseDocumentKey parses a store key back into a product id.
func ParseDocumentKey(key string) (int64, error) {
	id, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid document key %q: %w", key, err)
	}
	return id, nil
}
