// Package store defines the vector store client contract shared by the OpenSearch and embedded backends.
package store

import (
	"context"

	"github.com/hyperjump/ruiji/internal/models"
)

// Client is the minimal operation set the indexer and search executor need from a vector store.
// Implementations must be safe for concurrent use; the store owns all concurrency control.
type Client interface {
	// IndexExists reports whether the named index exists.
	IndexExists(ctx context.Context, name string) (bool, error)
	// CreateIndex creates the named index with schema. Creating an index that already exists is not an error.
	CreateIndex(ctx context.Context, name string, schema *Schema) error
	// DropIndex deletes the named index and all its documents. Dropping a missing index is not an error.
	DropIndex(ctx context.Context, name string) error
	// Count returns the number of documents in the index.
	Count(ctx context.Context, name string) (int64, error)
	// UpsertDocument creates the document with only the update's field populated, or overwrites that
	// field and the metadata of an existing document, atomically.
	// Returns models.ErrWriteConflict when a concurrent modification won.
	UpsertDocument(ctx context.Context, name string, upd *models.DocumentUpdate) error
	// GetDocument returns a stored document. Returns models.ErrNotFound when absent.
	GetDocument(ctx context.Context, name string, id int64) (*models.Document, error)
	// Search runs a nearest-neighbor query restricted to the query kind's field.
	Search(ctx context.Context, name string, query *models.KNNQuery) ([]models.Hit, error)
	// Stats returns index-level information.
	Stats(ctx context.Context, name string) (*IndexStats, error)
	Close() error
}

// IndexStats describes an index.
type IndexStats struct {
	Name      string `json:"index"`
	UUID      string `json:"uuid,omitempty"`
	Documents int64  `json:"documents"`
	Backend   string `json:"backend"`
}
