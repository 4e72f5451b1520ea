// Package storage persists collections and versioned documents for the embedded vector store.
package storage

import (
	"context"
	"encoding/binary"
	"math"
	"time"

	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/store"
)

// Collection is a persisted index definition.
type Collection struct {
	Name      string        `json:"name"`
	UUID      string        `json:"uuid"`
	Schema    *store.Schema `json:"schema"`
	CreatedAt time.Time     `json:"created_at"`
}

// Storage defines collection and document persistence with optimistic versioning.
// Every document carries a version that starts at 1 and increments on each write.
type Storage interface {
	// CreateCollection stores c unless a collection with the same name exists.
	// Returns the collection now on record and whether it was created by this call.
	CreateCollection(ctx context.Context, c *Collection) (*Collection, bool, error)
	// GetCollection returns models.ErrIndexMissing when absent.
	GetCollection(ctx context.Context, name string) (*Collection, error)
	// DropCollection removes the collection and all its documents. No error if absent.
	DropCollection(ctx context.Context, name string) error

	// GetDocument returns the document with Version set, or models.ErrNotFound.
	GetDocument(ctx context.Context, collection string, id int64) (*models.Document, error)
	// PutDocument writes doc if the stored version still equals expectedVersion
	// (0 means the document must not exist yet) and returns the new version.
	// Returns models.ErrWriteConflict when the check fails and models.ErrIndexMissing
	// when the collection does not exist.
	PutDocument(ctx context.Context, collection string, doc *models.Document, expectedVersion int64) (int64, error)
	// ForEachDocument calls fn for every document in the collection. fn must not call back into the Storage.
	ForEachDocument(ctx context.Context, collection string, fn func(*models.Document) error) error
	CountDocuments(ctx context.Context, collection string) (int64, error)

	Close() error
}

func float32SliceToBytes(s []float32) []byte {
	if s == nil {
		return nil
	}
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
