// Package indexer owns index lifecycle and the create-or-merge write path for item vectors.
package indexer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/store"
)

// DefaultMaxAttempts bounds how often a conflicting write is tried.
const DefaultMaxAttempts = 3

// Indexer writes one vector field plus metadata per call, retrying on write conflicts.
type Indexer struct {
	client      store.Client
	schema      *SchemaManager
	maxAttempts int
	logger      *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for retry and self-heal events.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) {
		if l != nil {
			idx.logger = l
		}
	}
}

// WithMaxAttempts sets the conflict retry bound. Values below 1 keep the default.
func WithMaxAttempts(n int) IndexerOption {
	return func(idx *Indexer) {
		if n > 0 {
			idx.maxAttempts = n
		}
	}
}

// NewIndexer creates an indexer writing to the index managed by schema.
func NewIndexer(client store.Client, schema *SchemaManager, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		client:      client,
		schema:      schema,
		maxAttempts: DefaultMaxAttempts,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// IndexItem creates the document if absent or overwrites kind's field and the metadata
// of an existing one, leaving the other vector field untouched.
//
// A wrong-length vector fails with models.ErrDimensionMismatch before anything is written.
// Write conflicts are retried up to the configured bound and then surface as
// models.ErrWriteConflict. A missing index is recreated once.
//
// The write is detached from ctx cancellation: a caller that goes away does not abort
// a store round-trip already in flight. Store timeouts still bound it.
func (idx *Indexer) IndexItem(ctx context.Context, id int64, kind models.VectorKind, vector []float32, metadata models.Metadata) error {
	upd := &models.DocumentUpdate{ID: id, Kind: kind, Vector: vector, Metadata: metadata}
	if err := upd.Validate(); err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)

	healed := false
	for attempt := 1; ; attempt++ {
		err := idx.client.UpsertDocument(ctx, idx.schema.Index(), upd)
		switch {
		case err == nil:
			idx.logger.Debug("item indexed",
				zap.Int64("product_id", id),
				zap.String("kind", kind.String()),
				zap.Int("attempt", attempt),
			)
			return nil

		case errors.Is(err, models.ErrIndexMissing) && !healed:
			healed = true
			idx.logger.Warn("index missing, recreating",
				zap.String("index", idx.schema.Index()),
				zap.Int64("product_id", id),
			)
			if err := idx.schema.EnsureIndex(ctx); err != nil {
				return err
			}
			// The self-heal retry does not count against the conflict bound.
			attempt--

		case errors.Is(err, models.ErrWriteConflict) && attempt < idx.maxAttempts:
			idx.logger.Debug("write conflict, retrying",
				zap.Int64("product_id", id),
				zap.String("kind", kind.String()),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)

		case errors.Is(err, models.ErrWriteConflict):
			idx.logger.Warn("write conflict retries exhausted",
				zap.Int64("product_id", id),
				zap.String("kind", kind.String()),
				zap.Int("attempts", attempt),
			)
			return fmt.Errorf("index item %d after %d attempts: %w", id, attempt, err)

		default:
			return fmt.Errorf("index item %d: %w", id, err)
		}
	}
}

// Count returns the number of documents in the index.
func (idx *Indexer) Count(ctx context.Context) (int64, error) {
	return idx.client.Count(ctx, idx.schema.Index())
}
