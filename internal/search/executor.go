package search

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/ruiji/internal/indexer"
	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/store"
)

// Executor runs nearest-neighbor queries against one vector field of the index.
type Executor struct {
	client store.Client
	schema *indexer.SchemaManager
	logger *zap.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExecutorLogger sets the logger.
func WithExecutorLogger(l *zap.Logger) ExecutorOption {
	return func(x *Executor) {
		if l != nil {
			x.logger = l
		}
	}
}

// NewExecutor creates an executor for the index managed by schema.
func NewExecutor(client store.Client, schema *indexer.SchemaManager, opts ...ExecutorOption) *Executor {
	x := &Executor{client: client, schema: schema, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Search returns up to topK hits for vector on kind's field, best first. Ties keep the store's order.
// No matches is an empty, non-nil slice. A missing index is recreated and the query retried once,
// which then answers with no hits.
func (x *Executor) Search(ctx context.Context, vector []float32, kind models.VectorKind, topK int) ([]models.Hit, error) {
	query := &models.KNNQuery{Vector: vector, Kind: kind, TopK: topK}
	if err := query.Validate(); err != nil {
		return nil, err
	}

	hits, err := x.client.Search(ctx, x.schema.Index(), query)
	if errors.Is(err, models.ErrIndexMissing) {
		x.logger.Warn("index missing on search, recreating", zap.String("index", x.schema.Index()))
		if err := x.schema.EnsureIndex(ctx); err != nil {
			return nil, err
		}
		hits, err = x.client.Search(ctx, x.schema.Index(), query)
	}
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", kind, err)
	}
	if hits == nil {
		hits = []models.Hit{}
	}
	x.logger.Debug("knn search",
		zap.String("kind", kind.String()),
		zap.Int("top_k", topK),
		zap.Int("hits", len(hits)),
	)
	return hits, nil
}
