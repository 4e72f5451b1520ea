// Package bootstrap prepares the index at startup and imports the seed catalog.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/ruiji/internal/indexer"
	"github.com/hyperjump/ruiji/internal/models"
)

// DefaultWorkers bounds concurrent IndexText calls during an import.
const DefaultWorkers = 4

// TextIndexer indexes a product's text embedding. Implemented by search.Engine.
type TextIndexer interface {
	IndexText(ctx context.Context, p *models.Product) error
}

// Counter reports how many documents the index holds. Implemented by indexer.Indexer.
type Counter interface {
	Count(ctx context.Context) (int64, error)
}

// Loader resets, ensures and seeds the index.
type Loader struct {
	schema  *indexer.SchemaManager
	counter Counter
	target  TextIndexer
	workers int
	logger  *zap.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(ld *Loader) {
		if l != nil {
			ld.logger = l
		}
	}
}

// WithWorkers sets how many products are indexed concurrently. Values below 1 keep the default.
func WithWorkers(n int) Option {
	return func(ld *Loader) {
		if n > 0 {
			ld.workers = n
		}
	}
}

// NewLoader creates a loader.
func NewLoader(schema *indexer.SchemaManager, counter Counter, target TextIndexer, opts ...Option) *Loader {
	ld := &Loader{
		schema:  schema,
		counter: counter,
		target:  target,
		workers: DefaultWorkers,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(ld)
	}
	return ld
}

// RunOptions selects what Run does.
type RunOptions struct {
	// Reset drops the index before ensuring it.
	Reset bool
	// CatalogPath is imported when the index is empty. Empty skips the import.
	CatalogPath string
}

// Run optionally drops the index, ensures it, and imports the catalog when the index is empty.
// It returns the number of products imported. Any failure should abort startup.
func (ld *Loader) Run(ctx context.Context, opts RunOptions) (int, error) {
	if opts.Reset {
		if err := ld.schema.ResetIndex(ctx); err != nil {
			return 0, err
		}
	}
	if err := ld.schema.EnsureIndex(ctx); err != nil {
		return 0, err
	}
	if opts.CatalogPath == "" {
		return 0, nil
	}
	n, err := ld.counter.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count index %s: %w", ld.schema.Index(), err)
	}
	if n > 0 {
		ld.logger.Info("index already populated, skipping catalog import",
			zap.String("index", ld.schema.Index()),
			zap.Int64("documents", n),
		)
		return 0, nil
	}
	return ld.ImportFile(ctx, opts.CatalogPath)
}

// ImportFile loads the catalog at path and indexes every product.
func (ld *Loader) ImportFile(ctx context.Context, path string) (int, error) {
	products, err := LoadCatalog(path)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	if err := ld.Import(ctx, products); err != nil {
		return 0, err
	}
	ld.logger.Info("catalog imported",
		zap.String("path", path),
		zap.String("index", ld.schema.Index()),
		zap.Int("products", len(products)),
		zap.Duration("took", time.Since(start)),
	)
	return len(products), nil
}

// Import indexes products with at most the configured number in flight.
// The first failure stops products not yet started and is returned.
func (ld *Loader) Import(ctx context.Context, products []models.Product) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ld.workers)
	for i := range products {
		p := &products[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := ld.target.IndexText(gctx, p); err != nil {
				return fmt.Errorf("import product %d: %w", p.ID, err)
			}
			return nil
		})
	}
	return g.Wait()
}
