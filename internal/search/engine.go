// Package search turns caller requests into embeddings, index writes and nearest-neighbor queries.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/ruiji/internal/config"
	"github.com/hyperjump/ruiji/internal/embedding"
	"github.com/hyperjump/ruiji/internal/indexer"
	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/store"
)

// NoResultsMessage accompanies a successful search with zero hits.
const NoResultsMessage = "No results found"

// Engine is the caller-facing surface: index a product's text or image, search by text or image.
type Engine struct {
	client   store.Client
	schema   *indexer.SchemaManager
	indexer  *indexer.Indexer
	executor *Executor
	text     embedding.Embedder
	image    embedding.ImageEmbedder
	config   *config.SearchConfig
	logger   *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates a search engine with the given dependencies.
func NewEngine(
	client store.Client,
	schema *indexer.SchemaManager,
	idx *indexer.Indexer,
	text embedding.Embedder,
	image embedding.ImageEmbedder,
	cfg *config.SearchConfig,
	opts ...EngineOption,
) *Engine {
	e := &Engine{
		client:  client,
		schema:  schema,
		indexer: idx,
		text:    text,
		image:   image,
		config:  cfg,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.executor = NewExecutor(client, schema, WithExecutorLogger(e.logger))
	return e
}

// IndexText embeds "name : description" and stores it as the product's text vector.
func (e *Engine) IndexText(ctx context.Context, p *models.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	vec, err := e.text.Embed(ctx, indexer.Preprocess(p.EmbeddingText()))
	if err != nil {
		return fmt.Errorf("embed text for product %d: %w", p.ID, err)
	}
	return e.indexer.IndexItem(ctx, p.ID, models.KindText, vec, p.Metadata())
}

// IndexImage embeds the image and stores it as the product's image vector with metadata {name}.
func (e *Engine) IndexImage(ctx context.Context, id int64, name string, data []byte) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: product %d has no name", models.ErrInvalidArgument, id)
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: product %d: empty image", models.ErrInvalidArgument, id)
	}
	vec, err := e.image.EmbedImage(ctx, data)
	if err != nil {
		return fmt.Errorf("embed image for product %d: %w", id, err)
	}
	return e.indexer.IndexItem(ctx, id, models.KindImage, vec, models.Metadata{"name": name})
}

// Search embeds the query text and searches the field named by req.SearchType.
// An image search type compares a text embedding with image vectors and fails with
// models.ErrDimensionMismatch.
func (e *Engine) Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	startTime := time.Now()
	kind, err := req.Validate(e.config.DefaultTopK, e.config.MaxTopK)
	if err != nil {
		return nil, err
	}
	vec, err := e.text.Embed(ctx, indexer.Preprocess(req.Query))
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := e.executor.Search(ctx, vec, kind, req.TopK)
	if err != nil {
		return nil, err
	}
	return newResponse(hits, kind, startTime), nil
}

// SearchImage embeds the image and searches the image field. topK <= 0 uses the image default.
func (e *Engine) SearchImage(ctx context.Context, data []byte, topK int) (*models.SearchResponse, error) {
	startTime := time.Now()
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image", models.ErrInvalidArgument)
	}
	if topK <= 0 {
		topK = e.config.ImageTopK
	}
	if e.config.MaxTopK > 0 && topK > e.config.MaxTopK {
		topK = e.config.MaxTopK
	}
	vec, err := e.image.EmbedImage(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("embed image query: %w", err)
	}
	hits, err := e.executor.Search(ctx, vec, models.KindImage, topK)
	if err != nil {
		return nil, err
	}
	return newResponse(hits, models.KindImage, startTime), nil
}

// GetProduct returns the stored product without its vectors.
func (e *Engine) GetProduct(ctx context.Context, id int64) (*models.ProductView, error) {
	doc, err := e.client.GetDocument(ctx, e.schema.Index(), id)
	if err != nil {
		return nil, err
	}
	return doc.View(), nil
}

// Status returns the index name, document count and generation id.
func (e *Engine) Status(ctx context.Context) (*store.IndexStats, error) {
	return e.client.Stats(ctx, e.schema.Index())
}

func newResponse(hits []models.Hit, kind models.VectorKind, start time.Time) *models.SearchResponse {
	resp := &models.SearchResponse{
		Results:   hits,
		Total:     len(hits),
		Kind:      kind.String(),
		QueryTime: time.Since(start).Milliseconds(),
	}
	if len(hits) == 0 {
		resp.Message = NoResultsMessage
	}
	return resp
}
