// Package embedded implements store.Client in-process: documents persist in a
// storage.Storage and every vector field gets its own in-memory ANN index.
package embedded

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/storage"
	"github.com/hyperjump/ruiji/internal/store"
	"github.com/hyperjump/ruiji/internal/vector"
)

// Store is an embedded vector store. Partial upserts are read-modify-write
// cycles guarded by the storage's optimistic version check.
type Store struct {
	storage   storage.Storage
	backend   string
	indexType string
	hnsw      vector.HNSWConfig
	logger    *zap.Logger

	mu          sync.Mutex
	collections map[string]*collection
}

// collection is the in-memory search side of one persisted collection.
type collection struct {
	name   string
	uuid   string
	schema *store.Schema

	mu      sync.Mutex
	indexes map[string]vector.VectorIndex
	// applied tracks, per field and document, the highest version present in the index.
	applied map[string]map[int64]int64
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithIndexType selects the per-field vector index ("hnsw" or "memory").
func WithIndexType(t string) Option {
	return func(s *Store) { s.indexType = t }
}

// WithHNSWConfig sets graph parameters for "hnsw" indexes.
func WithHNSWConfig(cfg vector.HNSWConfig) Option {
	return func(s *Store) { s.hnsw = cfg }
}

// WithBackendName sets the backend label reported by Stats.
func WithBackendName(name string) Option {
	return func(s *Store) { s.backend = name }
}

// New returns a Store persisting to st. The Store takes ownership of st and closes it on Close.
func New(st storage.Storage, opts ...Option) *Store {
	s := &Store{
		storage:     st,
		backend:     "embedded",
		indexType:   string(vector.IndexTypeHNSW),
		logger:      zap.NewNop(),
		collections: make(map[string]*collection),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ store.Client = (*Store)(nil)

// IndexExists reports whether the collection exists in storage.
func (s *Store) IndexExists(ctx context.Context, name string) (bool, error) {
	_, err := s.storage.GetCollection(ctx, name)
	if errors.Is(err, models.ErrIndexMissing) {
		return false, nil
	}
	if err != nil {
		return false, classify(err)
	}
	return true, nil
}

// CreateIndex creates the collection with a fresh generation id unless it already exists.
func (s *Store) CreateIndex(ctx context.Context, name string, schema *store.Schema) error {
	if schema == nil {
		schema = store.DefaultSchema()
	}
	c, created, err := s.storage.CreateCollection(ctx, &storage.Collection{
		Name:   name,
		UUID:   uuid.NewString(),
		Schema: schema,
	})
	if err != nil {
		return classify(err)
	}
	if !created {
		s.logger.Debug("index already exists", zap.String("index", name), zap.String("uuid", c.UUID))
		return nil
	}
	col, err := s.newCollection(c)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if old, ok := s.collections[name]; ok {
		old.close()
	}
	s.collections[name] = col
	s.mu.Unlock()
	s.logger.Info("index created", zap.String("index", name), zap.String("uuid", c.UUID))
	return nil
}

// DropIndex deletes the collection and its documents and discards its in-memory indexes.
func (s *Store) DropIndex(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.storage.DropCollection(ctx, name); err != nil {
		return classify(err)
	}
	if c, ok := s.collections[name]; ok {
		c.close()
		delete(s.collections, name)
	}
	return nil
}

// Count returns the number of stored documents.
func (s *Store) Count(ctx context.Context, name string) (int64, error) {
	if _, err := s.storage.GetCollection(ctx, name); err != nil {
		return 0, classify(err)
	}
	n, err := s.storage.CountDocuments(ctx, name)
	if err != nil {
		return 0, classify(err)
	}
	return n, nil
}

// UpsertDocument reads the current document, merges the update into it and writes it
// back only if nobody else wrote in between. A lost race returns models.ErrWriteConflict.
func (s *Store) UpsertDocument(ctx context.Context, name string, upd *models.DocumentUpdate) error {
	c, err := s.open(ctx, name)
	if err != nil {
		return err
	}
	if err := c.checkDimension(upd.Kind, upd.Vector); err != nil {
		return err
	}

	doc, err := s.storage.GetDocument(ctx, name, upd.ID)
	var expected int64
	switch {
	case errors.Is(err, models.ErrNotFound):
		doc = &models.Document{ID: upd.ID}
	case err != nil:
		return classify(err)
	default:
		expected = doc.Version
	}
	doc.Apply(upd)

	version, err := s.storage.PutDocument(ctx, name, doc, expected)
	if err != nil {
		return classify(err)
	}

	// The collection may have been recreated while this write was in flight;
	// index into whatever is current now.
	if cur := s.cached(name); cur != nil {
		if err := cur.apply(ctx, upd.Kind.Field(), upd.ID, doc.Vector(upd.Kind), version); err != nil {
			return fmt.Errorf("%w: update %s index: %v", models.ErrStoreUnavailable, upd.Kind, err)
		}
	}
	return nil
}

// GetDocument returns the stored document.
func (s *Store) GetDocument(ctx context.Context, name string, id int64) (*models.Document, error) {
	if _, err := s.storage.GetCollection(ctx, name); err != nil {
		return nil, classify(err)
	}
	doc, err := s.storage.GetDocument(ctx, name, id)
	if err != nil {
		return nil, classify(err)
	}
	return doc, nil
}

// Search queries the field index for query.Kind and attaches each hit's current metadata.
// Documents that lack the queried field are never returned.
func (s *Store) Search(ctx context.Context, name string, query *models.KNNQuery) ([]models.Hit, error) {
	c, err := s.open(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := c.checkDimension(query.Kind, query.Vector); err != nil {
		return nil, err
	}
	idx := c.indexes[query.Kind.Field()]
	results, err := idx.Search(ctx, query.Vector, query.TopK)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	hits := make([]models.Hit, 0, len(results))
	for _, r := range results {
		id, err := models.ParseDocumentKey(r.ID)
		if err != nil {
			return nil, err
		}
		doc, err := s.storage.GetDocument(ctx, name, id)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, classify(err)
		}
		hits = append(hits, models.Hit{ID: id, Score: cosineScore(r.Score), Metadata: doc.Metadata})
	}
	return hits, nil
}

// Stats reports the collection's generation id and document count.
func (s *Store) Stats(ctx context.Context, name string) (*store.IndexStats, error) {
	c, err := s.storage.GetCollection(ctx, name)
	if err != nil {
		return nil, classify(err)
	}
	n, err := s.storage.CountDocuments(ctx, name)
	if err != nil {
		return nil, classify(err)
	}
	return &store.IndexStats{Name: name, UUID: c.UUID, Documents: n, Backend: s.backend}, nil
}

// Close releases the in-memory indexes and closes the underlying storage.
func (s *Store) Close() error {
	s.mu.Lock()
	for name, c := range s.collections {
		c.close()
		delete(s.collections, name)
	}
	s.mu.Unlock()
	return s.storage.Close()
}

func (s *Store) cached(name string) *collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collections[name]
}

// open returns the in-memory side of a collection, rebuilding it from storage on first use.
func (s *Store) open(ctx context.Context, name string) (*collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[name]; ok {
		return c, nil
	}
	meta, err := s.storage.GetCollection(ctx, name)
	if err != nil {
		return nil, classify(err)
	}
	c, err := s.newCollection(meta)
	if err != nil {
		return nil, err
	}
	var loaded int
	err = s.storage.ForEachDocument(ctx, name, func(doc *models.Document) error {
		loaded++
		for _, kind := range models.VectorKinds {
			if vec := doc.Vector(kind); len(vec) > 0 {
				if err := c.apply(ctx, kind.Field(), doc.ID, vec, doc.Version); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		c.close()
		return nil, classify(err)
	}
	s.collections[name] = c
	s.logger.Info("index loaded",
		zap.String("index", name),
		zap.String("uuid", meta.UUID),
		zap.Int("documents", loaded),
	)
	return c, nil
}

func (s *Store) newCollection(meta *storage.Collection) (*collection, error) {
	schema := meta.Schema
	if schema == nil {
		schema = store.DefaultSchema()
	}
	c := &collection{
		name:    meta.Name,
		uuid:    meta.UUID,
		schema:  schema,
		indexes: make(map[string]vector.VectorIndex, len(schema.VectorFields)),
		applied: make(map[string]map[int64]int64, len(schema.VectorFields)),
	}
	for _, f := range schema.VectorFields {
		idx, err := vector.NewVectorIndex(s.indexType, f.Dimension, s.hnsw)
		if err != nil {
			c.close()
			return nil, fmt.Errorf("create %s index: %w", f.Name, err)
		}
		c.indexes[f.Name] = idx
		c.applied[f.Name] = make(map[int64]int64)
	}
	return c, nil
}

// checkDimension validates vec against the collection's declared field, not the package constants,
// so collections created with a custom schema are honored.
func (c *collection) checkDimension(kind models.VectorKind, vec []float32) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown vector kind %d", models.ErrInvalidArgument, int(kind))
	}
	f, ok := c.schema.Field(kind.Field())
	if !ok {
		return fmt.Errorf("%w: index %s has no field %s", models.ErrInvalidArgument, c.name, kind.Field())
	}
	if len(vec) != f.Dimension {
		return &models.DimensionError{Kind: kind, Got: len(vec), Want: f.Dimension}
	}
	return nil
}

// apply puts vec into the field index unless a newer version of the document is already there.
func (c *collection) apply(ctx context.Context, field string, id int64, vec []float32, version int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx, ok := c.indexes[field]
	if !ok {
		return fmt.Errorf("unknown field %s", field)
	}
	if c.applied[field][id] >= version {
		return nil
	}
	if err := idx.Add(ctx, []string{models.DocumentKey(id)}, [][]float32{vec}); err != nil {
		return err
	}
	c.applied[field][id] = version
	return nil
}

func (c *collection) close() {
	for _, idx := range c.indexes {
		_ = idx.Close()
	}
}

// cosineScore maps cosine similarity to the (0, 1] relevance score reported for cosinesimil fields.
func cosineScore(sim float64) float64 {
	return 1 / (1 + (1 - sim))
}

// classify keeps taxonomy errors as they are and reports anything else as the store being unavailable.
func classify(err error) error {
	for _, known := range []error{
		models.ErrIndexMissing,
		models.ErrWriteConflict,
		models.ErrNotFound,
		models.ErrDimensionMismatch,
		models.ErrInvalidArgument,
		models.ErrStoreUnavailable,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
}
