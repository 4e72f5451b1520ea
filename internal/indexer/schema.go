package indexer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/ruiji/internal/store"
)

// SchemaManager makes sure the index exists with the fixed vector schema before reads and writes.
type SchemaManager struct {
	client store.Client
	index  string
	schema *store.Schema
	logger *zap.Logger
}

// SchemaOption configures a SchemaManager.
type SchemaOption func(*SchemaManager)

// WithSchemaLogger sets the logger.
func WithSchemaLogger(l *zap.Logger) SchemaOption {
	return func(m *SchemaManager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewSchemaManager returns a manager for the named index.
func NewSchemaManager(client store.Client, index string, opts ...SchemaOption) *SchemaManager {
	m := &SchemaManager{
		client: client,
		index:  index,
		schema: store.DefaultSchema(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Index returns the managed index name.
func (m *SchemaManager) Index() string {
	return m.index
}

// EnsureIndex creates the index if it does not exist. Safe to call any number of times.
func (m *SchemaManager) EnsureIndex(ctx context.Context) error {
	exists, err := m.client.IndexExists(ctx, m.index)
	if err != nil {
		return fmt.Errorf("check index %s: %w", m.index, err)
	}
	if exists {
		return nil
	}
	// CreateIndex tolerates a concurrent creator, so the exists/create race is harmless.
	if err := m.client.CreateIndex(ctx, m.index, m.schema); err != nil {
		return fmt.Errorf("create index %s: %w", m.index, err)
	}
	m.logger.Info("index ensured", zap.String("index", m.index))
	return nil
}

// ResetIndex drops the index if present. It does not recreate it; call EnsureIndex afterwards.
func (m *SchemaManager) ResetIndex(ctx context.Context) error {
	if err := m.client.DropIndex(ctx, m.index); err != nil {
		return fmt.Errorf("drop index %s: %w", m.index, err)
	}
	m.logger.Info("index reset", zap.String("index", m.index))
	return nil
}
