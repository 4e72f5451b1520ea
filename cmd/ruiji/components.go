package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/ruiji/internal/bootstrap"
	"github.com/hyperjump/ruiji/internal/config"
	"github.com/hyperjump/ruiji/internal/embedding"
	"github.com/hyperjump/ruiji/internal/indexer"
	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/search"
	"github.com/hyperjump/ruiji/internal/storage"
	"github.com/hyperjump/ruiji/internal/store"
	"github.com/hyperjump/ruiji/internal/store/embedded"
	"github.com/hyperjump/ruiji/internal/store/opensearch"
)

// Components holds everything a command needs, built once from config.
type Components struct {
	Store     store.Client
	Schema    *indexer.SchemaManager
	Indexer   *indexer.Indexer
	Engine    *search.Engine
	Loader    *bootstrap.Loader
	Text      embedding.Embedder
	Image     embedding.ImageEmbedder
	DiskPaths []string
}

// Close releases the embedders and the store connection.
func (c *Components) Close() {
	if c.Text != nil {
		_ = c.Text.Close()
	}
	if c.Image != nil {
		_ = c.Image.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

// openStore connects to the configured backend. It also returns the local paths whose
// size is worth reporting in status; OpenSearch has none.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Client, []string, error) {
	switch cfg.Store.Backend {
	case config.BackendOpenSearch:
		osc := cfg.Store.OpenSearch
		client, err := opensearch.New(ctx, opensearch.Config{
			Addresses:          osc.Addresses,
			Username:           osc.Username,
			Password:           osc.Password,
			Compress:           osc.CompressOrDefault(),
			Timeout:            osc.Timeout(),
			MaxRetries:         osc.MaxRetries,
			RetryOnTimeout:     osc.RetryOnTimeoutOrDefault(),
			InsecureSkipVerify: osc.InsecureSkipVerifyOrDefault(),
			Refresh:            osc.Refresh,
		}, opensearch.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return client, nil, nil

	case config.BackendSQLite:
		st, err := storage.NewSQLiteStorage(cfg.Store.SQLite.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		return embedded.New(st, embeddedOptions(cfg, logger)...), []string{cfg.Store.SQLite.Path}, nil

	case config.BackendBadger:
		st, err := storage.NewBadgerStorage(storage.BadgerOptions{
			Dir:      cfg.Store.Badger.Dir,
			InMemory: cfg.Store.Badger.InMemory,
			Logger:   logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		var paths []string
		if !cfg.Store.Badger.InMemory {
			paths = []string{cfg.Store.Badger.Dir}
		}
		return embedded.New(st, embeddedOptions(cfg, logger)...), paths, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func embeddedOptions(cfg *config.Config, logger *zap.Logger) []embedded.Option {
	return []embedded.Option{
		embedded.WithLogger(logger),
		embedded.WithIndexType(cfg.Store.VectorIndex),
		embedded.WithHNSWConfig(cfg.Store.HNSW),
		embedded.WithBackendName(cfg.Store.Backend),
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	client, diskPaths, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("store ready",
		zap.String("backend", cfg.Store.Backend),
		zap.String("index", cfg.Store.IndexName),
	)

	text, image, err := embedding.New(embedding.Options{
		Provider:       cfg.Embedding.Provider,
		TextModelPath:  cfg.Embedding.TextModelPath,
		ImageModelPath: cfg.Embedding.ImageModelPath,
		TextDimension:  models.KindText.Dimension(),
		ImageDimension: models.KindImage.Dimension(),
		MaxTokens:      cfg.Embedding.MaxTokens,
		CacheSize:      cfg.Embedding.CacheSize,
		Vocabulary:     cfg.Embedding.Vocabulary,
	}, logger)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize embedders: %w", err)
	}

	schema := indexer.NewSchemaManager(client, cfg.Store.IndexName, indexer.WithSchemaLogger(logger))
	idx := indexer.NewIndexer(client, schema,
		indexer.WithLogger(logger),
		indexer.WithMaxAttempts(cfg.Indexing.MaxAttempts),
	)
	engine := search.NewEngine(client, schema, idx, text, image, &cfg.Search, search.WithLogger(logger))
	loader := bootstrap.NewLoader(schema, idx, engine,
		bootstrap.WithLogger(logger),
		bootstrap.WithWorkers(cfg.Bootstrap.Workers),
	)

	return &Components{
		Store:     client,
		Schema:    schema,
		Indexer:   idx,
		Engine:    engine,
		Loader:    loader,
		Text:      text,
		Image:     image,
		DiskPaths: diskPaths,
	}, nil
}
