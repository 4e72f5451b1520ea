// Package config provides configuration loading and structs for the Ruiji server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hyperjump/ruiji/internal/vector"
)

// Backend names accepted in store.backend.
const (
	BackendOpenSearch = "opensearch"
	BackendSQLite     = "sqlite"
	BackendBadger     = "badger"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Indexing  IndexingConfig  `yaml:"indexing"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StoreConfig selects the vector store backend and the index it serves.
type StoreConfig struct {
	Backend     string            `yaml:"backend"`
	IndexName   string            `yaml:"index_name"`
	VectorIndex string            `yaml:"vector_index"`
	HNSW        vector.HNSWConfig `yaml:"hnsw"`
	OpenSearch  OpenSearchConfig  `yaml:"opensearch"`
	SQLite      SQLiteConfig      `yaml:"sqlite"`
	Badger      BadgerConfig      `yaml:"badger"`
}

// OpenSearchConfig holds cluster connection settings.
type OpenSearchConfig struct {
	Addresses          []string `yaml:"addresses"`
	Username           string   `yaml:"username"`
	Password           string   `yaml:"password"`
	Compress           *bool    `yaml:"compress"`
	TimeoutSeconds     int      `yaml:"timeout_seconds"`
	MaxRetries         int      `yaml:"max_retries"`
	RetryOnTimeout     *bool    `yaml:"retry_on_timeout"`
	InsecureSkipVerify *bool    `yaml:"insecure_skip_verify"`
	Refresh            bool     `yaml:"refresh"`
}

// Timeout returns the per-request timeout.
func (o *OpenSearchConfig) Timeout() time.Duration {
	return time.Duration(o.TimeoutSeconds) * time.Second
}

// CompressOrDefault returns whether request bodies are gzipped; defaults to true when unset.
func (o *OpenSearchConfig) CompressOrDefault() bool {
	return boolOr(o.Compress, true)
}

// RetryOnTimeoutOrDefault defaults to true when unset.
func (o *OpenSearchConfig) RetryOnTimeoutOrDefault() bool {
	return boolOr(o.RetryOnTimeout, true)
}

// InsecureSkipVerifyOrDefault defaults to true when unset, matching the development cluster's self-signed certificate.
func (o *OpenSearchConfig) InsecureSkipVerifyOrDefault() bool {
	return boolOr(o.InsecureSkipVerify, true)
}

// SQLiteConfig holds the embedded SQLite database path.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// BadgerConfig holds the embedded Badger directory.
type BadgerConfig struct {
	Dir      string `yaml:"dir"`
	InMemory bool   `yaml:"in_memory"`
}

// EmbeddingConfig holds embedder settings.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"`
	TextModelPath  string `yaml:"text_model_path"`
	ImageModelPath string `yaml:"image_model_path"`
	MaxTokens      int    `yaml:"max_tokens"`
	CacheSize      int    `yaml:"cache_size"`
	Vocabulary     string `yaml:"vocabulary"`
}

// SearchConfig holds query limits.
type SearchConfig struct {
	DefaultTopK int `yaml:"default_top_k"`
	MaxTopK     int `yaml:"max_top_k"`
	ImageTopK   int `yaml:"image_top_k"`
}

// IndexingConfig holds upsert settings.
type IndexingConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
}

// BootstrapConfig controls the startup catalog import.
type BootstrapConfig struct {
	Enabled      *bool  `yaml:"enabled"`
	ResetOnStart *bool  `yaml:"reset_on_start"`
	CatalogPath  string `yaml:"catalog_path"`
	WatchCatalog bool   `yaml:"watch_catalog"`
	Workers      int    `yaml:"workers"`
}

// EnabledOrDefault defaults to true when unset.
func (b *BootstrapConfig) EnabledOrDefault() bool {
	return boolOr(b.Enabled, true)
}

// ResetOnStartOrDefault defaults to true when unset.
func (b *BootstrapConfig) ResetOnStartOrDefault() bool {
	return boolOr(b.ResetOnStart, true)
}

func boolOr(v *bool, def bool) bool {
	if v != nil {
		return *v
	}
	return def
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Store.SQLite.Path = expandPath(cfg.Store.SQLite.Path, configDir)
	cfg.Store.Badger.Dir = expandPath(cfg.Store.Badger.Dir, configDir)
	cfg.Embedding.TextModelPath = expandPath(cfg.Embedding.TextModelPath, configDir)
	cfg.Embedding.ImageModelPath = expandPath(cfg.Embedding.ImageModelPath, configDir)
	cfg.Bootstrap.CatalogPath = expandPath(cfg.Bootstrap.CatalogPath, configDir)

	return &cfg, nil
}

// Validate rejects settings that defaults cannot repair.
func Validate(cfg *Config) error {
	switch cfg.Store.Backend {
	case BackendOpenSearch, BackendSQLite, BackendBadger:
	default:
		return fmt.Errorf("unknown store backend %q (supported: opensearch, sqlite, badger)", cfg.Store.Backend)
	}
	if cfg.Search.DefaultTopK > cfg.Search.MaxTopK {
		return fmt.Errorf("search.default_top_k (%d) exceeds search.max_top_k (%d)", cfg.Search.DefaultTopK, cfg.Search.MaxTopK)
	}
	return nil
}

// Save writes the config to path. Used by "ruiji init" to write a starter config.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty paths stay empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
