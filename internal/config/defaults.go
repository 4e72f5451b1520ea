package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = BackendOpenSearch
	}
	if cfg.Store.IndexName == "" {
		cfg.Store.IndexName = "products"
	}
	if cfg.Store.VectorIndex == "" {
		cfg.Store.VectorIndex = "hnsw"
	}
	if len(cfg.Store.OpenSearch.Addresses) == 0 {
		cfg.Store.OpenSearch.Addresses = []string{"http://localhost:9200"}
	}
	if cfg.Store.OpenSearch.TimeoutSeconds == 0 {
		cfg.Store.OpenSearch.TimeoutSeconds = 60
	}
	if cfg.Store.OpenSearch.MaxRetries == 0 {
		cfg.Store.OpenSearch.MaxRetries = 3
	}
	if cfg.Store.SQLite.Path == "" {
		cfg.Store.SQLite.Path = "/usr/local/var/ruiji/data/db/ruiji.db"
	}
	if cfg.Store.Badger.Dir == "" {
		cfg.Store.Badger.Dir = "/usr/local/var/ruiji/data/badger"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "onnx"
	}
	if cfg.Embedding.TextModelPath == "" {
		cfg.Embedding.TextModelPath = "/usr/local/var/ruiji/data/models/all-mpnet-base-v2.onnx"
	}
	if cfg.Embedding.ImageModelPath == "" {
		cfg.Embedding.ImageModelPath = "/usr/local/var/ruiji/data/models/resnet50-features.onnx"
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 384
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.Vocabulary == "" {
		cfg.Embedding.Vocabulary = "mpnet"
	}
	if cfg.Search.DefaultTopK == 0 {
		cfg.Search.DefaultTopK = 5
	}
	if cfg.Search.MaxTopK == 0 {
		cfg.Search.MaxTopK = 100
	}
	if cfg.Search.ImageTopK == 0 {
		cfg.Search.ImageTopK = 2
	}
	if cfg.Indexing.MaxAttempts == 0 {
		cfg.Indexing.MaxAttempts = 3
	}
	if cfg.Bootstrap.CatalogPath == "" {
		cfg.Bootstrap.CatalogPath = "/usr/local/var/ruiji/data/products.json"
	}
	if cfg.Bootstrap.Workers == 0 {
		cfg.Bootstrap.Workers = 4
	}
	// Enabled and ResetOnStart default to true when unset (nil).
	if cfg.Bootstrap.Enabled == nil {
		t := true
		cfg.Bootstrap.Enabled = &t
	}
	if cfg.Bootstrap.ResetOnStart == nil {
		t := true
		cfg.Bootstrap.ResetOnStart = &t
	}
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
