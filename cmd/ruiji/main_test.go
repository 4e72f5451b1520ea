package main

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/ruiji/internal/bootstrap"
	"github.com/hyperjump/ruiji/internal/cli"
	"github.com/hyperjump/ruiji/internal/config"
	"github.com/hyperjump/ruiji/internal/embedding"
	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/server"
	"github.com/hyperjump/ruiji/internal/storage"
)

func TestSearchArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after query are moved first",
			args:     []string{"red shoe", "-top-k", "3"},
			expected: []string{"-top-k", "3", "red shoe"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-top-k", "3", "red shoe"},
			expected: []string{"-top-k", "3", "red shoe"},
		},
		{
			name:     "query only returns unchanged",
			args:     []string{"red shoe"},
			expected: []string{"red shoe"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"leather", "boot", "-output", "json"},
			expected: []string{"-output", "json", "leather", "boot"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := searchArgsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("searchArgsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildSearchQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"shoe"}, "shoe"},
		{"multiple words", []string{"red", "shoe"}, "red shoe"},
		{"single quoted phrase", []string{"red shoe"}, "red shoe"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildSearchQuery(tt.args)
			if got != tt.expected {
				t.Errorf("buildSearchQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  port: 9000
store:
  backend: sqlite
  sqlite:
    path: "./ruiji.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved = %q, want %q", resolved, configPath)
	}
	if !cfg.Debug || cfg.Server.Port != 9000 || cfg.Store.Backend != config.BackendSQLite {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadConfig_explicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "custom.yaml")
	if err := os.WriteFile(configPath, []byte("store:\n  index_name: catalog\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath || cfg.Store.IndexName != "catalog" {
		t.Errorf("loadConfig = %q, %+v", resolved, cfg.Store)
	}

	if _, _, err := loadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for a missing explicit config")
	}
}

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Store.Backend = backend
	cfg.Store.VectorIndex = "memory"
	cfg.Store.SQLite.Path = filepath.Join(dir, "db", "ruiji.db")
	cfg.Store.Badger.Dir = filepath.Join(dir, "badger")
	cfg.Embedding.Provider = embedding.ProviderMock
	cfg.Bootstrap.Workers = 2
	return cfg
}

func TestInitializeComponents_embeddedBackends(t *testing.T) {
	catalog := filepath.Join("..", "..", "data", "products.json")
	for _, backend := range []string{config.BackendSQLite, config.BackendBadger} {
		t.Run(backend, func(t *testing.T) {
			cfg := testConfig(t, backend)
			ctx := context.Background()
			c, err := initializeComponents(ctx, cfg, zap.NewNop())
			if err != nil {
				t.Fatalf("initializeComponents: %v", err)
			}
			defer c.Close()

			if len(c.DiskPaths) != 1 {
				t.Errorf("DiskPaths = %v, want one entry", c.DiskPaths)
			}
			n, err := c.Loader.Run(ctx, bootstrap.RunOptions{Reset: true, CatalogPath: catalog})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if n == 0 {
				t.Fatal("expected products to be imported")
			}

			resp, err := c.Engine.Search(ctx, &models.SearchRequest{SearchType: "text", Query: "Red Shoe : Lightweight running shoe with breathable mesh", TopK: 1})
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if len(resp.Results) != 1 || resp.Results[0].ID != 1 {
				t.Errorf("results = %+v, want product 1 first", resp.Results)
			}

			st, err := directStatus(ctx, c)
			if err != nil {
				t.Fatal(err)
			}
			if st.Backend != backend || st.Documents != int64(n) {
				t.Errorf("status = %+v, want backend %s and %d documents", st, backend, n)
			}
			if st.DiskUsageBytes == nil {
				t.Error("expected disk usage for an on-disk store")
			}
		})
	}
}

func TestOpenStore_unknownBackend(t *testing.T) {
	cfg := testConfig(t, "cassandra")
	if _, _, err := openStore(context.Background(), cfg, zap.NewNop()); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestOpenStore_badgerInMemoryHasNoDiskPaths(t *testing.T) {
	cfg := testConfig(t, config.BackendBadger)
	cfg.Store.Badger.InMemory = true
	client, paths, err := openStore(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()
	if len(paths) != 0 {
		t.Errorf("paths = %v, want none", paths)
	}
}

const testCatalog = "../../data/products.json"

func TestIndexViaServer(t *testing.T) {
	cfg := testConfig(t, config.BackendSQLite)
	ctx := context.Background()
	c, err := initializeComponents(ctx, cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if err := c.Schema.EnsureIndex(ctx); err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(server.NewServer(c.Engine, &cfg.Server, zap.NewNop()).Handler())
	defer srv.Close()

	n, err := indexViaServer(ctx, cli.NewClient(srv.URL), testCatalog)
	if err != nil {
		t.Fatalf("indexViaServer: %v", err)
	}
	products, _ := bootstrap.LoadCatalog(testCatalog)
	if n != len(products) {
		t.Errorf("indexed %d, want %d", n, len(products))
	}
	if count, _ := c.Indexer.Count(ctx); count != int64(len(products)) {
		t.Errorf("stored %d documents, want %d", count, len(products))
	}
	view, err := c.Engine.GetProduct(ctx, 1)
	if err != nil || view.Metadata["name"] != "Red Shoe" {
		t.Errorf("product 1 = %+v, %v", view, err)
	}
}

func TestIndexViaServer_unreachable(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := srv.URL
	srv.Close()
	if n, err := indexViaServer(context.Background(), cli.NewClient(url), testCatalog); err == nil || n != 0 {
		t.Errorf("indexViaServer = %d, %v; want an error before any product is sent", n, err)
	}
}

func writeBadgerConfig(t *testing.T) (configPath, badgerDir string) {
	t.Helper()
	dir := t.TempDir()
	badgerDir = filepath.Join(dir, "badger")
	configPath = filepath.Join(dir, "config.yaml")
	content := "store:\n  backend: badger\n  vector_index: memory\n  badger:\n    dir: " + badgerDir +
		"\nembedding:\n  provider: mock\n"
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return configPath, badgerDir
}

// Badger holds an exclusive directory lock until closed, so reopening the directory
// proves the command released the store.
func assertBadgerReleased(t *testing.T, dir string) {
	t.Helper()
	st, err := storage.NewBadgerStorage(storage.BadgerOptions{Dir: dir})
	if err != nil {
		t.Fatalf("store still held after command returned: %v", err)
	}
	_ = st.Close()
}

func TestRun_indexClosesStore(t *testing.T) {
	configPath, badgerDir := writeBadgerConfig(t)

	err := run("index", []string{"-config", configPath, filepath.Join(t.TempDir(), "missing.json")})
	if err == nil {
		t.Fatal("expected error for a missing catalog")
	}
	assertBadgerReleased(t, badgerDir)

	if err := run("index", []string{"-config", configPath, testCatalog}); err != nil {
		t.Fatalf("index: %v", err)
	}
	assertBadgerReleased(t, badgerDir)
}

func TestRun_resetAndUsageErrors(t *testing.T) {
	configPath, badgerDir := writeBadgerConfig(t)
	if err := run("reset", []string{"-config", configPath}); err != nil {
		t.Fatalf("reset: %v", err)
	}
	assertBadgerReleased(t, badgerDir)

	if err := run("index", nil); err == nil {
		t.Error("index without a catalog should fail")
	}
	if err := run("bogus", nil); err == nil {
		t.Error("unknown command should fail")
	}
	if err := run("init", []string{"-config", configPath}); err == nil {
		t.Error("init over an existing file without --force should fail")
	}
}

func TestBootstrapIndex_failureLeavesComponentsClosable(t *testing.T) {
	cfg := testConfig(t, config.BackendBadger)
	cfg.Bootstrap.CatalogPath = filepath.Join(t.TempDir(), "missing.json")
	ctx := context.Background()
	c, err := initializeComponents(ctx, cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	err = bootstrapIndex(ctx, cfg, c, zap.NewNop())
	c.Close()
	if err == nil {
		t.Fatal("expected bootstrap to fail on a missing catalog")
	}
	assertBadgerReleased(t, cfg.Store.Badger.Dir)
}
