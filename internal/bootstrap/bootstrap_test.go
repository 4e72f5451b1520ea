package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hyperjump/ruiji/internal/config"
	"github.com/hyperjump/ruiji/internal/embedding"
	"github.com/hyperjump/ruiji/internal/indexer"
	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/search"
	"github.com/hyperjump/ruiji/internal/storage"
	"github.com/hyperjump/ruiji/internal/store/embedded"
)

const redShoeCatalog = `[{"productId": 1, "name": "Red Shoe", "description": "running shoe"}]`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "products.json")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

type stack struct {
	loader *Loader
	engine *search.Engine
	idx    *indexer.Indexer
}

func newStack(t *testing.T) *stack {
	t.Helper()
	bdg, err := storage.NewBadgerStorage(storage.BadgerOptions{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	client := embedded.New(bdg, embedded.WithIndexType("memory"))
	t.Cleanup(func() { _ = client.Close() })
	schema := indexer.NewSchemaManager(client, "products")
	idx := indexer.NewIndexer(client, schema)
	engine := search.NewEngine(client, schema, idx,
		embedding.NewMockEmbedder(models.KindText.Dimension()),
		embedding.NewMockImageEmbedder(models.KindImage.Dimension()),
		&config.SearchConfig{DefaultTopK: 5, MaxTopK: 100, ImageTopK: 2},
	)
	return &stack{loader: NewLoader(schema, idx, engine, WithWorkers(2)), engine: engine, idx: idx}
}

func TestLoadCatalog(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
		wantErr error
	}{
		{"single product", redShoeCatalog, 1, nil},
		{"empty array", `[]`, 0, nil},
		{"malformed", `{"productId": 1`, 0, models.ErrInvalidArgument},
		{"missing name", `[{"productId": 2, "description": "no name"}]`, 0, models.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			products, err := LoadCatalog(writeCatalog(t, tt.content))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if len(products) != tt.want {
				t.Errorf("got %d products, want %d", len(products), tt.want)
			}
		})
	}
	if _, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("missing file should fail")
	}
}

func TestLoader_RedShoeEndToEnd(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	n, err := s.loader.Run(ctx, RunOptions{Reset: true, CatalogPath: writeCatalog(t, redShoeCatalog)})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("imported %d, want 1", n)
	}
	resp, err := s.engine.Search(ctx, &models.SearchRequest{SearchType: "text", Query: "shoe", TopK: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("results = %+v", resp.Results)
	}
	hit := resp.Results[0]
	if hit.ID != 1 || hit.Metadata["name"] != "Red Shoe" || hit.Metadata["description"] != "running shoe" {
		t.Errorf("hit = %+v", hit)
	}
}

func TestLoader_SkipsPopulatedIndexAndResets(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	catalog := writeCatalog(t, `[
		{"productId": 1, "name": "Red Shoe", "description": "running shoe"},
		{"productId": 2, "name": "Blue Shirt", "description": "cotton shirt"},
		{"productId": 3, "name": "Green Hat", "description": "wool hat"}
	]`)
	if n, err := s.loader.Run(ctx, RunOptions{CatalogPath: catalog}); err != nil || n != 3 {
		t.Fatalf("first run: %d, %v", n, err)
	}
	if err := s.engine.IndexText(ctx, &models.Product{ID: 4, Name: "Extra"}); err != nil {
		t.Fatal(err)
	}

	// Non-empty index without reset: no import, extra document kept.
	if n, err := s.loader.Run(ctx, RunOptions{CatalogPath: catalog}); err != nil || n != 0 {
		t.Fatalf("second run: %d, %v", n, err)
	}
	if c, _ := s.idx.Count(ctx); c != 4 {
		t.Errorf("count = %d, want 4", c)
	}

	// Reset drops everything, then the catalog is imported again.
	if n, err := s.loader.Run(ctx, RunOptions{Reset: true, CatalogPath: catalog}); err != nil || n != 3 {
		t.Fatalf("reset run: %d, %v", n, err)
	}
	if c, _ := s.idx.Count(ctx); c != 3 {
		t.Errorf("count after reset = %d, want 3", c)
	}
}

func TestLoader_NoCatalogOnlyEnsures(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	if n, err := s.loader.Run(ctx, RunOptions{}); err != nil || n != 0 {
		t.Fatalf("run: %d, %v", n, err)
	}
	st, err := s.engine.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Documents != 0 {
		t.Errorf("documents = %d", st.Documents)
	}
}

type failingIndexer struct {
	mu     sync.Mutex
	calls  int
	failOn int64
}

func (f *failingIndexer) IndexText(_ context.Context, p *models.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if p.ID == f.failOn {
		return models.ErrStoreUnavailable
	}
	return nil
}

func TestLoader_ImportFailureAborts(t *testing.T) {
	s := newStack(t)
	target := &failingIndexer{failOn: 2}
	ld := NewLoader(indexer.NewSchemaManager(nil, "products"), s.idx, target, WithWorkers(1))
	products := []models.Product{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}, {ID: 3, Name: "c"}, {ID: 4, Name: "d"}}
	err := ld.Import(context.Background(), products)
	if !errors.Is(err, models.ErrStoreUnavailable) {
		t.Fatalf("got %v, want ErrStoreUnavailable", err)
	}
	target.mu.Lock()
	defer target.mu.Unlock()
	if target.calls == len(products) {
		t.Errorf("import should stop after the failure, got %d calls", target.calls)
	}
}
