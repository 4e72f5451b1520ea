package search

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/ruiji/internal/config"
	"github.com/hyperjump/ruiji/internal/embedding"
	"github.com/hyperjump/ruiji/internal/indexer"
	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/storage"
	"github.com/hyperjump/ruiji/internal/store"
	"github.com/hyperjump/ruiji/internal/store/embedded"
)

type fixture struct {
	engine *Engine
	schema *indexer.SchemaManager
	client store.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "ruiji.db"))
	if err != nil {
		t.Fatal(err)
	}
	client := embedded.New(st, embedded.WithIndexType("memory"))
	t.Cleanup(func() { _ = client.Close() })

	schema := indexer.NewSchemaManager(client, "products")
	idx := indexer.NewIndexer(client, schema)
	cfg := &config.SearchConfig{DefaultTopK: 5, MaxTopK: 10, ImageTopK: 2}
	engine := NewEngine(client, schema, idx,
		embedding.NewMockEmbedder(models.KindText.Dimension()),
		embedding.NewMockImageEmbedder(models.KindImage.Dimension()),
		cfg,
	)
	return &fixture{engine: engine, schema: schema, client: client}
}

func (f *fixture) ensure(t *testing.T) {
	t.Helper()
	if err := f.schema.EnsureIndex(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestEngine_EndToEnd(t *testing.T) {
	f := newFixture(t)
	f.ensure(t)
	ctx := context.Background()

	if err := f.engine.IndexText(ctx, &models.Product{ID: 1, Name: "Red Shoe", Description: "running shoe"}); err != nil {
		t.Fatal(err)
	}
	resp, err := f.engine.Search(ctx, &models.SearchRequest{SearchType: "text", Query: "shoe", TopK: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 || resp.Total != 1 || resp.Message != "" {
		t.Fatalf("response = %+v", resp)
	}
	hit := resp.Results[0]
	if hit.ID != 1 || hit.Metadata["name"] != "Red Shoe" || hit.Metadata["description"] != "running shoe" {
		t.Errorf("hit = %+v", hit)
	}
	if hit.Score <= 0 {
		t.Errorf("score = %f, want positive", hit.Score)
	}
	if resp.Kind != "text" {
		t.Errorf("searchType = %q", resp.Kind)
	}
}

func TestEngine_SearchEmptyIndex(t *testing.T) {
	f := newFixture(t)
	f.ensure(t)
	resp, err := f.engine.Search(context.Background(), &models.SearchRequest{SearchType: "text", Query: "anything"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Results == nil || len(resp.Results) != 0 {
		t.Errorf("results = %#v, want empty non-nil", resp.Results)
	}
	if resp.Message != NoResultsMessage {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestEngine_SearchErrors(t *testing.T) {
	f := newFixture(t)
	f.ensure(t)
	tests := []struct {
		name string
		req  models.SearchRequest
		want error
	}{
		{"empty query", models.SearchRequest{SearchType: "text", Query: "  "}, models.ErrInvalidArgument},
		{"unknown type", models.SearchRequest{SearchType: "audio", Query: "shoe"}, models.ErrInvalidArgument},
		{"negative top k", models.SearchRequest{SearchType: "text", Query: "shoe", TopK: -1}, models.ErrInvalidArgument},
		{"text query on image field", models.SearchRequest{SearchType: "image", Query: "shoe"}, models.ErrDimensionMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			if _, err := f.engine.Search(context.Background(), &req); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestEngine_TopKAndOrdering(t *testing.T) {
	f := newFixture(t)
	f.ensure(t)
	ctx := context.Background()
	products := []models.Product{
		{ID: 1, Name: "Red Shoe", Description: "running shoe"},
		{ID: 2, Name: "Blue Shirt", Description: "cotton shirt"},
		{ID: 3, Name: "Trail Shoe", Description: "shoe for trail running"},
	}
	for i := range products {
		if err := f.engine.IndexText(ctx, &products[i]); err != nil {
			t.Fatal(err)
		}
	}
	resp, err := f.engine.Search(ctx, &models.SearchRequest{SearchType: "text", Query: "running shoe", TopK: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(resp.Results))
	}
	if resp.Results[0].Score < resp.Results[1].Score {
		t.Errorf("results not ordered by score: %+v", resp.Results)
	}
	for _, h := range resp.Results {
		if h.ID == 2 {
			t.Errorf("unrelated product ranked in top 2: %+v", resp.Results)
		}
	}

	// Requests above the configured maximum are capped.
	resp, err = f.engine.Search(ctx, &models.SearchRequest{SearchType: "text", Query: "shoe", TopK: 1000})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 3 {
		t.Errorf("got %d results, want 3", len(resp.Results))
	}
}

func TestEngine_ImageRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.ensure(t)
	ctx := context.Background()
	img := []byte("not really a png but the mock embedder only hashes bytes")

	if err := f.engine.IndexText(ctx, &models.Product{ID: 7, Name: "Red Shoe", Description: "running shoe"}); err != nil {
		t.Fatal(err)
	}
	if err := f.engine.IndexImage(ctx, 7, "Red Shoe", img); err != nil {
		t.Fatal(err)
	}

	resp, err := f.engine.SearchImage(ctx, img, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 || resp.Results[0].ID != 7 || resp.Kind != "image" {
		t.Fatalf("response = %+v", resp)
	}
	if s := resp.Results[0].Score; s < 0.999 {
		t.Errorf("identical image score = %f, want ~1", s)
	}

	view, err := f.engine.GetProduct(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if !view.HasText || !view.HasImage {
		t.Errorf("view = %+v, want both vectors", view)
	}
	// Metadata is replaced by the latest write.
	if _, ok := view.Metadata["description"]; ok || view.Metadata["name"] != "Red Shoe" {
		t.Errorf("metadata = %v", view.Metadata)
	}

	if err := f.engine.IndexImage(ctx, 8, "", img); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("missing name: got %v", err)
	}
	if _, err := f.engine.SearchImage(ctx, nil, 2); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("empty image query: got %v", err)
	}
}

func TestEngine_GetProductAndStatus(t *testing.T) {
	f := newFixture(t)
	f.ensure(t)
	ctx := context.Background()
	if _, err := f.engine.GetProduct(ctx, 99); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("missing product: got %v", err)
	}
	_ = f.engine.IndexText(ctx, &models.Product{ID: 1, Name: "Red Shoe"})
	stats, err := f.engine.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Name != "products" || stats.Documents != 1 || stats.UUID == "" {
		t.Errorf("stats = %+v", stats)
	}
}

func TestExecutor_SelfHealsMissingIndex(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hits, err := f.engine.executor.Search(ctx, make([]float32, models.KindText.Dimension()), models.KindText, 3)
	if err != nil {
		t.Fatal(err)
	}
	if hits == nil || len(hits) != 0 {
		t.Errorf("hits = %#v, want empty non-nil", hits)
	}
	if ok, _ := f.client.IndexExists(ctx, "products"); !ok {
		t.Error("index should have been recreated")
	}
}

func TestExecutor_Validate(t *testing.T) {
	f := newFixture(t)
	f.ensure(t)
	x := NewExecutor(f.client, f.schema)
	if _, err := x.Search(context.Background(), make([]float32, 768), models.KindText, 0); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("topK 0: got %v", err)
	}
	if _, err := x.Search(context.Background(), make([]float32, 500), models.KindText, 5); !errors.Is(err, models.ErrDimensionMismatch) {
		t.Errorf("short vector: got %v", err)
	}
}
