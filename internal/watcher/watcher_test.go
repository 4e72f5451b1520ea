package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) record(path string) {
	r.mu.Lock()
	r.paths = append(r.paths, path)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.paths)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func startWatcher(t *testing.T, paths []string, rec *recorder) *Watcher {
	t.Helper()
	w, err := NewWatcher(paths, rec.record, WithDebounce(50*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Stop)
	return w
}

func TestWatcher_DebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	catalog := filepath.Join(dir, "products.json")
	if err := os.WriteFile(catalog, []byte("[]"), 0600); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	startWatcher(t, []string{catalog}, rec)

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(catalog, []byte(`[{"productId": 1, "name": "x"}]`), 0600); err != nil {
			t.Fatal(err)
		}
	}
	waitFor(t, func() bool { return rec.count() >= 1 })
	time.Sleep(200 * time.Millisecond)
	if n := rec.count(); n != 1 {
		t.Errorf("got %d callbacks for one burst, want 1", n)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.paths[0] != catalog {
		t.Errorf("path = %s, want %s", rec.paths[0], catalog)
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	catalog := filepath.Join(dir, "products.json")
	rec := &recorder{}
	startWatcher(t, []string{catalog}, rec)

	if err := os.WriteFile(filepath.Join(dir, "other.json"), []byte("[]"), 0600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)
	if n := rec.count(); n != 0 {
		t.Errorf("unrelated file triggered %d callbacks", n)
	}

	// A catalog that appears after start is picked up.
	if err := os.WriteFile(catalog, []byte("[]"), 0600); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return rec.count() == 1 })
}

func TestWatcher_ReplaceByRename(t *testing.T) {
	dir := t.TempDir()
	catalog := filepath.Join(dir, "products.json")
	if err := os.WriteFile(catalog, []byte("[]"), 0600); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	startWatcher(t, []string{catalog}, rec)

	tmp := filepath.Join(dir, "products.json.tmp")
	if err := os.WriteFile(tmp, []byte("[]"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, catalog); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return rec.count() >= 1 })
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher([]string{filepath.Join(dir, "a.json")}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Errorf("second Start: %v", err)
	}
	w.Stop()
	w.Stop()
	if files := w.Files(); len(files) != 1 || files[0] != filepath.Join(dir, "a.json") {
		t.Errorf("Files() = %v", files)
	}
}

func TestNewWatcher_missingDirFailsOnStart(t *testing.T) {
	w, err := NewWatcher([]string{filepath.Join(t.TempDir(), "nope", "products.json")}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err == nil {
		w.Stop()
		t.Error("expected error watching a missing directory")
	}
}
