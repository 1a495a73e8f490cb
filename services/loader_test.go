// services/loader_test.go
package services

import (
	"context"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gewnthar/favdemand/models"
	"github.com/gewnthar/favdemand/utils"
)

func newTestLoader(ingest *IngestionService) *Loader {
	gen := NewPlaceholderGenerator(rand.New(rand.NewSource(7)), func() time.Time { return testNow })
	l := NewLoader(ingest, gen, LoaderOptions{PlaceholderCount: 50}, utils.NewNopLogger())
	l.now = func() time.Time { return testNow }
	return l
}

// loaderWith returns a started loader already holding rows.
func loaderWith(rows []models.ProductRecord) *Loader {
	l := NewLoader(nil, nil, LoaderOptions{}, utils.NewNopLogger())
	l.now = func() time.Time { return testNow }
	l.startOnce.Do(func() {})
	l.swap(rows, map[string]models.FileMetadata{"a.csv": {RowsCount: len(rows)}}, false, StateComplete)
	return l
}

func TestLoaderStartsFromCache(t *testing.T) {
	cache := newFakeCache()
	cache.Put(context.Background(), "products_old", []models.ProductRecord{row("c", 3)}, map[string]models.FileMetadata{"old.csv": {RowsCount: 1}})
	stub := newStubLoader(map[string][]models.ProductRecord{"a.csv": {row("a", 1)}})
	l := newTestLoader(newTestIngestion(touchFiles(t, "a.csv"), cache, stub.load))

	l.Start(context.Background())
	l.Wait()

	st := l.Status()
	if st.State != StateComplete || st.UsingPlaceholder || st.Loading {
		t.Errorf("status = %+v, want complete without placeholder", st)
	}
	ds := l.Snapshot()
	if len(ds.Rows) != 1 || ds.Rows[0].ID != "c" {
		t.Errorf("rows = %+v, want cached row", ds.Rows)
	}
	if stub.total() != 0 {
		t.Errorf("cache hit must not ingest, loads = %d", stub.total())
	}
}

// gatedLoader blocks loading gate until release is closed, signalling reached first.
type gatedLoader struct {
	*stubLoader
	gate    string
	reached chan struct{}
	release chan struct{}
}

func (g *gatedLoader) load(path string) ([]models.ProductRecord, models.FileMetadata, error) {
	if filepath.Base(path) == g.gate {
		close(g.reached)
		<-g.release
	}
	return g.stubLoader.load(path)
}

func TestLoaderHotSwap(t *testing.T) {
	gl := &gatedLoader{
		stubLoader: newStubLoader(map[string][]models.ProductRecord{
			"quick.csv": {row("q", 9)},
			"b.csv":     {row("b", 2)},
		}),
		gate:    "b.csv",
		reached: make(chan struct{}),
		release: make(chan struct{}),
	}
	cache := newFakeCache()
	l := newTestLoader(newTestIngestion(touchFiles(t, "b.csv", "quick.csv"), cache, gl.load))

	l.Start(context.Background())
	<-gl.reached

	ds := l.Snapshot()
	if ds.Placeholder {
		t.Fatal("placeholder should be gone once the quick-start file is in")
	}
	if len(ds.Rows) != 1 || ds.Rows[0].ID != "q" {
		t.Errorf("partial rows = %+v, want only the quick-start file", ds.Rows)
	}
	if _, ok := ds.Files[PlaceholderFile]; ok {
		t.Error("placeholder metadata should be replaced")
	}
	if st := l.Status(); st.State != StatePartial || !st.Loading {
		t.Errorf("status = %+v, want partial and loading", st)
	}

	close(gl.release)
	l.Wait()

	ds = l.Snapshot()
	if len(ds.Rows) != 2 || ds.Rows[0].ID != "q" || ds.Rows[1].ID != "b" {
		t.Errorf("final rows = %+v", ds.Rows)
	}
	if len(ds.Files) != 2 {
		t.Errorf("files = %+v", ds.Files)
	}
	if st := l.Status(); st.State != StateComplete || st.Loading {
		t.Errorf("status = %+v, want complete", st)
	}
	if cache.putCount() != 1 {
		t.Errorf("completed table should be persisted once, puts = %d", cache.putCount())
	}
}

func TestLoaderKeepsPlaceholderWhenIngestionFails(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "missing")
	l := newTestLoader(newTestIngestion(dir, newFakeCache(), newStubLoader(nil).load))

	l.Start(context.Background())
	l.Wait()

	st := l.Status()
	if st.State != StatePlaceholder || !st.UsingPlaceholder {
		t.Errorf("status = %+v, want placeholder", st)
	}
	ds := l.Snapshot()
	if len(ds.Rows) != 50 || ds.Files[PlaceholderFile].RowsCount != 50 {
		t.Errorf("placeholder rows = %d files = %+v", len(ds.Rows), ds.Files)
	}
}

func TestLoaderStopCancelsWarmup(t *testing.T) {
	stub := newStubLoader(map[string][]models.ProductRecord{"a.csv": {row("a", 1)}})
	l := newTestLoader(newTestIngestion(touchFiles(t, "a.csv"), newFakeCache(), stub.load))
	l.opts.WarmupDelay = time.Hour

	l.Start(context.Background())
	done := make(chan struct{})
	go func() {
		l.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
	if stub.total() != 0 {
		t.Errorf("loads = %d, want none after stop", stub.total())
	}
	if st := l.Status(); st.State != StatePlaceholder {
		t.Errorf("state = %s, want placeholder", st.State)
	}
}

func TestLoaderReload(t *testing.T) {
	stub := newStubLoader(map[string][]models.ProductRecord{"a.csv": {row("a", 1), row("b", 2)}})
	l := loaderWith([]models.ProductRecord{row("old", 1)})
	l.ingest = newTestIngestion(touchFiles(t, "a.csv"), newFakeCache(), stub.load)
	before := l.Snapshot().Generation

	res, err := l.Reload(context.Background(), true)
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	ds := l.Snapshot()
	if len(ds.Rows) != 2 || len(res.Rows) != 2 {
		t.Errorf("rows = %d, want 2", len(ds.Rows))
	}
	if ds.Generation == before {
		t.Error("reload should install a new generation")
	}

	l.ingest = newTestIngestion(touchFiles(t), newFakeCache(), stub.load)
	if _, err := l.Reload(context.Background(), true); err == nil {
		t.Fatal("expected error for empty directory")
	}
	if got := len(l.Snapshot().Rows); got != 2 {
		t.Errorf("failed reload changed the table: %d rows", got)
	}
}

func TestLoaderReloadDuringWarmupIsKept(t *testing.T) {
	stub := newStubLoader(map[string][]models.ProductRecord{
		"quick.csv": {row("q", 9)},
		"b.csv":     {row("b", 2)},
	})
	l := newTestLoader(newTestIngestion(touchFiles(t, "b.csv", "quick.csv"), newFakeCache(), stub.load))
	l.opts.WarmupDelay = time.Hour

	l.Start(context.Background())
	if _, err := l.Reload(context.Background(), true); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	gen := l.Snapshot().Generation

	done := make(chan struct{})
	go func() {
		l.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("background ingestion was not cancelled by the reload")
	}

	st := l.Status()
	if st.State != StateComplete || st.TotalProducts != 2 || st.Generation != gen {
		t.Errorf("status = %+v, want the reloaded table untouched", st)
	}
	if stub.total() != 2 {
		t.Errorf("loads = %d, want only the reload's 2", stub.total())
	}
}

func TestLoaderReloadSupersedesRunningStages(t *testing.T) {
	dir := touchFiles(t, "b.csv", "quick.csv")
	files := map[string][]models.ProductRecord{
		"quick.csv": {row("q", 9)},
		"b.csv":     {row("b", 2)},
	}
	gl := &gatedLoader{
		stubLoader: newStubLoader(files),
		gate:       "b.csv",
		reached:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	cache := newFakeCache()
	l := newTestLoader(newTestIngestion(dir, cache, gl.load))

	l.Start(context.Background())
	<-gl.reached
	if st := l.Status(); st.State != StatePartial {
		t.Fatalf("state = %s, want partial", st.State)
	}

	// The background pass holds its own ingestion service; the reload reads through an ungated one.
	l.ingest = newTestIngestion(dir, cache, newStubLoader(files).load)
	if _, err := l.Reload(context.Background(), true); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	gen := l.Snapshot().Generation

	close(gl.release)
	l.Wait()

	st := l.Status()
	if st.State != StateComplete || st.TotalProducts != 2 || st.Generation != gen {
		t.Errorf("status = %+v, want the reloaded table untouched", st)
	}
}

func TestLoaderSnapshotIsolation(t *testing.T) {
	l := loaderWith([]models.ProductRecord{row("a", 1), row("b", 2)})
	held := l.Snapshot()

	err := l.Update(func(rows []models.ProductRecord, files map[string]models.FileMetadata) ([]models.ProductRecord, map[string]models.FileMetadata, error) {
		rows[0].FavoritesCount = 100
		return rows[:1], files, nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(held.Rows) != 2 || held.Rows[0].FavoritesCount != 1 {
		t.Errorf("held snapshot changed: %+v", held.Rows)
	}
	if cur := l.Snapshot(); len(cur.Rows) != 1 || cur.Rows[0].FavoritesCount != 100 {
		t.Errorf("current rows = %+v", cur.Rows)
	}
}

func TestLoaderConcurrentReaders(t *testing.T) {
	l := loaderWith([]models.ProductRecord{row("a", 1)})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if i%2 == 0 {
					_ = l.Update(func(rows []models.ProductRecord, files map[string]models.FileMetadata) ([]models.ProductRecord, map[string]models.FileMetadata, error) {
						return append(rows, row("x", 1)), files, nil
					})
					continue
				}
				ds := l.Snapshot()
				if len(ds.Rows) == 0 {
					t.Error("reader saw an empty table")
				}
			}
		}(i)
	}
	wg.Wait()
	if got := len(l.Snapshot().Rows); got != 1+4*50 {
		t.Errorf("rows = %d, want %d", got, 1+4*50)
	}
}
