// database/cache_store_test.go
package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/gewnthar/favdemand/models"
	"github.com/gewnthar/favdemand/utils"
)

func newTestStore(t *testing.T, strict bool) *CacheStore {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s := NewCacheStore(db, DialectSQLite, strict, utils.NewNopLogger())
	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return s
}

// stepClock returns a clock that advances one second per call.
func stepClock(start time.Time) func() time.Time {
	now := start
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func sampleRows() []models.ProductRecord {
	d := time.Date(2021, 3, 6, 0, 0, 0, 0, time.UTC)
	days := 12
	return []models.ProductRecord{
		{ID: "aaaa", Name: "Phone", Brand: "Apple", FavoritesCount: 100, PeriodStart: &d, DaysOutOfStock: &days},
		{ID: "bbbb", Name: "Kettle", FavoritesCount: 7},
	}
}

func TestCacheStorePutGetExact(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, false)
	s.now = stepClock(time.Unix(1_600_000_000, 0))

	files := map[string]models.FileMetadata{"a.xlsx": {RowsCount: 2}}
	if !s.Put(ctx, "products_k1", sampleRows(), files) {
		t.Fatal("Put returned false")
	}

	entry, ok := s.Get(ctx, "products_k1")
	if !ok {
		t.Fatal("expected hit")
	}
	if entry.Key != "products_k1" || len(entry.Rows) != 2 {
		t.Fatalf("entry = %+v", entry)
	}
	got := entry.Rows[0]
	if got.Name != "Phone" || got.FavoritesCount != 100 || got.PeriodStart == nil || !got.PeriodStart.Equal(*sampleRows()[0].PeriodStart) {
		t.Errorf("row round trip mismatch: %+v", got)
	}
	if got.DaysOutOfStock == nil || *got.DaysOutOfStock != 12 {
		t.Errorf("days_out_of_stock lost: %v", got.DaysOutOfStock)
	}
	if entry.Rows[1].LastInStock != nil {
		t.Errorf("nil date should stay nil")
	}

	meta := s.FileMetadata(ctx)
	if meta["a.xlsx"].RowsCount != 2 {
		t.Errorf("metadata = %+v", meta)
	}
}

func TestCacheStoreDatesSurviveLocalZone(t *testing.T) {
	orig := time.Local
	time.Local = time.FixedZone("EST", -5*60*60)
	t.Cleanup(func() { time.Local = orig })

	ctx := context.Background()
	s := newTestStore(t, false)
	last := time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)
	start := time.Date(2021, 3, 6, 0, 0, 0, 0, time.UTC)
	end := time.Date(2021, 4, 4, 0, 0, 0, 0, time.UTC)
	rows := []models.ProductRecord{{ID: "aaaa", Name: "Phone", LastInStock: &last, PeriodStart: &start, PeriodEnd: &end}}
	s.Put(ctx, "products_tz", rows, nil)

	entry, ok := s.Get(ctx, "products_tz")
	if !ok || len(entry.Rows) != 1 {
		t.Fatalf("entry = %+v, ok = %v", entry, ok)
	}
	got := entry.Rows[0]
	for _, tc := range []struct {
		name string
		got  *time.Time
		want time.Time
	}{
		{"last_in_stock", got.LastInStock, last},
		{"period_start", got.PeriodStart, start},
		{"period_end", got.PeriodEnd, end},
	} {
		if tc.got == nil {
			t.Errorf("%s lost", tc.name)
			continue
		}
		if !tc.got.Equal(tc.want) || tc.got.Location() != time.UTC {
			t.Errorf("%s = %v, want %v", tc.name, *tc.got, tc.want)
		}
		if tc.got.Format("2006-01") != tc.want.Format("2006-01") || tc.got.Day() != tc.want.Day() {
			t.Errorf("%s calendar day moved: %v", tc.name, *tc.got)
		}
	}
}

func TestCacheStoreUpsertKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, false)
	s.now = stepClock(time.Unix(1_600_000_000, 0))

	s.Put(ctx, "products_k1", sampleRows(), nil)
	first, _ := s.Get(ctx, "products_k1")
	s.Put(ctx, "products_k1", sampleRows()[:1], nil)
	second, ok := s.Get(ctx, "products_k1")
	if !ok {
		t.Fatal("expected hit")
	}
	if len(second.Rows) != 1 {
		t.Errorf("rows = %d, want 1 after upsert", len(second.Rows))
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("created_at changed: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Errorf("updated_at not advanced: %v -> %v", first.UpdatedAt, second.UpdatedAt)
	}
}

func TestCacheStoreFallback(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		strict  bool
		wantHit bool
	}{
		{name: "lenient serves most recent", strict: false, wantHit: true},
		{name: "strict misses", strict: true, wantHit: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t, tt.strict)
			s.now = stepClock(time.Unix(1_600_000_000, 0))
			s.Put(ctx, "products_old", sampleRows()[:1], nil)
			s.Put(ctx, "products_new", sampleRows(), nil)

			entry, ok := s.Get(ctx, "products_other")
			if ok != tt.wantHit {
				t.Fatalf("hit = %v, want %v", ok, tt.wantHit)
			}
			if ok && entry.Key != "products_new" {
				t.Errorf("served %q, want products_new", entry.Key)
			}
		})
	}
}

func TestCacheStoreEmptyAndClear(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, false)

	if _, ok := s.Get(ctx, "products_x"); ok {
		t.Fatal("empty store should miss")
	}
	s.Put(ctx, "products_x", sampleRows(), map[string]models.FileMetadata{"f.csv": {RowsCount: 2}})
	if !s.Clear(ctx) {
		t.Fatal("Clear returned false")
	}
	if _, ok := s.Get(ctx, "products_x"); ok {
		t.Error("cleared store should miss")
	}
	if len(s.FileMetadata(ctx)) != 0 {
		t.Error("metadata should be empty after Clear")
	}
}

func TestCacheStoreToleratesBrokenDatabase(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, false)
	s.db.Close()

	if _, ok := s.Get(ctx, "products_x"); ok {
		t.Error("closed db should miss")
	}
	if s.Put(ctx, "products_x", sampleRows(), nil) {
		t.Error("closed db write should report false")
	}
	if got := s.FileMetadata(ctx); len(got) != 0 {
		t.Errorf("metadata = %v", got)
	}
}
