// services/product_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unsafe"

	"github.com/gewnthar/favdemand/models"
	"github.com/gewnthar/favdemand/utils"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 1000
)

// ProductService is the row-level query and admin surface over the loader's table.
type ProductService struct {
	loader *Loader
	cache  SnapshotCache
	log    *utils.Logger
	now    func() time.Time
}

func NewProductService(loader *Loader, cache SnapshotCache, log *utils.Logger) *ProductService {
	return &ProductService{loader: loader, cache: cache, log: log.With("component", "products"), now: time.Now}
}

// Search filters the table and returns one page in natural table order plus the total match count.
func (s *ProductService) Search(filter models.ProductFilter, page, pageSize int) models.ProductListResponse {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	ds := s.loader.Snapshot()
	start := (page - 1) * pageSize
	total := 0
	products := make([]models.ProductRecord, 0, pageSize)
	for i := range ds.Rows {
		if !filter.Match(&ds.Rows[i]) {
			continue
		}
		if total >= start && len(products) < pageSize {
			products = append(products, ds.Rows[i])
		}
		total++
	}
	return models.ProductListResponse{
		Products:   products,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	}
}

// GetByID returns the first row carrying id.
func (s *ProductService) GetByID(id string) (models.ProductRecord, error) {
	ds := s.loader.Snapshot()
	for _, r := range ds.Rows {
		if r.ID == id {
			return r, nil
		}
	}
	return models.ProductRecord{}, fmt.Errorf("product %s: %w", id, models.ErrNotFound)
}

// Categories lists distinct non-empty top-level categories, sorted.
func (s *ProductService) Categories() []string {
	ds := s.loader.Snapshot()
	return distinctSorted(ds.Rows, func(r *models.ProductRecord) string { return r.CategoryLevel1 })
}

// Brands lists distinct non-empty brands, optionally within one top-level category, sorted.
func (s *ProductService) Brands(category string) []string {
	ds := s.loader.Snapshot()
	return distinctSorted(ds.Rows, func(r *models.ProductRecord) string {
		if category != "" && r.CategoryLevel1 != category {
			return ""
		}
		return r.Brand
	})
}

func distinctSorted(rows []models.ProductRecord, field func(*models.ProductRecord) string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for i := range rows {
		v := field(&rows[i])
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Add appends one row. A missing id is derived from name, brand and link; a missing
// days_out_of_stock is derived from last_in_stock.
func (s *ProductService) Add(in models.ProductInput) (models.ProductRecord, int, error) {
	if strings.TrimSpace(in.Name) == "" {
		return models.ProductRecord{}, 0, fmt.Errorf("%w: name is required", models.ErrInvalidArgument)
	}
	if in.FavoritesCount < 0 {
		return models.ProductRecord{}, 0, fmt.Errorf("%w: favorites_count must be >= 0", models.ErrInvalidArgument)
	}
	rec := models.ProductRecord{
		ID:             in.ID,
		Name:           in.Name,
		Brand:          in.Brand,
		Link:           in.Link,
		CategoryLevel1: in.CategoryLevel1,
		CategoryLevel2: in.CategoryLevel2,
		CategoryLevel3: in.CategoryLevel3,
		CategoryLevel4: in.CategoryLevel4,
		FavoritesCount: in.FavoritesCount,
		LastInStock:    dateOnlyPtr(in.LastInStock),
		PeriodStart:    dateOnlyPtr(in.PeriodStart),
		PeriodEnd:      dateOnlyPtr(in.PeriodEnd),
		DaysOutOfStock: clampDays(in.DaysOutOfStock),
	}
	if rec.ID == "" {
		rec.ID = utils.ProductID(rec.Name, rec.Brand, rec.Link)
	}
	if rec.DaysOutOfStock == nil {
		rec.DaysOutOfStock = models.DaysOutOfStock(rec.LastInStock, s.now())
	}

	var total int
	err := s.loader.Update(func(rows []models.ProductRecord, files map[string]models.FileMetadata) ([]models.ProductRecord, map[string]models.FileMetadata, error) {
		for _, r := range rows {
			if r.ID == rec.ID {
				return nil, nil, fmt.Errorf("product %s: %w", rec.ID, models.ErrAlreadyExists)
			}
		}
		rows = append(rows, rec)
		total = len(rows)
		return rows, files, nil
	})
	if err != nil {
		return models.ProductRecord{}, 0, err
	}
	s.log.Info("Product added", "id", rec.ID, "total", total)
	return rec, total, nil
}

// Update applies the non-nil fields of patch to every row with id. Supplying last_in_stock
// without days_out_of_stock recomputes the latter.
func (s *ProductService) Update(id string, patch models.ProductPatch) (int, error) {
	if patch.FavoritesCount != nil && *patch.FavoritesCount < 0 {
		return 0, fmt.Errorf("%w: favorites_count must be >= 0", models.ErrInvalidArgument)
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return 0, fmt.Errorf("%w: name must not be empty", models.ErrInvalidArgument)
	}
	now := s.now()
	updated := 0
	err := s.loader.Update(func(rows []models.ProductRecord, files map[string]models.FileMetadata) ([]models.ProductRecord, map[string]models.FileMetadata, error) {
		for i := range rows {
			if rows[i].ID != id {
				continue
			}
			applyPatch(&rows[i], patch, now)
			updated++
		}
		if updated == 0 {
			return nil, nil, fmt.Errorf("product %s: %w", id, models.ErrNotFound)
		}
		return rows, files, nil
	})
	if err != nil {
		return 0, err
	}
	s.log.Info("Product updated", "id", id, "rows", updated)
	return updated, nil
}

func applyPatch(r *models.ProductRecord, p models.ProductPatch, now time.Time) {
	setStr := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	setStr(&r.Name, p.Name)
	setStr(&r.Brand, p.Brand)
	setStr(&r.Link, p.Link)
	setStr(&r.CategoryLevel1, p.CategoryLevel1)
	setStr(&r.CategoryLevel2, p.CategoryLevel2)
	setStr(&r.CategoryLevel3, p.CategoryLevel3)
	setStr(&r.CategoryLevel4, p.CategoryLevel4)
	if p.FavoritesCount != nil {
		r.FavoritesCount = *p.FavoritesCount
	}
	if p.PeriodStart != nil {
		r.PeriodStart = dateOnlyPtr(p.PeriodStart)
	}
	if p.PeriodEnd != nil {
		r.PeriodEnd = dateOnlyPtr(p.PeriodEnd)
	}
	if p.LastInStock != nil {
		r.LastInStock = dateOnlyPtr(p.LastInStock)
	}
	switch {
	case p.DaysOutOfStock != nil:
		r.DaysOutOfStock = clampDays(p.DaysOutOfStock)
	case p.LastInStock != nil:
		r.DaysOutOfStock = models.DaysOutOfStock(r.LastInStock, now)
	}
}

// Delete removes every row with id and returns the remaining row count.
func (s *ProductService) Delete(id string) (int, error) {
	removed, total, err := s.deleteIDs([]string{id})
	if err != nil {
		return 0, err
	}
	if removed == 0 {
		return 0, fmt.Errorf("product %s: %w", id, models.ErrNotFound)
	}
	return total, nil
}

// DeleteMany removes every row whose id is listed. Unknown ids are ignored.
func (s *ProductService) DeleteMany(ids []string) (removed, total int, err error) {
	return s.deleteIDs(ids)
}

func (s *ProductService) deleteIDs(ids []string) (removed, total int, err error) {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	err = s.loader.Update(func(rows []models.ProductRecord, files map[string]models.FileMetadata) ([]models.ProductRecord, map[string]models.FileMetadata, error) {
		kept := rows[:0]
		for _, r := range rows {
			if _, ok := drop[r.ID]; ok {
				removed++
				continue
			}
			kept = append(kept, r)
		}
		total = len(kept)
		if removed == 0 {
			return nil, nil, errNothingRemoved
		}
		return kept, files, nil
	})
	if errors.Is(err, errNothingRemoved) {
		return 0, total, nil
	}
	if err == nil {
		s.log.Info("Products deleted", "removed", removed, "total", total)
	}
	return removed, total, err
}

// errNothingRemoved leaves the table (and its generation) untouched when no id matched.
var errNothingRemoved = errors.New("nothing removed")

// Clear empties the in-memory table and its file metadata, and with persistent set also the
// persistent cache. Returns the number of rows removed.
func (s *ProductService) Clear(ctx context.Context, persistent bool) int {
	removed := 0
	_ = s.loader.Update(func(rows []models.ProductRecord, _ map[string]models.FileMetadata) ([]models.ProductRecord, map[string]models.FileMetadata, error) {
		removed = len(rows)
		return nil, nil, nil
	})
	if persistent {
		s.cache.Clear(ctx)
	}
	s.log.Info("Table cleared", "removed", removed, "persistent", persistent)
	return removed
}

// Reload re-runs ingestion; force bypasses the persistent cache.
func (s *ProductService) Reload(ctx context.Context, force bool) (*IngestResult, error) {
	return s.loader.Reload(ctx, force)
}

// Stats summarizes the current table.
func (s *ProductService) Stats() models.CacheStats {
	ds := s.loader.Snapshot()
	return models.CacheStats{
		TotalProducts:     len(ds.Rows),
		FilesLoaded:       len(ds.Files),
		UsingPlaceholder:  ds.Placeholder,
		CacheSizeEstimate: estimateSize(ds.Rows),
		FileMetadata:      ds.Files,
		Generation:        ds.Generation,
	}
}

func (s *ProductService) Status() models.LoaderStatus {
	return s.loader.Status()
}

// estimateSize approximates the table's memory footprint in bytes.
func estimateSize(rows []models.ProductRecord) int64 {
	const timeSize = int64(unsafe.Sizeof(time.Time{}))
	size := int64(len(rows)) * int64(unsafe.Sizeof(models.ProductRecord{}))
	for i := range rows {
		r := &rows[i]
		size += int64(len(r.ID) + len(r.Name) + len(r.Brand) + len(r.Link) +
			len(r.CategoryLevel1) + len(r.CategoryLevel2) + len(r.CategoryLevel3) + len(r.CategoryLevel4))
		for _, t := range []*time.Time{r.LastInStock, r.PeriodStart, r.PeriodEnd} {
			if t != nil {
				size += timeSize
			}
		}
		if r.DaysOutOfStock != nil {
			size += 8
		}
	}
	return size
}

func dateOnlyPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := models.DateOnly(*t)
	return &d
}

func clampDays(d *int) *int {
	if d == nil {
		return nil
	}
	v := *d
	if v < 0 {
		v = 0
	}
	return &v
}
