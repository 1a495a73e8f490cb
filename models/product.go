// models/product.go
package models

import (
	"strings"
	"time"
)

// ProductRecord is one row of the unified demand table: one product for one source period.
// The same ID recurs once per period file; aggregation reconciles duplicates by grouping on ID.
// Empty strings stand for absent optional text fields.
type ProductRecord struct {
	ID             string `json:"id" msgpack:"id"`
	Name           string `json:"name" msgpack:"name"`
	Brand          string `json:"brand,omitempty" msgpack:"brand"`
	Link           string `json:"link,omitempty" msgpack:"link"`
	CategoryLevel1 string `json:"category_level_1,omitempty" msgpack:"c1"`
	CategoryLevel2 string `json:"category_level_2,omitempty" msgpack:"c2"`
	CategoryLevel3 string `json:"category_level_3,omitempty" msgpack:"c3"`
	CategoryLevel4 string `json:"category_level_4,omitempty" msgpack:"c4"`
	FavoritesCount int64  `json:"favorites_count" msgpack:"fav"`

	LastInStock    *time.Time `json:"last_in_stock,omitempty" msgpack:"lis"`      // Nullable
	PeriodStart    *time.Time `json:"period_start,omitempty" msgpack:"ps"`        // From filename, not row content
	PeriodEnd      *time.Time `json:"period_end,omitempty" msgpack:"pe"`          // From filename, not row content
	DaysOutOfStock *int       `json:"days_out_of_stock,omitempty" msgpack:"doos"` // Derived from LastInStock
}

// ProductFilter is the filter set shared by search and every analytics query.
// Zero values mean "no filter".
type ProductFilter struct {
	CategoryLevel1 string     `json:"category_level_1,omitempty"`
	CategoryLevel2 string     `json:"category_level_2,omitempty"`
	CategoryLevel3 string     `json:"category_level_3,omitempty"`
	CategoryLevel4 string     `json:"category_level_4,omitempty"`
	Brand          string     `json:"brand,omitempty"`
	MinFavorites   *int64     `json:"min_favorites_count,omitempty"`
	PeriodStart    *time.Time `json:"period_start,omitempty"`      // rows with period_start >= this
	PeriodEnd      *time.Time `json:"period_end,omitempty"`        // rows with period_end <= this
	OutOfStockDays *int       `json:"out_of_stock_days,omitempty"` // rows with days_out_of_stock >= this
	Search         string     `json:"search,omitempty"`            // case-insensitive substring of name or brand
}

// Match reports whether a row passes every set filter. Rows with a null value in a
// filtered column never match, the same way a comparison against a missing value fails.
func (f ProductFilter) Match(p *ProductRecord) bool {
	if f.CategoryLevel1 != "" && p.CategoryLevel1 != f.CategoryLevel1 {
		return false
	}
	if f.CategoryLevel2 != "" && p.CategoryLevel2 != f.CategoryLevel2 {
		return false
	}
	if f.CategoryLevel3 != "" && p.CategoryLevel3 != f.CategoryLevel3 {
		return false
	}
	if f.CategoryLevel4 != "" && p.CategoryLevel4 != f.CategoryLevel4 {
		return false
	}
	if f.Brand != "" && p.Brand != f.Brand {
		return false
	}
	if f.MinFavorites != nil && p.FavoritesCount < *f.MinFavorites {
		return false
	}
	if f.PeriodStart != nil && (p.PeriodStart == nil || p.PeriodStart.Before(*f.PeriodStart)) {
		return false
	}
	if f.PeriodEnd != nil && (p.PeriodEnd == nil || p.PeriodEnd.After(*f.PeriodEnd)) {
		return false
	}
	if f.OutOfStockDays != nil && (p.DaysOutOfStock == nil || *p.DaysOutOfStock < *f.OutOfStockDays) {
		return false
	}
	if f.Search != "" && !containsFold(p.Name, f.Search) && !containsFold(p.Brand, f.Search) {
		return false
	}
	return true
}

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysOutOfStock returns max(0, today - lastInStock) in whole days, or nil when lastInStock is nil.
func DaysOutOfStock(lastInStock *time.Time, now time.Time) *int {
	if lastInStock == nil {
		return nil
	}
	days := int(DateOnly(now).Sub(DateOnly(*lastInStock)).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return &days
}

func containsFold(s, substr string) bool {
	if s == "" {
		return false
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
