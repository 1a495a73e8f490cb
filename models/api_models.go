// models/api_models.go
package models

import "time"

// ProductInput is the body for adding a row through the admin surface.
// ID is optional; when empty the fingerprint of name|brand|link is used.
type ProductInput struct {
	ID             string     `json:"id,omitempty"`
	Name           string     `json:"name"`
	Brand          string     `json:"brand,omitempty"`
	Link           string     `json:"link,omitempty"`
	CategoryLevel1 string     `json:"category_level_1,omitempty"`
	CategoryLevel2 string     `json:"category_level_2,omitempty"`
	CategoryLevel3 string     `json:"category_level_3,omitempty"`
	CategoryLevel4 string     `json:"category_level_4,omitempty"`
	FavoritesCount int64      `json:"favorites_count"`
	LastInStock    *time.Time `json:"last_in_stock,omitempty"`
	PeriodStart    *time.Time `json:"period_start,omitempty"`
	PeriodEnd      *time.Time `json:"period_end,omitempty"`
	DaysOutOfStock *int       `json:"days_out_of_stock,omitempty"`
}

// ProductPatch carries a partial update; nil fields are left untouched.
type ProductPatch struct {
	Name           *string    `json:"name,omitempty"`
	Brand          *string    `json:"brand,omitempty"`
	Link           *string    `json:"link,omitempty"`
	CategoryLevel1 *string    `json:"category_level_1,omitempty"`
	CategoryLevel2 *string    `json:"category_level_2,omitempty"`
	CategoryLevel3 *string    `json:"category_level_3,omitempty"`
	CategoryLevel4 *string    `json:"category_level_4,omitempty"`
	FavoritesCount *int64     `json:"favorites_count,omitempty"`
	LastInStock    *time.Time `json:"last_in_stock,omitempty"`
	PeriodStart    *time.Time `json:"period_start,omitempty"`
	PeriodEnd      *time.Time `json:"period_end,omitempty"`
	DaysOutOfStock *int       `json:"days_out_of_stock,omitempty"`
}

// ProductListResponse is one page of a search.
type ProductListResponse struct {
	Products   []ProductRecord `json:"products"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
	TotalPages int             `json:"total_pages"`
}

// DeleteProductsRequest is the body for bulk deletion.
type DeleteProductsRequest struct {
	ProductIDs []string `json:"product_ids"`
}
