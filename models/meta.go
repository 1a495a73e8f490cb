// models/meta.go
package models

import "time"

// FileMetadata describes one ingested source file. Keyed by filename wherever it is stored.
type FileMetadata struct {
	PeriodStart *time.Time `json:"period_start,omitempty"` // Nullable, from filename
	PeriodEnd   *time.Time `json:"period_end,omitempty"`   // Nullable, from filename
	RowsCount   int        `json:"rows_count"`
}

// CacheEntry is one row of the persistent snapshot table.
type CacheEntry struct {
	Key       string          `db:"cache_key" json:"key"`
	Rows      []ProductRecord `db:"-" json:"-"` // Stored as an opaque blob
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// CacheStats summarizes the in-memory table for administrative display.
type CacheStats struct {
	TotalProducts     int                     `json:"total_products"`
	FilesLoaded       int                     `json:"files_loaded"`
	UsingPlaceholder  bool                    `json:"using_placeholder"`
	CacheSizeEstimate int64                   `json:"cache_size_estimate"` // bytes, approximate
	FileMetadata      map[string]FileMetadata `json:"file_metadata"`
	Generation        string                  `json:"generation,omitempty"`
}

// LoaderStatus reports where the hot-swap loader is in its lifecycle.
type LoaderStatus struct {
	State            string `json:"state"` // empty, placeholder, partial, complete
	Loading          bool   `json:"loading"`
	CacheReady       bool   `json:"cache_ready"`
	UsingPlaceholder bool   `json:"using_placeholder"`
	FilesLoaded      int    `json:"files_loaded"`
	TotalProducts    int    `json:"total_products"`
	Generation       string `json:"generation,omitempty"`
}
