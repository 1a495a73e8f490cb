// database/cache_store.go
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gewnthar/favdemand/models"
	"github.com/gewnthar/favdemand/utils"
)

// CacheStore persists normalized table snapshots and per-file metadata.
// Every public method is best-effort: failures are logged and reported as a miss or a no-op.
type CacheStore struct {
	db        *sql.DB
	dialect   Dialect
	strictKey bool
	log       *utils.Logger
	now       func() time.Time
}

// NewCacheStore wraps an open database. With strictKey set, Get never falls back to an
// entry stored under a different file-set key.
func NewCacheStore(db *sql.DB, dialect Dialect, strictKey bool, log *utils.Logger) *CacheStore {
	return &CacheStore{
		db:        db,
		dialect:   dialect,
		strictKey: strictKey,
		log:       log.With("component", "cache_store"),
		now:       time.Now,
	}
}

func (s *CacheStore) schema() []string {
	if s.dialect == DialectMySQL {
		return []string{
			`CREATE TABLE IF NOT EXISTS data_cache (
				cache_key VARCHAR(191) NOT NULL PRIMARY KEY,
				data LONGBLOB NOT NULL,
				created_at BIGINT NOT NULL,
				updated_at BIGINT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS file_metadata (
				filename VARCHAR(191) NOT NULL PRIMARY KEY,
				metadata TEXT NOT NULL,
				updated_at BIGINT NOT NULL
			)`,
		}
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS data_cache (
			cache_key TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS file_metadata (
			filename TEXT PRIMARY KEY,
			metadata TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
	}
}

// EnsureSchema creates both cache tables if they do not exist yet.
func (s *CacheStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range s.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create cache schema: %w", err)
		}
	}
	return nil
}

func (s *CacheStore) upsertEntrySQL() string {
	if s.dialect == DialectMySQL {
		return `INSERT INTO data_cache (cache_key, data, created_at, updated_at) VALUES (?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE data = VALUES(data), updated_at = VALUES(updated_at)`
	}
	return `INSERT INTO data_cache (cache_key, data, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`
}

func (s *CacheStore) upsertMetadataSQL() string {
	if s.dialect == DialectMySQL {
		return `INSERT INTO file_metadata (filename, metadata, updated_at) VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE metadata = VALUES(metadata), updated_at = VALUES(updated_at)`
	}
	return `INSERT INTO file_metadata (filename, metadata, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(filename) DO UPDATE SET metadata = excluded.metadata, updated_at = excluded.updated_at`
}

// Get returns the snapshot stored under key. When no entry has that key and the store is
// not strict, the most recently updated entry is returned instead; its Key field tells the
// caller which file-set it was built from.
func (s *CacheStore) Get(ctx context.Context, key string) (*models.CacheEntry, bool) {
	entry, err := s.queryEntry(ctx,
		`SELECT cache_key, data, created_at, updated_at FROM data_cache WHERE cache_key = ?`, key)
	if err == nil {
		return entry, true
	}
	if !errors.Is(err, sql.ErrNoRows) {
		s.log.Warn("Cache lookup failed", "key", key, "err", err)
		return nil, false
	}
	if s.strictKey {
		return nil, false
	}

	entry, err = s.queryEntry(ctx,
		`SELECT cache_key, data, created_at, updated_at FROM data_cache ORDER BY updated_at DESC LIMIT 1`)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.log.Warn("Cache fallback lookup failed", "err", err)
		}
		return nil, false
	}
	s.log.Info("Cache key miss, serving most recent entry", "requested", key, "served", entry.Key)
	return entry, true
}

func (s *CacheStore) queryEntry(ctx context.Context, query string, args ...interface{}) (*models.CacheEntry, error) {
	var (
		entry            models.CacheEntry
		blob             []byte
		created, updated int64
	)
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&entry.Key, &blob, &created, &updated); err != nil {
		return nil, err
	}
	rows, err := DecodeSnapshot(blob)
	if err != nil {
		return nil, err
	}
	entry.Rows = rows
	entry.CreatedAt = time.Unix(0, created).UTC()
	entry.UpdatedAt = time.Unix(0, updated).UTC()
	return &entry, nil
}

// Put upserts the snapshot under key together with per-file metadata in one transaction.
// An existing entry keeps its created_at. Returns false if nothing was written.
func (s *CacheStore) Put(ctx context.Context, key string, rows []models.ProductRecord, files map[string]models.FileMetadata) bool {
	if err := s.put(ctx, key, rows, files); err != nil {
		s.log.Warn("Cache write failed", "key", key, "err", err)
		return false
	}
	s.log.Info("Cache written", "key", key, "rows", len(rows), "files", len(files))
	return true
}

func (s *CacheStore) put(ctx context.Context, key string, rows []models.ProductRecord, files map[string]models.FileMetadata) error {
	blob, err := EncodeSnapshot(rows)
	if err != nil {
		return err
	}
	ts := s.now().UnixNano()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin cache transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.upsertEntrySQL(), key, blob, ts, ts); err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}

	if len(files) > 0 {
		stmt, err := tx.PrepareContext(ctx, s.upsertMetadataSQL())
		if err != nil {
			return fmt.Errorf("failed to prepare metadata upsert: %w", err)
		}
		defer stmt.Close()
		for name, meta := range files {
			b, err := json.Marshal(meta)
			if err != nil {
				return fmt.Errorf("failed to encode metadata for %s: %w", name, err)
			}
			if _, err := stmt.ExecContext(ctx, name, string(b), ts); err != nil {
				return fmt.Errorf("failed to upsert metadata for %s: %w", name, err)
			}
		}
	}
	return tx.Commit()
}

// FileMetadata lists every stored per-file metadata record. Unreadable rows are skipped.
func (s *CacheStore) FileMetadata(ctx context.Context) map[string]models.FileMetadata {
	out := make(map[string]models.FileMetadata)
	rows, err := s.db.QueryContext(ctx, `SELECT filename, metadata FROM file_metadata ORDER BY filename`)
	if err != nil {
		s.log.Warn("Failed to query file metadata", "err", err)
		return out
	}
	defer rows.Close()

	for rows.Next() {
		var name, raw string
		if err := rows.Scan(&name, &raw); err != nil {
			s.log.Warn("Failed to scan file metadata row", "err", err)
			continue
		}
		var meta models.FileMetadata
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			s.log.Warn("Failed to decode file metadata", "file", name, "err", err)
			continue
		}
		out[name] = meta
	}
	if err := rows.Err(); err != nil {
		s.log.Warn("Error iterating file metadata rows", "err", err)
	}
	return out
}

// Clear wipes both cache tables.
func (s *CacheStore) Clear(ctx context.Context) bool {
	for _, table := range []string{"data_cache", "file_metadata"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			s.log.Warn("Failed to clear cache table", "table", table, "err", err)
			return false
		}
	}
	s.log.Info("Persistent cache cleared")
	return true
}
