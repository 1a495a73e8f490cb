// database/connection.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gewnthar/favdemand/config"
	_ "github.com/go-sql-driver/mysql" // MySQL/MariaDB cache backend
	_ "modernc.org/sqlite"             // Embedded cache backend, registers "sqlite"
)

// Dialect selects the SQL flavor used for schema and upserts.
type Dialect string

const (
	DialectSQLite Dialect = "sqlite"
	DialectMySQL  Dialect = "mysql"
)

// Open opens the cache database described by cfg and verifies it with a ping.
func Open(ctx context.Context, cfg *config.Config) (*sql.DB, Dialect, error) {
	var (
		db      *sql.DB
		dialect Dialect
		err     error
	)
	switch cfg.Cache.Driver {
	case "mysql":
		dialect = DialectMySQL
		db, err = sql.Open("mysql", cfg.Cache.DSN)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open cache database: %w", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)
	default:
		dialect = DialectSQLite
		db, err = OpenSQLite(cfg.CacheDBPath())
		if err != nil {
			return nil, "", err
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("failed to ping cache database: %w", err)
	}
	return db, dialect, nil
}

// OpenSQLite opens (creating if needed) the sqlite file at path.
// SQLite allows a single writer, so the pool is pinned to one connection.
func OpenSQLite(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite cache %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}
