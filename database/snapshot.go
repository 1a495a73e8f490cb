// database/snapshot.go
package database

import (
	"fmt"
	"time"

	"github.com/gewnthar/favdemand/models"
	"github.com/vmihailenco/msgpack/v5"
)

// EncodeSnapshot serializes the whole table into the opaque blob stored in data_cache.
func EncodeSnapshot(rows []models.ProductRecord) ([]byte, error) {
	b, err := msgpack.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return b, nil
}

// DecodeSnapshot is the inverse of EncodeSnapshot. msgpack decodes timestamps in the local
// zone, so every date is moved back to UTC before the rows leave this package.
func DecodeSnapshot(b []byte) ([]models.ProductRecord, error) {
	var rows []models.ProductRecord
	if err := msgpack.Unmarshal(b, &rows); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	for i := range rows {
		r := &rows[i]
		r.LastInStock = utcDate(r.LastInStock)
		r.PeriodStart = utcDate(r.PeriodStart)
		r.PeriodEnd = utcDate(r.PeriodEnd)
	}
	return rows, nil
}

func utcDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := models.DateOnly(t.UTC())
	return &d
}
