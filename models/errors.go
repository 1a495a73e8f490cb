// models/errors.go
package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNoData means the source directory is missing or holds no matching files.
	ErrNoData = errors.New("no source data")
	// ErrIngestionFailed means not a single source file could be normalized.
	ErrIngestionFailed = errors.New("ingestion failed")
	// ErrNotFound is returned for lookups by id with no match.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when adding a row whose id is already present.
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidArgument marks malformed caller input.
	ErrInvalidArgument = errors.New("invalid argument")
)

// FileError records why a single source file was dropped during ingestion.
type FileError struct {
	File string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("normalize %s: %v", e.File, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }
