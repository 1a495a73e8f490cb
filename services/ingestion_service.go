// services/ingestion_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gewnthar/favdemand/models"
	"github.com/gewnthar/favdemand/sources"
	"github.com/gewnthar/favdemand/utils"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// SnapshotCache is the persistent store ingestion reads from and writes to.
// Implementations swallow their own I/O errors.
type SnapshotCache interface {
	Get(ctx context.Context, key string) (*models.CacheEntry, bool)
	Put(ctx context.Context, key string, rows []models.ProductRecord, files map[string]models.FileMetadata) bool
	FileMetadata(ctx context.Context) map[string]models.FileMetadata
	Clear(ctx context.Context) bool
}

// FileLoader reads and normalizes one source file.
type FileLoader func(path string) ([]models.ProductRecord, models.FileMetadata, error)

// IngestResult is the outcome of one ingestion pass. Rows are shared between every caller
// that joined the same pass and must not be modified.
type IngestResult struct {
	Key       string
	Rows      []models.ProductRecord
	Files     map[string]models.FileMetadata
	FromCache bool
	Failed    []string
}

// Stage is one file's contribution during a staged ingest. Replace marks the first file to
// succeed, whose rows take the place of whatever table the receiver currently holds.
type Stage struct {
	File    string
	Meta    models.FileMetadata
	Rows    []models.ProductRecord
	Replace bool
}

type IngestionOptions struct {
	DataDir    string
	Extensions []string
	Workers    int
	QuickStart string
}

// IngestionService discovers, normalizes and concatenates source files. At most one pass runs
// per service at a time; callers arriving while a pass is in flight wait for it and share its result.
type IngestionService struct {
	opts  IngestionOptions
	cache SnapshotCache
	load  FileLoader
	log   *utils.Logger
	now   func() time.Time
	group singleflight.Group
}

func NewIngestionService(opts IngestionOptions, cache SnapshotCache, log *utils.Logger) *IngestionService {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &IngestionService{
		opts:  opts,
		cache: cache,
		load:  sources.LoadFile,
		log:   log.With("component", "ingestion"),
		now:   time.Now,
	}
}

// Full and staged passes coalesce separately: a staged pass reports stages to its own caller.
const (
	flightKey       = "ingest"
	stagedFlightKey = "ingest-staged"
)

// CachedTable looks the current file-set up in the persistent cache. A missing data directory
// is not an error here: the lookup then runs with the empty file-set key, which only the
// lenient fallback can satisfy.
func (s *IngestionService) CachedTable(ctx context.Context) (*IngestResult, bool) {
	files, err := sources.Discover(s.opts.DataDir, s.opts.Extensions)
	if err != nil && !errors.Is(err, models.ErrNoData) {
		s.log.Warn("Source discovery failed before cache lookup", "dir", s.opts.DataDir, "err", err)
	}
	key := sources.FileSetKey(files)
	entry, ok := s.cache.Get(ctx, key)
	if !ok || len(entry.Rows) == 0 {
		return nil, false
	}
	return &IngestResult{
		Key:       entry.Key,
		Rows:      entry.Rows,
		Files:     s.cache.FileMetadata(ctx),
		FromCache: true,
	}, true
}

// Ingest returns the table for the current file-set. Unless force is set, an exact or fallback
// persistent cache hit is returned without touching the files. Otherwise every file is
// normalized on a bounded worker pool, the results are concatenated in filename order,
// days_out_of_stock is recomputed over the whole table and the result is written back to the cache.
//
// The shared pass is detached from ctx: a cancelled caller returns ctx.Err() while the pass
// carries on for everyone else waiting on it.
func (s *IngestionService) Ingest(ctx context.Context, force bool) (*IngestResult, error) {
	ch := s.group.DoChan(flightKey, func() (interface{}, error) {
		return s.ingest(context.WithoutCancel(ctx), force)
	})
	select {
	case r := <-ch:
		if r.Shared {
			s.log.Debug("Joined in-flight ingestion")
		}
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*IngestResult), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *IngestionService) ingest(ctx context.Context, force bool) (*IngestResult, error) {
	files, err := sources.Discover(s.opts.DataDir, s.opts.Extensions)
	if err != nil {
		return nil, err
	}
	key := sources.FileSetKey(files)

	if !force {
		if entry, ok := s.cache.Get(ctx, key); ok && len(entry.Rows) > 0 {
			s.log.Info("Serving table from persistent cache", "key", entry.Key, "rows", len(entry.Rows))
			return &IngestResult{Key: entry.Key, Rows: entry.Rows, Files: s.cache.FileMetadata(ctx), FromCache: true}, nil
		}
	}

	s.log.Info("Starting ingestion", "files", len(files), "workers", s.opts.Workers)
	type fileResult struct {
		rows []models.ProductRecord
		meta models.FileMetadata
		err  error
	}
	results := make([]fileResult, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rows, meta, err := s.load(f.Path)
			if err != nil {
				results[i].err = &models.FileError{File: f.Name, Err: err}
				return nil
			}
			results[i] = fileResult{rows: rows, meta: meta}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("ingestion interrupted: %w", err)
	}

	res := &IngestResult{Key: key, Files: make(map[string]models.FileMetadata)}
	var errs []error
	total := 0
	for i, r := range results {
		if r.err != nil {
			s.log.Warn("Dropping source file", "file", files[i].Name, "err", r.err)
			errs = append(errs, r.err)
			res.Failed = append(res.Failed, files[i].Name)
			continue
		}
		total += len(r.rows)
		res.Files[files[i].Name] = r.meta
		s.log.Info("Loaded source file", "file", files[i].Name, "rows", len(r.rows))
	}
	if len(res.Files) == 0 {
		return nil, fmt.Errorf("%w: %w", models.ErrIngestionFailed, errors.Join(errs...))
	}

	rows := make([]models.ProductRecord, 0, total)
	for _, r := range results {
		rows = append(rows, r.rows...)
	}
	res.Rows = WithDaysOutOfStock(rows, s.now())

	s.cache.Put(ctx, key, res.Rows, res.Files)
	s.log.Info("Ingestion finished", "rows", len(res.Rows), "files", len(res.Files), "failed", len(res.Failed))
	return res, nil
}

// IngestStaged loads files one at a time for the hot-swap path: the quick-start file first
// (when present), then the rest in filename order. onStage is called after each successful
// file, before the next one starts. The accumulated table is written to the persistent cache
// once every file has been tried. Cancellation is checked between files.
func (s *IngestionService) IngestStaged(ctx context.Context, onStage func(Stage)) (*IngestResult, error) {
	v, err, _ := s.group.Do(stagedFlightKey, func() (interface{}, error) {
		return s.ingestStaged(ctx, onStage)
	})
	if err != nil {
		return nil, err
	}
	return v.(*IngestResult), nil
}

func (s *IngestionService) ingestStaged(ctx context.Context, onStage func(Stage)) (*IngestResult, error) {
	files, err := sources.Discover(s.opts.DataDir, s.opts.Extensions)
	if err != nil {
		return nil, err
	}
	key := sources.FileSetKey(files)

	quick, rest := sources.Split(files, s.opts.QuickStart)
	ordered := rest
	if quick != nil {
		ordered = append([]sources.SourceFile{*quick}, rest...)
	} else {
		s.log.Info("Quick-start file not present", "file", s.opts.QuickStart)
	}

	res := &IngestResult{Key: key, Files: make(map[string]models.FileMetadata)}
	var (
		all  []models.ProductRecord
		errs []error
	)
	for _, f := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("staged ingestion interrupted: %w", err)
		}
		rows, meta, err := s.load(f.Path)
		if err != nil {
			fe := &models.FileError{File: f.Name, Err: err}
			s.log.Warn("Dropping source file", "file", f.Name, "err", fe)
			errs = append(errs, fe)
			res.Failed = append(res.Failed, f.Name)
			continue
		}
		stage := Stage{File: f.Name, Meta: meta, Rows: rows, Replace: len(res.Files) == 0}
		all = append(all, rows...)
		res.Files[f.Name] = meta
		s.log.Info("Loaded source file", "file", f.Name, "rows", len(rows), "replace", stage.Replace)
		if onStage != nil {
			onStage(stage)
		}
	}
	if len(res.Files) == 0 {
		return nil, fmt.Errorf("%w: %w", models.ErrIngestionFailed, errors.Join(errs...))
	}

	res.Rows = WithDaysOutOfStock(all, s.now())
	s.cache.Put(ctx, key, res.Rows, res.Files)
	s.log.Info("Staged ingestion finished", "rows", len(res.Rows), "files", len(res.Files), "failed", len(res.Failed))
	return res, nil
}
