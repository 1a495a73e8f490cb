// services/loader.go
package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gewnthar/favdemand/models"
	"github.com/gewnthar/favdemand/utils"
	"github.com/google/uuid"
)

// Loader states.
const (
	StateEmpty       = "empty"
	StatePlaceholder = "placeholder"
	StatePartial     = "partial"
	StateComplete    = "complete"
)

// Dataset is an immutable view of the in-memory table. A new Dataset is built for every change,
// so a reader holding one never observes a later write.
type Dataset struct {
	Rows        []models.ProductRecord
	Files       map[string]models.FileMetadata
	Placeholder bool
	Generation  string
	LoadedAt    time.Time
}

type LoaderOptions struct {
	PlaceholderCount int
	WarmupDelay      time.Duration
}

// Loader owns the process-wide table. At startup it serves the persistent cache if it can,
// otherwise placeholder rows while a background task swaps real data in file by file.
type Loader struct {
	ingest      *IngestionService
	placeholder *PlaceholderGenerator
	opts        LoaderOptions
	log         *utils.Logger
	now         func() time.Time

	mu      sync.RWMutex
	data    *Dataset
	state   string
	loading bool
	epoch   int // bumped when a reload supersedes background ingestion

	startOnce sync.Once
	bgMu      sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewLoader(ingest *IngestionService, placeholder *PlaceholderGenerator, opts LoaderOptions, log *utils.Logger) *Loader {
	if opts.PlaceholderCount <= 0 {
		opts.PlaceholderCount = 1000
	}
	return &Loader{
		ingest:      ingest,
		placeholder: placeholder,
		opts:        opts,
		log:         log.With("component", "loader"),
		now:         time.Now,
		data:        &Dataset{Files: map[string]models.FileMetadata{}},
		state:       StateEmpty,
	}
}

// Start runs the startup sequence once. A persistent cache hit becomes the final table and no
// background work is scheduled. On a miss the placeholder table is installed and staged
// ingestion starts in the background; Start does not wait for it.
func (l *Loader) Start(ctx context.Context) {
	l.startOnce.Do(func() { l.start(ctx) })
}

func (l *Loader) start(ctx context.Context) {
	if res, ok := l.ingest.CachedTable(ctx); ok {
		l.swap(res.Rows, res.Files, false, StateComplete)
		l.log.Info("Started from persistent cache", "rows", len(res.Rows), "key", res.Key)
		return
	}

	rows := l.placeholder.Generate(l.opts.PlaceholderCount)
	files := map[string]models.FileMetadata{PlaceholderFile: {RowsCount: len(rows)}}
	l.mu.Lock()
	l.installLocked(rows, files, true, StatePlaceholder)
	epoch := l.epoch
	l.mu.Unlock()
	l.log.Info("Serving placeholder data until real data is loaded", "rows", len(rows))

	bgCtx, cancel := context.WithCancel(context.Background())
	l.bgMu.Lock()
	l.cancel = cancel
	l.done = make(chan struct{})
	done := l.done
	l.bgMu.Unlock()

	l.setLoading(true)
	go func() {
		defer close(done)
		defer l.setLoading(false)
		l.runBackground(bgCtx, epoch)
	}()
}

func (l *Loader) runBackground(ctx context.Context, epoch int) {
	if l.opts.WarmupDelay > 0 {
		select {
		case <-time.After(l.opts.WarmupDelay):
		case <-ctx.Done():
			return
		}
	}

	res, err := l.ingest.IngestStaged(ctx, func(st Stage) { l.applyStage(epoch, st) })
	if err != nil {
		if errors.Is(err, context.Canceled) {
			l.log.Info("Background ingestion stopped")
		} else {
			l.log.Error("Background ingestion failed, keeping current table", "err", err)
		}
		return
	}

	l.mu.Lock()
	if l.epoch == epoch && l.state == StatePartial {
		l.state = StateComplete
	}
	l.mu.Unlock()
	l.log.Info("Background ingestion complete", "rows", len(res.Rows), "files", len(res.Files), "failed", len(res.Failed))
}

// applyStage folds one file into the live table: the first file replaces it, later files append.
// Stages from a pass that a reload has superseded are dropped.
func (l *Loader) applyStage(epoch int, st Stage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.epoch != epoch {
		return
	}

	var rows []models.ProductRecord
	files := make(map[string]models.FileMetadata)
	if st.Replace || l.data.Placeholder {
		rows = st.Rows
	} else {
		rows = make([]models.ProductRecord, 0, len(l.data.Rows)+len(st.Rows))
		rows = append(rows, l.data.Rows...)
		rows = append(rows, st.Rows...)
		for k, v := range l.data.Files {
			files[k] = v
		}
	}
	files[st.File] = st.Meta
	l.installLocked(WithDaysOutOfStock(rows, l.now()), files, false, StatePartial)
	l.log.Info("Swapped in source file", "file", st.File, "rows", len(l.data.Rows))
}

// Stop cancels background ingestion and waits for it to exit.
func (l *Loader) Stop() {
	l.bgMu.Lock()
	cancel, done := l.cancel, l.done
	l.bgMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (l *Loader) cancelBackground() {
	l.bgMu.Lock()
	cancel := l.cancel
	l.bgMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until background ingestion, if any was started, has finished.
func (l *Loader) Wait() {
	l.bgMu.Lock()
	done := l.done
	l.bgMu.Unlock()
	if done != nil {
		<-done
	}
}

// Snapshot returns the current table, running the startup sequence first if nothing has yet.
func (l *Loader) Snapshot() *Dataset {
	l.Start(context.Background())
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.data
}

// Reload replaces the table with a fresh ingestion pass. With force set the persistent cache is
// bypassed. On failure the current table is kept. A successful reload cancels any background
// ingestion still pending, so the reloaded table is never replaced by a partial one.
func (l *Loader) Reload(ctx context.Context, force bool) (*IngestResult, error) {
	l.setLoading(true)
	defer l.setLoading(false)

	res, err := l.ingest.Ingest(ctx, force)
	if err != nil {
		l.log.Warn("Reload failed, keeping current table", "force", force, "err", err)
		return nil, err
	}
	l.mu.Lock()
	l.epoch++
	l.installLocked(res.Rows, res.Files, false, StateComplete)
	l.mu.Unlock()
	l.cancelBackground()
	return res, nil
}

// Mutation edits a copy of the table. Returning an error leaves the table unchanged.
type Mutation func(rows []models.ProductRecord, files map[string]models.FileMetadata) ([]models.ProductRecord, map[string]models.FileMetadata, error)

// Update applies fn under the write lock. fn receives copies it may modify freely.
func (l *Loader) Update(fn Mutation) error {
	l.Start(context.Background())
	l.mu.Lock()
	defer l.mu.Unlock()

	rows := make([]models.ProductRecord, len(l.data.Rows))
	copy(rows, l.data.Rows)
	files := make(map[string]models.FileMetadata, len(l.data.Files))
	for k, v := range l.data.Files {
		files[k] = v
	}
	newRows, newFiles, err := fn(rows, files)
	if err != nil {
		return err
	}
	state := l.state
	switch {
	case len(newRows) == 0 && len(newFiles) == 0:
		state = StateEmpty
	case state == StateEmpty:
		state = StateComplete
	}
	l.installLocked(newRows, newFiles, l.data.Placeholder && len(newRows) > 0, state)
	return nil
}

// Status reports the loader's lifecycle position.
func (l *Loader) Status() models.LoaderStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return models.LoaderStatus{
		State:            l.state,
		Loading:          l.loading,
		CacheReady:       l.state != StateEmpty,
		UsingPlaceholder: l.data.Placeholder,
		FilesLoaded:      len(l.data.Files),
		TotalProducts:    len(l.data.Rows),
		Generation:       l.data.Generation,
	}
}

func (l *Loader) setLoading(v bool) {
	l.mu.Lock()
	l.loading = v
	l.mu.Unlock()
}

func (l *Loader) swap(rows []models.ProductRecord, files map[string]models.FileMetadata, placeholder bool, state string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.installLocked(rows, files, placeholder, state)
}

func (l *Loader) installLocked(rows []models.ProductRecord, files map[string]models.FileMetadata, placeholder bool, state string) {
	if files == nil {
		files = map[string]models.FileMetadata{}
	}
	l.data = &Dataset{
		Rows:        rows,
		Files:       files,
		Placeholder: placeholder,
		Generation:  uuid.NewString(),
		LoadedAt:    l.now(),
	}
	l.state = state
}
