package resync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/secondbrain-labs/brainmcp/internal/docs"
	"github.com/secondbrain-labs/brainmcp/internal/errors"
	"github.com/secondbrain-labs/brainmcp/internal/index"
	"github.com/secondbrain-labs/brainmcp/internal/store"
)

// Resync reasons, recorded in the resync history.
const (
	ReasonWatcher  = "watcher"
	ReasonManual   = "manual"
	ReasonStartup  = "startup"
	ReasonRecovery = "recovery"
)

// State is the driver's position in its run cycle.
type State string

const (
	// StateIdle means no run is active or pending.
	StateIdle State = "idle"
	// StateRunning means a run is in progress.
	StateRunning State = "running"
	// StatePendingRerun means a run is in progress and a follow-up
	// run is queued behind it.
	StatePendingRerun State = "pending_rerun"
)

// Request asks the driver for a resync run. Requests arriving while a
// run is active coalesce into a single follow-up run; their FullRebuild
// flags combine with OR.
type Request struct {
	Reason      string
	FullRebuild bool
}

// Source lists and loads the documents to synchronize.
type Source interface {
	Scan(ctx context.Context) ([]docs.FileInfo, error)
	Load(ctx context.Context, file docs.FileInfo) (*docs.LoadedFile, error)
}

// Embedder turns chunk contents into vectors.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Index is the write surface of the index coordinator.
type Index interface {
	Reset(ctx context.Context) error
	Upsert(ctx context.Context, items []index.Item) (int, error)
	Remove(ctx context.Context, ids []string) (int, error)
	IDsForPath(path string) []string
	Save() error
}

// DocumentState tracks per-document sync state and resync history.
type DocumentState interface {
	AllDocuments(ctx context.Context) (map[string]*store.Document, error)
	SaveDocuments(ctx context.Context, docs []*store.Document) error
	DeleteDocument(ctx context.Context, path string) error
	DeleteAllDocuments(ctx context.Context) error
	RecordResync(ctx context.Context, rec *store.ResyncRecord) (int64, error)
}

// Invalidator drops cached query results after the index changes.
type Invalidator interface {
	InvalidateAll()
}

// Options configures a Driver.
type Options struct {
	// BatchSize is the number of chunks per embedding request. Default 16.
	BatchSize int

	// CallTimeout bounds each collaborator call. A run itself is not
	// cancellable, but no single call can hang it forever. Default 2m.
	CallTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 16
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 2 * time.Minute
	}
	return o
}

// Driver runs resyncs on one background goroutine. Trigger never
// blocks; bursts of requests during a run coalesce into at most one
// follow-up run.
type Driver struct {
	source     Source
	embedder   Embedder
	idx        Index
	state      DocumentState
	invalidate Invalidator
	opts       Options

	progress *Progress

	mu       sync.Mutex
	runState State
	pending  *Request
	started  bool

	wakeCh chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewDriver creates a driver. The invalidator may be nil.
func NewDriver(source Source, embedder Embedder, idx Index, state DocumentState, invalidate Invalidator, opts Options) (*Driver, error) {
	if source == nil {
		return nil, fmt.Errorf("resync: source is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("resync: embedder is required")
	}
	if idx == nil {
		return nil, fmt.Errorf("resync: index is required")
	}
	if state == nil {
		return nil, fmt.Errorf("resync: document state is required")
	}
	return &Driver{
		source:     source,
		embedder:   embedder,
		idx:        idx,
		state:      state,
		invalidate: invalidate,
		opts:       opts.withDefaults(),
		progress:   NewProgress(),
		runState:   StateIdle,
		wakeCh:     make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}, nil
}

// Start launches the background goroutine. Safe to call once.
func (d *Driver) Start() {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mu.Unlock()

	go d.loop()
}

// Stop waits for any active run to finish, then stops the goroutine.
// Pending follow-up requests are discarded.
func (d *Driver) Stop() {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	close(d.stopCh)
	<-d.doneCh
}

// Trigger requests a resync run. It never blocks. A request arriving
// during a run marks the driver PendingRerun and merges into the single
// queued follow-up; FullRebuild flags OR together.
func (d *Driver) Trigger(req Request) {
	if req.Reason == "" {
		req.Reason = ReasonManual
	}

	d.mu.Lock()
	if d.pending == nil {
		d.pending = &Request{Reason: req.Reason}
	}
	d.pending.FullRebuild = d.pending.FullRebuild || req.FullRebuild
	if d.runState == StateRunning {
		d.runState = StatePendingRerun
	}
	d.mu.Unlock()

	select {
	case d.wakeCh <- struct{}{}:
	default:
	}
}

// State returns the driver's current run state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runState
}

// Progress returns the progress tracker for the current or last run.
func (d *Driver) Progress() *Progress {
	return d.progress
}

func (d *Driver) loop() {
	defer close(d.doneCh)

	for {
		select {
		case <-d.stopCh:
			return
		case <-d.wakeCh:
		}

		for {
			d.mu.Lock()
			req := d.pending
			d.pending = nil
			if req == nil {
				d.runState = StateIdle
				d.mu.Unlock()
				break
			}
			d.runState = StateRunning
			d.mu.Unlock()

			d.runOnce(*req)

			select {
			case <-d.stopCh:
				return
			default:
			}
		}
	}
}

func (d *Driver) runOnce(req Request) {
	d.progress.Restart()
	started := time.Now()
	rec := &store.ResyncRecord{
		StartedAt: started,
		Reason:    req.Reason,
		Full:      req.FullRebuild,
	}

	err := d.sync(req, rec)
	rec.FinishedAt = time.Now()
	if err != nil {
		rec.Err = err.Error()
		d.progress.SetError(err.Error())
		slog.Error("resync_failed",
			"reason", req.Reason,
			"full", req.FullRebuild,
			"error", err)
	} else {
		d.progress.SetReady()
		slog.Info("resync_complete",
			"reason", req.Reason,
			"full", req.FullRebuild,
			"indexed", rec.ItemsIndexed,
			"skipped", rec.ItemsSkipped,
			"removed", rec.ItemsRemoved,
			"duration", rec.FinishedAt.Sub(started).Round(time.Millisecond))
	}

	ctx, cancel := d.callCtx()
	defer cancel()
	if _, rerr := d.state.RecordResync(ctx, rec); rerr != nil {
		slog.Warn("resync_record_failed", "error", rerr)
	}
}

// sync is one full pipeline pass: scan, chunk, embed, write, persist.
// Per-item failures are logged and skipped; index write failures abort
// the run and leave the previous index content servable.
func (d *Driver) sync(req Request, rec *store.ResyncRecord) error {
	ctx, cancel := d.callCtx()
	files, err := d.source.Scan(ctx)
	cancel()
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	d.progress.SetStage(StageScanning, len(files))

	var known map[string]*store.Document
	if !req.FullRebuild {
		ctx, cancel := d.callCtx()
		known, err = d.state.AllDocuments(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("load document state: %w", err)
		}
	}

	d.progress.SetStage(StageChunking, len(files))
	var (
		changed   []*docs.LoadedFile
		touched   []*store.Document
		processed int
		skipped   int
		seen      = make(map[string]struct{}, len(files))
	)
	for _, f := range files {
		seen[f.Path] = struct{}{}
		prev := known[f.Path]
		if prev != nil && prev.Size == f.Size && prev.ModTime.Equal(f.ModTime) {
			skipped++
			d.progress.UpdateFiles(processed, skipped)
			continue
		}

		ctx, cancel := d.callCtx()
		lf, lerr := d.source.Load(ctx, f)
		cancel()
		if lerr != nil {
			slog.Warn("resync_item_skipped", "error", errors.ResyncItemFailed(f.Path, lerr))
			skipped++
			d.progress.UpdateFiles(processed, skipped)
			continue
		}
		if prev != nil && prev.ContentHash == lf.ContentHash {
			// Same content under a new size or mtime. Refresh the
			// stored row so the next run skips this file on the cheap
			// stat check instead of re-hashing it forever.
			refreshed := *prev
			refreshed.Size = f.Size
			refreshed.ModTime = f.ModTime
			touched = append(touched, &refreshed)
			skipped++
			d.progress.UpdateFiles(processed, skipped)
			continue
		}

		changed = append(changed, lf)
		processed++
		d.progress.UpdateFiles(processed, skipped)
	}
	rec.ItemsSkipped = skipped

	var chunks []*store.Chunk
	for _, lf := range changed {
		chunks = append(chunks, lf.Chunks...)
	}
	d.progress.SetStage(StageEmbedding, len(changed))
	d.progress.SetChunksTotal(len(chunks))

	// Embed in batches. A failed batch skips its chunks; the files
	// they belong to keep their old state rows so the next run
	// retries them.
	vectors := make(map[string][]float32, len(chunks))
	for start := 0; start < len(chunks); start += d.opts.BatchSize {
		end := min(start+d.opts.BatchSize, len(chunks))
		batch := chunks[start:end]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}

		ctx, cancel := d.callCtx()
		vecs, eerr := d.embedder.EmbedBatch(ctx, texts)
		cancel()
		if eerr != nil || len(vecs) != len(batch) {
			slog.Warn("embed_batch_failed", "chunks", len(batch), "error", eerr)
			continue
		}
		for i, c := range batch {
			vectors[c.ID] = vecs[i]
		}
		d.progress.UpdateChunks(len(vectors))
	}

	d.progress.SetStage(StageIndexing, len(changed))
	mutated := false

	if req.FullRebuild {
		ctx, cancel := d.callCtx()
		err := d.idx.Reset(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("reset index: %w", err)
		}
		mutated = true

		ctx, cancel = d.callCtx()
		derr := d.state.DeleteAllDocuments(ctx)
		cancel()
		if derr != nil {
			return fmt.Errorf("reset document state: %w", derr)
		}
	}

	var (
		items    []index.Item
		docRows  []*store.Document
		staleIDs []string
	)
	now := time.Now()
	for _, lf := range changed {
		complete := true
		fileItems := make([]index.Item, 0, len(lf.Chunks))
		for _, c := range lf.Chunks {
			vec, ok := vectors[c.ID]
			if !ok {
				complete = false
				break
			}
			fileItems = append(fileItems, index.Item{Chunk: c, Vector: vec})
		}
		if !complete {
			slog.Warn("resync_item_skipped",
				"error", errors.ResyncItemFailed(lf.Path, fmt.Errorf("embedding unavailable")))
			rec.ItemsSkipped++
			continue
		}

		items = append(items, fileItems...)
		if !req.FullRebuild {
			newIDs := make(map[string]struct{}, len(lf.Chunks))
			for _, c := range lf.Chunks {
				newIDs[c.ID] = struct{}{}
			}
			// A shrunken file leaves orphan chunk ordinals behind.
			for _, id := range d.idx.IDsForPath(lf.Path) {
				if _, keep := newIDs[id]; !keep {
					staleIDs = append(staleIDs, id)
				}
			}
		}
		docRows = append(docRows, &store.Document{
			Path:        lf.Path,
			Size:        lf.Size,
			ModTime:     lf.ModTime,
			ContentHash: lf.ContentHash,
			Kind:        lf.Kind,
			ChunkCount:  len(lf.Chunks),
			IndexedAt:   now,
		})
	}

	docRows = append(docRows, touched...)

	if len(items) > 0 {
		ctx, cancel := d.callCtx()
		n, uerr := d.idx.Upsert(ctx, items)
		cancel()
		if uerr != nil {
			return fmt.Errorf("upsert: %w", uerr)
		}
		rec.ItemsIndexed = n
		d.progress.UpdateChunks(n)
		mutated = true
	}

	if !req.FullRebuild {
		removeIDs := staleIDs
		var vanished []string
		for path := range known {
			if _, ok := seen[path]; !ok {
				vanished = append(vanished, path)
				removeIDs = append(removeIDs, d.idx.IDsForPath(path)...)
			}
		}
		if len(removeIDs) > 0 {
			ctx, cancel := d.callCtx()
			n, rerr := d.idx.Remove(ctx, removeIDs)
			cancel()
			if rerr != nil {
				return fmt.Errorf("remove: %w", rerr)
			}
			rec.ItemsRemoved = n
			mutated = true
		}
		for _, path := range vanished {
			ctx, cancel := d.callCtx()
			derr := d.state.DeleteDocument(ctx, path)
			cancel()
			if derr != nil {
				slog.Warn("document_state_delete_failed", "path", path, "error", derr)
			}
		}
	}

	if mutated && d.invalidate != nil {
		d.invalidate.InvalidateAll()
	}

	if mutated {
		if err := d.idx.Save(); err != nil {
			return fmt.Errorf("save index: %w", err)
		}
	}
	if len(docRows) > 0 {
		ctx, cancel := d.callCtx()
		serr := d.state.SaveDocuments(ctx, docRows)
		cancel()
		if serr != nil {
			return fmt.Errorf("save document state: %w", serr)
		}
	}
	return nil
}

func (d *Driver) callCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d.opts.CallTimeout)
}
