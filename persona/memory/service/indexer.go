package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
)

// IngestOptions tune chunking, batching and parallelism.
type IngestOptions struct {
	ChunkSize     int
	ChunkOverlap  int
	BatchSize     int // texts per embedding request
	Workers       int // documents processed in parallel
	WatchDebounce time.Duration
}

// FileResult is the outcome for one document.
type FileResult struct {
	Source  string `json:"source"`
	Chunks  int    `json:"chunks"`
	Skipped bool   `json:"skipped"`
	Error   string `json:"error,omitempty"`
}

// IngestReport summarizes one directory pass.
type IngestReport struct {
	Files    []FileResult  `json:"files"`
	Ingested int           `json:"ingested"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Chunks   int           `json:"chunks"`
	Duration time.Duration `json:"duration"`
}

// Ingester turns documents into embedded chunks. A source that already has
// chunks is skipped, so repeated runs never duplicate a partition.
type Ingester struct {
	opts     IngestOptions
	loader   *Loader
	splitter *TextSplitter
	embedder Embedder
	store    *ChunkStore
	metrics  *MetricsCollector
	logger   zerolog.Logger
}

// NewIngester creates an ingester; metrics may be nil.
func NewIngester(opts IngestOptions, loader *Loader, embedder Embedder, store *ChunkStore, metrics *MetricsCollector, logger zerolog.Logger) *Ingester {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.WatchDebounce <= 0 {
		opts.WatchDebounce = 2 * time.Second
	}
	return &Ingester{
		opts:     opts,
		loader:   loader,
		splitter: NewTextSplitter(opts.ChunkSize, opts.ChunkOverlap),
		embedder: embedder,
		store:    store,
		metrics:  metrics,
		logger:   logger.With().Str("component", "ingester").Logger(),
	}
}

// IngestDir ingests every accepted file in the data directory.
// Per-file failures are reported, not returned.
func (ing *Ingester) IngestDir(ctx context.Context) (*IngestReport, error) {
	start := time.Now()
	paths, err := ing.loader.Scan()
	if err != nil {
		return nil, err
	}

	p := pool.NewWithResults[FileResult]().WithMaxGoroutines(ing.opts.Workers)
	for _, path := range paths {
		p.Go(func() FileResult {
			return ing.IngestFile(ctx, path)
		})
	}
	files := p.Wait()
	slices.SortFunc(files, func(a, b FileResult) int {
		switch {
		case a.Source < b.Source:
			return -1
		case a.Source > b.Source:
			return 1
		}
		return 0
	})

	report := &IngestReport{Files: files}
	for _, f := range files {
		switch {
		case f.Error != "":
			report.Failed++
		case f.Skipped:
			report.Skipped++
		default:
			report.Ingested++
			report.Chunks += f.Chunks
		}
	}
	report.Duration = time.Since(start)

	ing.logger.Info().
		Int("ingested", report.Ingested).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Int("chunks", report.Chunks).
		Dur("duration", report.Duration).
		Msg("Ingestion pass complete")

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// IngestFile loads, splits, embeds and stores one document under its base name.
func (ing *Ingester) IngestFile(ctx context.Context, path string) (res FileResult) {
	start := time.Now()
	res.Source = filepath.Base(path)
	logger := ing.logger.With().Str("source", res.Source).Logger()

	var err error
	defer func() {
		if err != nil {
			res.Error = err.Error()
			logger.Error().Err(err).Msg("Failed to ingest document")
		}
		if ing.metrics != nil && !res.Skipped {
			ing.metrics.RecordIngest(time.Since(start), res.Chunks, err)
		}
	}()

	exists, err := ing.store.HasSource(ctx, res.Source)
	if err != nil {
		return res
	}
	if exists {
		res.Skipped = true
		logger.Debug().Msg("Source already ingested, skipping")
		return res
	}

	text, err := ing.loader.Load(path)
	if err != nil {
		return res
	}
	pieces := ing.splitter.Split(text)
	if len(pieces) == 0 {
		logger.Warn().Msg("Document has no extractable text")
		return res
	}

	chunks := make([]Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = Chunk{Source: res.Source, ChunkIndex: i, Content: piece}
	}
	if err = ing.embedChunks(ctx, chunks); err != nil {
		return res
	}
	if err = ing.store.InsertChunks(ctx, chunks); err != nil {
		return res
	}

	res.Chunks = len(chunks)
	logger.Info().Int("chunks", res.Chunks).Dur("duration", time.Since(start)).Msg("Document ingested")
	return res
}

func (ing *Ingester) embedChunks(ctx context.Context, chunks []Chunk) error {
	for lo := 0; lo < len(chunks); lo += ing.opts.BatchSize {
		hi := min(lo+ing.opts.BatchSize, len(chunks))
		texts := make([]string, 0, hi-lo)
		for _, c := range chunks[lo:hi] {
			texts = append(texts, c.Content)
		}
		vecs, err := ing.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed chunks %d-%d: %w", lo, hi-1, err)
		}
		if len(vecs) != len(texts) {
			return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vecs), len(texts))
		}
		for i, v := range vecs {
			chunks[lo+i].Embedding = v
		}
	}
	return nil
}

// Watch ingests new documents dropped into the data directory until ctx ends.
// Bursts of events for the same files are coalesced by WatchDebounce.
func (ing *Ingester) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(ing.loader.Dir()); err != nil {
		return fmt.Errorf("failed to watch %s: %w", ing.loader.Dir(), err)
	}
	ing.logger.Info().Str("dir", ing.loader.Dir()).Msg("Watching for new documents")

	pending := make(map[string]struct{})
	timer := time.NewTimer(ing.opts.WatchDebounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !ing.loader.Accept(ev.Name) {
				continue
			}
			pending[ev.Name] = struct{}{}
			timer.Reset(ing.opts.WatchDebounce)
		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if errors.Is(werr, fsnotify.ErrEventOverflow) {
				ing.logger.Warn().Msg("Watcher overflow, rescanning directory")
				if _, err := ing.IngestDir(ctx); err != nil {
					ing.logger.Error().Err(err).Msg("Rescan failed")
				}
				continue
			}
			ing.logger.Error().Err(werr).Msg("Watcher error")
		case <-timer.C:
			for path := range pending {
				ing.IngestFile(ctx, path)
			}
			clear(pending)
		}
	}
}
