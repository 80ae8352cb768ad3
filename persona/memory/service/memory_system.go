package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ZanzyTHEbar/persona-rag/persona/config"
	ports "github.com/ZanzyTHEbar/persona-rag/persona/generation/harness/ports"
	"github.com/rs/zerolog"
)

// MemorySystem is the main entry point for the retrieval subsystem.
// It wires the chunk store, retriever, ingester and metrics over one database.
type MemorySystem struct {
	config *config.Config

	embedder  Embedder
	store     *ChunkStore
	retriever *VectorRetriever
	ingester  *Ingester
	metrics   *MetricsCollector

	db *sql.DB
}

// MemorySystemConfig holds all configuration for initializing the memory system
type MemorySystemConfig struct {
	Config   *config.Config
	DB       *sql.DB
	Embedder Embedder
	Cache    ports.Cache // optional query/chunk embedding cache
	Logger   zerolog.Logger
}

// Diagnostics describes what the store currently holds.
type Diagnostics struct {
	Sources     []SourceCount  `json:"sources"`
	TotalChunks int            `json:"total_chunks"`
	Dimension   int            `json:"dimension"`
	Distance    string         `json:"distance"`
	Metrics     MetricsSummary `json:"metrics"`
}

// NewMemorySystem creates a fully configured memory system
func NewMemorySystem(ctx context.Context, cfg MemorySystemConfig) (*MemorySystem, error) {
	if cfg.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.DB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if d := cfg.Embedder.Dimension(); d != cfg.Config.Embedding.Dims {
		return nil, fmt.Errorf("embedder dimension %d does not match embedding.dims %d", d, cfg.Config.Embedding.Dims)
	}

	ms := &MemorySystem{
		config:   cfg.Config,
		db:       cfg.DB,
		embedder: cfg.Embedder,
		metrics:  NewMetricsCollector(),
	}
	if cfg.Cache != nil {
		ms.embedder = NewCachedEmbedder(cfg.Embedder, cfg.Cache, cfg.Config.Embedding.CacheTTLSeconds, cfg.Config.Embedding.Model)
	}

	store, err := NewChunkStore(cfg.DB, cfg.Config.Embedding.Dims, cfg.Config.Memory.Distance)
	if err != nil {
		return nil, fmt.Errorf("failed to create chunk store: %w", err)
	}
	ms.store = store

	var metrics *MetricsCollector
	if cfg.Config.Memory.EnableMetrics {
		metrics = ms.metrics
	}
	ms.retriever = NewVectorRetriever(ms.embedder, store, metrics, cfg.Logger)

	loader, err := NewLoader(cfg.Config.Ingest.DataDir, cfg.Config.Ingest.IgnoreFile)
	if err != nil {
		return nil, err
	}
	ms.ingester = NewIngester(IngestOptions{
		ChunkSize:     cfg.Config.Ingest.ChunkSize,
		ChunkOverlap:  cfg.Config.Ingest.ChunkOverlap,
		BatchSize:     cfg.Config.Ingest.BatchSize,
		Workers:       cfg.Config.Ingest.Workers,
		WatchDebounce: cfg.Config.Ingest.WatchDebounce,
	}, loader, ms.embedder, store, metrics, cfg.Logger)

	cfg.Logger.Debug().
		Int("dims", store.Dimension()).
		Str("distance", cfg.Config.Memory.Distance).
		Str("data_dir", loader.Dir()).
		Msg("Memory system initialized")

	return ms, nil
}

// Retriever returns the partition-scoped retriever.
func (ms *MemorySystem) Retriever() *VectorRetriever { return ms.retriever }

// Ingester returns the document ingester.
func (ms *MemorySystem) Ingester() *Ingester { return ms.ingester }

// Store returns the chunk store.
func (ms *MemorySystem) Store() *ChunkStore { return ms.store }

// Metrics returns the collector shared by retrieval and ingestion.
func (ms *MemorySystem) Metrics() *MetricsCollector { return ms.metrics }

// Diagnostics reports chunk counts per partition plus collected metrics.
func (ms *MemorySystem) Diagnostics(ctx context.Context) (*Diagnostics, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	counts, err := ms.store.CountBySource(ctx)
	if err != nil {
		return nil, err
	}
	d := &Diagnostics{
		Sources:   counts,
		Dimension: ms.store.Dimension(),
		Distance:  ms.config.Memory.Distance,
		Metrics:   ms.metrics.GetSummary(),
	}
	for _, c := range counts {
		d.TotalChunks += c.Chunks
	}
	return d, nil
}

// Reset deletes every stored chunk so the next ingestion starts fresh.
func (ms *MemorySystem) Reset(ctx context.Context) (int64, error) {
	n, err := ms.store.Reset(ctx)
	if err != nil {
		return 0, err
	}
	ms.metrics.Reset()
	return n, nil
}
