package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrEmptyQuery is returned when a search is attempted with blank text.
var ErrEmptyQuery = errors.New("query is empty")

// VectorRetriever embeds a query and searches the chunk store within a partition.
type VectorRetriever struct {
	embedder Embedder
	store    *ChunkStore
	metrics  *MetricsCollector
	logger   zerolog.Logger
}

// NewVectorRetriever creates a new retriever; metrics may be nil.
func NewVectorRetriever(embedder Embedder, store *ChunkStore, metrics *MetricsCollector, logger zerolog.Logger) *VectorRetriever {
	return &VectorRetriever{
		embedder: embedder,
		store:    store,
		metrics:  metrics,
		logger:   logger.With().Str("component", "retriever").Logger(),
	}
}

// Search returns up to k chunks nearest to query whose source matches filter.
// Every returned chunk satisfies filter.Matches, even if the SQL predicate and
// the Go matcher disagree on case folding.
func (r *VectorRetriever) Search(ctx context.Context, query string, filter PartitionFilter, k int) (results []SearchResult, err error) {
	start := time.Now()
	defer func() {
		if r.metrics != nil {
			r.metrics.RecordRetrieval(filter.String(), time.Since(start), len(results), err)
		}
	}()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	vecs, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for 1 query", len(vecs))
	}

	hits, err := r.store.Search(ctx, vecs[0], filter, k)
	if err != nil {
		return nil, err
	}

	results = hits[:0]
	for _, h := range hits {
		if filter.Matches(h.Chunk.Source) {
			results = append(results, h)
		}
	}

	r.logger.Debug().
		Str("partition", filter.String()).
		Int("k", k).
		Int("results", len(results)).
		Dur("duration", time.Since(start)).
		Msg("Retrieval complete")

	return results, nil
}
