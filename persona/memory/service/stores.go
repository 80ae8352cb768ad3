package service

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/ZanzyTHEbar/persona-rag/persona/memory/database"
	"github.com/google/uuid"
)

// Distance metrics supported by libSQL vector functions.
const (
	DistanceCosine = "cosine"
	DistanceL2     = "l2"
)

// ChunkStore persists document chunks and runs nearest-neighbour queries over document_chunks.
type ChunkStore struct {
	db       *sql.DB
	dims     int
	distance string
	now      func() time.Time
}

// NewChunkStore creates a chunk store; distance is "cosine" or "l2".
func NewChunkStore(db *sql.DB, dims int, distance string) (*ChunkStore, error) {
	switch distance {
	case "", DistanceCosine:
		distance = DistanceCosine
	case DistanceL2:
	default:
		return nil, fmt.Errorf("unsupported distance %q", distance)
	}
	if dims <= 0 {
		return nil, fmt.Errorf("embedding dims must be positive: %d", dims)
	}
	return &ChunkStore{db: db, dims: dims, distance: distance, now: time.Now}, nil
}

// Dimension is the vector width the store accepts.
func (s *ChunkStore) Dimension() int { return s.dims }

// HasSource reports whether any chunk of the partition is stored.
func (s *ChunkStore) HasSource(ctx context.Context, source string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM document_chunks WHERE source = ? LIMIT 1`, source).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check source %s: %w", source, err)
	}
	return true, nil
}

// InsertChunks writes all chunks in one transaction.
func (s *ChunkStore) InsertChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for i := range chunks {
		if len(chunks[i].Embedding) != s.dims {
			return fmt.Errorf("chunk %s#%d has %d dims, store expects %d", chunks[i].Source, chunks[i].ChunkIndex, len(chunks[i].Embedding), s.dims)
		}
	}

	return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO document_chunks (id, source, chunk_index, content, embedding, created_at)
			VALUES (?, ?, ?, ?, vector32(?), ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for i := range chunks {
			c := &chunks[i]
			if c.ID == "" {
				c.ID = uuid.New().String()
			}
			if c.CreatedAt.IsZero() {
				c.CreatedAt = s.now()
			}
			if _, err := stmt.ExecContext(ctx, c.ID, c.Source, c.ChunkIndex, c.Content, encodeVector(c.Embedding), c.CreatedAt.UnixMilli()); err != nil {
				return fmt.Errorf("failed to insert chunk %s#%d: %w", c.Source, c.ChunkIndex, err)
			}
		}
		return nil
	})
}

// Search returns the k nearest chunks inside the filtered partitions, closest first.
func (s *ChunkStore) Search(ctx context.Context, query []float32, filter PartitionFilter, k int) ([]SearchResult, error) {
	if len(query) != s.dims {
		return nil, fmt.Errorf("query has %d dims, store expects %d", len(query), s.dims)
	}
	if k <= 0 {
		return []SearchResult{}, nil
	}

	fn := "vector_distance_cos"
	if s.distance == DistanceL2 {
		fn = "vector_distance_l2"
	}
	if len(filter.Contains) > 0 {
		sources, err := s.matchingSources(ctx, filter)
		if err != nil {
			return nil, err
		}
		if len(sources) == 0 {
			return []SearchResult{}, nil
		}
		filter = PartitionFilter{Exact: sources}
	}
	pred, predArgs := filter.where()
	q := fmt.Sprintf(`
		SELECT id, source, chunk_index, content, created_at, %s(embedding, vector32(?)) AS distance
		FROM document_chunks
		WHERE %s
		ORDER BY distance ASC
		LIMIT ?`, fn, pred)

	args := make([]any, 0, len(predArgs)+2)
	args = append(args, encodeVector(query))
	args = append(args, predArgs...)
	args = append(args, k)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	results := []SearchResult{}
	for rows.Next() {
		var (
			r       SearchResult
			created int64
		)
		if err := rows.Scan(&r.Chunk.ID, &r.Chunk.Source, &r.Chunk.ChunkIndex, &r.Chunk.Content, &created, &r.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		r.Chunk.CreatedAt = time.UnixMilli(created)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chunks: %w", err)
	}
	return results, nil
}

// matchingSources lists the stored sources the filter selects, using
// Unicode case folding for Contains keywords.
func (s *ChunkStore) matchingSources(ctx context.Context, filter PartitionFilter) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT source FROM document_chunks`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var matched []string
	for rows.Next() {
		var source string
		if err := rows.Scan(&source); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		if filter.Matches(source) {
			matched = append(matched, source)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sources: %w", err)
	}
	return matched, nil
}

// CountBySource lists chunk counts per partition.
func (s *ChunkStore) CountBySource(ctx context.Context) ([]SourceCount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source, COUNT(*) FROM document_chunks GROUP BY source ORDER BY source`)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}
	defer rows.Close()

	counts := []SourceCount{}
	for rows.Next() {
		var c SourceCount
		if err := rows.Scan(&c.Source, &c.Chunks); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// DeleteSource removes one partition so it can be ingested again.
func (s *ChunkStore) DeleteSource(ctx context.Context, source string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM document_chunks WHERE source = ?`, source)
	if err != nil {
		return 0, fmt.Errorf("failed to delete source %s: %w", source, err)
	}
	return res.RowsAffected()
}

// Reset removes every chunk.
func (s *ChunkStore) Reset(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM document_chunks`)
	if err != nil {
		return 0, fmt.Errorf("failed to reset chunks: %w", err)
	}
	return res.RowsAffected()
}

// encodeVector renders the JSON array text accepted by vector32().
func encodeVector(v []float32) string {
	buf := make([]byte, 0, len(v)*10+2)
	buf = append(buf, '[')
	for i, f := range v {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendFloat(buf, float64(f), 'g', -1, 32)
	}
	buf = append(buf, ']')
	return string(buf)
}
