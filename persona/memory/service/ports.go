package service

import (
	"context"
	"strings"
	"time"
)

// Embedder generates embeddings for text content
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Retriever performs partition-scoped similarity search.
type Retriever interface {
	Search(ctx context.Context, query string, filter PartitionFilter, k int) ([]SearchResult, error)
}

// Chunk is one embedded slice of a source document.
type Chunk struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"` // partition tag, the file base name
	ChunkIndex int       `json:"chunk_index"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// SearchResult represents a search hit
type SearchResult struct {
	Chunk    Chunk   `json:"chunk"`
	Distance float64 `json:"distance"` // lower is closer
}

// SourceCount is the number of chunks stored for one partition.
type SourceCount struct {
	Source string `json:"source"`
	Chunks int    `json:"chunks"`
}

// PartitionFilter restricts a search to chunks whose source matches
// one of Exact or contains one of Contains (case-insensitive).
type PartitionFilter struct {
	Exact    []string `json:"exact,omitempty"`
	Contains []string `json:"contains,omitempty"`
}

// ExactPartition filters on a single source name.
func ExactPartition(source string) PartitionFilter {
	return PartitionFilter{Exact: []string{source}}
}

// IsEmpty reports whether the filter matches every source.
func (f PartitionFilter) IsEmpty() bool {
	return len(f.Exact) == 0 && len(f.Contains) == 0
}

// Matches reports whether source belongs to the filtered partitions.
func (f PartitionFilter) Matches(source string) bool {
	if f.IsEmpty() {
		return true
	}
	for _, e := range f.Exact {
		if source == e {
			return true
		}
	}
	lower := strings.ToLower(source)
	for _, c := range f.Contains {
		if c != "" && strings.Contains(lower, strings.ToLower(c)) {
			return true
		}
	}
	return false
}

// String renders a stable label for logs and metrics.
func (f PartitionFilter) String() string {
	if f.IsEmpty() {
		return "*"
	}
	parts := append([]string(nil), f.Exact...)
	for _, c := range f.Contains {
		parts = append(parts, "~"+c)
	}
	return strings.Join(parts, "|")
}

// where builds the SQL predicate over the source column from Exact names only.
// ChunkStore.matchingSources turns Contains keywords into Exact names first, since SQLite LOWER folds ASCII only.
func (f PartitionFilter) where() (string, []any) {
	if f.IsEmpty() {
		return "1 = 1", nil
	}
	if len(f.Exact) == 0 {
		return "1 = 0", nil
	}
	args := make([]any, 0, len(f.Exact))
	for _, e := range f.Exact {
		args = append(args, e)
	}
	return "source IN (?" + strings.Repeat(", ?", len(f.Exact)-1) + ")", args
}
