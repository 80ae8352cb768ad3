package service

import (
	"context"
	"hash/fnv"
	"math"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ZanzyTHEbar/persona-rag/persona/memory/database"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testDims = 1536

// hashEmbedder hashes words into a normalized bag-of-words vector, so texts
// sharing words land close together under cosine distance.
type hashEmbedder struct {
	calls atomic.Int64
}

func (h *hashEmbedder) Dimension() int { return testDims }

func (h *hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	h.calls.Add(1)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, testDims)
		for _, w := range strings.Fields(strings.ToLower(t)) {
			f := fnv.New32a()
			_, _ = f.Write([]byte(w))
			v[f.Sum32()%testDims]++
		}
		var norm float64
		for _, x := range v {
			norm += float64(x * x)
		}
		if norm == 0 {
			v[0] = 1
			norm = 1
		}
		for j := range v {
			v[j] = float32(float64(v[j]) / math.Sqrt(norm))
		}
		out[i] = v
	}
	return out, nil
}

// MockEmbedder for testing failure paths
type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	vecs, _ := args.Get(0).([][]float32)
	return vecs, args.Error(1)
}

func (m *MockEmbedder) Dimension() int { return testDims }

func newTestStore(t *testing.T) *ChunkStore {
	t.Helper()
	dm, err := database.NewDBManager(context.Background(), &database.Config{
		Path:          filepath.Join(t.TempDir(), "chunks.db"),
		EmbeddingDims: testDims,
	}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = dm.Close() })

	store, err := NewChunkStore(dm.DB(), testDims, DistanceCosine)
	require.NoError(t, err)
	return store
}

func seedChunks(t *testing.T, store *ChunkStore, emb Embedder, source string, texts ...string) {
	t.Helper()
	vecs, err := emb.Embed(context.Background(), texts)
	require.NoError(t, err)
	chunks := make([]Chunk, len(texts))
	for i, txt := range texts {
		chunks[i] = Chunk{Source: source, ChunkIndex: i, Content: txt, Embedding: vecs[i]}
	}
	require.NoError(t, store.InsertChunks(context.Background(), chunks))
}
