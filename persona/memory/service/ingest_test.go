package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextSplitter_Split(t *testing.T) {
	s := NewTextSplitter(100, 20)

	assert.Nil(t, s.Split("   \n\n "))
	assert.Equal(t, []string{"short paragraph"}, s.Split("short paragraph"))

	var paras []string
	for i := 0; i < 12; i++ {
		paras = append(paras, strings.Repeat("palavra ", 6)+"fim.")
	}
	chunks := s.Split(strings.Join(paras, "\n\n"))
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, runeLen(c), 100)
		assert.NotEmpty(t, strings.TrimSpace(c))
	}
}

func TestTextSplitter_OverlapCarriesContext(t *testing.T) {
	s := NewTextSplitter(30, 10)
	words := strings.Fields("um dois tres quatro cinco seis sete oito nove dez onze doze treze catorze")
	chunks := s.Split(strings.Join(words, " "))
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		prev := strings.Fields(chunks[i-1])
		cur := strings.Fields(chunks[i])
		assert.Contains(t, cur, prev[len(prev)-1], "chunk %d should repeat the previous chunk's tail", i)
	}
}

func TestTextSplitter_CountsRunes(t *testing.T) {
	s := NewTextSplitter(10, 0)
	chunks := s.Split("ação ação ação ação")
	for _, c := range chunks {
		assert.LessOrEqual(t, runeLen(c), 10)
	}
	assert.Equal(t, []string{"ação ação", "ação ação"}, chunks)
}

func TestTextSplitter_HardSplitsLongWords(t *testing.T) {
	s := NewTextSplitter(4, 0)
	assert.Equal(t, []string{"abcd", "efgh", "ij"}, s.Split("abcdefghij"))
}

func TestLoader_ScanHonorsIgnoreFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "notes.md", "# notes")
	writeFile(t, dir, "prices.txt", "prices")
	writeFile(t, dir, "draft.txt", "draft")
	writeFile(t, dir, "image.png", "png")
	writeFile(t, dir, ".hidden.md", "hidden")
	writeFile(t, dir, ".ingestignore", "draft.*\n")

	l, err := NewLoader(dir, ".ingestignore")
	require.NoError(t, err)

	paths, err := l.Scan()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "notes.md"), filepath.Join(dir, "prices.txt")}, paths)

	_, err = l.Load(filepath.Join(dir, "image.png"))
	assert.ErrorIs(t, err, ErrUnsupportedFile)

	text, err := l.Load(filepath.Join(dir, "notes.md"))
	require.NoError(t, err)
	assert.Equal(t, "# notes", text)
}

func TestLoader_MissingIgnoreFileIsFine(t *testing.T) {
	l, err := NewLoader(t.TempDir(), ".ingestignore")
	require.NoError(t, err)
	assert.True(t, l.Accept("a.pdf"))
	assert.False(t, l.Accept("a.docx"))
}

func TestIngester_IngestDirIsIdempotent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "calcular_orcamento_de_software.md", strings.Repeat("Junior developers charge by the hour.\n\n", 40))
	writeFile(t, dir, "bio.txt", "Short biography.")
	writeFile(t, dir, "empty.txt", "   ")

	store := newTestStore(t)
	emb := &hashEmbedder{}
	loader, err := NewLoader(dir, "")
	require.NoError(t, err)
	metrics := NewMetricsCollector()
	ing := NewIngester(IngestOptions{ChunkSize: 200, ChunkOverlap: 40, BatchSize: 4, Workers: 2}, loader, emb, store, metrics, zerolog.Nop())

	report, err := ing.IngestDir(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Ingested)
	assert.Zero(t, report.Skipped)
	assert.Zero(t, report.Failed)
	assert.Equal(t, []string{"bio.txt", "calcular_orcamento_de_software.md", "empty.txt"},
		[]string{report.Files[0].Source, report.Files[1].Source, report.Files[2].Source})

	before, err := store.CountBySource(ctx)
	require.NoError(t, err)
	require.Len(t, before, 2)
	assert.Greater(t, before[1].Chunks, 1)

	again, err := ing.IngestDir(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Skipped)
	assert.Zero(t, again.Chunks)

	after, err := store.CountBySource(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestIngester_EmbedFailureStoresNothing(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "doc.md", "some content to embed")

	store := newTestStore(t)
	emb := new(MockEmbedder)
	emb.On("Embed", ctx, []string{"some content to embed"}).Return(nil, assert.AnError)
	loader, err := NewLoader(dir, "")
	require.NoError(t, err)
	ing := NewIngester(IngestOptions{ChunkSize: 100}, loader, emb, store, nil, zerolog.Nop())

	res := ing.IngestFile(ctx, filepath.Join(dir, "doc.md"))
	assert.Contains(t, res.Error, assert.AnError.Error())

	has, err := store.HasSource(ctx, "doc.md")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestIngester_WatchPicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	store := newTestStore(t)
	loader, err := NewLoader(dir, "")
	require.NoError(t, err)
	ing := NewIngester(IngestOptions{ChunkSize: 100, WatchDebounce: 50 * time.Millisecond}, loader, &hashEmbedder{}, store, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ing.Watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, "new.md", "freshly dropped document")

	assert.Eventually(t, func() bool {
		has, err := store.HasSource(context.Background(), "new.md")
		return err == nil && has
	}, 5*time.Second, 50*time.Millisecond)
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}
