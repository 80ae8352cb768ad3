package service

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	ports "github.com/ZanzyTHEbar/persona-rag/persona/generation/harness/ports"
)

// CachedEmbedder memoizes embeddings by text hash.
type CachedEmbedder struct {
	inner Embedder
	cache ports.Cache
	ttl   int // seconds
	model string
}

// NewCachedEmbedder wraps inner; model namespaces the cache keys.
func NewCachedEmbedder(inner Embedder, cache ports.Cache, ttlSeconds int, model string) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: cache, ttl: ttlSeconds, model: model}
}

// Dimension reports the wrapped embedder's width.
func (c *CachedEmbedder) Dimension() int { return c.inner.Dimension() }

// Embed serves cached vectors and embeds only the misses, preserving input order.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var (
		missIdx   []int
		missTexts []string
	)
	for i, t := range texts {
		if raw, ok := c.cache.Get(ctx, c.key(t)); ok {
			if v, ok := decodeFloats(raw, c.inner.Dimension()); ok {
				out[i] = v
				continue
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d inputs", len(vecs), len(missTexts))
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		_ = c.cache.Set(ctx, c.key(missTexts[j]), encodeFloats(vecs[j]), c.ttl)
	}
	return out, nil
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + c.model + ":" + hex.EncodeToString(sum[:])
}

func encodeFloats(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeFloats(buf []byte, dims int) ([]float32, bool) {
	if len(buf) != 4*dims {
		return nil, false
	}
	v := make([]float32, dims)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v, true
}
