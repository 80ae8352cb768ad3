package models

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

// Embedder calls an OpenAI-compatible embeddings endpoint in batches.
type Embedder struct {
	client *openai.Client
	config ModelConfig
	logger zerolog.Logger
}

// NewEmbedder creates an embedder producing vectors of mc.Dims.
func NewEmbedder(mc ModelConfig, logger zerolog.Logger) (*Embedder, error) {
	if mc.Model == "" {
		return nil, fmt.Errorf("embedding model name is required")
	}
	if mc.Dims <= 0 {
		return nil, fmt.Errorf("embedding dims must be positive: %d", mc.Dims)
	}
	if mc.BatchSize <= 0 {
		mc.BatchSize = 64
	}
	mc.ModelType = ModelTypeEmbedding
	return &Embedder{
		client: newClient(mc),
		config: mc,
		logger: logger.With().Str("component", "embedder").Str("model", mc.Model).Logger(),
	}, nil
}

// Dimension is the configured vector width.
func (e *Embedder) Dimension() int { return e.config.Dims }

// Embed returns one vector per text, in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for lo := 0; lo < len(texts); lo += e.config.BatchSize {
		hi := min(lo+e.config.BatchSize, len(texts))
		vecs, err := e.embedBatch(ctx, texts[lo:hi])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *Embedder) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	start := time.Now()
	req := openai.EmbeddingRequest{
		Input:      batch,
		Model:      openai.EmbeddingModel(e.config.Model),
		Dimensions: e.config.Dims,
	}

	var resp openai.EmbeddingResponse
	err := withRetry(ctx, e.config, func(ctx context.Context) error {
		var err error
		resp, err = e.client.CreateEmbeddings(ctx, req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) != len(batch) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs", len(resp.Data), len(batch))
	}

	vecs := make([][]float32, len(batch))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(batch) || vecs[d.Index] != nil {
			return nil, fmt.Errorf("embedding response has invalid index %d", d.Index)
		}
		if len(d.Embedding) != e.config.Dims {
			return nil, fmt.Errorf("embedding has %d dims, expected %d", len(d.Embedding), e.config.Dims)
		}
		vecs[d.Index] = d.Embedding
	}

	e.logger.Debug().Int("batch", len(batch)).Dur("duration", time.Since(start)).Msg("Embedded batch")
	return vecs, nil
}
