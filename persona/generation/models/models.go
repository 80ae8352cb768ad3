// Package models adapts OpenAI-compatible chat and embedding endpoints to the
// harness provider port and the retrieval embedder.
package models

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ZanzyTHEbar/persona-rag/persona/config"
	"github.com/sashabaranov/go-openai"
	"github.com/sethvargo/go-retry"
)

// ModelType represents the kind of remote model behind a client
type ModelType string

const (
	ModelTypeEmbedding ModelType = "embedding"
	ModelTypeChat      ModelType = "chat"
)

// ModelConfig describes one remote model endpoint.
type ModelConfig struct {
	ModelType    ModelType
	BaseURL      string
	APIKey       string
	Model        string
	Timeout      time.Duration
	RetryCount   int
	RetryBackoff time.Duration

	// Chat only
	Temperature  float32
	MaxNewTokens int

	// Embedding only
	Dims      int
	BatchSize int
}

// ChatConfigFrom builds the chat model settings from application config.
func ChatConfigFrom(cfg *config.Config) ModelConfig {
	return ModelConfig{
		ModelType:    ModelTypeChat,
		BaseURL:      cfg.LLM.BaseURL,
		APIKey:       cfg.LLM.APIKey,
		Model:        cfg.LLM.Model,
		Timeout:      cfg.LLM.Timeout,
		RetryCount:   cfg.LLM.RetryCount,
		RetryBackoff: cfg.LLM.RetryBackoff,
		Temperature:  cfg.LLM.Temperature,
		MaxNewTokens: cfg.LLM.MaxNewTokens,
	}
}

// EmbeddingConfigFrom builds the embedding model settings from application config.
// Embedding credentials fall back to the chat ones when unset.
func EmbeddingConfigFrom(cfg *config.Config) ModelConfig {
	mc := ModelConfig{
		ModelType:    ModelTypeEmbedding,
		BaseURL:      cfg.Embedding.BaseURL,
		APIKey:       cfg.Embedding.APIKey,
		Model:        cfg.Embedding.Model,
		Timeout:      cfg.Embedding.Timeout,
		RetryCount:   cfg.LLM.RetryCount,
		RetryBackoff: cfg.LLM.RetryBackoff,
		Dims:         cfg.Embedding.Dims,
		BatchSize:    cfg.Embedding.BatchSize,
	}
	if mc.APIKey == "" {
		mc.APIKey = cfg.LLM.APIKey
	}
	if mc.BaseURL == "" {
		mc.BaseURL = cfg.LLM.BaseURL
	}
	return mc
}

func newClient(mc ModelConfig) *openai.Client {
	oc := openai.DefaultConfig(mc.APIKey)
	if mc.BaseURL != "" {
		oc.BaseURL = mc.BaseURL
	}
	timeout := mc.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	oc.HTTPClient = &http.Client{Timeout: timeout}
	return openai.NewClientWithConfig(oc)
}

// withRetry runs fn, retrying rate limits and server errors with exponential backoff.
func withRetry(ctx context.Context, mc ModelConfig, fn func(context.Context) error) error {
	base := mc.RetryBackoff
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	retries := max(mc.RetryCount, 0)
	b := retry.WithMaxRetries(uint64(retries), retry.NewExponential(base))

	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && isRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func isRetryable(err error) bool {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}
