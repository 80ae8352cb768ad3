// Package generation wires the chat stack: database, memory, tools,
// model provider, orchestrator and chat service.
package generation

import (
	"context"
	"fmt"

	"github.com/ZanzyTHEbar/persona-rag/persona/config"
	"github.com/ZanzyTHEbar/persona-rag/persona/generation/ai"
	"github.com/ZanzyTHEbar/persona-rag/persona/generation/harness"
	"github.com/ZanzyTHEbar/persona-rag/persona/generation/harness/adapters"
	ports "github.com/ZanzyTHEbar/persona-rag/persona/generation/harness/ports"
	"github.com/ZanzyTHEbar/persona-rag/persona/generation/harness/tools"
	"github.com/ZanzyTHEbar/persona-rag/persona/generation/models"
	"github.com/ZanzyTHEbar/persona-rag/persona/memory/database"
	"github.com/ZanzyTHEbar/persona-rag/persona/memory/service"
	"github.com/rs/zerolog"
)

// Stack holds every long-lived component of a running persona.
type Stack struct {
	Config       *config.Config
	DB           *database.DBManager
	Memory       *service.MemorySystem
	Tools        *tools.Registry
	Orchestrator *harness.HarnessOrchestrator
	Chat         *ai.Service
}

// StackOption overrides a component, mostly for tests.
type StackOption func(*stackOptions)

type stackOptions struct {
	provider ports.Provider
	embedder service.Embedder
}

// WithProvider replaces the OpenAI-compatible chat provider.
func WithProvider(p ports.Provider) StackOption {
	return func(o *stackOptions) { o.provider = p }
}

// WithEmbedder replaces the OpenAI-compatible embedder.
func WithEmbedder(e service.Embedder) StackOption {
	return func(o *stackOptions) { o.embedder = e }
}

// NewStack opens the database and wires all components from cfg.
func NewStack(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts ...StackOption) (*Stack, error) {
	var o stackOptions
	for _, opt := range opts {
		opt(&o)
	}

	dbm, err := database.NewDBManager(ctx, database.NewConfig(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s := &Stack{Config: cfg, DB: dbm}

	if o.embedder == nil {
		if o.embedder, err = models.NewEmbedder(models.EmbeddingConfigFrom(cfg), logger); err != nil {
			s.Close()
			return nil, err
		}
	}
	if o.provider == nil {
		if o.provider, err = models.NewChatProvider(models.ChatConfigFrom(cfg), logger); err != nil {
			s.Close()
			return nil, err
		}
	}

	factory := harness.NewFactory(cfg, dbm.DB(), logger)
	var cache ports.Cache
	if cfg.Embedding.CacheEnabled {
		cache = factory.CreateCache()
	}

	s.Memory, err = service.NewMemorySystem(ctx, service.MemorySystemConfig{
		Config:   cfg,
		DB:       dbm.DB(),
		Embedder: o.embedder,
		Cache:    cache,
		Logger:   logger,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create memory system: %w", err)
	}

	s.Tools, err = tools.NewPersonaRegistry(cfg, s.Memory.Retriever(), logger)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	s.Orchestrator, err = factory.CreateOrchestrator(o.provider, s.Tools)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	s.Chat = ai.NewService(s.Orchestrator, adapters.NewLibSQLConversationStore(dbm.DB()), factory.CreatePolicy(), logger)
	return s, nil
}

// Close releases the database handle.
func (s *Stack) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}
