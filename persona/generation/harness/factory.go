package harness

import (
	"context"
	"database/sql"
	"time"

	"github.com/ZanzyTHEbar/persona-rag/persona/config"
	"github.com/ZanzyTHEbar/persona-rag/persona/generation/harness/adapters"
	ports "github.com/ZanzyTHEbar/persona-rag/persona/generation/harness/ports"
	"github.com/rs/zerolog"
)

const (
	minIterations = 1
	maxIterations = 20
)

// Factory creates and wires harness components from configuration.
type Factory struct {
	cfg    *config.Config
	db     *sql.DB // Optional, for conversation store
	logger zerolog.Logger
}

// NewFactory creates a new harness factory.
func NewFactory(cfg *config.Config, db *sql.DB, logger zerolog.Logger) *Factory {
	return &Factory{cfg: cfg, db: db, logger: logger}
}

// CreateOrchestrator wires an orchestrator around the given provider and tool registry.
func (f *Factory) CreateOrchestrator(provider ports.Provider, tools ToolDispatcher) (*HarnessOrchestrator, error) {
	estimator, err := NewTiktokenEstimator()
	if err != nil {
		f.logger.Warn().Err(err).Msg("Tokenizer unavailable, falling back to character heuristic")
		estimator = nil
	}

	assembler := NewContextAssembler(Budget{
		MaxContextTokens: f.cfg.Harness.MaxContextTokens,
		MaxMessages:      f.cfg.Harness.HistoryWindow,
	}, estimator)

	builder := NewPromptBuilder(f.CreatePersona())
	names := make([]string, 0)
	for _, spec := range tools.Specs() {
		names = append(names, spec.Name)
	}
	if missing := builder.MissingRouteTools(names); len(missing) > 0 {
		f.logger.Warn().Strs("tools", missing).Msg("System instruction routes to unregistered tools")
	}

	return NewHarnessOrchestrator(
		provider,
		tools,
		builder,
		assembler,
		nil,
		f.CreateStore(),
		f.CreateRateLimiter(),
		f.CreateTracer(),
		f.logger,
	), nil
}

// CreatePersona maps persona settings, falling back to local time for an unknown zone.
func (f *Factory) CreatePersona() Persona {
	p := f.cfg.Persona
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		f.logger.Warn().Err(err).Str("timezone", p.Timezone).Msg("Unknown timezone, using local time")
		loc = time.Local
	}
	return Persona{
		Name:             p.Name,
		ContactPhone:     p.ContactPhone,
		ContactURL:       p.ContactURL,
		PrimaryLanguage:  p.PrimaryLanguage,
		FallbackLanguage: p.FallbackLanguage,
		Location:         loc,
	}
}

// CreateCache creates the embedding cache adapter from config.
func (f *Factory) CreateCache() ports.Cache {
	if !f.cfg.Embedding.CacheEnabled {
		return &noOpCache{}
	}
	return adapters.NewLRUCache(f.cfg.Embedding.CacheCapacity)
}

// CreateRateLimiter creates a rate limiter adapter from config.
func (f *Factory) CreateRateLimiter() ports.RateLimiter {
	if !f.cfg.Harness.RateLimitEnabled {
		return &noOpRateLimiter{}
	}
	tb := adapters.NewTokenBucket(f.cfg.Harness.RateLimitCapacity, f.cfg.Harness.RateLimitRefillRate)
	tb.SetMaxKeys(f.cfg.Harness.RateLimitMaxKeys)
	return tb
}

// CreateTracer creates a tracer adapter from config.
func (f *Factory) CreateTracer() ports.Tracer {
	if !f.cfg.Harness.EnableTracing {
		return &noOpTracer{}
	}
	return adapters.NewZerologTracer(f.logger.With().Str("component", "trace").Logger())
}

// CreateStore creates a conversation store adapter.
func (f *Factory) CreateStore() ports.ConversationStore {
	if f.db == nil {
		return &noOpStore{}
	}
	return adapters.NewLibSQLConversationStore(f.db)
}

// CreatePolicy creates a policy from config, clamping the round cap to [1, 20].
func (f *Factory) CreatePolicy() *Policy {
	h := f.cfg.Harness
	policy := &Policy{
		MaxIterations:   h.MaxIterations,
		HistoryWindow:   h.HistoryWindow,
		ToolTimeout:     h.ToolTimeout,
		ToolConcurrency: h.ToolConcurrency,
		RepairToolCalls: h.RepairToolCalls,
		MaxNewTokens:    f.cfg.LLM.MaxNewTokens,
		Temperature:     f.cfg.LLM.Temperature,
	}

	if policy.MaxIterations < minIterations {
		policy.MaxIterations = minIterations
		f.logger.Warn().Int("max_iterations", h.MaxIterations).Msg("MaxIterations clamped to minimum of 1")
	}
	if policy.MaxIterations > maxIterations {
		policy.MaxIterations = maxIterations
		f.logger.Warn().Int("max_iterations", h.MaxIterations).Msg("MaxIterations clamped to maximum of 20")
	}
	if policy.HistoryWindow < 0 {
		policy.HistoryWindow = 0
	}
	if policy.ToolConcurrency < 1 {
		policy.ToolConcurrency = 1
	}

	return policy
}

// noOpCache implements Cache interface with no-op behavior for testing/disabled cache.
type noOpCache struct{}

func (c *noOpCache) Get(ctx context.Context, key string) ([]byte, bool) { return nil, false }
func (c *noOpCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	return nil
}
func (c *noOpCache) Delete(ctx context.Context, key string) error { return nil }

// noOpRateLimiter implements RateLimiter interface with no-op behavior.
type noOpRateLimiter struct{}

func (r *noOpRateLimiter) Acquire(ctx context.Context, key string) (release func(), err error) {
	return func() {}, nil
}

// noOpTracer implements Tracer interface with no-op behavior.
type noOpTracer struct{}

func (t *noOpTracer) StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error)) {
	return ctx, func(err error) {}
}

func (t *noOpTracer) Event(ctx context.Context, name string, attrs map[string]any) {}

// noOpStore keeps nothing; every session looks new.
type noOpStore struct{}

func (s *noOpStore) EnsureSession(ctx context.Context, sessionID string) error { return nil }
func (s *noOpStore) AppendTurns(ctx context.Context, sessionID string, turns ...ports.Turn) error {
	return nil
}
func (s *noOpStore) SaveTurn(ctx context.Context, sessionID string, turn ports.Turn) error {
	return nil
}
func (s *noOpStore) LoadContext(ctx context.Context, sessionID string, k int) ([]ports.Turn, error) {
	return nil, nil
}
func (s *noOpStore) History(ctx context.Context, sessionID string) ([]ports.Turn, error) {
	return []ports.Turn{}, nil
}

var (
	_ ports.Cache             = (*noOpCache)(nil)
	_ ports.RateLimiter       = (*noOpRateLimiter)(nil)
	_ ports.Tracer            = (*noOpTracer)(nil)
	_ ports.ConversationStore = (*noOpStore)(nil)
)
