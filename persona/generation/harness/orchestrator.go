package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	ports "github.com/ZanzyTHEbar/persona-rag/persona/generation/harness/ports"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/iter"
)

var (
	// ErrMaxIterations is terminal: the model kept requesting tools past the round cap.
	ErrMaxIterations = errors.New("max iterations exceeded")
	// ErrRateLimited wraps a limiter rejection for the session.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmptyMessage rejects blank user input before any side effect.
	ErrEmptyMessage = errors.New("message not provided")
)

// ToolDispatcher is the fail-soft tool registry the loop dispatches through.
type ToolDispatcher interface {
	Specs() []ports.ToolSpec
	Dispatch(ctx context.Context, call ports.ToolCall) string
}

// Request is one inbound user message for a session.
type Request struct {
	SessionID string
	Message   string
	Policy    *Policy
	ClientKey string // rate-limit key in place of SessionID, e.g. the caller's address
}

// Policy controls orchestration behavior.
type Policy struct {
	MaxIterations   int           // model rounds per turn
	HistoryWindow   int           // stored messages replayed
	ToolTimeout     time.Duration // per-tool timeout
	ToolConcurrency int           // parallel tool calls within one round
	RepairToolCalls bool          // recover tool calls written as text
	MaxNewTokens    int
	Temperature     float32
}

// DefaultPolicy returns sensible defaults.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxIterations:   5,
		HistoryWindow:   10,
		ToolTimeout:     30 * time.Second,
		ToolConcurrency: 4,
		RepairToolCalls: true,
		MaxNewTokens:    1024,
		Temperature:     0,
	}
}

// Response is the final output of the orchestrator.
type Response struct {
	Text      string
	ToolCalls []ports.ToolCall // every call dispatched during the turn, in order
	Rounds    int
	Usage     *ports.Usage
}

// HarnessOrchestrator runs the conversation loop: model round, optional repair, tool dispatch, repeat.
type HarnessOrchestrator struct {
	provider   ports.Provider
	tools      ToolDispatcher
	builder    *PromptBuilder
	assembler  *ContextAssembler
	guardrails *Guardrails
	parser     *OutputParser
	store      ports.ConversationStore
	limiter    ports.RateLimiter
	tracer     ports.Tracer
	logger     zerolog.Logger
}

// NewHarnessOrchestrator creates a new orchestrator with dependencies.
// A nil guardrails allows exactly the dispatcher's tools.
func NewHarnessOrchestrator(
	provider ports.Provider,
	tools ToolDispatcher,
	builder *PromptBuilder,
	assembler *ContextAssembler,
	guardrails *Guardrails,
	store ports.ConversationStore,
	limiter ports.RateLimiter,
	tracer ports.Tracer,
	logger zerolog.Logger,
) *HarnessOrchestrator {
	names := make([]string, 0)
	for _, spec := range tools.Specs() {
		names = append(names, spec.Name)
	}
	if guardrails == nil {
		guardrails = NewGuardrails()
		for _, name := range names {
			guardrails.AddAllowedTool(name)
		}
	}
	return &HarnessOrchestrator{
		provider:   provider,
		tools:      tools,
		builder:    builder,
		assembler:  assembler,
		guardrails: guardrails,
		parser:     NewOutputParser(names),
		store:      store,
		limiter:    limiter,
		tracer:     tracer,
		logger:     logger.With().Str("component", "harness").Logger(),
	}
}

// Orchestrate answers one user message and persists the user/assistant pair once resolved.
func (o *HarnessOrchestrator) Orchestrate(ctx context.Context, req *Request) (resp *Response, err error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	policy := req.Policy
	if policy == nil {
		policy = DefaultPolicy()
	}

	rateKey := req.SessionID
	if req.ClientKey != "" {
		rateKey = "client:" + req.ClientKey
	}
	release, err := o.limiter.Acquire(ctx, rateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRateLimited, err)
	}
	defer release()

	ctx, finish := o.tracer.StartSpan(ctx, "orchestrate", map[string]any{
		"session_id": req.SessionID,
	})
	defer func() { finish(err) }()

	history, err := o.loadHistory(ctx, req.SessionID, policy.HistoryWindow)
	if err != nil {
		return nil, err
	}

	system, err := o.builder.System()
	if err != nil {
		return nil, err
	}

	resp, err = o.runLoop(ctx, req.SessionID, system, history, message, policy)
	if err != nil {
		return nil, err
	}
	resp.Text = o.guardrails.SanitizeOutput(resp.Text)

	now := time.Now()
	if err := o.store.AppendTurns(ctx, req.SessionID,
		ports.Turn{Role: "user", Content: message, CreatedAt: now},
		ports.Turn{Role: "assistant", Content: resp.Text, CreatedAt: now},
	); err != nil {
		return nil, fmt.Errorf("failed to persist turn: %w", err)
	}

	return resp, nil
}

func (o *HarnessOrchestrator) loadHistory(ctx context.Context, sessionID string, window int) ([]ports.PromptMessage, error) {
	turns, err := o.store.LoadContext(ctx, sessionID, window)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	history := make([]ports.PromptMessage, 0, len(turns))
	for _, t := range turns {
		if t.Role != "user" && t.Role != "assistant" {
			continue
		}
		history = append(history, ports.PromptMessage{Role: t.Role, Content: t.Content})
	}
	return o.assembler.Fit(history, nil), nil
}

// runLoop executes model rounds until a response carries no tool call.
func (o *HarnessOrchestrator) runLoop(ctx context.Context, sessionID, system string, history []ports.PromptMessage, message string, policy *Policy) (*Response, error) {
	specs := o.tools.Specs()
	turn := []ports.PromptMessage{{Role: "user", Content: message}}
	usage := &ports.Usage{}
	var executed []ports.ToolCall

	opts := ports.Options{
		MaxNewTokens: policy.MaxNewTokens,
		Temperature:  policy.Temperature,
		ToolChoice:   "auto",
	}

	for round := 1; round <= policy.MaxIterations; round++ {
		prompt := o.builder.Build(system, history, turn, specs, map[string]string{
			"session_id": sessionID,
			"round":      fmt.Sprintf("%d", round),
		})

		pctx, spanFinish := o.tracer.StartSpan(ctx, "provider_call", map[string]any{"round": round})
		completion, err := o.provider.Complete(pctx, prompt, opts)
		spanFinish(err)
		if err != nil {
			return nil, fmt.Errorf("provider call failed: %w", err)
		}
		addUsage(usage, completion.Usage)

		calls := completion.ToolCalls
		if len(calls) == 0 && policy.RepairToolCalls && strings.TrimSpace(completion.Text) != "" {
			repaired, rerr := o.parser.RepairToolCall(completion.Text)
			switch {
			case rerr == nil:
				o.logger.Info().Str("tool", repaired.Name).Str("id", repaired.ID).Msg("Repaired tool call from text")
				calls = []ports.ToolCall{repaired}
				completion.Text = ""
			case !errors.Is(rerr, ErrNoToolCall):
				o.logger.Warn().Err(rerr).Msg("Failed to repair tool call, treating response as text")
			}
		}

		if len(calls) == 0 {
			return &Response{Text: completion.Text, ToolCalls: executed, Rounds: round, Usage: usage}, nil
		}
		if round == policy.MaxIterations {
			break
		}

		for i := range calls {
			if calls[i].ID == "" {
				calls[i].ID = "call_" + uuid.NewString()
			}
		}

		results := o.executeTools(ctx, calls, policy)
		o.tracer.Event(ctx, "tools_dispatched", map[string]any{"round": round, "count": len(calls)})

		turn = append(turn, ports.PromptMessage{Role: "assistant", Content: completion.Text, ToolCalls: calls})
		for i, call := range calls {
			turn = append(turn, ports.PromptMessage{Role: "tool", Content: results[i], ToolCallID: call.ID})
		}
		executed = append(executed, calls...)
	}

	o.logger.Error().Str("session_id", sessionID).Int("max_iterations", policy.MaxIterations).Msg("Round cap reached")
	return nil, fmt.Errorf("%w: %d", ErrMaxIterations, policy.MaxIterations)
}

// executeTools dispatches one round's calls concurrently; results keep call order.
func (o *HarnessOrchestrator) executeTools(ctx context.Context, calls []ports.ToolCall, policy *Policy) []string {
	mapper := iter.Mapper[ports.ToolCall, string]{MaxGoroutines: max(policy.ToolConcurrency, 1)}
	return mapper.Map(calls, func(call *ports.ToolCall) string {
		if err := o.guardrails.ValidateToolCall(*call); err != nil {
			if !errors.Is(err, ErrToolNotAllowed) {
				return fmt.Sprintf("invalid tool call: %v", err)
			}
			// the dispatcher answers unknown names itself
			o.logger.Warn().Str("tool", call.Name).Msg("Model requested unknown tool")
		}

		toolCtx := ctx
		if policy.ToolTimeout > 0 {
			var cancel context.CancelFunc
			toolCtx, cancel = context.WithTimeout(ctx, policy.ToolTimeout)
			defer cancel()
		}
		return o.tools.Dispatch(toolCtx, *call)
	})
}

func addUsage(total, u *ports.Usage) {
	if u == nil {
		return
	}
	total.PromptTokens += u.PromptTokens
	total.CompletionTokens += u.CompletionTokens
	total.TotalTokens += u.TotalTokens
}
