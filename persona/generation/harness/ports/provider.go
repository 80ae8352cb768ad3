package harnessports

import (
	"context"
)

// PromptMessage represents a single chat message used to build prompts.
type PromptMessage struct {
	Role       string     // "system", "user", "assistant", "tool"
	Content    string
	ToolCalls  []ToolCall // set on assistant messages that requested tools
	ToolCallID string     // set on tool messages, pairs the result with its request
}

// PromptInput aggregates everything the provider needs to produce a completion.
type PromptInput struct {
	System   string            // persona system instructions
	Messages []PromptMessage   // ordered chat history (already windowed) plus the turn in progress
	Tools    []ToolSpec        // tool declarations available to the model
	Meta     map[string]string // lightweight metadata for tracing
}

// Options controls sampling, limits and tool preferences.
type Options struct {
	MaxNewTokens int
	Temperature  float32
	Seed         int
	Stop         []string
	// ToolChoice: "auto" | "none" | specific tool name
	ToolChoice string
	// TimeoutMs applies to the provider call only (not the overall turn deadline)
	TimeoutMs int
}

// Usage captures token accounting for telemetry.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completion is the provider's response for one model round.
type Completion struct {
	Text      string
	ToolCalls []ToolCall
	Raw       any    // raw provider payload for debugging
	Usage     *Usage // optional usage information
}

// Provider is the abstraction over the chat model service.
type Provider interface {
	Complete(ctx context.Context, in PromptInput, opts Options) (Completion, error)
}
