package models

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	ports "github.com/ZanzyTHEbar/persona-rag/persona/generation/harness/ports"
	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

// ChatProvider calls an OpenAI-compatible chat completions endpoint with tools.
type ChatProvider struct {
	client *openai.Client
	config ModelConfig
	logger zerolog.Logger
}

// NewChatProvider creates a chat provider.
func NewChatProvider(mc ModelConfig, logger zerolog.Logger) (*ChatProvider, error) {
	if mc.Model == "" {
		return nil, fmt.Errorf("chat model name is required")
	}
	mc.ModelType = ModelTypeChat
	return &ChatProvider{
		client: newClient(mc),
		config: mc,
		logger: logger.With().Str("component", "chat_provider").Str("model", mc.Model).Logger(),
	}, nil
}

// Complete runs one model round.
func (p *ChatProvider) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	if opts.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	req := p.buildRequest(in, opts)
	start := time.Now()

	var resp openai.ChatCompletionResponse
	err := withRetry(ctx, p.config, func(ctx context.Context) error {
		var err error
		resp, err = p.client.CreateChatCompletion(ctx, req)
		if err != nil {
			p.logger.Debug().Err(err).Msg("Chat completion attempt failed")
		}
		return err
	})
	if err != nil {
		return ports.Completion{}, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ports.Completion{}, fmt.Errorf("chat completion returned no choices")
	}

	msg := resp.Choices[0].Message
	out := ports.Completion{
		Text: msg.Content,
		Raw:  resp,
		Usage: &ports.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, tc := range msg.ToolCalls {
		args := json.RawMessage(tc.Function.Arguments)
		if len(args) == 0 {
			args = json.RawMessage(`{}`)
		}
		out.ToolCalls = append(out.ToolCalls, ports.ToolCall{ID: tc.ID, Name: tc.Function.Name, Args: args})
	}

	p.logger.Debug().
		Int("tool_calls", len(out.ToolCalls)).
		Int("total_tokens", resp.Usage.TotalTokens).
		Dur("duration", time.Since(start)).
		Msg("Chat completion")

	return out, nil
}

func (p *ChatProvider) buildRequest(in ports.PromptInput, opts ports.Options) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:    p.config.Model,
		Messages: toOpenAIMessages(in),
		Stop:     opts.Stop,
	}

	req.MaxTokens = opts.MaxNewTokens
	if req.MaxTokens <= 0 {
		req.MaxTokens = p.config.MaxNewTokens
	}

	// zero is dropped on the wire, so send the smallest positive value
	req.Temperature = opts.Temperature
	if req.Temperature <= 0 {
		req.Temperature = math.SmallestNonzeroFloat32
	}
	if opts.Seed != 0 {
		seed := opts.Seed
		req.Seed = &seed
	}

	for _, spec := range in.Tools {
		var params any = json.RawMessage(spec.JSONSchema)
		if len(spec.JSONSchema) == 0 {
			params = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		req.Tools = append(req.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  params,
			},
		})
	}
	if len(req.Tools) > 0 {
		switch opts.ToolChoice {
		case "", "auto":
			req.ToolChoice = "auto"
		case "none":
			req.ToolChoice = "none"
		default:
			req.ToolChoice = openai.ToolChoice{Type: openai.ToolTypeFunction, Function: openai.ToolFunction{Name: opts.ToolChoice}}
		}
	}
	return req
}

func toOpenAIMessages(in ports.PromptInput) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(in.Messages)+1)
	if in.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: in.System})
	}
	for _, m := range in.Messages {
		om := openai.ChatCompletionMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, openai.ToolCall{
				ID:       tc.ID,
				Type:     openai.ToolTypeFunction,
				Function: openai.FunctionCall{Name: tc.Name, Arguments: string(tc.Args)},
			})
		}
		msgs = append(msgs, om)
	}
	return msgs
}
