package harnessports

import (
	"context"
	"encoding/json"
)

// ToolSpec describes a callable tool exposed to the model.
type ToolSpec struct {
	Name        string // unique logical name
	Description string // concise doc for model selection
	JSONSchema  []byte // JSON schema for args
}

// ToolCall represents a model-invoked function with JSON arguments.
type ToolCall struct {
	ID   string // correlation id echoed back on the tool result
	Name string
	Args json.RawMessage
}

// ToolOutput is the textual result handed back to the model.
type ToolOutput struct {
	Text  string
	Count int // retrieved items, for logging
}

// Tool defines the runtime that executes a tool call.
type Tool interface {
	Name() string
	Description() string
	Schema() []byte
	Invoke(ctx context.Context, args json.RawMessage) (ToolOutput, error)
}

// UnknownToolResult is handed back to the model when it names a tool that is not registered.
const UnknownToolResult = "Unknown tool."
