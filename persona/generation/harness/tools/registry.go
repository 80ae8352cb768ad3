// Package tools holds the persona's callable tools and the registry that
// validates and dispatches model tool calls.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	ports "github.com/ZanzyTHEbar/persona-rag/persona/generation/harness/ports"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
)

var (
	ErrUnknownTool      = errors.New("unknown tool")
	ErrDuplicateTool    = errors.New("tool already registered")
	ErrInvalidArguments = errors.New("invalid tool arguments")
)

type entry struct {
	tool   ports.Tool
	schema *gojsonschema.Schema
}

// Registry maps tool names to implementations with compiled argument schemas.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]entry
	order    []string
	validate bool
	logger   zerolog.Logger
}

// NewRegistry creates an empty registry that validates arguments against each tool schema.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		tools:    make(map[string]entry),
		validate: true,
		logger:   logger.With().Str("component", "tools").Logger(),
	}
}

// SetValidation toggles schema validation in Call. Tools still decode their own arguments.
func (r *Registry) SetValidation(on bool) {
	r.mu.Lock()
	r.validate = on
	r.mu.Unlock()
}

// Register compiles the tool schema and adds the tool.
func (r *Registry) Register(t ports.Tool) error {
	name := t.Name()
	if name == "" {
		return fmt.Errorf("tool name is required")
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(t.Schema()))
	if err != nil {
		return fmt.Errorf("tool %s has an invalid schema: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}
	r.tools[name] = entry{tool: t, schema: schema}
	r.order = append(r.order, name)
	return nil
}

// MustRegister registers tools and panics on the first failure.
func (r *Registry) MustRegister(tools ...ports.Tool) {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// Specs lists the advertised tools in registration order.
func (r *Registry) Specs() []ports.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]ports.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name].tool
		specs = append(specs, ports.ToolSpec{Name: name, Description: t.Description(), JSONSchema: t.Schema()})
	}
	return specs
}

// Names lists the registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Call validates arguments and invokes the named tool.
func (r *Registry) Call(ctx context.Context, call ports.ToolCall) (ports.ToolOutput, error) {
	r.mu.RLock()
	e, ok := r.tools[call.Name]
	validate := r.validate
	r.mu.RUnlock()
	if !ok {
		return ports.ToolOutput{}, fmt.Errorf("%w: %s", ErrUnknownTool, call.Name)
	}

	args := call.Args
	if len(strings.TrimSpace(string(args))) == 0 {
		args = json.RawMessage(`{}`)
	}
	if validate {
		if err := validateArgs(e.schema, args); err != nil {
			return ports.ToolOutput{}, err
		}
	}

	return e.tool.Invoke(ctx, args)
}

// Dispatch runs a call and always yields text for the model.
func (r *Registry) Dispatch(ctx context.Context, call ports.ToolCall) string {
	start := time.Now()
	out, err := r.Call(ctx, call)

	ev := r.logger.Info()
	if err != nil {
		ev = r.logger.Warn().Err(err)
	}
	ev.Str("tool", call.Name).
		Str("call_id", call.ID).
		Str("query", mainArgument(call.Args)).
		Int("results", out.Count).
		Dur("duration", time.Since(start)).
		Msg("Tool dispatched")

	switch {
	case errors.Is(err, ErrUnknownTool):
		return ports.UnknownToolResult
	case err != nil:
		return fmt.Sprintf("Tool %s failed: %v", call.Name, err)
	}
	return out.Text
}

// mainArgument extracts the primary string argument for logging.
func mainArgument(args json.RawMessage) string {
	var m map[string]any
	if err := json.Unmarshal(args, &m); err != nil {
		return ""
	}
	for _, k := range []string{"query", "date"} {
		if s, ok := m[k].(string); ok {
			return s
		}
	}
	return ""
}

func validateArgs(schema *gojsonschema.Schema, args json.RawMessage) error {
	res, err := schema.Validate(gojsonschema.NewBytesLoader(args))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, re := range res.Errors() {
			msgs = append(msgs, re.String())
		}
		return fmt.Errorf("%w: %s", ErrInvalidArguments, strings.Join(msgs, "; "))
	}
	return nil
}
