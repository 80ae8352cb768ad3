package harness

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	ports "github.com/ZanzyTHEbar/persona-rag/persona/generation/harness/ports"
)

// ErrToolNotAllowed is returned for tool names outside the allowlist.
var ErrToolNotAllowed = errors.New("tool is not in allowlist")

// Guardrails gates tool calls before dispatch and masks secrets in answers.
type Guardrails struct {
	allowlist     map[string]bool
	outputFilters []*regexp.Regexp
}

// NewGuardrails creates guardrails with default safety settings.
func NewGuardrails() *Guardrails {
	return &Guardrails{
		allowlist: make(map[string]bool),
		outputFilters: []*regexp.Regexp{
			regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{16,}`),
		},
	}
}

// AddAllowedTool adds a tool to the allowlist.
func (g *Guardrails) AddAllowedTool(name string) {
	g.allowlist[name] = true
}

// RemoveAllowedTool removes a tool from the allowlist.
func (g *Guardrails) RemoveAllowedTool(name string) {
	delete(g.allowlist, name)
}

// ValidateToolCall checks that a call is allowed and its arguments are well-formed JSON.
func (g *Guardrails) ValidateToolCall(call ports.ToolCall) error {
	if call.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if !g.allowlist[call.Name] {
		return fmt.Errorf("%w: %s", ErrToolNotAllowed, call.Name)
	}
	if len(call.Args) > 0 && !json.Valid(call.Args) {
		return fmt.Errorf("tool arguments are not valid JSON")
	}
	return nil
}

// SanitizeOutput masks provider API keys. Prose mentioning passwords or secrets passes through.
func (g *Guardrails) SanitizeOutput(output string) string {
	sanitized := output
	for _, filter := range g.outputFilters {
		sanitized = filter.ReplaceAllString(sanitized, "[REDACTED]")
	}
	return sanitized
}
