package harness

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	ports "github.com/ZanzyTHEbar/persona-rag/persona/generation/harness/ports"
	"github.com/google/uuid"
)

// ErrNoToolCall reports that free text carried no recognisable tool invocation.
var ErrNoToolCall = errors.New("no tool call found in text")

var (
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	unquotedKeyRe   = regexp.MustCompile(`([{,]\s*)([a-zA-Z_][a-zA-Z0-9_]*)\s*:`)
)

// OutputParser recovers tool invocations that a model wrote as text instead of a structured call.
type OutputParser struct {
	toolNames []string
	patterns  []*regexp.Regexp // "name": "<tool>" per tool, same order as toolNames
}

// NewOutputParser creates a parser that only recognises the given tool names.
func NewOutputParser(toolNames []string) *OutputParser {
	p := &OutputParser{toolNames: append([]string(nil), toolNames...)}
	for _, name := range p.toolNames {
		p.patterns = append(p.patterns, regexp.MustCompile(`"name"\s*:\s*"`+regexp.QuoteMeta(name)+`"`))
	}
	return p
}

type textualCall struct {
	Name       string          `json:"name"`
	Arguments  json.RawMessage `json:"arguments"`
	Parameters json.RawMessage `json:"parameters"`
}

// RepairToolCall looks for a JSON object naming a registered tool inside text.
func (p *OutputParser) RepairToolCall(text string) (ports.ToolCall, error) {
	flat := strings.ReplaceAll(strings.ReplaceAll(text, "\r", " "), "\n", " ")
	if strings.TrimSpace(flat) == "" {
		return ports.ToolCall{}, ErrNoToolCall
	}

	var lastErr error = ErrNoToolCall
	for i, name := range p.toolNames {
		for _, loc := range p.patterns[i].FindAllStringIndex(flat, -1) {
			// walk back through every enclosing '{' until one decodes into a call
			for open := strings.LastIndex(flat[:loc[0]], "{"); open >= 0; open = strings.LastIndex(flat[:open], "{") {
				call, err := p.decodeAt(flat[open:], name)
				if err == nil {
					return call, nil
				}
				lastErr = err
			}
		}
	}
	return ports.ToolCall{}, lastErr
}

func (p *OutputParser) decodeAt(fragment, name string) (ports.ToolCall, error) {
	var tc textualCall
	dec := json.NewDecoder(strings.NewReader(fragment))
	if err := dec.Decode(&tc); err != nil {
		end := balancedEnd(fragment)
		if end < 0 {
			return ports.ToolCall{}, fmt.Errorf("unbalanced tool call object: %w", err)
		}
		if ferr := json.Unmarshal([]byte(p.fixJSON(fragment[:end])), &tc); ferr != nil {
			return ports.ToolCall{}, fmt.Errorf("invalid tool call JSON: %w", ferr)
		}
	}
	if tc.Name != name {
		return ports.ToolCall{}, fmt.Errorf("object names %q, not %q", tc.Name, name)
	}

	args, err := normalizeArgs(tc.Arguments)
	if err != nil {
		return ports.ToolCall{}, err
	}
	if args == nil {
		if args, err = normalizeArgs(tc.Parameters); err != nil {
			return ports.ToolCall{}, err
		}
	}
	if args == nil {
		args = json.RawMessage(`{}`)
	}

	return ports.ToolCall{ID: "call_" + uuid.NewString(), Name: name, Args: args}, nil
}

// normalizeArgs accepts an object or a string holding an encoded object.
func normalizeArgs(raw json.RawMessage) (json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	switch raw[0] {
	case '{':
		return raw, nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("invalid encoded arguments: %w", err)
		}
		if !json.Valid([]byte(s)) || !strings.HasPrefix(strings.TrimSpace(s), "{") {
			return nil, fmt.Errorf("encoded arguments are not an object")
		}
		return json.RawMessage(s), nil
	default:
		return nil, fmt.Errorf("arguments must be an object")
	}
}

// balancedEnd returns the index just past the object that starts at s[0], or -1.
func balancedEnd(s string) int {
	depth := 0
	inString := false
	quote := byte(0)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch c {
			case '\\':
				i++
			case quote:
				inString = false
			}
			continue
		}
		switch c {
		case '"', '\'':
			inString, quote = true, c
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

// fixJSON attempts to fix common JSON formatting issues.
func (p *OutputParser) fixJSON(jsonStr string) string {
	// Remove trailing commas before closing braces/brackets
	jsonStr = trailingCommaRe.ReplaceAllString(jsonStr, "$1")

	// Fix unquoted keys (basic heuristic)
	jsonStr = unquotedKeyRe.ReplaceAllString(jsonStr, `$1"$2":`)

	// Fix single quotes to double quotes
	jsonStr = strings.ReplaceAll(jsonStr, "'", "\"")

	return jsonStr
}
