package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	ports "github.com/ZanzyTHEbar/persona-rag/persona/generation/harness/ports"
	"github.com/ZanzyTHEbar/persona-rag/persona/memory/service"
)

// QuerySchema is the argument schema shared by the retrieval tools.
const QuerySchema = `{
  "type": "object",
  "properties": {
    "query": {
      "type": "string",
      "description": "What to look up, phrased as a search query",
      "minLength": 1
    }
  },
  "required": ["query"]
}`

// ConsultTool answers from one document partition.
type ConsultTool struct {
	name        string
	description string
	label       string // noun used in result messages, e.g. "thesis"
	filter      service.PartitionFilter
	k           int
	retriever   service.Retriever
}

// NewThesisTool searches the thesis partition.
func NewThesisTool(r service.Retriever, source string) *ConsultTool {
	return &ConsultTool{
		name:        "consult-thesis",
		description: "Mandatory tool for questions about the undergraduate thesis (TCC), final paper or monograph. Searches only " + source + ".",
		label:       "thesis",
		filter:      service.ExactPartition(source),
		k:           5,
		retriever:   r,
	}
}

// NewResearchReportTool searches the research report partition.
func NewResearchReportTool(r service.Retriever, source string) *ConsultTool {
	return &ConsultTool{
		name:        "consult-research-report",
		description: "Mandatory tool for questions about the scientific initiation research on hydrodynamic potential. Searches only " + source + ".",
		label:       "research report",
		filter:      service.ExactPartition(source),
		k:           5,
		retriever:   r,
	}
}

// NewResumeTool searches the resume partition plus any source whose name
// contains one of keywords.
func NewResumeTool(r service.Retriever, source string, keywords []string) *ConsultTool {
	return &ConsultTool{
		name:        "consult-resume",
		description: "Mandatory tool for questions about professional experience, skills, contact, summary and career history.",
		label:       "resume",
		filter:      service.PartitionFilter{Exact: []string{source}, Contains: keywords},
		k:           10,
		retriever:   r,
	}
}

func (t *ConsultTool) Name() string        { return t.name }
func (t *ConsultTool) Description() string { return t.description }
func (t *ConsultTool) Schema() []byte      { return []byte(QuerySchema) }

// Invoke runs the partition search. Retrieval failures become text so the
// model can still answer.
func (t *ConsultTool) Invoke(ctx context.Context, args json.RawMessage) (ports.ToolOutput, error) {
	var params struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return ports.ToolOutput{}, fmt.Errorf("invalid arguments: %w", err)
	}

	results, err := t.retriever.Search(ctx, params.Query, t.filter, t.k)
	if err != nil {
		return ports.ToolOutput{Text: fmt.Sprintf("error consulting %s: %v", t.label, err)}, nil
	}
	if len(results) == 0 {
		return ports.ToolOutput{Text: fmt.Sprintf("No information found in the %s on this topic.", t.label)}, nil
	}

	parts := make([]string, len(results))
	for i, res := range results {
		parts[i] = res.Chunk.Content
	}
	return ports.ToolOutput{Text: strings.Join(parts, "\n\n"), Count: len(results)}, nil
}
