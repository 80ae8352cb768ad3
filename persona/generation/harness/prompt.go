package harness

import (
	"bytes"
	"fmt"
	"slices"
	"strings"
	"text/template"
	"time"

	ports "github.com/ZanzyTHEbar/persona-rag/persona/generation/harness/ports"
)

// Persona describes the individual the agent speaks as.
type Persona struct {
	Name             string
	ContactPhone     string
	ContactURL       string
	PrimaryLanguage  string
	FallbackLanguage string
	Location         *time.Location
}

const personaTemplate = `You are {{.Name}} and today is {{.Date}}.
Always answer in the first person, keeping a natural and conversational tone.

=== LANGUAGE RULES ===
You may only speak {{.PrimaryLanguage}} or {{.FallbackLanguage}}.
1. Answer in {{.PrimaryLanguage}} when the user writes in {{.PrimaryLanguage}}.
2. Answer in {{.FallbackLanguage}} when the user writes in {{.FallbackLanguage}} or in any other language.
Never apologise for not speaking the user's language; just answer in {{.FallbackLanguage}}.

=== CONTENT RULES (NEVER BREAK) ===
1. You cannot invent information.
2. You may only answer factual questions from the results of your tools.
3. If a tool returns nothing, say you do not know.
Never invent names of people, dates, institutions, companies, projects or technical details that a tool did not return.
It is better to say "I don't know" than to make something up.

=== RECRUITERS AND CLIENTS (TOP PRIORITY) ===
If the user is a recruiter (jobs, interviews, opportunities) or a potential client (wants to close a deal, liked the budget, wants to start):
be proactive and enthusiastic and redirect them to WhatsApp right away ({{.ContactPhone}}).
Always include the direct link: {{.ContactURL}}

=== KNOWLEDGE ROUTING ===
{{range .Routes}}- {{.Topic}}: use ` + "`{{.Tool}}`" + `
{{end}}
=== MANDATORY FLOW ===
1. Identify the topic of the question.
2. Call the matching tool and wait for its result.
3. If the tool reports that nothing was found or failed, say naturally that you do not have that specific information.
4. If the tool returns data, use ONLY that data, rephrased in the first person, without adding details.
`

type route struct {
	Topic string
	Tool  string
}

var defaultRoutes = []route{
	{"professional experience, skills, technologies, contact", "consult-resume"},
	{"thesis, final paper, monograph", "consult-thesis"},
	{"undergraduate research, hydrodynamics, research report", "consult-research-report"},
	{"budget, price, cost or estimate of a software project", "calculate-software-budget"},
	{"how long ago something happened, years of experience since a date", "time-since"},
}

// PromptBuilder renders the persona system instruction and assembles model-ready inputs.
type PromptBuilder struct {
	persona Persona
	tmpl    *template.Template
	now     func() time.Time
}

func NewPromptBuilder(persona Persona) *PromptBuilder {
	if persona.Location == nil {
		persona.Location = time.Local
	}
	return &PromptBuilder{
		persona: persona,
		tmpl:    template.Must(template.New("persona").Parse(personaTemplate)),
		now:     time.Now,
	}
}

// System renders the system instruction for the current date (dd/mm/yyyy).
func (b *PromptBuilder) System() (string, error) {
	var buf bytes.Buffer
	err := b.tmpl.Execute(&buf, struct {
		Persona
		Date   string
		Routes []route
	}{
		Persona: b.persona,
		Date:    b.now().In(b.persona.Location).Format("02/01/2006"),
		Routes:  defaultRoutes,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render system prompt: %w", err)
	}
	return buf.String(), nil
}

// MissingRouteTools lists tools the system instruction routes to that are not in names.
func (b *PromptBuilder) MissingRouteTools(names []string) []string {
	var missing []string
	for _, r := range defaultRoutes {
		if !slices.Contains(names, r.Tool) {
			missing = append(missing, r.Tool)
		}
	}
	return missing
}

// Build concatenates bounded history and the turn in progress into a Provider PromptInput.
func (b *PromptBuilder) Build(system string, history, turn []ports.PromptMessage, toolSpecs []ports.ToolSpec, meta map[string]string) ports.PromptInput {
	norm := func(s string) string { return strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n")) }

	messages := make([]ports.PromptMessage, 0, len(history)+len(turn))
	for _, m := range history {
		m.Content = norm(m.Content)
		messages = append(messages, m)
	}
	messages = append(messages, turn...)

	return ports.PromptInput{
		System:   norm(system),
		Messages: messages,
		Tools:    toolSpecs,
		Meta:     meta,
	}
}
