package tools

import (
	"time"

	"github.com/ZanzyTHEbar/persona-rag/persona/config"
	ports "github.com/ZanzyTHEbar/persona-rag/persona/generation/harness/ports"
	"github.com/ZanzyTHEbar/persona-rag/persona/memory/service"
	"github.com/rs/zerolog"
)

// NewPersonaRegistry registers the five persona tools over retriever.
func NewPersonaRegistry(cfg *config.Config, retriever service.Retriever, logger zerolog.Logger) (*Registry, error) {
	loc, err := time.LoadLocation(cfg.Persona.Timezone)
	if err != nil {
		loc = time.Local
	}
	contact := Contact{Name: cfg.Persona.Name, Phone: cfg.Persona.ContactPhone, URL: cfg.Persona.ContactURL}

	reg := NewRegistry(logger)
	reg.SetValidation(cfg.Harness.ValidateToolArgs)
	for _, t := range []ports.Tool{
		NewThesisTool(retriever, cfg.Tools.ThesisSource),
		NewResearchReportTool(retriever, cfg.Tools.ResearchReportSource),
		NewResumeTool(retriever, cfg.Tools.ResumeSource, cfg.Tools.ResumeKeywords),
		NewBudgetTool(retriever, cfg.Tools.PricingSource, NewRateSource(cfg.Tools.BudgetSeed), contact),
		NewTimeSinceTool(func() time.Time { return time.Now().In(loc) }),
	} {
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
