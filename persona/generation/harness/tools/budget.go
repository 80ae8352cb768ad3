package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	ports "github.com/ZanzyTHEbar/persona-rag/persona/generation/harness/ports"
	"github.com/ZanzyTHEbar/persona-rag/persona/memory/service"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

const (
	DefaultBudgetHours = 200

	indirectCosts = 1.15
	margin        = 1.25
)

// Hourly rate ranges in BRL, inclusive and disjoint so tiers never tie.
var (
	JuniorRate = RateRange{Min: 20, Max: 79}
	MidRate    = RateRange{Min: 80, Max: 119}
	SeniorRate = RateRange{Min: 120, Max: 160}
)

var hoursPattern = regexp.MustCompile(`(\d+)\s*(?:horas|hora|hours|hour|hrs|hr|h)\b`)

// RateRange is an inclusive hourly rate interval.
type RateRange struct{ Min, Max int }

// RateSource draws an hourly rate from a range.
type RateSource interface {
	Rate(r RateRange) int
}

type pcgRates struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRateSource returns a PCG-backed source; seed 0 seeds from the clock.
func NewRateSource(seed uint64) RateSource {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &pcgRates{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (p *pcgRates) Rate(r RateRange) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return r.Min + p.rng.IntN(r.Max-r.Min+1)
}

// BudgetEstimate holds the three priced tiers for an hour estimate.
type BudgetEstimate struct {
	Hours        int
	Economic     float64
	Intermediate float64
	Premium      float64
}

// ExtractHours finds the first "<n> <hour unit>" in query, else DefaultBudgetHours.
func ExtractHours(query string) int {
	m := hoursPattern.FindStringSubmatch(strings.ToLower(query))
	if m == nil {
		return DefaultBudgetHours
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return DefaultBudgetHours
	}
	return n
}

// Estimate prices the query's hour estimate at one rate per tier.
func Estimate(query string, rates RateSource) BudgetEstimate {
	hours := ExtractHours(query)
	price := func(r RateRange) float64 {
		return float64(hours) * float64(rates.Rate(r)) * indirectCosts * margin
	}
	return BudgetEstimate{
		Hours:        hours,
		Economic:     price(JuniorRate),
		Intermediate: price(MidRate),
		Premium:      price(SeniorRate),
	}
}

// Contact is where the persona sends prospective clients.
type Contact struct {
	Name  string
	Phone string
	URL   string
}

// BudgetTool produces three-tier software budgets.
type BudgetTool struct {
	retriever service.Retriever
	filter    service.PartitionFilter
	rates     RateSource
	contact   Contact
	printer   *message.Printer
}

// NewBudgetTool grounds the estimate in the pricing partition.
func NewBudgetTool(r service.Retriever, pricingSource string, rates RateSource, contact Contact) *BudgetTool {
	return &BudgetTool{
		retriever: r,
		filter:    service.ExactPartition(pricingSource),
		rates:     rates,
		contact:   contact,
		printer:   message.NewPrinter(language.BrazilianPortuguese),
	}
}

func (t *BudgetTool) Name() string { return "calculate-software-budget" }

func (t *BudgetTool) Description() string {
	return "Mandatory tool for software project pricing: price, cost, budget, project estimate, development fees. " +
		"Always returns three options: Econômico (junior team), Intermediário (mixed team) and Premium (senior team)."
}

func (t *BudgetTool) Schema() []byte { return []byte(QuerySchema) }

// Invoke prices the request, or redirects to the contact when the pricing
// document is unavailable.
func (t *BudgetTool) Invoke(ctx context.Context, args json.RawMessage) (ports.ToolOutput, error) {
	var params struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return ports.ToolOutput{}, fmt.Errorf("invalid arguments: %w", err)
	}

	results, err := t.retriever.Search(ctx, params.Query, t.filter, 5)
	if err != nil {
		return ports.ToolOutput{Text: fmt.Sprintf("Erro ao calcular orçamento: %v\n\n%s", err, t.directContact())}, nil
	}
	if len(results) == 0 {
		return ports.ToolOutput{Text: t.noPricingData()}, nil
	}

	est := Estimate(params.Query, t.rates)
	return ports.ToolOutput{Text: t.render(est) + t.callToAction(), Count: len(results)}, nil
}

// BRL formats v as Brazilian currency, e.g. "R$ 1.234,50".
func (t *BudgetTool) BRL(v float64) string {
	return "R$ " + t.printer.Sprintf("%v", number.Decimal(v, number.Scale(2)))
}

func (t *BudgetTool) render(est BudgetEstimate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n**Desenvolvimento de Software & Automação**\n\n", t.contact.Name)
	b.WriteString("Com base em padrões gerais do mercado, apresento três opções de escopo e investimento:\n\n---\n\n")
	b.WriteString("## 💰 Opções de Orçamento\n\n")
	fmt.Fprintf(&b, "### 🟢 Plano Econômico\n**%s**\n- Equipe júnior qualificada\n- Ideal para projetos com orçamento limitado\n- Suporte básico incluído\n\n", t.BRL(est.Economic))
	fmt.Fprintf(&b, "### 🟡 Plano Intermediário (Recomendado)\n**%s**\n- Equipe mista (júnior + pleno)\n- Melhor custo-benefício\n- Suporte completo incluído\n\n", t.BRL(est.Intermediate))
	fmt.Fprintf(&b, "### 🔴 Plano Premium\n**%s**\n- Equipe sênior especializada\n- Desenvolvimento mais ágil\n- Suporte prioritário e consultoria incluídos\n\n", t.BRL(est.Premium))
	fmt.Fprintf(&b, "---\n\n📋 **Estimativa baseada em:** %dh de desenvolvimento\n", est.Hours)
	b.WriteString("💡 **Incluso:** Análise de requisitos, desenvolvimento, testes e deploy\n\n")
	b.WriteString("⚠️ *Estes são valores estimados. Para um orçamento preciso, precisamos conversar sobre os detalhes do seu projeto.*")
	return b.String()
}

func (t *BudgetTool) callToAction() string {
	return fmt.Sprintf(`

---

💬 **Pronto para começar seu projeto?**

Entre em contato comigo pelo WhatsApp para discutir os detalhes:
📱 **%s**

<a href="%s" class="cta-whatsapp-green" target="_blank">Clique aqui para conversar no WhatsApp</a>`, t.contact.Phone, t.contact.URL)
}

func (t *BudgetTool) directContact() string {
	return fmt.Sprintf("Entre em contato comigo diretamente para um orçamento personalizado:\n📱 **WhatsApp:** [%s](%s)", t.contact.Phone, t.contact.URL)
}

func (t *BudgetTool) noPricingData() string {
	return "Não encontrei informações específicas sobre cálculo de orçamento no momento.\n\n" +
		"Mas posso te ajudar com isso! Para discutir seu projeto e receber um orçamento personalizado, entre em contato comigo:\n\n" +
		fmt.Sprintf("📱 **WhatsApp:** [%s](%s)", t.contact.Phone, t.contact.URL)
}
