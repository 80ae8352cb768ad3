package harness

import (
	"fmt"

	ports "github.com/ZanzyTHEbar/persona-rag/persona/generation/harness/ports"
	"github.com/tiktoken-go/tokenizer"
)

// Budget bounds how much stored history is replayed to the model.
type Budget struct {
	MaxContextTokens int // 0 disables the token cap
	MaxMessages      int // 0 disables the count cap
}

// ContextAssembler trims replayed history to a token budget.
type ContextAssembler struct {
	defaultBudget  Budget
	TokenEstimator func(s string) int
}

func NewContextAssembler(b Budget, est func(s string) int) *ContextAssembler {
	if est == nil {
		est = func(s string) int { // rough heuristic: ~4 chars per token
			l := len(s)
			if l == 0 {
				return 0
			}
			return (l + 3) / 4
		}
	}
	return &ContextAssembler{defaultBudget: b, TokenEstimator: est}
}

// NewTiktokenEstimator counts tokens with the cl100k_base encoding used by the OpenAI chat models.
func NewTiktokenEstimator() (func(string) int, error) {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}
	return func(s string) int {
		ids, _, err := codec.Encode(s)
		if err != nil {
			return (len(s) + 3) / 4
		}
		return len(ids)
	}, nil
}

// minKeptMessages is the newest exchange kept regardless of the token cap.
const minKeptMessages = 2

// Fit keeps the newest messages that fit the budget and returns them oldest first.
// The newest user/assistant pair survives the token cap; only MaxMessages can cut it.
func (a *ContextAssembler) Fit(history []ports.PromptMessage, b *Budget) []ports.PromptMessage {
	if b == nil {
		b = &a.defaultBudget
	}
	if len(history) == 0 {
		return nil
	}

	start := len(history)
	used := 0
	for i := len(history) - 1; i >= 0; i-- {
		kept := len(history) - i
		if b.MaxMessages > 0 && kept > b.MaxMessages {
			break
		}
		cost := a.TokenEstimator(history[i].Content)
		if b.MaxContextTokens > 0 && used+cost > b.MaxContextTokens && kept > minKeptMessages {
			break
		}
		used += cost
		start = i
	}
	return history[start:]
}
