package utility

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/aesop-bio/aesop/internal/llm"
)

// NoSynthesisReply is returned when a reformatting request arrives
// before any synthesis exists.
const NoSynthesisReply = "I don't have a synthesis to reformat yet. Ask me a research question first and I'll write one."

// Transformer reformats a previously generated synthesis. It never
// adds content of its own.
type Transformer struct {
	llm    llm.Completer
	logger *zap.Logger
}

func New(completer llm.Completer, logger *zap.Logger) *Transformer {
	return &Transformer{llm: completer, logger: logger}
}

const transformSystemPrompt = `You reformat an existing evidence synthesis according to the user's instruction (shorten, simplify, bulletize, extract the conclusion, tabulate, and similar).

Rules:
- Use only information already present in the synthesis. Never add findings, numbers, or citations.
- Preserve any PMID citations that survive the transformation.
- If the instruction is unclear, produce a shorter version.`

// Transform applies the requested reformatting to the synthesis.
func (t *Transformer) Transform(ctx context.Context, instruction, synthesis string) (string, error) {
	if synthesis == "" {
		return NoSynthesisReply, nil
	}

	out, err := t.llm.Complete(ctx, llm.Request{
		System:      transformSystemPrompt,
		User:        fmt.Sprintf("Instruction: %s\n\nSynthesis:\n%s", instruction, synthesis),
		MaxTokens:   1500,
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("utility transform: %w", err)
	}
	return out, nil
}
