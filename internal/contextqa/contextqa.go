package contextqa

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/aesop-bio/aesop/internal/llm"
	"github.com/aesop-bio/aesop/internal/session"
)

// MaxPapersInContext bounds the prompt to the best cached papers.
const MaxPapersInContext = 10

// NoContextReply is returned when a followup arrives without any
// cached papers to answer from.
const NoContextReply = "I don't have any retrieved papers in this conversation to answer from. Ask me a research question first and I'll search the literature."

// Answerer answers followup questions strictly from cached papers.
// It performs no retrieval.
type Answerer struct {
	llm    llm.Completer
	logger *zap.Logger
}

func New(completer llm.Completer, logger *zap.Logger) *Answerer {
	return &Answerer{llm: completer, logger: logger}
}

const answerSystemPrompt = `You answer questions about a set of already retrieved biomedical papers.

Use only the papers provided. If the papers do not contain the answer, say so plainly. Cite papers inline as (PMID NNNNNNN). Never invent papers, findings, or identifiers.`

// Answer responds to the question from the session's cached papers.
func (a *Answerer) Answer(ctx context.Context, question string, sess *session.Context) (string, error) {
	if sess == nil || len(sess.RetrievedPapers) == 0 {
		return NoContextReply, nil
	}

	papers := sess.TopPapersByQuality(MaxPapersInContext)
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", question)
	if sess.OriginalQuery != "" {
		fmt.Fprintf(&b, "Original research question: %s\n", sess.OriginalQuery)
	}
	b.WriteString("\nRetrieved papers:\n")
	for _, p := range papers {
		fmt.Fprintf(&b, "- PMID %s (%d, quality %.2f): %s\n  %s\n",
			p.PMID, p.PublicationYear, p.QualityScore, p.Title, p.Abstract)
	}

	out, err := a.llm.Complete(ctx, llm.Request{
		System:      answerSystemPrompt,
		User:        b.String(),
		MaxTokens:   1200,
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("context qa: %w", err)
	}
	return out, nil
}
