package synthesis

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/aesop-bio/aesop/internal/llm"
	"github.com/aesop-bio/aesop/internal/models"
)

// HighQualityCutoff splits the evidence into the two report tiers.
const HighQualityCutoff = 0.7

var pmidCitation = regexp.MustCompile(`\(?\s*PMID[:\s]*(\d+)\s*\)?`)

// Synthesizer turns graded papers into a structured evidence review.
type Synthesizer struct {
	llm    llm.Completer
	logger *zap.Logger
}

func New(completer llm.Completer, logger *zap.Logger) *Synthesizer {
	return &Synthesizer{llm: completer, logger: logger}
}

const synthesisSystemPrompt = `You write evidence syntheses of biomedical literature for a clinically literate reader.

Structure the response as markdown with exactly these H2 sections, in order:
## Background
## High-Quality Evidence
## Lower-Quality Evidence
## Limitations
## Conclusion

Cite papers inline as (PMID NNNNNNN) using only the PMIDs provided. Do not invent findings or citations. If a tier has no papers, say so in one sentence.`

const emptyReview = `## Background

No relevant literature could be retrieved for this question.

## High-Quality Evidence

No papers were available for review.

## Lower-Quality Evidence

No papers were available for review.

## Limitations

The search returned no usable results; this may reflect a very narrow question, very recent developments, or transient retrieval problems.

## Conclusion

No evidence-based conclusion can be drawn. Consider rephrasing the question or trying again later.`

// Synthesize writes the review. With no papers it returns a fixed
// empty-evidence report rather than calling the model.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, papers []models.GradedPaper) (string, error) {
	if len(papers) == 0 {
		return emptyReview, nil
	}

	var high, low []models.GradedPaper
	for _, p := range papers {
		if p.QualityScore >= HighQualityCutoff {
			high = append(high, p)
		} else {
			low = append(low, p)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Research question: %s\n", query)
	b.WriteString("\nHigh-quality papers:\n")
	writeTier(&b, high)
	b.WriteString("\nLower-quality papers:\n")
	writeTier(&b, low)

	out, err := s.llm.Complete(ctx, llm.Request{
		System:      synthesisSystemPrompt,
		User:        b.String(),
		MaxTokens:   2000,
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("synthesis: %w", err)
	}

	known := make(map[string]struct{}, len(papers))
	for _, p := range papers {
		known[p.PMID] = struct{}{}
	}
	return ScrubCitations(out, known), nil
}

func writeTier(b *strings.Builder, papers []models.GradedPaper) {
	if len(papers) == 0 {
		b.WriteString("(none)\n")
		return
	}
	for _, p := range papers {
		fmt.Fprintf(b, "- PMID %s (%s, %d, quality %.2f): %s\n  %s\n",
			p.PMID, displayStudyType(p.StudyType), p.PublicationYear, p.QualityScore,
			p.Title, truncate(p.Abstract, 800))
	}
}

func displayStudyType(t string) string {
	if t == "" {
		return "unclassified"
	}
	return t
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

// ScrubCitations removes PMID citations that do not belong to the
// reviewed paper set. Model output is never trusted on identifiers.
func ScrubCitations(text string, known map[string]struct{}) string {
	return pmidCitation.ReplaceAllStringFunc(text, func(m string) string {
		pmid := pmidCitation.FindStringSubmatch(m)[1]
		if _, ok := known[pmid]; ok {
			return m
		}
		return ""
	})
}
