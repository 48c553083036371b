package synthesis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aesop-bio/aesop/internal/llm"
	"github.com/aesop-bio/aesop/internal/models"
)

type fakeLLM struct {
	out     string
	err     error
	lastReq llm.Request
}

func (f *fakeLLM) Complete(ctx context.Context, req llm.Request) (string, error) {
	f.lastReq = req
	return f.out, f.err
}

func TestSynthesizeEmptyPaperSet(t *testing.T) {
	f := &fakeLLM{}
	s := New(f, zap.NewNop())

	out, err := s.Synthesize(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Contains(t, out, "## Background")
	assert.Contains(t, out, "## Conclusion")
	assert.Contains(t, out, "No relevant literature")
	assert.Empty(t, f.lastReq.User, "no LLM call for an empty paper set")
}

func TestSynthesizeSplitsTiers(t *testing.T) {
	f := &fakeLLM{out: "## Background\nreview text"}
	s := New(f, zap.NewNop())

	papers := []models.GradedPaper{
		{PMID: "1", Title: "Strong trial", QualityScore: 0.85, StudyType: "randomized controlled trial"},
		{PMID: "2", Title: "Exactly at cutoff", QualityScore: 0.7},
		{PMID: "3", Title: "Weak series", QualityScore: 0.4, StudyType: "case series"},
	}

	_, err := s.Synthesize(context.Background(), "metformin outcomes", papers)
	require.NoError(t, err)

	prompt := f.lastReq.User
	highIdx := strings.Index(prompt, "High-quality papers:")
	lowIdx := strings.Index(prompt, "Lower-quality papers:")
	require.True(t, highIdx >= 0 && lowIdx > highIdx)

	highSection := prompt[highIdx:lowIdx]
	assert.Contains(t, highSection, "PMID 1")
	assert.Contains(t, highSection, "PMID 2", "cutoff is inclusive for the high tier")
	assert.Contains(t, prompt[lowIdx:], "PMID 3")
}

func TestSynthesizeScrubsUnknownCitations(t *testing.T) {
	f := &fakeLLM{out: "Strong evidence (PMID 1) but also claims (PMID 999) from nowhere."}
	s := New(f, zap.NewNop())

	out, err := s.Synthesize(context.Background(), "q", []models.GradedPaper{
		{PMID: "1", Title: "Real", QualityScore: 0.8},
	})
	require.NoError(t, err)
	assert.Contains(t, out, "(PMID 1)")
	assert.NotContains(t, out, "999")
}

func TestSynthesizeErrorSurfaces(t *testing.T) {
	f := &fakeLLM{err: errors.New("llm down")}
	s := New(f, zap.NewNop())

	_, err := s.Synthesize(context.Background(), "q", []models.GradedPaper{{PMID: "1"}})
	assert.Error(t, err)
}

func TestScrubCitationsFormats(t *testing.T) {
	known := map[string]struct{}{"123": {}}

	assert.Equal(t, "see PMID 123 here", ScrubCitations("see PMID 123 here", known))
	assert.Equal(t, "see here", ScrubCitations("see PMID: 456 here", known))
	assert.Equal(t, "kept (PMID 123) dropped ", ScrubCitations("kept (PMID 123) dropped (PMID 456)", known))
}
