package scout

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aesop-bio/aesop/internal/llm"
	"github.com/aesop-bio/aesop/internal/models"
)

type fakeLLM struct {
	out string
	err error
}

func (f *fakeLLM) Complete(ctx context.Context, req llm.Request) (string, error) {
	return f.out, f.err
}

type fakePubMed struct {
	searchResults map[string][]string
	searchErr     error
	fetchErr      map[string]error
	searches      []string
	fetches       [][]string
}

func (f *fakePubMed) Search(ctx context.Context, term string, retmax int) ([]string, error) {
	f.searches = append(f.searches, term)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.searchResults[term], nil
}

func (f *fakePubMed) Fetch(ctx context.Context, pmids []string) ([]models.Paper, error) {
	f.fetches = append(f.fetches, pmids)
	if err := f.fetchErr[pmids[0]]; err != nil {
		return nil, err
	}
	papers := make([]models.Paper, 0, len(pmids))
	for _, id := range pmids {
		papers = append(papers, models.Paper{PMID: id, Title: "paper " + id})
	}
	return papers, nil
}

func TestRetrieveMergesAndDedupes(t *testing.T) {
	pm := &fakePubMed{searchResults: map[string][]string{
		"variant one": {"1", "2", "3"},
		"variant two": {"2", "4"},
	}}
	s := New(&fakeLLM{out: `["variant one", "variant two"]`}, pm, 10, 3, zap.NewNop())

	papers := s.Retrieve(context.Background(), "q", Context{})
	require.Len(t, papers, 4)
	// First-seen order survives merging and batching.
	assert.Equal(t, "1", papers[0].PMID)
	assert.Equal(t, "4", papers[3].PMID)
	// 4 identifiers at batch size 3 means two fetch calls.
	require.Len(t, pm.fetches, 2)
	assert.Equal(t, []string{"1", "2", "3"}, pm.fetches[0])
	assert.Equal(t, []string{"4"}, pm.fetches[1])
}

func TestRetrieveExpansionFailureUsesOriginal(t *testing.T) {
	pm := &fakePubMed{searchResults: map[string][]string{"q": {"1"}}}
	s := New(&fakeLLM{err: errors.New("llm down")}, pm, 10, 3, zap.NewNop())

	papers := s.Retrieve(context.Background(), "q", Context{})
	require.Len(t, papers, 1)
	assert.Equal(t, []string{"q"}, pm.searches)
}

func TestRetrieveLineSplitFallback(t *testing.T) {
	out := "Here are some queries:\n1. metformin cardiovascular outcomes\n2. metformin heart disease trial\n"
	pm := &fakePubMed{searchResults: map[string][]string{
		"Here are some queries:":            nil,
		"metformin cardiovascular outcomes": {"1"},
		"metformin heart disease trial":     {"2"},
	}}
	s := New(&fakeLLM{out: out}, pm, 10, 3, zap.NewNop())

	papers := s.Retrieve(context.Background(), "q", Context{})
	assert.Len(t, papers, 2)
}

func TestRetrieveSearchFailureReturnsEmpty(t *testing.T) {
	pm := &fakePubMed{searchErr: errors.New("pubmed down")}
	s := New(&fakeLLM{out: `["a", "b"]`}, pm, 10, 3, zap.NewNop())

	papers := s.Retrieve(context.Background(), "q", Context{})
	assert.Empty(t, papers)
}

func TestRetrieveBatchFailureIsPartial(t *testing.T) {
	pm := &fakePubMed{
		searchResults: map[string][]string{"a": {"1", "2", "3", "4", "5", "6"}},
		fetchErr:      map[string]error{"4": errors.New("efetch 500")},
	}
	s := New(&fakeLLM{out: `["a"]`}, pm, 10, 3, zap.NewNop())

	papers := s.Retrieve(context.Background(), "q", Context{})
	require.Len(t, papers, 3)
	assert.Equal(t, "1", papers[0].PMID)
}

func TestRetrieveAllBatchesFailReturnsEmpty(t *testing.T) {
	pm := &fakePubMed{
		searchResults: map[string][]string{"a": {"1", "2"}},
		fetchErr:      map[string]error{"1": errors.New("efetch 500")},
	}
	s := New(&fakeLLM{out: `["a"]`}, pm, 10, 3, zap.NewNop())

	assert.Empty(t, s.Retrieve(context.Background(), "q", Context{}))
}

func TestExpandCapsVariants(t *testing.T) {
	var many []string
	for i := 0; i < 8; i++ {
		many = append(many, fmt.Sprintf(`"variant %d"`, i))
	}
	out := "[" + many[0]
	for _, v := range many[1:] {
		out += ", " + v
	}
	out += "]"

	s := New(&fakeLLM{out: out}, &fakePubMed{}, 10, 3, zap.NewNop())
	variants := s.expand(context.Background(), "q", Context{})
	assert.Len(t, variants, MaxVariants)
}

func TestExpandDedupesVariants(t *testing.T) {
	s := New(&fakeLLM{out: `["same query", "Same Query", "other"]`}, &fakePubMed{}, 10, 3, zap.NewNop())
	variants := s.expand(context.Background(), "q", Context{})
	assert.Equal(t, []string{"same query", "other"}, variants)
}
