package scout

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/aesop-bio/aesop/internal/llm"
	"github.com/aesop-bio/aesop/internal/models"
)

// Defaults matching the retrieval tuning of the pipeline.
const (
	DefaultSearchRetMax   = 10
	DefaultFetchBatchSize = 3
	MinVariants           = 3
	MaxVariants           = 5
)

// SearchFetcher is the bibliographic backend: search returns PMIDs,
// fetch resolves them to abstract records.
type SearchFetcher interface {
	Search(ctx context.Context, term string, retmax int) ([]string, error)
	Fetch(ctx context.Context, pmids []string) ([]models.Paper, error)
}

// Scout expands a research query into variants, searches each, and
// fetches the merged identifier set. It degrades instead of failing:
// the worst outcome is an empty paper list.
type Scout struct {
	llm       llm.Completer
	pubmed    SearchFetcher
	retMax    int
	batchSize int
	logger    *zap.Logger
}

func New(completer llm.Completer, pubmed SearchFetcher, retMax, batchSize int, logger *zap.Logger) *Scout {
	if retMax <= 0 {
		retMax = DefaultSearchRetMax
	}
	if batchSize <= 0 {
		batchSize = DefaultFetchBatchSize
	}
	return &Scout{llm: completer, pubmed: pubmed, retMax: retMax, batchSize: batchSize, logger: logger}
}

const expandSystemPrompt = `You expand biomedical research questions into PubMed search queries.

Given a question, produce 3 to 5 alternative search queries covering different phrasings and relevant MeSH-style terminology.

Respond with strict JSON only: an array of query strings.`

// Context carries optional session hints for augmented searches.
type Context struct {
	OriginalQuery string
	CachedTitles  []string
}

// Retrieve runs the full expand/search/fetch pass. It never returns an
// error; total failure yields an empty slice.
func (s *Scout) Retrieve(ctx context.Context, query string, sctx Context) []models.Paper {
	variants := s.expand(ctx, query, sctx)
	pmids := s.search(ctx, variants)
	if len(pmids) == 0 {
		s.logger.Info("scout found no identifiers", zap.String("query", query))
		return nil
	}
	return s.fetch(ctx, pmids)
}

// expand asks the LLM for query variants, parsing defensively. Any
// failure falls back to the original query alone.
func (s *Scout) expand(ctx context.Context, query string, sctx Context) []string {
	user := "Question: " + query
	if sctx.OriginalQuery != "" && sctx.OriginalQuery != query {
		user += "\nOriginal research topic: " + sctx.OriginalQuery
	}
	if len(sctx.CachedTitles) > 0 {
		user += "\nAlready retrieved papers:\n- " + strings.Join(sctx.CachedTitles, "\n- ")
	}

	out, err := s.llm.Complete(ctx, llm.Request{
		System:      expandSystemPrompt,
		User:        user,
		MaxTokens:   400,
		Temperature: 0.3,
	})
	if err != nil {
		s.logger.Warn("query expansion failed", zap.Error(err))
		return []string{query}
	}

	variants, err := llm.DecodeStringArray(out)
	if err != nil {
		variants = splitLines(out)
	}
	variants = sanitizeVariants(variants, query)
	if len(variants) == 0 {
		return []string{query}
	}
	if len(variants) > MaxVariants {
		variants = variants[:MaxVariants]
	}
	return variants
}

// splitLines is the last-resort parse for non-JSON expansion output.
func splitLines(out string) []string {
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*0123456789. ")
		line = strings.Trim(line, `"',`)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func sanitizeVariants(variants []string, original string) []string {
	seen := make(map[string]struct{}, len(variants))
	var out []string
	for _, v := range variants {
		v = strings.TrimSpace(v)
		if v == "" || len(v) > 300 {
			continue
		}
		key := strings.ToLower(v)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

// search runs each variant and merges identifiers in first-seen order.
func (s *Scout) search(ctx context.Context, variants []string) []string {
	seen := make(map[string]struct{})
	var merged []string
	for _, v := range variants {
		ids, err := s.pubmed.Search(ctx, v, s.retMax)
		if err != nil {
			s.logger.Warn("search variant failed", zap.String("variant", v), zap.Error(err))
			continue
		}
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			merged = append(merged, id)
		}
	}
	return merged
}

// fetch resolves identifiers in batches, swallowing per-batch failures.
func (s *Scout) fetch(ctx context.Context, pmids []string) []models.Paper {
	var papers []models.Paper
	for start := 0; start < len(pmids); start += s.batchSize {
		end := start + s.batchSize
		if end > len(pmids) {
			end = len(pmids)
		}
		batch, err := s.pubmed.Fetch(ctx, pmids[start:end])
		if err != nil {
			s.logger.Warn("fetch batch failed",
				zap.Strings("pmids", pmids[start:end]), zap.Error(err))
			continue
		}
		papers = append(papers, batch...)
	}
	return papers
}
