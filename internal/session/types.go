package session

import (
	"errors"
	"sort"
	"time"
)

const (
	// KeyPrefix namespaces session keys in Redis.
	KeyPrefix = "aesop:session:"

	// DefaultTTL is the sliding session lifetime. Every read or write
	// of a session resets it.
	DefaultTTL = 3600 * time.Second

	// MaxCachedPapers caps the papers persisted per session.
	MaxCachedPapers = 15

	// MaxSummaryChars caps the synthesis summary persisted per session.
	MaxSummaryChars = 1500
)

var (
	ErrSessionNotFound = errors.New("session not found")
)

// Key renders the Redis key for a session ID.
func Key(sessionID string) string {
	return KeyPrefix + sessionID
}

// CachedPaper is a graded paper persisted in the session for reuse by
// follow-up turns.
type CachedPaper struct {
	PMID            string  `json:"pmid"`
	Title           string  `json:"title"`
	Abstract        string  `json:"abstract"`
	PublicationYear int     `json:"publication_year,omitempty"`
	Journal         string  `json:"journal,omitempty"`
	QualityScore    float64 `json:"quality_score"`
	StudyType       string  `json:"study_type,omitempty"`
	Recommendation  string  `json:"recommendation"`
}

// Context is the per-session state carried between turns.
type Context struct {
	SessionID        string        `json:"session_id"`
	OriginalQuery    string        `json:"original_query"`
	QueryEmbedding   []float32     `json:"query_embedding,omitempty"`
	RetrievedPapers  []CachedPaper `json:"retrieved_papers"`
	SynthesisSummary string        `json:"synthesis_summary"`
	TurnCount        int           `json:"turn_count"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// HasSynthesis reports whether a prior turn produced a synthesis.
func (c *Context) HasSynthesis() bool {
	return c != nil && c.SynthesisSummary != ""
}

// TopPapersByQuality returns up to n cached papers ordered by
// descending quality score. The receiver's slice is not modified.
func (c *Context) TopPapersByQuality(n int) []CachedPaper {
	if c == nil || len(c.RetrievedPapers) == 0 {
		return nil
	}
	papers := make([]CachedPaper, len(c.RetrievedPapers))
	copy(papers, c.RetrievedPapers)
	sort.SliceStable(papers, func(i, j int) bool {
		return papers[i].QualityScore > papers[j].QualityScore
	})
	if len(papers) > n {
		papers = papers[:n]
	}
	return papers
}

// PaperTitles returns the titles of all cached papers.
func (c *Context) PaperTitles() []string {
	if c == nil {
		return nil
	}
	titles := make([]string, 0, len(c.RetrievedPapers))
	for _, p := range c.RetrievedPapers {
		titles = append(titles, p.Title)
	}
	return titles
}

// truncateRunes limits s to max runes, appending no marker.
func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
