// Package memory implements the acceptance memory: an append-only
// Postgres+pgvector record of papers the Critic accepted for past
// queries, read back as a confidence boost for similar queries.
package memory

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/aesop-bio/aesop/internal/metrics"
)

const (
	// SimilarityThreshold is the minimum cosine similarity for a past
	// query to contribute to the boost.
	SimilarityThreshold = 0.75

	// DecayLambda is the exponential age decay rate per day.
	DecayLambda = 0.01

	// MaxBoost caps the confidence boost.
	MaxBoost = 0.15
)

// Embedder produces query embeddings for writes and the similarity
// read path.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// AcceptanceRecord is one accepted paper for one research query.
type AcceptanceRecord struct {
	PMID             string
	StudyType        string
	PublicationYear  int
	RelevanceScore   float64
	MethodologyScore float64
	QualityScore     float64
	Iteration        int
}

// Store reads and writes acceptance memory. All failures degrade to
// no-ops: a broken memory never blocks the grading loop.
type Store struct {
	db       *sqlx.DB
	embedder Embedder
	logger   *zap.Logger
}

// NewStore creates a store over the given database handle.
func NewStore(db *sqlx.DB, embedder Embedder, logger *zap.Logger) *Store {
	return &Store{db: db, embedder: embedder, logger: logger}
}

// QueryHash mirrors the generated query_hash column: md5 of the
// lowercased, trimmed query.
func QueryHash(query string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(query))))
	return hex.EncodeToString(sum[:])
}

// RecordAcceptances appends accepted papers for a query. The query is
// embedded once for the whole batch; the embedding column is NOT NULL,
// so an embedding failure skips the batch. Row-level insert failures
// are logged and skipped.
func (s *Store) RecordAcceptances(ctx context.Context, query string, records []AcceptanceRecord) {
	if s == nil || s.db == nil || len(records) == 0 {
		return
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.logger.Warn("Acceptance memory embedding failed, skipping write",
			zap.String("query_hash", QueryHash(query)), zap.Error(err))
		return
	}
	embedding := VectorLiteral(vec)

	const insert = `
		INSERT INTO critic_acceptance_memory
			(research_query, query_embedding, pmid, study_type, publication_year,
			 relevance_score, methodology_score, quality_score, iteration)
		VALUES ($1, $2::vector, $3, $4, $5, $6, $7, $8, $9)`

	written := 0
	for _, rec := range records {
		var year interface{}
		if rec.PublicationYear > 0 {
			year = rec.PublicationYear
		}
		if _, err := s.db.ExecContext(ctx, insert,
			query, embedding, rec.PMID, rec.StudyType, year,
			rec.RelevanceScore, rec.MethodologyScore, rec.QualityScore, rec.Iteration); err != nil {
			s.logger.Warn("Acceptance memory write failed",
				zap.String("pmid", rec.PMID), zap.Error(err))
			continue
		}
		written++
	}
	if written > 0 {
		metrics.AcceptancesRecorded.Add(float64(written))
		s.logger.Info("Recorded acceptances",
			zap.String("query_hash", QueryHash(query)), zap.Int("count", written))
	}
}

type memoryMatch struct {
	QualityScore float64   `db:"quality_score"`
	AcceptedAt   time.Time `db:"accepted_at"`
	Similarity   float64   `db:"similarity"`
}

// FetchBoost returns the confidence boost in [0, MaxBoost] for a
// query. Exact-hash matches are consulted first; otherwise the query
// is embedded and past queries within the cosine similarity threshold
// contribute, weighted by similarity and age decay. Any failure
// returns 0: memory only ever lowers the sufficiency threshold, it
// never blocks.
func (s *Store) FetchBoost(ctx context.Context, query string) float64 {
	if s == nil || s.db == nil {
		return 0
	}

	matches, err := s.exactMatches(ctx, QueryHash(query))
	if err != nil {
		s.logger.Warn("Acceptance memory exact lookup failed", zap.Error(err))
		return 0
	}

	if len(matches) == 0 && s.embedder != nil {
		vec, err := s.embedder.Embed(ctx, query)
		if err != nil {
			s.logger.Warn("Acceptance memory embedding failed", zap.Error(err))
			return 0
		}
		matches, err = s.similarMatches(ctx, vec)
		if err != nil {
			s.logger.Warn("Acceptance memory similarity lookup failed", zap.Error(err))
			return 0
		}
	}

	boost := computeBoost(matches, time.Now().UTC())
	metrics.MemoryBoost.Observe(boost)
	return boost
}

func (s *Store) exactMatches(ctx context.Context, hash string) ([]memoryMatch, error) {
	const q = `
		SELECT quality_score, accepted_at, 1.0 AS similarity
		FROM critic_acceptance_memory
		WHERE query_hash = $1
		ORDER BY accepted_at DESC
		LIMIT 10`

	var matches []memoryMatch
	if err := s.db.SelectContext(ctx, &matches, q, hash); err != nil {
		return nil, err
	}
	return matches, nil
}

func (s *Store) similarMatches(ctx context.Context, vec []float32) ([]memoryMatch, error) {
	const q = `
		SELECT quality_score, accepted_at,
		       1 - (query_embedding <=> $1::vector) AS similarity
		FROM critic_acceptance_memory
		WHERE 1 - (query_embedding <=> $1::vector) >= $2
		ORDER BY similarity DESC
		LIMIT 10`

	var matches []memoryMatch
	if err := s.db.SelectContext(ctx, &matches, q, VectorLiteral(vec), SimilarityThreshold); err != nil {
		return nil, err
	}
	return matches, nil
}

// computeBoost weights each match by similarity and exponential age
// decay, then averages quality*weight and clamps to [0, MaxBoost].
func computeBoost(matches []memoryMatch, now time.Time) float64 {
	if len(matches) == 0 {
		return 0
	}

	var sum float64
	for _, m := range matches {
		ageDays := now.Sub(m.AcceptedAt).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		weight := m.Similarity * math.Exp(-DecayLambda*ageDays)
		sum += m.QualityScore * weight
	}

	boost := sum / float64(len(matches))
	if boost < 0 {
		boost = 0
	}
	if boost > MaxBoost {
		boost = MaxBoost
	}
	return boost
}

// VectorLiteral renders a float32 slice as a pgvector input literal.
func VectorLiteral(vec []float32) string {
	if len(vec) == 0 {
		return "[]"
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%g", v)
	}
	b.WriteByte(']')
	return b.String()
}
