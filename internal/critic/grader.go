package critic

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/aesop-bio/aesop/internal/llm"
	"github.com/aesop-bio/aesop/internal/metrics"
	"github.com/aesop-bio/aesop/internal/models"
)

const gradeSystemPrompt = `You are a senior biomedical researcher acting as a methodological reviewer.

You evaluate scientific abstracts ONLY.
Do NOT assume facts not explicitly stated in the abstract.

Your task:
- Assess relevance to the research question
- Assess methodological rigor and study design
- Be conservative and evidence-based
- Low confidence or weak evidence means "needs_more" or "discard"

Return EXACTLY ONE valid JSON object, with no explanations, markdown,
code fences, or text before or after the JSON:

{
  "relevance_score": number,
  "methodology_score": number,
  "sample_size_adequate": boolean,
  "study_type": string | null,
  "recommendation": "keep" | "discard" | "needs_more"
}

If information is unknown use 0.0 for scores, false for booleans, and
null for strings.`

const gradeUserTemplate = `Research Question:
%s

Abstract:
"""
%s
"""

Evaluate the abstract strictly according to the system instructions.
Return ONLY the JSON object. No explanations.`

// Grader evaluates a single paper against a research question.
type Grader struct {
	llm    llm.Completer
	logger *zap.Logger
}

// NewGrader creates a grader.
func NewGrader(completer llm.Completer, logger *zap.Logger) *Grader {
	return &Grader{llm: completer, logger: logger}
}

// rawGrade is the untrusted model output before enforcement.
type rawGrade struct {
	RelevanceScore     float64 `json:"relevance_score"`
	MethodologyScore   float64 `json:"methodology_score"`
	SampleSizeAdequate bool    `json:"sample_size_adequate"`
	StudyType          *string `json:"study_type"`
	Recommendation     string  `json:"recommendation"`
}

// GradePaper grades one paper. Malformed model output degrades to the
// zero-score discard grade; a transport-level failure is returned to
// the caller, which substitutes the same fallback.
func (g *Grader) GradePaper(ctx context.Context, question string, paper models.Paper) (models.PaperGrade, error) {
	text := paper.Abstract
	if !paper.HasAbstract() {
		text = paper.Title
	}

	out, err := g.llm.Complete(ctx, llm.Request{
		System:      gradeSystemPrompt,
		User:        fmt.Sprintf(gradeUserTemplate, question, text),
		Temperature: 0,
		MaxTokens:   300,
	})
	if err != nil {
		return models.PaperGrade{}, fmt.Errorf("grade pmid %s: %w", paper.PMID, err)
	}

	var raw rawGrade
	if err := llm.DecodeObject(out, &raw); err != nil {
		g.logger.Warn("Unparseable grade, discarding paper",
			zap.String("pmid", paper.PMID), zap.Error(err))
		grade := FallbackGrade(paper.PMID)
		metrics.RecordGrade(string(grade.Recommendation), grade.Quality())
		return grade, nil
	}

	grade := EnforceGrade(raw, paper.PMID)
	metrics.RecordGrade(string(grade.Recommendation), grade.Quality())
	return grade, nil
}

// EnforceGrade applies the non-negotiable post-model rules: score
// clamping, study type normalization, the methodology prior floor, and
// the discard override below the keep thresholds. The PMID always
// comes from the paper, never the model.
func EnforceGrade(raw rawGrade, pmid string) models.PaperGrade {
	studyType := ""
	if raw.StudyType != nil {
		studyType = NormalizeStudyType(*raw.StudyType)
	}

	relevance := clamp01(raw.RelevanceScore)
	methodology := clamp01(raw.MethodologyScore)
	if prior, ok := StudyTypePriors[studyType]; ok && prior > methodology {
		methodology = prior
	}

	rec := normalizeRecommendation(raw.Recommendation)
	if relevance < MinRelevanceToKeep || methodology < MinMethodologyToKeep {
		rec = models.RecommendationDiscard
	}

	return models.PaperGrade{
		PMID:               pmid,
		RelevanceScore:     relevance,
		MethodologyScore:   methodology,
		SampleSizeAdequate: raw.SampleSizeAdequate,
		StudyType:          studyType,
		Recommendation:     rec,
	}
}

// FallbackGrade is the zero-score discard used when grading a paper
// fails terminally. The loop continues without it.
func FallbackGrade(pmid string) models.PaperGrade {
	return models.PaperGrade{
		PMID:           pmid,
		Recommendation: models.RecommendationDiscard,
		Reasoning:      "grading failed",
	}
}

func normalizeRecommendation(rec string) models.Recommendation {
	switch models.Recommendation(strings.ToLower(strings.TrimSpace(rec))) {
	case models.RecommendationKeep:
		return models.RecommendationKeep
	case models.RecommendationDiscard:
		return models.RecommendationDiscard
	case models.RecommendationNeedsMore:
		return models.RecommendationNeedsMore
	default:
		return models.RecommendationNeedsMore
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
