package critic

import (
	"github.com/aesop-bio/aesop/internal/memory"
	"github.com/aesop-bio/aesop/internal/models"
)

// BuildGradedPapers joins retained papers with their grades. Discarded
// papers are dropped. The per-paper quality score is the mean of
// relevance and methodology, penalized when the sample size was judged
// inadequate.
func BuildGradedPapers(papers []models.Paper, grades []models.PaperGrade) []models.GradedPaper {
	byPMID := make(map[string]models.Paper, len(papers))
	for _, p := range papers {
		byPMID[p.PMID] = p
	}

	graded := make([]models.GradedPaper, 0, len(grades))
	for _, g := range grades {
		if g.Recommendation == models.RecommendationDiscard {
			continue
		}
		p, ok := byPMID[g.PMID]
		if !ok {
			continue
		}
		graded = append(graded, models.GradedPaper{
			PMID:            p.PMID,
			Title:           p.Title,
			Abstract:        p.Abstract,
			PublicationYear: p.PublicationYear,
			Journal:         p.Journal,
			QualityScore:    QualityScore(g),
			StudyType:       g.StudyType,
			Recommendation:  string(g.Recommendation),
		})
	}
	return graded
}

// QualityScore is the persisted per-paper quality: mean of relevance
// and methodology, scaled down when the sample size is inadequate.
func QualityScore(g models.PaperGrade) float64 {
	q := g.Quality()
	if !g.SampleSizeAdequate {
		q *= SmallSamplePenalty
	}
	return q
}

// AcceptanceRecords selects the KEEP grades worth remembering: quality
// at or above the save threshold, joined with paper metadata.
func AcceptanceRecords(papers []models.Paper, grades []models.PaperGrade, iteration int) []memory.AcceptanceRecord {
	byPMID := make(map[string]models.Paper, len(papers))
	for _, p := range papers {
		byPMID[p.PMID] = p
	}

	var records []memory.AcceptanceRecord
	for _, g := range grades {
		if g.Recommendation != models.RecommendationKeep {
			continue
		}
		quality := QualityScore(g)
		if quality < MinQualityForAcceptanceSave {
			continue
		}
		p := byPMID[g.PMID]
		records = append(records, memory.AcceptanceRecord{
			PMID:             g.PMID,
			StudyType:        g.StudyType,
			PublicationYear:  p.PublicationYear,
			RelevanceScore:   g.RelevanceScore,
			MethodologyScore: g.MethodologyScore,
			QualityScore:     quality,
			Iteration:        iteration,
		})
	}
	return records
}
