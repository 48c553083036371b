package critic

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aesop-bio/aesop/internal/models"
)

func grade(rec models.Recommendation, rel, meth float64) models.PaperGrade {
	return models.PaperGrade{RelevanceScore: rel, MethodologyScore: meth, Recommendation: rec}
}

func TestDecideKeepRatioSufficient(t *testing.T) {
	// 2 of 5 kept = 0.40 exactly; rule 1 fires regardless of quality.
	grades := []models.PaperGrade{
		grade(models.RecommendationKeep, 0.5, 0.5),
		grade(models.RecommendationKeep, 0.5, 0.5),
		grade(models.RecommendationNeedsMore, 0.1, 0.1),
		grade(models.RecommendationNeedsMore, 0.1, 0.1),
		grade(models.RecommendationNeedsMore, 0.1, 0.1),
	}

	d := Decide(grades, 1, 0)
	assert.Equal(t, DecisionSufficient, d.Decision)
	assert.InDelta(t, 0.40, d.KeepRatio, 1e-9)
}

func TestDecideDiscardRatioForcesRetrieval(t *testing.T) {
	// 3 of 5 discarded = 0.60 >= 0.55, despite high quality keeps.
	grades := []models.PaperGrade{
		grade(models.RecommendationKeep, 0.9, 0.9),
		grade(models.RecommendationNeedsMore, 0.9, 0.9),
		grade(models.RecommendationDiscard, 0.1, 0.1),
		grade(models.RecommendationDiscard, 0.1, 0.1),
		grade(models.RecommendationDiscard, 0.1, 0.1),
	}

	d := Decide(grades, 1, 0)
	assert.Equal(t, DecisionRetrieveMore, d.Decision)
	assert.InDelta(t, 0.60, d.DiscardRatio, 1e-9)
}

func TestDecideAvgQualityAgainstThreshold(t *testing.T) {
	// One keep of four is below the keep-ratio bar; discard ratio is
	// low; retained average quality decides.
	grades := []models.PaperGrade{
		grade(models.RecommendationKeep, 0.7, 0.7),
		grade(models.RecommendationNeedsMore, 0.6, 0.6),
		grade(models.RecommendationNeedsMore, 0.5, 0.5),
		grade(models.RecommendationNeedsMore, 0.4, 0.4),
	}

	// avg quality of retained = (0.7+0.6+0.5+0.4)/4 = 0.55.
	// Iteration 1, no boost: threshold = 0.60 - 0.07 = 0.53.
	d := Decide(grades, 1, 0)
	assert.Equal(t, DecisionSufficient, d.Decision)
	assert.InDelta(t, 0.55, d.AvgQuality, 1e-9)

	// Iteration 0 would hold the full bar of 0.60.
	d0 := Decide(grades, 0, 0)
	assert.Equal(t, DecisionRetrieveMore, d0.Decision)
}

func TestDecideDiscardsExcludedFromAvgQuality(t *testing.T) {
	grades := []models.PaperGrade{
		grade(models.RecommendationNeedsMore, 0.8, 0.8),
		grade(models.RecommendationDiscard, 0.0, 0.0),
		grade(models.RecommendationDiscard, 0.0, 0.0),
	}

	d := Decide(grades, 1, 0)
	assert.InDelta(t, 0.8, d.AvgQuality, 1e-9)
}

func TestDecideAllDiscardedZeroQuality(t *testing.T) {
	grades := []models.PaperGrade{
		grade(models.RecommendationDiscard, 0.9, 0.9),
		grade(models.RecommendationDiscard, 0.9, 0.9),
	}

	d := Decide(grades, 1, 0)
	assert.Equal(t, DecisionRetrieveMore, d.Decision)
	assert.Zero(t, d.AvgQuality)
	assert.InDelta(t, 1.0, d.DiscardRatio, 1e-9)
}

func TestDecideNoPapers(t *testing.T) {
	d := Decide(nil, 1, 0)
	assert.Equal(t, DecisionRetrieveMore, d.Decision)
	assert.Contains(t, d.Explanation, "No papers retrieved")
}

func TestEffectiveThreshold(t *testing.T) {
	assert.InDelta(t, 0.60, EffectiveThreshold(0, 0), 1e-9)
	assert.InDelta(t, 0.53, EffectiveThreshold(1, 0), 1e-9)
	assert.InDelta(t, 0.46, EffectiveThreshold(2, 0), 1e-9)
	// Floored at 0.45: 0.60 - 3*0.07 = 0.39 -> 0.45.
	assert.InDelta(t, 0.45, EffectiveThreshold(3, 0), 1e-9)
	// Memory boost relaxes the bar but never below the floor.
	assert.InDelta(t, 0.45, EffectiveThreshold(1, 0.10), 1e-9)
	assert.InDelta(t, 0.48, EffectiveThreshold(1, 0.05), 1e-9)
}

func TestDecideMemoryBoostFlipsDecision(t *testing.T) {
	grades := []models.PaperGrade{
		grade(models.RecommendationNeedsMore, 0.5, 0.5),
		grade(models.RecommendationNeedsMore, 0.5, 0.5),
		grade(models.RecommendationNeedsMore, 0.5, 0.5),
	}

	// avg 0.50: iteration 1 without boost needs 0.53.
	assert.Equal(t, DecisionRetrieveMore, Decide(grades, 1, 0).Decision)
	// Boost 0.05 lowers the bar to 0.48.
	assert.Equal(t, DecisionSufficient, Decide(grades, 1, 0.05).Decision)
}

func TestRound3(t *testing.T) {
	assert.Equal(t, 0.567, Round3(0.5666666))
	assert.Equal(t, 0.0, Round3(0.0))
}
