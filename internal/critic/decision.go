package critic

import (
	"fmt"
	"math"

	"github.com/aesop-bio/aesop/internal/models"
)

// Loop decisions.
const (
	DecisionSufficient   = "sufficient"
	DecisionRetrieveMore = "retrieve_more"
)

// Decision is the per-iteration outcome of the grading loop, with the
// quantities behind it for explainability.
type Decision struct {
	Decision           string  `json:"decision"`
	KeepRatio          float64 `json:"keep_ratio"`
	DiscardRatio       float64 `json:"discard_ratio"`
	NeedsMoreRatio     float64 `json:"needs_more_ratio"`
	AvgQuality         float64 `json:"avg_quality"`
	EffectiveThreshold float64 `json:"effective_threshold"`
	MemoryBoost        float64 `json:"memory_boost"`
	Iteration          int     `json:"iteration"`
	Explanation        string  `json:"explanation"`
}

// EffectiveThreshold is the sufficiency bar for a given iteration and
// memory boost: the base bar relaxed by iteration decay and by prior
// acceptances, floored so quality never degrades below the minimum.
func EffectiveThreshold(iteration int, memoryBoost float64) float64 {
	t := MinAvgQualityForSufficient - float64(iteration)*ConfidenceDecayRate - memoryBoost
	return math.Max(MinConfidenceFloor, t)
}

// Decide applies the loop decision rules, in order:
// a high keep ratio is sufficient on its own; a high discard ratio
// forces another retrieval; otherwise average quality of the retained
// papers is measured against the effective threshold.
func Decide(grades []models.PaperGrade, iteration int, memoryBoost float64) Decision {
	d := Decision{
		Iteration:          iteration,
		MemoryBoost:        memoryBoost,
		EffectiveThreshold: EffectiveThreshold(iteration, memoryBoost),
	}

	if len(grades) == 0 {
		d.Decision = DecisionRetrieveMore
		d.Explanation = "No papers retrieved; additional search required."
		return d
	}

	n := float64(len(grades))
	var keep, discard, needsMore int
	var qualitySum float64
	var retained int
	for _, g := range grades {
		switch g.Recommendation {
		case models.RecommendationKeep:
			keep++
		case models.RecommendationDiscard:
			discard++
		default:
			needsMore++
		}
		if g.Recommendation != models.RecommendationDiscard {
			qualitySum += g.Quality()
			retained++
		}
	}

	d.KeepRatio = float64(keep) / n
	d.DiscardRatio = float64(discard) / n
	d.NeedsMoreRatio = float64(needsMore) / n
	if retained > 0 {
		d.AvgQuality = qualitySum / float64(retained)
	}

	switch {
	case d.KeepRatio >= MinKeepRatioForSufficient:
		d.Decision = DecisionSufficient
	case d.DiscardRatio >= MaxDiscardRatio:
		d.Decision = DecisionRetrieveMore
	case d.AvgQuality >= d.EffectiveThreshold:
		d.Decision = DecisionSufficient
	default:
		d.Decision = DecisionRetrieveMore
	}

	d.Explanation = fmt.Sprintf(
		"CRAG decision='%s' | avg_quality=%.3f, discard_ratio=%.3f, iteration=%d",
		d.Decision, Round3(d.AvgQuality), Round3(d.DiscardRatio), iteration,
	)
	return d
}

// Round3 rounds to three decimals for response metadata.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
