package critic

import "strings"

// Grading rubric thresholds. The decision rules in Decide depend on
// these exact values; change them only together with their tests.
const (
	MinRelevanceToKeep          = 0.45
	MinMethodologyToKeep        = 0.50
	MinAvgQualityForSufficient  = 0.60
	MaxDiscardRatio             = 0.55
	MinKeepRatioForSufficient   = 0.40
	ConfidenceDecayRate         = 0.07
	MinConfidenceFloor          = 0.45
	MaxIterations               = 3
	SmallSamplePenalty          = 0.7
	MinQualityForAcceptanceSave = 0.60
)

// StudyTypePriors floors the methodology score by evidence hierarchy.
// Keys are canonical lowercased study types.
var StudyTypePriors = map[string]float64{
	"meta-analysis":               0.85,
	"systematic review":           0.80,
	"randomized controlled trial": 0.70,
	"cohort study":                0.55,
	"case-control study":          0.50,
	"cross-sectional study":       0.45,
	"case series":                 0.30,
	"case study":                  0.25,
	"expert opinion":              0.20,
}

// SampleSizeThresholds documents the minimum participant counts the
// rubric prompt treats as adequate per design. Pooled designs carry no
// minimum.
var SampleSizeThresholds = map[string]int{
	"randomized controlled trial": 80,
	"cohort study":                200,
	"case-control study":          150,
	"cross-sectional study":       200,
	"case series":                 15,
	"case study":                  8,
	"meta-analysis":               0,
	"systematic review":           0,
}

// studyTypeAliases maps model shorthand onto canonical types.
var studyTypeAliases = map[string]string{
	"rct":                          "randomized controlled trial",
	"randomised controlled trial":  "randomized controlled trial",
	"randomized clinical trial":    "randomized controlled trial",
	"meta analysis":                "meta-analysis",
	"case control study":           "case-control study",
	"case-control":                 "case-control study",
	"cross sectional study":        "cross-sectional study",
	"cohort":                       "cohort study",
	"prospective cohort study":     "cohort study",
	"retrospective cohort study":   "cohort study",
	"case report":                  "case study",
	"review":                       "systematic review",
}

// NormalizeStudyType lowercases and canonicalizes a reported study
// type. Unknown types map to the empty string.
func NormalizeStudyType(studyType string) string {
	st := strings.ToLower(strings.TrimSpace(studyType))
	if st == "" {
		return ""
	}
	if canonical, ok := studyTypeAliases[st]; ok {
		return canonical
	}
	if _, ok := StudyTypePriors[st]; ok {
		return st
	}
	return ""
}
