package models

import "strings"

// Intent is the coarse classification of an incoming chat message.
type Intent string

const (
	IntentChat             Intent = "chat"
	IntentResearch         Intent = "research"
	IntentFollowupResearch Intent = "followup_research"
	IntentUtility          Intent = "utility"
)

// Valid reports whether the intent is one of the four known labels.
func (i Intent) Valid() bool {
	switch i {
	case IntentChat, IntentResearch, IntentFollowupResearch, IntentUtility:
		return true
	}
	return false
}

// Route names the pipeline path a message takes after classification.
type Route string

const (
	RouteChat      Route = "chat"
	RouteUtility   Route = "utility"
	RouteFullGraph Route = "full_graph"        // full retrieval pipeline
	RouteAugmentedContext Route = "augmented_context" // cached papers plus targeted retrieval
	RouteContextQA Route = "context_qa"        // answer from cache only
)

// Recommendation is the Critic's per-paper verdict.
type Recommendation string

const (
	RecommendationKeep      Recommendation = "keep"
	RecommendationDiscard   Recommendation = "discard"
	RecommendationNeedsMore Recommendation = "needs_more"
)

// Paper is a PubMed article as retrieved by the Scout.
type Paper struct {
	PMID            string `json:"pmid"`
	Title           string `json:"title"`
	Abstract        string `json:"abstract"`
	PublicationYear int    `json:"publication_year,omitempty"`
	Journal         string `json:"journal,omitempty"`
}

// HasAbstract reports whether the paper carries usable abstract text.
func (p Paper) HasAbstract() bool {
	return strings.TrimSpace(p.Abstract) != ""
}

// PaperGrade is the Critic's enforced assessment of a single paper.
// After enforcement the scores are always within [0,1] and the
// recommendation is always one of the three known values.
type PaperGrade struct {
	PMID               string         `json:"pmid"`
	RelevanceScore     float64        `json:"relevance_score"`
	MethodologyScore   float64        `json:"methodology_score"`
	SampleSizeAdequate bool           `json:"sample_size_adequate"`
	StudyType          string         `json:"study_type"`
	Recommendation     Recommendation `json:"recommendation"`
	Reasoning          string         `json:"reasoning,omitempty"`
}

// Quality is the unpenalized per-paper quality used for the loop
// decision: the mean of relevance and methodology.
func (g PaperGrade) Quality() float64 {
	return (g.RelevanceScore + g.MethodologyScore) / 2
}

// GradedPaper is a retained paper joined with its grade, as handed to
// the Synthesizer and cached in the session. Discarded papers are never
// materialized as GradedPapers.
type GradedPaper struct {
	PMID            string  `json:"pmid"`
	Title           string  `json:"title"`
	Abstract        string  `json:"abstract"`
	PublicationYear int     `json:"publication_year,omitempty"`
	Journal         string  `json:"journal,omitempty"`
	QualityScore    float64 `json:"quality_score"`
	StudyType       string  `json:"study_type"`
	Recommendation  string  `json:"recommendation"`
}
