package routing

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aesop-bio/aesop/internal/metrics"
	"github.com/aesop-bio/aesop/internal/models"
)

// Jaccard bands for the overlap signal. At the exact boundary the
// higher-effort route wins.
const (
	ContextQAOverlap = 0.35
	AugmentOverlap   = 0.15
)

var (
	deicticRe  = regexp.MustCompile(`(?i)\b(these|those|this|that)\s+(studies|papers|results|articles|findings)\b`)
	pronounRe  = regexp.MustCompile(`(?i)\b(them|it)\b`)
	refNounRe  = regexp.MustCompile(`(?i)\b(studies|papers|results|articles|findings|study|paper|result|article|finding)\b`)
	pmidRe     = regexp.MustCompile(`(?i)\bpmid\s*\d+\b`)
	ordinalRe  = regexp.MustCompile(`(?i)\b(first|second|third|fourth|fifth|last)\s+(paper|study|one|result)\b`)
	numberedRe = regexp.MustCompile(`(?i)\b(paper|study)\s+\d+\b`)
	tokenRe    = regexp.MustCompile(`[a-z0-9]+`)
)

// pronounWindow is the character distance within which a bare pronoun
// counts as referring to retrieved content.
const pronounWindow = 15

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "of": {}, "in": {},
	"on": {}, "for": {}, "to": {}, "with": {}, "is": {}, "are": {}, "was": {},
	"were": {}, "be": {}, "by": {}, "as": {}, "at": {}, "it": {}, "its": {},
	"this": {}, "that": {}, "these": {}, "those": {}, "from": {}, "about": {},
	"what": {}, "which": {}, "how": {}, "why": {}, "do": {}, "does": {},
	"can": {}, "could": {}, "will": {}, "would": {}, "has": {}, "have": {},
	"me": {}, "my": {}, "you": {}, "your": {}, "we": {}, "our": {}, "us": {},
	"not": {}, "no": {}, "but": {}, "if": {}, "so": {}, "than": {}, "then": {},
	"more": {}, "most": {}, "between": {}, "among": {}, "into": {}, "over": {},
	"effect": {}, "effects": {}, "study": {}, "studies": {},
}

// SessionSignals is the routing-relevant projection of a session.
type SessionSignals struct {
	Present     bool
	PaperTitles []string
}

// Decision records the chosen route and the signals that produced it.
type Decision struct {
	Route    models.Route
	Overlap  float64
	Deictic  bool
	Explicit bool
	Reason   string
}

// Decide picks a route for a research or followup message. It is pure:
// same message, intent, and session signals always give the same route.
func Decide(message string, intent models.Intent, sess SessionSignals) Decision {
	d := Decision{
		Deictic:  hasDeictic(message),
		Explicit: hasExplicitReference(message),
	}
	if sess.Present {
		d.Overlap = TitleOverlap(message, sess.PaperTitles)
	}

	switch {
	case intent == models.IntentFollowupResearch:
		d.Route = models.RouteContextQA
		d.Reason = "followup intent"
	case d.Deictic && sess.Present:
		d.Route = models.RouteContextQA
		d.Reason = "deictic reference to retrieved papers"
	case d.Explicit && sess.Present:
		d.Route = models.RouteContextQA
		d.Reason = "explicit paper reference"
	case sess.Present && d.Overlap >= ContextQAOverlap:
		d.Route = models.RouteContextQA
		d.Reason = fmt.Sprintf("title overlap %.2f", d.Overlap)
	case sess.Present && d.Overlap >= AugmentOverlap:
		d.Route = models.RouteAugmentedContext
		d.Reason = fmt.Sprintf("partial title overlap %.2f", d.Overlap)
	default:
		d.Route = models.RouteFullGraph
		d.Reason = "new research topic"
	}

	metrics.RouteDecisions.WithLabelValues(string(d.Route)).Inc()
	return d
}

func hasDeictic(message string) bool {
	if deicticRe.MatchString(message) {
		return true
	}
	// A bare "them"/"it" only signals a reference when a noun like
	// "papers" sits within a few characters.
	nouns := refNounRe.FindAllStringIndex(message, -1)
	if len(nouns) == 0 {
		return false
	}
	for _, p := range pronounRe.FindAllStringIndex(message, -1) {
		for _, n := range nouns {
			if distance(p, n) <= pronounWindow {
				return true
			}
		}
	}
	return false
}

func distance(a, b []int) int {
	if a[1] <= b[0] {
		return b[0] - a[1]
	}
	if b[1] <= a[0] {
		return a[0] - b[1]
	}
	return 0
}

func hasExplicitReference(message string) bool {
	return pmidRe.MatchString(message) ||
		ordinalRe.MatchString(message) ||
		numberedRe.MatchString(message)
}

// TitleOverlap measures how much of the message vocabulary appears in
// the session's paper titles. It is the larger of the Jaccard
// similarity and the fraction of message terms covered, so short
// messages about a cached topic still score.
func TitleOverlap(message string, titles []string) float64 {
	msgTerms := terms(message)
	if len(msgTerms) == 0 || len(titles) == 0 {
		return 0
	}
	titleTerms := terms(strings.Join(titles, " "))
	if len(titleTerms) == 0 {
		return 0
	}

	inter := 0
	for t := range msgTerms {
		if _, ok := titleTerms[t]; ok {
			inter++
		}
	}
	union := len(msgTerms) + len(titleTerms) - inter
	jaccard := float64(inter) / float64(union)
	coverage := float64(inter) / float64(len(msgTerms))
	if coverage > jaccard {
		return coverage
	}
	return jaccard
}

func terms(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range tokenRe.FindAllString(strings.ToLower(s), -1) {
		if len(tok) < 3 {
			continue
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		out[tok] = struct{}{}
	}
	return out
}

// followupPrefixes are conversational lead-ins stripped when deriving
// the retrieval focus of an augmented query.
var followupPrefixes = []string{
	"what about", "how about", "and what about", "what of",
	"tell me about", "can you tell me about", "what is", "what are",
	"how does", "how do", "does", "do", "is", "are", "also",
}

// FollowUpFocus reduces a followup message to the terms worth adding
// to the session's original query for an augmented search.
func FollowUpFocus(message string) string {
	s := strings.TrimSpace(strings.ToLower(message))
	s = strings.TrimRight(s, "?!. ")
	for _, p := range followupPrefixes {
		if strings.HasPrefix(s, p+" ") {
			s = strings.TrimSpace(strings.TrimPrefix(s, p))
			break
		}
	}
	return s
}

// AugmentedQuery is the search string for an augmented-context run:
// the session's original query widened with the followup focus.
func AugmentedQuery(originalQuery, message string) string {
	focus := FollowUpFocus(message)
	if focus == "" {
		return originalQuery
	}
	if originalQuery == "" {
		return focus
	}
	return originalQuery + " " + focus
}
