package intent

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/aesop-bio/aesop/internal/llm"
	"github.com/aesop-bio/aesop/internal/metrics"
	"github.com/aesop-bio/aesop/internal/models"
)

// Classification stages, cheapest first. Each stage either resolves the
// intent or passes the message down; the LLM is consulted only when the
// keyword rules are silent.
const (
	StageFastPath   = "fast_path"
	StageKeyword    = "keyword"
	StageLLM        = "llm"
	StageValidation = "validation"
)

// SessionInfo is the slice of conversation state the classifier needs.
type SessionInfo struct {
	HasSession   bool
	HasSynthesis bool
	PrevQuery    string
	TurnCount    int
}

// Result is a classified message with the stage that decided it.
type Result struct {
	Intent     models.Intent
	Confidence float64
	Stage      string
	Reasoning  string
}

// Classifier resolves a user message to one of the four intents.
type Classifier struct {
	llm    llm.Completer
	logger *zap.Logger
}

func NewClassifier(completer llm.Completer, logger *zap.Logger) *Classifier {
	return &Classifier{llm: completer, logger: logger}
}

const classifySystemPrompt = `You classify user messages for a biomedical research assistant.

Intents:
- "chat": greetings, small talk, questions about the assistant itself.
- "research": a new biomedical or clinical question needing literature search.
- "followup_research": a question about papers already retrieved in this conversation.
- "utility": a request to reformat or condense the assistant's previous answer.

Respond with strict JSON only: {"intent": "<one of the four>", "confidence": <0.0-1.0>}`

// Classify runs the staged pipeline and never fails: any LLM problem
// degrades to a low-confidence chat classification.
func (c *Classifier) Classify(ctx context.Context, message string, sess SessionInfo) Result {
	res := c.classify(ctx, message, sess)
	metrics.IntentClassifications.WithLabelValues(string(res.Intent), res.Stage).Inc()
	c.logger.Debug("intent classified",
		zap.String("intent", string(res.Intent)),
		zap.Float64("confidence", res.Confidence),
		zap.String("stage", res.Stage),
	)
	return res
}

func (c *Classifier) classify(ctx context.Context, message string, sess SessionInfo) Result {
	trimmed := strings.TrimSpace(message)

	// Stage 1: fast paths needing no context.
	if len([]rune(trimmed)) < 2 {
		return Result{Intent: models.IntentChat, Confidence: 1.0, Stage: StageFastPath, Reasoning: "empty or single-character message"}
	}
	stripped := strings.TrimSpace(nonWord.ReplaceAllString(trimmed, ""))
	if trivialChat.MatchString(stripped) {
		return Result{Intent: models.IntentChat, Confidence: 0.98, Stage: StageFastPath, Reasoning: "trivial conversational message"}
	}

	// Stage 2: keyword rules, checked in priority order.
	lower := strings.ToLower(trimmed)
	hasMedical := containsAny(lower, medicalKeywords)
	hasSystem := containsAny(lower, systemKeywords)
	hasFollowup := containsAny(lower, followupKeywords)
	hasUtility := containsAny(lower, utilityKeywords)

	switch {
	case hasFollowup && sess.HasSession:
		return Result{Intent: models.IntentFollowupResearch, Confidence: 0.90, Stage: StageKeyword, Reasoning: "references prior results with an active session"}
	case hasUtility && sess.HasSession && sess.HasSynthesis:
		return Result{Intent: models.IntentUtility, Confidence: 0.90, Stage: StageKeyword, Reasoning: "reformatting request with a synthesis available"}
	case hasSystem && !hasMedical:
		return Result{Intent: models.IntentChat, Confidence: 0.85, Stage: StageKeyword, Reasoning: "question about the assistant"}
	case hasMedical && !hasFollowup && !hasUtility:
		return Result{Intent: models.IntentResearch, Confidence: 0.85, Stage: StageKeyword, Reasoning: "medical vocabulary without followup or utility signals"}
	}

	// Short messages without medical content are not research queries;
	// skip the LLM for them. Messages carrying followup or utility
	// signals still go to the model so stage 4 can validate them
	// against the session state.
	if len(strings.Fields(lower)) <= 4 && !hasMedical && !hasFollowup && !hasUtility {
		return Result{Intent: models.IntentChat, Confidence: 0.85, Stage: StageKeyword, Reasoning: "short non-medical message"}
	}

	// Stage 3: LLM fallback.
	res := c.classifyLLM(ctx, trimmed, sess)

	// Stage 4: validate against session state.
	return validate(res, lower, hasMedical, sess)
}

func (c *Classifier) classifyLLM(ctx context.Context, message string, sess SessionInfo) Result {
	user := "Message: " + message
	if sess.HasSession {
		user += "\nContext: the conversation already has retrieved papers."
		if sess.PrevQuery != "" {
			user += " Previous research query: " + sess.PrevQuery
		}
	} else {
		user += "\nContext: no prior conversation state."
	}

	out, err := c.llm.Complete(ctx, llm.Request{
		System:      classifySystemPrompt,
		User:        user,
		MaxTokens:   100,
		Temperature: 0,
	})
	if err != nil {
		c.logger.Warn("intent LLM call failed", zap.Error(err))
		return Result{Intent: models.IntentChat, Confidence: 0.4, Stage: StageLLM, Reasoning: "classifier unavailable"}
	}

	var parsed struct {
		Intent     string  `json:"intent"`
		Confidence float64 `json:"confidence"`
	}
	if err := llm.DecodeObject(out, &parsed); err != nil {
		c.logger.Warn("intent LLM output unparseable", zap.Error(err))
		return Result{Intent: models.IntentChat, Confidence: 0.4, Stage: StageLLM, Reasoning: "unparseable classifier output"}
	}

	it := models.Intent(strings.ToLower(strings.TrimSpace(parsed.Intent)))
	if !it.Valid() {
		return Result{Intent: models.IntentChat, Confidence: 0.4, Stage: StageLLM, Reasoning: "unknown intent label"}
	}
	conf := parsed.Confidence
	if conf < 0 {
		conf = 0
	} else if conf > 1 {
		conf = 1
	}
	return Result{Intent: it, Confidence: conf, Stage: StageLLM, Reasoning: "model classification"}
}

// validate downgrades classifications the session state cannot support.
func validate(res Result, lower string, hasMedical bool, sess SessionInfo) Result {
	switch res.Intent {
	case models.IntentFollowupResearch:
		if !sess.HasSession {
			return Result{Intent: models.IntentResearch, Confidence: res.Confidence, Stage: StageValidation, Reasoning: "followup without an active session treated as new research"}
		}
	case models.IntentUtility:
		if !sess.HasSynthesis {
			return Result{Intent: models.IntentChat, Confidence: res.Confidence, Stage: StageValidation, Reasoning: "utility request with nothing to transform"}
		}
	case models.IntentResearch:
		if len(strings.Fields(lower)) < 3 && !hasMedical {
			return Result{Intent: models.IntentChat, Confidence: res.Confidence, Stage: StageValidation, Reasoning: "too short for a research query"}
		}
	}
	return res
}

func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
