package chat

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/aesop-bio/aesop/internal/llm"
)

// Responder handles conversational turns. Common messages get canned
// replies without an LLM round trip.
type Responder struct {
	llm    llm.Completer
	logger *zap.Logger
}

func New(completer llm.Completer, logger *zap.Logger) *Responder {
	return &Responder{llm: completer, logger: logger}
}

const (
	greetingReply = "Hello! I'm AESOP, a biomedical research assistant. Ask me a clinical or medical question and I'll search the literature, grade the evidence, and write you a synthesis."

	thanksReply = "You're welcome! Let me know if you have another research question."

	capabilityReply = `I'm AESOP, an evidence synthesis assistant for biomedical literature. Here's what I can do:

- **Research**: ask a clinical question and I'll search PubMed, grade each paper's relevance and methodology, and synthesize the evidence.
- **Follow-ups**: ask about the papers I retrieved ("what did the second study find?", "do they agree?").
- **Reformatting**: ask me to shorten, simplify, or bulletize a synthesis I wrote.

Try something like: "What is the efficacy of metformin for type 2 diabetes?"`

	farewellReply = "Goodbye! Come back any time you have a research question."

	// FallbackApology is returned when the conversational LLM call
	// itself fails.
	FallbackApology = "I'm sorry, I'm having trouble responding right now. Please try again in a moment."
)

var (
	greetingPrefixes = []string{"hi", "hello", "hey", "greetings", "howdy", "hiya"}
	thanksMarkers    = []string{"thanks", "thank you", "thx", "ty", "appreciated"}
	farewellPrefixes = []string{"bye", "goodbye", "see you", "later", "cya"}

	capabilityTriggers = []string{
		"what can you do", "what do you do", "how do you work",
		"how does this work", "what is aesop", "what are you",
		"who are you", "help me", "tell me about yourself",
	}
)

const chatSystemPrompt = `You are AESOP, a friendly biomedical research assistant. Keep conversational replies short and steer the user toward asking a research question. Do not make medical claims in chat; offer to search the literature instead.`

// Respond answers a conversational message. It never returns an error:
// LLM failures degrade to a fixed apology.
func (r *Responder) Respond(ctx context.Context, message string) string {
	if reply, ok := CannedResponse(message); ok {
		return reply
	}

	out, err := r.llm.Complete(ctx, llm.Request{
		System:      chatSystemPrompt,
		User:        message,
		MaxTokens:   300,
		Temperature: 0.7,
	})
	if err != nil {
		r.logger.Warn("chat LLM call failed", zap.Error(err))
		return FallbackApology
	}
	return out
}

// CannedResponse matches greetings, thanks, capability questions, and
// farewells. Length caps keep substantive messages out of the fast
// path.
func CannedResponse(message string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(message))

	if len(lower) < 20 {
		for _, p := range greetingPrefixes {
			if strings.HasPrefix(lower, p) {
				return greetingReply, true
			}
		}
		for _, p := range farewellPrefixes {
			if strings.HasPrefix(lower, p) {
				return farewellReply, true
			}
		}
	}
	if len(lower) < 30 {
		for _, m := range thanksMarkers {
			if strings.Contains(lower, m) {
				return thanksReply, true
			}
		}
	}
	for _, t := range capabilityTriggers {
		if strings.Contains(lower, t) {
			return capabilityReply, true
		}
	}
	return "", false
}
