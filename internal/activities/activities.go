package activities

import (
	"context"

	"go.uber.org/zap"

	"github.com/aesop-bio/aesop/internal/chat"
	"github.com/aesop-bio/aesop/internal/contextqa"
	"github.com/aesop-bio/aesop/internal/critic"
	"github.com/aesop-bio/aesop/internal/intent"
	"github.com/aesop-bio/aesop/internal/memory"
	"github.com/aesop-bio/aesop/internal/models"
	"github.com/aesop-bio/aesop/internal/scout"
	"github.com/aesop-bio/aesop/internal/session"
	"github.com/aesop-bio/aesop/internal/synthesis"
	"github.com/aesop-bio/aesop/internal/utility"
)

// Activities bundles the pipeline components behind Temporal activity
// methods. All IO lives here; the workflow stays deterministic.
type Activities struct {
	sessions    *session.Manager
	memory      *memory.Store
	embedder    memory.Embedder
	classifier  *intent.Classifier
	scout       *scout.Scout
	grader      *critic.Grader
	synthesizer *synthesis.Synthesizer
	answerer    *contextqa.Answerer
	chatter     *chat.Responder
	transformer *utility.Transformer
	logger      *zap.Logger
}

func New(
	sessions *session.Manager,
	memStore *memory.Store,
	embedder memory.Embedder,
	classifier *intent.Classifier,
	sct *scout.Scout,
	grader *critic.Grader,
	synthesizer *synthesis.Synthesizer,
	answerer *contextqa.Answerer,
	chatter *chat.Responder,
	transformer *utility.Transformer,
	logger *zap.Logger,
) *Activities {
	return &Activities{
		sessions:    sessions,
		memory:      memStore,
		embedder:    embedder,
		classifier:  classifier,
		scout:       sct,
		grader:      grader,
		synthesizer: synthesizer,
		answerer:    answerer,
		chatter:     chatter,
		transformer: transformer,
		logger:      logger,
	}
}

type GetSessionInput struct {
	SessionID string `json:"session_id"`
}

type GetSessionResult struct {
	Found   bool             `json:"found"`
	Session *session.Context `json:"session,omitempty"`
}

// GetSession loads session state. Cache failures degrade to a
// stateless turn instead of failing the pipeline.
func (a *Activities) GetSession(ctx context.Context, in GetSessionInput) (GetSessionResult, error) {
	if in.SessionID == "" {
		return GetSessionResult{}, nil
	}
	sctx, err := a.sessions.Get(ctx, in.SessionID)
	if err != nil {
		if err != session.ErrSessionNotFound {
			a.logger.Warn("session load failed, continuing stateless",
				zap.String("session_id", in.SessionID), zap.Error(err))
		}
		return GetSessionResult{}, nil
	}
	return GetSessionResult{Found: true, Session: sctx}, nil
}

type ClassifyIntentInput struct {
	Message string             `json:"message"`
	Session intent.SessionInfo `json:"session"`
}

func (a *Activities) ClassifyIntent(ctx context.Context, in ClassifyIntentInput) (intent.Result, error) {
	return a.classifier.Classify(ctx, in.Message, in.Session), nil
}

type ScoutInput struct {
	Query         string   `json:"query"`
	OriginalQuery string   `json:"original_query,omitempty"`
	CachedTitles  []string `json:"cached_titles,omitempty"`
}

type ScoutResult struct {
	Papers []models.Paper `json:"papers"`
}

// ScoutSearch retrieves papers for a query. It never fails: total
// retrieval failure yields an empty paper list.
func (a *Activities) ScoutSearch(ctx context.Context, in ScoutInput) (ScoutResult, error) {
	papers := a.scout.Retrieve(ctx, in.Query, scout.Context{
		OriginalQuery: in.OriginalQuery,
		CachedTitles:  in.CachedTitles,
	})
	return ScoutResult{Papers: papers}, nil
}

type MemoryBiasInput struct {
	Query string `json:"query"`
}

type MemoryBiasResult struct {
	Boost float64 `json:"boost"`
}

// FetchMemoryBias returns the acceptance-memory threshold boost.
// Storage problems yield 0 so the loop is never blocked on memory.
func (a *Activities) FetchMemoryBias(ctx context.Context, in MemoryBiasInput) (MemoryBiasResult, error) {
	return MemoryBiasResult{Boost: a.memory.FetchBoost(ctx, in.Query)}, nil
}

type GradePaperInput struct {
	Query string       `json:"query"`
	Paper models.Paper `json:"paper"`
}

// GradePaper grades one paper. The error is only returned on terminal
// transport failure after the client's own retries; the workflow
// substitutes a zero-score discard grade.
func (a *Activities) GradePaper(ctx context.Context, in GradePaperInput) (models.PaperGrade, error) {
	return a.grader.GradePaper(ctx, in.Query, in.Paper)
}

type RecordAcceptancesInput struct {
	Query   string                    `json:"query"`
	Records []memory.AcceptanceRecord `json:"records"`
}

// RecordAcceptances persists accepted papers to memory. Failures are
// logged inside the store and never fail the pipeline.
func (a *Activities) RecordAcceptances(ctx context.Context, in RecordAcceptancesInput) error {
	a.memory.RecordAcceptances(ctx, in.Query, in.Records)
	return nil
}

type SynthesizeInput struct {
	Query  string               `json:"query"`
	Papers []models.GradedPaper `json:"papers"`
}

type TextResult struct {
	Text string `json:"text"`
}

func (a *Activities) Synthesize(ctx context.Context, in SynthesizeInput) (TextResult, error) {
	out, err := a.synthesizer.Synthesize(ctx, in.Query, in.Papers)
	if err != nil {
		return TextResult{}, err
	}
	return TextResult{Text: out}, nil
}

type AnswerInput struct {
	Question string           `json:"question"`
	Session  *session.Context `json:"session,omitempty"`
}

func (a *Activities) AnswerFromContext(ctx context.Context, in AnswerInput) (TextResult, error) {
	out, err := a.answerer.Answer(ctx, in.Question, in.Session)
	if err != nil {
		return TextResult{}, err
	}
	return TextResult{Text: out}, nil
}

type ChatInput struct {
	Message string `json:"message"`
}

func (a *Activities) ChatRespond(ctx context.Context, in ChatInput) (TextResult, error) {
	return TextResult{Text: a.chatter.Respond(ctx, in.Message)}, nil
}

type UtilityInput struct {
	Instruction string `json:"instruction"`
	Synthesis   string `json:"synthesis"`
}

func (a *Activities) UtilityTransform(ctx context.Context, in UtilityInput) (TextResult, error) {
	out, err := a.transformer.Transform(ctx, in.Instruction, in.Synthesis)
	if err != nil {
		return TextResult{}, err
	}
	return TextResult{Text: out}, nil
}

type SaveSessionInput struct {
	Session session.Context `json:"session"`
}

// SaveSession persists session state, embedding the research query on
// first save so followup turns carry it. Cache and embedding failures
// are logged and swallowed; the turn already produced its response.
func (a *Activities) SaveSession(ctx context.Context, in SaveSessionInput) error {
	sctx := in.Session
	if len(sctx.QueryEmbedding) == 0 && sctx.OriginalQuery != "" && a.embedder != nil {
		vec, err := a.embedder.Embed(ctx, sctx.OriginalQuery)
		if err != nil {
			a.logger.Warn("session query embedding failed",
				zap.String("session_id", sctx.SessionID), zap.Error(err))
		} else {
			sctx.QueryEmbedding = vec
		}
	}
	if err := a.sessions.Save(ctx, &sctx); err != nil {
		a.logger.Warn("session save failed",
			zap.String("session_id", sctx.SessionID), zap.Error(err))
	}
	return nil
}
