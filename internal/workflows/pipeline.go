package workflows

import (
	"sort"
	"strconv"
	"time"

	"go.temporal.io/sdk/log"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/aesop-bio/aesop/internal/activities"
	"github.com/aesop-bio/aesop/internal/critic"
	"github.com/aesop-bio/aesop/internal/intent"
	"github.com/aesop-bio/aesop/internal/memory"
	"github.com/aesop-bio/aesop/internal/metrics"
	"github.com/aesop-bio/aesop/internal/models"
	"github.com/aesop-bio/aesop/internal/routing"
	"github.com/aesop-bio/aesop/internal/session"
)

// Activity names as registered from the Activities struct.
const (
	GetSessionActivity        = "GetSession"
	ClassifyIntentActivity    = "ClassifyIntent"
	ScoutSearchActivity       = "ScoutSearch"
	FetchMemoryBiasActivity   = "FetchMemoryBias"
	GradePaperActivity        = "GradePaper"
	RecordAcceptancesActivity = "RecordAcceptances"
	SynthesizeActivity        = "Synthesize"
	AnswerFromContextActivity = "AnswerFromContext"
	ChatRespondActivity       = "ChatRespond"
	UtilityTransformActivity  = "UtilityTransform"
	SaveSessionActivity       = "SaveSession"
)

// GradeDelay is the pause between consecutive paper gradings so the
// loop stays inside shared provider quotas.
const GradeDelay = 500 * time.Millisecond

type PipelineInput struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

type PipelineResult struct {
	Response         string  `json:"response"`
	SessionID        string  `json:"session_id"`
	RouteTaken       string  `json:"route_taken"`
	Intent           string  `json:"intent"`
	IntentConfidence float64 `json:"intent_confidence"`
	PapersCount      int     `json:"papers_count"`
	CriticDecision   string  `json:"critic_decision"`
	AvgQuality       float64 `json:"avg_quality"`
}

// PipelineWorkflow drives one chat turn: classify, route, and run the
// chosen pipeline branch. Component failures degrade inside their
// activities; the workflow itself fails only on violated invariants.
func PipelineWorkflow(ctx workflow.Context, input PipelineInput) (PipelineResult, error) {
	logger := workflow.GetLogger(ctx)

	sessCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 2},
	})

	var loaded activities.GetSessionResult
	if err := workflow.ExecuteActivity(sessCtx, GetSessionActivity,
		activities.GetSessionInput{SessionID: input.SessionID}).Get(ctx, &loaded); err != nil {
		logger.Warn("session load activity failed, continuing stateless", "error", err)
		loaded = activities.GetSessionResult{}
	}
	sess := loaded.Session

	info := intent.SessionInfo{HasSession: loaded.Found}
	if sess != nil {
		info.HasSynthesis = sess.HasSynthesis()
		info.PrevQuery = sess.OriginalQuery
		info.TurnCount = sess.TurnCount
	}

	llmCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 2},
	})

	var cls intent.Result
	if err := workflow.ExecuteActivity(llmCtx, ClassifyIntentActivity,
		activities.ClassifyIntentInput{Message: input.Message, Session: info}).Get(ctx, &cls); err != nil {
		logger.Warn("intent classification failed, defaulting to chat", "error", err)
		cls = intent.Result{Intent: models.IntentChat, Confidence: 0.4}
	}

	result := PipelineResult{
		SessionID:        input.SessionID,
		Intent:           string(cls.Intent),
		IntentConfidence: critic.Round3(cls.Confidence),
	}

	switch cls.Intent {
	case models.IntentChat:
		result.RouteTaken = string(models.RouteChat)
		var out activities.TextResult
		if err := workflow.ExecuteActivity(llmCtx, ChatRespondActivity,
			activities.ChatInput{Message: input.Message}).Get(ctx, &out); err != nil {
			return result, err
		}
		result.Response = out.Text
		// Pure chat never creates a session; an existing one is only
		// refreshed.
		if sess != nil {
			sess.TurnCount++
			saveSession(ctx, logger, sess)
		}
		return result, nil

	case models.IntentUtility:
		result.RouteTaken = string(models.RouteUtility)
		summary := ""
		if sess != nil {
			summary = sess.SynthesisSummary
		}
		var out activities.TextResult
		if err := workflow.ExecuteActivity(llmCtx, UtilityTransformActivity,
			activities.UtilityInput{Instruction: input.Message, Synthesis: summary}).Get(ctx, &out); err != nil {
			return result, err
		}
		result.Response = out.Text
		if sess != nil {
			sess.TurnCount++
			saveSession(ctx, logger, sess)
		}
		return result, nil
	}

	// research / followup_research
	signals := routing.SessionSignals{Present: loaded.Found}
	if sess != nil {
		signals.PaperTitles = sess.PaperTitles()
	}
	route := routing.Decide(input.Message, cls.Intent, signals)
	result.RouteTaken = string(route.Route)
	logger.Info("route decided", "route", route.Route, "reason", route.Reason)

	switch route.Route {
	case models.RouteContextQA:
		var out activities.TextResult
		if err := workflow.ExecuteActivity(llmCtx, AnswerFromContextActivity,
			activities.AnswerInput{Question: input.Message, Session: sess}).Get(ctx, &out); err != nil {
			return result, err
		}
		result.Response = out.Text
		if sess != nil {
			result.PapersCount = len(sess.RetrievedPapers)
			sess.TurnCount++
			saveSession(ctx, logger, sess)
		}
		return result, nil

	case models.RouteAugmentedContext:
		return runAugmented(ctx, input, sess, result)

	case models.RouteFullGraph:
		return runFullGraph(ctx, input, sess, result)
	}

	return result, temporal.NewNonRetryableApplicationError(
		"unknown route", "RoutingInvariant", nil)
}

// runFullGraph is Route A: the corrective retrieval loop. Each
// iteration replaces the paper set; the loop ends on a sufficient
// decision or is forced sufficient at the iteration cap.
func runFullGraph(ctx workflow.Context, input PipelineInput, sess *session.Context, result PipelineResult) (PipelineResult, error) {
	logger := workflow.GetLogger(ctx)
	query := input.Message

	boost := fetchMemoryBias(ctx, logger, query)

	var (
		papers   []models.Paper
		grades   []models.PaperGrade
		decision critic.Decision
		forced   bool
	)
	for iter := 1; iter <= critic.MaxIterations; iter++ {
		papers = scoutSearch(ctx, logger, activities.ScoutInput{Query: query})
		grades = gradeAll(ctx, query, papers)
		decision = critic.Decide(grades, iter, boost)
		logger.Info("critic decision", "iteration", iter,
			"decision", decision.Decision, "avg_quality", decision.AvgQuality)
		if decision.Decision == critic.DecisionSufficient {
			break
		}
		if iter == critic.MaxIterations {
			// Never loop forever; proceed with what we have and report
			// the real quality numbers.
			forced = true
			decision.Decision = critic.DecisionSufficient
		}
	}

	recordAcceptances(ctx, logger, query, critic.AcceptanceRecords(papers, grades, decision.Iteration))

	graded := critic.BuildGradedPapers(papers, grades)
	synthText, err := synthesize(ctx, query, graded)
	if err != nil {
		return result, err
	}

	result.Response = synthText
	result.PapersCount = len(graded)
	result.CriticDecision = string(decision.Decision)
	result.AvgQuality = critic.Round3(decision.AvgQuality)
	if forced {
		logger.Info("critic decision forced sufficient at iteration cap")
	}
	if !workflow.IsReplaying(ctx) {
		metrics.CragIterations.Observe(float64(decision.Iteration))
		metrics.CragDecisions.WithLabelValues(string(decision.Decision), strconv.FormatBool(forced)).Inc()
	}

	next := nextSession(sess, input.SessionID)
	next.OriginalQuery = query
	next.RetrievedPapers = cachedPapers(graded)
	next.SynthesisSummary = synthText
	saveSession(ctx, logger, next)
	return result, nil
}

// runAugmented is Route B: one widened retrieval pass whose new papers
// are graded and merged with the session's cached ones.
func runAugmented(ctx workflow.Context, input PipelineInput, sess *session.Context, result PipelineResult) (PipelineResult, error) {
	logger := workflow.GetLogger(ctx)

	originalQuery := ""
	var cached []session.CachedPaper
	if sess != nil {
		originalQuery = sess.OriginalQuery
		cached = sess.RetrievedPapers
	}
	query := routing.AugmentedQuery(originalQuery, input.Message)

	boost := fetchMemoryBias(ctx, logger, query)

	var titles []string
	if sess != nil {
		for _, p := range sess.TopPapersByQuality(10) {
			titles = append(titles, p.Title)
		}
	}
	papers := scoutSearch(ctx, logger, activities.ScoutInput{
		Query:         query,
		OriginalQuery: originalQuery,
		CachedTitles:  titles,
	})

	// Only papers not already in the session get graded.
	known := make(map[string]struct{}, len(cached))
	for _, p := range cached {
		known[p.PMID] = struct{}{}
	}
	var fresh []models.Paper
	for _, p := range papers {
		if _, dup := known[p.PMID]; !dup {
			fresh = append(fresh, p)
		}
	}

	grades := gradeAll(ctx, query, fresh)
	decision := critic.Decide(grades, 1, boost)

	// Memory learns only from rounds the Critic judged sufficient.
	if decision.Decision == critic.DecisionSufficient {
		recordAcceptances(ctx, logger, query, critic.AcceptanceRecords(fresh, grades, 1))
	}

	merged := mergeWithCache(cached, critic.BuildGradedPapers(fresh, grades))
	synthText, err := synthesize(ctx, query, merged)
	if err != nil {
		return result, err
	}

	result.Response = synthText
	result.PapersCount = len(merged)
	result.CriticDecision = string(decision.Decision)
	result.AvgQuality = critic.Round3(decision.AvgQuality)

	next := nextSession(sess, input.SessionID)
	if next.OriginalQuery == "" {
		next.OriginalQuery = input.Message
	}
	next.RetrievedPapers = cachedPapers(merged)
	next.SynthesisSummary = synthText
	saveSession(ctx, logger, next)
	return result, nil
}

// gradeAll grades papers sequentially with the inter-call delay. A
// failed grade becomes a zero-score discard; the loop never aborts.
func gradeAll(ctx workflow.Context, query string, papers []models.Paper) []models.PaperGrade {
	logger := workflow.GetLogger(ctx)

	// The LLM client retries throttling internally, so the activity
	// itself must not multiply attempts.
	gradeCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})

	grades := make([]models.PaperGrade, 0, len(papers))
	for i, paper := range papers {
		if i > 0 {
			if err := workflow.Sleep(ctx, GradeDelay); err != nil {
				return grades
			}
		}
		var grade models.PaperGrade
		err := workflow.ExecuteActivity(gradeCtx, GradePaperActivity,
			activities.GradePaperInput{Query: query, Paper: paper}).Get(ctx, &grade)
		if err != nil {
			logger.Warn("paper grading failed, discarding",
				"pmid", paper.PMID, "error", err)
			grade = critic.FallbackGrade(paper.PMID)
		}
		grades = append(grades, grade)
	}
	return grades
}

// mergeWithCache unions cached and freshly graded papers by PMID. A
// fresh grade replaces a cached one; ordering is quality descending
// with cached papers winning exact ties. The result is capped at the
// session paper limit.
func mergeWithCache(cached []session.CachedPaper, fresh []models.GradedPaper) []models.GradedPaper {
	freshByPMID := make(map[string]struct{}, len(fresh))
	for _, p := range fresh {
		freshByPMID[p.PMID] = struct{}{}
	}

	merged := make([]models.GradedPaper, 0, len(cached)+len(fresh))
	for _, c := range cached {
		if _, replaced := freshByPMID[c.PMID]; replaced {
			continue
		}
		merged = append(merged, models.GradedPaper{
			PMID:            c.PMID,
			Title:           c.Title,
			Abstract:        c.Abstract,
			PublicationYear: c.PublicationYear,
			Journal:         c.Journal,
			QualityScore:    c.QualityScore,
			StudyType:       c.StudyType,
			Recommendation:  c.Recommendation,
		})
	}
	merged = append(merged, fresh...)

	// Built cached-first, so the stable sort keeps cached papers ahead
	// on quality ties.
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].QualityScore > merged[j].QualityScore
	})
	if len(merged) > session.MaxCachedPapers {
		merged = merged[:session.MaxCachedPapers]
	}
	return merged
}

func cachedPapers(graded []models.GradedPaper) []session.CachedPaper {
	out := make([]session.CachedPaper, 0, len(graded))
	for _, p := range graded {
		out = append(out, session.CachedPaper{
			PMID:            p.PMID,
			Title:           p.Title,
			Abstract:        p.Abstract,
			PublicationYear: p.PublicationYear,
			Journal:         p.Journal,
			QualityScore:    p.QualityScore,
			StudyType:       p.StudyType,
			Recommendation:  p.Recommendation,
		})
	}
	return out
}

// nextSession carries forward existing session state or starts a new
// one, bumping the turn counter either way.
func nextSession(sess *session.Context, sessionID string) *session.Context {
	if sess == nil {
		return &session.Context{SessionID: sessionID, TurnCount: 1}
	}
	next := *sess
	next.TurnCount++
	return &next
}

func fetchMemoryBias(ctx workflow.Context, logger log.Logger, query string) float64 {
	biasCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 15 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 2},
	})
	var bias activities.MemoryBiasResult
	if err := workflow.ExecuteActivity(biasCtx, FetchMemoryBiasActivity,
		activities.MemoryBiasInput{Query: query}).Get(ctx, &bias); err != nil {
		logger.Warn("memory bias fetch failed, using zero", "error", err)
		return 0
	}
	return bias.Boost
}

func scoutSearch(ctx workflow.Context, logger log.Logger, in activities.ScoutInput) []models.Paper {
	scoutCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 2},
	})
	var out activities.ScoutResult
	if err := workflow.ExecuteActivity(scoutCtx, ScoutSearchActivity, in).Get(ctx, &out); err != nil {
		logger.Warn("scout activity failed, continuing with no papers", "error", err)
		return nil
	}
	return out.Papers
}

// recordAcceptances is fire-and-forget: memory write failures never
// affect the response.
func recordAcceptances(ctx workflow.Context, logger log.Logger, query string, records []memory.AcceptanceRecord) {
	if len(records) == 0 {
		return
	}
	recCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 2},
	})
	if err := workflow.ExecuteActivity(recCtx, RecordAcceptancesActivity,
		activities.RecordAcceptancesInput{Query: query, Records: records}).Get(ctx, nil); err != nil {
		logger.Warn("acceptance memory write failed", "error", err)
	}
}

func synthesize(ctx workflow.Context, query string, papers []models.GradedPaper) (string, error) {
	synthCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 3 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 2},
	})
	var out activities.TextResult
	if err := workflow.ExecuteActivity(synthCtx, SynthesizeActivity,
		activities.SynthesizeInput{Query: query, Papers: papers}).Get(ctx, &out); err != nil {
		return "", err
	}
	return out.Text, nil
}

func saveSession(ctx workflow.Context, logger log.Logger, sess *session.Context) {
	if sess == nil {
		return
	}
	saveCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 2},
	})
	if err := workflow.ExecuteActivity(saveCtx, SaveSessionActivity,
		activities.SaveSessionInput{Session: *sess}).Get(ctx, nil); err != nil {
		logger.Warn("session save activity failed", "error", err)
	}
}
