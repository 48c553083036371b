package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/aesop-bio/aesop/internal/metrics"
	"github.com/aesop-bio/aesop/internal/workflows"
)

// WorkflowRunner is the slice of the Temporal client the service uses.
type WorkflowRunner interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// Service starts pipeline workflows and serializes turns per session.
// Requests on different sessions run concurrently.
type Service struct {
	temporal  WorkflowRunner
	taskQueue string
	logger    *zap.Logger

	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func NewService(temporal WorkflowRunner, taskQueue string, logger *zap.Logger) *Service {
	return &Service{
		temporal:  temporal,
		taskQueue: taskQueue,
		logger:    logger,
		locks:     make(map[string]*sessionLock),
	}
}

// HandleChat runs one conversational turn to completion. A missing
// session ID gets a fresh UUID so the response can carry it back.
func (s *Service) HandleChat(ctx context.Context, message, sessionID string) (workflows.PipelineResult, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	// Turns within a session execute in submission order.
	unlock := s.lockSession(sessionID)
	defer unlock()

	start := time.Now()
	input := workflows.PipelineInput{Message: message, SessionID: sessionID}

	run, err := s.temporal.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        fmt.Sprintf("pipeline-%s-%s", sessionID, uuid.NewString()),
		TaskQueue: s.taskQueue,
	}, workflows.PipelineWorkflow, input)
	if err != nil {
		metrics.RecordPipelineMetrics("unknown", "start_failed", time.Since(start).Seconds())
		return workflows.PipelineResult{}, fmt.Errorf("start pipeline: %w", err)
	}

	var result workflows.PipelineResult
	if err := run.Get(ctx, &result); err != nil {
		metrics.RecordPipelineMetrics("unknown", "failed", time.Since(start).Seconds())
		return workflows.PipelineResult{}, fmt.Errorf("pipeline: %w", err)
	}

	metrics.PipelinesStarted.WithLabelValues(result.Intent).Inc()
	metrics.RecordPipelineMetrics(result.RouteTaken, "ok", time.Since(start).Seconds())
	s.logger.Info("pipeline completed",
		zap.String("session_id", sessionID),
		zap.String("route", result.RouteTaken),
		zap.String("intent", result.Intent),
		zap.Int("papers", result.PapersCount),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

// lockSession acquires the per-session mutex, creating it on first
// use and dropping it when the last holder releases.
func (s *Service) lockSession(sessionID string) func() {
	s.mu.Lock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		s.locks[sessionID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, sessionID)
		}
		s.mu.Unlock()
	}
}
