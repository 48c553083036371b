package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/aesop-bio/aesop/internal/workflows"
)

type fakeRun struct {
	result workflows.PipelineResult
	err    error
}

func (r *fakeRun) GetID() string    { return "id" }
func (r *fakeRun) GetRunID() string { return "run" }

func (r *fakeRun) Get(ctx context.Context, valuePtr interface{}) error {
	if r.err != nil {
		return r.err
	}
	*(valuePtr.(*workflows.PipelineResult)) = r.result
	return nil
}

func (r *fakeRun) GetWithOptions(ctx context.Context, valuePtr interface{}, options client.WorkflowRunGetOptions) error {
	return r.Get(ctx, valuePtr)
}

type fakeTemporal struct {
	mu     sync.Mutex
	inputs []workflows.PipelineInput
	run    *fakeRun
	err    error

	inFlight    int
	maxInFlight int
	delay       time.Duration
}

func (f *fakeTemporal) ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, wf interface{}, args ...interface{}) (client.WorkflowRun, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, args[0].(workflows.PipelineInput))
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	return f.run, nil
}

func TestHandleChatGeneratesSessionID(t *testing.T) {
	ft := &fakeTemporal{run: &fakeRun{result: workflows.PipelineResult{Response: "hi"}}}
	s := NewService(ft, "aesop-pipeline", zap.NewNop())

	result, err := s.HandleChat(context.Background(), "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "hi", result.Response)
	require.Len(t, ft.inputs, 1)
	assert.NotEmpty(t, ft.inputs[0].SessionID)
}

func TestHandleChatPreservesSessionID(t *testing.T) {
	ft := &fakeTemporal{run: &fakeRun{}}
	s := NewService(ft, "aesop-pipeline", zap.NewNop())

	_, err := s.HandleChat(context.Background(), "hello", "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", ft.inputs[0].SessionID)
}

func TestHandleChatStartFailure(t *testing.T) {
	ft := &fakeTemporal{err: errors.New("temporal down")}
	s := NewService(ft, "aesop-pipeline", zap.NewNop())

	_, err := s.HandleChat(context.Background(), "hello", "sess-1")
	assert.Error(t, err)
}

func TestHandleChatSerializesSameSession(t *testing.T) {
	ft := &fakeTemporal{run: &fakeRun{}, delay: 20 * time.Millisecond}
	s := NewService(ft, "aesop-pipeline", zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.HandleChat(context.Background(), "msg", "same-session")
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ft.maxInFlight, "same-session turns must not overlap")
	assert.Len(t, ft.inputs, 4)

	s.mu.Lock()
	assert.Empty(t, s.locks, "session locks are released and reclaimed")
	s.mu.Unlock()
}

func TestHandleChatDifferentSessionsRunConcurrently(t *testing.T) {
	ft := &fakeTemporal{run: &fakeRun{}, delay: 50 * time.Millisecond}
	s := NewService(ft, "aesop-pipeline", zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, _ = s.HandleChat(context.Background(), "msg", string(rune('a'+n)))
		}(i)
	}
	wg.Wait()

	assert.Greater(t, ft.maxInFlight, 1, "distinct sessions should overlap")
}
