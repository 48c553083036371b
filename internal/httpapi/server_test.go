package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aesop-bio/aesop/internal/session"
	"github.com/aesop-bio/aesop/internal/workflows"
)

type fakeChat struct {
	result workflows.PipelineResult
	err    error
	last   struct {
		message   string
		sessionID string
	}
}

func (f *fakeChat) HandleChat(ctx context.Context, message, sessionID string) (workflows.PipelineResult, error) {
	f.last.message = message
	f.last.sessionID = sessionID
	return f.result, f.err
}

type fakeSessions struct {
	sessions map[string]*session.Context
	deleted  []string
	err      error
}

func (f *fakeSessions) Get(ctx context.Context, id string) (*session.Context, error) {
	if f.err != nil {
		return nil, f.err
	}
	sctx, ok := f.sessions[id]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	return sctx, nil
}

func (f *fakeSessions) Delete(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return f.err
}

func newTestServer(chat *fakeChat, sessions *fakeSessions) http.Handler {
	return NewServer(chat, sessions, zap.NewNop()).Handler()
}

func TestChatEndpoint(t *testing.T) {
	fc := &fakeChat{result: workflows.PipelineResult{
		Response:         "synthesis text",
		SessionID:        "s1",
		RouteTaken:       "full_graph",
		Intent:           "research",
		IntentConfidence: 0.85,
		PapersCount:      7,
		CriticDecision:   "sufficient",
		AvgQuality:       0.712,
	}}
	h := newTestServer(fc, &fakeSessions{})

	body := `{"message": "metformin efficacy", "session_id": "s1"}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "metformin efficacy", fc.last.message)
	assert.Equal(t, "s1", fc.last.sessionID)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "synthesis text", resp["response"])
	assert.Equal(t, "full_graph", resp["route_taken"])
	assert.Equal(t, "sufficient", resp["critic_decision"])
	assert.InDelta(t, 0.712, resp["avg_quality"], 1e-9)
	assert.InDelta(t, 7, resp["papers_count"], 1e-9)
}

func TestChatEndpointRejectsBadBody(t *testing.T) {
	h := newTestServer(&fakeChat{}, &fakeSessions{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader("{not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message": "  "}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatEndpointPipelineFailure(t *testing.T) {
	h := newTestServer(&fakeChat{err: errors.New("boom")}, &fakeSessions{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message": "q"}`)))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetSessionProjection(t *testing.T) {
	fs := &fakeSessions{sessions: map[string]*session.Context{
		"s1": {
			SessionID:     "s1",
			OriginalQuery: "metformin outcomes",
			RetrievedPapers: []session.CachedPaper{
				{PMID: "1", Title: "Trial", Abstract: "secret full text", QualityScore: 0.8},
			},
			SynthesisSummary: "summary",
			TurnCount:        2,
		},
	}}
	h := newTestServer(&fakeChat{}, fs)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/session/s1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp sessionProjection
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "s1", resp.SessionID)
	assert.Equal(t, 2, resp.TurnCount)
	require.Len(t, resp.Papers, 1)
	assert.Equal(t, "1", resp.Papers[0].PMID)
	assert.NotContains(t, rec.Body.String(), "secret full text",
		"abstracts are not exposed in the projection")
}

func TestGetSessionNotFound(t *testing.T) {
	h := newTestServer(&fakeChat{}, &fakeSessions{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/session/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteSessionIdempotent(t *testing.T) {
	fs := &fakeSessions{}
	h := newTestServer(&fakeChat{}, fs)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/session/s1", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "deleted", resp["status"])
		assert.Equal(t, "s1", resp["session_id"])
	}
	assert.Equal(t, []string{"s1", "s1"}, fs.deleted)
}

func TestHealth(t *testing.T) {
	h := newTestServer(&fakeChat{}, &fakeSessions{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok"}`, rec.Body.String())
}
