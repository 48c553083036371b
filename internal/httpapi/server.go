package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/aesop-bio/aesop/internal/session"
	"github.com/aesop-bio/aesop/internal/tracing"
	"github.com/aesop-bio/aesop/internal/workflows"
)

// ChatService runs one conversational turn.
type ChatService interface {
	HandleChat(ctx context.Context, message, sessionID string) (workflows.PipelineResult, error)
}

// SessionStore is the session surface the API exposes.
type SessionStore interface {
	Get(ctx context.Context, sessionID string) (*session.Context, error)
	Delete(ctx context.Context, sessionID string) error
}

// Server is the public HTTP surface of the pipeline.
type Server struct {
	chat     ChatService
	sessions SessionStore
	logger   *zap.Logger
}

func NewServer(chat ChatService, sessions SessionStore, logger *zap.Logger) *Server {
	return &Server{chat: chat, sessions: sessions, logger: logger}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("GET /session/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /session/{id}", s.handleDeleteSession)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.StartHTTPSpan(r.Context(), r.Method, r.URL.Path)
	defer span.End()

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	result, err := s.chat.HandleChat(ctx, req.Message, req.SessionID)
	if err != nil {
		s.logger.Error("chat turn failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "pipeline failure")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// sessionProjection is the client-facing view of a session. Embeddings
// and abstracts stay server-side.
type sessionProjection struct {
	SessionID        string            `json:"session_id"`
	OriginalQuery    string            `json:"original_query"`
	Papers           []paperProjection `json:"papers"`
	SynthesisSummary string            `json:"synthesis_summary"`
	TurnCount        int               `json:"turn_count"`
}

type paperProjection struct {
	PMID            string  `json:"pmid"`
	Title           string  `json:"title"`
	PublicationYear int     `json:"publication_year,omitempty"`
	Journal         string  `json:"journal,omitempty"`
	QualityScore    float64 `json:"quality_score"`
	StudyType       string  `json:"study_type,omitempty"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sctx, err := s.sessions.Get(r.Context(), id)
	if errors.Is(err, session.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.logger.Error("session load failed", zap.String("session_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "session store failure")
		return
	}

	proj := sessionProjection{
		SessionID:        sctx.SessionID,
		OriginalQuery:    sctx.OriginalQuery,
		SynthesisSummary: sctx.SynthesisSummary,
		TurnCount:        sctx.TurnCount,
		Papers:           make([]paperProjection, 0, len(sctx.RetrievedPapers)),
	}
	for _, p := range sctx.RetrievedPapers {
		proj.Papers = append(proj.Papers, paperProjection{
			PMID:            p.PMID,
			Title:           p.Title,
			PublicationYear: p.PublicationYear,
			Journal:         p.Journal,
			QualityScore:    p.QualityScore,
			StudyType:       p.StudyType,
		})
	}
	writeJSON(w, http.StatusOK, proj)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.sessions.Delete(r.Context(), id); err != nil {
		s.logger.Error("session delete failed", zap.String("session_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "session store failure")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "session_id": id})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
