package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/openregs/regrag/internal/engine"
	"github.com/openregs/regrag/internal/llm"
)

type chatRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
}

type chatResponse struct {
	Answer    string            `json:"answer"`
	Citations []engine.Citation `json:"citations"`
	SessionID string            `json:"session_id"`
}

// handleChat answers one question, threading conversation history through
// the session identified by session_id. A missing or expired session_id
// starts a fresh session; the id to continue with is returned either way.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	sessionID, history := s.sessions.Get(req.SessionID)

	answer, err := s.engine.Answer(r.Context(), req.Question, history)
	if err != nil {
		s.logger.Error("chat failed", "session_id", sessionID, "error", err)
		writeError(w, chatErrorStatus(err), "failed to answer question")
		return
	}

	s.sessions.Append(sessionID,
		llm.Message{Role: llm.RoleUser, Content: req.Question},
		llm.Message{Role: llm.RoleAssistant, Content: answer.Text},
	)

	writeJSON(w, http.StatusOK, chatResponse{
		Answer:    answer.Text,
		Citations: answer.Citations,
		SessionID: sessionID,
	})
}

func chatErrorStatus(err error) int {
	var retErr *engine.RetrievalError
	var llmErr *llm.LLMError
	switch {
	case errors.As(err, &llmErr):
		return http.StatusBadGateway
	case errors.As(err, &retErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
