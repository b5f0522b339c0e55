package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/templetwo/spiralbridge/internal/bridge/fault"
	"github.com/templetwo/spiralbridge/internal/bridge/store"
)

// summarySnippet caps how much of the first and last message the naive
// summary quotes.
const summarySnippet = 120

// handleMemoryStore persists one conversation turn. The role defaults to
// "user" when omitted.
func (s *Server) handleMemoryStore(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		SessionID string `json:"sessionId"`
		Role      string `json:"role"`
		Content   string `json:"content"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Role == "" {
		req.Role = store.RoleUser
	}

	msg := store.NewMessage(req.SessionID, req.Role, req.Content)
	if err := s.store.Insert(r.Context(), msg); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "memory": msg})
}

// handleMemoryRetrieve returns recent turns for a session, most recent first.
func (s *Server) handleMemoryRetrieve(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		s.writeError(w, r, fault.New(fault.KindValidation, "sessionId required"))
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, r, fault.Newf(fault.KindValidation, "limit must be a non-negative integer, got %q", raw))
			return
		}
		limit = n
	}

	msgs, err := s.store.Retrieve(r.Context(), sessionID, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessionId": sessionID, "memories": msgs})
}

// handleMemorySummarize builds the naive length/first/last summary plus the
// heuristic analysis of the whole session. When the session belongs to an
// imported conversation the stored analysis fields are refreshed too.
func (s *Server) handleMemorySummarize(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		s.writeError(w, r, fault.New(fault.KindValidation, "sessionId required"))
		return
	}

	msgs, err := s.store.RetrieveAscending(r.Context(), sessionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(msgs) == 0 {
		s.writeError(w, r, fault.Newf(fault.KindNotFound, "no conversation for session %q", sessionID))
		return
	}

	contents := make([]string, 0, len(msgs))
	for _, m := range msgs {
		contents = append(contents, m.Content)
	}
	res := s.engine.Analyze(contents)

	summary := fmt.Sprintf("Conversation length: %d. First: %s ... Last: %s",
		len(msgs), snippet(msgs[0].Content), snippet(msgs[len(msgs)-1].Content))

	// Imported sessions own a conversation row; keep its analysis current.
	if conv, err := s.store.GetConversationBySession(r.Context(), sessionID); err == nil {
		if err := s.store.UpdateAnalysis(r.Context(), conv.ID, res); err != nil {
			s.writeError(w, r, err)
			return
		}
	} else if !fault.IsNotFound(err) {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": sessionID,
		"summary":   summary,
		"analysis":  res,
	})
}

func snippet(text string) string {
	if len(text) > summarySnippet {
		return text[:summarySnippet]
	}
	return text
}
