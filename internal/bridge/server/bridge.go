package server

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/templetwo/spiralbridge/internal/bridge/fault"
)

// handleBridgeImport runs the import pipeline for an external conversation
// URL. Import is the only rate-limited route: each caller gets a fixed
// per-minute budget.
func (s *Server) handleBridgeImport(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	if !s.importLimiter.Allow(callerKey(r)) {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "import rate limit exceeded"})
		return
	}

	var req struct {
		URL string `json:"url"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.importer.Run(r.Context(), req.URL)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":             true,
		"conversationId": res.ConversationID,
		"sessionId":      res.SessionID,
		"oracle":         res.Oracle,
		"analysis":       res.Analysis,
	})
}

// handleBridgeExport returns the full ordered conversation state for a
// session: every message, oldest first.
func (s *Server) handleBridgeExport(w http.ResponseWriter, r *http.Request) {
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

	type exported struct {
		Role      string `json:"role"`
		Content   string `json:"content"`
		CreatedAt string `json:"createdAt"`
	}
	out := make([]exported, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, exported{
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt.Format(time.RFC3339Nano),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessionId": sessionID, "messages": out})
}

// handleBridgeHandoff acknowledges a planned provider handoff. The endpoint
// records intent only; moving the actual state is the caller's export/import
// dance.
func (s *Server) handleBridgeHandoff(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		FromProvider string `json:"fromProvider"`
		ToProvider   string `json:"toProvider"`
		SessionID    string `json:"sessionId"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.FromProvider == "" || req.ToProvider == "" || req.SessionID == "" {
		s.writeError(w, r, fault.New(fault.KindValidation, "fromProvider, toProvider, and sessionId required"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"message": fmt.Sprintf("Handoff planned from %s to %s for session %s.",
			req.FromProvider, req.ToProvider, req.SessionID),
	})
}

// callerKey identifies a caller for rate limiting: the API key when one is
// presented, otherwise the remote host.
func callerKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
