package server

import (
	"net/http"
	"strconv"

	"github.com/templetwo/spiralbridge/internal/bridge/fault"
)

// defaultShadowPersona is listed when the caller does not name one.
const defaultShadowPersona = "ashira"

// handleShadowList returns the most recent reflection entries for a persona.
func (s *Server) handleShadowList(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	personaID := r.URL.Query().Get("persona")
	if personaID == "" {
		personaID = defaultShadowPersona
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

	entries, err := s.journal.List(personaID, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"persona": personaID, "entries": entries})
}

// handleShadowReflect appends one reflection entry to a persona's journal.
func (s *Server) handleShadowReflect(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		Persona   string `json:"persona"`
		SessionID string `json:"sessionId"`
		Summary   string `json:"summary"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	entry, err := s.journal.Reflect(req.Persona, req.SessionID, req.Summary)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "wrote": entry})
}
