package server

import (
	"net/http"

	"github.com/templetwo/spiralbridge/internal/bridge/fault"
	"github.com/templetwo/spiralbridge/internal/bridge/persona"
)

// handlePersonaLoad returns a persona's profile or 404 when its backing file
// is absent.
func (s *Server) handlePersonaLoad(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	p, err := s.registry.Load(r.URL.Query().Get("personaId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"persona": p})
}

// handlePersonaSwitch plans a transition between two personas. Neither side
// is required to exist in the registry; the plan is pure templating.
func (s *Server) handlePersonaSwitch(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		FromPersona string `json:"fromPersona"`
		ToPersona   string `json:"toPersona"`
		Context     string `json:"context"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := persona.ValidateID(req.FromPersona); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := persona.ValidateID(req.ToPersona); err != nil {
		s.writeError(w, r, err)
		return
	}

	plan := persona.PlanSwitch(req.FromPersona, req.ToPersona, req.Context)
	writeJSON(w, http.StatusOK, plan)
}

// handlePersonaToneShift generates a tone-shift instruction for a persona
// from its recent memory window and optional mood.
func (s *Server) handlePersonaToneShift(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		Persona string                `json:"persona"`
		Memory  []persona.MemoryEntry `json:"memory"`
		Mood    string                `json:"mood"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := persona.ValidateID(req.Persona); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"persona":   req.Persona,
		"toneShift": persona.ToneShiftText(req.Persona, req.Memory, req.Mood),
	})
}

// handleContinuityHandshake verifies a persona's vows and classifies the
// session's recent tone.
func (s *Server) handleContinuityHandshake(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		SessionID string `json:"sessionId"`
		PersonaID string `json:"personaId"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.SessionID == "" {
		s.writeError(w, r, fault.New(fault.KindValidation, "sessionId required"))
		return
	}

	res, err := s.checker.Handshake(r.Context(), req.SessionID, req.PersonaID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
