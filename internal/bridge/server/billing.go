package server

import (
	"net/http"
)

// handleBillingCheckout creates a hosted checkout session and returns its URL.
func (s *Server) handleBillingCheckout(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		UserID string `json:"userId"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	checkoutURL, err := s.billing.CreateCheckoutSession(r.Context(), req.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": checkoutURL})
}
