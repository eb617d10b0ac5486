package httpapi

import (
	"net/http"

	"github.com/example/rocket-deliveries/internal/models"
)

type settingsResponse struct {
	AppName              string `json:"appName"`
	StripePublishableKey string `json:"stripePublishableKey"`
}

func (s *Server) handleAPISettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, settingsResponse{
		AppName:              s.cfg.AppName,
		StripePublishableKey: s.cfg.StripePublishableKey,
	})
}

func (s *Server) handleAPIPassengers(w http.ResponseWriter, r *http.Request) {
	passengers, err := s.pilots.ListPassengers(r.Context())
	if err != nil {
		s.logger.Error("list passengers failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not list passengers"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"passengers": passengers})
}

// handleAPIRides lists the session pilot's recent rides.
func (s *Server) handleAPIRides(w http.ResponseWriter, r *http.Request) {
	p := pilotFromContext(r.Context())
	if p == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not signed in"})
		return
	}
	rides, err := s.pilots.RecentRides(r.Context(), p.ID)
	if err != nil {
		s.logger.Error("list rides failed", "pilot_id", p.ID, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not list rides"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rides":            rides,
		"ridesTotalAmount": models.SumForPilot(rides),
	})
}
