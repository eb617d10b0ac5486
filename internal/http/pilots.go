package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/example/rocket-deliveries/internal/models"
	"github.com/example/rocket-deliveries/internal/payments"
	"github.com/example/rocket-deliveries/internal/pilots"
	"github.com/example/rocket-deliveries/internal/storage"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "index", s.newPage(r))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleSignupPage(w http.ResponseWriter, r *http.Request) {
	data := s.newPage(r)
	data.Step = pilots.SignupStep(data.Pilot, r.URL.Query().Has("done"))
	s.render(w, r, http.StatusOK, "signup", data)
}

// handleSignup creates the account for anonymous visitors and completes the
// profile for a signed-in pilot.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, http.StatusBadRequest, err)
		return
	}
	if p := pilotFromContext(r.Context()); p != nil {
		s.completeProfile(w, r, p)
		return
	}

	p, err := s.pilots.Signup(r.Context(), pilots.SignupInput{
		Email:    r.PostForm.Get("email"),
		Password: r.PostForm.Get("password"),
		Type:     r.PostForm.Get("pilot-type"),
	})
	var verr *pilots.ValidationError
	if errors.As(err, &verr) {
		data := s.newPage(r)
		data.Step = pilots.StepAccount
		data.Error = verr.First()
		s.render(w, r, http.StatusUnprocessableEntity, "signup", data)
		return
	}
	if err != nil {
		s.renderError(w, r, http.StatusInternalServerError, err)
		return
	}

	sess := sessionFromContext(r.Context())
	if err := s.sessions.Renew(r, sess); err != nil {
		s.renderError(w, r, http.StatusInternalServerError, err)
		return
	}
	sess.Data.PilotID = p.ID
	if err := s.sessions.Save(w, r, sess); err != nil {
		s.renderError(w, r, http.StatusInternalServerError, err)
		return
	}
	http.Redirect(w, r, "/pilots/signup", http.StatusFound)
}

func (s *Server) completeProfile(w http.ResponseWriter, r *http.Request, p *models.Pilot) {
	err := s.pilots.CompleteProfile(r.Context(), p, models.ProfileFields{
		FirstName:    r.PostForm.Get("first-name"),
		LastName:     r.PostForm.Get("last-name"),
		BusinessName: r.PostForm.Get("business-name"),
		Address: models.Address{
			Line1:      r.PostForm.Get("address"),
			City:       r.PostForm.Get("city"),
			State:      r.PostForm.Get("state"),
			PostalCode: r.PostForm.Get("postal-code"),
			Country:    r.PostForm.Get("country"),
		},
	})
	var verr *pilots.ValidationError
	if errors.As(err, &verr) {
		data := s.newPage(r)
		data.Step = pilots.StepProfile
		data.Error = verr.First()
		s.render(w, r, http.StatusUnprocessableEntity, "signup", data)
		return
	}
	if err != nil {
		s.renderError(w, r, http.StatusBadGateway, err)
		return
	}
	http.Redirect(w, r, "/pilots/stripe/verify", http.StatusFound)
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	data := s.newPage(r)
	if sess := sessionFromContext(r.Context()); sess != nil && len(sess.Data.Flashes) > 0 {
		data.Flashes = sess.PopFlashes()
		if err := s.sessions.Save(w, r, sess); err != nil {
			s.logger.Warn("save session failed", "err", err)
		}
	}
	s.render(w, r, http.StatusOK, "login", data)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, http.StatusBadRequest, err)
		return
	}
	sess := sessionFromContext(r.Context())
	p, err := s.pilots.Authenticate(r.Context(), r.PostForm.Get("email"), r.PostForm.Get("password"))
	switch {
	case errors.Is(err, pilots.ErrUnknownUser):
		s.loginFailed(w, r, "Unknown user")
		return
	case errors.Is(err, pilots.ErrInvalidCredentials):
		s.loginFailed(w, r, "Invalid password")
		return
	case err != nil:
		s.renderError(w, r, http.StatusInternalServerError, err)
		return
	}
	if err := s.sessions.Renew(r, sess); err != nil {
		s.renderError(w, r, http.StatusInternalServerError, err)
		return
	}
	sess.Data.PilotID = p.ID
	if err := s.sessions.Save(w, r, sess); err != nil {
		s.renderError(w, r, http.StatusInternalServerError, err)
		return
	}
	http.Redirect(w, r, "/pilots/dashboard", http.StatusFound)
}

func (s *Server) loginFailed(w http.ResponseWriter, r *http.Request, msg string) {
	sess := sessionFromContext(r.Context())
	sess.Data.PilotID = ""
	sess.AddFlash(msg)
	if err := s.sessions.Save(w, r, sess); err != nil {
		s.logger.Warn("save session failed", "err", err)
	}
	http.Redirect(w, r, "/pilots/login", http.StatusFound)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Destroy(w, r, sessionFromContext(r.Context())); err != nil {
		s.logger.Warn("destroy session failed", "err", err)
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	p := pilotFromContext(r.Context())
	d, err := s.pilots.Dashboard(r.Context(), p)
	if errors.Is(err, pilots.ErrNoAccount) {
		http.Redirect(w, r, "/pilots/signup", http.StatusFound)
		return
	}
	if err != nil {
		s.renderError(w, r, http.StatusInternalServerError, err)
		return
	}
	data := s.newPage(r)
	data.Dashboard = d
	data.ShowBanner, _ = strconv.ParseBool(r.URL.Query().Get("showBanner"))
	s.render(w, r, http.StatusOK, "dashboard", data)
}

type verifiedResponse struct {
	StripeVerified       bool    `json:"stripeVerified"`
	StripeVerifiedReason *string `json:"stripeVerifiedReason"`
}

func (s *Server) handleVerified(w http.ResponseWriter, r *http.Request) {
	v, err := s.pilots.CheckVerification(r.Context(), pilotFromContext(r.Context()))
	if err != nil {
		s.logger.Error("verification check failed", "err", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "verification check failed"})
		return
	}
	resp := verifiedResponse{StripeVerified: v.Verified}
	if v.Reason != "" {
		resp.StripeVerifiedReason = &v.Reason
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRide(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, http.StatusBadRequest, err)
		return
	}
	behavior := payments.BehaviorDefault
	switch {
	case r.PostForm.Get("immediate_balance") != "":
		behavior = payments.BehaviorImmediateBalance
	case r.PostForm.Get("payout_limit") != "":
		behavior = payments.BehaviorPayoutLimit
	}
	_, err := s.pilots.SimulateRide(r.Context(), pilotFromContext(r.Context()), behavior)
	switch {
	case errors.Is(err, pilots.ErrChargeFailed):
		http.Error(w, http.StatusText(http.StatusPaymentRequired), http.StatusPaymentRequired)
		return
	case errors.Is(err, pilots.ErrNoAccount):
		http.Redirect(w, r, "/pilots/signup", http.StatusFound)
		return
	case err != nil:
		s.renderError(w, r, http.StatusInternalServerError, err)
		return
	}
	http.Redirect(w, r, "/pilots/dashboard", http.StatusFound)
}

func (s *Server) handleFinancingDelivered(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	_, err := s.pilots.MarkFinancingDelivered(r.Context(), pilotFromContext(r.Context()), id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.handleNotFound(w, r)
		return
	case errors.Is(err, models.ErrInvalidTransition), errors.Is(err, storage.ErrConflict):
		s.renderError(w, r, http.StatusConflict, err)
		return
	case err != nil:
		s.renderError(w, r, http.StatusInternalServerError, err)
		return
	}
	http.Redirect(w, r, "/pilots/dashboard", http.StatusFound)
}

// handleWS keeps a dashboard connection registered until the client goes
// away. Messages only flow server to client.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	p := pilotFromContext(r.Context())
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "err", err)
		return
	}
	ws := s.wsreg.Add(p.ID, conn)
	defer func() {
		s.wsreg.Remove(p.ID, ws)
		_ = conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
