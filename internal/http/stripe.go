package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/example/rocket-deliveries/internal/observability"
	"github.com/example/rocket-deliveries/internal/payments"
	"github.com/example/rocket-deliveries/internal/pilots"
)

const maxWebhookBody = 65536

// handleStripeVerify sends the pilot to hosted onboarding.
func (s *Server) handleStripeVerify(w http.ResponseWriter, r *http.Request) {
	url, err := s.pilots.AccountLink(r.Context(), pilotFromContext(r.Context()))
	if err != nil {
		s.logger.Error("generate onboarding link failed", "err", err)
		http.Redirect(w, r, "/pilots/dashboard", http.StatusFound)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

// handleStripeWebhook verifies the signature over the raw body before
// anything is decoded. Once verified the response is always 200.
func (s *Server) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, fmt.Sprintf("Webhook error: %v", err), http.StatusBadRequest)
		return
	}
	ev, err := s.platform.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), s.WebhookSecret())
	if errors.Is(err, payments.ErrInvalidSignature) {
		observability.WebhookEvents.WithLabelValues("unknown", "invalid_signature").Inc()
		http.Error(w, fmt.Sprintf("Webhook error: %v", err), http.StatusBadRequest)
		return
	}
	if err != nil {
		evType := "unknown"
		if ev != nil {
			evType = ev.Type
		}
		observability.WebhookEvents.WithLabelValues(evType, "malformed").Inc()
		s.logger.Error("webhook event could not be decoded", "type", evType, "err", err)
		w.WriteHeader(http.StatusOK)
		return
	}
	if ev.VersionMismatch {
		s.logger.Warn("webhook api version mismatch", "event_id", ev.ID, "api_version", ev.APIVersion)
	}

	outcome := "ignored"
	if ev.Type == payments.EventAccountUpdated {
		changed, err := s.pilots.HandleAccountUpdated(r.Context(), ev.Account)
		switch {
		case errors.Is(err, pilots.ErrUnknownAccount):
			outcome = "unknown_account"
			s.logger.Warn("webhook for unknown pilot", "event_id", ev.ID, "err", err)
		case err != nil:
			outcome = "error"
			s.logger.Error("webhook processing failed", "event_id", ev.ID, "err", err)
		case changed:
			outcome = "verified"
		default:
			outcome = "unchanged"
		}
	}
	observability.WebhookEvents.WithLabelValues(ev.Type, outcome).Inc()
	w.WriteHeader(http.StatusOK)
}

// handleStripePayout requests an instant payout and always returns to the
// dashboard. Failures are logged only.
func (s *Server) handleStripePayout(w http.ResponseWriter, r *http.Request) {
	p := pilotFromContext(r.Context())
	res, err := s.pilots.Payout(r.Context(), p)
	switch {
	case errors.Is(err, pilots.ErrNothingToPay):
		s.logger.Info("payout skipped, nothing available", "pilot_id", p.ID)
	case err != nil:
		s.logger.Error("payout failed", "pilot_id", p.ID, "err", err)
	default:
		s.logger.Info("payout created", "pilot_id", p.ID, "payout_id", res.PayoutID, "amount", res.Amount, "currency", res.Currency)
	}
	http.Redirect(w, r, "/pilots/dashboard", http.StatusFound)
}
