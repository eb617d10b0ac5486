package pilots

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/example/rocket-deliveries/internal/dispatch"
	"github.com/example/rocket-deliveries/internal/events"
	"github.com/example/rocket-deliveries/internal/models"
	"github.com/example/rocket-deliveries/internal/observability"
	"github.com/example/rocket-deliveries/internal/payments"
	"github.com/example/rocket-deliveries/internal/storage"
)

type Config struct {
	AppName      string
	PublicDomain string
}

// Service runs the pilot onboarding, ride and payout workflows against the
// store and the payments platform.
type Service struct {
	store     storage.Store
	platform  payments.Platform
	publisher events.Publisher
	notifier  dispatch.Notifier
	logger    *slog.Logger
	validate  *validator.Validate
	cfg       Config
	randInt   func(lo, hi int64) int64
	now       func() time.Time
}

type Option func(*Service)

func WithPublisher(p events.Publisher) Option { return func(s *Service) { s.publisher = p } }

func WithNotifier(n dispatch.Notifier) Option { return func(s *Service) { s.notifier = n } }

// WithRandInt replaces the ride amount generator. fn must return a value in
// [lo, hi].
func WithRandInt(fn func(lo, hi int64) int64) Option { return func(s *Service) { s.randInt = fn } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(store storage.Store, platform payments.Platform, logger *slog.Logger, cfg Config, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:     store,
		platform:  platform,
		publisher: events.NopPublisher{},
		logger:    logger,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		cfg:       cfg,
		randInt:   randInt,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func randInt(lo, hi int64) int64 {
	return lo + rand.Int63n(hi-lo+1)
}

func (s *Service) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Warn("publish event failed", "type", e.Type, "pilot_id", e.PilotID, "err", err)
	}
}

func (s *Service) GetPilot(ctx context.Context, id string) (*models.Pilot, error) {
	return s.store.GetPilot(ctx, id)
}

func (s *Service) ListPassengers(ctx context.Context) ([]*models.Passenger, error) {
	return s.store.ListPassengers(ctx)
}

// RecentRides returns the pilot's rides from the last seven days, newest first.
func (s *Service) RecentRides(ctx context.Context, pilotID string) ([]*models.Ride, error) {
	return s.store.ListRecentRides(ctx, pilotID, s.now().Add(-models.RecentRidesWindow))
}

// CheckVerification reports whether the pilot's connected account is
// verified, persisting the flag the first time it is observed.
func (s *Service) CheckVerification(ctx context.Context, p *models.Pilot) (models.Verification, error) {
	if p.StripeVerified {
		return models.Verification{Verified: true}, nil
	}
	if p.StripeAccountID == "" {
		return models.Verification{}, nil
	}
	acct, err := s.platform.RetrieveAccount(ctx, p.StripeAccountID)
	if err != nil {
		return models.Verification{}, err
	}
	if !acct.DetailsSubmitted {
		return models.Verification{}, nil
	}
	if acct.DisabledReason != "" {
		return models.Verification{Reason: acct.DisabledReason}, nil
	}
	if err := s.markVerified(ctx, p, "check"); err != nil {
		return models.Verification{}, err
	}
	return models.Verification{Verified: true}, nil
}

func (s *Service) markVerified(ctx context.Context, p *models.Pilot, source string) error {
	if err := s.store.MarkPilotVerified(ctx, p.ID); err != nil {
		return fmt.Errorf("mark pilot verified: %w", err)
	}
	if !p.MarkVerified() {
		return nil
	}
	observability.PilotsVerified.WithLabelValues(source).Inc()
	ev := events.New(events.PilotVerified, p.ID)
	ev.AccountID = p.StripeAccountID
	s.publish(ctx, ev)
	if s.notifier != nil {
		err := s.notifier.Notify(p.ID, dispatch.VerifiedMessage{StripeVerified: true})
		if err != nil && !errors.Is(err, dispatch.ErrNoSession) {
			s.logger.Warn("verification push failed", "pilot_id", p.ID, "err", err)
		}
	}
	return nil
}

// HandleAccountUpdated applies an account.updated notification. It returns
// true when the pilot became verified.
func (s *Service) HandleAccountUpdated(ctx context.Context, acct *payments.AccountStatus) (bool, error) {
	if acct == nil || acct.ID == "" {
		return false, ErrUnknownAccount
	}
	p, err := s.store.GetPilotByAccountID(ctx, acct.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, fmt.Errorf("%w: %s", ErrUnknownAccount, acct.ID)
	}
	if err != nil {
		return false, err
	}
	if p.StripeVerified || !acct.Verified() {
		return false, nil
	}
	s.logger.Info("new verified pilot", "pilot_id", p.ID, "account_id", acct.ID)
	if err := s.markVerified(ctx, p, "webhook"); err != nil {
		return false, err
	}
	return true, nil
}

// AccountLink returns the hosted onboarding URL for the pilot.
func (s *Service) AccountLink(ctx context.Context, p *models.Pilot) (string, error) {
	if p.StripeAccountID == "" {
		return "", ErrNoAccount
	}
	return s.platform.CreateAccountLink(ctx, p.StripeAccountID,
		s.cfg.PublicDomain+"/pilots/stripe/verify",
		s.cfg.PublicDomain+"/pilots/dashboard?showBanner=true",
	)
}
