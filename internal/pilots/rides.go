package pilots

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/rocket-deliveries/internal/events"
	"github.com/example/rocket-deliveries/internal/models"
	"github.com/example/rocket-deliveries/internal/observability"
	"github.com/example/rocket-deliveries/internal/payments"
	"github.com/example/rocket-deliveries/internal/storage"
)

// SimulateRide records a ride with a random passenger and amount, then
// charges it with the pilot's share transferred to their account. The ride
// is persisted before the charge and is kept when the charge fails.
func (s *Service) SimulateRide(ctx context.Context, p *models.Pilot, behavior payments.TestBehavior) (*models.Ride, error) {
	if p.StripeAccountID == "" {
		return nil, ErrNoAccount
	}
	passenger, err := s.store.RandomPassenger(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoPassengers
	}
	if err != nil {
		return nil, fmt.Errorf("pick passenger: %w", err)
	}

	ride := models.NewRide(p.ID, passenger.ID, s.randInt(models.MinRideAmount, models.MaxRideAmount))
	ride.Passenger = passenger
	if err := s.store.CreateRide(ctx, ride); err != nil {
		return nil, fmt.Errorf("save ride: %w", err)
	}
	observability.RidesCreated.Inc()

	start := time.Now()
	chargeID, err := s.platform.CreateCharge(ctx, payments.ChargeRequest{
		Source:              payments.TestSource(behavior),
		Amount:              ride.Amount,
		Currency:            ride.Currency,
		Description:         s.cfg.AppName,
		StatementDescriptor: s.cfg.AppName,
		TransferAmount:      ride.AmountForPilot(),
		Destination:         p.StripeAccountID,
	})
	observability.ChargeLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		observability.ChargesFailed.Inc()
		s.logger.Error("ride charge failed", "pilot_id", p.ID, "ride_id", ride.ID, "err", err)
		ev := events.New(events.RideChargeFailed, p.ID)
		ev.RideID = ride.ID
		ev.Amount = ride.Amount
		ev.Currency = ride.Currency
		ev.Reason = err.Error()
		s.publish(ctx, ev)
		return ride, fmt.Errorf("%w: %w", ErrChargeFailed, err)
	}

	if err := s.store.SetRideCharge(ctx, ride.ID, chargeID); err != nil {
		return ride, fmt.Errorf("save ride charge: %w", err)
	}
	ride.StripeChargeID = chargeID

	ev := events.New(events.RideCharged, p.ID)
	ev.RideID = ride.ID
	ev.Amount = ride.AmountForPilot()
	ev.Currency = ride.Currency
	s.publish(ctx, ev)
	return ride, nil
}

type PayoutResult struct {
	PayoutID string
	Amount   int64
	Currency string
}

// Payout requests an instant payout of the first available balance entry
// on the pilot's connected account.
func (s *Service) Payout(ctx context.Context, p *models.Pilot) (*PayoutResult, error) {
	if p.StripeAccountID == "" {
		return nil, ErrNoAccount
	}
	bal, err := s.platform.RetrieveBalance(ctx, p.StripeAccountID)
	if err != nil {
		return nil, err
	}
	avail, err := bal.FirstAvailable()
	if err != nil {
		return nil, err
	}
	if avail.Value <= 0 {
		return nil, ErrNothingToPay
	}
	payoutID, err := s.platform.CreatePayout(ctx, payments.PayoutRequest{
		AccountID:           p.StripeAccountID,
		Amount:              avail.Value,
		Currency:            avail.Currency,
		StatementDescriptor: s.cfg.AppName,
		Instant:             true,
	})
	if err != nil {
		observability.PayoutsFailed.Inc()
		return nil, err
	}
	observability.PayoutsRequested.Inc()
	ev := events.New(events.PayoutCreated, p.ID)
	ev.AccountID = p.StripeAccountID
	ev.Amount = avail.Value
	ev.Currency = avail.Currency
	s.publish(ctx, ev)
	return &PayoutResult{PayoutID: payoutID, Amount: avail.Value, Currency: avail.Currency}, nil
}

// Dashboard is everything the pilot dashboard renders.
type Dashboard struct {
	Pilot            *models.Pilot
	BalanceAvailable int64
	BalancePending   int64
	Currency         string
	Rides            []*models.Ride
	RidesTotalAmount int64
	Verification     models.Verification
	Financings       []*models.Financing
}

func (s *Service) Dashboard(ctx context.Context, p *models.Pilot) (*Dashboard, error) {
	if p.StripeAccountID == "" {
		return nil, ErrNoAccount
	}
	bal, err := s.platform.RetrieveBalance(ctx, p.StripeAccountID)
	if err != nil {
		return nil, err
	}
	rides, err := s.RecentRides(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("recent rides: %w", err)
	}
	verification, err := s.CheckVerification(ctx, p)
	if err != nil {
		return nil, err
	}
	financings, err := s.store.ListFinancings(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("list financings: %w", err)
	}

	avail, _ := bal.FirstAvailable()
	pending := bal.FirstPending()
	currency := avail.Currency
	if currency == "" {
		currency = models.DefaultCurrency
	}
	return &Dashboard{
		Pilot:            p,
		BalanceAvailable: avail.Value,
		BalancePending:   pending.Value,
		Currency:         currency,
		Rides:            rides,
		RidesTotalAmount: models.SumForPilot(rides),
		Verification:     verification,
		Financings:       financings,
	}, nil
}

// MarkFinancingDelivered moves one of the pilot's financing offers to
// delivered. Offers owned by another pilot are reported as not found.
func (s *Service) MarkFinancingDelivered(ctx context.Context, p *models.Pilot, id string) (*models.Financing, error) {
	f, err := s.store.GetFinancing(ctx, id)
	if err != nil {
		return nil, err
	}
	if f.PilotID != p.ID {
		return nil, storage.ErrNotFound
	}
	from := f.Status
	if err := f.Advance(models.FinancingDelivered); err != nil {
		return nil, err
	}
	if err := s.store.UpdateFinancingStatus(ctx, f.ID, from, f.Status); err != nil {
		return nil, fmt.Errorf("update financing: %w", err)
	}
	return f, nil
}
