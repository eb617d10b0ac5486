package pilots

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/rocket-deliveries/internal/dispatch"
	"github.com/example/rocket-deliveries/internal/events"
	"github.com/example/rocket-deliveries/internal/logging"
	"github.com/example/rocket-deliveries/internal/models"
	"github.com/example/rocket-deliveries/internal/payments"
	"github.com/example/rocket-deliveries/internal/storage"
)

type harness struct {
	svc      *Service
	store    *storage.MemoryStore
	platform *fakePlatform
	events   *events.Recorder
	notifier *fakeNotifier
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		store:    storage.NewMemoryStore(),
		platform: &fakePlatform{},
		events:   &events.Recorder{},
		notifier: &fakeNotifier{},
	}
	opts = append([]Option{WithPublisher(h.events), WithNotifier(h.notifier)}, opts...)
	h.svc = NewService(h.store, h.platform, logging.Discard(), Config{
		AppName:      "Rocket Deliveries",
		PublicDomain: "https://rocket.test",
	}, opts...)
	_, err := storage.SeedPassengers(context.Background(), h.store)
	require.NoError(t, err)
	return h
}

func (h *harness) pilot(t *testing.T, accountID string) *models.Pilot {
	t.Helper()
	p, err := models.NewPilot("pilot@example.com", "hunter2hunter2", models.PilotIndividual)
	require.NoError(t, err)
	p.FirstName, p.LastName = "Amelia", "Earhart"
	p.StripeAccountID = accountID
	require.NoError(t, h.store.CreatePilot(context.Background(), p))
	return p
}

func TestCheckVerificationShortCircuitsWhenVerified(t *testing.T) {
	h := newHarness(t)
	p := h.pilot(t, "acct_1")
	p.StripeVerified = true

	v, err := h.svc.CheckVerification(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, v.Verified)
	assert.Zero(t, h.platform.retrieveCalls)
}

func TestCheckVerificationDetailsNotSubmitted(t *testing.T) {
	h := newHarness(t)
	p := h.pilot(t, "acct_1")
	h.platform.account = &payments.AccountStatus{ID: "acct_1", DisabledReason: "requirements.past_due"}

	v, err := h.svc.CheckVerification(context.Background(), p)
	require.NoError(t, err)
	assert.False(t, v.Verified)
	assert.Empty(t, v.Reason)
}

func TestCheckVerificationDisabledReason(t *testing.T) {
	h := newHarness(t)
	p := h.pilot(t, "acct_1")
	h.platform.account = &payments.AccountStatus{ID: "acct_1", DetailsSubmitted: true, DisabledReason: "requirements.pending_verification"}

	v, err := h.svc.CheckVerification(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, models.Verification{Reason: "requirements.pending_verification"}, v)
}

func TestCheckVerificationPersistsVerified(t *testing.T) {
	h := newHarness(t)
	p := h.pilot(t, "acct_1")
	h.platform.account = &payments.AccountStatus{ID: "acct_1", DetailsSubmitted: true}

	v, err := h.svc.CheckVerification(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, v.Verified)
	assert.True(t, p.StripeVerified)

	stored, err := h.store.GetPilot(context.Background(), p.ID)
	require.NoError(t, err)
	assert.True(t, stored.StripeVerified)
	assert.Equal(t, []events.Type{events.PilotVerified}, h.events.Types())
	assert.Len(t, h.notifier.sent[p.ID], 1)
}

func TestCheckVerificationPropagatesLookupError(t *testing.T) {
	h := newHarness(t)
	p := h.pilot(t, "acct_1")
	h.platform.accountErr = errors.New("stripe down")

	_, err := h.svc.CheckVerification(context.Background(), p)
	assert.EqualError(t, err, "stripe down")
}

func TestSimulateRideChargesPilotShare(t *testing.T) {
	h := newHarness(t, WithRandInt(func(lo, hi int64) int64 { return 4999 }))
	p := h.pilot(t, "acct_1")

	ride, err := h.svc.SimulateRide(context.Background(), p, payments.BehaviorDefault)
	require.NoError(t, err)
	assert.Equal(t, int64(4999), ride.Amount)
	assert.Equal(t, "ch_123", ride.StripeChargeID)

	require.Len(t, h.platform.charges, 1)
	c := h.platform.charges[0]
	assert.Equal(t, payments.TokenVisa, c.Source)
	assert.Equal(t, int64(3999), c.TransferAmount)
	assert.Equal(t, "acct_1", c.Destination)
	assert.Equal(t, "usd", c.Currency)
	assert.Equal(t, "Rocket Deliveries", c.StatementDescriptor)

	stored, ok := h.store.GetRide(ride.ID)
	require.True(t, ok)
	assert.Equal(t, "ch_123", stored.StripeChargeID)
	assert.Equal(t, []events.Type{events.RideCharged}, h.events.Types())
}

func TestSimulateRideAmountInRange(t *testing.T) {
	h := newHarness(t)
	p := h.pilot(t, "acct_1")
	for i := 0; i < 50; i++ {
		ride, err := h.svc.SimulateRide(context.Background(), p, payments.BehaviorDefault)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, ride.Amount, int64(models.MinRideAmount))
		assert.LessOrEqual(t, ride.Amount, int64(models.MaxRideAmount))
	}
}

func TestSimulateRideBehaviorTokens(t *testing.T) {
	h := newHarness(t)
	p := h.pilot(t, "acct_1")
	_, err := h.svc.SimulateRide(context.Background(), p, payments.BehaviorImmediateBalance)
	require.NoError(t, err)
	_, err = h.svc.SimulateRide(context.Background(), p, payments.BehaviorPayoutLimit)
	require.NoError(t, err)
	require.Len(t, h.platform.charges, 2)
	assert.Equal(t, payments.TokenBypassPending, h.platform.charges[0].Source)
	assert.Equal(t, payments.TokenVisaTransferBlock, h.platform.charges[1].Source)
}

func TestSimulateRideChargeFailureKeepsRide(t *testing.T) {
	h := newHarness(t)
	p := h.pilot(t, "acct_1")
	h.platform.chargeErr = errors.New("card declined")

	ride, err := h.svc.SimulateRide(context.Background(), p, payments.BehaviorDefault)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChargeFailed)
	require.NotNil(t, ride)

	stored, ok := h.store.GetRide(ride.ID)
	require.True(t, ok)
	assert.Empty(t, stored.StripeChargeID)
	assert.Equal(t, []events.Type{events.RideChargeFailed}, h.events.Types())
}

func TestSimulateRideRequiresAccount(t *testing.T) {
	h := newHarness(t)
	p := h.pilot(t, "")
	_, err := h.svc.SimulateRide(context.Background(), p, payments.BehaviorDefault)
	assert.ErrorIs(t, err, ErrNoAccount)
}

func TestSimulateRideWithoutPassengers(t *testing.T) {
	h := &harness{store: storage.NewMemoryStore(), platform: &fakePlatform{}}
	h.svc = NewService(h.store, h.platform, logging.Discard(), Config{AppName: "Rocket Deliveries"})
	p := h.pilot(t, "acct_1")
	_, err := h.svc.SimulateRide(context.Background(), p, payments.BehaviorDefault)
	assert.ErrorIs(t, err, ErrNoPassengers)
}

func TestPayoutUsesFirstAvailableBalance(t *testing.T) {
	h := newHarness(t)
	p := h.pilot(t, "acct_1")
	h.platform.balance = &payments.Balance{Available: []payments.Amount{{Value: 8000, Currency: "usd"}, {Value: 50, Currency: "eur"}}}

	res, err := h.svc.Payout(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "po_123", res.PayoutID)
	require.Len(t, h.platform.payouts, 1)
	assert.Equal(t, payments.PayoutRequest{
		AccountID:           "acct_1",
		Amount:              8000,
		Currency:            "usd",
		StatementDescriptor: "Rocket Deliveries",
		Instant:             true,
	}, h.platform.payouts[0])
	assert.Equal(t, []events.Type{events.PayoutCreated}, h.events.Types())
}

func TestPayoutSkipsEmptyBalance(t *testing.T) {
	h := newHarness(t)
	p := h.pilot(t, "acct_1")

	_, err := h.svc.Payout(context.Background(), p)
	assert.ErrorIs(t, err, ErrNothingToPay)
	assert.Empty(t, h.platform.payouts)

	h.platform.balance = &payments.Balance{}
	_, err = h.svc.Payout(context.Background(), p)
	assert.ErrorIs(t, err, payments.ErrNoBalance)
}

func TestHandleAccountUpdated(t *testing.T) {
	h := newHarness(t)
	p := h.pilot(t, "acct_1")

	changed, err := h.svc.HandleAccountUpdated(context.Background(), &payments.AccountStatus{ID: "acct_1", DetailsSubmitted: true})
	require.NoError(t, err)
	assert.False(t, changed, "payouts not enabled yet")

	changed, err = h.svc.HandleAccountUpdated(context.Background(), &payments.AccountStatus{ID: "acct_1", DetailsSubmitted: true, PayoutsEnabled: true})
	require.NoError(t, err)
	assert.True(t, changed)

	stored, err := h.store.GetPilot(context.Background(), p.ID)
	require.NoError(t, err)
	assert.True(t, stored.StripeVerified)
	assert.Equal(t, []any{dispatch.VerifiedMessage{StripeVerified: true}}, h.notifier.sent[p.ID])

	changed, err = h.svc.HandleAccountUpdated(context.Background(), &payments.AccountStatus{ID: "acct_1", DetailsSubmitted: true, PayoutsEnabled: true})
	require.NoError(t, err)
	assert.False(t, changed, "already verified")
}

func TestHandleAccountUpdatedUnknownAccount(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.HandleAccountUpdated(context.Background(), &payments.AccountStatus{ID: "acct_missing", DetailsSubmitted: true, PayoutsEnabled: true})
	assert.ErrorIs(t, err, ErrUnknownAccount)
}

func TestDashboard(t *testing.T) {
	now := time.Now()
	h := newHarness(t, WithRandInt(func(lo, hi int64) int64 { return 1000 }), WithClock(func() time.Time { return now }))
	p := h.pilot(t, "acct_1")
	h.platform.balance = &payments.Balance{
		Available: []payments.Amount{{Value: 1600, Currency: "usd"}},
		Pending:   []payments.Amount{{Value: 300, Currency: "usd"}},
	}
	for i := 0; i < 2; i++ {
		_, err := h.svc.SimulateRide(context.Background(), p, payments.BehaviorDefault)
		require.NoError(t, err)
	}
	require.NoError(t, h.store.CreateFinancing(context.Background(), &models.Financing{PilotID: p.ID, Status: models.FinancingUndelivered}))

	d, err := h.svc.Dashboard(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, int64(1600), d.BalanceAvailable)
	assert.Equal(t, int64(300), d.BalancePending)
	assert.Len(t, d.Rides, 2)
	assert.Equal(t, int64(1600), d.RidesTotalAmount)
	assert.False(t, d.Verification.Verified)
	assert.Len(t, d.Financings, 1)
	assert.NotNil(t, d.Rides[0].Passenger)
}

func TestMarkFinancingDelivered(t *testing.T) {
	h := newHarness(t)
	p := h.pilot(t, "acct_1")
	f := &models.Financing{PilotID: p.ID, Status: models.FinancingUndelivered}
	require.NoError(t, h.store.CreateFinancing(context.Background(), f))

	got, err := h.svc.MarkFinancingDelivered(context.Background(), p, f.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FinancingDelivered, got.Status)

	_, err = h.svc.MarkFinancingDelivered(context.Background(), p, f.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	other := &models.Pilot{ID: "someone-else"}
	_, err = h.svc.MarkFinancingDelivered(context.Background(), other, f.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAccountLinkURLs(t *testing.T) {
	h := newHarness(t)
	p := h.pilot(t, "acct_1")
	url, err := h.svc.AccountLink(context.Background(), p)
	require.NoError(t, err)
	assert.NotEmpty(t, url)
	require.Len(t, h.platform.links, 1)
	assert.Equal(t, "https://rocket.test/pilots/stripe/verify", h.platform.links[0][0])
	assert.Equal(t, "https://rocket.test/pilots/dashboard?showBanner=true", h.platform.links[0][1])

	_, err = h.svc.AccountLink(context.Background(), &models.Pilot{})
	assert.ErrorIs(t, err, ErrNoAccount)
}
