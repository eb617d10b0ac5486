package pilots

import (
	"context"
	"errors"
	"sync"

	"github.com/example/rocket-deliveries/internal/models"
	"github.com/example/rocket-deliveries/internal/payments"
)

type fakePlatform struct {
	mu sync.Mutex

	account    *payments.AccountStatus
	accountErr error
	balance    *payments.Balance
	balanceErr error
	chargeErr  error
	payoutErr  error
	createErr  error
	createdID  string

	retrieveCalls int
	created       []models.Profile
	charges       []payments.ChargeRequest
	payouts       []payments.PayoutRequest
	links         [][2]string
}

func (f *fakePlatform) CreateAccount(_ context.Context, _ *models.Pilot, pr models.Profile) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createdID, f.createErr
	}
	f.created = append(f.created, pr)
	return "acct_new", nil
}

func (f *fakePlatform) RetrieveAccount(_ context.Context, id string) (*payments.AccountStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retrieveCalls++
	if f.accountErr != nil {
		return nil, f.accountErr
	}
	if f.account == nil {
		return &payments.AccountStatus{ID: id}, nil
	}
	return f.account, nil
}

func (f *fakePlatform) CreateAccountLink(_ context.Context, _ string, refreshURL, returnURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links = append(f.links, [2]string{refreshURL, returnURL})
	return "https://connect.stripe.test/setup", nil
}

func (f *fakePlatform) RetrieveBalance(context.Context, string) (*payments.Balance, error) {
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	if f.balance == nil {
		return &payments.Balance{
			Available: []payments.Amount{{Value: 0, Currency: "usd"}},
			Pending:   []payments.Amount{{Value: 0, Currency: "usd"}},
		}, nil
	}
	return f.balance, nil
}

func (f *fakePlatform) CreateCharge(_ context.Context, req payments.ChargeRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.charges = append(f.charges, req)
	if f.chargeErr != nil {
		return "", f.chargeErr
	}
	return "ch_123", nil
}

func (f *fakePlatform) CreatePayout(_ context.Context, req payments.PayoutRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payouts = append(f.payouts, req)
	if f.payoutErr != nil {
		return "", f.payoutErr
	}
	return "po_123", nil
}

func (f *fakePlatform) ConstructEvent([]byte, string, string) (*payments.Event, error) {
	return nil, errors.New("not used")
}

func (f *fakePlatform) RegisterWebhook(context.Context, string) (string, error) {
	return "whsec_test", nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent map[string][]any
}

func (n *fakeNotifier) Notify(pilotID string, msg any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sent == nil {
		n.sent = make(map[string][]any)
	}
	n.sent[pilotID] = append(n.sent[pilotID], msg)
	return nil
}
