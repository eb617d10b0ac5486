package payments

import (
	"context"
	"errors"

	"github.com/example/rocket-deliveries/internal/models"
)

// Static test card tokens. These trigger special behaviour in Stripe test
// mode and must never be used for real payments.
const (
	TokenVisa                 = "tok_visa"
	TokenBypassPending        = "tok_bypassPending"
	TokenVisaTransferBlock    = "tok_visa_triggerTransferBlock"
	TokenVisaDebit            = "tok_visa_debit"
	EventAccountUpdated       = "account.updated"
	defaultWebhookDescription = "Rocket Deliveries pilot verification"
)

var (
	ErrNoBalance = errors.New("no balance for account")
	// ErrInvalidSignature marks webhook payloads whose Stripe-Signature
	// header does not verify. Any other ConstructEvent error comes after
	// a good signature.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedEvent   = errors.New("malformed webhook event")
)

// TestBehavior selects a test token for a simulated ride.
type TestBehavior string

const (
	BehaviorDefault          TestBehavior = ""
	BehaviorImmediateBalance TestBehavior = "immediate_balance"
	BehaviorPayoutLimit      TestBehavior = "payout_limit"
)

func TestSource(b TestBehavior) string {
	switch b {
	case BehaviorImmediateBalance:
		return TokenBypassPending
	case BehaviorPayoutLimit:
		return TokenVisaTransferBlock
	default:
		return TokenVisa
	}
}

// AccountStatus is the subset of a connected account that drives verification.
type AccountStatus struct {
	ID               string
	DetailsSubmitted bool
	PayoutsEnabled   bool
	DisabledReason   string
}

// Verified reports whether the account is fully onboarded and can be paid out.
func (a *AccountStatus) Verified() bool {
	return a.DetailsSubmitted && a.PayoutsEnabled && a.DisabledReason == ""
}

type Amount struct {
	Value    int64
	Currency string
}

type Balance struct {
	Available []Amount
	Pending   []Amount
}

// FirstAvailable returns the first available entry. The app only charges in
// one currency so there is a single entry in practice.
func (b *Balance) FirstAvailable() (Amount, error) {
	if b == nil || len(b.Available) == 0 {
		return Amount{}, ErrNoBalance
	}
	return b.Available[0], nil
}

func (b *Balance) FirstPending() Amount {
	if b == nil || len(b.Pending) == 0 {
		return Amount{}
	}
	return b.Pending[0]
}

type ChargeRequest struct {
	Source              string
	Amount              int64
	Currency            string
	Description         string
	StatementDescriptor string
	TransferAmount      int64
	Destination         string
}

type PayoutRequest struct {
	AccountID           string
	Amount              int64
	Currency            string
	StatementDescriptor string
	Instant             bool
}

// Event is a verified webhook event.
type Event struct {
	ID         string
	Type       string
	APIVersion string
	// VersionMismatch is set when the endpoint sends a different API
	// version than the client library pins. The event is still decoded.
	VersionMismatch bool
	Account         *AccountStatus
}

// Platform is the payments platform as seen by the pilot workflows.
type Platform interface {
	// CreateAccount returns the new account ID even when a follow-up step
	// fails after the account exists, alongside the error.
	CreateAccount(ctx context.Context, pilot *models.Pilot, profile models.Profile) (string, error)
	RetrieveAccount(ctx context.Context, accountID string) (*AccountStatus, error)
	CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error)
	RetrieveBalance(ctx context.Context, accountID string) (*Balance, error)
	CreateCharge(ctx context.Context, req ChargeRequest) (string, error)
	CreatePayout(ctx context.Context, req PayoutRequest) (string, error)
	ConstructEvent(payload []byte, signature, secret string) (*Event, error)
	RegisterWebhook(ctx context.Context, url string) (string, error)
}
