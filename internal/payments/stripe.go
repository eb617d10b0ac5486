package payments

import (
	"context"
	"encoding/json"
	"fmt"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/account"
	"github.com/stripe/stripe-go/v74/accountlink"
	"github.com/stripe/stripe-go/v74/balance"
	"github.com/stripe/stripe-go/v74/charge"
	"github.com/stripe/stripe-go/v74/payout"
	"github.com/stripe/stripe-go/v74/person"
	"github.com/stripe/stripe-go/v74/webhook"
	"github.com/stripe/stripe-go/v74/webhookendpoint"

	"github.com/example/rocket-deliveries/internal/models"
)

var _ Platform = (*StripeClient)(nil)

// StripeClient is a thin wrapper around stripe-go for Connect Custom accounts.
type StripeClient struct{}

// NewStripeClient initializes stripe-go with the platform secret key.
func NewStripeClient(secretKey string) *StripeClient {
	stripe.Key = secretKey
	return &StripeClient{}
}

// CreateAccount creates a Custom connected account for the pilot requesting
// card_payments and transfers, with a test debit card as external account.
// Company accounts also get the pilot registered as account opener.
func (s *StripeClient) CreateAccount(ctx context.Context, pilot *models.Pilot, profile models.Profile) (string, error) {
	addr := &stripe.AddressParams{
		Line1:      stripe.String(profile.Address.Line1),
		City:       stripe.String(profile.Address.City),
		State:      stripe.String(profile.Address.State),
		PostalCode: stripe.String(profile.Address.PostalCode),
		Country:    stripe.String(profile.Address.Country),
	}
	params := &stripe.AccountParams{
		Type:    stripe.String(string(stripe.AccountTypeCustom)),
		Country: stripe.String(profile.Address.Country),
		Email:   stripe.String(pilot.Email),
		ExternalAccount: &stripe.AccountExternalAccountParams{
			Token: stripe.String(TokenVisaDebit),
		},
		Capabilities: &stripe.AccountCapabilitiesParams{
			CardPayments: &stripe.AccountCapabilitiesCardPaymentsParams{Requested: stripe.Bool(true)},
			Transfers:    &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	params.Context = ctx

	switch d := profile.Details.(type) {
	case models.IndividualProfile:
		params.BusinessType = stripe.String(string(stripe.AccountBusinessTypeIndividual))
		params.Individual = &stripe.PersonParams{
			Email:     stripe.String(pilot.Email),
			FirstName: stripe.String(d.FirstName),
			LastName:  stripe.String(d.LastName),
			Address:   addr,
		}
	case models.CompanyProfile:
		params.BusinessType = stripe.String(string(stripe.AccountBusinessTypeCompany))
		params.Company = &stripe.AccountCompanyParams{
			Name:    stripe.String(d.BusinessName),
			Address: addr,
		}
	default:
		return "", fmt.Errorf("create account: %w", models.ErrInvalidProfile)
	}

	acct, err := account.New(params)
	if err != nil {
		return "", fmt.Errorf("create account: %w", err)
	}

	if profile.Type() == models.PilotCompany {
		pp := &stripe.PersonParams{
			Account: stripe.String(acct.ID),
			Email:   stripe.String(pilot.Email),
			Relationship: &stripe.PersonRelationshipParams{
				Representative: stripe.Bool(true),
			},
		}
		pp.Context = ctx
		if _, err := person.New(pp); err != nil {
			return acct.ID, fmt.Errorf("create account opener: %w", err)
		}
	}
	return acct.ID, nil
}

func (s *StripeClient) RetrieveAccount(ctx context.Context, accountID string) (*AccountStatus, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx
	acct, err := account.GetByID(accountID, params)
	if err != nil {
		return nil, fmt.Errorf("retrieve account: %w", err)
	}
	return accountStatus(acct), nil
}

func accountStatus(acct *stripe.Account) *AccountStatus {
	st := &AccountStatus{
		ID:               acct.ID,
		DetailsSubmitted: acct.DetailsSubmitted,
		PayoutsEnabled:   acct.PayoutsEnabled,
	}
	if acct.Requirements != nil {
		st.DisabledReason = string(acct.Requirements.DisabledReason)
	}
	return st
}

// CreateAccountLink returns the hosted onboarding URL collecting currently
// due requirements.
func (s *StripeClient) CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		Type:       stripe.String(string(stripe.AccountLinkTypeAccountOnboarding)),
		Collect:    stripe.String(string(stripe.AccountLinkCollectCurrentlyDue)),
		RefreshURL: stripe.String(refreshURL),
		ReturnURL:  stripe.String(returnURL),
	}
	params.Context = ctx
	link, err := accountlink.New(params)
	if err != nil {
		return "", fmt.Errorf("create account link: %w", err)
	}
	return link.URL, nil
}

func (s *StripeClient) RetrieveBalance(ctx context.Context, accountID string) (*Balance, error) {
	params := &stripe.BalanceParams{}
	params.Context = ctx
	params.SetStripeAccount(accountID)
	b, err := balance.Get(params)
	if err != nil {
		return nil, fmt.Errorf("retrieve balance: %w", err)
	}
	out := &Balance{}
	for _, a := range b.Available {
		out.Available = append(out.Available, Amount{Value: a.Amount, Currency: string(a.Currency)})
	}
	for _, a := range b.Pending {
		out.Pending = append(out.Pending, Amount{Value: a.Amount, Currency: string(a.Currency)})
	}
	return out, nil
}

// CreateCharge charges the platform and transfers TransferAmount to the
// destination account.
func (s *StripeClient) CreateCharge(ctx context.Context, req ChargeRequest) (string, error) {
	params := &stripe.ChargeParams{
		Amount:              stripe.Int64(req.Amount),
		Currency:            stripe.String(req.Currency),
		Description:         stripe.String(req.Description),
		StatementDescriptor: stripe.String(req.StatementDescriptor),
		TransferData: &stripe.ChargeTransferDataParams{
			Amount:      stripe.Int64(req.TransferAmount),
			Destination: stripe.String(req.Destination),
		},
	}
	params.Context = ctx
	if err := params.SetSource(req.Source); err != nil {
		return "", fmt.Errorf("create charge: %w", err)
	}
	ch, err := charge.New(params)
	if err != nil {
		return "", fmt.Errorf("create charge: %w", err)
	}
	return ch.ID, nil
}

func (s *StripeClient) CreatePayout(ctx context.Context, req PayoutRequest) (string, error) {
	params := &stripe.PayoutParams{
		Amount:              stripe.Int64(req.Amount),
		Currency:            stripe.String(req.Currency),
		StatementDescriptor: stripe.String(req.StatementDescriptor),
	}
	if req.Instant {
		params.Method = stripe.String(string(stripe.PayoutMethodInstant))
	}
	params.Context = ctx
	params.SetStripeAccount(req.AccountID)
	po, err := payout.New(params)
	if err != nil {
		return "", fmt.Errorf("create payout: %w", err)
	}
	return po.ID, nil
}

// ConstructEvent verifies the Stripe-Signature header and decodes the event.
// For account.updated the embedded account is decoded as well.
func (s *StripeClient) ConstructEvent(payload []byte, signature, secret string) (*Event, error) {
	return ConstructEvent(payload, signature, secret)
}

func ConstructEvent(payload []byte, signature, secret string) (*Event, error) {
	if err := webhook.ValidatePayload(payload, signature, secret); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	var ev stripe.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	out := &Event{
		ID:              ev.ID,
		Type:            string(ev.Type),
		APIVersion:      ev.APIVersion,
		VersionMismatch: ev.APIVersion != stripe.APIVersion,
	}
	if out.Type == EventAccountUpdated {
		if ev.Data == nil {
			return out, fmt.Errorf("%w: account.updated without data", ErrMalformedEvent)
		}
		var acct stripe.Account
		if err := json.Unmarshal(ev.Data.Raw, &acct); err != nil {
			return out, fmt.Errorf("%w: decode account: %w", ErrMalformedEvent, err)
		}
		out.Account = accountStatus(&acct)
	}
	return out, nil
}

// RegisterWebhook replaces any endpoint registered for url with a fresh
// Connect endpoint for account.updated and returns its signing secret.
func (s *StripeClient) RegisterWebhook(ctx context.Context, url string) (string, error) {
	listParams := &stripe.WebhookEndpointListParams{}
	listParams.Context = ctx
	it := webhookendpoint.List(listParams)
	for it.Next() {
		ep := it.WebhookEndpoint()
		if ep.URL != url {
			continue
		}
		delParams := &stripe.WebhookEndpointParams{}
		delParams.Context = ctx
		if _, err := webhookendpoint.Del(ep.ID, delParams); err != nil {
			return "", fmt.Errorf("delete webhook endpoint %s: %w", ep.ID, err)
		}
	}
	if err := it.Err(); err != nil {
		return "", fmt.Errorf("list webhook endpoints: %w", err)
	}

	params := &stripe.WebhookEndpointParams{
		URL:           stripe.String(url),
		EnabledEvents: stripe.StringSlice([]string{EventAccountUpdated}),
		Connect:       stripe.Bool(true),
		APIVersion:    stripe.String(stripe.APIVersion),
		Description:   stripe.String(defaultWebhookDescription),
	}
	params.Context = ctx
	ep, err := webhookendpoint.New(params)
	if err != nil {
		return "", fmt.Errorf("create webhook endpoint: %w", err)
	}
	return ep.Secret, nil
}
