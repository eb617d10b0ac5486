package payments

import (
	"errors"
	"fmt"
	"testing"
	"time"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"
)

func TestTestSource(t *testing.T) {
	cases := map[TestBehavior]string{
		BehaviorDefault:          TokenVisa,
		BehaviorImmediateBalance: TokenBypassPending,
		BehaviorPayoutLimit:      TokenVisaTransferBlock,
		"unknown":                TokenVisa,
	}
	for b, want := range cases {
		if got := TestSource(b); got != want {
			t.Fatalf("TestSource(%q) = %q, want %q", b, got, want)
		}
	}
}

func TestAccountStatusVerified(t *testing.T) {
	cases := []struct {
		name string
		st   AccountStatus
		want bool
	}{
		{"complete", AccountStatus{DetailsSubmitted: true, PayoutsEnabled: true}, true},
		{"details missing", AccountStatus{PayoutsEnabled: true}, false},
		{"payouts disabled", AccountStatus{DetailsSubmitted: true}, false},
		{"disabled", AccountStatus{DetailsSubmitted: true, PayoutsEnabled: true, DisabledReason: "rejected.fraud"}, false},
	}
	for _, c := range cases {
		if got := c.st.Verified(); got != c.want {
			t.Fatalf("%s: Verified() = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestBalanceFirstAvailable(t *testing.T) {
	var empty *Balance
	if _, err := empty.FirstAvailable(); !errors.Is(err, ErrNoBalance) {
		t.Fatalf("expected ErrNoBalance, got %v", err)
	}
	b := &Balance{Available: []Amount{{Value: 1200, Currency: "usd"}}}
	a, err := b.FirstAvailable()
	if err != nil || a.Value != 1200 {
		t.Fatalf("unexpected %+v %v", a, err)
	}
	if p := b.FirstPending(); p.Value != 0 {
		t.Fatalf("expected zero pending, got %+v", p)
	}
}

func signedPayload(t *testing.T, payload []byte, secret string) string {
	t.Helper()
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	return sp.Header
}

func TestConstructEventAccountUpdated(t *testing.T) {
	payload := []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"object": "event",
		"api_version": %q,
		"type": "account.updated",
		"data": {"object": {
			"id": "acct_1",
			"object": "account",
			"details_submitted": true,
			"payouts_enabled": true,
			"requirements": {"disabled_reason": null}
		}}
	}`, stripe.APIVersion))
	ev, err := ConstructEvent(payload, signedPayload(t, payload, "whsec_test"), "whsec_test")
	if err != nil {
		t.Fatalf("ConstructEvent: %v", err)
	}
	if ev.Type != EventAccountUpdated || ev.Account == nil {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.Account.ID != "acct_1" || !ev.Account.Verified() {
		t.Fatalf("unexpected account %+v", ev.Account)
	}
}

func TestConstructEventBadSignature(t *testing.T) {
	payload := []byte(fmt.Sprintf(`{"id":"evt_1","api_version":%q,"type":"account.updated","data":{"object":{}}}`, stripe.APIVersion))
	if _, err := ConstructEvent(payload, signedPayload(t, payload, "whsec_other"), "whsec_test"); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if _, err := ConstructEvent(payload, "", "whsec_test"); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for missing header, got %v", err)
	}
}

func TestConstructEventOlderAPIVersion(t *testing.T) {
	payload := []byte(`{
		"id": "evt_2",
		"object": "event",
		"api_version": "2019-02-19",
		"type": "account.updated",
		"data": {"object": {"id": "acct_2", "object": "account", "details_submitted": true, "payouts_enabled": true, "requirements": {}}}
	}`)
	ev, err := ConstructEvent(payload, signedPayload(t, payload, "whsec_test"), "whsec_test")
	if err != nil {
		t.Fatalf("ConstructEvent: %v", err)
	}
	if !ev.VersionMismatch || ev.APIVersion != "2019-02-19" {
		t.Fatalf("expected version mismatch flagged, got %+v", ev)
	}
	if ev.Account == nil || ev.Account.ID != "acct_2" || !ev.Account.Verified() {
		t.Fatalf("unexpected account %+v", ev.Account)
	}
}

func TestConstructEventMalformedAccount(t *testing.T) {
	payload := []byte(fmt.Sprintf(`{"id":"evt_3","api_version":%q,"type":"account.updated","data":{"object":{"id":"acct_3","details_submitted":"yes"}}}`, stripe.APIVersion))
	ev, err := ConstructEvent(payload, signedPayload(t, payload, "whsec_test"), "whsec_test")
	if !errors.Is(err, ErrMalformedEvent) {
		t.Fatalf("expected ErrMalformedEvent, got %v", err)
	}
	if errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("decode error reported as signature error: %v", err)
	}
	if ev == nil || ev.Type != EventAccountUpdated {
		t.Fatalf("expected event envelope, got %+v", ev)
	}
}
