package models

import (
	"errors"
	"testing"
)

func TestAmountForPilotFloorsEightyPercent(t *testing.T) {
	cases := []struct {
		amount, share, fee int64
	}{
		{1000, 800, 200},
		{1001, 800, 201},
		{1004, 803, 201},
		{9999, 7999, 2000},
		{10000, 8000, 2000},
	}
	for _, c := range cases {
		r := NewRide("p", "x", c.amount)
		if got := r.AmountForPilot(); got != c.share {
			t.Fatalf("amount=%d: expected share %d, got %d", c.amount, c.share, got)
		}
		if got := r.PlatformFee(); got != c.fee {
			t.Fatalf("amount=%d: expected fee %d, got %d", c.amount, c.fee, got)
		}
		if r.AmountForPilot()+r.PlatformFee() != c.amount {
			t.Fatalf("amount=%d: share and fee do not add up", c.amount)
		}
	}
}

func TestSumForPilot(t *testing.T) {
	rides := []*Ride{NewRide("p", "a", 1000), NewRide("p", "b", 2501)}
	if got := SumForPilot(rides); got != 800+2000 {
		t.Fatalf("expected 2800, got %d", got)
	}
}

func TestPilotPasswordIsHashed(t *testing.T) {
	p, err := NewPilot(" Jane@Example.com ", "s3cret-pass", PilotIndividual)
	if err != nil {
		t.Fatalf("new pilot: %v", err)
	}
	if p.PasswordHash == "" || p.PasswordHash == "s3cret-pass" {
		t.Fatalf("password not hashed: %q", p.PasswordHash)
	}
	if p.Email != "jane@example.com" {
		t.Fatalf("email not normalized: %q", p.Email)
	}
	if !p.ValidatePassword("s3cret-pass") {
		t.Fatal("expected password to validate")
	}
	if p.ValidatePassword("wrong") {
		t.Fatal("expected wrong password to fail")
	}
}

func TestNewPilotRejectsEmptyPassword(t *testing.T) {
	if _, err := NewPilot("a@b.co", "", PilotIndividual); !errors.Is(err, ErrEmptyPassword) {
		t.Fatalf("expected ErrEmptyPassword, got %v", err)
	}
}

func TestMarkVerifiedIsMonotonic(t *testing.T) {
	p := &Pilot{}
	if !p.MarkVerified() {
		t.Fatal("first call should change state")
	}
	if p.MarkVerified() {
		t.Fatal("second call should be a no-op")
	}
	if !p.StripeVerified {
		t.Fatal("expected verified")
	}
}

func TestNewProfileVariants(t *testing.T) {
	ind, err := NewProfile(PilotIndividual, ProfileFields{FirstName: " Ada ", LastName: "Lovelace", Address: Address{Country: "gb"}})
	if err != nil {
		t.Fatalf("individual: %v", err)
	}
	if ind.Type() != PilotIndividual {
		t.Fatalf("expected individual, got %s", ind.Type())
	}
	if d := ind.Details.(IndividualProfile); d.FirstName != "Ada" {
		t.Fatalf("expected trimmed first name, got %q", d.FirstName)
	}
	if ind.Address.Country != "GB" {
		t.Fatalf("expected upper-cased country, got %q", ind.Address.Country)
	}

	co, err := NewProfile(PilotCompany, ProfileFields{BusinessName: "Rocket Co"})
	if err != nil {
		t.Fatalf("company: %v", err)
	}
	if co.Type() != PilotCompany || co.Address.Country != DefaultCountry {
		t.Fatalf("unexpected company profile: %+v", co)
	}

	if _, err := NewProfile(PilotIndividual, ProfileFields{FirstName: "Ada"}); !errors.Is(err, ErrInvalidProfile) {
		t.Fatalf("expected ErrInvalidProfile for missing last name, got %v", err)
	}
	if _, err := NewProfile(PilotCompany, ProfileFields{FirstName: "Ada", LastName: "L"}); !errors.Is(err, ErrInvalidProfile) {
		t.Fatalf("expected ErrInvalidProfile for missing business name, got %v", err)
	}
	if _, err := NewProfile("robot", ProfileFields{}); !errors.Is(err, ErrInvalidProfile) {
		t.Fatalf("expected ErrInvalidProfile for unknown type, got %v", err)
	}
}

func TestApplyProfileRoundTrip(t *testing.T) {
	pr, err := NewProfile(PilotCompany, ProfileFields{BusinessName: "Rocket Co", Address: Address{Line1: "1 Main St", City: "SF"}})
	if err != nil {
		t.Fatal(err)
	}
	p := &Pilot{Type: PilotIndividual}
	p.ApplyProfile(pr)
	if p.Type != PilotCompany || !p.ProfileComplete() || p.DisplayName() != "Rocket Co" {
		t.Fatalf("profile not applied: %+v", p)
	}
	back := p.Profile()
	if back.Type() != PilotCompany || back.Address.City != "SF" {
		t.Fatalf("unexpected rebuilt profile: %+v", back)
	}
}

func TestFinancingTransitions(t *testing.T) {
	f := &Financing{Status: FinancingUndelivered}
	for _, to := range []FinancingStatus{FinancingDelivered, FinancingAccepted, FinancingCompleted} {
		if err := f.Advance(to); err != nil {
			t.Fatalf("advance to %s: %v", to, err)
		}
	}
	if err := f.Advance(FinancingExpired); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("completed offers cannot expire, got %v", err)
	}

	g := &Financing{Status: FinancingDelivered}
	if err := g.Advance(FinancingUndelivered); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("backwards transition should fail, got %v", err)
	}
	if err := g.Advance(FinancingCompleted); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("skipping a step should fail, got %v", err)
	}
	if err := g.Advance(FinancingExpired); err != nil {
		t.Fatalf("expiry from open state: %v", err)
	}
	if g.Status.CanTransition(FinancingDelivered) {
		t.Fatal("expired is terminal")
	}
}
