package models

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// PilotType distinguishes individual pilots from delivery companies.
type PilotType string

const (
	PilotIndividual PilotType = "individual"
	PilotCompany    PilotType = "company"
)

// DefaultCountry is used when the signup form omits a country.
const DefaultCountry = "US"

// RecentRidesWindow bounds the ride history shown on the dashboard.
const RecentRidesWindow = 7 * 24 * time.Hour

var ErrEmptyPassword = errors.New("password is required")

type Pilot struct {
	ID              string    `json:"id"`
	Type            PilotType `json:"type"`
	FirstName       string    `json:"firstName,omitempty"`
	LastName        string    `json:"lastName,omitempty"`
	BusinessName    string    `json:"businessName,omitempty"`
	Address         string    `json:"address,omitempty"`
	City            string    `json:"city,omitempty"`
	State           string    `json:"state,omitempty"`
	PostalCode      string    `json:"postalCode,omitempty"`
	Country         string    `json:"country"`
	Email           string    `json:"email"`
	PasswordHash    string    `json:"-"`
	StripeAccountID string    `json:"stripeAccountId,omitempty"`
	StripeVerified  bool      `json:"stripeVerified"`
	Created         time.Time `json:"created"`
}

// NewPilot builds an account-step pilot with a hashed password.
func NewPilot(email, password string, typ PilotType) (*Pilot, error) {
	p := &Pilot{
		Type:    typ,
		Email:   NormalizeEmail(email),
		Country: DefaultCountry,
		Created: time.Now().UTC(),
	}
	if err := p.SetPassword(password); err != nil {
		return nil, err
	}
	return p, nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SetPassword replaces the stored hash. The plain password is never kept.
func (p *Pilot) SetPassword(password string) error {
	if password == "" {
		return ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	p.PasswordHash = string(hash)
	return nil
}

func (p *Pilot) ValidatePassword(password string) bool {
	if p.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password)) == nil
}

// DisplayName is the business name for companies and the full name otherwise.
func (p *Pilot) DisplayName() string {
	if p.Type == PilotCompany {
		return p.BusinessName
	}
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// ProfileComplete reports whether the profile step of onboarding is done.
func (p *Pilot) ProfileComplete() bool {
	if p.Type == PilotCompany {
		return p.BusinessName != ""
	}
	return p.FirstName != "" && p.LastName != ""
}

// ApplyProfile copies a validated profile onto the pilot.
func (p *Pilot) ApplyProfile(pr Profile) {
	switch v := pr.Details.(type) {
	case IndividualProfile:
		p.Type = PilotIndividual
		p.FirstName = v.FirstName
		p.LastName = v.LastName
	case CompanyProfile:
		p.Type = PilotCompany
		p.BusinessName = v.BusinessName
	}
	p.Address = pr.Address.Line1
	p.City = pr.Address.City
	p.State = pr.Address.State
	p.PostalCode = pr.Address.PostalCode
	p.Country = pr.Address.Country
}

// Profile rebuilds the tagged profile from the stored fields.
func (p *Pilot) Profile() Profile {
	pr := Profile{Address: Address{
		Line1:      p.Address,
		City:       p.City,
		State:      p.State,
		PostalCode: p.PostalCode,
		Country:    p.Country,
	}}
	if p.Type == PilotCompany {
		pr.Details = CompanyProfile{BusinessName: p.BusinessName}
	} else {
		pr.Details = IndividualProfile{FirstName: p.FirstName, LastName: p.LastName}
	}
	return pr
}

// MarkVerified flips the verification flag; it never clears it.
func (p *Pilot) MarkVerified() (changed bool) {
	if p.StripeVerified {
		return false
	}
	p.StripeVerified = true
	return true
}
