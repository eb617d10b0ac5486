package models

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidProfile = errors.New("invalid profile")

type Address struct {
	Line1      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// ProfileDetails is implemented by IndividualProfile and CompanyProfile only.
type ProfileDetails interface {
	pilotType() PilotType
}

type IndividualProfile struct {
	FirstName string
	LastName  string
}

func (IndividualProfile) pilotType() PilotType { return PilotIndividual }

type CompanyProfile struct {
	BusinessName string
}

func (CompanyProfile) pilotType() PilotType { return PilotCompany }

// Profile is the onboarding data for either kind of pilot.
type Profile struct {
	Details ProfileDetails
	Address Address
}

func (p Profile) Type() PilotType {
	if p.Details == nil {
		return ""
	}
	return p.Details.pilotType()
}

// ProfileFields is the raw form input for the profile step.
type ProfileFields struct {
	FirstName    string
	LastName     string
	BusinessName string
	Address      Address
}

// NewProfile validates the fields required by typ and returns the variant.
func NewProfile(typ PilotType, f ProfileFields) (Profile, error) {
	addr := f.Address
	addr.Line1 = strings.TrimSpace(addr.Line1)
	addr.City = strings.TrimSpace(addr.City)
	addr.State = strings.TrimSpace(addr.State)
	addr.PostalCode = strings.TrimSpace(addr.PostalCode)
	addr.Country = strings.ToUpper(strings.TrimSpace(addr.Country))
	if addr.Country == "" {
		addr.Country = DefaultCountry
	}

	switch typ {
	case PilotIndividual:
		first, last := strings.TrimSpace(f.FirstName), strings.TrimSpace(f.LastName)
		if first == "" || last == "" {
			return Profile{}, fmt.Errorf("%w: first and last name are required", ErrInvalidProfile)
		}
		return Profile{Details: IndividualProfile{FirstName: first, LastName: last}, Address: addr}, nil
	case PilotCompany:
		name := strings.TrimSpace(f.BusinessName)
		if name == "" {
			return Profile{}, fmt.Errorf("%w: business name is required", ErrInvalidProfile)
		}
		return Profile{Details: CompanyProfile{BusinessName: name}, Address: addr}, nil
	default:
		return Profile{}, fmt.Errorf("%w: unknown pilot type %q", ErrInvalidProfile, typ)
	}
}
