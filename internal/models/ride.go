package models

import "time"

const (
	DefaultCurrency = "usd"

	// Bounds for simulated ride amounts, in cents.
	MinRideAmount int64 = 1000
	MaxRideAmount int64 = 10000

	pilotSharePercent = 80
)

type Ride struct {
	ID             string    `json:"id"`
	PilotID        string    `json:"pilot"`
	PassengerID    string    `json:"passenger"`
	Amount         int64     `json:"amount"`
	Currency       string    `json:"currency"`
	StripeChargeID string    `json:"stripeChargeId,omitempty"`
	Created        time.Time `json:"created"`

	// Passenger is resolved on read for display; it is not persisted.
	Passenger *Passenger `json:"passengerDetails,omitempty"`
}

func NewRide(pilotID, passengerID string, amount int64) *Ride {
	return &Ride{
		PilotID:     pilotID,
		PassengerID: passengerID,
		Amount:      amount,
		Currency:    DefaultCurrency,
		Created:     time.Now().UTC(),
	}
}

// AmountForPilot is the pilot's share of the ride: floor(amount * 0.8).
func (r *Ride) AmountForPilot() int64 {
	return r.Amount * pilotSharePercent / 100
}

// PlatformFee is whatever the pilot does not receive.
func (r *Ride) PlatformFee() int64 {
	return r.Amount - r.AmountForPilot()
}

func SumForPilot(rides []*Ride) int64 {
	var total int64
	for _, r := range rides {
		total += r.AmountForPilot()
	}
	return total
}

type Passenger struct {
	ID        string    `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	Created   time.Time `json:"created"`
}

func (p *Passenger) FullName() string {
	return p.FirstName + " " + p.LastName
}
