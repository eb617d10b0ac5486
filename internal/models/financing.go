package models

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidTransition = errors.New("invalid financing status transition")

type FinancingStatus string

const (
	FinancingUndelivered FinancingStatus = "undelivered"
	FinancingDelivered   FinancingStatus = "delivered"
	FinancingAccepted    FinancingStatus = "accepted"
	FinancingCompleted   FinancingStatus = "completed"
	FinancingExpired     FinancingStatus = "expired"
)

var financingNext = map[FinancingStatus]FinancingStatus{
	FinancingUndelivered: FinancingDelivered,
	FinancingDelivered:   FinancingAccepted,
	FinancingAccepted:    FinancingCompleted,
}

func (s FinancingStatus) Terminal() bool {
	return s == FinancingCompleted || s == FinancingExpired
}

func (s FinancingStatus) Valid() bool {
	switch s {
	case FinancingUndelivered, FinancingDelivered, FinancingAccepted, FinancingCompleted, FinancingExpired:
		return true
	}
	return false
}

// CanTransition allows one step forward, or expiry from any open state.
func (s FinancingStatus) CanTransition(to FinancingStatus) bool {
	if s.Terminal() {
		return false
	}
	if to == FinancingExpired {
		return true
	}
	return financingNext[s] == to
}

// Financing is a cash-advance offer made to a pilot by the payments platform.
type Financing struct {
	ID                string          `json:"id"`
	PilotID           string          `json:"pilot"`
	Status            FinancingStatus `json:"status"`
	StripeFinancingID string          `json:"stripeFinancingId,omitempty"`
	Created           time.Time       `json:"created"`
}

func (f *Financing) Advance(to FinancingStatus) error {
	if !f.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, f.Status, to)
	}
	f.Status = to
	return nil
}
