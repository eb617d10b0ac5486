package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

type Type string

const (
	PilotSignedUp    Type = "pilot.signed_up"
	PilotOnboarded   Type = "pilot.onboarded"
	PilotVerified    Type = "pilot.verified"
	RideCharged      Type = "ride.charged"
	RideChargeFailed Type = "ride.charge_failed"
	PayoutCreated    Type = "payout.created"
)

// Event is a pilot activity record. Fields other than Type, PilotID and At
// are only set when relevant to the event type.
type Event struct {
	Type      Type      `json:"type"`
	PilotID   string    `json:"pilotId"`
	AccountID string    `json:"accountId,omitempty"`
	RideID    string    `json:"rideId,omitempty"`
	Amount    int64     `json:"amount,omitempty"`
	Currency  string    `json:"currency,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

func New(t Type, pilotID string) Event {
	return Event{Type: t, PilotID: pilotID, At: time.Now().UTC()}
}

func Decode(b []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if e.Type == "" || e.PilotID == "" {
		return Event{}, fmt.Errorf("decode event: missing type or pilot")
	}
	return e, nil
}

// Publisher delivers events best-effort. Callers log failures and move on.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Close() error { return nil }

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types lists the recorded event types in publish order.
func (r *Recorder) Types() []Type {
	evs := r.Events()
	out := make([]Type, 0, len(evs))
	for _, e := range evs {
		out = append(out, e.Type)
	}
	return out
}
