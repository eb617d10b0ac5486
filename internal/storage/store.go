package storage

import (
	"context"
	"errors"
	"time"

	"github.com/example/rocket-deliveries/internal/models"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate key")
	ErrConflict  = errors.New("concurrent modification")
)

// PilotStore defines persistence operations for pilots.
type PilotStore interface {
	CreatePilot(ctx context.Context, p *models.Pilot) error
	GetPilot(ctx context.Context, id string) (*models.Pilot, error)
	GetPilotByEmail(ctx context.Context, email string) (*models.Pilot, error)
	GetPilotByAccountID(ctx context.Context, accountID string) (*models.Pilot, error)
	// UpdatePilot writes profile and account fields. It never clears StripeVerified.
	UpdatePilot(ctx context.Context, p *models.Pilot) error
	MarkPilotVerified(ctx context.Context, id string) error
}

// RideStore defines persistence operations for rides.
type RideStore interface {
	CreateRide(ctx context.Context, r *models.Ride) error
	SetRideCharge(ctx context.Context, rideID, chargeID string) error
	// ListRecentRides returns the pilot's rides created at or after since,
	// newest first, with Passenger resolved where it still exists.
	ListRecentRides(ctx context.Context, pilotID string, since time.Time) ([]*models.Ride, error)
}

type PassengerStore interface {
	CreatePassenger(ctx context.Context, p *models.Passenger) error
	RandomPassenger(ctx context.Context) (*models.Passenger, error)
	ListPassengers(ctx context.Context) ([]*models.Passenger, error)
	CountPassengers(ctx context.Context) (int64, error)
}

type FinancingStore interface {
	CreateFinancing(ctx context.Context, f *models.Financing) error
	GetFinancing(ctx context.Context, id string) (*models.Financing, error)
	ListFinancings(ctx context.Context, pilotID string) ([]*models.Financing, error)
	// UpdateFinancingStatus moves an offer from one status to another and
	// fails with ErrConflict if the stored status is no longer from.
	UpdateFinancingStatus(ctx context.Context, id string, from, to models.FinancingStatus) error
}

// Store bundles every collection the application persists.
type Store interface {
	PilotStore
	RideStore
	PassengerStore
	FinancingStore
	Ping(ctx context.Context) error
	Close() error
}
