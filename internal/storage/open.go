package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/rocket-deliveries/internal/models"
)

const (
	BackendMemory   = "memory"
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
)

// BackendFor maps a connection URI to the store implementation serving it.
func BackendFor(uri string) (string, error) {
	switch {
	case uri == "" || uri == BackendMemory:
		return BackendMemory, nil
	case strings.HasPrefix(uri, "mongodb://"), strings.HasPrefix(uri, "mongodb+srv://"):
		return BackendMongo, nil
	case strings.HasPrefix(uri, "postgres://"), strings.HasPrefix(uri, "postgresql://"):
		return BackendPostgres, nil
	default:
		return "", fmt.Errorf("unsupported database uri scheme: %q", uri)
	}
}

// Open connects to the backend named by uri. Postgres migrations run when
// migrate is set; Mongo indexes are always ensured.
func Open(ctx context.Context, uri string, migrate bool) (Store, error) {
	backend, err := BackendFor(uri)
	if err != nil {
		return nil, err
	}
	switch backend {
	case BackendMongo:
		return NewMongoStore(ctx, uri)
	case BackendPostgres:
		ps, err := NewPostgresStore(ctx, uri)
		if err != nil {
			return nil, err
		}
		if migrate {
			if _, err := ps.Migrate(ctx); err != nil {
				_ = ps.Close()
				return nil, err
			}
		}
		return ps, nil
	default:
		return NewMemoryStore(), nil
	}
}

var seedPassengers = []models.Passenger{
	{FirstName: "Kathleen", LastName: "Banks", Email: "kathleen@example.com"},
	{FirstName: "Gavin", LastName: "Cruz", Email: "gavin@example.com"},
	{FirstName: "Ruth", LastName: "Hernandez", Email: "ruth@example.com"},
	{FirstName: "Jeremy", LastName: "Rogers", Email: "jeremy@example.com"},
	{FirstName: "Marie", LastName: "Tanaka", Email: "marie@example.com"},
	{FirstName: "Adrian", LastName: "Okafor", Email: "adrian@example.com"},
}

// SeedPassengers fills an empty passengers collection so rides can be
// simulated. It returns how many passengers were inserted.
func SeedPassengers(ctx context.Context, s PassengerStore) (int, error) {
	n, err := s.CountPassengers(ctx)
	if err != nil {
		return 0, fmt.Errorf("count passengers: %w", err)
	}
	if n > 0 {
		return 0, nil
	}
	for i := range seedPassengers {
		p := seedPassengers[i]
		if err := s.CreatePassenger(ctx, &p); err != nil {
			return i, err
		}
	}
	return len(seedPassengers), nil
}
