package storage

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/rocket-deliveries/internal/models"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps everything in process memory. Records are copied on the
// way in and out so callers cannot mutate stored state.
type MemoryStore struct {
	mu         sync.RWMutex
	pilots     map[string]*models.Pilot
	rides      map[string]*models.Ride
	passengers map[string]*models.Passenger
	financings map[string]*models.Financing
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pilots:     make(map[string]*models.Pilot),
		rides:      make(map[string]*models.Ride),
		passengers: make(map[string]*models.Passenger),
		financings: make(map[string]*models.Financing),
	}
}

func (m *MemoryStore) Ping(context.Context) error { return nil }
func (m *MemoryStore) Close() error               { return nil }

func (m *MemoryStore) CreatePilot(_ context.Context, p *models.Pilot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.pilots {
		if existing.Email == p.Email {
			return ErrDuplicate
		}
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Created.IsZero() {
		p.Created = time.Now().UTC()
	}
	cp := *p
	m.pilots[p.ID] = &cp
	return nil
}

func (m *MemoryStore) GetPilot(_ context.Context, id string) (*models.Pilot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pilots[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) GetPilotByEmail(_ context.Context, email string) (*models.Pilot, error) {
	return m.findPilot(func(p *models.Pilot) bool { return p.Email == email })
}

func (m *MemoryStore) GetPilotByAccountID(_ context.Context, accountID string) (*models.Pilot, error) {
	if accountID == "" {
		return nil, ErrNotFound
	}
	return m.findPilot(func(p *models.Pilot) bool { return p.StripeAccountID == accountID })
}

func (m *MemoryStore) findPilot(match func(*models.Pilot) bool) (*models.Pilot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.pilots {
		if match(p) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) UpdatePilot(_ context.Context, p *models.Pilot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.pilots[p.ID]
	if !ok {
		return ErrNotFound
	}
	cp := *p
	cp.StripeVerified = existing.StripeVerified || p.StripeVerified
	m.pilots[p.ID] = &cp
	return nil
}

func (m *MemoryStore) MarkPilotVerified(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pilots[id]
	if !ok {
		return ErrNotFound
	}
	p.StripeVerified = true
	return nil
}

func (m *MemoryStore) CreateRide(_ context.Context, r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	cp := *r
	cp.Passenger = nil
	m.rides[r.ID] = &cp
	return nil
}

func (m *MemoryStore) SetRideCharge(_ context.Context, rideID, chargeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return ErrNotFound
	}
	r.StripeChargeID = chargeID
	return nil
}

func (m *MemoryStore) GetRide(id string) (*models.Ride, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, false
	}
	cp := *r
	return &cp, true
}

func (m *MemoryStore) ListRecentRides(_ context.Context, pilotID string, since time.Time) ([]*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Ride, 0)
	for _, r := range m.rides {
		if r.PilotID != pilotID || r.Created.Before(since) {
			continue
		}
		cp := *r
		if pa, ok := m.passengers[r.PassengerID]; ok {
			pc := *pa
			cp.Passenger = &pc
		}
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.After(out[j].Created) })
	return out, nil
}

func (m *MemoryStore) CreatePassenger(_ context.Context, p *models.Passenger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Created.IsZero() {
		p.Created = time.Now().UTC()
	}
	cp := *p
	m.passengers[p.ID] = &cp
	return nil
}

func (m *MemoryStore) RandomPassenger(_ context.Context) (*models.Passenger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.passengers) == 0 {
		return nil, ErrNotFound
	}
	n := rand.Intn(len(m.passengers))
	for _, p := range m.passengers {
		if n == 0 {
			cp := *p
			return &cp, nil
		}
		n--
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListPassengers(_ context.Context) ([]*models.Passenger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Passenger, 0, len(m.passengers))
	for _, p := range m.passengers {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out, nil
}

func (m *MemoryStore) CountPassengers(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.passengers)), nil
}

func (m *MemoryStore) CreateFinancing(_ context.Context, f *models.Financing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Status == "" {
		f.Status = models.FinancingUndelivered
	}
	if f.Created.IsZero() {
		f.Created = time.Now().UTC()
	}
	cp := *f
	m.financings[f.ID] = &cp
	return nil
}

func (m *MemoryStore) GetFinancing(_ context.Context, id string) (*models.Financing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.financings[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (m *MemoryStore) ListFinancings(_ context.Context, pilotID string) ([]*models.Financing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Financing, 0)
	for _, f := range m.financings {
		if f.PilotID == pilotID {
			cp := *f
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.After(out[j].Created) })
	return out, nil
}

func (m *MemoryStore) UpdateFinancingStatus(_ context.Context, id string, from, to models.FinancingStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.financings[id]
	if !ok {
		return ErrNotFound
	}
	if f.Status != from {
		return ErrConflict
	}
	f.Status = to
	return nil
}
