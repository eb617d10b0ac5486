package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/example/rocket-deliveries/internal/models"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

var _ Store = (*PostgresStore)(nil)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Migrate applies every embedded migration in lexical order. Statements are
// idempotent so re-running is safe.
func (p *PostgresStore) Migrate(ctx context.Context) ([]string, error) {
	names, err := fs.Glob(migrationFiles, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	for _, name := range names {
		b, err := migrationFiles.ReadFile(name)
		if err != nil {
			return nil, err
		}
		if _, err := p.db.ExecContext(ctx, string(b)); err != nil {
			return nil, fmt.Errorf("migration %s: %w", name, err)
		}
	}
	return names, nil
}

func (p *PostgresStore) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }
func (p *PostgresStore) Close() error                   { return p.db.Close() }

const pilotColumns = `id, type, first_name, last_name, business_name, address, city, state, postal_code,
	country, email, password_hash, stripe_account_id, stripe_verified, created_at`

func scanPilot(row interface{ Scan(...any) error }) (*models.Pilot, error) {
	var pl models.Pilot
	var typ string
	err := row.Scan(&pl.ID, &typ, &pl.FirstName, &pl.LastName, &pl.BusinessName, &pl.Address, &pl.City,
		&pl.State, &pl.PostalCode, &pl.Country, &pl.Email, &pl.PasswordHash, &pl.StripeAccountID,
		&pl.StripeVerified, &pl.Created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	pl.Type = models.PilotType(typ)
	return &pl, nil
}

func (p *PostgresStore) CreatePilot(ctx context.Context, pl *models.Pilot) error {
	if pl.ID == "" {
		pl.ID = uuid.NewString()
	}
	if pl.Created.IsZero() {
		pl.Created = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO pilots(`+pilotColumns+`)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		pl.ID, string(pl.Type), pl.FirstName, pl.LastName, pl.BusinessName, pl.Address, pl.City, pl.State,
		pl.PostalCode, pl.Country, pl.Email, pl.PasswordHash, pl.StripeAccountID, pl.StripeVerified, pl.Created)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("create pilot: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetPilot(ctx context.Context, id string) (*models.Pilot, error) {
	return scanPilot(p.db.QueryRowContext(ctx, `SELECT `+pilotColumns+` FROM pilots WHERE id=$1`, id))
}

func (p *PostgresStore) GetPilotByEmail(ctx context.Context, email string) (*models.Pilot, error) {
	return scanPilot(p.db.QueryRowContext(ctx, `SELECT `+pilotColumns+` FROM pilots WHERE email=$1`, email))
}

func (p *PostgresStore) GetPilotByAccountID(ctx context.Context, accountID string) (*models.Pilot, error) {
	if accountID == "" {
		return nil, ErrNotFound
	}
	return scanPilot(p.db.QueryRowContext(ctx, `SELECT `+pilotColumns+` FROM pilots WHERE stripe_account_id=$1`, accountID))
}

func (p *PostgresStore) UpdatePilot(ctx context.Context, pl *models.Pilot) error {
	res, err := p.db.ExecContext(ctx, `UPDATE pilots SET type=$2, first_name=$3, last_name=$4, business_name=$5,
		address=$6, city=$7, state=$8, postal_code=$9, country=$10, password_hash=$11, stripe_account_id=$12,
		stripe_verified = stripe_verified OR $13 WHERE id=$1`,
		pl.ID, string(pl.Type), pl.FirstName, pl.LastName, pl.BusinessName, pl.Address, pl.City, pl.State,
		pl.PostalCode, pl.Country, pl.PasswordHash, pl.StripeAccountID, pl.StripeVerified)
	return requireAffected(res, err, "update pilot")
}

func (p *PostgresStore) MarkPilotVerified(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE pilots SET stripe_verified=TRUE WHERE id=$1`, id)
	return requireAffected(res, err, "mark pilot verified")
}

func (p *PostgresStore) CreateRide(ctx context.Context, r *models.Ride) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO rides(id, pilot_id, passenger_id, amount, currency, stripe_charge_id, created_at)
		VALUES($1,$2,$3,$4,$5,$6,$7)`, r.ID, r.PilotID, r.PassengerID, r.Amount, r.Currency, r.StripeChargeID, r.Created)
	if err != nil {
		return fmt.Errorf("create ride: %w", err)
	}
	return nil
}

func (p *PostgresStore) SetRideCharge(ctx context.Context, rideID, chargeID string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE rides SET stripe_charge_id=$1 WHERE id=$2`, chargeID, rideID)
	return requireAffected(res, err, "set ride charge")
}

func (p *PostgresStore) ListRecentRides(ctx context.Context, pilotID string, since time.Time) ([]*models.Ride, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT r.id, r.pilot_id, r.passenger_id, r.amount, r.currency, r.stripe_charge_id,
		r.created_at, pa.first_name, pa.last_name, pa.email, pa.created_at
		FROM rides r LEFT JOIN passengers pa ON pa.id = r.passenger_id
		WHERE r.pilot_id=$1 AND r.created_at >= $2 ORDER BY r.created_at DESC`, pilotID, since)
	if err != nil {
		return nil, fmt.Errorf("list rides: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Ride, 0)
	for rows.Next() {
		var r models.Ride
		var first, last, email sql.NullString
		var pCreated sql.NullTime
		if err := rows.Scan(&r.ID, &r.PilotID, &r.PassengerID, &r.Amount, &r.Currency, &r.StripeChargeID,
			&r.Created, &first, &last, &email, &pCreated); err != nil {
			return nil, err
		}
		if first.Valid {
			r.Passenger = &models.Passenger{ID: r.PassengerID, FirstName: first.String, LastName: last.String,
				Email: email.String, Created: pCreated.Time}
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) CreatePassenger(ctx context.Context, pa *models.Passenger) error {
	if pa.ID == "" {
		pa.ID = uuid.NewString()
	}
	if pa.Created.IsZero() {
		pa.Created = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO passengers(id, first_name, last_name, email, created_at) VALUES($1,$2,$3,$4,$5)`,
		pa.ID, pa.FirstName, pa.LastName, pa.Email, pa.Created)
	if err != nil {
		return fmt.Errorf("create passenger: %w", err)
	}
	return nil
}

func (p *PostgresStore) RandomPassenger(ctx context.Context) (*models.Passenger, error) {
	var pa models.Passenger
	err := p.db.QueryRowContext(ctx, `SELECT id, first_name, last_name, email, created_at FROM passengers ORDER BY random() LIMIT 1`).
		Scan(&pa.ID, &pa.FirstName, &pa.LastName, &pa.Email, &pa.Created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pa, nil
}

func (p *PostgresStore) ListPassengers(ctx context.Context) ([]*models.Passenger, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, first_name, last_name, email, created_at FROM passengers ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*models.Passenger, 0)
	for rows.Next() {
		var pa models.Passenger
		if err := rows.Scan(&pa.ID, &pa.FirstName, &pa.LastName, &pa.Email, &pa.Created); err != nil {
			return nil, err
		}
		out = append(out, &pa)
	}
	return out, rows.Err()
}

func (p *PostgresStore) CountPassengers(ctx context.Context) (int64, error) {
	var n int64
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM passengers`).Scan(&n)
	return n, err
}

func (p *PostgresStore) CreateFinancing(ctx context.Context, f *models.Financing) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Status == "" {
		f.Status = models.FinancingUndelivered
	}
	if f.Created.IsZero() {
		f.Created = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO financings(id, pilot_id, status, stripe_financing_id, created_at) VALUES($1,$2,$3,$4,$5)`,
		f.ID, f.PilotID, string(f.Status), f.StripeFinancingID, f.Created)
	if err != nil {
		return fmt.Errorf("create financing: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetFinancing(ctx context.Context, id string) (*models.Financing, error) {
	var f models.Financing
	var status string
	err := p.db.QueryRowContext(ctx, `SELECT id, pilot_id, status, stripe_financing_id, created_at FROM financings WHERE id=$1`, id).
		Scan(&f.ID, &f.PilotID, &status, &f.StripeFinancingID, &f.Created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	f.Status = models.FinancingStatus(status)
	return &f, nil
}

func (p *PostgresStore) ListFinancings(ctx context.Context, pilotID string) ([]*models.Financing, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, pilot_id, status, stripe_financing_id, created_at FROM financings
		WHERE pilot_id=$1 ORDER BY created_at DESC`, pilotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*models.Financing, 0)
	for rows.Next() {
		var f models.Financing
		var status string
		if err := rows.Scan(&f.ID, &f.PilotID, &status, &f.StripeFinancingID, &f.Created); err != nil {
			return nil, err
		}
		f.Status = models.FinancingStatus(status)
		out = append(out, &f)
	}
	return out, rows.Err()
}

func (p *PostgresStore) UpdateFinancingStatus(ctx context.Context, id string, from, to models.FinancingStatus) error {
	res, err := p.db.ExecContext(ctx, `UPDATE financings SET status=$3 WHERE id=$1 AND status=$2`, id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("update financing: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := p.GetFinancing(ctx, id); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

func requireAffected(res sql.Result, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
