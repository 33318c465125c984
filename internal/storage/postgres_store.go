package storage

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/ride-dispatch/internal/models"
)

// PostgresStore persists orders in a single table. Status writes are plain
// UPDATE ... WHERE status = $expected statements; RowsAffected carries the
// race verdict back to the engine.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

const orderColumns = `id, passenger_id, COALESCE(driver_id, ''), pickup_lat, pickup_lon, pickup_label,
	dropoff_lat, dropoff_lon, dropoff_label, status, distance_km, price, created_at, updated_at`

func (p *PostgresStore) CreateOrder(ctx context.Context, o *models.Order) error {
	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now
	return p.db.QueryRowContext(ctx, `
		INSERT INTO orders(passenger_id, pickup_lat, pickup_lon, pickup_label,
			dropoff_lat, dropoff_lon, dropoff_label, status, distance_km, price, created_at, updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING id`,
		o.PassengerID, o.Pickup.Lat, o.Pickup.Lon, o.Pickup.Label,
		o.Dropoff.Lat, o.Dropoff.Lon, o.Dropoff.Label, o.Status, o.DistanceKm, o.Price, o.CreatedAt, o.UpdatedAt,
	).Scan(&o.ID)
}

func (p *PostgresStore) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return scanOrder(row)
}

func (p *PostgresStore) ActiveOrderForPassenger(ctx context.Context, passengerID string) (*models.Order, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE passenger_id = $1 AND status NOT IN ('COMPLETED','CANCELLED_BY_PASSENGER','CANCELLED_BY_DRIVER','EXPIRED')
		ORDER BY id DESC LIMIT 1`, passengerID)
	o, err := scanOrder(row)
	if err == ErrNotFound {
		return nil, nil
	}
	return o, err
}

func (p *PostgresStore) ActiveOrderForDriver(ctx context.Context, driverID string) (*models.Order, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE driver_id = $1 AND status NOT IN ('COMPLETED','CANCELLED_BY_PASSENGER','CANCELLED_BY_DRIVER','EXPIRED')
		ORDER BY id DESC LIMIT 1`, driverID)
	o, err := scanOrder(row)
	if err == ErrNotFound {
		return nil, nil
	}
	return o, err
}

func (p *PostgresStore) UpdateStatus(ctx context.Context, id int64, from, to models.OrderStatus) (bool, error) {
	// driver_id is set exactly in the assigned statuses
	query := `UPDATE orders SET status = $1, updated_at = now() WHERE id = $2 AND status = $3`
	if !to.Assigned() {
		query = `UPDATE orders SET status = $1, driver_id = NULL, updated_at = now() WHERE id = $2 AND status = $3`
	}
	res, err := p.db.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (p *PostgresStore) AssignDriver(ctx context.Context, id int64, driverID string) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE orders SET driver_id = $1, status = 'ACCEPTED', updated_at = now()
		WHERE id = $2 AND status = 'BROADCAST' AND driver_id IS NULL`,
		driverID, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (p *PostgresStore) ExpireBroadcastBefore(ctx context.Context, cutoff time.Time) ([]*models.Order, error) {
	rows, err := p.db.QueryContext(ctx, `
		UPDATE orders SET status = 'EXPIRED', updated_at = now()
		WHERE status = 'BROADCAST' AND created_at < $1
		RETURNING `+orderColumns, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	err := row.Scan(&o.ID, &o.PassengerID, &o.DriverID,
		&o.Pickup.Lat, &o.Pickup.Lon, &o.Pickup.Label,
		&o.Dropoff.Lat, &o.Dropoff.Lon, &o.Dropoff.Label,
		&o.Status, &o.DistanceKm, &o.Price, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}
