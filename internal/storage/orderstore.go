package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

// ErrNotFound is returned when an order id is unknown to the store.
var ErrNotFound = errors.New("order not found")

// OrderStore is the durable record of orders. Every status mutation is a
// single conditional operation: the write carries its expected from-state
// and reports whether it took effect, so the accept race and all later
// transitions resolve inside the store rather than in a read-then-write gap.
type OrderStore interface {
	// CreateOrder persists o, assigning its id and timestamps.
	CreateOrder(ctx context.Context, o *models.Order) error
	GetOrder(ctx context.Context, id int64) (*models.Order, error)

	// ActiveOrderForPassenger and ActiveOrderForDriver return the identity's
	// current non-terminal order, or (nil, nil) when there is none.
	ActiveOrderForPassenger(ctx context.Context, passengerID string) (*models.Order, error)
	ActiveOrderForDriver(ctx context.Context, driverID string) (*models.Order, error)

	// UpdateStatus moves the order from exactly `from` to `to`. It returns
	// false with no error when the order is no longer in `from`.
	UpdateStatus(ctx context.Context, id int64, from, to models.OrderStatus) (bool, error)

	// AssignDriver is the accept race write: set the driver and ACCEPTED
	// status only while the order is still unassigned in BROADCAST. False
	// means another driver already won.
	AssignDriver(ctx context.Context, id int64, driverID string) (bool, error)

	// ExpireBroadcastBefore moves every BROADCAST order created before the
	// cutoff to EXPIRED and returns the affected orders.
	ExpireBroadcastBefore(ctx context.Context, cutoff time.Time) ([]*models.Order, error)
}

// MemoryStore is an in-process OrderStore used in tests and for running the
// server without Postgres. All conditional writes happen under one mutex so
// the single-acceptance contract holds.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	orders map[int64]*models.Order
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[int64]*models.Order), now: time.Now}
}

func (m *MemoryStore) CreateOrder(_ context.Context, o *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	o.ID = m.nextID
	now := m.now()
	o.CreatedAt = now
	o.UpdatedAt = now
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *MemoryStore) GetOrder(_ context.Context, id int64) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *MemoryStore) ActiveOrderForPassenger(_ context.Context, passengerID string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeWhere(func(o *models.Order) bool { return o.PassengerID == passengerID }), nil
}

func (m *MemoryStore) ActiveOrderForDriver(_ context.Context, driverID string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeWhere(func(o *models.Order) bool { return o.DriverID == driverID && driverID != "" }), nil
}

func (m *MemoryStore) activeWhere(match func(*models.Order) bool) *models.Order {
	var best *models.Order
	for _, o := range m.orders {
		if o.Status.Terminal() || !match(o) {
			continue
		}
		if best == nil || o.ID > best.ID {
			best = o
		}
	}
	if best == nil {
		return nil
	}
	cp := *best
	return &cp
}

func (m *MemoryStore) UpdateStatus(_ context.Context, id int64, from, to models.OrderStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return false, ErrNotFound
	}
	if o.Status != from {
		return false, nil
	}
	o.Status = to
	// driver_id is set exactly in the assigned statuses
	if !to.Assigned() {
		o.DriverID = ""
	}
	o.UpdatedAt = m.now()
	return true, nil
}

func (m *MemoryStore) AssignDriver(_ context.Context, id int64, driverID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return false, ErrNotFound
	}
	if o.Status != models.StatusBroadcast || o.DriverID != "" {
		return false, nil
	}
	o.DriverID = driverID
	o.Status = models.StatusAccepted
	o.UpdatedAt = m.now()
	return true, nil
}

func (m *MemoryStore) ExpireBroadcastBefore(_ context.Context, cutoff time.Time) ([]*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Order
	for _, o := range m.orders {
		if o.Status != models.StatusBroadcast || !o.CreatedAt.Before(cutoff) {
			continue
		}
		o.Status = models.StatusExpired
		o.UpdatedAt = m.now()
		cp := *o
		out = append(out, &cp)
	}
	return out, nil
}
