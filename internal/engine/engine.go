package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/example/ride-dispatch/internal/events"
	"github.com/example/ride-dispatch/internal/match"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/pricing"
	"github.com/example/ride-dispatch/internal/storage"
)

// Notifier hands domain events to the notification bus. Delivery is
// best-effort; none of these calls return errors to the engine.
type Notifier interface {
	Notify(identity string, ev events.Event)
	Broadcast(ev events.Event)
	BroadcastTo(driverIDs []string, ev events.Event)
}

// Availability answers the accept guard: is the driver online and approved.
type Availability interface {
	Available(driverID string) (online, approved bool)
}

// CandidateSource supplies driver positions near a pickup point so the
// broadcast can be narrowed to the closest candidates.
type CandidateSource interface {
	Candidates(ctx context.Context, lat, lon, radiusKm float64, limit int) []match.Candidate
}

// Quoter computes the immutable fare stored on the order at creation.
type Quoter interface {
	Quote(distanceKm float64) float64
}

// PaymentHolder places, captures and releases fare holds. Optional; hold
// failures never fail a ride transition.
type PaymentHolder interface {
	Hold(ctx context.Context, amountCents int64, currency, customerID string) (string, error)
	Capture(ctx context.Context, holdID string) error
	Cancel(ctx context.Context, holdID string) error
}

// Engine owns the order state machine. It is the only writer of order
// status: every transition is validated against the table in transitions.go
// and committed as a single conditional store write.
type Engine struct {
	Store      storage.OrderStore
	Bus        Notifier
	Drivers    Availability
	Candidates CandidateSource // optional broadcast narrowing
	Pricing    Quoter
	Payments   PaymentHolder // optional
	Currency   string
	RadiusKm   float64
	TopN       int
	Log        *slog.Logger
	Now        func() time.Time

	mu    sync.Mutex
	holds map[int64]string // order id -> payment hold, process-local
}

// Create validates both points, quotes the fare and persists the order
// already in BROADCAST, firing the offer event. A single insert means no
// half-created order can linger and block the passenger's next request.
func (e *Engine) Create(ctx context.Context, passengerID string, pickup, dropoff models.Point) (*models.Order, error) {
	if passengerID == "" {
		return nil, fmt.Errorf("%w: passenger id required", ErrInvalidInput)
	}
	if err := validatePoint("pickup", pickup); err != nil {
		return nil, err
	}
	if err := validatePoint("dropoff", dropoff); err != nil {
		return nil, err
	}
	existing, err := e.Store.ActiveOrderForPassenger(ctx, passengerID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: passenger already has order %d in %s", ErrNotAvailable, existing.ID, existing.Status)
	}

	dist := match.HaversineKm(pickup.Lat, pickup.Lon, dropoff.Lat, dropoff.Lon)
	o := &models.Order{
		PassengerID: passengerID,
		Pickup:      pickup,
		Dropoff:     dropoff,
		Status:      models.StatusBroadcast,
		DistanceKm:  dist,
		Price:       e.Pricing.Quote(dist),
	}
	if err := e.Store.CreateOrder(ctx, o); err != nil {
		return nil, err
	}
	e.offer(ctx, o)
	observability.OrdersCreatedTotal.Inc()
	e.log().Info("order broadcast", "order_id", o.ID, "passenger_id", passengerID, "distance_km", dist, "price", o.Price)
	return o, nil
}

// offer fans the order out: the proximity-ranked candidate set when an
// index is wired and has anyone nearby, the whole available pool otherwise.
func (e *Engine) offer(ctx context.Context, o *models.Order) {
	ev := events.OrderNew(o)
	if e.Candidates != nil {
		cands := e.Candidates.Candidates(ctx, o.Pickup.Lat, o.Pickup.Lon, e.RadiusKm, e.TopN)
		ranked := match.Rank(o.Pickup.Lat, o.Pickup.Lon, cands, e.RadiusKm, e.TopN)
		if len(ranked) > 0 {
			ids := make([]string, len(ranked))
			for i, c := range ranked {
				ids[i] = c.ID
			}
			e.Bus.BroadcastTo(ids, ev)
			return
		}
	}
	e.Bus.Broadcast(ev)
}

// Accept resolves the accept race. Any number of drivers may call it
// concurrently for the same order; the conditional store write lets exactly
// one through, and the order is re-read to confirm ownership before success
// is reported.
func (e *Engine) Accept(ctx context.Context, orderID int64, driverID string) (*models.Order, error) {
	if driverID == "" {
		return nil, fmt.Errorf("%w: driver id required", ErrInvalidInput)
	}
	online, approved := e.Drivers.Available(driverID)
	if !approved {
		return nil, fmt.Errorf("%w: driver %s", ErrNotApproved, driverID)
	}
	if !online {
		return nil, fmt.Errorf("%w: driver %s", ErrNotOnline, driverID)
	}
	current, err := e.Store.ActiveOrderForDriver(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if current != nil {
		return nil, fmt.Errorf("%w: driver already assigned to order %d", ErrNotAvailable, current.ID)
	}

	won, err := e.Store.AssignDriver(ctx, orderID, driverID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: order %d", ErrNotFound, orderID)
	}
	if err != nil {
		return nil, err
	}
	if !won {
		o, err := e.Store.GetOrder(ctx, orderID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: order %d", ErrNotFound, orderID)
		}
		if err != nil {
			return nil, err
		}
		observability.AcceptsTotal.WithLabelValues("lost").Inc()
		if o.DriverID != "" {
			return nil, fmt.Errorf("%w: order %d", ErrAlreadyTaken, orderID)
		}
		return nil, fmt.Errorf("%w: order %d is %s", ErrNotAvailable, orderID, o.Status)
	}

	// Confirm ownership before replying success.
	o, err := e.Store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.DriverID != driverID {
		observability.AcceptsTotal.WithLabelValues("lost").Inc()
		return nil, fmt.Errorf("%w: order %d", ErrAlreadyTaken, orderID)
	}
	observability.AcceptsTotal.WithLabelValues("won").Inc()
	e.Bus.Notify(o.PassengerID, events.OrderAccepted(o))
	e.holdPayment(ctx, o)
	e.log().Info("order accepted", "order_id", o.ID, "driver_id", driverID)
	return o, nil
}

// UpdateStatus applies a driver-requested transition (ARRIVED, STARTED,
// COMPLETED, CANCELLED_BY_DRIVER). The caller must be the assigned driver.
func (e *Engine) UpdateStatus(ctx context.Context, orderID int64, driverID string, target models.OrderStatus) (*models.Order, error) {
	if !target.Known() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, target)
	}
	o, err := e.Store.GetOrder(ctx, orderID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: order %d", ErrNotFound, orderID)
	}
	if err != nil {
		return nil, err
	}
	if o.Status.Terminal() {
		return nil, fmt.Errorf("%w: order %d is %s", ErrNotActive, orderID, o.Status)
	}
	if o.DriverID != driverID {
		return nil, fmt.Errorf("%w: order %d is not assigned to driver %s", ErrForbidden, orderID, driverID)
	}
	if !allowed(o.Status, target, models.RoleDriver) {
		return nil, fmt.Errorf("%w: no transition %s -> %s", ErrNotAvailable, o.Status, target)
	}
	ok, err := e.Store.UpdateStatus(ctx, orderID, o.Status, target)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, e.raceOutcome(ctx, orderID)
	}
	o.Status = target
	if !target.Assigned() {
		o.DriverID = ""
	}
	o.UpdatedAt = e.now()
	e.Bus.Notify(o.PassengerID, events.OrderStatusChanged(o))
	switch target {
	case models.StatusCompleted:
		e.capturePayment(ctx, o)
	case models.StatusCancelledByDriver:
		e.releasePayment(ctx, o)
	}
	e.log().Info("order status changed", "order_id", o.ID, "status", string(target))
	return o, nil
}

// Cancel is the passenger-side cancellation, legal from any non-terminal
// state. The assigned driver, if any, is notified.
func (e *Engine) Cancel(ctx context.Context, orderID int64, passengerID string) (*models.Order, error) {
	o, err := e.Store.GetOrder(ctx, orderID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: order %d", ErrNotFound, orderID)
	}
	if err != nil {
		return nil, err
	}
	if o.PassengerID != passengerID {
		return nil, fmt.Errorf("%w: order %d does not belong to passenger %s", ErrForbidden, orderID, passengerID)
	}
	if o.Status.Terminal() {
		return nil, fmt.Errorf("%w: order %d is %s", ErrNotActive, orderID, o.Status)
	}
	ok, err := e.Store.UpdateStatus(ctx, orderID, o.Status, models.StatusCancelledByPassenger)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, e.raceOutcome(ctx, orderID)
	}
	assignedDriver := o.DriverID
	o.Status = models.StatusCancelledByPassenger
	o.DriverID = ""
	o.UpdatedAt = e.now()
	if assignedDriver != "" {
		e.Bus.Notify(assignedDriver, events.OrderStatusChanged(o))
	}
	e.releasePayment(ctx, o)
	e.log().Info("order cancelled by passenger", "order_id", o.ID)
	return o, nil
}

// Active returns the identity's current non-terminal order, or nil.
func (e *Engine) Active(ctx context.Context, identity string, role models.Role) (*models.Order, error) {
	switch role {
	case models.RolePassenger:
		return e.Store.ActiveOrderForPassenger(ctx, identity)
	case models.RoleDriver:
		return e.Store.ActiveOrderForDriver(ctx, identity)
	}
	return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
}

// ExpireOverdue moves every BROADCAST order older than ttl to EXPIRED and
// notifies the passengers. Returns the number of orders expired.
func (e *Engine) ExpireOverdue(ctx context.Context, ttl time.Duration) (int, error) {
	expired, err := e.Store.ExpireBroadcastBefore(ctx, e.now().Add(-ttl))
	if err != nil {
		return 0, err
	}
	for _, o := range expired {
		observability.OrdersExpiredTotal.Inc()
		e.Bus.Notify(o.PassengerID, events.OrderStatusChanged(o))
	}
	if len(expired) > 0 {
		e.log().Info("expired overdue broadcasts", "count", len(expired))
	}
	return len(expired), nil
}

// raceOutcome classifies a failed conditional write: the order moved under
// us, so report what it moved to.
func (e *Engine) raceOutcome(ctx context.Context, orderID int64) error {
	o, err := e.Store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if o.Status.Terminal() {
		return fmt.Errorf("%w: order %d is %s", ErrNotActive, orderID, o.Status)
	}
	return fmt.Errorf("%w: order %d changed concurrently", ErrNotAvailable, orderID)
}

func (e *Engine) holdPayment(ctx context.Context, o *models.Order) {
	if e.Payments == nil {
		return
	}
	currency := e.Currency
	if currency == "" {
		currency = "usd"
	}
	id, err := e.Payments.Hold(ctx, pricing.Cents(o.Price), currency, o.PassengerID)
	if err != nil {
		e.log().Warn("payment hold failed", "order_id", o.ID, "error", err)
		return
	}
	e.mu.Lock()
	if e.holds == nil {
		e.holds = make(map[int64]string)
	}
	e.holds[o.ID] = id
	e.mu.Unlock()
}

func (e *Engine) capturePayment(ctx context.Context, o *models.Order) {
	if id, ok := e.takeHold(o.ID); ok {
		if err := e.Payments.Capture(ctx, id); err != nil {
			e.log().Warn("payment capture failed", "order_id", o.ID, "error", err)
		}
	}
}

func (e *Engine) releasePayment(ctx context.Context, o *models.Order) {
	if id, ok := e.takeHold(o.ID); ok {
		if err := e.Payments.Cancel(ctx, id); err != nil {
			e.log().Warn("payment release failed", "order_id", o.ID, "error", err)
		}
	}
}

func (e *Engine) takeHold(orderID int64) (string, bool) {
	if e.Payments == nil {
		return "", false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.holds[orderID]
	if ok {
		delete(e.holds, orderID)
	}
	return id, ok
}

func (e *Engine) log() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.Default()
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func validatePoint(name string, p models.Point) error {
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) || math.IsNaN(p.Lon) || math.IsInf(p.Lon, 0) {
		return fmt.Errorf("%w: %s coordinates must be finite", ErrInvalidInput, name)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: %s latitude must be between -90 and 90", ErrInvalidInput, name)
	}
	if p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("%w: %s longitude must be between -180 and 180", ErrInvalidInput, name)
	}
	if strings.TrimSpace(p.Label) == "" {
		return fmt.Errorf("%w: %s label must not be empty", ErrInvalidInput, name)
	}
	return nil
}
