package storage

import (
	"context"
	"testing"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

func newOrder(passenger string) *models.Order {
	return &models.Order{
		PassengerID: passenger,
		Pickup:      models.Point{Lat: 40.40, Lon: 49.85, Label: "A"},
		Dropoff:     models.Point{Lat: 40.38, Lon: 49.90, Label: "B"},
		Status:      models.StatusBroadcast,
		DistanceKm:  4.8,
		Price:       5.40,
	}
}

func TestMemoryStoreAssignDriverOnce(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	o := newOrder("p1")
	if err := m.CreateOrder(ctx, o); err != nil {
		t.Fatal(err)
	}
	won, err := m.AssignDriver(ctx, o.ID, "d1")
	if err != nil || !won {
		t.Fatalf("first assign should win: won=%v err=%v", won, err)
	}
	won, err = m.AssignDriver(ctx, o.ID, "d2")
	if err != nil || won {
		t.Fatalf("second assign must lose: won=%v err=%v", won, err)
	}
	got, err := m.GetOrder(ctx, o.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.DriverID != "d1" || got.Status != models.StatusAccepted {
		t.Fatalf("unexpected order after race: %+v", got)
	}
}

func TestMemoryStoreConditionalUpdate(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	o := newOrder("p1")
	if err := m.CreateOrder(ctx, o); err != nil {
		t.Fatal(err)
	}
	ok, err := m.UpdateStatus(ctx, o.ID, models.StatusAccepted, models.StatusArrived)
	if err != nil || ok {
		t.Fatalf("update from wrong from-state must be a no-op: ok=%v err=%v", ok, err)
	}
	ok, err = m.UpdateStatus(ctx, o.ID, models.StatusBroadcast, models.StatusCancelledByPassenger)
	if err != nil || !ok {
		t.Fatalf("matching from-state must apply: ok=%v err=%v", ok, err)
	}
	got, _ := m.GetOrder(ctx, o.ID)
	if got.Status != models.StatusCancelledByPassenger {
		t.Fatalf("expected terminal status, got %s", got.Status)
	}
}

func TestMemoryStoreCancelClearsDriver(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	o := newOrder("p1")
	if err := m.CreateOrder(ctx, o); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AssignDriver(ctx, o.ID, "d1"); err != nil {
		t.Fatal(err)
	}
	ok, err := m.UpdateStatus(ctx, o.ID, models.StatusAccepted, models.StatusCancelledByDriver)
	if err != nil || !ok {
		t.Fatalf("cancel write must apply: ok=%v err=%v", ok, err)
	}
	got, _ := m.GetOrder(ctx, o.ID)
	if got.Status != models.StatusCancelledByDriver || got.DriverID != "" {
		t.Fatalf("cancelled order must not keep its driver: %+v", got)
	}
}

func TestMemoryStoreUnknownOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	if _, err := m.GetOrder(ctx, 42); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := m.AssignDriver(ctx, 42, "d1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreActiveLookups(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	first := newOrder("p1")
	if err := m.CreateOrder(ctx, first); err != nil {
		t.Fatal(err)
	}
	if _, err := m.UpdateStatus(ctx, first.ID, models.StatusBroadcast, models.StatusCancelledByPassenger); err != nil {
		t.Fatal(err)
	}
	second := newOrder("p1")
	if err := m.CreateOrder(ctx, second); err != nil {
		t.Fatal(err)
	}

	got, err := m.ActiveOrderForPassenger(ctx, "p1")
	if err != nil || got == nil || got.ID != second.ID {
		t.Fatalf("expected latest non-terminal order, got %+v err=%v", got, err)
	}
	if got, _ := m.ActiveOrderForPassenger(ctx, "p2"); got != nil {
		t.Fatalf("expected no active order for p2, got %+v", got)
	}

	if _, err := m.AssignDriver(ctx, second.ID, "d1"); err != nil {
		t.Fatal(err)
	}
	got, err = m.ActiveOrderForDriver(ctx, "d1")
	if err != nil || got == nil || got.ID != second.ID {
		t.Fatalf("expected active order for d1, got %+v err=%v", got, err)
	}
	if got, _ := m.ActiveOrderForDriver(ctx, ""); got != nil {
		t.Fatal("empty driver id must never match an order")
	}
}

func TestMemoryStoreExpireBroadcastBefore(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	o := newOrder("p1")
	if err := m.CreateOrder(ctx, o); err != nil {
		t.Fatal(err)
	}
	expired, err := m.ExpireBroadcastBefore(ctx, time.Now().Add(time.Minute))
	if err != nil || len(expired) != 1 {
		t.Fatalf("expected one expired order, got %d err=%v", len(expired), err)
	}
	if expired[0].Status != models.StatusExpired {
		t.Fatalf("expected EXPIRED, got %s", expired[0].Status)
	}
	// Already terminal: a second sweep finds nothing.
	expired, err = m.ExpireBroadcastBefore(ctx, time.Now().Add(time.Minute))
	if err != nil || len(expired) != 0 {
		t.Fatalf("expected empty sweep, got %d err=%v", len(expired), err)
	}
}
