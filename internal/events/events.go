package events

import "github.com/example/ride-dispatch/internal/models"

// Kind tags the closed set of frames pushed over a notification channel.
type Kind string

const (
	KindHello          Kind = "hello"
	KindOrderNew       Kind = "order:new"
	KindOrderAccepted  Kind = "order:accepted"
	KindOrderStatus    Kind = "order:status"
	KindDriverApproval Kind = "driver:approval"
	KindError          Kind = "error"
)

// Event is a domain event, immutable once constructed. Unused fields are
// omitted on the wire, so each kind carries exactly its own payload.
type Event struct {
	Type         Kind                  `json:"type"`
	OrderID      int64                 `json:"order_id,omitempty"`
	Status       models.OrderStatus    `json:"status,omitempty"`
	PickupLabel  string                `json:"pickup_label,omitempty"`
	DropoffLabel string                `json:"dropoff_label,omitempty"`
	DistanceKm   float64               `json:"distance_km,omitempty"`
	Price        float64               `json:"price,omitempty"`
	Driver       *models.DriverSummary `json:"driver,omitempty"`
	Identity     string                `json:"identity,omitempty"`
	Role         models.Role           `json:"role,omitempty"`
	Approved     *bool                 `json:"approved,omitempty"`
	Message      string                `json:"message,omitempty"`
}

// Hello is echoed to a client right after its channel is admitted.
func Hello(identity string, role models.Role) Event {
	return Event{Type: KindHello, Identity: identity, Role: role}
}

// OrderNew is broadcast to the available-driver pool when an order reaches
// BROADCAST.
func OrderNew(o *models.Order) Event {
	return Event{
		Type:         KindOrderNew,
		OrderID:      o.ID,
		Status:       o.Status,
		PickupLabel:  o.Pickup.Label,
		DropoffLabel: o.Dropoff.Label,
		DistanceKm:   o.DistanceKm,
		Price:        o.Price,
	}
}

// OrderAccepted is targeted at the passenger once a driver wins the race.
func OrderAccepted(o *models.Order) Event {
	return Event{
		Type:    KindOrderAccepted,
		OrderID: o.ID,
		Status:  o.Status,
		Driver:  &models.DriverSummary{ID: o.DriverID},
	}
}

// OrderStatusChanged is targeted at the counterparty on every later
// transition.
func OrderStatusChanged(o *models.Order) Event {
	return Event{Type: KindOrderStatus, OrderID: o.ID, Status: o.Status}
}

// DriverApproval tells a driver their approval flag changed.
func DriverApproval(driverID string, approved bool) Event {
	return Event{Type: KindDriverApproval, Identity: driverID, Approved: &approved}
}

// Error is sent on a channel that presented a bad or missing credential.
func Error(msg string) Event {
	return Event{Type: KindError, Message: msg}
}
