package models

import "time"

type Role string

const (
	RolePassenger Role = "passenger"
	RoleDriver    Role = "driver"
)

// Point is a geographic location with a human-readable label.
type Point struct {
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Label string  `json:"label"`
}

type OrderStatus string

const (
	StatusCreated              OrderStatus = "CREATED"
	StatusBroadcast            OrderStatus = "BROADCAST"
	StatusAccepted             OrderStatus = "ACCEPTED"
	StatusArrived              OrderStatus = "ARRIVED"
	StatusStarted              OrderStatus = "STARTED"
	StatusCompleted            OrderStatus = "COMPLETED"
	StatusCancelledByPassenger OrderStatus = "CANCELLED_BY_PASSENGER"
	StatusCancelledByDriver    OrderStatus = "CANCELLED_BY_DRIVER"
	StatusExpired              OrderStatus = "EXPIRED"
)

// Terminal reports whether no further transition is defined out of s.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelledByPassenger, StatusCancelledByDriver, StatusExpired:
		return true
	}
	return false
}

// Assigned reports whether an order in status s must carry a driver id.
func (s OrderStatus) Assigned() bool {
	switch s {
	case StatusAccepted, StatusArrived, StatusStarted, StatusCompleted:
		return true
	}
	return false
}

// Known reports whether s is one of the defined state-machine values.
func (s OrderStatus) Known() bool {
	switch s {
	case StatusCreated, StatusBroadcast, StatusAccepted, StatusArrived,
		StatusStarted, StatusCompleted, StatusCancelledByPassenger,
		StatusCancelledByDriver, StatusExpired:
		return true
	}
	return false
}

// Order is a single ride request from creation to terminal resolution.
// DriverID stays empty until a driver wins the accept race.
type Order struct {
	ID          int64       `json:"id"`
	PassengerID string      `json:"passenger_id"`
	DriverID    string      `json:"driver_id,omitempty"`
	Pickup      Point       `json:"pickup"`
	Dropoff     Point       `json:"dropoff"`
	Status      OrderStatus `json:"status"`
	DistanceKm  float64     `json:"distance_km"`
	Price       float64     `json:"price"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// DriverLocation is one position report from a driver app, published to the
// ingest topic and folded into the candidate index.
type DriverLocation struct {
	ID      string    `json:"id"`
	Lat     float64   `json:"lat"`
	Lon     float64   `json:"lon"`
	Updated time.Time `json:"updated"`
}

// DriverSummary is the driver view shared with a passenger once matched.
type DriverSummary struct {
	ID string `json:"id"`
}
