package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "orders_created_total", Help: "Total orders created"})
	AcceptsTotal       = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "accepts_total", Help: "Accept attempts by outcome"},
		[]string{"result"},
	)
	OrdersExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "orders_expired_total", Help: "Broadcast orders expired by the sweep"})

	EventsDeliveredTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "events_delivered_total", Help: "Domain events delivered to a channel"})
	EventsDroppedTotal   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "events_dropped_total", Help: "Domain events dropped (no channel or send error)"})

	WSConnections    = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_dispatch", Name: "ws_connections", Help: "Open notification channels"})
	DriversAvailable = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_dispatch", Name: "drivers_available", Help: "Drivers currently online and approved"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_dispatch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
