// Package monitoring defines the Prometheus collectors shared by all
// services.  Collectors are registered via promauto at init time; the
// reservations service exposes them on /metrics.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SeatClaimsTotal counts seat claim attempts by outcome ("held" or
	// "conflict").
	SeatClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seat_claims_total",
			Help: "Seat claim attempts by outcome",
		},
		[]string{"outcome"},
	)

	// SeatsReleasedTotal counts seats returned to AVAILABLE by reason
	// ("manual", "expired", "timer").
	SeatsReleasedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seats_released_total",
			Help: "Seats released back to available, by reason",
		},
		[]string{"reason"},
	)

	// ReservationsConfirmedTotal counts successfully confirmed reservations.
	ReservationsConfirmedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reservations_confirmed_total",
			Help: "Reservations that reached CONFIRMED",
		},
	)

	// DBFailoversTotal counts failover cycles per logical store.
	DBFailoversTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_failovers_total",
			Help: "Database failover cycles per store",
		},
		[]string{"store"},
	)

	// DBFailuresTotal counts exhausted failover cycles (no reachable node).
	DBFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_failures_total",
			Help: "Failover cycles that found no reachable node, per store",
		},
		[]string{"store"},
	)

	// EventsPublishedTotal counts domain events published per queue and
	// status ("ok" or "error").
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Domain events published to the broker",
		},
		[]string{"queue", "status"},
	)

	// EventsConsumedTotal counts domain events consumed per queue and
	// status ("ok" or "error").
	EventsConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_consumed_total",
			Help: "Domain events consumed from the broker",
		},
		[]string{"queue", "status"},
	)

	// BroadcastSubscribers tracks currently-subscribed realtime connections.
	BroadcastSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broadcast_subscribers",
			Help: "Currently subscribed seat-map connections",
		},
	)
)
