package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raffle_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "code", "method"},
	)

	TicketsAllocated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raffle_tickets_allocated_total",
			Help: "Tickets allocated, by initial status",
		},
		[]string{"status"},
	)

	AllocationConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "raffle_allocation_conflicts_total",
			Help: "Purchase attempts rejected because numbers were taken",
		},
	)

	ReservationsReleased = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "raffle_reservations_released_total",
			Help: "Expired reservations released back to the pool",
		},
	)

	DrawsCommitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "raffle_draws_committed_total",
			Help: "Draws committed exactly once per raffle",
		},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "raffle_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "raffle_outbox_lag_seconds",
			Help: "Age of the oldest unpublished outbox record",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "raffle_rate_limit_exceeded_total",
			Help: "Requests rejected by the rate limiter",
		},
	)
)
