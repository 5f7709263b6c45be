// internal/platform/metrics/metrics.go
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RentalsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamerent_rentals_created_total",
			Help: "Rentals created, by rental kind",
		},
		[]string{"kind"},
	)

	RentalsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamerent_rentals_rejected_total",
			Help: "Rental requests rejected, by reason",
		},
		[]string{"reason"},
	)

	RentalsReturned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamerent_rentals_returned_total",
			Help: "Rentals returned, by whether a fine was assessed",
		},
		[]string{"fined"},
	)

	RevenueCents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamerent_revenue_cents_total",
			Help: "Wallet debits in cents, by source",
		},
		[]string{"source"},
	)

	FinesCents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gamerent_fines_assessed_cents_total",
			Help: "Overdue fines assessed in cents",
		},
	)

	RentalsOverdue = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gamerent_rentals_overdue",
			Help: "Active unit rentals past their expected return date",
		},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamerent_entitlement_cache_lookups_total",
			Help: "Entitlement cache lookups, by result",
		},
		[]string{"result"},
	)

	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamerent_entitlement_cache_errors_total",
			Help: "Entitlement cache write and invalidation failures, by operation",
		},
		[]string{"op"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gamerent_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "status"},
	)
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
