package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkouts_total",
		Help: "Total number of cart discount calculations by final state",
	}, []string{"state"})

	CheckoutsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkouts_failed_total",
		Help: "Total number of failed cart calculations",
	}, []string{"reason"})

	DiscountsAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discounts_applied_total",
		Help: "Total number of discount deductions applied to cart lines",
	}, []string{"strategy"})

	DiscountClampsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discount_clamps_total",
		Help: "Total number of deductions clamped at a product price floor",
	}, []string{"strategy"})

	CouponRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coupon_rejections_total",
		Help: "Total number of rejected discount codes",
	})

	CheckoutLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkout_latency_seconds",
		Help:    "Latency of cart discount calculations",
		Buckets: prometheus.DefBuckets,
	})

	InventoryReserveLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "inventory_reserve_latency_seconds",
		Help:    "Latency of inventory reservation operations",
		Buckets: prometheus.DefBuckets,
	})

	InventoryReservationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_reservations_total",
		Help: "Total number of successful cart reservations",
	})

	InventoryReservationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_reservations_failed_total",
		Help: "Total number of failed inventory reservations",
	}, []string{"reason"})

	InventoryReleasedUnitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_released_units_total",
		Help: "Total number of reserved units given back",
	})

	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_published_total",
		Help: "Total number of checkout events written to Kafka",
	}, []string{"type", "result"})

	ReleaseRequestsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "release_requests_processed_total",
		Help: "Total number of reservation release requests consumed",
	}, []string{"result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
