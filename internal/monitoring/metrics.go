package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BookingsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_created_total",
		Help: "Total number of bookings created",
	})

	BookingsConfirmed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_confirmed_total",
		Help: "Total number of bookings confirmed",
	})

	BookingsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_cancelled_total",
		Help: "Total number of bookings cancelled",
	})

	InventoryRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_reservation_rejected_total",
		Help: "Reservations rejected because a tier had insufficient availability",
	})

	CouponApplications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coupon_application_total",
		Help: "Coupon application attempts by outcome",
	}, []string{"outcome"})

	TicketScans = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticket_scan_total",
		Help: "Ticket scan attempts by result",
	}, []string{"result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by method and path",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)
