package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProductUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "product_updates_total",
		Help: "Product mutations by operation and result",
	}, []string{"operation", "result"})

	VersionConflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "product_version_conflicts_total",
		Help: "Version conflicts detected on product writes",
	}, []string{"stage"})

	StockRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_rejections_total",
		Help: "Cart writes rejected by the stock check",
	}, []string{"rule"})

	CartOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_operations_total",
		Help: "Cart operations by type",
	}, []string{"operation"})

	CheckoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkouts_total",
		Help: "Checkout attempts by result",
	}, []string{"result"})

	CheckoutLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkout_latency_seconds",
		Help:    "Latency of the checkout transaction",
		Buckets: prometheus.DefBuckets,
	})

	OrdersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Total number of cancelled orders",
	})

	StockAlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_alerts_total",
		Help: "Stock alerts raised by type",
	}, []string{"type"})

	LoginAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "login_attempts_total",
		Help: "Login attempts by result",
	}, []string{"result"})

	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_published_total",
		Help: "Domain events published by type and result",
	}, []string{"event_type", "result"})

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
