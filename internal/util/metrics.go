package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StreamConnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alert_stream_connects_total",
		Help: "Total number of successful alert stream connections",
	})

	StreamDisconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alert_stream_disconnects_total",
		Help: "Total number of alert stream disconnects",
	}, []string{"reason"})

	StreamSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "alert_stream_subscriptions",
		Help: "Number of open alert stream subscriptions",
	})

	AlertsReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alerts_received_total",
		Help: "Total number of alert events decoded from the stream",
	})

	AlertsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alerts_dropped_total",
		Help: "Total number of alert events dropped before delivery",
	}, []string{"reason"})

	AlertsPresentedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alerts_presented_total",
		Help: "Total number of alerts that completed a show and hide cycle",
	})

	AlertQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "alert_queue_depth",
		Help: "Alerts waiting behind the one currently presented",
	})

	AlertEffectFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alert_effect_failures_total",
		Help: "Sound or speech side effects that failed",
	}, []string{"effect"})

	CheckoutsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkouts_created_total",
		Help: "Total number of payment sessions opened",
	}, []string{"method"})

	CheckoutsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkouts_rejected_total",
		Help: "Checkout requests rejected before any network call",
	}, []string{"reason"})

	PaymentSessionsTerminalTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_sessions_terminal_total",
		Help: "Payment sessions that reached a terminal status",
	}, []string{"status"})

	StatusChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_status_checks_total",
		Help: "Payment status lookups by outcome",
	}, []string{"result"})

	BackendRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backend_request_latency_seconds",
		Help:    "Latency of calls to the Jajanin backend",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	NotificationsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_notifications_processed_total",
		Help: "Push payment confirmations consumed from the broker",
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
