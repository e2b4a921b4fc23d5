package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CapturesTotal counts screenshot captures by outcome ("ok", "error")
	CapturesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mapwatch_captures_total",
		Help: "Screenshot captures by outcome",
	}, []string{"outcome"})

	// CaptureDuration observes how long a capture takes end to end
	CaptureDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mapwatch_capture_duration_seconds",
		Help:    "Screenshot capture duration including page stability wait",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 8),
	})

	// DeliveriesTotal counts artifact deliveries by trigger and outcome
	DeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mapwatch_deliveries_total",
		Help: "Artifact deliveries by trigger (schedule, alert, reaction, manual) and outcome",
	}, []string{"trigger", "outcome"})

	// AlertChecksTotal counts alert diff polls by outcome ("alert", "no_change", "skipped", "error")
	AlertChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mapwatch_alert_checks_total",
		Help: "Alert diff polls by outcome",
	}, []string{"outcome"})

	// ScheduledJobs tracks the number of live per-group delivery jobs
	ScheduledJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mapwatch_scheduled_jobs",
		Help: "Live per-group delivery jobs",
	})
)
