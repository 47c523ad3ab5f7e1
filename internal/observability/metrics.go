package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesObserved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scraper_messages_observed_total",
		Help: "The total number of messages observed per channel",
	}, []string{"channel"})

	GroupsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scraper_groups_completed_total",
		Help: "The total number of completed message groups",
	}, []string{"channel"})

	LateMediaDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraper_late_media_dropped_total",
		Help: "Media messages dropped because their group was already emitted",
	})

	Extractions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scraper_extractions_total",
		Help: "The total number of extraction attempts by method and status",
	}, []string{"method", "status"})

	ValidationRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scraper_validation_rejects_total",
		Help: "Records rejected by the validator, by reason",
	}, []string{"reason"})

	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scraper_deliveries_total",
		Help: "Delivery attempts to the backend sink, by status",
	}, []string{"status"})

	FailureQueueSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scraper_failure_queue_size",
		Help: "Current number of entries pending replay in the failure queue",
	})

	DedupSkips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scraper_dedup_skips_total",
		Help: "Message groups skipped because their unique id was already processed",
	})

	FloodWaitSeconds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scraper_flood_wait_seconds_total",
		Help: "Total time in seconds spent waiting for Telegram flood control",
	}, []string{"channel"})

	LLMRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scraper_llm_request_duration_seconds",
		Help:    "Duration of LLM extraction requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	LLMRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scraper_llm_requests_total",
		Help: "Total number of LLM extraction requests by status",
	}, []string{"model", "status"})

	MediaDownloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scraper_media_downloads_total",
		Help: "Media download attempts, by status",
	}, []string{"status"})
)
