package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesInserted counts rows written to the message store
	MessagesInserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_inserted_total",
			Help: "Total messages inserted",
		},
		[]string{"type"},
	)

	MessagesPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_published_total",
			Help: "Total messages published to a room",
		},
	)

	Deliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_deliveries_total",
			Help: "Total per-connection message deliveries",
		},
	)

	DroppedConnections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_dropped_connections_total",
			Help: "Connections closed because their send buffer was full",
		},
	)

	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_websocket_connections",
			Help: "Currently open websocket connections",
		},
	)

	// Reaper
	ReaperCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_reaper_cycles_total",
			Help: "Reaper cycles by outcome",
		},
		[]string{"outcome"}, // "ok", "failed", "skipped"
	)

	ReaperRowsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_reaper_rows_deleted_total",
			Help: "Expired rows deleted by the reaper",
		},
	)

	ReaperFileFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_reaper_file_failures_total",
			Help: "Attachment removals that failed",
		},
	)

	CleanupJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_cleanup_jobs_total",
			Help: "Attachment cleanup jobs handled by the worker",
		},
		[]string{"outcome"},
	)
)
