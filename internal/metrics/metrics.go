// Package metrics exposes the SDK's opt-in local telemetry counters
// (spec.md §6's enable_telemetry option), generalized from the teacher's
// pipeline_* metric set onto the broker, dispatcher, download, and
// per-engine-stage concerns this SDK core owns.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BrokerBytesUsed tracks the memory broker's live byte accumulator.
	BrokerBytesUsed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ondevicesdk_broker_bytes_used",
		Help: "Bytes currently tracked by the memory broker across all loaded models",
	})

	// BrokerEvictionsTotal counts models evicted to satisfy a new allocation.
	BrokerEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ondevicesdk_broker_evictions_total",
		Help: "Total models evicted by the memory broker's LRU arbitration",
	})

	// BrokerPressureEventsTotal counts rising-edge 90%-of-limit crossings.
	BrokerPressureEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ondevicesdk_broker_pressure_events_total",
		Help: "Total memory pressure callback invocations",
	})

	// DispatchQueueDepth tracks the async dispatcher's current FIFO depth.
	DispatchQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ondevicesdk_dispatch_queue_depth",
		Help: "Pending callbacks in the async dispatcher's bounded queue",
	})

	// DispatchDroppedTotal counts callbacks rejected due to a full queue.
	DispatchDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ondevicesdk_dispatch_dropped_total",
		Help: "Callbacks dropped because the dispatcher queue was full",
	})

	// DispatchPanicsTotal counts callback panics caught by the dispatcher.
	DispatchPanicsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ondevicesdk_dispatch_panics_total",
		Help: "Callback panics isolated by the dispatcher",
	})

	// DownloadProgressRatio tracks the most recent progress fraction per download id.
	DownloadProgressRatio = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ondevicesdk_download_progress_ratio",
		Help: "Most recent [0,1] progress fraction reported per download",
	}, []string{"download_id"})

	// DownloadRetriesTotal counts retry attempts by error kind.
	DownloadRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ondevicesdk_download_retries_total",
		Help: "Download retry attempts, by the error kind that triggered them",
	}, []string{"error_kind"})

	// DownloadChecksumFailuresTotal counts SHA-256 verification failures.
	DownloadChecksumFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ondevicesdk_download_checksum_failures_total",
		Help: "Downloads that failed SHA-256 verification",
	})

	// EngineStageDuration tracks per-engine-stage latency (load, generate,
	// transcribe, synthesize), generalized from the teacher's per-pipeline-
	// stage StageDuration histogram.
	EngineStageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ondevicesdk_engine_stage_duration_seconds",
		Help:    "Per-engine-stage latency",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	}, []string{"engine", "stage"})

	// EngineErrorsTotal counts fallible engine operations by kind.
	EngineErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ondevicesdk_engine_errors_total",
		Help: "Engine operation failures, by engine and error kind",
	}, []string{"engine", "error_kind"})

	// PipelineTurnsTotal counts completed voice-pipeline conversation turns.
	PipelineTurnsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ondevicesdk_pipeline_turns_total",
		Help: "Conversation turns completed by the voice pipeline",
	})
)
