// Package metrics provides Prometheus collectors for the pipeline,
// pool, and driver, namespaced "inferrt" — adapted from
// Tutu-Engine-tutuengine/internal/infra/metrics/metrics.go's
// package-level promauto var convention, narrowed to this domain's
// queue/pool/stage/callback concerns (the teacher's credit/peer/gossip
// collectors have no counterpart here).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tutu-network/inferrt/internal/pipeline"
)

// QueueDepth reports the current number of buffered packages in one
// pipeline queue, labeled by pipeline name and queue index.
var QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "inferrt",
	Name:      "queue_depth",
	Help:      "Current number of buffered packages in a pipeline queue.",
}, []string{"pipeline", "queue"})

// QueueRejected counts pushes rejected because a queue's producer side
// was disabled (shutdown race).
var QueueRejected = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "inferrt",
	Name:      "queue_rejected_total",
	Help:      "Total pushes rejected because the queue was disabled.",
}, []string{"pipeline"})

// PoolRemaining reports the number of free resources in a buffer pool.
var PoolRemaining = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "inferrt",
	Name:      "pool_remaining",
	Help:      "Number of free resources currently in a buffer pool.",
}, []string{"pool"})

// PoolAcquireFailed counts non-blocking acquire attempts that found the
// pool exhausted.
var PoolAcquireFailed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "inferrt",
	Name:      "pool_acquire_failed_total",
	Help:      "Total non-blocking pool acquire attempts that found no free resource.",
}, []string{"pool"})

// StageDuration tracks how long each pipeline stage takes to process
// one package.
var StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "inferrt",
	Name:      "stage_duration_seconds",
	Help:      "Duration of one pipeline stage invocation.",
	Buckets:   prometheus.DefBuckets,
}, []string{"pipeline", "stage"})

// StageDropped counts packages a stage dropped (returned false or
// panicked).
var StageDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "inferrt",
	Name:      "stage_dropped_total",
	Help:      "Total packages dropped by a pipeline stage.",
}, []string{"pipeline", "stage"})

// CallbacksDelivered counts pipeline deliveries by outcome
// ("delivered" or "abandoned").
var CallbacksDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "inferrt",
	Name:      "pipeline_callbacks_total",
	Help:      "Total pipeline package deliveries by outcome.",
}, []string{"pipeline", "outcome"})

// HooksFor builds a pipeline.Hooks value that feeds StageDuration,
// StageDropped, and CallbacksDelivered for the named pipeline.
func HooksFor(pipelineName string) pipeline.Hooks {
	return pipeline.Hooks{
		OnStageDuration: func(stage string, d time.Duration) {
			StageDuration.WithLabelValues(pipelineName, stage).Observe(d.Seconds())
		},
		OnStageDrop: func(stage string) { StageDropped.WithLabelValues(pipelineName, stage).Inc() },
		OnCallback:  func(outcome string) { CallbacksDelivered.WithLabelValues(pipelineName, outcome).Inc() },
	}
}
