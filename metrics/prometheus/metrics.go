// Package prometheus exports the pipeline's stable RPC and buffer metrics.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names below are the Prometheus-safe (dot-free) renderings of the
// stable names in the pipeline configuration contract: rpc.server.requests,
// rpc.server.processing.duration, tpf.slo.rpc.server.total,
// tpf.slo.rpc.server.latency.total, tpf.step.buffer.queued,
// tpf.step.buffer.capacity.
var (
	// rpcServerRequestsTotal implements rpc.server.requests.
	rpcServerRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpc_server_requests_total",
			Help: "Total RPC server requests, tagged by service/method/status code",
		},
		[]string{"rpc_service", "rpc_method", "rpc_grpc_status_code"},
	)

	// rpcServerProcessingDuration implements rpc.server.processing.duration.
	rpcServerProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rpc_server_processing_duration_seconds",
			Help:    "RPC server processing duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"rpc_service", "rpc_method", "rpc_grpc_status_code"},
	)

	// rpcClientRequestsTotal mirrors rpcServerRequestsTotal for client-side calls.
	rpcClientRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpc_client_requests_total",
			Help: "Total RPC client requests, tagged by service/method/status code",
		},
		[]string{"rpc_service", "rpc_method", "rpc_grpc_status_code"},
	)

	// rpcClientDuration mirrors rpcServerProcessingDuration for client-side calls.
	rpcClientDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rpc_client_processing_duration_seconds",
			Help:    "RPC client call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"rpc_service", "rpc_method", "rpc_grpc_status_code"},
	)

	// sloRPCServerTotal implements tpf.slo.rpc.server.total.
	sloRPCServerTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tpf_slo_rpc_server_total",
			Help: "SLO aggregate count of RPC server requests",
		},
		[]string{"rpc_service", "rpc_method"},
	)

	// sloRPCServerLatencyTotal implements tpf.slo.rpc.server.latency.total.
	sloRPCServerLatencyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tpf_slo_rpc_server_latency_total_seconds",
			Help: "SLO aggregate of RPC server processing latency in seconds",
		},
		[]string{"rpc_service", "rpc_method"},
	)

	// bufferQueued implements tpf.step.buffer.queued.
	bufferQueued = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tpf_step_buffer_queued",
			Help: "Current depth of a step's backpressure buffer",
		},
		[]string{"step_class"},
	)

	// bufferCapacity implements tpf.step.buffer.capacity.
	bufferCapacity = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tpf_step_buffer_capacity",
			Help: "Configured capacity of a step's backpressure buffer",
		},
		[]string{"step_class"},
	)

	// pipelinesActive is a gauge of currently active pipeline runs.
	pipelinesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipelines_active",
			Help: "Number of currently active pipeline runs",
		},
	)

	// pipelineDuration is a histogram of total pipeline run duration.
	pipelineDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_run_duration_seconds",
			Help:    "Histogram of total pipeline run duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"status"},
	)

	// itemRetriesTotal counts per-item retry attempts by step.
	itemRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_item_retries_total",
			Help: "Total per-item retry attempts, tagged by step",
		},
		[]string{"step"},
	)

	// itemDeadLetteredTotal counts items that exhausted retries and were dead-lettered.
	itemDeadLetteredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_item_dead_lettered_total",
			Help: "Total items dead-lettered after exhausting retries, tagged by step",
		},
		[]string{"step"},
	)

	// allMetrics is the list of all metrics for registration.
	allMetrics = []prometheus.Collector{
		rpcServerRequestsTotal,
		rpcServerProcessingDuration,
		rpcClientRequestsTotal,
		rpcClientDuration,
		sloRPCServerTotal,
		sloRPCServerLatencyTotal,
		bufferQueued,
		bufferCapacity,
		pipelinesActive,
		pipelineDuration,
		itemRetriesTotal,
		itemDeadLetteredTotal,
	}
)

// RecordRPCServerCall records a completed RPC server call.
func RecordRPCServerCall(service, method, statusCode string, durationSeconds float64) {
	rpcServerRequestsTotal.WithLabelValues(service, method, statusCode).Inc()
	rpcServerProcessingDuration.WithLabelValues(service, method, statusCode).Observe(durationSeconds)
	sloRPCServerTotal.WithLabelValues(service, method).Inc()
	sloRPCServerLatencyTotal.WithLabelValues(service, method).Add(durationSeconds)
}

// RecordRPCClientCall records a completed RPC client call.
func RecordRPCClientCall(service, method, statusCode string, durationSeconds float64) {
	rpcClientRequestsTotal.WithLabelValues(service, method, statusCode).Inc()
	rpcClientDuration.WithLabelValues(service, method, statusCode).Observe(durationSeconds)
}

// SetBufferDepth records a step's backpressure buffer depth and capacity.
func SetBufferDepth(stepClass string, depth, capacity int) {
	bufferQueued.WithLabelValues(stepClass).Set(float64(depth))
	bufferCapacity.WithLabelValues(stepClass).Set(float64(capacity))
}

// RecordPipelineStart records a pipeline run start.
func RecordPipelineStart() {
	pipelinesActive.Inc()
}

// RecordPipelineEnd records a pipeline run completion.
func RecordPipelineEnd(status string, durationSeconds float64) {
	pipelinesActive.Dec()
	pipelineDuration.WithLabelValues(status).Observe(durationSeconds)
}

// RecordItemRetry records a per-item retry attempt for a step.
func RecordItemRetry(step string) {
	itemRetriesTotal.WithLabelValues(step).Inc()
}

// RecordItemDeadLettered records a per-item dead-letter event for a step.
func RecordItemDeadLettered(step string) {
	itemDeadLetteredTotal.WithLabelValues(step).Inc()
}
