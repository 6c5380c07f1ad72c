package stage

import (
	"time"
)

const (
	// DefaultChannelBufferSize is the default buffer size for channels between stages.
	DefaultChannelBufferSize = 16
	// DefaultMaxConcurrentPipelines is the default maximum number of concurrent pipeline executions.
	DefaultMaxConcurrentPipelines = 100
	// DefaultExecutionTimeoutSeconds is the default execution timeout in seconds.
	DefaultExecutionTimeoutSeconds = 30
	// DefaultGracefulShutdownTimeoutSeconds is the default graceful shutdown timeout in seconds.
	DefaultGracefulShutdownTimeoutSeconds = 10
	// DefaultStartupTimeout is how long the executor waits for remote client steps
	// to report healthy before admitting external input.
	DefaultStartupTimeout = 2 * time.Minute
	// DefaultBufferCapacity is the default backpressure buffer capacity between stages.
	DefaultBufferCapacity = 256

	// DefaultRetryLimit is the default number of retries per item before escalation.
	DefaultRetryLimit = 10
	// DefaultRetryWait is the default base retry backoff.
	DefaultRetryWait = 500 * time.Millisecond
	// DefaultMaxBackoff caps the exponential backoff delay.
	DefaultMaxBackoff = 30 * time.Second
)

// Parallelism is the pipeline-wide dispatch policy resolved against each
// step's ordering/thread-safety declaration (see ParallelismPolicy).
type Parallelism int

const (
	// ParallelismSequential dispatches every step one item at a time.
	ParallelismSequential Parallelism = iota
	// ParallelismAuto lets each step's ordering/thread-safety declaration decide.
	ParallelismAuto
	// ParallelismParallel prefers concurrent dispatch wherever the step allows it.
	ParallelismParallel
)

// String returns the string representation of the parallelism policy.
func (p Parallelism) String() string {
	switch p {
	case ParallelismSequential:
		return "sequential"
	case ParallelismAuto:
		return "auto"
	case ParallelismParallel:
		return "parallel"
	default:
		return unknownType
	}
}

// StepConfig holds mutable per-instance runtime settings for a Step,
// overlaid from process-wide defaults with any manually-configured override
// recorded at construction time (see BaseStep.InitialiseWithConfig).
type StepConfig struct {
	RetryLimit       int
	RetryWait        time.Duration
	MaxBackoff       time.Duration
	Jitter           bool
	RecoverOnFailure bool
	AutoPersist      bool
	Debug            bool

	// overridden tracks which fields were explicitly set by the step owner,
	// so that later re-initialisation from process-wide defaults does not
	// clobber a manual override (spec configuration-precedence rule).
	overridden map[string]bool
}

// DefaultStepConfig returns a StepConfig with the documented defaults.
func DefaultStepConfig() StepConfig {
	return StepConfig{
		RetryLimit:       DefaultRetryLimit,
		RetryWait:        DefaultRetryWait,
		MaxBackoff:       DefaultMaxBackoff,
		Jitter:           false,
		RecoverOnFailure: false,
		AutoPersist:      true,
		Debug:            false,
	}
}

func (c StepConfig) markOverride(field string) StepConfig {
	if c.overridden == nil {
		c.overridden = make(map[string]bool)
	}
	c.overridden[field] = true
	return c
}

// WithRetryLimit sets the retry limit and records it as a manual override.
func (c StepConfig) WithRetryLimit(n int) StepConfig {
	c.RetryLimit = n
	return c.markOverride("RetryLimit")
}

// WithRetryWait sets the base retry backoff and records it as a manual override.
func (c StepConfig) WithRetryWait(d time.Duration) StepConfig {
	c.RetryWait = d
	return c.markOverride("RetryWait")
}

// WithMaxBackoff sets the backoff ceiling and records it as a manual override.
func (c StepConfig) WithMaxBackoff(d time.Duration) StepConfig {
	c.MaxBackoff = d
	return c.markOverride("MaxBackoff")
}

// WithJitter enables or disables full-jitter backoff and records a manual override.
func (c StepConfig) WithJitter(enabled bool) StepConfig {
	c.Jitter = enabled
	return c.markOverride("Jitter")
}

// WithRecoverOnFailure enables or disables pass-through salvage and records a manual override.
func (c StepConfig) WithRecoverOnFailure(enabled bool) StepConfig {
	c.RecoverOnFailure = enabled
	return c.markOverride("RecoverOnFailure")
}

// WithAutoPersist enables or disables auto-persistence and records a manual override.
func (c StepConfig) WithAutoPersist(enabled bool) StepConfig {
	c.AutoPersist = enabled
	return c.markOverride("AutoPersist")
}

// WithDebug enables or disables step-level debug logging and records a manual override.
func (c StepConfig) WithDebug(enabled bool) StepConfig {
	c.Debug = enabled
	return c.markOverride("Debug")
}

// overlay applies incoming process-wide defaults on top of c, preserving any
// field c previously recorded as a manual override. It is used on every
// re-initialisation of a step's config.
func (c StepConfig) overlay(incoming StepConfig) StepConfig {
	result := incoming
	result.overridden = c.overridden

	if c.overridden["RetryLimit"] {
		result.RetryLimit = c.RetryLimit
	}
	if c.overridden["RetryWait"] {
		result.RetryWait = c.RetryWait
	}
	if c.overridden["MaxBackoff"] {
		result.MaxBackoff = c.MaxBackoff
	}
	if c.overridden["Jitter"] {
		result.Jitter = c.Jitter
	}
	if c.overridden["RecoverOnFailure"] {
		result.RecoverOnFailure = c.RecoverOnFailure
	}
	if c.overridden["AutoPersist"] {
		result.AutoPersist = c.AutoPersist
	}
	if c.overridden["Debug"] {
		result.Debug = c.Debug
	}

	return result
}

// PipelineConfig defines configuration options for pipeline execution.
type PipelineConfig struct {
	// ChannelBufferSize controls buffering between stages.
	// Smaller values = lower latency but more backpressure.
	// Larger values = higher throughput but more memory usage.
	// Default: 16
	ChannelBufferSize int

	// PriorityQueueEnabled enables priority-based scheduling.
	// When enabled, high-priority elements (audio) are processed before low-priority (logs).
	// Default: false
	PriorityQueueEnabled bool

	// MaxConcurrentPipelines limits the number of concurrent pipeline executions.
	// This is used by PipelinePool to control concurrency.
	// Default: 100
	MaxConcurrentPipelines int

	// ExecutionTimeout sets the maximum duration for a single pipeline execution.
	// Set to 0 to disable timeout.
	// Default: 30 seconds
	ExecutionTimeout time.Duration

	// GracefulShutdownTimeout sets the maximum time to wait for in-flight executions during shutdown.
	// Default: 10 seconds
	GracefulShutdownTimeout time.Duration

	// EnableMetrics enables collection of per-stage metrics (latency, throughput, etc.).
	// Default: false
	EnableMetrics bool

	// EnableTracing enables detailed tracing of element flow through stages.
	// Default: false (can be expensive for high-throughput pipelines)
	EnableTracing bool

	// PrometheusEnabled enables Prometheus metrics export via HTTP.
	// Default: false
	PrometheusEnabled bool

	// PrometheusAddr is the address to serve Prometheus metrics on (e.g., ":9090").
	// Only used when PrometheusEnabled is true.
	// Default: ":9090"
	PrometheusAddr string

	// BufferCapacity is the default backpressure buffer capacity between stages.
	// Default: 256
	BufferCapacity int

	// StartupTimeout bounds how long the executor waits for remote client
	// steps to report healthy before admitting external input.
	// Default: 2 minutes
	StartupTimeout time.Duration

	// Parallelism is the pipeline-wide dispatch policy.
	// Default: ParallelismAuto
	Parallelism Parallelism

	// Defaults is the process-wide StepConfig overlaid onto every step that
	// has not set a manual override for a given field.
	Defaults StepConfig
}

// DefaultPipelineConfig returns a PipelineConfig with sensible defaults.
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		ChannelBufferSize:       DefaultChannelBufferSize,
		PriorityQueueEnabled:    false,
		MaxConcurrentPipelines:  DefaultMaxConcurrentPipelines,
		ExecutionTimeout:        DefaultExecutionTimeoutSeconds * time.Second,
		GracefulShutdownTimeout: DefaultGracefulShutdownTimeoutSeconds * time.Second,
		EnableMetrics:           false,
		EnableTracing:           false,
		PrometheusEnabled:       false,
		PrometheusAddr:          ":9090",
		BufferCapacity:          DefaultBufferCapacity,
		StartupTimeout:          DefaultStartupTimeout,
		Parallelism:             ParallelismAuto,
		Defaults:                DefaultStepConfig(),
	}
}

// Validate checks if the configuration is valid.
func (c *PipelineConfig) Validate() error {
	if c.ChannelBufferSize < 0 {
		return ErrInvalidChannelBufferSize
	}
	if c.MaxConcurrentPipelines < 0 {
		return ErrInvalidMaxConcurrentPipelines
	}
	if c.ExecutionTimeout < 0 {
		return ErrInvalidExecutionTimeout
	}
	if c.GracefulShutdownTimeout < 0 {
		return ErrInvalidGracefulShutdownTimeout
	}
	return nil
}

// WithChannelBufferSize sets the channel buffer size.
func (c *PipelineConfig) WithChannelBufferSize(size int) *PipelineConfig {
	c.ChannelBufferSize = size
	return c
}

// WithPriorityQueue enables or disables priority-based scheduling.
func (c *PipelineConfig) WithPriorityQueue(enabled bool) *PipelineConfig {
	c.PriorityQueueEnabled = enabled
	return c
}

// WithMaxConcurrentPipelines sets the maximum number of concurrent pipeline executions.
func (c *PipelineConfig) WithMaxConcurrentPipelines(maxPipelines int) *PipelineConfig {
	c.MaxConcurrentPipelines = maxPipelines
	return c
}

// WithExecutionTimeout sets the execution timeout.
func (c *PipelineConfig) WithExecutionTimeout(timeout time.Duration) *PipelineConfig {
	c.ExecutionTimeout = timeout
	return c
}

// WithGracefulShutdownTimeout sets the graceful shutdown timeout.
func (c *PipelineConfig) WithGracefulShutdownTimeout(timeout time.Duration) *PipelineConfig {
	c.GracefulShutdownTimeout = timeout
	return c
}

// WithMetrics enables or disables metrics collection.
func (c *PipelineConfig) WithMetrics(enabled bool) *PipelineConfig {
	c.EnableMetrics = enabled
	return c
}

// WithTracing enables or disables detailed tracing.
func (c *PipelineConfig) WithTracing(enabled bool) *PipelineConfig {
	c.EnableTracing = enabled
	return c
}

// WithPrometheusExporter enables Prometheus metrics export at the given address.
// The address should be in the format ":port" or "host:port".
// Example: ":9090" or "localhost:9090"
func (c *PipelineConfig) WithPrometheusExporter(addr string) *PipelineConfig {
	c.PrometheusEnabled = true
	c.PrometheusAddr = addr
	return c
}
