package orchestrator

import (
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/streamforge/pipelinecore/pipeline/stage"
)

// SupportedSchemaConstraint is the range of pipeline configuration document
// schema versions this orchestrator accepts.
const SupportedSchemaConstraint = ">= 1.0.0, < 2.0.0"

// StepCardinality is the shape vocabulary used by a pipeline configuration
// document's step entries.
type StepCardinality string

const (
	CardinalityOneToOne  StepCardinality = "ONE_TO_ONE"
	CardinalityExpansion StepCardinality = "EXPANSION"
	CardinalityReduction StepCardinality = "REDUCTION"
	CardinalityManyToMany StepCardinality = "MANY_TO_MANY"
)

// StepDocument is one entry of a pipeline configuration document's steps[].
type StepDocument struct {
	Name          string          `yaml:"name"`
	Cardinality   StepCardinality `yaml:"cardinality"`
	InputTypeName string          `yaml:"inputTypeName"`
	InputFields   []string        `yaml:"inputFields"`
	OutputTypeName string         `yaml:"outputTypeName"`
	OutputFields  []string        `yaml:"outputFields"`
}

// Document is a pipeline configuration file, parsed with gopkg.in/yaml.v3.
type Document struct {
	SchemaVersion string         `yaml:"schemaVersion"`
	AppName       string         `yaml:"appName"`
	BasePackage   string         `yaml:"basePackage"`
	Steps         []StepDocument `yaml:"steps"`
	Defaults      DefaultsDocument `yaml:"defaults"`
}

// DefaultsDocument is the pipeline-wide configuration knobs section,
// expressed as human-friendly strings (e.g. "500ms",
// "256", "1Ki") parsed with k8s.io/apimachinery's resource.Quantity.
type DefaultsDocument struct {
	RetryLimit        int    `yaml:"retry-limit"`
	RetryWait         string `yaml:"retry-wait-ms"`
	MaxBackoff        string `yaml:"max-backoff"`
	Jitter            bool   `yaml:"jitter"`
	RecoverOnFailure  bool   `yaml:"recover-on-failure"`
	AutoPersist       bool   `yaml:"auto-persist"`
	BufferCapacity    string `yaml:"buffer-capacity"`
	Parallelism       string `yaml:"parallelism"`
}

// ParseDocument unmarshals raw YAML into a Document and checks its
// schemaVersion against SupportedSchemaConstraint.
func ParseDocument(raw []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, stage.NewConfigurationError("malformed pipeline configuration document", err)
	}

	if err := checkSchemaVersion(doc.SchemaVersion); err != nil {
		return nil, err
	}

	return &doc, nil
}

func checkSchemaVersion(raw string) error {
	if raw == "" {
		return stage.NewConfigurationError("pipeline configuration document missing schemaVersion", nil)
	}

	version, err := semver.NewVersion(raw)
	if err != nil {
		return stage.NewConfigurationError(fmt.Sprintf("invalid schemaVersion %q", raw), err)
	}

	constraint, err := semver.NewConstraint(SupportedSchemaConstraint)
	if err != nil {
		// SupportedSchemaConstraint is a compile-time constant; a parse
		// failure here is a programming error, not a document error.
		panic(fmt.Sprintf("orchestrator: invalid schema constraint %q: %v", SupportedSchemaConstraint, err))
	}

	if !constraint.Check(version) {
		return stage.NewConfigurationError(
			fmt.Sprintf("unsupported schemaVersion %s: requires %s", raw, SupportedSchemaConstraint), nil)
	}
	return nil
}

// ResolvePipelineConfig translates a DefaultsDocument into a
// *stage.PipelineConfig, parsing quantity-style knobs with
// k8s.io/apimachinery's resource.Quantity the way operators already size
// Kubernetes resource requests.
func ResolvePipelineConfig(d DefaultsDocument) (*stage.PipelineConfig, error) {
	cfg := stage.DefaultPipelineConfig()

	if d.RetryLimit > 0 {
		cfg.Defaults = cfg.Defaults.WithRetryLimit(d.RetryLimit)
	}
	if d.RetryWait != "" {
		wait, err := parseDurationQuantity(d.RetryWait)
		if err != nil {
			return nil, stage.NewConfigurationError("invalid retry-wait-ms", err)
		}
		cfg.Defaults = cfg.Defaults.WithRetryWait(wait)
	}
	if d.MaxBackoff != "" {
		backoff, err := parseDurationQuantity(d.MaxBackoff)
		if err != nil {
			return nil, stage.NewConfigurationError("invalid max-backoff", err)
		}
		cfg.Defaults = cfg.Defaults.WithMaxBackoff(backoff)
	}
	cfg.Defaults = cfg.Defaults.WithJitter(d.Jitter)
	cfg.Defaults = cfg.Defaults.WithRecoverOnFailure(d.RecoverOnFailure)
	cfg.Defaults = cfg.Defaults.WithAutoPersist(d.AutoPersist)

	if d.BufferCapacity != "" {
		qty, err := resource.ParseQuantity(d.BufferCapacity)
		if err != nil {
			return nil, stage.NewConfigurationError("invalid buffer-capacity", err)
		}
		cfg.BufferCapacity = int(qty.Value())
	}

	switch d.Parallelism {
	case "", "AUTO":
		cfg.Parallelism = stage.ParallelismAuto
	case "SEQUENTIAL":
		cfg.Parallelism = stage.ParallelismSequential
	case "PARALLEL":
		cfg.Parallelism = stage.ParallelismParallel
	default:
		return nil, stage.NewConfigurationError(fmt.Sprintf("unknown parallelism %q", d.Parallelism), nil)
	}

	return cfg, nil
}

// parseDurationQuantity parses a millisecond count (e.g. "500", "30000")
// via resource.Quantity, for consistent operator-facing number parsing
// across every duration/size knob in the configuration document.
func parseDurationQuantity(raw string) (time.Duration, error) {
	qty, err := resource.ParseQuantity(raw)
	if err != nil {
		return 0, err
	}
	return time.Duration(qty.Value()) * time.Millisecond, nil
}
