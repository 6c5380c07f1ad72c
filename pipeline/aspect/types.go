// Package aspect implements Aspect Expansion: the pre-execution compiler
// pass that rewrites a declared step sequence into an executable one by
// interleaving synthetic observer/cache steps around targeted user steps.
package aspect

import "github.com/streamforge/pipelinecore/pipeline/stage"

// Scope is where a PipelineAspect applies.
type Scope int

const (
	// ScopeGlobal applies the aspect to every step in the pipeline.
	ScopeGlobal Scope = iota
	// ScopeSteps applies the aspect only to the steps named in its config's targetSteps.
	ScopeSteps
)

// Position is whether the synthetic step is inserted before or after its target.
type Position int

const (
	// PositionBeforeStep inserts the synthetic step ahead of the target, typed on the target's input.
	PositionBeforeStep Position = iota
	// PositionAfterStep inserts the synthetic step after the target, typed on the target's output.
	PositionAfterStep
)

// String returns the string representation of the position, used in the
// synthetic step's identity and in error messages.
func (p Position) String() string {
	if p == PositionAfterStep {
		return "after_step"
	}
	return "before_step"
}

// Config is the ordered map of options a PipelineAspect carries. Options are
// looked up by key (pluginImplementationClass, targetSteps, providerClass,
// ...); insertion order is preserved for anything that iterates Config, even
// though expansion itself only ever looks options up by name.
type Config struct {
	keys   []string
	values map[string]any
}

// NewConfig builds a Config from the given key/value pairs, in order.
func NewConfig(pairs ...any) Config {
	c := Config{values: make(map[string]any)}
	for i := 0; i+1 < len(pairs); i += 2 {
		key, _ := pairs[i].(string)
		c.Set(key, pairs[i+1])
	}
	return c
}

// Set assigns value to key, appending key to the iteration order if new.
func (c *Config) Set(key string, value any) {
	if c.values == nil {
		c.values = make(map[string]any)
	}
	if _, exists := c.values[key]; !exists {
		c.keys = append(c.keys, key)
	}
	c.values[key] = value
}

// Get returns the value for key and whether it was present.
func (c Config) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Keys returns the option keys in insertion order.
func (c Config) Keys() []string {
	return append([]string(nil), c.keys...)
}

// PluginImplementationClass returns the config's required plugin identifier,
// or "" if unset.
func (c Config) PluginImplementationClass() string {
	v, _ := c.Get("pluginImplementationClass")
	s, _ := v.(string)
	return s
}

// TargetSteps returns the config's targetSteps list, or nil if unset.
func (c Config) TargetSteps() []string {
	v, ok := c.Get("targetSteps")
	if !ok {
		return nil
	}
	steps, _ := v.([]string)
	return steps
}

// OnElement returns the config's optional side-effect callback, invoked for
// every element the synthetic step observes. Absent a callback, the
// synthetic step still passes every element through unchanged -- this hook
// only governs whether a side effect (logging, cache lookup) fires.
func (c Config) OnElement() func(stage.StreamElement) {
	v, ok := c.Get("onElement")
	if !ok {
		return nil
	}
	fn, _ := v.(func(stage.StreamElement))
	return fn
}

// Aspect is a cross-cutting concern descriptor expanded into synthetic
// side-effect steps at pipeline assembly time.
type Aspect struct {
	Name     string
	Scope    Scope
	Position Position
	Order    int
	Config   Config
}

// TypeMapping is a directed relation between a domain type and a wire/DTO
// type, plus an optional mapper identity. Invariant: if WireType names a
// type different from DomainType, Mapper must be non-empty.
type TypeMapping struct {
	DomainType string
	WireType   string
	Mapper     string
}

// Validate enforces the TypeMapping invariant.
func (m TypeMapping) Validate() error {
	if m.WireType != "" && m.WireType != m.DomainType && m.Mapper == "" {
		return stage.NewConfigurationError(
			"type mapping names a wire type distinct from the domain type but declares no mapper: "+m.DomainType+" -> "+m.WireType,
			nil,
		)
	}
	return nil
}

// messageName returns the simple (unqualified) name used in synthetic step
// identity: the wire type's simple name for remote steps, the domain type's
// otherwise.
func (m TypeMapping) messageName(remote bool) string {
	if remote && m.WireType != "" {
		return simpleName(m.WireType)
	}
	return simpleName(m.DomainType)
}

// Target is one original, user-declared step plus the type mappings Aspect
// Expansion needs to type any synthetic step placed around it.
type Target struct {
	Step   stage.Step
	Input  TypeMapping
	Output TypeMapping
	// Remote marks a step reached via a Client Step transport binding;
	// synthetic step identity uses the wire type's simple name for remote
	// targets and the domain type's for local ones.
	Remote bool
}

// ResolvedStep pairs an (original-or-synthetic) step with its effective
// StepConfig, as produced by Aspect Expansion and consumed by the Pipeline
// Executor.
type ResolvedStep struct {
	Step      stage.Step
	Synthetic bool
	Config    stage.StepConfig
}

// ExpandedPipeline is the ordered sequence of ResolvedStep produced by
// Expand. Synthetic observer steps preserve their upstream's output type:
// they are identity on the value stream.
type ExpandedPipeline []ResolvedStep

// Names returns the step names in order, convenient for assertions and logs.
func (p ExpandedPipeline) Names() []string {
	names := make([]string, len(p))
	for i, rs := range p {
		names[i] = rs.Step.Name()
	}
	return names
}

// Steps returns the underlying stage.Step sequence, ready for
// pipeline/stage.Builder.Chain.
func (p ExpandedPipeline) Steps() []stage.Step {
	steps := make([]stage.Step, len(p))
	for i, rs := range p {
		steps[i] = rs.Step
	}
	return steps
}
