package stage

import (
	"fmt"

	"github.com/streamforge/pipelinecore/events"
)

// Builder assembles a Pipeline's step DAG, validates it, and resolves each
// step's configuration and dispatch mode before the pipeline can run.
type Builder struct {
	steps        []Step
	edges        map[string][]string // step name -> downstream step names
	config       *PipelineConfig
	eventEmitter *events.Emitter
}

// NewBuilder creates a new Builder with default configuration.
func NewBuilder() *Builder {
	return &Builder{
		steps:  []Step{},
		edges:  make(map[string][]string),
		config: DefaultPipelineConfig(),
	}
}

// NewBuilderWithConfig creates a new Builder with custom configuration.
func NewBuilderWithConfig(config *PipelineConfig) *Builder {
	if config == nil {
		config = DefaultPipelineConfig()
	}
	return &Builder{
		steps:  []Step{},
		edges:  make(map[string][]string),
		config: config,
	}
}

// WithConfig sets the pipeline configuration.
func (b *Builder) WithConfig(config *PipelineConfig) *Builder {
	b.config = config
	return b
}

// WithEventEmitter sets the event emitter for the pipeline.
func (b *Builder) WithEventEmitter(emitter *events.Emitter) *Builder {
	b.eventEmitter = emitter
	return b
}

// AddStep adds a step to the builder without connecting it. Useful when
// building a topology with fan-out/fan-in edges added separately via Connect.
func (b *Builder) AddStep(step Step) *Builder {
	b.steps = append(b.steps, step)
	return b
}

// Chain adds a linear sequence of steps, connecting each step's output to
// the next step's input: step1 -> step2 -> step3.
func (b *Builder) Chain(steps ...Step) *Builder {
	if len(steps) == 0 {
		return b
	}

	b.steps = append(b.steps, steps...)

	for i := 0; i < len(steps)-1; i++ {
		b.Connect(steps[i].Name(), steps[i+1].Name())
	}

	return b
}

// Connect creates a directed edge from one step to another.
func (b *Builder) Connect(fromStep, toStep string) *Builder {
	if b.edges[fromStep] == nil {
		b.edges[fromStep] = []string{}
	}
	b.edges[fromStep] = append(b.edges[fromStep], toStep)
	return b
}

// Branch fans a single step's output out to multiple downstream steps.
func (b *Builder) Branch(fromStep string, toSteps ...string) *Builder {
	for _, toStep := range toSteps {
		b.Connect(fromStep, toStep)
	}
	return b
}

// Build validates the assembled DAG, resolves each step's configuration and
// dispatch mode, and returns an executable Pipeline.
func (b *Builder) Build() (*Pipeline, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	decls := make([]Declaration, 0, len(b.steps))
	for _, step := range b.steps {
		if base, ok := step.(interface{ Declaration() Declaration }); ok {
			decls = append(decls, base.Declaration())
		}
	}
	if err := ValidateParallelism(b.config.Parallelism, decls); err != nil {
		return nil, err
	}

	mode := make(map[string]DispatchMode, len(decls))
	for _, decl := range decls {
		resolved, err := ResolveDispatchMode(b.config.Parallelism, decl)
		if err != nil {
			return nil, err
		}
		mode[decl.Name] = resolved
	}

	for _, step := range b.steps {
		if base, ok := step.(interface{ InitialiseWithConfig(StepConfig) }); ok {
			base.InitialiseWithConfig(b.config.Defaults)
		}
	}

	return &Pipeline{
		steps:        b.steps,
		edges:        b.edges,
		config:       b.config,
		eventEmitter: b.eventEmitter,
		mode:         mode,
		shutdown:     make(chan struct{}),
	}, nil
}

func (b *Builder) validate() error {
	if len(b.steps) == 0 {
		return ErrNoSteps
	}

	if err := b.config.Validate(); err != nil {
		return err
	}

	stepNames := make(map[string]bool)
	for _, step := range b.steps {
		if stepNames[step.Name()] {
			return fmt.Errorf("%w: %s", ErrDuplicateStepName, step.Name())
		}
		stepNames[step.Name()] = true
	}

	for fromStep, toSteps := range b.edges {
		if !stepNames[fromStep] {
			return fmt.Errorf("%w: %s (referenced in edges)", ErrStepNotFound, fromStep)
		}
		for _, toStep := range toSteps {
			if !stepNames[toStep] {
				return fmt.Errorf("%w: %s (referenced in edges from %s)", ErrStepNotFound, toStep, fromStep)
			}
		}
	}

	return b.detectCycles()
}

func (b *Builder) detectCycles() error {
	detector := &cycleDetector{
		graph:    b.edges,
		visited:  make(map[string]bool),
		recStack: make(map[string]bool),
	}

	for _, step := range b.steps {
		if detector.hasCycleFrom(step.Name()) {
			return ErrCyclicDependency
		}
	}

	return nil
}

// cycleDetector implements DFS-based cycle detection for a directed graph.
type cycleDetector struct {
	graph    map[string][]string
	visited  map[string]bool
	recStack map[string]bool
}

func (d *cycleDetector) hasCycleFrom(node string) bool {
	if d.visited[node] {
		return false
	}
	return d.dfs(node)
}

func (d *cycleDetector) dfs(node string) bool {
	d.visited[node] = true
	d.recStack[node] = true

	if d.hasNeighborCycle(node) {
		return true
	}

	d.recStack[node] = false
	return false
}

func (d *cycleDetector) hasNeighborCycle(node string) bool {
	for _, neighbor := range d.graph[node] {
		if d.recStack[neighbor] {
			return true
		}
		if !d.visited[neighbor] && d.dfs(neighbor) {
			return true
		}
	}
	return false
}

// Clone creates a copy of the builder with its own edge map, so branching
// experiments on a clone don't mutate the original.
func (b *Builder) Clone() *Builder {
	clone := &Builder{
		steps:        make([]Step, len(b.steps)),
		edges:        make(map[string][]string),
		config:       b.config,
		eventEmitter: b.eventEmitter,
	}

	copy(clone.steps, b.steps)

	for fromStep, toSteps := range b.edges {
		clone.edges[fromStep] = make([]string, len(toSteps))
		copy(clone.edges[fromStep], toSteps)
	}

	return clone
}
