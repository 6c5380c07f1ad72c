package aspect

import (
	"sort"
	"strings"

	"github.com/streamforge/pipelinecore/pipeline/stage"
)

// Expand transforms originalTargets and aspects into an ExpandedPipeline:
//
//  1. Partition aspects into GLOBAL (every step) and STEPS (named targets).
//  2. Within each partition, sort by (position, order) ascending, ties
//     broken by declaration order.
//  3. Validate every STEPS aspect's targetSteps against the declared step
//     names (when there is more than one original step).
//  4. For each original step, in order: applicable BEFORE_STEP synthetics,
//     the step itself, applicable AFTER_STEP synthetics.
//  5. Deduplicate synthetic steps by (serviceName, aspectName, position).
//
// Already-expanded targets (Step.Declaration().SideEffect == true) pass
// through unchanged: aspects never wrap a synthetic step, which is what
// makes Expand idempotent on its own output.
func Expand(targets []Target, aspects []Aspect) (ExpandedPipeline, error) {
	if err := validateAspects(targets, aspects); err != nil {
		return nil, err
	}

	global, perStep := partition(aspects)
	sortAspects(global)
	for _, list := range perStep {
		sortAspects(list)
	}

	var out ExpandedPipeline
	seen := make(map[string]bool)

	for _, target := range targets {
		decl := declarationOf(target.Step)
		if decl.SideEffect {
			out = append(out, ResolvedStep{Step: target.Step, Synthetic: false})
			continue
		}

		applicable := append(append([]Aspect{}, global...), perStep[target.Step.Name()]...)
		sortAspects(applicable)

		before, after := splitByPosition(applicable)

		befores, err := syntheticSteps(before, target, PositionBeforeStep, seen)
		if err != nil {
			return nil, err
		}
		out = append(out, befores...)

		out = append(out, ResolvedStep{Step: target.Step, Synthetic: false})

		afters, err := syntheticSteps(after, target, PositionAfterStep, seen)
		if err != nil {
			return nil, err
		}
		out = append(out, afters...)
	}

	return out, nil
}

func declarationOf(s stage.Step) stage.Declaration {
	if d, ok := s.(interface{ Declaration() stage.Declaration }); ok {
		return d.Declaration()
	}
	return stage.Declaration{Name: s.Name(), Shape: s.Shape()}
}

func partition(aspects []Aspect) (global []Aspect, perStep map[string][]Aspect) {
	perStep = make(map[string][]Aspect)
	for _, a := range aspects {
		if a.Scope == ScopeGlobal {
			global = append(global, a)
			continue
		}
		for _, name := range a.Config.TargetSteps() {
			perStep[name] = append(perStep[name], a)
		}
	}
	return global, perStep
}

func sortAspects(aspects []Aspect) {
	sort.SliceStable(aspects, func(i, j int) bool {
		if aspects[i].Position != aspects[j].Position {
			return aspects[i].Position < aspects[j].Position
		}
		return aspects[i].Order < aspects[j].Order
	})
}

func splitByPosition(aspects []Aspect) (before, after []Aspect) {
	for _, a := range aspects {
		if a.Position == PositionBeforeStep {
			before = append(before, a)
		} else {
			after = append(after, a)
		}
	}
	return before, after
}

// validateAspects enforces the ConfigurationError checks that must hold
// before any synthetic step is built: every STEPS aspect's targetSteps names
// an existing step (when there is more than one original step), and every
// aspect names a pluginImplementationClass.
func validateAspects(targets []Target, aspects []Aspect) error {
	names := make(map[string]bool, len(targets))
	for _, t := range targets {
		names[t.Step.Name()] = true
	}

	for _, a := range aspects {
		if a.Config.PluginImplementationClass() == "" {
			return stage.NewConfigurationError(
				"aspect \""+a.Name+"\" declares no pluginImplementationClass", nil,
			)
		}
		if a.Scope != ScopeSteps || len(targets) <= 1 {
			continue
		}
		for _, target := range a.Config.TargetSteps() {
			if !names[target] {
				return stage.NewConfigurationError(
					"aspect \""+a.Name+"\" targets unknown step \""+target+"\"", nil,
				)
			}
		}
	}
	return nil
}

// syntheticSteps builds one synthetic observer step per aspect in order,
// typed on target's input (BEFORE_STEP) or output (AFTER_STEP), and applies
// the global dedup-by-key rule.
func syntheticSteps(
	aspects []Aspect, target Target, pos Position, seen map[string]bool,
) ([]ResolvedStep, error) {
	mapping := target.Input
	if pos == PositionAfterStep {
		mapping = target.Output
	}

	var out []ResolvedStep
	for _, a := range aspects {
		if mapping.DomainType == "" {
			return nil, stage.NewConfigurationError(
				"step \""+target.Step.Name()+"\" lacks the "+mappingKind(pos)+
					" type mapping required to type aspect \""+a.Name+"\"", nil,
			)
		}
		if err := mapping.Validate(); err != nil {
			return nil, err
		}

		serviceName := syntheticServiceName(a.Name, mapping.messageName(target.Remote))
		key := serviceName + "|" + a.Name + "|" + pos.String()
		if seen[key] {
			continue
		}
		seen[key] = true

		out = append(out, ResolvedStep{
			Step:      stage.NewPassthroughStep(serviceName, a.Config.OnElement()),
			Synthetic: true,
		})
	}
	return out, nil
}

func mappingKind(pos Position) string {
	if pos == PositionAfterStep {
		return "output"
	}
	return "input"
}

// syntheticServiceName builds "Observe" + PascalCase(aspectName) +
// messageName + "SideEffectService".
func syntheticServiceName(aspectName, messageName string) string {
	return "Observe" + pascalCase(aspectName) + messageName + "SideEffectService"
}

func pascalCase(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return r == '-' || r == '_' || r == ' '
	})
	var b strings.Builder
	for _, w := range words {
		if w == "" {
			continue
		}
		b.WriteString(strings.ToUpper(w[:1]))
		b.WriteString(w[1:])
	}
	return b.String()
}

// simpleName strips any package/path qualifier, returning the last
// '.'-or-'/'-separated segment of a type name.
func simpleName(typeName string) string {
	name := typeName
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return name
}
