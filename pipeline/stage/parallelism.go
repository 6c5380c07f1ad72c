package stage

import (
	"fmt"

	"github.com/streamforge/pipelinecore/logger"
)

// DispatchMode is the resolved concurrency mode for a single step, derived
// from the pipeline-wide Parallelism policy and the step's own ordering and
// thread-safety declarations.
type DispatchMode int

const (
	// DispatchSequential serializes the step onto a single worker.
	DispatchSequential DispatchMode = iota
	// DispatchParallel permits concurrent invocation across distinct items.
	DispatchParallel
)

// ResolveDispatchMode applies the parallelism decision table to a single
// step declaration. It returns the resolved mode, or a *ConfigurationError
// when the combination is disallowed outright.
func ResolveDispatchMode(policy Parallelism, decl Declaration) (DispatchMode, error) {
	switch decl.Ordering {
	case OrderingStrictRequired:
		if policy != ParallelismSequential {
			return DispatchSequential, conflictError(policy, decl)
		}
		return DispatchSequential, nil

	case OrderingStrictAdvised:
		switch decl.ThreadSafety {
		case ThreadSafetySafe:
			switch policy {
			case ParallelismAuto:
				warnDowngrade(decl, policy, "ordering is strict-advised; staying sequential under AUTO")
				return DispatchSequential, nil
			case ParallelismParallel:
				warnDowngrade(decl, policy, "ordering is strict-advised; dispatching in parallel per explicit policy")
				return DispatchParallel, nil
			default:
				return DispatchSequential, nil
			}
		case ThreadSafetyUnsafe:
			if policy != ParallelismSequential {
				return DispatchSequential, conflictError(policy, decl)
			}
			return DispatchSequential, nil
		}

	case OrderingRelaxed:
		switch decl.ThreadSafety {
		case ThreadSafetySafe:
			switch policy {
			case ParallelismAuto, ParallelismParallel:
				return DispatchParallel, nil
			default:
				return DispatchSequential, nil
			}
		case ThreadSafetyUnsafe:
			if policy != ParallelismSequential {
				return DispatchSequential, conflictError(policy, decl)
			}
			return DispatchSequential, nil
		}
	}

	return DispatchSequential, nil
}

func conflictError(policy Parallelism, decl Declaration) error {
	return NewConfigurationError(
		fmt.Sprintf(
			"step %q declares ordering=%v thread-safety=%v, incompatible with pipeline parallelism=%v",
			decl.Name, decl.Ordering, decl.ThreadSafety, policy,
		),
		nil,
	)
}

func warnDowngrade(decl Declaration, policy Parallelism, reason string) {
	logger.Warn("Pipeline parallelism downgrade",
		"step", decl.Name,
		"ordering", decl.Ordering,
		"thread_safety", decl.ThreadSafety,
		"policy", policy,
		"reason", reason,
	)
}

// ValidateParallelism resolves every step's dispatch mode up front and
// reports the first disallowed combination, naming the offending step and
// its declared hints, matching the pipeline's build-time validation passes.
func ValidateParallelism(policy Parallelism, decls []Declaration) error {
	for _, decl := range decls {
		if policy == ParallelismAuto && (decl.Ordering != OrderingRelaxed || decl.ThreadSafety != ThreadSafetySafe) {
			logger.Warn("Pipeline parallelism unset for a non-default step",
				"step", decl.Name,
				"ordering", decl.Ordering,
				"thread_safety", decl.ThreadSafety,
			)
		}
		if _, err := ResolveDispatchMode(policy, decl); err != nil {
			return err
		}
	}
	return nil
}
