package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/streamforge/pipelinecore/logger"
	"github.com/streamforge/pipelinecore/pipeline/stage"
)

// maxConcurrentDecodes bounds how many items are validated/decoded at once,
// so a large --input-list document can't spawn one goroutine per item.
const maxConcurrentDecodes = 16

// Decoder converts one item's raw JSON into the domain type the assembled
// pipeline's root step accepts.
type Decoder[T any] func(json.RawMessage) (T, error)

// Orchestrator drives a resolved input document through an assembled
// pipeline to completion: validate
// -> decode -> await readiness -> execute -> collect -> exit code.
type Orchestrator[T any] struct {
	Pipeline       *stage.Pipeline
	Steps          []stage.Step
	Validator      *SchemaValidator
	Decode         Decoder[T]
	// StartupTimeout overrides stage.DefaultStartupTimeout when non-zero.
	StartupTimeout time.Duration
}

// decodeItems validates and decodes every item concurrently, bounded by
// maxConcurrentDecodes, then reports the lowest-index item's error (if any)
// so the reported failure is deterministic regardless of goroutine
// scheduling.
func (o *Orchestrator[T]) decodeItems(ctx context.Context, items []json.RawMessage) ([]stage.StreamElement, error) {
	elements := make([]stage.StreamElement, len(items))
	errs := make([]error, len(items))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(maxConcurrentDecodes)

	for i, item := range items {
		i, item := i, item
		group.Go(func() error {
			if groupCtx.Err() != nil {
				return nil
			}
			if o.Validator != nil {
				if verr := o.Validator.Validate(item); verr != nil {
					errs[i] = verr
					return nil
				}
			}
			domain, derr := o.Decode(item)
			if derr != nil {
				errs[i] = &UsageError{Reason: "failed to decode input item", Err: derr}
				return nil
			}
			elements[i] = stage.NewElement(domain)
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return elements, nil
}

func (o *Orchestrator[T]) startupTimeout() time.Duration {
	if o.StartupTimeout > 0 {
		return o.StartupTimeout
	}
	return stage.DefaultStartupTimeout
}

// Run resolves raw into one or more items, validates and decodes each,
// awaits startup readiness, executes the pipeline, and drains its output.
// It returns the process exit code alongside any error that produced it.
func (o *Orchestrator[T]) Run(ctx context.Context, raw json.RawMessage) ([]stage.StreamElement, ExitCode, error) {
	items, err := SplitItems(raw)
	if err != nil {
		return nil, ExitUsage, err
	}

	elements, err := o.decodeItems(ctx, items)
	if err != nil {
		return nil, ExitUsage, err
	}

	if err := stage.AwaitReady(ctx, o.Steps, o.startupTimeout()); err != nil {
		return nil, ExitFailure, err
	}

	input := make(chan stage.StreamElement, len(elements))
	for _, e := range elements {
		input <- e
	}
	close(input)

	output, err := o.Pipeline.Execute(ctx, input)
	if err != nil {
		return nil, ExitFailure, err
	}

	var (
		results  []stage.StreamElement
		firstErr error
	)
	for elem := range output {
		if elem.Error != nil && firstErr == nil {
			firstErr = elem.Error
		}
		results = append(results, elem)
	}

	if firstErr != nil {
		logger.Error("orchestrator run completed with errors", "error", firstErr)
		return results, ExitFailure, fmt.Errorf("pipeline run failed: %w", firstErr)
	}

	return results, ExitOK, nil
}
