// Command orchestrator is the minimal pipeline input driver: it resolves one input document from the CLI/environment/
// stdin, validates and decodes it, and drives it through an assembled
// pipeline to completion.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/streamforge/pipelinecore/events"
	"github.com/streamforge/pipelinecore/logger"
	"github.com/streamforge/pipelinecore/pipeline/orchestrator"
	"github.com/streamforge/pipelinecore/pipeline/reactive"
	"github.com/streamforge/pipelinecore/pipeline/serveradapter"
	"github.com/streamforge/pipelinecore/pipeline/stage"
	"github.com/streamforge/pipelinecore/telemetry"
)

// item is the demo pipeline's domain type: a single named record decoded
// from an {"id": "..."} input document.
type item struct {
	ID string `json:"id"`
}

func main() {
	os.Exit(int(run(os.Args[1:], os.Getenv, os.Stdin, os.Stdout, os.Stderr)))
}

func run(args []string, getenv orchestrator.Getenv, stdin io.Reader, stdout, stderr io.Writer) orchestrator.ExitCode {
	fs := flag.NewFlagSet("orchestrator", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var flagInput, flagInputList string
	fs.StringVar(&flagInput, "i", "", "JSON input object")
	fs.StringVar(&flagInput, "input", "", "JSON input object")
	fs.StringVar(&flagInputList, "input-list", "", "JSON input array")

	if err := fs.Parse(args); err != nil {
		return orchestrator.ExitUsage
	}

	ctx, cancel := orchestrator.NotifyShutdown(context.Background())
	defer cancel()

	tp, err := setupTelemetry(ctx)
	if err != nil {
		logger.Warn("telemetry provider unavailable, continuing without tracing", "error", err)
	}
	defer flushTelemetry(tp)

	raw, _, err := orchestrator.ResolveInput(flagInput, flagInputList, getenv, stdin)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return orchestrator.ExitUsage
	}

	orch, err := buildOrchestrator()
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return orchestrator.ExitFailure
	}

	results, code, err := orch.Run(ctx, raw)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return code
	}

	for _, elem := range results {
		encoded, encErr := json.Marshal(elem.Payload)
		if encErr != nil {
			continue
		}
		fmt.Fprintln(stdout, string(encoded))
	}

	return code
}

// buildOrchestrator assembles the demo identity pipeline this binary ships
// with: a single UNARY_UNARY Server Adapter. A generated pipeline replaces
// this assembly with its own steps; the Orchestrator Surface plumbing above
// it is unchanged.
func buildOrchestrator() (*orchestrator.Orchestrator[item], error) {
	bus := events.NewEventBus()
	emitter := events.NewEmitter(bus, stage.NewRunID())

	echo := serveradapter.NewUnaryUnary[item, item, item, item](
		"echo", serveradapter.ServiceInfo{Service: "orchestrator", Method: "Echo"},
		serveradapter.Identity[item], serveradapter.Identity[item],
		func(_ context.Context, in item) reactive.Single[item] { return reactive.Just(in) },
		serveradapter.Options{Emitter: emitter},
	)

	pipeline, err := stage.NewBuilder().
		WithEventEmitter(emitter).
		AddStep(echo).
		Build()
	if err != nil {
		return nil, stage.NewConfigurationError("failed to assemble pipeline", err)
	}

	return &orchestrator.Orchestrator[item]{
		Pipeline: pipeline,
		Steps:    []stage.Step{echo},
		Decode: func(raw json.RawMessage) (item, error) {
			var v item
			err := json.Unmarshal(raw, &v)
			return v, err
		},
	}, nil
}

func setupTelemetry(ctx context.Context) (shutdownFunc, error) {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		return nil, nil
	}

	tp, err := telemetry.NewTracerProvider(ctx, endpoint, "pipelinecore-orchestrator")
	if err != nil {
		return nil, err
	}
	telemetry.SetupPropagation()
	return tp.Shutdown, nil
}

type shutdownFunc func(ctx context.Context) error

func flushTelemetry(shutdown shutdownFunc) {
	if shutdown == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Warn("telemetry flush failed", "error", err)
	}
}
