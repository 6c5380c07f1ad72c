package orchestrator

import "errors"

// ErrNoInput is returned when no input document was found on the CLI flag,
// environment, or stdin.
var ErrNoInput = errors.New("orchestrator: no input provided")

// ErrMalformedInput is returned when the resolved input is not valid JSON,
// or is neither a JSON object nor a JSON array.
var ErrMalformedInput = errors.New("orchestrator: malformed input: expected a JSON object or array")

// ExitCode is a process exit status.
type ExitCode int

const (
	// ExitOK is returned on successful completion of every input item.
	ExitOK ExitCode = 0
	// ExitUsage is returned for missing or invalid input (ErrNoInput,
	// ErrMalformedInput, schema validation failure).
	ExitUsage ExitCode = 64
	// ExitFailure is returned for any other runtime failure (pipeline
	// assembly, startup timeout, pipeline execution failure).
	ExitFailure ExitCode = 1
)

// ClassifyExit maps a Run error to its process exit code.
func ClassifyExit(err error) ExitCode {
	if err == nil {
		return ExitOK
	}
	if errors.Is(err, ErrNoInput) || errors.Is(err, ErrMalformedInput) {
		return ExitUsage
	}
	var usageErr *UsageError
	if errors.As(err, &usageErr) {
		return ExitUsage
	}
	return ExitFailure
}

// UsageError wraps a schema validation failure as a USAGE exit.
type UsageError struct {
	Reason string
	Err    error
}

func (e *UsageError) Error() string {
	if e.Err != nil {
		return "invalid input: " + e.Reason + ": " + e.Err.Error()
	}
	return "invalid input: " + e.Reason
}

func (e *UsageError) Unwrap() error { return e.Err }
