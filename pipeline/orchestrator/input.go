// Package orchestrator is the minimal input driver for an assembled
// pipeline: it that resolves an input document from CLI/env/
// stdin, validates it, decodes it into domain values, and drives them
// through an assembled pipeline to completion.
package orchestrator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// EnvInput is the environment variable carrying a single JSON input object.
const EnvInput = "PIPELINE_INPUT"

// EnvInputList is the environment variable carrying a JSON array of input
// objects.
const EnvInputList = "PIPELINE_INPUT_LIST"

// InputSource identifies where a resolved input document came from, for
// diagnostics and USAGE error messages.
type InputSource string

const (
	SourceFlag   InputSource = "flag"
	SourceEnv    InputSource = "env"
	SourceStdin  InputSource = "stdin"
	SourceNone   InputSource = "none"
)

// Getenv abstracts environment lookup so ResolveInput is testable without
// mutating the process environment.
type Getenv func(key string) string

// ResolveInput resolves the input document by precedence: CLI flag over
// env var over stdin. flagInput/flagInputList are the raw values of
// -i/--input and --input-list, empty if unset.
func ResolveInput(flagInput, flagInputList string, getenv Getenv, stdin io.Reader) (json.RawMessage, InputSource, error) {
	if flagInput != "" {
		return json.RawMessage(flagInput), SourceFlag, nil
	}
	if flagInputList != "" {
		return json.RawMessage(flagInputList), SourceFlag, nil
	}

	if v := getenv(EnvInput); v != "" {
		return json.RawMessage(v), SourceEnv, nil
	}
	if v := getenv(EnvInputList); v != "" {
		return json.RawMessage(v), SourceEnv, nil
	}

	if stdin != nil {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, SourceNone, fmt.Errorf("reading stdin: %w", err)
		}
		if trimmed := strings.TrimSpace(string(data)); trimmed != "" {
			return json.RawMessage(trimmed), SourceStdin, nil
		}
	}

	return nil, SourceNone, ErrNoInput
}

// DocumentKind is whether a resolved input document is a single object or
// an array of objects; mixed or ambiguous types are rejected.
type DocumentKind int

const (
	// KindUnary is a single JSON object: one-item orchestration.
	KindUnary DocumentKind = iota
	// KindStream is a JSON array of objects: stream orchestration.
	KindStream
)

// ClassifyDocument inspects raw's first non-whitespace byte to decide
// whether it is a JSON object or array, without fully parsing it.
func ClassifyDocument(raw json.RawMessage) (DocumentKind, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0, ErrMalformedInput
	}
	switch trimmed[0] {
	case '{':
		return KindUnary, nil
	case '[':
		return KindStream, nil
	default:
		return 0, ErrMalformedInput
	}
}

// SplitItems decodes raw into a slice of raw per-item JSON documents,
// regardless of whether it was a single object or an array.
func SplitItems(raw json.RawMessage) ([]json.RawMessage, error) {
	kind, err := ClassifyDocument(raw)
	if err != nil {
		return nil, err
	}

	if kind == KindUnary {
		return []json.RawMessage{raw}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	return items, nil
}
