package orchestrator

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// SchemaValidator validates resolved input documents against a pipeline's
// generated input schema before decoding, so malformed input is rejected
// with a USAGE exit before it can reach the executor.
type SchemaValidator struct {
	schema gojsonschema.JSONLoader
}

// NewSchemaValidator compiles schemaJSON (a JSON Schema document) for reuse
// across every item of a stream orchestration.
func NewSchemaValidator(schemaJSON []byte) *SchemaValidator {
	return &SchemaValidator{schema: gojsonschema.NewBytesLoader(schemaJSON)}
}

// Validate checks item against the compiled schema, returning a *UsageError
// describing every violation when it does not conform.
func (v *SchemaValidator) Validate(item json.RawMessage) error {
	if v == nil || v.schema == nil {
		return nil
	}

	result, err := gojsonschema.Validate(v.schema, gojsonschema.NewBytesLoader(item))
	if err != nil {
		return &UsageError{Reason: "schema could not be evaluated", Err: err}
	}
	if result.Valid() {
		return nil
	}

	msg := "input does not conform to schema"
	for i, e := range result.Errors() {
		detail := fmt.Sprintf("%s: %s", e.Field(), e.Description())
		if i == 0 {
			msg = fmt.Sprintf("%s: %s", msg, detail)
			continue
		}
		msg = fmt.Sprintf("%s; %s", msg, detail)
	}
	return &UsageError{Reason: msg}
}
