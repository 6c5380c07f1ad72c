package aspect

import (
	"github.com/jmespath/go-jmespath"

	"github.com/streamforge/pipelinecore/pipeline/stage"
)

// FieldMapper projects a decoded wire payload (already unmarshaled into a
// generic map/slice/scalar tree) into the shape a TypeMapping's DomainType
// expects. A TypeMapping whose Mapper names a generated function has no
// FieldMapper; one whose Mapper is a JMESPath expression gets one compiled
// by ResolveMapper, letting a simple field rename or nesting change skip
// codegen entirely.
type FieldMapper func(document any) (any, error)

// ResolveMapper compiles m.Mapper as a JMESPath expression. It returns
// (nil, nil) when m.Mapper is empty (no projection needed, or the mapping
// uses a generated function by convention instead).
func ResolveMapper(m TypeMapping) (FieldMapper, error) {
	if m.Mapper == "" {
		return nil, nil
	}

	expr, err := jmespath.Compile(m.Mapper)
	if err != nil {
		return nil, stage.NewConfigurationError(
			"type mapping names a mapper that is not a valid JMESPath expression: "+m.DomainType+" -> "+m.WireType,
			err,
		)
	}

	return func(document any) (any, error) {
		return expr.Search(document)
	}, nil
}
