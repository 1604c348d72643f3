package tools

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// SchemaFor derives a parameter schema from a Go argument struct, so tool
// authors declare arguments once. The schema is inlined (no $ref/$defs)
// and stripped of reflector metadata before it reaches planner prompts.
func SchemaFor[T any]() (map[string]any, error) {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		Anonymous:      true,
	}
	var zero T
	schema := r.Reflect(&zero)

	b, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("cannot serialize derived schema: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("cannot decode derived schema: %w", err)
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out, nil
}

// MustSchemaFor is SchemaFor for static registration sites where a failure
// is a programming error.
func MustSchemaFor[T any]() map[string]any {
	s, err := SchemaFor[T]()
	if err != nil {
		panic(err)
	}
	return s
}
