package ir

import (
	"fmt"
	"sort"
)

// Field types accepted by extraction schemas.
const (
	TypeString   = "string"
	TypeNumber   = "number"
	TypeInteger  = "integer"
	TypeBoolean  = "boolean"
	TypeEmail    = "email"
	TypeDatetime = "datetime"
	TypeArray    = "array"
	TypeObject   = "object"
)

var validFieldTypes = map[string]bool{
	TypeString: true, TypeNumber: true, TypeInteger: true, TypeBoolean: true,
	TypeEmail: true, TypeDatetime: true, TypeArray: true, TypeObject: true,
}

// ValidFieldType reports whether t is an accepted schema field type.
func ValidFieldType(t string) bool { return validFieldTypes[t] }

// FieldSpec describes one extraction schema field.
type FieldSpec struct {
	Type        string
	Required    bool
	Description string

	// Items describes array elements; nil defaults to string.
	Items *FieldSpec

	// Properties describes object children, with PropOrder preserving
	// declaration order for deterministic prompts.
	Properties map[string]*FieldSpec
	PropOrder  []string
}

// Schema describes the structured output contract of a quarantined
// extraction call.
type Schema struct {
	Description string
	Fields      map[string]*FieldSpec
	FieldOrder  []string
}

// Validate checks that every field uses an accepted type and that array
// and object fields are internally consistent.
func (s *Schema) Validate() error {
	if s == nil || len(s.Fields) == 0 {
		return fmt.Errorf("schema requires at least one field")
	}
	for _, name := range s.OrderedFieldNames() {
		if err := s.Fields[name].validate(name); err != nil {
			return err
		}
	}
	return nil
}

func (f *FieldSpec) validate(path string) error {
	if f == nil {
		return fmt.Errorf("field %s: missing spec", path)
	}
	if !ValidFieldType(f.Type) {
		return fmt.Errorf("field %s: unknown type %q", path, f.Type)
	}
	if f.Type == TypeArray && f.Items != nil {
		if err := f.Items.validate(path + ".items"); err != nil {
			return err
		}
	}
	if f.Type == TypeObject {
		if len(f.Properties) == 0 {
			return fmt.Errorf("field %s: object requires properties", path)
		}
		for _, name := range f.orderedProps() {
			if err := f.Properties[name].validate(path + "." + name); err != nil {
				return err
			}
		}
	}
	return nil
}

// OrderedFieldNames returns field names in declaration order, falling back
// to sorted order when the schema came from an unordered source.
func (s *Schema) OrderedFieldNames() []string {
	if len(s.FieldOrder) == len(s.Fields) {
		return s.FieldOrder
	}
	names := make([]string, 0, len(s.Fields))
	for n := range s.Fields {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (f *FieldSpec) orderedProps() []string {
	if len(f.PropOrder) == len(f.Properties) {
		return f.PropOrder
	}
	names := make([]string, 0, len(f.Properties))
	for n := range f.Properties {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// OrderedProps exposes object child names in declaration order.
func (f *FieldSpec) OrderedProps() []string { return f.orderedProps() }

// JSONSchema compiles the extraction schema into a JSON Schema document
// (draft 2020-12 compatible subset) used to validate model replies before
// field coercion. Email and datetime map to string with format hints;
// their strict checks happen during coercion.
func (s *Schema) JSONSchema() map[string]any {
	props := map[string]any{
		"have_enough_information": map[string]any{"type": "boolean"},
	}
	required := []string{"have_enough_information"}
	for _, name := range s.OrderedFieldNames() {
		f := s.Fields[name]
		props[name] = f.jsonSchema()
		if f.Required {
			required = append(required, name)
		}
	}
	doc := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	return doc
}

func (f *FieldSpec) jsonSchema() map[string]any {
	switch f.Type {
	case TypeArray:
		items := f.Items
		if items == nil {
			items = &FieldSpec{Type: TypeString}
		}
		return map[string]any{"type": "array", "items": items.jsonSchema()}
	case TypeObject:
		props := map[string]any{}
		var required []string
		for _, name := range f.orderedProps() {
			child := f.Properties[name]
			props[name] = child.jsonSchema()
			if child.Required {
				required = append(required, name)
			}
		}
		doc := map[string]any{"type": "object", "properties": props}
		if len(required) > 0 {
			doc["required"] = required
		}
		return doc
	case TypeInteger:
		// Strings are admitted here so "42" can pass coercion, which
		// still rejects non-integral values.
		return map[string]any{"type": []any{"integer", "string"}}
	case TypeNumber:
		return map[string]any{"type": []any{"number", "string"}}
	case TypeBoolean:
		// Booleans may arrive as true/false, "true"/"false", or 0/1.
		return map[string]any{}
	case TypeEmail:
		return map[string]any{"type": "string", "format": "email"}
	case TypeDatetime:
		return map[string]any{"type": "string"}
	default:
		return map[string]any{"type": "string"}
	}
}
