package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	json5 "github.com/yosuke-furukawa/json5/encoding/json5"

	"github.com/haasonsaas/camel/internal/ir"
)

// plannerSchema is the coarse shape contract for structured planner
// output. Detailed per-kind validation happens in the walker below, which
// produces exact JSON-path diagnostics.
const plannerSchema = `{
  "type": "object",
  "required": ["steps"],
  "properties": {
    "rationale": {"type": "string"},
    "steps": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["kind"],
        "properties": {
          "kind": {"enum": ["assign", "unpack", "tool", "qllm", "if", "for", "raise", "final"]}
        }
      }
    }
  }
}`

var compiledPlannerSchema = jsonschema.MustCompileString("planner.schema.json", plannerSchema)

// ParseStructured parses a structured JSON plan. Parsing is tolerant
// (JSON5: trailing commas, comments) because planners routinely emit
// near-JSON; validation is strict.
func ParseStructured(src string, allowed AllowSet) (*ir.Program, error) {
	var raw any
	if err := json.Unmarshal([]byte(src), &raw); err != nil {
		if err5 := json5.Unmarshal([]byte(src), &raw); err5 != nil {
			return nil, &Error{Message: fmt.Sprintf("invalid JSON: %v", err)}
		}
	}
	if err := compiledPlannerSchema.Validate(raw); err != nil {
		return nil, &Error{Message: schemaErrorMessage(err)}
	}

	root, ok := raw.(map[string]any)
	if !ok {
		return nil, &Error{Message: "plan must be a JSON object"}
	}
	w := &structWalker{allowed: allowed}
	program := &ir.Program{}
	if r, ok := root["rationale"].(string); ok {
		program.Rationale = r
	}
	rawSteps, _ := root["steps"].([]any)
	if len(rawSteps) == 0 {
		return nil, &Error{Message: "steps: empty program: at least one step is required"}
	}
	steps, err := w.steps("steps", rawSteps)
	if err != nil {
		return nil, err
	}
	if n := ir.CountSteps(steps); n > ir.MaxProgramSteps {
		return nil, &Error{Message: fmt.Sprintf("steps: program has %d steps, exceeding the budget of %d", n, ir.MaxProgramSteps)}
	}
	program.Steps = steps
	return program, nil
}

// schemaErrorMessage converts a jsonschema validation error into the
// steps[i].field diagnostic form.
func schemaErrorMessage(err error) string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err.Error()
	}
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	path := pointerToPath(leaf.InstanceLocation)
	if path == "" {
		return leaf.Message
	}
	return path + ": " + leaf.Message
}

// pointerToPath rewrites "/steps/2/tool" as "steps[2].tool".
func pointerToPath(ptr string) string {
	parts := strings.Split(strings.TrimPrefix(ptr, "/"), "/")
	var b strings.Builder
	for _, part := range parts {
		if part == "" {
			continue
		}
		if isDigits(part) {
			b.WriteString("[" + part + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteString(".")
		}
		b.WriteString(part)
	}
	return b.String()
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

type structWalker struct {
	allowed AllowSet
}

func pathErr(path, format string, args ...any) *Error {
	return &Error{Message: path + ": " + fmt.Sprintf(format, args...)}
}

func (w *structWalker) steps(path string, raw []any) ([]ir.Step, *Error) {
	steps := make([]ir.Step, 0, len(raw))
	for i, item := range raw {
		p := fmt.Sprintf("%s[%d]", path, i)
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, pathErr(p, "step must be an object")
		}
		step, err := w.step(p, obj)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func (w *structWalker) step(path string, obj map[string]any) (ir.Step, *Error) {
	kind, _ := obj["kind"].(string)
	switch kind {
	case "assign":
		target, err := w.name(path+".target", obj["target"])
		if err != nil {
			return nil, err
		}
		expr, err := w.expr(path+".expr", obj["expr"])
		if err != nil {
			return nil, err
		}
		return &ir.AssignStep{Target: target, Expr: expr}, nil

	case "unpack":
		targets, err := w.nameList(path+".targets", obj["targets"])
		if err != nil {
			return nil, err
		}
		expr, err := w.expr(path+".expr", obj["expr"])
		if err != nil {
			return nil, err
		}
		return &ir.UnpackStep{Targets: targets, Expr: expr}, nil

	case "tool":
		rawName, ok := obj["tool"].(string)
		if !ok {
			if rawName, ok = obj["name"].(string); !ok {
				return nil, pathErr(path+".tool", "tool name is required")
			}
		}
		canonical, ok := w.allowed.Resolve(rawName)
		if !ok {
			return nil, pathErr(path+".tool", "%s", w.allowed.UnknownToolMessage(rawName))
		}
		step := &ir.ToolStep{Name: canonical}
		if saveAs, present := obj["saveAs"]; present {
			name, err := w.name(path+".saveAs", saveAs)
			if err != nil {
				return nil, err
			}
			step.SaveAs = name
		}
		if rawArgs, present := obj["args"]; present {
			argsObj, ok := rawArgs.(map[string]any)
			if !ok {
				return nil, pathErr(path+".args", "args must be an object of name to expression")
			}
			for _, name := range sortedKeys(argsObj) {
				expr, err := w.expr(path+".args."+name, argsObj[name])
				if err != nil {
					return nil, err
				}
				step.Args = append(step.Args, ir.ToolArg{Name: name, Expr: expr})
			}
		}
		return step, nil

	case "qllm":
		saveAs, err := w.name(path+".saveAs", obj["saveAs"])
		if err != nil {
			return nil, err
		}
		instruction, ok := obj["instruction"].(string)
		if !ok || instruction == "" {
			return nil, pathErr(path+".instruction", "instruction must be a non-empty string")
		}
		input, err := w.expr(path+".input", obj["input"])
		if err != nil {
			return nil, err
		}
		schema, err := w.schema(path+".schema", obj["schema"])
		if err != nil {
			return nil, err
		}
		return &ir.QllmStep{SaveAs: saveAs, Instruction: instruction, Input: input, Schema: schema}, nil

	case "if":
		cond, err := w.expr(path+".cond", obj["cond"])
		if err != nil {
			return nil, err
		}
		// Accept the legacy "then" key; diagnostics always use the
		// canonical "thenBranch".
		thenRaw, present := obj["thenBranch"]
		if !present {
			thenRaw, present = obj["then"]
		}
		if !present {
			return nil, pathErr(path+".thenBranch", "if step requires a thenBranch")
		}
		thenArr, ok := thenRaw.([]any)
		if !ok {
			return nil, pathErr(path+".thenBranch", "thenBranch must be an array of steps")
		}
		then, werr := w.steps(path+".thenBranch", thenArr)
		if werr != nil {
			return nil, werr
		}
		step := &ir.IfStep{Cond: cond, Then: then}
		if elseRaw, present := obj["elseBranch"]; present {
			elseArr, ok := elseRaw.([]any)
			if !ok {
				return nil, pathErr(path+".elseBranch", "elseBranch must be an array of steps")
			}
			els, werr := w.steps(path+".elseBranch", elseArr)
			if werr != nil {
				return nil, werr
			}
			step.Else = els
		}
		return step, nil

	case "for":
		var targets []string
		switch item := obj["item"].(type) {
		case string:
			if !validName(item) {
				return nil, pathErr(path+".item", "invalid name %q", item)
			}
			targets = []string{item}
		case []any:
			var err *Error
			targets, err = w.nameList(path+".item", item)
			if err != nil {
				return nil, err
			}
		default:
			return nil, pathErr(path+".item", "item must be a name or array of names")
		}
		iter, err := w.expr(path+".iterable", obj["iterable"])
		if err != nil {
			return nil, err
		}
		bodyRaw, ok := obj["body"].([]any)
		if !ok {
			return nil, pathErr(path+".body", "body must be an array of steps")
		}
		body, werr := w.steps(path+".body", bodyRaw)
		if werr != nil {
			return nil, werr
		}
		return &ir.ForStep{Targets: targets, Iterable: iter, Body: body}, nil

	case "raise":
		expr, err := w.expr(path+".error", obj["error"])
		if err != nil {
			return nil, err
		}
		return &ir.RaiseStep{Err: expr}, nil

	case "final":
		text, ok := obj["text"].(string)
		if !ok {
			return nil, pathErr(path+".text", "text must be a string")
		}
		return &ir.FinalStep{Text: text}, nil

	default:
		return nil, pathErr(path+".kind", "unknown step kind %q", kind)
	}
}

func (w *structWalker) name(path string, raw any) (string, *Error) {
	s, ok := raw.(string)
	if !ok || !validName(s) {
		return "", pathErr(path, "expected a valid identifier")
	}
	return s, nil
}

func (w *structWalker) nameList(path string, raw any) ([]string, *Error) {
	arr, ok := raw.([]any)
	if !ok || len(arr) == 0 {
		return nil, pathErr(path, "expected a non-empty array of names")
	}
	out := make([]string, 0, len(arr))
	for i, item := range arr {
		name, err := w.name(fmt.Sprintf("%s[%d]", path, i), item)
		if err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, nil
}

// expr parses an expression-valued field. Expressions are strings in the
// code dialect so both front-ends share one grammar.
func (w *structWalker) expr(path string, raw any) (ir.Expr, *Error) {
	src, ok := raw.(string)
	if !ok {
		return nil, pathErr(path, "expected an expression string")
	}
	e, err := ParseExprString(src, w.allowed)
	if err != nil {
		return nil, pathErr(path, "%s", err.Message)
	}
	return e, nil
}

func (w *structWalker) schema(path string, raw any) (*ir.Schema, *Error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, pathErr(path, "schema must be an object")
	}
	schema := &ir.Schema{Fields: map[string]*ir.FieldSpec{}}
	if d, ok := obj["description"].(string); ok {
		schema.Description = d
	}
	fieldsRaw, present := obj["fields"]
	if !present {
		fieldsRaw, present = obj["properties"]
	}
	if !present {
		return nil, pathErr(path+".fields", "schema requires a fields object")
	}
	fieldsObj, ok := fieldsRaw.(map[string]any)
	if !ok || len(fieldsObj) == 0 {
		return nil, pathErr(path+".fields", "fields must be a non-empty object")
	}
	for _, name := range sortedKeys(fieldsObj) {
		spec, err := w.fieldSpec(path+".fields."+name, fieldsObj[name])
		if err != nil {
			return nil, err
		}
		schema.Fields[name] = spec
		schema.FieldOrder = append(schema.FieldOrder, name)
	}
	if err := schema.Validate(); err != nil {
		return nil, pathErr(path, "%v", err)
	}
	return schema, nil
}

func (w *structWalker) fieldSpec(path string, raw any) (*ir.FieldSpec, *Error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, pathErr(path, "field spec must be an object")
	}
	spec := &ir.FieldSpec{Type: ir.TypeString}
	if t, present := obj["type"]; present {
		s, ok := t.(string)
		if !ok || !ir.ValidFieldType(s) {
			return nil, pathErr(path+".type", "unknown field type %v", t)
		}
		spec.Type = s
	}
	if r, present := obj["required"]; present {
		b, ok := r.(bool)
		if !ok {
			return nil, pathErr(path+".required", "required must be a boolean")
		}
		spec.Required = b
	}
	if d, ok := obj["description"].(string); ok {
		spec.Description = d
	}
	if items, present := obj["items"]; present {
		sub, err := w.fieldSpec(path+".items", items)
		if err != nil {
			return nil, err
		}
		spec.Items = sub
	}
	if props, present := obj["properties"]; present {
		propsObj, ok := props.(map[string]any)
		if !ok {
			return nil, pathErr(path+".properties", "properties must be an object")
		}
		spec.Properties = map[string]*ir.FieldSpec{}
		for _, name := range sortedKeys(propsObj) {
			sub, err := w.fieldSpec(path+".properties."+name, propsObj[name])
			if err != nil {
				return nil, err
			}
			spec.Properties[name] = sub
			spec.PropOrder = append(spec.PropOrder, name)
		}
	}
	return spec, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// insertion order is unavailable after JSON decoding; sort for
	// deterministic diagnostics and traces.
	sort.Strings(keys)
	return keys
}

// looksLikeJSON reports whether planner output should be routed to the
// structured front-end.
func looksLikeJSON(src string) bool {
	trimmed := bytes.TrimLeft([]byte(src), " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func validName(s string) bool {
	if s == "" {
		return false
	}
	if !isNameStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isNameChar(s[i]) {
			return false
		}
	}
	return dialectKeywordsOK(s)
}

func dialectKeywordsOK(s string) bool {
	return !dialectKeywords[s] && !rejectedKeywords[s]
}
