// Package extract implements the quarantined extraction primitive: the
// only path by which model-generated content enters the typed value model.
// A second model is prompted under a strict JSON contract and its reply is
// validated and coerced against an explicit field schema.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/camel/internal/ir"
	"github.com/haasonsaas/camel/internal/prompts"
	"github.com/haasonsaas/camel/internal/providers"
	"github.com/haasonsaas/camel/internal/value"
	"github.com/haasonsaas/camel/pkg/models"
)

// maxAttempts bounds extraction retries within one qllm call.
const maxAttempts = 10

// haveInfoField is the mandatory flag of every extraction reply.
const haveInfoField = "have_enough_information"

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// datetimeLayouts are the accepted date spellings, tried in order.
var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Options configures an Extractor.
type Options struct {
	// Client issues the extraction model calls. Required.
	Client providers.ModelClient

	// Model is the extraction model identifier.
	Model string

	// OnUsage receives the token usage of every model call. Optional.
	OnUsage func(models.TokenUsage)

	// Logger logs attempt outcomes. Optional.
	Logger *slog.Logger
}

// Extractor runs query_ai_assistant calls. Safe for concurrent use.
type Extractor struct {
	client  providers.ModelClient
	model   string
	onUsage func(models.TokenUsage)
	log     *slog.Logger
}

// New creates an Extractor.
func New(opts Options) *Extractor {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{
		client:  opts.Client,
		model:   opts.Model,
		onUsage: opts.OnUsage,
		log:     log,
	}
}

// Extract prompts the extraction model and returns the coerced structured
// dict. It retries up to 10 times on insufficient information, malformed
// JSON, or coercion failure; the returned error is always a trusted
// diagnostic.
func (e *Extractor) Extract(ctx context.Context, instruction string, input value.Value, schema *ir.Schema) (value.Value, error) {
	if schema == nil {
		return value.Null(), fmt.Errorf("extraction requires a schema")
	}
	if err := schema.Validate(); err != nil {
		return value.Null(), err
	}

	inputJSON, err := json.Marshal(input)
	if err != nil {
		return value.Null(), fmt.Errorf("cannot serialize extraction input: %w", err)
	}
	docJSON, err := json.Marshal(schema.JSONSchema())
	if err != nil {
		return value.Null(), fmt.Errorf("cannot serialize extraction schema: %w", err)
	}
	compiled, err := jsonschema.CompileString("extraction.json", string(docJSON))
	if err != nil {
		return value.Null(), fmt.Errorf("cannot compile extraction schema: %w", err)
	}

	req := &providers.Request{
		Model:     e.model,
		System:    prompts.ExtractionSystem(),
		MaxTokens: prompts.ExtractionMaxTokens,
		Messages: []models.ChatMessage{{
			Role:    "user",
			Content: prompts.ExtractionUser(instruction, string(inputJSON), string(docJSON)),
		}},
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return value.Null(), fmt.Errorf("extraction aborted")
		}
		msg, callErr := e.client.Complete(ctx, req)
		if callErr != nil {
			return value.Null(), fmt.Errorf("extraction model call failed: %w", callErr)
		}
		if e.onUsage != nil {
			e.onUsage(msg.Usage)
		}

		out, attemptErr := e.coerceReply(msg.Content, schema, compiled)
		if attemptErr == nil {
			return out, nil
		}
		lastErr = attemptErr
		e.log.Debug("extraction attempt failed",
			"attempt", attempt,
			"error", attemptErr)
	}
	return value.Null(), fmt.Errorf("extraction failed after %d attempts: %v", maxAttempts, lastErr)
}

// coerceReply parses one model reply and coerces it against the schema.
func (e *Extractor) coerceReply(content string, schema *ir.Schema, compiled *jsonschema.Schema) (value.Value, error) {
	raw, err := decodeStrict(content)
	if err != nil {
		return value.Null(), err
	}

	have, ok := raw[haveInfoField]
	if !ok {
		return value.Null(), fmt.Errorf("reply is missing %q", haveInfoField)
	}
	haveBool, err := coerceBool(have)
	if err != nil {
		return value.Null(), fmt.Errorf("%q must be a boolean", haveInfoField)
	}
	if !haveBool {
		return value.Null(), fmt.Errorf("model reported insufficient information")
	}

	if err := compiled.Validate(normalizeNumbers(raw)); err != nil {
		return value.Null(), fmt.Errorf("reply does not match schema: %v", schemaErrSummary(err))
	}

	out := value.NewDictMap()
	for _, name := range schema.OrderedFieldNames() {
		spec := schema.Fields[name]
		fieldRaw, present := raw[name]
		if !present || fieldRaw == nil {
			if spec.Required {
				return value.Null(), fmt.Errorf("required field %q is missing", name)
			}
			continue
		}
		v, cerr := coerceField(name, spec, fieldRaw)
		if cerr != nil {
			return value.Null(), cerr
		}
		out.Set(name, v)
	}
	return value.NewDict(out), nil
}

// decodeStrict parses a reply as one strict JSON object with no trailing
// content. A fenced code block around the object is tolerated.
func decodeStrict(content string) (map[string]any, error) {
	text := strings.TrimSpace(content)
	if strings.HasPrefix(text, "```") {
		if end := strings.LastIndex(text, "```"); end > 0 {
			text = text[:end]
		}
		if nl := strings.IndexByte(text, '\n'); nl >= 0 {
			text = text[nl+1:]
		}
		text = strings.TrimSpace(text)
	}

	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("reply is not a JSON object")
	}
	if dec.More() {
		return nil, fmt.Errorf("reply contains content after the JSON object")
	}
	return raw, nil
}

// normalizeNumbers re-decodes json.Number values as plain float64/int so
// the schema validator sees standard JSON types.
func normalizeNumbers(raw map[string]any) any {
	b, err := json.Marshal(raw)
	if err != nil {
		return raw
	}
	var out any
	if err := json.Unmarshal(bytes.NewBuffer(b).Bytes(), &out); err != nil {
		return raw
	}
	return out
}

func schemaErrSummary(err error) string {
	var ve *jsonschema.ValidationError
	if errors.As(err, &ve) {
		leaf := ve
		for len(leaf.Causes) > 0 {
			leaf = leaf.Causes[0]
		}
		loc := strings.TrimPrefix(leaf.InstanceLocation, "/")
		if loc == "" {
			return leaf.Message
		}
		return fmt.Sprintf("%s: %s", strings.ReplaceAll(loc, "/", "."), leaf.Message)
	}
	return err.Error()
}

// coerceField converts one decoded JSON field into a Value per the field
// type rules.
func coerceField(path string, spec *ir.FieldSpec, raw any) (value.Value, error) {
	switch spec.Type {
	case ir.TypeString:
		s, err := coerceString(raw)
		if err != nil {
			return value.Null(), fmt.Errorf("field %q: %v", path, err)
		}
		return value.NewString(s), nil

	case ir.TypeEmail:
		s, err := coerceString(raw)
		if err != nil {
			return value.Null(), fmt.Errorf("field %q: %v", path, err)
		}
		s = strings.TrimSpace(s)
		if !emailRe.MatchString(s) {
			return value.Null(), fmt.Errorf("field %q: %q is not a valid email address", path, s)
		}
		return value.NewString(s), nil

	case ir.TypeDatetime:
		s, err := coerceString(raw)
		if err != nil {
			return value.Null(), fmt.Errorf("field %q: %v", path, err)
		}
		s = strings.TrimSpace(s)
		for _, layout := range datetimeLayouts {
			if _, perr := time.Parse(layout, s); perr == nil {
				return value.NewString(s), nil
			}
		}
		return value.Null(), fmt.Errorf("field %q: %q is not a recognizable date", path, s)

	case ir.TypeNumber:
		f, err := coerceFloat(raw)
		if err != nil {
			return value.Null(), fmt.Errorf("field %q: %v", path, err)
		}
		return value.NewFloat(f), nil

	case ir.TypeInteger:
		n, err := coerceInt(raw)
		if err != nil {
			return value.Null(), fmt.Errorf("field %q: %v", path, err)
		}
		return value.NewInt(n), nil

	case ir.TypeBoolean:
		b, err := coerceBool(raw)
		if err != nil {
			return value.Null(), fmt.Errorf("field %q: %v", path, err)
		}
		return value.NewBool(b), nil

	case ir.TypeArray:
		items, ok := raw.([]any)
		if !ok {
			return value.Null(), fmt.Errorf("field %q: expected an array", path)
		}
		itemSpec := spec.Items
		if itemSpec == nil {
			itemSpec = &ir.FieldSpec{Type: ir.TypeString}
		}
		out := make([]value.Value, len(items))
		for i, item := range items {
			v, err := coerceField(fmt.Sprintf("%s[%d]", path, i), itemSpec, item)
			if err != nil {
				return value.Null(), err
			}
			out[i] = v
		}
		return value.NewList(out), nil

	case ir.TypeObject:
		obj, ok := raw.(map[string]any)
		if !ok {
			return value.Null(), fmt.Errorf("field %q: expected an object", path)
		}
		d := value.NewDictMap()
		for _, name := range spec.OrderedProps() {
			child := spec.Properties[name]
			childRaw, present := obj[name]
			if !present || childRaw == nil {
				if child.Required {
					return value.Null(), fmt.Errorf("field %q: required child %q is missing", path, name)
				}
				continue
			}
			v, err := coerceField(path+"."+name, child, childRaw)
			if err != nil {
				return value.Null(), err
			}
			d.Set(name, v)
		}
		return value.NewDict(d), nil
	}
	return value.Null(), fmt.Errorf("field %q: unknown schema type %q", path, spec.Type)
}

func coerceString(raw any) (string, error) {
	switch t := raw.(type) {
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case bool:
		return strconv.FormatBool(t), nil
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64), nil
	}
	return "", fmt.Errorf("expected a string, got %T", raw)
}

func coerceFloat(raw any) (float64, error) {
	switch t := raw.(type) {
	case json.Number:
		return t.Float64()
	case float64:
		return t, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", t)
		}
		return f, nil
	}
	return 0, fmt.Errorf("expected a number, got %T", raw)
}

func coerceInt(raw any) (int64, error) {
	switch t := raw.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, nil
		}
		f, err := t.Float64()
		if err != nil || f != float64(int64(f)) {
			return 0, fmt.Errorf("%s is not an integer", t.String())
		}
		return int64(f), nil
	case float64:
		if t != float64(int64(t)) {
			return 0, fmt.Errorf("%v is not an integer", t)
		}
		return int64(t), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not an integer", t)
		}
		return n, nil
	}
	return 0, fmt.Errorf("expected an integer, got %T", raw)
}

func coerceBool(raw any) (bool, error) {
	switch t := raw.(type) {
	case bool:
		return t, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return false, fmt.Errorf("%q is not a boolean", t)
	case json.Number:
		switch t.String() {
		case "0":
			return false, nil
		case "1":
			return true, nil
		}
		return false, fmt.Errorf("%s is not a boolean", t.String())
	case float64:
		switch t {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
		return false, fmt.Errorf("%v is not a boolean", t)
	}
	return false, fmt.Errorf("expected a boolean, got %T", raw)
}
