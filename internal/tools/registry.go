// Package tools adapts host-provided tool executors to the runtime: a
// thread-safe registry with parameter validation, result sanitization,
// messaging-send detection, and lifecycle events.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/camel/internal/interp"
	"github.com/haasonsaas/camel/internal/value"
	"github.com/haasonsaas/camel/pkg/models"
)

// Executor runs one tool invocation. The callID is unique per invocation;
// args are the resolved plan arguments.
type Executor func(ctx context.Context, callID string, args map[string]any) (*models.ToolResult, error)

// Descriptor declares a registered tool.
type Descriptor struct {
	// Name is the unique, lower-cased tool name plans call.
	Name string

	// Label is a short human-readable title.
	Label string

	// Description tells the planner what the tool does.
	Description string

	// Parameters is a JSON Schema for the argument object. Nil skips
	// argument validation.
	Parameters map[string]any

	// SideEffectFree declares the tool read-only for policy purposes.
	// Tools that do not declare this are treated as state-changing.
	SideEffectFree bool

	// Execute runs the tool. Required.
	Execute Executor
}

// MessagingSend records a detected outbound message so the host can tell
// whether a reply was already delivered out-of-band.
type MessagingSend struct {
	Tool   string
	Target string
	Text   string
}

type entry struct {
	desc     Descriptor
	compiled *jsonschema.Schema
}

// Registry holds the tools of one runtime instance. Safe for concurrent
// use; runs share it read-mostly.
type Registry struct {
	mu          sync.RWMutex
	tools       map[string]*entry
	clientTools map[string]struct{}

	sink models.EventSink
	log  *slog.Logger

	sendsMu sync.Mutex
	sends   []MessagingSend
}

// Option configures a Registry.
type Option func(*Registry)

// WithEventSink delivers tool lifecycle events to the host.
func WithEventSink(sink models.EventSink) Option {
	return func(r *Registry) { r.sink = sink }
}

// WithLogger sets the registry logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Registry) { r.log = log }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		tools:       make(map[string]*entry),
		clientTools: make(map[string]struct{}),
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a tool. Names are lower-cased; re-registering a name is an
// error so two components cannot silently shadow each other.
func (r *Registry) Register(d Descriptor) error {
	name := strings.ToLower(strings.TrimSpace(d.Name))
	if name == "" {
		return fmt.Errorf("tool name is required")
	}
	if d.Execute == nil {
		return fmt.Errorf("tool %q has no executor", name)
	}
	d.Name = name

	var compiled *jsonschema.Schema
	if d.Parameters != nil {
		doc, err := json.Marshal(d.Parameters)
		if err != nil {
			return fmt.Errorf("tool %q: cannot serialize parameter schema: %w", name, err)
		}
		compiled, err = jsonschema.CompileString(name+".json", string(doc))
		if err != nil {
			return fmt.Errorf("tool %q: invalid parameter schema: %w", name, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q is already registered", name)
	}
	r.tools[name] = &entry{desc: d, compiled: compiled}
	return nil
}

// RegisterClient marks tool names the host executes out-of-band. Reaching
// one stops the run with a recorded call.
func (r *Registry) RegisterClient(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" {
			r.clientTools[n] = struct{}{}
		}
	}
}

// Names returns every callable name: registered tools plus client tools.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools)+len(r.clientTools))
	for n := range r.tools {
		out = append(out, n)
	}
	for n := range r.clientTools {
		if _, dup := r.tools[n]; !dup {
			out = append(out, n)
		}
	}
	return out
}

// Descriptors returns the registered tool descriptors for prompt building.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.tools))
	for _, e := range r.tools {
		out = append(out, e.desc)
	}
	return out
}

// Facts implements interp.ToolHost.
func (r *Registry) Facts(name string) (interp.ToolFacts, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.clientTools[name]; ok {
		return interp.ToolFacts{ClientOwned: true, StateChanging: true}, true
	}
	e, ok := r.tools[name]
	if !ok {
		return interp.ToolFacts{}, false
	}
	return interp.ToolFacts{StateChanging: !e.desc.SideEffectFree}, true
}

// Call implements interp.ToolHost. It validates arguments, executes, and
// sanitizes the result before it reaches the trace.
func (r *Registry) Call(ctx context.Context, name string, args *value.Dict) (*models.ToolResult, *models.ToolMeta, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("tool %q is not registered", name)
	}

	callID := uuid.NewString()
	argMap := dictToMap(args)

	if e.compiled != nil {
		if err := e.compiled.Validate(jsonRoundTrip(argMap)); err != nil {
			return nil, nil, fmt.Errorf("invalid arguments for %q: %v", name, summarizeValidation(err))
		}
	}

	r.emit(models.RunEvent{Stream: models.StreamTool, Data: map[string]any{
		"call_id": callID, "name": name, "status": "start",
	}})

	result, err := e.desc.Execute(ctx, callID, argMap)
	status := "result"
	if err != nil || (result != nil && result.IsError) {
		status = "error"
	}
	r.emit(models.RunEvent{Stream: models.StreamTool, Data: map[string]any{
		"call_id": callID, "name": name, "status": status,
	}})

	if err != nil {
		r.log.Warn("tool execution failed", "tool", name, "call_id", callID, "error", err)
		return nil, &models.ToolMeta{Name: name, Meta: map[string]any{"call_id": callID}}, err
	}

	sanitized := sanitizeResult(result)
	meta := &models.ToolMeta{Name: name, Meta: map[string]any{"call_id": callID}}
	if send, ok := detectMessagingSend(name, argMap); ok {
		r.sendsMu.Lock()
		r.sends = append(r.sends, send)
		r.sendsMu.Unlock()
		meta.Meta["messaging_target"] = send.Target
		meta.Meta["messaging_text"] = send.Text
	}
	return sanitized, meta, nil
}

// Sends returns the messaging sends recorded so far, oldest first.
func (r *Registry) Sends() []MessagingSend {
	r.sendsMu.Lock()
	defer r.sendsMu.Unlock()
	out := make([]MessagingSend, len(r.sends))
	copy(out, r.sends)
	return out
}

func (r *Registry) emit(ev models.RunEvent) {
	if r.sink != nil {
		r.sink(ev)
	}
}

func dictToMap(d *value.Dict) map[string]any {
	out := make(map[string]any, d.Len())
	for _, k := range d.Keys() {
		v, _ := d.Get(k)
		out[k] = v.ToAny()
	}
	return out
}

// jsonRoundTrip normalizes Go values to standard JSON types for the
// schema validator.
func jsonRoundTrip(m map[string]any) any {
	b, err := json.Marshal(m)
	if err != nil {
		return m
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return m
	}
	return out
}

func summarizeValidation(err error) string {
	if ve, ok := err.(*jsonschema.ValidationError); ok {
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

// messaging-send detection: a tool whose name says it sends and whose
// arguments carry both a destination and a body.
var sendTargetKeys = []string{"to", "target", "recipient", "channel", "chat_id"}
var sendBodyKeys = []string{"body", "text", "message", "content"}

func detectMessagingSend(name string, args map[string]any) (MessagingSend, bool) {
	lower := strings.ToLower(name)
	if !strings.Contains(lower, "send") && !strings.Contains(lower, "message") && !strings.Contains(lower, "reply") {
		return MessagingSend{}, false
	}
	var target, text string
	for _, k := range sendTargetKeys {
		if v, ok := args[k].(string); ok && v != "" {
			target = v
			break
		}
	}
	for _, k := range sendBodyKeys {
		if v, ok := args[k].(string); ok && v != "" {
			text = v
			break
		}
	}
	if target == "" || text == "" {
		return MessagingSend{}, false
	}
	return MessagingSend{Tool: name, Target: target, Text: text}, true
}
