// Package interp evaluates validated programs over the labeled value
// model, propagating capability labels through every operation and gating
// tool calls behind the policy engine.
package interp

import (
	"github.com/haasonsaas/camel/internal/value"
)

// Env maps variable names to labeled values. Reading a name never yields
// a bare value without its capability.
type Env struct {
	vars map[string]value.Labeled
}

// NewEnv creates an empty environment.
func NewEnv() *Env {
	return &Env{vars: make(map[string]value.Labeled)}
}

// Lookup returns the labeled value bound to name.
func (e *Env) Lookup(name string) (value.Labeled, bool) {
	lv, ok := e.vars[name]
	return lv, ok
}

// Bind replaces any existing binding for name.
func (e *Env) Bind(name string, lv value.Labeled) {
	e.vars[name] = lv
}

// Save captures the current bindings of the given names so loop and
// comprehension variables can be scoped. Restore puts them back.
func (e *Env) Save(names []string) func() {
	type saved struct {
		name    string
		lv      value.Labeled
		existed bool
	}
	entries := make([]saved, len(names))
	for i, n := range names {
		lv, ok := e.vars[n]
		entries[i] = saved{name: n, lv: lv, existed: ok}
	}
	return func() {
		for _, s := range entries {
			if s.existed {
				e.vars[s.name] = s.lv
			} else {
				delete(e.vars, s.name)
			}
		}
	}
}
