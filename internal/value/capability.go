package value

import (
	"sort"

	"github.com/haasonsaas/camel/pkg/models"
)

// Source tag prefixes. Tags are opaque strings; these constructors keep
// their shapes consistent across the runtime.
const (
	// SourceUser marks values originating from the user prompt.
	SourceUser = "user"
)

// ToolSource tags a value produced by a tool.
func ToolSource(name string) string { return "tool:" + name }

// QllmSource tags a value produced by quarantined extraction, keyed by the
// variable it was saved as.
func QllmSource(saveAs string) string { return "qllm:" + saveAs }

// GuardSource tags control-flow contributions from a conditional or loop.
func GuardSource(kind string) string { return "guard:" + kind }

// Capability is the provenance label carried by every value in the
// environment. It is treated as immutable: derivations build new labels.
type Capability struct {
	trusted bool
	sources map[string]struct{}
}

// TrustedCap returns the label of a deterministic program literal: trusted
// with no sources.
func TrustedCap() Capability {
	return Capability{trusted: true}
}

// UserCap returns the label of user-authored input.
func UserCap() Capability {
	return Capability{trusted: true, sources: map[string]struct{}{SourceUser: {}}}
}

// UntrustedCap returns an untrusted label carrying the given tags.
func UntrustedCap(tags ...string) Capability {
	c := Capability{trusted: false}
	for _, t := range tags {
		c = c.WithSource(t)
	}
	return c
}

// Trusted reports whether every ancestor of the value was trusted.
func (c Capability) Trusted() bool { return c.trusted }

// WithSource returns a copy with one more source tag.
func (c Capability) WithSource(tag string) Capability {
	out := Capability{trusted: c.trusted, sources: make(map[string]struct{}, len(c.sources)+1)}
	for s := range c.sources {
		out.sources[s] = struct{}{}
	}
	out.sources[tag] = struct{}{}
	return out
}

// AsUntrusted returns a copy with the trusted flag forced off.
func (c Capability) AsUntrusted() Capability {
	out := c
	out.trusted = false
	return out
}

// HasSource reports whether the label carries the given tag.
func (c Capability) HasSource(tag string) bool {
	_, ok := c.sources[tag]
	return ok
}

// Sources returns the sorted source tags.
func (c Capability) Sources() []string {
	out := make([]string, 0, len(c.sources))
	for s := range c.sources {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Merge combines labels: trusted iff all inputs are trusted, sources are
// the union. Merging nothing yields the trusted literal label.
func Merge(caps ...Capability) Capability {
	out := Capability{trusted: true}
	for _, c := range caps {
		out.trusted = out.trusted && c.trusted
		for s := range c.sources {
			if out.sources == nil {
				out.sources = make(map[string]struct{})
			}
			out.sources[s] = struct{}{}
		}
	}
	return out
}

// Model converts the label to its serialized form.
func (c Capability) Model() models.Capability {
	return models.Capability{Trusted: c.trusted, Sources: c.Sources()}
}

// Labeled pairs a value with its capability. The environment stores only
// labeled values; a bare Value never leaves it.
type Labeled struct {
	Val Value
	Cap Capability
}
