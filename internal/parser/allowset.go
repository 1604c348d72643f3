package parser

import (
	"fmt"
	"sort"
	"strings"
)

// VirtualTools are handled by the interpreter directly and are always
// callable.
var VirtualTools = []string{"print", "query_ai_assistant"}

// AllowSet is the set of tool names a plan may reference: the virtual
// tools plus host-registered tools plus client-exposed tool names.
// Lookups are case-insensitive and trim whitespace.
type AllowSet struct {
	canonical map[string]string // lower-cased -> canonical name
	ordered   []string
}

// NewAllowSet builds an allow-set from the given tool names. The virtual
// tools are always included.
func NewAllowSet(names ...string) AllowSet {
	s := AllowSet{canonical: make(map[string]string)}
	for _, n := range VirtualTools {
		s.add(n)
	}
	for _, n := range names {
		s.add(n)
	}
	return s
}

func (s *AllowSet) add(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	key := strings.ToLower(name)
	if _, ok := s.canonical[key]; ok {
		return
	}
	s.canonical[key] = name
	s.ordered = append(s.ordered, name)
}

// Resolve returns the canonical tool name for a reference, or false when
// the name is outside the set.
func (s AllowSet) Resolve(name string) (string, bool) {
	got, ok := s.canonical[strings.ToLower(strings.TrimSpace(name))]
	return got, ok
}

// Names returns the allowed names sorted for stable diagnostics.
func (s AllowSet) Names() []string {
	out := make([]string, len(s.ordered))
	copy(out, s.ordered)
	sort.Strings(out)
	return out
}

// maxListedTools bounds how many allowed names an unknown-tool diagnostic
// spells out before switching to a "+N more" suffix.
const maxListedTools = 16

// DescribeAllowed renders the allow-set for diagnostics: first 16 names,
// then "+N more".
func (s AllowSet) DescribeAllowed() string {
	names := s.Names()
	if len(names) <= maxListedTools {
		return strings.Join(names, ", ")
	}
	rest := len(names) - maxListedTools
	return strings.Join(names[:maxListedTools], ", ") + fmt.Sprintf(" (+%d more)", rest)
}

// UnknownToolMessage builds the diagnostic for a tool reference outside
// the allow-set.
func (s AllowSet) UnknownToolMessage(name string) string {
	return fmt.Sprintf("unknown tool %q; allowed tools: %s", name, s.DescribeAllowed())
}
