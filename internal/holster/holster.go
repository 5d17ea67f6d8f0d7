// Package holster decides whether a specialist is offered its tools for a
// dispatch. A "no tools" directive removes the tools from the loadout
// entirely rather than asking the model to refrain from calling them.
package holster

import (
	"strings"

	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/tools"
)

// DefaultPhrases are the directive phrases that holster all tools.
var DefaultPhrases = []string{
	"forbidden from using tools",
	"do not use tools",
	"do not use any tools",
	"don't use tools",
	"don't use any tools",
	"without using tools",
	"without using any tools",
	"without tools",
	"no tools",
	"text only",
	"text-only",
	"answer directly",
	"do not call any tools",
	"tools are disabled",
}

// Gate matches instructions against a phrase list.
type Gate struct {
	phrases []string
}

// Loadout is the toolset a specialist runs with for one dispatch.
type Loadout struct {
	Tools     []tools.Tool
	Holstered bool
	Phrase    string
}

// New creates a gate from the default phrases plus any extra ones.
func New(extra ...string) *Gate {
	g := &Gate{}
	for _, p := range append(append([]string{}, DefaultPhrases...), extra...) {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			g.phrases = append(g.phrases, p)
		}
	}
	return g
}

// Default returns a gate with the default phrase list.
func Default() *Gate { return New() }

// Match returns the first phrase found in the instruction.
func (g *Gate) Match(instruction string) (string, bool) {
	lower := strings.ToLower(instruction)
	for _, p := range g.phrases {
		if strings.Contains(lower, p) {
			return p, true
		}
	}
	return "", false
}

// Apply returns the effective toolset for an instruction.
func (g *Gate) Apply(instruction string, full []tools.Tool) Loadout {
	if phrase, ok := g.Match(instruction); ok {
		return Loadout{Holstered: true, Phrase: phrase}
	}
	return Loadout{Tools: full}
}

// Names returns the names of the tools in the loadout.
func (l Loadout) Names() []string {
	names := make([]string, 0, len(l.Tools))
	for _, t := range l.Tools {
		names = append(names, t.Name())
	}
	return names
}

// Allows reports whether the named tool is part of the loadout.
func (l Loadout) Allows(name string) bool {
	for _, t := range l.Tools {
		if t.Name() == name {
			return true
		}
	}
	return false
}
