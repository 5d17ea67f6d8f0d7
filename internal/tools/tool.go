// Package tools defines the tool boundary and the invoker that every tool
// call passes through.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vinayprograms/agentkit/llm"
)

// Tool is a callable exposed to specialists.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// Signature is implemented by tools whose callable accepts a strict subset
// of the keys their schema advertises. The invoker drops every other key.
type Signature interface {
	Accepts() []string
}

// Handler is the callable behind a Func tool.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Func adapts a handler into a Tool.
type Func struct {
	ToolName    string
	Desc        string
	Schema      map[string]any
	AcceptsKeys []string
	Fn          Handler
}

func (f *Func) Name() string               { return f.ToolName }
func (f *Func) Description() string        { return f.Desc }
func (f *Func) Parameters() map[string]any { return f.Schema }

// Accepts returns the declared accepted keys; nil means all schema keys.
func (f *Func) Accepts() []string { return f.AcceptsKeys }

func (f *Func) Execute(ctx context.Context, args map[string]any) (string, error) {
	if f.Fn == nil {
		return "", fmt.Errorf("tool %s has no handler", f.ToolName)
	}
	return f.Fn(ctx, args)
}

// Registry holds the tools available to the router. It is populated at
// startup and read-only afterwards.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry with the given tools.
func NewRegistry(ts ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range ts {
		r.Register(t)
	}
	return r
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get returns a tool by name, or nil.
func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	return r.Get(name) != nil
}

// Names returns registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Subset returns the registered tools among names, in the given order.
// Unknown names are skipped.
func (r *Registry) Subset(names []string) []Tool {
	out := make([]Tool, 0, len(names))
	for _, n := range names {
		if t := r.Get(n); t != nil {
			out = append(out, t)
		}
	}
	return out
}

// Definitions converts tools into provider tool definitions.
func Definitions(ts []Tool) []llm.ToolDef {
	if len(ts) == 0 {
		return nil
	}
	defs := make([]llm.ToolDef, 0, len(ts))
	for _, t := range ts {
		defs = append(defs, llm.ToolDef{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}
