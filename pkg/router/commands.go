package router

import (
	"context"
	"strings"
)

// Handler answers one control command. args is the text after the command
// name with surrounding space removed.
type Handler func(ctx context.Context, args string) (string, error)

type Definition struct {
	Name        string
	Description string
	Usage       string
	Handler     Handler
}

// Registry maps slash command names to their definitions.
type Registry struct {
	defs  []Definition
	index map[string]int
}

func NewRegistry(defs []Definition) *Registry {
	r := &Registry{defs: defs, index: make(map[string]int, len(defs))}
	for i, def := range defs {
		r.index[def.Name] = i
	}
	return r
}

func (r *Registry) Lookup(name string) (Definition, bool) {
	i, ok := r.index[name]
	if !ok {
		return Definition{}, false
	}
	return r.defs[i], true
}

// Definitions returns every command in registration order.
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, len(r.defs))
	copy(out, r.defs)
	return out
}

// parseCommand splits "/name rest" into name and trimmed rest. ok is false
// for input that is not a slash command.
func parseCommand(input string) (name, args string, ok bool) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return "", "", false
	}
	head, rest, _ := strings.Cut(input[1:], " ")
	if head == "" {
		return "", "", false
	}
	return head, strings.TrimSpace(rest), true
}

// dispatch runs the matching control command. matched is false when input
// is not a known command and should be treated as a prompt.
func (r *Registry) dispatch(ctx context.Context, input string) (reply string, matched bool, err error) {
	name, args, ok := parseCommand(input)
	if !ok {
		return "", false, nil
	}
	def, found := r.Lookup(name)
	if !found || def.Handler == nil {
		return "", false, nil
	}
	reply, err = def.Handler(ctx, args)
	return reply, true, err
}
