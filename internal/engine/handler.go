package engine

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"slices"
)

// HandlerFunc is the function behind a Handler.
//
// args holds the combined bound and call-time arguments. A returned error
// is captured as a Failure in the handler's Record; it is never wrapped.
type HandlerFunc func(ctx context.Context, args Args) (any, error)

// Handler is a named invocable that can be wired into slots.
//
// Handlers are compared by pointer identity. Wiring the same *Handler
// twice yields two registrations; Deregister removes the first one.
type Handler struct {
	name string
	fn   HandlerFunc
}

// NewHandler creates a Handler. name is used in error messages, failure
// reports and the dispatch journal.
func NewHandler(name string, fn HandlerFunc) *Handler {
	return &Handler{name: name, fn: fn}
}

// Name returns the handler's display name.
func (h *Handler) Name() string {
	if h == nil {
		return "<nil>"
	}
	return h.name
}

// String implements fmt.Stringer.
func (h *Handler) String() string {
	if h == nil {
		return "<nil handler>"
	}
	if h.fn == nil {
		return fmt.Sprintf("<handler %q without func>", h.name)
	}
	return fmt.Sprintf("<handler %q>", h.name)
}

func (h *Handler) invocable() bool {
	return h != nil && h.fn != nil
}

// Args is an ordered positional list plus a set of named arguments.
//
// The zero value is an empty argument set. Nil and empty slices/maps are
// equivalent everywhere in the engine.
type Args struct {
	Positional []any
	Named      map[string]any
}

// ArgsOf creates Args with the given positional values.
func ArgsOf(vals ...any) Args {
	return Args{Positional: slices.Clone(vals)}
}

// With returns a copy of a with the named argument set.
func (a Args) With(name string, value any) Args {
	out := a.clone()
	if out.Named == nil {
		out.Named = make(map[string]any, 1)
	}
	out.Named[name] = value
	return out
}

// Arg returns the i-th positional argument.
func (a Args) Arg(i int) (any, bool) {
	if i < 0 || i >= len(a.Positional) {
		return nil, false
	}
	return a.Positional[i], true
}

// Get returns the named argument.
func (a Args) Get(name string) (any, bool) {
	v, ok := a.Named[name]
	return v, ok
}

// IsEmpty reports whether a has no positional and no named arguments.
func (a Args) IsEmpty() bool {
	return len(a.Positional) == 0 && len(a.Named) == 0
}

// Equal reports whether a and b hold deeply equal arguments.
// Positional order matters; named argument order does not.
func (a Args) Equal(b Args) bool {
	if len(a.Positional) != len(b.Positional) || len(a.Named) != len(b.Named) {
		return false
	}
	for i := range a.Positional {
		if !reflect.DeepEqual(a.Positional[i], b.Positional[i]) {
			return false
		}
	}
	for k, v := range a.Named {
		w, ok := b.Named[k]
		if !ok || !reflect.DeepEqual(v, w) {
			return false
		}
	}
	return true
}

func (a Args) clone() Args {
	return Args{
		Positional: slices.Clone(a.Positional),
		Named:      maps.Clone(a.Named),
	}
}

// combine builds the arguments a registration is called with: bound
// positional first, then call-time positional; named arguments merged with
// call-time values overriding same-named bound ones.
func combine(bound, call Args) Args {
	var out Args
	if n := len(bound.Positional) + len(call.Positional); n > 0 {
		out.Positional = make([]any, 0, n)
		out.Positional = append(out.Positional, bound.Positional...)
		out.Positional = append(out.Positional, call.Positional...)
	}
	if len(bound.Named)+len(call.Named) > 0 {
		out.Named = make(map[string]any, len(bound.Named)+len(call.Named))
		maps.Copy(out.Named, bound.Named)
		maps.Copy(out.Named, call.Named)
	}
	return out
}

// Registration is a handler plus the arguments bound when it was wired.
// Registrations are never mutated in place.
type Registration struct {
	Handler *Handler
	Args    Args
}

func (r Registration) clone() Registration {
	return Registration{Handler: r.Handler, Args: r.Args.clone()}
}
