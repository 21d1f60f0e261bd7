package testutil

import (
	"context"
	"slices"
	"sync"

	"github.com/roach88/wires/internal/engine"
)

// Call is one recorded handler call.
type Call struct {
	Handler string
	Args    engine.Args
}

// CallTracker records the calls of every handler it wraps, in call order
// across handlers.
//
// Thread-safety: all methods are safe for concurrent use.
type CallTracker struct {
	mu    sync.Mutex
	calls []Call
}

// NewCallTracker creates an empty tracker.
func NewCallTracker() *CallTracker {
	return &CallTracker{}
}

// Handler creates a handler called name that records each call, then runs
// fn. A nil fn returns (nil, nil). The call is recorded even if fn fails
// or panics.
func (t *CallTracker) Handler(name string, fn engine.HandlerFunc) *engine.Handler {
	return engine.NewHandler(name, func(ctx context.Context, args engine.Args) (any, error) {
		t.mu.Lock()
		t.calls = append(t.calls, Call{Handler: name, Args: args})
		t.mu.Unlock()
		if fn == nil {
			return nil, nil
		}
		return fn(ctx, args)
	})
}

// Calls returns every recorded call in order.
func (t *CallTracker) Calls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.calls)
}

// Names returns the handler names of the recorded calls in order.
func (t *CallTracker) Names() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, len(t.calls))
	for i, c := range t.calls {
		names[i] = c.Handler
	}
	return names
}

// Count returns how many times the handler called name ran.
func (t *CallTracker) Count(name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, c := range t.calls {
		if c.Handler == name {
			n++
		}
	}
	return n
}

// Reset forgets all recorded calls.
func (t *CallTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = nil
}
