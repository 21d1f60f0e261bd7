package harness

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/wires/internal/engine"
	"github.com/roach88/wires/internal/testutil"
)

// Builtin handler names.
const (
	HandlerEcho  = "echo"
	HandlerConst = "const"
	HandlerSum   = "sum"
	HandlerFail  = "fail"
	HandlerPanic = "panic"
	HandlerCount = "count"
)

// Catalog maps handler names to handlers. Wiring the same name twice uses
// the same *engine.Handler, so unwire by name removes the first of them.
type Catalog struct {
	handlers map[string]*engine.Handler
	names    []string
	tracker  *testutil.CallTracker
}

// NewCatalog creates an empty catalog whose handlers are tracked by
// tracker. A nil tracker gets a fresh one.
func NewCatalog(tracker *testutil.CallTracker) *Catalog {
	if tracker == nil {
		tracker = testutil.NewCallTracker()
	}
	return &Catalog{handlers: make(map[string]*engine.Handler), tracker: tracker}
}

// NewBuiltinCatalog creates a catalog holding the builtin handlers:
//
//   - echo: returns its positional arguments as a list, or
//     {"args": [...], "kwargs": {...}} when called with named arguments
//   - const: returns its first positional argument
//   - sum: returns the sum of its integer positional arguments
//   - fail: returns an error with the "message" kwarg (default "boom")
//   - panic: panics with the "message" kwarg (default "kaboom")
//   - count: returns how many times it has been called, itself included
func NewBuiltinCatalog(tracker *testutil.CallTracker) *Catalog {
	c := NewCatalog(tracker)
	c.Add(HandlerEcho, echo)
	c.Add(HandlerConst, constant)
	c.Add(HandlerSum, sum)
	c.Add(HandlerFail, func(_ context.Context, args engine.Args) (any, error) {
		return nil, errors.New(message(args, "boom"))
	})
	c.Add(HandlerPanic, func(_ context.Context, args engine.Args) (any, error) {
		panic(message(args, "kaboom"))
	})
	c.Add(HandlerCount, func(context.Context, engine.Args) (any, error) {
		return int64(c.tracker.Count(HandlerCount)), nil
	})
	return c
}

// Add registers fn under name, replacing any handler of that name.
func (c *Catalog) Add(name string, fn engine.HandlerFunc) *engine.Handler {
	h := c.tracker.Handler(name, fn)
	if _, ok := c.handlers[name]; !ok {
		c.names = append(c.names, name)
	}
	c.handlers[name] = h
	return h
}

// Lookup returns the handler called name.
func (c *Catalog) Lookup(name string) (*engine.Handler, bool) {
	h, ok := c.handlers[name]
	return h, ok
}

// Names returns the handler names in the order they were added.
func (c *Catalog) Names() []string {
	return slices.Clone(c.names)
}

// Tracker returns the call tracker shared by the catalog's handlers.
func (c *Catalog) Tracker() *testutil.CallTracker {
	return c.tracker
}

func echo(_ context.Context, args engine.Args) (any, error) {
	positional := make([]any, len(args.Positional))
	copy(positional, args.Positional)
	if len(args.Named) == 0 {
		return positional, nil
	}
	named := make(map[string]any, len(args.Named))
	for k, v := range args.Named {
		named[k] = v
	}
	return map[string]any{"args": positional, "kwargs": named}, nil
}

func constant(_ context.Context, args engine.Args) (any, error) {
	v, _ := args.Arg(0)
	return v, nil
}

func sum(_ context.Context, args engine.Args) (any, error) {
	var total int64
	for i, v := range args.Positional {
		switch n := v.(type) {
		case int:
			total += int64(n)
		case int64:
			total += n
		default:
			return nil, fmt.Errorf("sum: argument %d is %T, not an integer", i, v)
		}
	}
	return total, nil
}

func message(args engine.Args, fallback string) string {
	if v, ok := args.Get("message"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return fallback
}
