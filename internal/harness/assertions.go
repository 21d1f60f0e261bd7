package harness

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/roach88/wires/internal/engine"
	"github.com/roach88/wires/internal/store"
	"github.com/roach88/wires/internal/testutil"
)

// Assertion validates the state of a scenario after its last step.
type Assertion struct {
	// Type is call_count, call_order, dispatch_count or final_state.
	Type string `yaml:"type"`

	// Handler is the handler name (call_count).
	Handler string `yaml:"handler,omitempty"`

	// Handlers is the expected first-call order (call_order).
	Handlers []string `yaml:"handlers,omitempty"`

	// Slot is the slot name (dispatch_count, final_state).
	Slot string `yaml:"slot,omitempty"`

	// Count is the expected number of calls or dispatches.
	Count int `yaml:"count,omitempty"`

	// Expect holds the expected slot state (final_state). Keys:
	// registrations, handlers, min_registrations, max_registrations,
	// returns, ignore_failures. Only the listed keys are checked.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertCallCount     = "call_count"
	AssertCallOrder     = "call_order"
	AssertDispatchCount = "dispatch_count"
	AssertFinalState    = "final_state"
)

var finalStateKeys = []string{
	"registrations",
	"handlers",
	string(engine.KeyMinRegistrations),
	string(engine.KeyMaxRegistrations),
	string(engine.KeyReturns),
	string(engine.KeyIgnoreFailures),
}

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string

	// Calls lists every handler call of the run, for context.
	Calls []string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Calls) > 0 {
		fmt.Fprintf(&buf, "\nHandler calls:\n")
		for i, name := range e.Calls {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, name)
		}
	}
	return buf.String()
}

// AssertionContext gives assertions access to the finished run.
type AssertionContext struct {
	Ctx       context.Context
	Store     *store.Store
	Container *engine.Container
	Tracker   *testutil.CallTracker
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertCallCount:
		if a.Handler == "" {
			return fmt.Errorf("assertions[%d]: handler is required for call_count", index)
		}
	case AssertCallOrder:
		if len(a.Handlers) == 0 {
			return fmt.Errorf("assertions[%d]: handlers list is required for call_order", index)
		}
	case AssertDispatchCount:
		if a.Slot == "" {
			return fmt.Errorf("assertions[%d]: slot is required for dispatch_count", index)
		}
	case AssertFinalState:
		if a.Slot == "" {
			return fmt.Errorf("assertions[%d]: slot is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
		for key := range a.Expect {
			if !slices.Contains(finalStateKeys, key) {
				return fmt.Errorf("assertions[%d]: unknown final_state key %q", index, key)
			}
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	if a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}
	return nil
}

// assertCallCount checks that a handler ran exactly Count times.
func assertCallCount(calls []string, a Assertion) error {
	count := 0
	for _, name := range calls {
		if name == a.Handler {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertCallCount,
			Expected: fmt.Sprintf("%d calls of %s", a.Count, a.Handler),
			Actual:   fmt.Sprintf("%d calls", count),
			Calls:    calls,
		}
	}
	return nil
}

// assertCallOrder checks that handlers first ran in the given order.
// Intervening calls are allowed.
func assertCallOrder(calls []string, a Assertion) error {
	// first position of each expected handler, 1-indexed
	positions := make(map[string]int)
	for i, name := range calls {
		if positions[name] == 0 && slices.Contains(a.Handlers, name) {
			positions[name] = i + 1
		}
	}

	for _, name := range a.Handlers {
		if positions[name] == 0 {
			return &AssertionError{
				Type:     AssertCallOrder,
				Expected: fmt.Sprintf("all handlers called: %v", a.Handlers),
				Actual:   fmt.Sprintf("missing handler: %s", name),
				Calls:    calls,
			}
		}
	}
	for i := 1; i < len(a.Handlers); i++ {
		prev, curr := a.Handlers[i-1], a.Handlers[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertCallOrder,
				Expected: fmt.Sprintf("handlers in order: %v", a.Handlers),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Calls: calls,
			}
		}
	}
	return nil
}

// assertDispatchCount checks the number of journaled dispatches of a slot.
func assertDispatchCount(ctx context.Context, st *store.Store, a Assertion) error {
	recs, err := st.ReadSlot(ctx, a.Slot)
	if err != nil {
		return fmt.Errorf("dispatch_count: %w", err)
	}
	if len(recs) != a.Count {
		return &AssertionError{
			Type:     AssertDispatchCount,
			Expected: fmt.Sprintf("%d dispatches of slot %s", a.Count, a.Slot),
			Actual:   fmt.Sprintf("%d dispatches", len(recs)),
		}
	}
	return nil
}

// assertFinalState checks a slot's registrations and effective settings
// using subset semantics: only keys present in Expect are compared.
func assertFinalState(c *engine.Container, a Assertion) error {
	s, ok := c.Lookup(a.Slot)
	if !ok {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("slot %s to exist", a.Slot),
			Actual:   "slot not found",
		}
	}

	regs := s.Registrations()
	handlers := make([]any, len(regs))
	for i, r := range regs {
		handlers[i] = r.Handler.Name()
	}
	settings := s.Settings()
	actual := map[string]any{
		"registrations": int64(len(regs)),
		"handlers":      handlers,
	}
	actual[string(engine.KeyMinRegistrations)] = int64(settings.MinRegistrations)
	actual[string(engine.KeyMaxRegistrations)] = int64(settings.MaxRegistrations)
	actual[string(engine.KeyReturns)] = settings.Returns
	actual[string(engine.KeyIgnoreFailures)] = settings.IgnoreFailures

	keys := make([]string, 0, len(a.Expect))
	for k := range a.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		want := normalize(a.Expect[key])
		if diff := cmp.Diff(want, actual[key], cmpopts.EquateEmpty()); diff != "" {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("slot %s %s = %v", a.Slot, key, want),
				Actual:   fmt.Sprintf("%v (-want +got):\n%s", actual[key], diff),
			}
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against a finished run.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	var calls []string
	if actx != nil && actx.Tracker != nil {
		calls = actx.Tracker.Names()
	}

	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertCallCount:
			err = assertCallCount(calls, a)
		case AssertCallOrder:
			err = assertCallOrder(calls, a)
		case AssertDispatchCount:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: dispatch_count requires a journal", i)
			} else {
				err = assertDispatchCount(actx.Ctx, actx.Store, a)
			}
		case AssertFinalState:
			if actx == nil || actx.Container == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires a container", i)
			} else {
				err = assertFinalState(actx.Container, a)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}
