package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/roach88/wires/internal/compiler"
	"github.com/roach88/wires/internal/engine"
	"github.com/roach88/wires/internal/ir"
	"github.com/roach88/wires/internal/store"
	"github.com/roach88/wires/internal/testutil"
)

// Harness executes the steps of one scenario against one container.
type Harness struct {
	store     *store.Store
	container *engine.Container
	catalog   *Catalog
	logger    *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each run gets a fresh in-memory journal, container and builtin catalog.
// Failed expectations and assertions are reported in Result.Errors; the
// returned error is reserved for scenarios that cannot run at all (bad
// manifest, unknown handler, journal failure).
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is like Run with a context passed to every invocation.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	catalog := NewBuiltinCatalog(testutil.NewCallTracker())
	journal := store.NewJournal(st, logger)

	manifest := &ir.Manifest{Version: ir.ManifestVersion}
	if scenario.Manifest != "" {
		manifest, err = compiler.LoadManifest(scenario.Manifest)
		if err != nil {
			return nil, err
		}
		if verrs := compiler.Validate(manifest, catalog.Names()); len(verrs) > 0 {
			return nil, fmt.Errorf("invalid manifest %s: %w", scenario.Manifest, errors.Join(validationErrors(verrs)...))
		}
	}

	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithObserver(journal),
		engine.WithTraceIDGenerator(testutil.NewSequentialTraceIDs(scenario.Name)),
		engine.WithClock(engine.NewClock()),
		engine.WithReporter(engine.ReportStream, engine.StreamReporter{W: io.Discard}),
	}
	opts = append(opts, scenario.Defaults.options()...)
	if scenario.Report != "" {
		mode, err := engine.ParseReportMode(scenario.Report)
		if err != nil {
			return nil, err
		}
		opts = append(opts, engine.WithReportMode(mode))
	}

	container, err := Build(manifest, catalog, opts...)
	if err != nil {
		return nil, err
	}

	h := &Harness{
		store:     st,
		container: container,
		catalog:   catalog,
		logger:    logger,
	}

	result := NewResult()
	result.Scenario = scenario.Name
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Op, err)
		}
	}

	if err := journal.Err(); err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	recs, err := st.ReadDispatches(ctx, store.Filter{})
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	result.Trace = traceFromRecords(recs)

	actx := &AssertionContext{
		Ctx:       ctx,
		Store:     st,
		Container: container,
		Tracker:   catalog.Tracker(),
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func validationErrors(verrs []compiler.ValidationError) []error {
	errs := make([]error, len(verrs))
	for i, v := range verrs {
		errs[i] = v
	}
	return errs
}

// executeStep runs one step and checks its expectations. A returned error
// means the step could not be executed; expectation mismatches go to
// result.
func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) error {
	args, err := ParseArgs(step.Args, step.Kwargs)
	if err != nil {
		return err
	}

	var handler *engine.Handler
	if step.Handler != "" {
		var ok bool
		if handler, ok = h.catalog.Lookup(step.Handler); !ok {
			return fmt.Errorf("unknown handler %q", step.Handler)
		}
	}

	calledBefore := len(h.catalog.Tracker().Calls())

	var (
		records []engine.Record
		opErr   error
	)
	switch step.Op {
	case OpWire:
		opErr = h.container.Wire(step.Slot, handler, args)
	case OpUnwire:
		opErr = h.container.Unwire(step.Slot, handler)
	case OpUnwireExact:
		opErr = h.container.Slot(step.Slot).DeregisterExact(handler, args)
	case OpInvoke:
		records, opErr = h.container.Slot(step.Slot).Invoke(ctx, args)
	case OpSet:
		opErr = h.container.Slot(step.Slot).Set(step.Settings.Overrides())
	case OpUnset:
		opErr = h.container.Slot(step.Slot).Unset(engine.SettingKey(step.Key))
	case OpNextCall:
		h.container.Slot(step.Slot).SetNextCall(step.Settings.Overrides())
	case OpOverride:
		h.container.WithOverrides(step.Settings.Overrides())
	case OpDeleteSlot:
		opErr = h.container.DeleteSlot(step.Slot)
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}

	calls := h.catalog.Tracker().Names()[calledBefore:]
	h.logger.Debug("step executed",
		"step", index,
		"op", step.Op,
		"slot", step.Slot,
		"handler", step.Handler,
		"calls", len(calls),
		"error", opErr,
	)

	prefix := fmt.Sprintf("step %d (%s %s)", index, step.Op, step.Slot)
	for _, msg := range checkExpect(step.Expect, records, opErr, calls) {
		result.AddError(prefix + ": " + msg)
	}
	return nil
}

// errorCode names err the way expectations do.
func errorCode(err error) string {
	if err == nil {
		return ""
	}
	if code := engine.CodeOf(err); code != "" {
		return string(code)
	}
	if _, ok := engine.AsCoupledFailure(err); ok {
		return ErrCodeCoupledFailure
	}
	return "ERROR"
}

// checkExpect compares a step outcome to its expectations and returns one
// message per mismatch.
func checkExpect(e *Expect, records []engine.Record, err error, calls []string) []string {
	if e == nil {
		if err != nil {
			return []string{fmt.Sprintf("unexpected error: %v", err)}
		}
		return nil
	}

	var msgs []string
	code := errorCode(err)
	switch {
	case e.Error == "" && err != nil:
		msgs = append(msgs, fmt.Sprintf("unexpected error: %v", err))
	case e.Error != "" && code != e.Error:
		msgs = append(msgs, fmt.Sprintf("expected error %s, got %s", e.Error, describeError(err)))
	}

	if e.Void && records != nil {
		msgs = append(msgs, fmt.Sprintf("expected no records, got %d", len(records)))
	}

	if e.Records != nil {
		got := records
		if cf, ok := engine.AsCoupledFailure(err); ok {
			got = cf.Records
		}
		if diff := diffRecords(e.Records, got); diff != "" {
			msgs = append(msgs, "records mismatch (-want +got):\n"+diff)
		}
	}

	if e.Calls != nil {
		if diff := cmp.Diff(e.Calls, calls, cmpopts.EquateEmpty()); diff != "" {
			msgs = append(msgs, "calls mismatch (-want +got):\n"+diff)
		}
	}
	return msgs
}

func describeError(err error) string {
	if err == nil {
		return "no error"
	}
	return fmt.Sprintf("%s (%v)", errorCode(err), err)
}

// diffRecords projects got onto the shape of want and diffs them.
func diffRecords(want []RecordExpect, got []engine.Record) string {
	normWant := make([]RecordExpect, len(want))
	for i, w := range want {
		normWant[i] = RecordExpect{Value: normalize(w.Value), Failure: w.Failure, Kind: w.Kind}
	}

	projected := make([]RecordExpect, len(got))
	for i, r := range got {
		var w RecordExpect
		if i < len(want) {
			w = want[i]
		}
		projected[i] = project(w, r)
	}
	return strings.TrimSpace(cmp.Diff(normWant, projected, cmpopts.EquateEmpty()))
}

func project(want RecordExpect, r engine.Record) RecordExpect {
	var p RecordExpect
	if r.Failure != nil {
		p.Failure = r.Failure.Message
		p.Kind = string(r.Failure.Kind)
	} else {
		p.Value = normalize(r.Value)
	}
	if want.Kind == "" {
		p.Kind = ""
	}
	if want.Failure == "" && want.Kind != "" {
		p.Failure = ""
	}
	return p
}
