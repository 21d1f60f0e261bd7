package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/spf13/cobra"
	"k8s.io/utils/ptr"

	"github.com/roach88/wires/internal/compiler"
	"github.com/roach88/wires/internal/engine"
	"github.com/roach88/wires/internal/harness"
	"github.com/roach88/wires/internal/ir"
	"github.com/roach88/wires/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Slot     string // optional - replay one slot only
}

// ReplayDispatchResult is the replay of one journaled dispatch.
type ReplayDispatchResult struct {
	Seq           int64  `json:"seq"`
	TraceID       string `json:"trace_id"`
	Slot          string `json:"slot"`
	Deterministic bool   `json:"deterministic"`
	Diff          string `json:"diff,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Dispatches       []ReplayDispatchResult `json:"dispatches"`
	Total            int                    `json:"total"`
	Mismatched       int                    `json:"mismatched"`
	AllDeterministic bool                   `json:"all_deterministic"`
}

// replayedOutcome is what a dispatch is compared on.
type replayedOutcome struct {
	Calls          []CallView
	ShortCircuited bool
	Rejected       bool
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <manifest>",
		Short: "Re-run journaled dispatches and verify the outcomes match",
		Long: `Re-run every journaled dispatch, in sequence order, against one fresh
container built from the manifest, and compare each handler call's value
or failure with the journal.

Each dispatch is replayed with its journaled call-time arguments and
coupling settings. A mismatch means the manifest no longer reproduces
the journal. Handlers that keep state across calls (count) only match
when the journal was written by a single container.

Exit codes:
  0 - Every dispatch reproduced
  1 - At least one dispatch differs
  2 - Command error (journal not found, invalid manifest, etc.)

Examples:
  wires replay app.cue --db ./journal.db
  wires replay app.cue --db ./journal.db --slot saved --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", rootOpts.DB, "path to the SQLite dispatch journal (required)")
	cmd.Flags().StringVar(&opts.Slot, "slot", "", "replay one slot only")

	return cmd
}

func runReplay(ctx context.Context, opts *ReplayOptions, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	if opts.Database == "" {
		return outputCommandError(formatter, ErrCodeInvalidInput, "--db is required (or set WIRES_DB)")
	}
	if _, err := os.Stat(opts.Database); errors.Is(err, os.ErrNotExist) {
		return outputCommandError(formatter, ErrCodeNotFound, fmt.Sprintf("journal not found: %s", opts.Database))
	}

	m, err := LoadManifest(path)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	if errs := compiler.Validate(m, builtinHandlers()); len(errs) > 0 {
		return outputCommandError(formatter, errs[0].Code, fmt.Sprintf("invalid manifest: %s", errs[0].Error()))
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return outputCommandError(formatter, ErrCodeJournal, fmt.Sprintf("open journal: %v", err))
	}
	defer st.Close()

	recs, err := st.ReadDispatches(ctx, store.Filter{Slot: opts.Slot})
	if err != nil {
		return outputCommandError(formatter, ErrCodeJournal, fmt.Sprintf("read journal: %v", err))
	}

	var last *engine.Dispatch
	container, err := harness.Build(m, harness.NewBuiltinCatalog(nil),
		engine.WithLogger(opts.logger()),
		engine.WithReporter(engine.ReportStream, engine.StreamReporter{W: io.Discard}),
		engine.WithReporter(engine.ReportLog, engine.StreamReporter{W: io.Discard}),
		engine.WithObserver(engine.ObserverFunc(func(d engine.Dispatch) { last = &d })),
	)
	if err != nil {
		return outputCommandError(formatter, ErrCodeGeneric, fmt.Sprintf("build container: %v", err))
	}

	result := ReplayResult{
		Dispatches:       make([]ReplayDispatchResult, 0, len(recs)),
		AllDeterministic: true,
	}
	for _, rec := range recs {
		last = nil
		slot := container.Slot(rec.Slot)
		slot.SetNextCall(engine.Overrides{
			Returns:        ptr.To(rec.Returns),
			IgnoreFailures: ptr.To(rec.IgnoreFailures),
		})
		_, _ = slot.Invoke(ctx, harness.ArgsFromIR(rec.Args, rec.Kwargs))

		dr := ReplayDispatchResult{Seq: rec.Seq, TraceID: rec.TraceID, Slot: rec.Slot}
		dr.Diff = diffReplay(rec, last)
		dr.Deterministic = dr.Diff == ""
		formatter.VerboseLog("replayed seq %d (%s): deterministic=%t", rec.Seq, rec.Slot, dr.Deterministic)

		result.Dispatches = append(result.Dispatches, dr)
		result.Total++
		if !dr.Deterministic {
			result.Mismatched++
			result.AllDeterministic = false
		}
	}

	if formatter.JSON() {
		return outputReplayJSON(formatter, result)
	}
	return outputReplayText(formatter.Writer, result, opts.Verbose)
}

// diffReplay compares a journaled dispatch with its replay. Returns "" when
// they match.
func diffReplay(rec store.DispatchRecord, replayed *engine.Dispatch) string {
	if replayed == nil {
		return "dispatch was not replayed"
	}
	want := replayedOutcome{Calls: plainCalls(callViews(rec)), ShortCircuited: rec.ShortCircuited, Rejected: rec.Rejected}
	got := replayedOutcome{
		Calls:          plainCalls(newInvokeResult(*replayed).Calls),
		ShortCircuited: replayed.ShortCircuited,
		Rejected:       replayed.Rejected,
	}
	return cmp.Diff(want, got, cmpopts.EquateEmpty())
}

func plainCalls(calls []CallView) []CallView {
	for i := range calls {
		calls[i].Value = plainValue(calls[i].Value)
	}
	return calls
}

// plainValue maps handler values to the types the journal reads back, so
// int and int64 compare equal. Values with no IR form are compared as
// their %v text, which is how the journal stores them.
func plainValue(v any) any {
	iv, err := ir.FromAny(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return ir.ToAny(iv)
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(formatter *OutputFormatter, result ReplayResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	if !result.AllDeterministic {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_DETERMINISM",
			Message: fmt.Sprintf("%d of %d dispatch(es) differ", result.Mismatched, result.Total),
		}
	}
	if err := formatter.encode(response); err != nil {
		return err
	}

	if !result.AllDeterministic {
		return NewExitError(ExitFailure, "replay differs from journal")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(w io.Writer, result ReplayResult, verbose bool) error {
	fmt.Fprintf(w, "Replay Summary: %d dispatch(es)\n", result.Total)
	fmt.Fprintln(w)

	for _, d := range result.Dispatches {
		if d.Deterministic {
			if verbose {
				fmt.Fprintf(w, "✓ [%d] %s\n", d.Seq, d.Slot)
			}
			continue
		}
		fmt.Fprintf(w, "✗ [%d] %s (trace %s)\n", d.Seq, d.Slot, d.TraceID)
		fmt.Fprintf(w, "  (-journal +replay):\n%s\n", d.Diff)
	}

	if result.AllDeterministic {
		fmt.Fprintln(w, "✓ All dispatches reproduced")
		return nil
	}

	fmt.Fprintf(w, "✗ %d dispatch(es) differ from the journal\n", result.Mismatched)
	return NewExitError(ExitFailure, "replay differs from journal")
}
