package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/wires/internal/ir"
	"github.com/roach88/wires/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database   string
	Slot       string // optional - filter to one slot
	TraceID    string // optional - a single dispatch
	FailedOnly bool
}

// TraceEntry is one journaled dispatch in the timeline.
type TraceEntry struct {
	Seq            int64          `json:"seq"`
	ID             string         `json:"id"`
	TraceID        string         `json:"trace_id"`
	Slot           string         `json:"slot"`
	Args           []any          `json:"args,omitempty"`
	Kwargs         map[string]any `json:"kwargs,omitempty"`
	Returns        bool           `json:"returns"`
	IgnoreFailures bool           `json:"ignore_failures"`
	ShortCircuited bool           `json:"short_circuited,omitempty"`
	Rejected       bool           `json:"rejected,omitempty"`
	Calls          []CallView     `json:"calls"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Timeline []TraceEntry `json:"timeline"`
	Stats    TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the timeline.
type TraceStats struct {
	Dispatches     int `json:"dispatches"`
	Calls          int `json:"calls"`
	Failures       int `json:"failures"`
	ShortCircuited int `json:"short_circuited"`
	Rejected       int `json:"rejected"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Read dispatches back from a journal",
		Long: `Read journaled dispatches in sequence order.

Each entry shows the slot, the call-time arguments, the effective
coupling settings and every handler call with its value or failure.

Examples:
  wires trace --db ./journal.db
  wires trace --db ./journal.db --slot saved --failed
  wires trace --db ./journal.db --trace 0192f0c2-... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", rootOpts.DB, "path to the SQLite dispatch journal (required)")
	cmd.Flags().StringVar(&opts.Slot, "slot", "", "filter to one slot")
	cmd.Flags().StringVar(&opts.TraceID, "trace", "", "show the dispatch with this trace ID")
	cmd.Flags().BoolVar(&opts.FailedOnly, "failed", false, "only dispatches with a failure or a rejection")

	return cmd
}

func runTrace(ctx context.Context, opts *TraceOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	if opts.Database == "" {
		return outputCommandError(formatter, ErrCodeInvalidInput, "--db is required (or set WIRES_DB)")
	}
	// store.Open would create a missing journal.
	if _, err := os.Stat(opts.Database); errors.Is(err, os.ErrNotExist) {
		return outputCommandError(formatter, ErrCodeNotFound, fmt.Sprintf("journal not found: %s", opts.Database))
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return outputCommandError(formatter, ErrCodeJournal, fmt.Sprintf("open journal: %v", err))
	}
	defer st.Close()

	recs, err := st.ReadDispatches(ctx, store.Filter{
		Slot:       opts.Slot,
		TraceID:    opts.TraceID,
		FailedOnly: opts.FailedOnly,
	})
	if err != nil {
		return outputCommandError(formatter, ErrCodeJournal, fmt.Sprintf("read journal: %v", err))
	}
	if opts.TraceID != "" && len(recs) == 0 {
		return outputCommandError(formatter, ErrCodeNotFound, fmt.Sprintf("trace %q not found", opts.TraceID))
	}

	result := buildTrace(recs)
	if formatter.JSON() {
		return formatter.Success(result)
	}
	return outputTraceText(formatter.Writer, result, opts.Verbose)
}

// buildTrace converts journal records to timeline entries.
func buildTrace(recs []store.DispatchRecord) TraceResult {
	result := TraceResult{Timeline: make([]TraceEntry, len(recs))}
	for i, rec := range recs {
		entry := TraceEntry{
			Seq:            rec.Seq,
			ID:             rec.ID,
			TraceID:        rec.TraceID,
			Slot:           rec.Slot,
			Args:           rec.Args.Slice(),
			Kwargs:         rec.Kwargs.Map(),
			Returns:        rec.Returns,
			IgnoreFailures: rec.IgnoreFailures,
			ShortCircuited: rec.ShortCircuited,
			Rejected:       rec.Rejected,
			Calls:          callViews(rec),
		}
		result.Timeline[i] = entry

		result.Stats.Dispatches++
		result.Stats.Calls += len(rec.Outcomes)
		result.Stats.Failures += rec.Failures()
		if rec.ShortCircuited {
			result.Stats.ShortCircuited++
		}
		if rec.Rejected {
			result.Stats.Rejected++
		}
	}
	return result
}

// callViews converts the journaled outcomes of rec.
func callViews(rec store.DispatchRecord) []CallView {
	views := make([]CallView, len(rec.Outcomes))
	for i, o := range rec.Outcomes {
		view := CallView{Handler: o.Handler}
		if o.Failed() {
			view.Failure = o.Failure
			view.Kind = o.FailureKind
		} else if o.Value != nil {
			view.Value = ir.ToAny(o.Value)
		}
		views[i] = view
	}
	return views
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) error {
	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no dispatches)")
	}
	for _, e := range result.Timeline {
		fmt.Fprintf(w, "  [%d] %s%s\n", e.Seq, e.Slot, dispatchFlags(e))
		if len(e.Args) > 0 || len(e.Kwargs) > 0 {
			fmt.Fprintf(w, "       Args: %s %s\n", formatValue(e.Args), formatArgs(e.Kwargs))
		}
		if verbose {
			fmt.Fprintf(w, "       Trace: %s  ID: %s\n", e.TraceID, truncateID(e.ID))
		}
		for _, c := range e.Calls {
			if c.Kind != "" {
				fmt.Fprintf(w, "       %s ✗ %s: %s\n", c.Handler, c.Kind, c.Failure)
				continue
			}
			fmt.Fprintf(w, "       %s → %s\n", c.Handler, formatValue(c.Value))
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Dispatches:      %d\n", result.Stats.Dispatches)
	fmt.Fprintf(w, "  Handler calls:   %d\n", result.Stats.Calls)
	fmt.Fprintf(w, "  Failures:        %d\n", result.Stats.Failures)
	fmt.Fprintf(w, "  Short-circuited: %d\n", result.Stats.ShortCircuited)
	fmt.Fprintf(w, "  Rejected:        %d\n", result.Stats.Rejected)
	return nil
}

func dispatchFlags(e TraceEntry) string {
	var flags []string
	if e.Returns {
		flags = append(flags, "returns")
	}
	if !e.IgnoreFailures {
		flags = append(flags, "stop-on-failure")
	}
	if e.ShortCircuited {
		flags = append(flags, "short-circuited")
	}
	if e.Rejected {
		flags = append(flags, "rejected")
	}
	if len(flags) == 0 {
		return ""
	}
	return " (" + strings.Join(flags, ", ") + ")"
}

// formatArgs formats a map of args for display.
// Uses sorted keys to ensure deterministic output.
func formatArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%s", k, formatValue(args[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// formatValue renders a value as canonical JSON, falling back to %v for
// values with no IR form.
func formatValue(v any) string {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
