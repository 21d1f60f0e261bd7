package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"k8s.io/utils/ptr"

	"github.com/roach88/wires/internal/compiler"
	"github.com/roach88/wires/internal/engine"
	"github.com/roach88/wires/internal/harness"
	"github.com/roach88/wires/internal/ir"
	"github.com/roach88/wires/internal/metrics"
	"github.com/roach88/wires/internal/store"
)

// InvokeOptions holds flags for the invoke command.
type InvokeOptions struct {
	*RootOptions
	Args           string
	Kwargs         string
	Returns        bool
	IgnoreFailures bool
	Database       string
	Metrics        bool

	// TraceIDs overrides the dispatch trace ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	TraceIDs engine.TraceIDGenerator
}

// InvokeResult is the payload of the invoke command.
type InvokeResult struct {
	Slot           string     `json:"slot"`
	TraceID        string     `json:"trace_id"`
	Seq            int64      `json:"seq"`
	Returns        bool       `json:"returns"`
	IgnoreFailures bool       `json:"ignore_failures"`
	Calls          []CallView `json:"calls"`
	ShortCircuited bool       `json:"short_circuited,omitempty"`
	Rejected       bool       `json:"rejected,omitempty"`
}

// CallView is one handler call in command output.
type CallView struct {
	Handler string `json:"handler"`
	Value   any    `json:"value,omitempty"`
	Failure string `json:"failure,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

// NewInvokeCommand creates the invoke command.
func NewInvokeCommand(rootOpts *RootOptions) *cobra.Command {
	return newInvokeCommand(&InvokeOptions{RootOptions: rootOpts})
}

func newInvokeCommand(opts *InvokeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invoke <manifest> <slot>",
		Short: "Build a container from a manifest and invoke one slot",
		Long: `Build a container from a manifest (CUE, or JSON written by compile)
wired with the builtin handlers, then invoke one slot once.

--returns and --ignore-failures override the slot settings for this call
only. With --db the dispatch is appended to a SQLite journal that trace
can read back; sequence numbers continue from the journal.

Exit codes:
  0 - Invocation completed (decoupled failures are still reported)
  1 - Invalid manifest, rejected invocation or coupled failure
  2 - Command error (bad flags, missing manifest, journal errors)

Examples:
  wires invoke app.cue saved --args '["doc-1"]'
  wires invoke app.cue saved --kwargs '{"user":"ada"}' --returns
  wires invoke app.cue saved --returns --ignore-failures=false --db journal.db`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInvoke(cmd.Context(), opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Args, "args", "[]", "call-time positional arguments as a JSON array")
	cmd.Flags().StringVar(&opts.Kwargs, "kwargs", "{}", "call-time named arguments as a JSON object")
	cmd.Flags().BoolVar(&opts.Returns, "returns", false, "return per-handler records for this call")
	cmd.Flags().BoolVar(&opts.IgnoreFailures, "ignore-failures", true, "keep calling handlers after a failure")
	cmd.Flags().StringVar(&opts.Database, "db", opts.DB, "path to the SQLite dispatch journal (optional)")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "print dispatch metrics in Prometheus text format to stderr")

	return cmd
}

func runInvoke(ctx context.Context, opts *InvokeOptions, path, slotName string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := opts.logger()

	callArgs, err := parseCallArgs(opts.Args, opts.Kwargs)
	if err != nil {
		return outputCommandError(formatter, ErrCodeInvalidInput, err.Error())
	}

	m, err := LoadManifest(path)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	if errs := compiler.Validate(m, builtinHandlers()); len(errs) > 0 {
		return outputValidationErrors(formatter, m, errs)
	}
	if _, ok := m.Slot(slotName); !ok {
		return outputCommandError(formatter, ErrCodeInvalidInput, fmt.Sprintf("slot %q is not declared in %s", slotName, path))
	}

	var last *engine.Dispatch
	collector := metrics.NewCollector()
	registry := prometheus.NewRegistry()
	if err := collector.Register(registry); err != nil {
		return outputCommandError(formatter, ErrCodeGeneric, fmt.Sprintf("register metrics: %v", err))
	}

	traceIDs := opts.TraceIDs
	if traceIDs == nil {
		traceIDs = engine.UUIDv7Generator{}
	}
	engineOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithTraceIDGenerator(traceIDs),
		engine.WithReporter(engine.ReportStream, engine.StreamReporter{W: formatter.GetErrWriter()}),
		engine.WithObserver(collector),
		engine.WithObserver(engine.ObserverFunc(func(d engine.Dispatch) { last = &d })),
	}

	var journal *store.Journal
	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return outputCommandError(formatter, ErrCodeJournal, fmt.Sprintf("open journal: %v", err))
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing journal", "error", closeErr)
			}
		}()
		seq, err := st.MaxSeq(ctx)
		if err != nil {
			return outputCommandError(formatter, ErrCodeJournal, fmt.Sprintf("read journal: %v", err))
		}
		journal = store.NewJournal(st, logger)
		engineOpts = append(engineOpts, engine.WithObserver(journal), engine.WithClock(engine.NewClockAt(seq)))
		logger.Debug("journal ready", "path", opts.Database, "seq", seq)
	}

	container, err := harness.Build(m, harness.NewBuiltinCatalog(nil), engineOpts...)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitFailure, "build container", err)
	}

	slot := container.Slot(slotName)
	var next engine.Overrides
	if cmd.Flags().Changed("returns") {
		next.Returns = ptr.To(opts.Returns)
	}
	if cmd.Flags().Changed("ignore-failures") {
		next.IgnoreFailures = ptr.To(opts.IgnoreFailures)
	}
	slot.SetNextCall(next)

	logger.Debug("invoking slot", "slot", slotName, "registrations", slot.Len())
	_, invokeErr := slot.Invoke(ctx, callArgs)

	if journal != nil {
		if err := journal.Err(); err != nil {
			return outputCommandError(formatter, ErrCodeJournal, fmt.Sprintf("journal write failed: %v", err))
		}
	}
	if opts.Metrics {
		if err := writeMetrics(formatter.GetErrWriter(), registry); err != nil {
			logger.Warn("failed to write metrics", "error", err)
		}
	}
	if last == nil {
		return outputCommandError(formatter, ErrCodeGeneric, "invocation was not observed")
	}

	return outputInvokeResult(formatter, newInvokeResult(*last), invokeErr)
}

// parseCallArgs decodes --args and --kwargs. Floats are rejected.
func parseCallArgs(args, kwargs string) (engine.Args, error) {
	positional, err := ir.UnmarshalIRValue([]byte(args))
	if err != nil {
		return engine.Args{}, fmt.Errorf("invalid --args JSON: %w", err)
	}
	arr, ok := positional.(ir.IRArray)
	if !ok {
		return engine.Args{}, fmt.Errorf("invalid --args: must be a JSON array")
	}
	named, err := ir.UnmarshalIRValue([]byte(kwargs))
	if err != nil {
		return engine.Args{}, fmt.Errorf("invalid --kwargs JSON: %w", err)
	}
	obj, ok := named.(ir.IRObject)
	if !ok {
		return engine.Args{}, fmt.Errorf("invalid --kwargs: must be a JSON object")
	}
	return harness.ArgsFromIR(arr, obj), nil
}

func newInvokeResult(d engine.Dispatch) InvokeResult {
	result := InvokeResult{
		Slot:           d.Slot,
		TraceID:        d.TraceID,
		Seq:            d.Seq,
		Returns:        d.Returns,
		IgnoreFailures: d.IgnoreFailures,
		Calls:          make([]CallView, len(d.Calls)),
		ShortCircuited: d.ShortCircuited,
		Rejected:       d.Rejected,
	}
	for i, c := range d.Calls {
		view := CallView{Handler: c.Handler, Value: c.Record.Value}
		if f := c.Record.Failure; f != nil {
			view.Failure = f.Message
			view.Kind = string(f.Kind)
		}
		result.Calls[i] = view
	}
	return result
}

// outputInvokeResult prints the dispatch. A rejected invocation or a
// coupled failure is exit code 1; decoupled failures are not an error.
func outputInvokeResult(formatter *OutputFormatter, result InvokeResult, invokeErr error) error {
	var cliErr *CLIError
	if invokeErr != nil {
		code := string(engine.CodeOf(invokeErr))
		if _, ok := engine.AsCoupledFailure(invokeErr); ok {
			code = "COUPLED_FAILURE"
		}
		if code == "" {
			code = ErrCodeGeneric
		}
		cliErr = &CLIError{Code: code, Message: invokeErr.Error()}
	}

	if formatter.JSON() {
		status := "ok"
		if cliErr != nil {
			status = "error"
		}
		if err := formatter.encode(CLIResponse{Status: status, Data: result, Error: cliErr, TraceID: result.TraceID}); err != nil {
			return err
		}
	} else {
		writeInvokeText(formatter.Writer, result)
		if cliErr != nil {
			fmt.Fprintf(formatter.Writer, "Error [%s]: %s\n", cliErr.Code, cliErr.Message)
		}
	}

	if invokeErr != nil {
		return WrapExitError(ExitFailure, "invocation failed", invokeErr)
	}
	return nil
}

func writeInvokeText(w io.Writer, result InvokeResult) {
	fmt.Fprintf(w, "Slot %s: %d call(s) [seq %d, trace %s]\n", result.Slot, len(result.Calls), result.Seq, result.TraceID)
	switch {
	case result.Rejected:
		fmt.Fprintln(w, "  rejected: not enough registrations")
	case result.ShortCircuited:
		fmt.Fprintln(w, "  short-circuited after a failure")
	}
	for i, c := range result.Calls {
		if c.Kind != "" {
			fmt.Fprintf(w, "  [%d] %s ✗ %s: %s\n", i+1, c.Handler, c.Kind, c.Failure)
			continue
		}
		fmt.Fprintf(w, "  [%d] %s → %s\n", i+1, c.Handler, formatValue(c.Value))
	}
}

// writeMetrics writes every gathered metric family in the Prometheus text
// exposition format.
func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
