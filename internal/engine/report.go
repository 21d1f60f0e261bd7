package engine

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ReportMode selects how a decoupled slot (returns=false) reports handler
// failures. It is read once per failure.
type ReportMode int

const (
	// ReportInherit defers to the container's report mode. It is the zero
	// value for slots; a container resolves it to ReportMute.
	ReportInherit ReportMode = iota

	// ReportMute discards failures.
	ReportMute

	// ReportLog sends failures to the container's log reporter.
	ReportLog

	// ReportStream writes failures and stacks to the container's stream
	// reporter (stderr by default).
	ReportStream
)

// String implements fmt.Stringer.
func (m ReportMode) String() string {
	switch m {
	case ReportInherit:
		return "inherit"
	case ReportMute:
		return "mute"
	case ReportLog:
		return "log"
	case ReportStream:
		return "stream"
	}
	return fmt.Sprintf("ReportMode(%d)", int(m))
}

// ParseReportMode parses "inherit", "mute", "log" or "stream".
func ParseReportMode(s string) (ReportMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "inherit":
		return ReportInherit, nil
	case "mute":
		return ReportMute, nil
	case "log":
		return ReportLog, nil
	case "stream":
		return ReportStream, nil
	}
	return ReportInherit, fmt.Errorf("invalid report mode %q: must be one of inherit, mute, log, stream", s)
}

// Reporter receives failures from decoupled invocations.
type Reporter interface {
	Report(slot, handler string, f *Failure)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(slot, handler string, f *Failure)

// Report implements Reporter.
func (fn ReporterFunc) Report(slot, handler string, f *Failure) {
	fn(slot, handler, f)
}

// LogReporter reports failures as structured slog records at error level.
type LogReporter struct {
	Logger *slog.Logger
}

// Report implements Reporter.
func (r LogReporter) Report(slot, handler string, f *Failure) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{
		"slot", slot,
		"handler", handler,
		"kind", string(f.Kind),
		"error", f.Cause,
	}
	if len(f.Stack) > 0 {
		attrs = append(attrs, "stack", string(f.Stack))
	}
	logger.Error("handler failed", attrs...)
}

// StreamReporter writes a one-line failure description followed by the
// captured stack, if any, to W (stderr when nil).
type StreamReporter struct {
	W io.Writer
}

// Report implements Reporter.
func (r StreamReporter) Report(slot, handler string, f *Failure) {
	w := r.W
	if w == nil {
		w = os.Stderr
	}
	fmt.Fprintf(w, "%q handler %s failed: %v\n", slot, handler, f.Cause)
	if len(f.Stack) > 0 {
		fmt.Fprintf(w, "%s\n", f.Stack)
	}
}
