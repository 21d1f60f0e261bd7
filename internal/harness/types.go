package harness

import (
	"github.com/roach88/wires/internal/ir"
	"github.com/roach88/wires/internal/store"
)

// TraceEvent is one journaled dispatch of a scenario run.
type TraceEvent struct {
	Seq            int64          `json:"seq"`
	TraceID        string         `json:"trace_id"`
	Slot           string         `json:"slot"`
	Args           []any          `json:"args,omitempty"`
	Kwargs         map[string]any `json:"kwargs,omitempty"`
	Calls          []TraceCall    `json:"calls"`
	ShortCircuited bool           `json:"short_circuited,omitempty"`
	Rejected       bool           `json:"rejected,omitempty"`
}

// TraceCall is one handler call within a TraceEvent.
type TraceCall struct {
	Handler string `json:"handler"`
	Value   any    `json:"value,omitempty"`
	Failure string `json:"failure,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Scenario is the name of the scenario that produced the result.
	Scenario string `json:"scenario,omitempty"`

	// Pass is true if every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace holds the journaled dispatches in seq order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds one message per failed expectation or assertion.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// traceFromRecords converts journal records into trace events.
func traceFromRecords(recs []store.DispatchRecord) []TraceEvent {
	trace := make([]TraceEvent, len(recs))
	for i, rec := range recs {
		ev := TraceEvent{
			Seq:            rec.Seq,
			TraceID:        rec.TraceID,
			Slot:           rec.Slot,
			Args:           rec.Args.Slice(),
			Kwargs:         rec.Kwargs.Map(),
			Calls:          make([]TraceCall, len(rec.Outcomes)),
			ShortCircuited: rec.ShortCircuited,
			Rejected:       rec.Rejected,
		}
		for j, o := range rec.Outcomes {
			call := TraceCall{Handler: o.Handler}
			if o.Failed() {
				call.Failure = o.Failure
				call.Kind = o.FailureKind
			} else {
				call.Value = ir.ToAny(o.Value)
			}
			ev.Calls[j] = call
		}
		trace[i] = ev
	}
	return trace
}
