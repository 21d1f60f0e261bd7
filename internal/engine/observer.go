package engine

// Observer is notified once per Invoke, after all handlers for that call
// have run (or after the call was rejected for insufficient registrations).
//
// Observers see every attempted handler call regardless of the coupling
// settings. They run synchronously on the invoking goroutine; a panicking
// observer is recovered and logged.
type Observer interface {
	Dispatched(d Dispatch)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(d Dispatch)

// Dispatched implements Observer.
func (fn ObserverFunc) Dispatched(d Dispatch) {
	fn(d)
}

// Dispatch describes one Invoke.
type Dispatch struct {
	// TraceID correlates this dispatch across observers.
	TraceID string

	// Seq is the container's logical clock value for this dispatch.
	Seq int64

	Slot string

	// Args are the call-time arguments.
	Args Args

	// Calls holds one entry per handler actually called, in order.
	Calls []HandlerCall

	// Returns and IgnoreFailures are the effective coupling settings.
	Returns        bool
	IgnoreFailures bool

	// ShortCircuited is true when a failure stopped the loop early.
	ShortCircuited bool

	// Rejected is true when no handler ran because the slot was below its
	// effective min registrations.
	Rejected bool
}

// HandlerCall is one handler invocation within a Dispatch.
type HandlerCall struct {
	Handler string

	// Args are the combined bound and call-time arguments.
	Args Args

	Record Record
}

// Failures counts failed calls.
func (d Dispatch) Failures() int {
	n := 0
	for _, c := range d.Calls {
		if c.Record.Failed() {
			n++
		}
	}
	return n
}

// Records returns the per-call records in order.
func (d Dispatch) Records() []Record {
	records := make([]Record, len(d.Calls))
	for i, c := range d.Calls {
		records[i] = c.Record
	}
	return records
}
