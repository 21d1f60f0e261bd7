// Package engine implements the wires dispatch engine.
//
// A Container holds named Slots. Each Slot holds an ordered list of
// registrations: a Handler plus arguments bound when it was wired.
// Invoking a slot calls every registration in wiring order and aggregates
// the outcomes according to two coupling settings.
//
// SETTINGS:
//
// Every slot resolves four settings with three-level precedence:
//
//	call-time (next Invoke only) > per-slot > container default
//
//   - MinRegistrations / MaxRegistrations: cardinality bounds, 0 = none
//   - Returns: Invoke returns per-registration records
//   - IgnoreFailures: keep calling registrations after a failure
//
// Call-time overrides come from Slot.SetNextCall or from
// Container.WithOverrides, which applies to the next slot referenced.
// Every Invoke consumes them.
//
// COUPLING:
//
//	                | IgnoreFailures=false         | IgnoreFailures=true
//	----------------+------------------------------+-----------------------
//	Returns=false   | stop after first failure,    | call all,
//	                | return (nil, nil)            | return (nil, nil)
//	Returns=true    | stop after first failure,    | call all,
//	                | *CoupledFailureError with    | return one Record per
//	                | the records so far           | registration
//
// With Returns=false, failures are handed to the slot's failure reporter
// (mute, slog, or a stream) instead of being returned.
//
// ARGUMENTS:
//
// A registration is called with its bound positional arguments followed by
// the call-time ones. Named arguments are merged; call-time values win.
//
// FAILURES:
//
// A handler's returned error, or a recovered panic, is captured as a
// *Failure inside the handler's Record. The original error is kept as
// Failure.Cause, so errors.Is works through Records and through
// CoupledFailureError.
package engine
