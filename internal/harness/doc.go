// Package harness runs wiring scenarios against a real engine container.
//
// A scenario is a YAML file describing a sequence of wiring operations and
// invocations, each with optional expectations:
//
//	name: short_circuit
//	description: "a failing handler stops a coupled slot"
//	manifest: wiring.cue          # optional, relative to the scenario file
//	defaults:
//	  returns: true
//	  ignore_failures: false
//	steps:
//	  - op: wire
//	    slot: saved
//	    handler: const
//	    args: [1]
//	  - op: wire
//	    slot: saved
//	    handler: fail
//	  - op: invoke
//	    slot: saved
//	    expect:
//	      error: COUPLED_FAILURE
//	      records:
//	        - value: 1
//	        - failure: boom
//	      calls: [const, fail]
//	assertions:
//	  - type: call_count
//	    handler: fail
//	    count: 1
//
// # Operations
//
//   - wire, unwire, unwire_exact: registration changes (slot, handler, args, kwargs)
//   - invoke: call the slot (slot, args, kwargs)
//   - set, next_call: per-slot or one-shot settings (slot, settings)
//   - unset: drop a per-slot setting (slot, key)
//   - override: container call-time overrides for the next slot referenced (settings)
//   - delete_slot: forget a slot (slot)
//
// A step without expect must succeed. expect.error names the error code
// (engine.ErrorCode, or COUPLED_FAILURE); expect.records, expect.calls and
// expect.void check what an invoke returned and which handlers ran.
//
// # Assertions
//
//   - call_count: a handler ran exactly count times over the whole scenario
//   - call_order: handlers first ran in the given order
//   - dispatch_count: the journal holds count dispatches for a slot
//   - final_state: a slot's registrations and effective settings at the end
//
// # Deterministic Testing
//
// Every run uses a fresh in-memory journal, a fresh logical clock and trace
// IDs "<scenario name>-0001", "<scenario name>-0002", ... so the trace of a
// scenario is identical across runs and can be compared to a golden file
// (RunWithGolden).
//
// Handlers come from the builtin catalog (NewBuiltinCatalog): echo, const,
// sum, fail, panic and count.
package harness
