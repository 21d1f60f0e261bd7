package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/wires/internal/ir"
)

// TraceSnapshot captures the trace of a scenario run for golden comparison.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// toCanonicalMap converts the snapshot to plain maps for
// ir.MarshalCanonical. Empty args, kwargs and false flags are omitted.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		calls := make([]any, len(event.Calls))
		for j, c := range event.Calls {
			call := map[string]any{"handler": c.Handler}
			if c.Kind != "" {
				call["failure"] = c.Failure
				call["kind"] = c.Kind
			} else {
				call["value"] = c.Value
			}
			calls[j] = call
		}

		eventMap := map[string]any{
			"seq":      event.Seq,
			"trace_id": event.TraceID,
			"slot":     event.Slot,
			"calls":    calls,
		}
		if len(event.Args) > 0 {
			eventMap["args"] = event.Args
		}
		if len(event.Kwargs) > 0 {
			eventMap["kwargs"] = event.Kwargs
		}
		if event.ShortCircuited {
			eventMap["short_circuited"] = true
		}
		if event.Rejected {
			eventMap["rejected"] = true
		}
		traceList[i] = eventMap
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
	}
}

// MarshalTrace renders the trace of result as canonical JSON.
func MarshalTrace(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{ScenarioName: scenarioName, Trace: result.Trace}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns an error if the scenario cannot run. A trace mismatch fails t.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
