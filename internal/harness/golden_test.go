package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden(t *testing.T) {
	for _, name := range []string{"returns_all_records", "coupling"} {
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario("testdata/scenarios/" + name + ".yaml")
			require.NoError(t, err)
			require.NoError(t, RunWithGolden(t, scenario))
		})
	}
}

func TestMarshalTrace_OmitsEmptyFields(t *testing.T) {
	result := NewResult()
	result.Trace = []TraceEvent{
		{
			Seq:     1,
			TraceID: "t-1",
			Slot:    "s",
			Args:    []any{int64(1)},
			Kwargs:  map[string]any{"k": "v"},
			Calls:   []TraceCall{{Handler: "echo", Value: []any{int64(1)}}},
		},
		{
			Seq:      2,
			TraceID:  "t-2",
			Slot:     "s",
			Rejected: true,
		},
	}

	got, err := MarshalTrace("demo", result)
	require.NoError(t, err)
	assert.Equal(t,
		`{"scenario_name":"demo","trace":[`+
			`{"args":[1],"calls":[{"handler":"echo","value":[1]}],"kwargs":{"k":"v"},"seq":1,"slot":"s","trace_id":"t-1"},`+
			`{"calls":[],"rejected":true,"seq":2,"slot":"s","trace_id":"t-2"}]}`,
		string(got))
}
