package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScenario writes content to dir/name and returns the path.
func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "s.yaml", `
name: valid
description: "a valid scenario"
defaults:
  returns: true
report: log
steps:
  - op: wire
    slot: saved
    handler: echo
    args: [1, "two", true]
    kwargs: {k: v}
  - op: invoke
    slot: saved
    expect:
      records:
        - value: [1, "two", true]
      calls: [echo]
assertions:
  - type: call_count
    handler: echo
    count: 1
`)

	s, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "valid", s.Name)
	assert.Equal(t, "log", s.Report)
	require.NotNil(t, s.Defaults)
	require.NotNil(t, s.Defaults.Returns)
	assert.True(t, *s.Defaults.Returns)
	assert.Nil(t, s.Defaults.IgnoreFailures)

	require.Len(t, s.Steps, 2)
	assert.Equal(t, OpWire, s.Steps[0].Op)
	assert.Equal(t, []any{1, "two", true}, s.Steps[0].Args)
	assert.Equal(t, map[string]any{"k": "v"}, s.Steps[0].Kwargs)
	assert.Nil(t, s.Steps[0].Expect)

	require.NotNil(t, s.Steps[1].Expect)
	assert.Equal(t, []string{"echo"}, s.Steps[1].Expect.Calls)
	require.Len(t, s.Steps[1].Expect.Records, 1)

	require.Len(t, s.Assertions, 1)
	assert.Equal(t, AssertCallCount, s.Assertions[0].Type)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_MalformedYAML(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "s.yaml", "name: [unclosed")
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_UnknownFieldsRejected(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "s.yaml", `
name: typo
description: "typo in a step"
steps:
  - op: invoke
    slot: s
    expects: {void: true}
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expects")
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing name",
			content: "description: d\nsteps: [{op: invoke, slot: s}]",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			content: "name: n\nsteps: [{op: invoke, slot: s}]",
			wantErr: "description is required",
		},
		{
			name:    "missing steps",
			content: "name: n\ndescription: d",
			wantErr: "steps list is required",
		},
		{
			name:    "missing op",
			content: "name: n\ndescription: d\nsteps: [{slot: s}]",
			wantErr: "steps[0]: op is required",
		},
		{
			name:    "unknown op",
			content: "name: n\ndescription: d\nsteps: [{op: call, slot: s}]",
			wantErr: `steps[0]: unknown op "call"`,
		},
		{
			name:    "missing slot",
			content: "name: n\ndescription: d\nsteps: [{op: invoke}]",
			wantErr: "steps[0]: slot is required for invoke",
		},
		{
			name:    "wire without handler",
			content: "name: n\ndescription: d\nsteps: [{op: wire, slot: s}]",
			wantErr: "steps[0]: handler is required for wire",
		},
		{
			name:    "set without settings",
			content: "name: n\ndescription: d\nsteps: [{op: set, slot: s}]",
			wantErr: "steps[0]: settings is required for set",
		},
		{
			name:    "override without settings",
			content: "name: n\ndescription: d\nsteps: [{op: override}]",
			wantErr: "steps[0]: settings is required for override",
		},
		{
			name:    "unset without key",
			content: "name: n\ndescription: d\nsteps: [{op: unset, slot: s}]",
			wantErr: "steps[0]: key is required for unset",
		},
		{
			name:    "records on wire",
			content: "name: n\ndescription: d\nsteps: [{op: wire, slot: s, handler: echo, expect: {calls: [echo]}}]",
			wantErr: "steps[0].expect: wire can only expect an error",
		},
		{
			name:    "void with records",
			content: "name: n\ndescription: d\nsteps: [{op: invoke, slot: s, expect: {void: true, records: [{value: 1}]}}]",
			wantErr: "steps[0].expect: void excludes records and error",
		},
		{
			name:    "bad report mode",
			content: "name: n\ndescription: d\nreport: loud\nsteps: [{op: invoke, slot: s}]",
			wantErr: `invalid report mode "loud"`,
		},
		{
			name:    "missing manifest",
			content: "name: n\ndescription: d\nmanifest: nope.cue\nsteps: [{op: invoke, slot: s}]",
			wantErr: "manifest file not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeScenario(t, t.TempDir(), "s.yaml", tt.content)
			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid scenario")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_AssertionValidation(t *testing.T) {
	tests := []struct {
		name      string
		assertion string
		wantErr   string
	}{
		{"missing type", "{handler: echo}", "assertions[0]: type is required"},
		{"unknown type", "{type: trace_contains}", `assertions[0]: unknown assertion type "trace_contains"`},
		{"call_count without handler", "{type: call_count, count: 1}", "handler is required for call_count"},
		{"call_order without handlers", "{type: call_order}", "handlers list is required for call_order"},
		{"dispatch_count without slot", "{type: dispatch_count}", "slot is required for dispatch_count"},
		{"final_state without expect", "{type: final_state, slot: s}", "expect is required for final_state"},
		{"final_state unknown key", "{type: final_state, slot: s, expect: {verbose: true}}", `unknown final_state key "verbose"`},
		{"negative count", "{type: call_count, handler: echo, count: -1}", "count must be non-negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := "name: n\ndescription: d\nsteps: [{op: invoke, slot: s}]\nassertions: [" + tt.assertion + "]"
			path := writeScenario(t, t.TempDir(), "s.yaml", content)
			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_CallCountZeroAllowed(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "s.yaml", `
name: zero
description: "a handler that never runs"
steps:
  - {op: invoke, slot: s}
assertions:
  - {type: call_count, handler: fail, count: 0}
`)
	_, err := LoadScenario(path)
	assert.NoError(t, err)
}

func TestLoadScenario_ManifestRelativeToScenario(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wiring.cue"), []byte(`version: "1"`), 0644))
	path := writeScenario(t, dir, "s.yaml", `
name: with_manifest
description: "manifest next to the scenario"
manifest: wiring.cue
steps:
  - {op: invoke, slot: s}
`)

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "wiring.cue"), s.Manifest)
}

func TestLoadScenarioWithBasePath(t *testing.T) {
	scenarioDir := t.TempDir()
	baseDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(baseDir, "wiring.cue"), []byte(`version: "1"`), 0644))
	path := writeScenario(t, scenarioDir, "s.yaml", `
name: with_base
description: "manifest resolved against a base path"
manifest: wiring.cue
steps:
  - {op: invoke, slot: s}
`)

	s, err := LoadScenarioWithBasePath(path, baseDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(baseDir, "wiring.cue"), s.Manifest)

	_, err = LoadScenario(path)
	assert.ErrorContains(t, err, "manifest file not found")
}

func TestLoadScenario_Fixtures(t *testing.T) {
	paths, err := FindScenarios("testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			s, err := LoadScenario(path)
			require.NoError(t, err)
			assert.NotEmpty(t, s.Description)
		})
	}
}
