package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/ptr"

	"github.com/roach88/wires/internal/ir"
)

func compile(t *testing.T, src string) (*ir.Manifest, error) {
	t.Helper()
	return CompileManifestBytes([]byte(src), "test.cue")
}

func TestCompileManifest_Full(t *testing.T) {
	m, err := compile(t, `
		version: "1"
		report:  "log"
		defaults: {
			returns:         true
			ignore_failures: false
		}
		slots: {
			saved: {
				settings: max_registrations: 2
				report: "stream"
				wirings: [
					{handler: "echo", args: ["a", 1, true, null], kwargs: {k: {nested: [1, 2]}}},
					"const",
				]
			}
			closed: {}
		}
	`)
	require.NoError(t, err)

	assert.Equal(t, ir.ManifestVersion, m.Version)
	assert.Equal(t, "log", m.Report)
	assert.Equal(t, ir.SettingsSpec{Returns: ptr.To(true), IgnoreFailures: ptr.To(false)}, m.Defaults)

	require.Len(t, m.Slots, 2)
	saved := m.Slots[0]
	assert.Equal(t, "saved", saved.Name, "slots keep declaration order")
	assert.Equal(t, "stream", saved.Report)
	assert.Equal(t, ptr.To(2), saved.Settings.MaxRegistrations)
	assert.Nil(t, saved.Settings.MinRegistrations)

	require.Len(t, saved.Wirings, 2)
	assert.Equal(t, ir.WiringSpec{
		Handler: "echo",
		Args:    ir.IRArray{ir.IRString("a"), ir.IRInt(1), ir.IRBool(true), ir.IRNull{}},
		Kwargs:  ir.IRObject{"k": ir.IRObject{"nested": ir.IRArray{ir.IRInt(1), ir.IRInt(2)}}},
	}, saved.Wirings[0])
	assert.Equal(t, ir.WiringSpec{Handler: "const"}, saved.Wirings[1])

	assert.Equal(t, "closed", m.Slots[1].Name)
	assert.Empty(t, m.Slots[1].Wirings)
}

func TestCompileManifest_Empty(t *testing.T) {
	m, err := compile(t, ``)
	require.NoError(t, err)
	assert.Equal(t, ir.ManifestVersion, m.Version)
	assert.Empty(t, m.Slots)
	assert.True(t, m.Defaults.IsZero())
}

func TestCompileManifest_Errors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantMsg string
	}{
		{"unknown top-level field", `slotz: {}`, "slotz: unknown field"},
		{"unknown setting", `defaults: returnz: true`, "defaults.returnz: unknown field"},
		{"unknown wiring field", `slots: s: wirings: [{handler: "echo", argz: []}]`, "slots.s.wirings[0].argz: unknown field"},
		{"missing handler", `slots: s: wirings: [{args: []}]`, "slots.s.wirings[0].handler: handler is required"},
		{"float arg", `slots: s: wirings: [{handler: "echo", args: [1.5]}]`, "float values are forbidden"},
		{"float bound", `defaults: max_registrations: 1.5`, "defaults.max_registrations: must be an int"},
		{"args not a list", `slots: s: wirings: [{handler: "echo", args: {a: 1}}]`, "args must be a list"},
		{"kwargs not a struct", `slots: s: wirings: [{handler: "echo", kwargs: [1]}]`, "kwargs must be a struct"},
		{"bad version", `version: "2"`, `unsupported manifest version "2"`},
		{"slot not a struct", `slots: s: 1`, "slots.s: must be a struct"},
		{"non-concrete arg", `slots: s: wirings: [{handler: "echo", args: [int]}]`, ""},
		{"cue conflict", "defaults: returns: true\ndefaults: returns: false", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compile(t, tt.src)
			require.Error(t, err)
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestCompileManifest_ErrorPosition(t *testing.T) {
	_, err := compile(t, "slots: s: {\n\twirings: [{handler: \"echo\", args: [1.5]}]\n}")
	require.Error(t, err)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.True(t, ce.Pos.IsValid())
	assert.Equal(t, 2, ce.Pos.Line())
	assert.Contains(t, err.Error(), "test.cue:2:")
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wires.cue")
	require.NoError(t, os.WriteFile(path, []byte(`slots: greet: wirings: ["echo"]`), 0o644))

	m, err := LoadManifest(path)
	require.NoError(t, err)
	require.Len(t, m.Slots, 1)
	assert.Equal(t, "greet", m.Slots[0].Name)

	_, err = LoadManifest(filepath.Join(dir, "missing.cue"))
	assert.ErrorContains(t, err, "read manifest")
}
