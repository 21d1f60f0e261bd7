package harness

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/ptr"

	"github.com/roach88/wires/internal/compiler"
	"github.com/roach88/wires/internal/engine"
	"github.com/roach88/wires/internal/ir"
)

func quietOption() engine.Option {
	return engine.WithLogger(quietLogger())
}

func TestBuild_FromManifest(t *testing.T) {
	m, err := compiler.LoadManifest("testdata/manifests/pipeline.cue")
	require.NoError(t, err)

	cat := NewBuiltinCatalog(nil)
	c, err := Build(m, cat, quietOption())
	require.NoError(t, err)

	assert.True(t, c.Defaults().Returns)
	assert.Equal(t, []string{"totals", "audit"}, c.Names())

	totals, ok := c.Lookup("totals")
	require.True(t, ok)
	assert.Equal(t, 2, totals.Settings().MaxRegistrations)
	regs := totals.Registrations()
	require.Len(t, regs, 2)
	assert.Equal(t, "sum", regs[0].Handler.Name())
	assert.Equal(t, []any{int64(4), int64(6)}, regs[0].Args.Positional)
	assert.True(t, regs[1].Args.IsEmpty())

	records, err := totals.Invoke(context.Background(), engine.ArgsOf(int64(5)))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(15), records[0].Value)
	assert.Equal(t, []string{"sum", "echo"}, cat.Tracker().Names())

	audit, ok := c.Lookup("audit")
	require.True(t, ok)
	_, err = audit.Invoke(context.Background(), engine.Args{})
	assert.True(t, engine.IsInsufficientRegistrationsError(err))
}

func TestBuild_OptionsWinOverManifest(t *testing.T) {
	m := &ir.Manifest{
		Version:  ir.ManifestVersion,
		Defaults: ir.SettingsSpec{Returns: ptr.To(true)},
		Report:   "log",
	}
	c, err := Build(m, NewBuiltinCatalog(nil), quietOption(), engine.WithReturns(false))
	require.NoError(t, err)
	assert.False(t, c.Defaults().Returns)
	assert.Equal(t, engine.ReportLog, c.Slot("any").ReportMode())
}

func TestBuild_SlotReportMode(t *testing.T) {
	m := &ir.Manifest{
		Version: ir.ManifestVersion,
		Slots:   []ir.SlotSpec{{Name: "s", Report: "stream"}},
	}
	c, err := Build(m, NewBuiltinCatalog(nil), quietOption())
	require.NoError(t, err)
	assert.Equal(t, engine.ReportStream, c.Slot("s").ReportMode())
	assert.Equal(t, engine.ReportMute, c.Slot("other").ReportMode())
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name    string
		m       *ir.Manifest
		wantErr string
	}{
		{
			name: "unknown handler",
			m: &ir.Manifest{Slots: []ir.SlotSpec{{
				Name:    "s",
				Wirings: []ir.WiringSpec{{Handler: "nope"}},
			}}},
			wantErr: `slot "s" wiring 0: unknown handler "nope"`,
		},
		{
			name: "too many wirings",
			m: &ir.Manifest{Slots: []ir.SlotSpec{{
				Name:     "s",
				Settings: ir.SettingsSpec{MaxRegistrations: ptr.To(1)},
				Wirings:  []ir.WiringSpec{{Handler: "echo"}, {Handler: "echo"}},
			}}},
			wantErr: `slot "s" wiring 1: CAPACITY`,
		},
		{
			name: "negative slot bound",
			m: &ir.Manifest{Slots: []ir.SlotSpec{{
				Name:     "s",
				Settings: ir.SettingsSpec{MinRegistrations: ptr.To(-1)},
			}}},
			wantErr: `slot "s": INVALID_SETTING`,
		},
		{
			name:    "invalid defaults",
			m:       &ir.Manifest{Defaults: ir.SettingsSpec{MinRegistrations: ptr.To(3), MaxRegistrations: ptr.To(2)}},
			wantErr: "build container: INVALID_SETTING",
		},
		{
			name:    "bad report",
			m:       &ir.Manifest{Report: "loud"},
			wantErr: `invalid report mode "loud"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.m, NewBuiltinCatalog(nil), quietOption())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseArgs(t *testing.T) {
	args, err := ParseArgs([]any{1, "a", []any{true}}, map[string]any{"k": map[string]any{"n": 2}})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), "a", []any{true}}, args.Positional)
	assert.Equal(t, map[string]any{"k": map[string]any{"n": int64(2)}}, args.Named)

	empty, err := ParseArgs(nil, nil)
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())

	_, err = ParseArgs([]any{1.5}, nil)
	assert.ErrorContains(t, err, "args: ")

	_, err = ParseArgs(nil, map[string]any{"f": 0.5})
	assert.ErrorContains(t, err, "kwargs: ")
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
