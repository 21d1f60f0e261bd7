package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReportMode(t *testing.T) {
	for in, want := range map[string]ReportMode{
		"":        ReportInherit,
		"inherit": ReportInherit,
		"MUTE":    ReportMute,
		" log ":   ReportLog,
		"stream":  ReportStream,
	} {
		got, err := ParseReportMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseReportMode("loud")
	assert.ErrorContains(t, err, `invalid report mode "loud"`)
	assert.Equal(t, "stream", ReportStream.String())
	assert.Equal(t, "ReportMode(9)", ReportMode(9).String())
}

func TestReport_LogMode(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	c := newTestContainer(t, WithLogger(logger), WithReportMode(ReportLog))
	require.NoError(t, c.Wire("saved", newFailingTracker("bad", errBoom).handler, Args{}))

	_, err := c.Slot("saved").Invoke(context.Background(), Args{})
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "handler failed", entry["msg"])
	assert.Equal(t, "saved", entry["slot"])
	assert.Equal(t, "bad", entry["handler"])
	assert.Equal(t, "error", entry["kind"])
	assert.Equal(t, "something bad", entry["error"])
	assert.NotContains(t, entry, "stack")
}

func TestReport_StreamModeWithPanic(t *testing.T) {
	var buf bytes.Buffer
	c := newTestContainer(t, WithReporter(ReportStream, StreamReporter{W: &buf}))
	s := c.Slot("saved")
	s.SetReportMode(ReportStream)
	require.NoError(t, s.Register(NewHandler("boom", func(context.Context, Args) (any, error) {
		panic("kaboom")
	}), Args{}))

	_, err := s.Invoke(context.Background(), Args{})
	require.NoError(t, err)

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, `"saved" handler boom failed: kaboom`), out)
	assert.Contains(t, out, "goroutine", "panic stack is written")
}

func TestReport_MuteAndInherit(t *testing.T) {
	var reported []string
	rec := ReporterFunc(func(slot, handler string, f *Failure) {
		reported = append(reported, slot+"/"+handler)
	})
	c := newTestContainer(t, WithReporter(ReportLog, rec))

	a := c.Slot("a")
	require.NoError(t, a.Register(newFailingTracker("bad", errBoom).handler, Args{}))
	assert.Equal(t, ReportMute, a.ReportMode(), "containers default to mute")

	_, err := a.Invoke(context.Background(), Args{})
	require.NoError(t, err)
	assert.Empty(t, reported)

	a.SetReportMode(ReportLog)
	_, err = a.Invoke(context.Background(), Args{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a/bad"}, reported)

	a.SetReportMode(ReportInherit)
	assert.Equal(t, ReportMute, a.ReportMode())
}

// Coupled invocations return failures instead of reporting them.
func TestReport_NotUsedWhenReturning(t *testing.T) {
	calls := 0
	c := newTestContainer(t,
		WithReturns(true),
		WithReportMode(ReportLog),
		WithReporter(ReportLog, ReporterFunc(func(string, string, *Failure) { calls++ })),
	)
	require.NoError(t, c.Wire("s", newFailingTracker("bad", errBoom).handler, Args{}))

	records, err := c.Slot("s").Invoke(context.Background(), Args{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 0, calls)
}

func TestReport_PanickingReporterIsContained(t *testing.T) {
	var buf bytes.Buffer
	c := newTestContainer(t,
		WithLogger(slog.New(slog.NewTextHandler(&buf, nil))),
		WithReportMode(ReportLog),
		WithReporter(ReportLog, ReporterFunc(func(string, string, *Failure) { panic("reporter broke") })),
	)
	s := c.Slot("s")
	bad := newFailingTracker("bad", errBoom)
	next := newTracker("next", nil)
	require.NoError(t, s.Register(bad.handler, Args{}))
	require.NoError(t, s.Register(next.handler, Args{}))

	_, err := s.Invoke(context.Background(), Args{})
	require.NoError(t, err)
	assert.Equal(t, 1, next.count())
	assert.Contains(t, buf.String(), "failure reporter panicked")
}
