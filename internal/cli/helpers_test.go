package cli

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wires/internal/testutil"
)

// testManifest declares one slot per coupling outcome.
const testManifest = `version: "1"

defaults: returns: true

slots: {
	saved: wirings: [
		{handler: "const", args: [1]},
		"echo",
	]
	broken: {
		settings: ignore_failures: false
		wirings: [
			{handler: "fail", kwargs: message: "disk full"},
			"echo",
		]
	}
	guarded: settings: min_registrations: 1
}
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func writeManifest(t *testing.T) string {
	t.Helper()
	return writeFile(t, "app.cue", testManifest)
}

func testRootOptions(format string) *RootOptions {
	return &RootOptions{
		Format: format,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// execute runs cmd with args and returns stdout and stderr.
func execute(cmd *cobra.Command, args ...string) (string, string, error) {
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// invokeInto invokes slot once, journaling to db with sequential trace
// IDs under prefix.
func invokeInto(t *testing.T, manifest, db, prefix, slot string, flags ...string) error {
	t.Helper()
	opts := &InvokeOptions{
		RootOptions: testRootOptions("text"),
		TraceIDs:    testutil.NewSequentialTraceIDs(prefix),
	}
	args := append([]string{manifest, slot, "--db", db}, flags...)
	_, _, err := execute(newInvokeCommand(opts), args...)
	return err
}
