package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/wires/internal/compiler"
	"github.com/roach88/wires/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult is the JSON payload of the compile command.
type CompilationResult struct {
	Fingerprint string           `json:"fingerprint"`
	Manifest    *ir.Manifest     `json:"manifest"`
	Output      string           `json:"output,omitempty"`
	Stats       CompilationStats `json:"stats"`
}

// CompilationStats holds summary statistics.
type CompilationStats struct {
	SlotCount    int `json:"slots"`
	WiringCount  int `json:"wirings"`
	HandlerCount int `json:"handlers"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <manifest.cue>",
		Short: "Compile a CUE manifest to canonical IR",
		Long: `Compile a CUE manifest to its canonical JSON IR.

The manifest is checked structurally (bounds, report modes, wiring
counts); handler names are not checked, use validate for that. Without
--output the canonical JSON is printed to stdout.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	m, err := LoadManifest(path)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	for _, s := range m.Slots {
		formatter.VerboseLog("Compiled slot: %s (%d wiring(s))", s.Name, len(s.Wirings))
	}

	if errs := compiler.Validate(m, nil); len(errs) > 0 {
		return outputValidationErrors(formatter, m, errs)
	}

	data, err := m.CanonicalJSON()
	if err != nil {
		return outputCommandError(formatter, ErrCodeGeneric, fmt.Sprintf("marshal manifest: %v", err))
	}
	fingerprint, err := m.Fingerprint()
	if err != nil {
		return outputCommandError(formatter, ErrCodeGeneric, fmt.Sprintf("fingerprint manifest: %v", err))
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, data, 0o644); err != nil {
			return outputCommandError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err))
		}
	}

	result := CompilationResult{
		Fingerprint: fingerprint,
		Manifest:    m,
		Output:      opts.Output,
		Stats: CompilationStats{
			SlotCount:    len(m.Slots),
			WiringCount:  countWirings(m),
			HandlerCount: len(m.Handlers()),
		},
	}
	return outputCompileSuccess(formatter, result, data)
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result CompilationResult, canonical []byte) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}

	if result.Output == "" {
		_, err := fmt.Fprintf(formatter.Writer, "%s\n", canonical)
		return err
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled %d slot(s), %d wiring(s), %d handler(s)\n",
		result.Stats.SlotCount, result.Stats.WiringCount, result.Stats.HandlerCount)
	fmt.Fprintf(formatter.Writer, "Wrote canonical IR to %s\n", result.Output)
	return nil
}

// ReadCompiled reads a manifest written by compile --output.
func ReadCompiled(path string) (*ir.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read compiled manifest: %w", err)
	}
	var m ir.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode compiled manifest: %w", err)
	}
	return &m, nil
}
