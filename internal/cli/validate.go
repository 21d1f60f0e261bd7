package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/wires/internal/compiler"
	"github.com/roach88/wires/internal/ir"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid       bool                       `json:"valid"`
	Slots       int                        `json:"slots"`
	Wirings     int                        `json:"wirings"`
	Fingerprint string                     `json:"fingerprint,omitempty"`
	Errors      []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <manifest.cue>",
		Short: "Validate a manifest without building a container",
		Long: `Compile a CUE manifest and check it against the rules a container
enforces when it is built: registration bounds, report modes, wiring
counts and handler names from the builtin catalog.

Exit codes:
  0 - Manifest valid
  1 - Validation errors
  2 - Manifest missing or not compilable`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	m, err := LoadManifest(path)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	formatter.VerboseLog("Compiled %s: %d slot(s)", path, len(m.Slots))

	if errs := compiler.Validate(m, builtinHandlers()); len(errs) > 0 {
		return outputValidationErrors(formatter, m, errs)
	}

	fingerprint, err := m.Fingerprint()
	if err != nil {
		return outputCommandError(formatter, ErrCodeGeneric, fmt.Sprintf("fingerprint manifest: %v", err))
	}
	return outputValidateSuccess(formatter, ValidationResult{
		Valid:       true,
		Slots:       len(m.Slots),
		Wirings:     countWirings(m),
		Fingerprint: fingerprint,
	})
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Manifest valid: %d slot(s), %d wiring(s)\n", result.Slots, result.Wirings)
	formatter.VerboseLog("Fingerprint: %s", result.Fingerprint)
	return nil
}

// outputLoadError reports a manifest that could not be loaded (exit code 2).
func outputLoadError(formatter *OutputFormatter, err error) error {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		if !formatter.JSON() && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n", loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Pos.Column())
		}
		return outputCommandError(formatter, loadErr.Code, loadErr.Message)
	}
	return outputCommandError(formatter, ErrCodeGeneric, err.Error())
}

// outputCommandError outputs a single command-level error (exit code 2).
func outputCommandError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs every validation error (exit code 1).
func outputValidationErrors(formatter *OutputFormatter, m *ir.Manifest, errs []compiler.ValidationError) error {
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if formatter.JSON() {
		err := formatter.encode(CLIResponse{
			Status: "error",
			Data: ValidationResult{
				Valid:   false,
				Slots:   len(m.Slots),
				Wirings: countWirings(m),
				Errors:  errs,
			},
			Error: &CLIError{Code: errs[0].Code, Message: errs[0].Message},
		})
		if err != nil {
			return err
		}
		return failure
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n", err.Code, err.Field, err.Message)
	}
	return failure
}
