package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/roach88/wires/internal/compiler"
	"github.com/roach88/wires/internal/harness"
	"github.com/roach88/wires/internal/ir"
)

// LoadError is a manifest that could not be read or compiled.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadManifest reads and compiles the CUE manifest at path, or reads a
// manifest already compiled to JSON by compile --output. Every error it
// returns is a *LoadError.
func LoadManifest(path string) (*ir.Manifest, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("manifest not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing manifest: %v", err)}
	}
	if info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("manifest is a directory: %s", path)}
	}
	switch filepath.Ext(path) {
	case ".cue":
	case ".json":
		m, err := ReadCompiled(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
		}
		return m, nil
	default:
		return nil, &LoadError{Code: ErrCodeNotManifest, Message: fmt.Sprintf("not a manifest file (.cue or .json): %s", path)}
	}

	m, err := compiler.LoadManifest(path)
	if err != nil {
		return nil, convertCompileError(err)
	}
	return m, nil
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field, compileErr.Message),
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
}

// builtinHandlers lists the handler names manifests may wire from the CLI.
func builtinHandlers() []string {
	return harness.NewBuiltinCatalog(nil).Names()
}

// countWirings returns the number of wirings across all slots.
func countWirings(m *ir.Manifest) int {
	n := 0
	for _, s := range m.Slots {
		n += len(s.Wirings)
	}
	return n
}

// Error code constants - unified across all CLI commands. Manifest
// validation codes (E2xx) come from the compiler package; engine failures
// use the engine's error codes.
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeInvalidInput = "E002" // Bad flag value
	ErrCodeNotManifest  = "E003" // Manifest is neither .cue nor .json
	ErrCodeLoadFailed   = "E004" // Manifest could not be read
	ErrCodeNotFound     = "E005" // Path not found
	ErrCodeBuildFailed  = "E006" // CUE evaluation failed
	ErrCodeWriteFailed  = "E007" // File write error
	ErrCodeJournal      = "E008" // Journal open, write or read failed

	// Manifest structure errors
	ErrCodeManifestShape = "E101" // Unknown field, wrong type, missing handler
	ErrCodeInvalidType   = "E104" // Invalid value type (e.g., float)
	ErrCodeVersion       = "E105" // Unsupported manifest version
)

// MapFieldToErrorCode maps a compiler error to an error code.
func MapFieldToErrorCode(field, message string) string {
	switch {
	case field == "cue":
		return ErrCodeBuildFailed
	case field == "version":
		return ErrCodeVersion
	case strings.Contains(message, "float"), strings.HasPrefix(message, "unsupported value kind"):
		return ErrCodeInvalidType
	default:
		return ErrCodeManifestShape
	}
}
