package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/wires/internal/engine"
)

// Scenario is a sequence of wiring operations with expectations.
type Scenario struct {
	// Name uniquely identifies this scenario and prefixes its trace IDs.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Manifest is an optional CUE wiring manifest built before the steps
	// run. Relative paths are resolved against the scenario file.
	Manifest string `yaml:"manifest,omitempty"`

	// Defaults override the container defaults (and the manifest's).
	Defaults *Settings `yaml:"defaults,omitempty"`

	// Report is the container report mode: mute, log or stream.
	Report string `yaml:"report,omitempty"`

	Steps []Step `yaml:"steps"`

	// Assertions run after the last step.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Settings is a sparse set of slot settings.
type Settings struct {
	MinRegistrations *int  `yaml:"min_registrations,omitempty"`
	MaxRegistrations *int  `yaml:"max_registrations,omitempty"`
	Returns          *bool `yaml:"returns,omitempty"`
	IgnoreFailures   *bool `yaml:"ignore_failures,omitempty"`
}

// Overrides converts s to engine overrides.
func (s Settings) Overrides() engine.Overrides {
	return engine.Overrides{
		MinRegistrations: s.MinRegistrations,
		MaxRegistrations: s.MaxRegistrations,
		Returns:          s.Returns,
		IgnoreFailures:   s.IgnoreFailures,
	}
}

// options converts s to container options for the fields it sets.
func (s *Settings) options() []engine.Option {
	if s == nil {
		return nil
	}
	var opts []engine.Option
	if s.MinRegistrations != nil {
		opts = append(opts, engine.WithMinRegistrations(*s.MinRegistrations))
	}
	if s.MaxRegistrations != nil {
		opts = append(opts, engine.WithMaxRegistrations(*s.MaxRegistrations))
	}
	if s.Returns != nil {
		opts = append(opts, engine.WithReturns(*s.Returns))
	}
	if s.IgnoreFailures != nil {
		opts = append(opts, engine.WithIgnoreFailures(*s.IgnoreFailures))
	}
	return opts
}

// Step is one operation of a scenario.
type Step struct {
	Op       string         `yaml:"op"`
	Slot     string         `yaml:"slot,omitempty"`
	Handler  string         `yaml:"handler,omitempty"`
	Args     []any          `yaml:"args,omitempty"`
	Kwargs   map[string]any `yaml:"kwargs,omitempty"`
	Settings *Settings      `yaml:"settings,omitempty"`
	Key      string         `yaml:"key,omitempty"`

	// Expect checks the step's outcome. Nil means the step must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes the expected outcome of a step.
type Expect struct {
	// Error is the expected error code, or COUPLED_FAILURE.
	Error string `yaml:"error,omitempty"`

	// Records are the expected invoke records, in order. With error
	// COUPLED_FAILURE they are the records carried by the error.
	Records []RecordExpect `yaml:"records,omitempty"`

	// Calls are the handler names expected to run during the step, in order.
	Calls []string `yaml:"calls,omitempty"`

	// Void expects an invoke to return no records and no error.
	Void bool `yaml:"void,omitempty"`
}

// RecordExpect is one expected record. A record with neither failure nor
// kind is expected to succeed with value. Kind alone matches any failure
// message of that kind.
type RecordExpect struct {
	Value   any    `yaml:"value,omitempty"`
	Failure string `yaml:"failure,omitempty"`
	Kind    string `yaml:"kind,omitempty"`
}

// Operation names.
const (
	OpWire        = "wire"
	OpUnwire      = "unwire"
	OpUnwireExact = "unwire_exact"
	OpInvoke      = "invoke"
	OpSet         = "set"
	OpUnset       = "unset"
	OpNextCall    = "next_call"
	OpOverride    = "override"
	OpDeleteSlot  = "delete_slot"
)

// ErrCodeCoupledFailure names a *engine.CoupledFailureError in expectations.
const ErrCodeCoupledFailure = "COUPLED_FAILURE"

var ops = []string{OpWire, OpUnwire, OpUnwireExact, OpInvoke, OpSet, OpUnset, OpNextCall, OpOverride, OpDeleteSlot}

// LoadScenario reads and parses a scenario YAML file. A relative manifest
// path is resolved against the scenario's directory.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath is like LoadScenario but resolves a relative
// manifest path against basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Manifest != "" && !filepath.IsAbs(scenario.Manifest) && basePath != "" {
		scenario.Manifest = filepath.Join(basePath, scenario.Manifest)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if s.Manifest != "" {
		if _, err := os.Stat(s.Manifest); os.IsNotExist(err) {
			return fmt.Errorf("manifest file not found: %s", s.Manifest)
		}
	}
	if _, err := engine.ParseReportMode(s.Report); err != nil {
		return err
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateStep checks the fields an operation needs.
func validateStep(index int, st *Step) error {
	if st.Op == "" {
		return fmt.Errorf("steps[%d]: op is required", index)
	}
	if !slices.Contains(ops, st.Op) {
		return fmt.Errorf("steps[%d]: unknown op %q", index, st.Op)
	}

	if st.Op != OpOverride && st.Slot == "" {
		return fmt.Errorf("steps[%d]: slot is required for %s", index, st.Op)
	}
	switch st.Op {
	case OpWire, OpUnwire, OpUnwireExact:
		if st.Handler == "" {
			return fmt.Errorf("steps[%d]: handler is required for %s", index, st.Op)
		}
	case OpSet, OpNextCall, OpOverride:
		if st.Settings == nil {
			return fmt.Errorf("steps[%d]: settings is required for %s", index, st.Op)
		}
	case OpUnset:
		if st.Key == "" {
			return fmt.Errorf("steps[%d]: key is required for unset", index)
		}
	}

	if e := st.Expect; e != nil && st.Op != OpInvoke {
		if e.Records != nil || e.Calls != nil || e.Void {
			return fmt.Errorf("steps[%d].expect: %s can only expect an error", index, st.Op)
		}
	}
	if e := st.Expect; e != nil && e.Void && (e.Records != nil || e.Error != "") {
		return fmt.Errorf("steps[%d].expect: void excludes records and error", index)
	}
	return nil
}
