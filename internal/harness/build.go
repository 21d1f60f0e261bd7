package harness

import (
	"fmt"

	"github.com/roach88/wires/internal/engine"
	"github.com/roach88/wires/internal/ir"
)

// Build creates a container from a compiled manifest, wiring handlers from
// cat.
//
// The manifest's defaults and report mode become container options; opts
// are applied after them and win. Each slot gets its per-slot settings and
// report mode before its wirings are registered, so a slot max below its
// wiring count fails the build.
func Build(m *ir.Manifest, cat *Catalog, opts ...engine.Option) (*engine.Container, error) {
	base := settingsOptions(m.Defaults)
	if m.Report != "" {
		mode, err := engine.ParseReportMode(m.Report)
		if err != nil {
			return nil, err
		}
		base = append(base, engine.WithReportMode(mode))
	}

	c, err := engine.New(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("build container: %w", err)
	}

	for _, spec := range m.Slots {
		s := c.Slot(spec.Name)
		if err := s.Set(Overrides(spec.Settings)); err != nil {
			return nil, fmt.Errorf("slot %q: %w", spec.Name, err)
		}
		if spec.Report != "" {
			mode, err := engine.ParseReportMode(spec.Report)
			if err != nil {
				return nil, fmt.Errorf("slot %q: %w", spec.Name, err)
			}
			s.SetReportMode(mode)
		}
		for i, w := range spec.Wirings {
			h, ok := cat.Lookup(w.Handler)
			if !ok {
				return nil, fmt.Errorf("slot %q wiring %d: unknown handler %q", spec.Name, i, w.Handler)
			}
			if err := s.Register(h, ArgsFromIR(w.Args, w.Kwargs)); err != nil {
				return nil, fmt.Errorf("slot %q wiring %d: %w", spec.Name, i, err)
			}
		}
	}
	return c, nil
}

// Overrides converts manifest settings to engine overrides.
func Overrides(s ir.SettingsSpec) engine.Overrides {
	return engine.Overrides{
		MinRegistrations: s.MinRegistrations,
		MaxRegistrations: s.MaxRegistrations,
		Returns:          s.Returns,
		IgnoreFailures:   s.IgnoreFailures,
	}
}

func settingsOptions(s ir.SettingsSpec) []engine.Option {
	return (&Settings{
		MinRegistrations: s.MinRegistrations,
		MaxRegistrations: s.MaxRegistrations,
		Returns:          s.Returns,
		IgnoreFailures:   s.IgnoreFailures,
	}).options()
}

// ArgsFromIR converts IR arguments to engine arguments holding plain Go
// values (string, int64, bool, nil, []any, map[string]any).
func ArgsFromIR(args ir.IRArray, kwargs ir.IRObject) engine.Args {
	return engine.Args{Positional: args.Slice(), Named: kwargs.Map()}
}

// ParseArgs normalizes decoded YAML or JSON arguments into engine
// arguments with the same value types as ArgsFromIR. Floats are rejected.
func ParseArgs(args []any, kwargs map[string]any) (engine.Args, error) {
	positional, err := ir.FromAny(args)
	if err != nil {
		return engine.Args{}, fmt.Errorf("args: %w", err)
	}
	named, err := ir.FromAny(kwargs)
	if err != nil {
		return engine.Args{}, fmt.Errorf("kwargs: %w", err)
	}
	return ArgsFromIR(positional.(ir.IRArray), named.(ir.IRObject)), nil
}

// normalize converts v to the value types ArgsFromIR produces, so expected
// and actual values compare equal. Values with no IR form are kept as is.
func normalize(v any) any {
	iv, err := ir.FromAny(v)
	if err != nil {
		return v
	}
	return ir.ToAny(iv)
}
