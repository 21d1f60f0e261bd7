package compiler

import (
	"fmt"
	"os"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/wires/internal/ir"
)

// LoadManifest reads and compiles the CUE manifest at path.
func LoadManifest(path string) (*ir.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return CompileManifestBytes(data, path)
}

// CompileManifestBytes compiles CUE source into a manifest. filename is
// used in error positions only.
func CompileManifestBytes(src []byte, filename string) (*ir.Manifest, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	return CompileManifest(v)
}

// CompileManifest parses a CUE value into a Manifest.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// Expected shape:
//
//	version: "1"                       // optional
//	report:  "log"                     // optional: mute, log, stream
//	defaults: {min_registrations: 1, returns: true}
//	slots: saved: {
//		settings: max_registrations: 2
//		report: "stream"
//		wirings: [
//			{handler: "echo", args: ["a"], kwargs: {k: 1}},
//			{handler: "const"},
//		]
//	}
//
// Slots keep CUE field order. Unknown fields are rejected so typos do not
// silently change wiring.
func CompileManifest(v cue.Value) (*ir.Manifest, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := checkFields(v, "", "version", "report", "defaults", "slots"); err != nil {
		return nil, err
	}

	m := &ir.Manifest{Version: ir.ManifestVersion}

	if vv := v.LookupPath(cue.ParsePath("version")); vv.Exists() {
		s, err := vv.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if s != ir.ManifestVersion {
			return nil, &CompileError{
				Field:   "version",
				Message: fmt.Sprintf("unsupported manifest version %q (want %q)", s, ir.ManifestVersion),
				Pos:     vv.Pos(),
			}
		}
	}

	var err error
	if m.Report, err = optionalString(v, "report"); err != nil {
		return nil, err
	}
	if m.Defaults, err = parseSettings(v.LookupPath(cue.ParsePath("defaults")), "defaults"); err != nil {
		return nil, err
	}

	slotsVal := v.LookupPath(cue.ParsePath("slots"))
	if !slotsVal.Exists() {
		return m, nil
	}
	iter, err := slotsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		slot, err := parseSlot(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		m.Slots = append(m.Slots, slot)
	}
	return m, nil
}

func parseSlot(name string, v cue.Value) (ir.SlotSpec, error) {
	slot := ir.SlotSpec{Name: name}
	prefix := "slots." + name

	if err := checkFields(v, prefix, "settings", "report", "wirings"); err != nil {
		return slot, err
	}

	var err error
	if slot.Settings, err = parseSettings(v.LookupPath(cue.ParsePath("settings")), prefix+".settings"); err != nil {
		return slot, err
	}
	if slot.Report, err = optionalString(v, "report"); err != nil {
		return slot, err
	}

	wiringsVal := v.LookupPath(cue.ParsePath("wirings"))
	if !wiringsVal.Exists() {
		return slot, nil
	}
	list, err := wiringsVal.List()
	if err != nil {
		return slot, formatCUEError(err)
	}
	for i := 0; list.Next(); i++ {
		w, err := parseWiring(list.Value(), fmt.Sprintf("%s.wirings[%d]", prefix, i))
		if err != nil {
			return slot, err
		}
		slot.Wirings = append(slot.Wirings, w)
	}
	return slot, nil
}

// parseWiring accepts either a handler name or a struct with handler,
// args and kwargs.
func parseWiring(v cue.Value, field string) (ir.WiringSpec, error) {
	var w ir.WiringSpec

	if name, err := v.String(); err == nil {
		w.Handler = name
		return w, nil
	}

	if err := checkFields(v, field, "handler", "args", "kwargs"); err != nil {
		return w, err
	}

	handlerVal := v.LookupPath(cue.ParsePath("handler"))
	if !handlerVal.Exists() {
		return w, &CompileError{Field: field + ".handler", Message: "handler is required", Pos: v.Pos()}
	}
	name, err := handlerVal.String()
	if err != nil {
		return w, formatCUEError(err)
	}
	w.Handler = name

	if argsVal := v.LookupPath(cue.ParsePath("args")); argsVal.Exists() {
		val, err := toIRValue(argsVal, field+".args")
		if err != nil {
			return w, err
		}
		arr, ok := val.(ir.IRArray)
		if !ok {
			return w, &CompileError{Field: field + ".args", Message: "args must be a list", Pos: argsVal.Pos()}
		}
		w.Args = arr
	}

	if kwargsVal := v.LookupPath(cue.ParsePath("kwargs")); kwargsVal.Exists() {
		val, err := toIRValue(kwargsVal, field+".kwargs")
		if err != nil {
			return w, err
		}
		obj, ok := val.(ir.IRObject)
		if !ok {
			return w, &CompileError{Field: field + ".kwargs", Message: "kwargs must be a struct", Pos: kwargsVal.Pos()}
		}
		w.Kwargs = obj
	}
	return w, nil
}

func parseSettings(v cue.Value, field string) (ir.SettingsSpec, error) {
	var s ir.SettingsSpec
	if !v.Exists() {
		return s, nil
	}
	if err := checkFields(v, field, "min_registrations", "max_registrations", "returns", "ignore_failures"); err != nil {
		return s, err
	}

	var err error
	if s.MinRegistrations, err = optionalInt(v, "min_registrations", field); err != nil {
		return s, err
	}
	if s.MaxRegistrations, err = optionalInt(v, "max_registrations", field); err != nil {
		return s, err
	}
	if s.Returns, err = optionalBool(v, "returns"); err != nil {
		return s, err
	}
	if s.IgnoreFailures, err = optionalBool(v, "ignore_failures"); err != nil {
		return s, err
	}
	return s, nil
}

// checkFields rejects regular fields of v not listed in allowed.
func checkFields(v cue.Value, prefix string, allowed ...string) error {
	if v.IncompleteKind() != cue.StructKind {
		name := prefix
		if name == "" {
			name = "manifest"
		}
		return &CompileError{Field: name, Message: "must be a struct", Pos: v.Pos()}
	}
	iter, err := v.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		label := iter.Label()
		if !slices.Contains(allowed, label) {
			field := label
			if prefix != "" {
				field = prefix + "." + label
			}
			return &CompileError{Field: field, Message: "unknown field", Pos: iter.Value().Pos()}
		}
	}
	return nil
}

func optionalString(v cue.Value, name string) (string, error) {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return "", nil
	}
	s, err := f.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalInt(v cue.Value, name, prefix string) (*int, error) {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return nil, nil
	}
	if k := f.IncompleteKind(); k != cue.IntKind {
		return nil, &CompileError{Field: prefix + "." + name, Message: "must be an int", Pos: f.Pos()}
	}
	n, err := f.Int64()
	if err != nil {
		return nil, formatCUEError(err)
	}
	i := int(n)
	return &i, nil
}

func optionalBool(v cue.Value, name string) (*bool, error) {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return nil, nil
	}
	b, err := f.Bool()
	if err != nil {
		return nil, formatCUEError(err)
	}
	return &b, nil
}

// toIRValue converts a concrete CUE value to an IRValue.
// Floats are forbidden.
func toIRValue(v cue.Value, field string) (ir.IRValue, error) {
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	switch v.Kind() {
	case cue.NullKind:
		return ir.IRNull{}, nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRBool(b), nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRString(s), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRInt(n), nil
	case cue.ListKind:
		list, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		arr := ir.IRArray{}
		for i := 0; list.Next(); i++ {
			elem, err := toIRValue(list.Value(), fmt.Sprintf("%s[%d]", field, i))
			if err != nil {
				return nil, err
			}
			arr = append(arr, elem)
		}
		return arr, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		obj := ir.IRObject{}
		for iter.Next() {
			elem, err := toIRValue(iter.Value(), field+"."+iter.Label())
			if err != nil {
				return nil, err
			}
			obj[iter.Label()] = elem
		}
		return obj, nil
	case cue.FloatKind:
		return nil, &CompileError{Field: field, Message: "float values are forbidden - use int instead", Pos: v.Pos()}
	default:
		return nil, &CompileError{Field: field, Message: fmt.Sprintf("unsupported value kind: %v", v.Kind()), Pos: v.Pos()}
	}
}
