package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/wires/internal/engine"
	"github.com/roach88/wires/internal/ir"
)

// DispatchRecord is one journaled slot invocation.
type DispatchRecord struct {
	ID             string      `json:"id"`
	TraceID        string      `json:"trace_id"`
	Slot           string      `json:"slot"`
	Args           ir.IRArray  `json:"args"`
	Kwargs         ir.IRObject `json:"kwargs"`
	Seq            int64       `json:"seq"`
	Returns        bool        `json:"returns"`
	IgnoreFailures bool        `json:"ignore_failures"`
	ShortCircuited bool        `json:"short_circuited"`
	Rejected       bool        `json:"rejected"`
	WiresVersion   string      `json:"wires_version"`

	Outcomes []OutcomeRecord `json:"outcomes"`
}

// OutcomeRecord is one handler call within a dispatch.
type OutcomeRecord struct {
	Position int         `json:"position"`
	Handler  string      `json:"handler"`
	Args     ir.IRArray  `json:"args"`
	Kwargs   ir.IRObject `json:"kwargs"`

	// Value is nil when the call failed.
	Value ir.IRValue `json:"value"`

	FailureKind string `json:"failure_kind,omitempty"`
	Failure     string `json:"failure,omitempty"`
}

// Failed reports whether the handler call failed.
func (o OutcomeRecord) Failed() bool {
	return o.FailureKind != ""
}

// Failures counts failed outcomes.
func (d DispatchRecord) Failures() int {
	n := 0
	for _, o := range d.Outcomes {
		if o.Failed() {
			n++
		}
	}
	return n
}

// FromDispatch converts an engine dispatch into a journal record and
// computes its content-addressed ID.
func FromDispatch(d engine.Dispatch) (DispatchRecord, error) {
	args, kwargs := looseArgs(d.Args)
	rec := DispatchRecord{
		TraceID:        d.TraceID,
		Slot:           d.Slot,
		Args:           args,
		Kwargs:         kwargs,
		Seq:            d.Seq,
		Returns:        d.Returns,
		IgnoreFailures: d.IgnoreFailures,
		ShortCircuited: d.ShortCircuited,
		Rejected:       d.Rejected,
		WiresVersion:   ir.WiresVersion,
		Outcomes:       make([]OutcomeRecord, len(d.Calls)),
	}

	for i, c := range d.Calls {
		cargs, ckwargs := looseArgs(c.Args)
		o := OutcomeRecord{
			Position: i,
			Handler:  c.Handler,
			Args:     cargs,
			Kwargs:   ckwargs,
		}
		if f := c.Record.Failure; f != nil {
			o.FailureKind = string(f.Kind)
			o.Failure = f.Message
		} else {
			o.Value = looseValue(c.Record.Value)
		}
		rec.Outcomes[i] = o
	}

	id, err := ir.DispatchID(rec.TraceID, rec.Slot, rec.Args, rec.Kwargs, rec.Seq)
	if err != nil {
		return DispatchRecord{}, fmt.Errorf("dispatch id: %w", err)
	}
	rec.ID = id
	return rec, nil
}

// looseValue converts v to an IRValue, falling back to its %v text when
// it has no IR form (floats, structs, funcs).
func looseValue(v any) ir.IRValue {
	iv, err := ir.FromAny(v)
	if err != nil {
		return ir.IRString(fmt.Sprintf("%v", v))
	}
	return iv
}

func looseArgs(a engine.Args) (ir.IRArray, ir.IRObject) {
	args := make(ir.IRArray, len(a.Positional))
	for i, v := range a.Positional {
		args[i] = looseValue(v)
	}
	kwargs := make(ir.IRObject, len(a.Named))
	for k, v := range a.Named {
		kwargs[k] = looseValue(v)
	}
	return args, kwargs
}

func marshalJSON(v ir.IRValue) (string, error) {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalArray(data string) (ir.IRArray, error) {
	var arr ir.IRArray
	if err := json.Unmarshal([]byte(data), &arr); err != nil {
		return nil, fmt.Errorf("unmarshal args: %w", err)
	}
	return arr, nil
}

func unmarshalObject(data string) (ir.IRObject, error) {
	var obj ir.IRObject
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal kwargs: %w", err)
	}
	return obj, nil
}
