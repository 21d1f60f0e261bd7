package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"k8s.io/utils/ptr"

	"github.com/roach88/wires/internal/ir"
)

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidate_Valid(t *testing.T) {
	m := &ir.Manifest{
		Defaults: ir.SettingsSpec{MaxRegistrations: ptr.To(2)},
		Slots: []ir.SlotSpec{
			{Name: "a", Wirings: []ir.WiringSpec{{Handler: "echo"}, {Handler: "const"}}},
			{Name: "b", Settings: ir.SettingsSpec{MaxRegistrations: ptr.To(0)}, Wirings: []ir.WiringSpec{
				{Handler: "echo"}, {Handler: "echo"}, {Handler: "echo"},
			}},
		},
	}
	assert.Empty(t, Validate(m, []string{"echo", "const"}))
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name     string
		manifest *ir.Manifest
		handlers []string
		want     []string
	}{
		{
			name:     "negative defaults",
			manifest: &ir.Manifest{Defaults: ir.SettingsSpec{MinRegistrations: ptr.To(-1), MaxRegistrations: ptr.To(-42)}},
			want:     []string{ErrNegativeBound, ErrNegativeBound},
		},
		{
			name:     "min above max in defaults",
			manifest: &ir.Manifest{Defaults: ir.SettingsSpec{MinRegistrations: ptr.To(42), MaxRegistrations: ptr.To(24)}},
			want:     []string{ErrMinAboveMax},
		},
		{
			name: "slot min above default max",
			manifest: &ir.Manifest{
				Defaults: ir.SettingsSpec{MaxRegistrations: ptr.To(1)},
				Slots:    []ir.SlotSpec{{Name: "s", Settings: ir.SettingsSpec{MinRegistrations: ptr.To(2)}}},
			},
			want: []string{ErrMinAboveMax},
		},
		{
			name: "too many wirings",
			manifest: &ir.Manifest{Slots: []ir.SlotSpec{{
				Name:     "s",
				Settings: ir.SettingsSpec{MaxRegistrations: ptr.To(1)},
				Wirings:  []ir.WiringSpec{{Handler: "echo"}, {Handler: "echo"}},
			}}},
			want: []string{ErrTooManyWirings},
		},
		{
			name: "unknown and empty handlers",
			manifest: &ir.Manifest{Slots: []ir.SlotSpec{{
				Name:    "s",
				Wirings: []ir.WiringSpec{{Handler: "nope"}, {Handler: " "}},
			}}},
			handlers: []string{"echo"},
			want:     []string{ErrUnknownHandler, ErrEmptyName},
		},
		{
			name: "duplicate slot and bad report",
			manifest: &ir.Manifest{
				Report: "loud",
				Slots:  []ir.SlotSpec{{Name: "s"}, {Name: "s", Report: "quiet"}},
			},
			want: []string{ErrInvalidReportMode, ErrDuplicateSlot, ErrInvalidReportMode},
		},
		{
			name:     "empty slot name",
			manifest: &ir.Manifest{Slots: []ir.SlotSpec{{Name: ""}}},
			want:     []string{ErrEmptyName},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, codes(Validate(tt.manifest, tt.handlers)))
		})
	}
}

func TestValidate_NilCatalogSkipsHandlerCheck(t *testing.T) {
	m := &ir.Manifest{Slots: []ir.SlotSpec{{Name: "s", Wirings: []ir.WiringSpec{{Handler: "anything"}}}}}
	assert.Empty(t, Validate(m, nil))
	assert.Len(t, Validate(m, []string{}), 1, "an empty catalog knows no handlers")
}

func TestValidationError_Error(t *testing.T) {
	e := ValidationError{Field: "slots.s", Message: "boom", Code: ErrDuplicateSlot}
	assert.Equal(t, "[E205] slots.s: boom", e.Error())
}
