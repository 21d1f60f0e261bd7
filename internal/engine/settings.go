package engine

import (
	"fmt"

	"k8s.io/utils/ptr"
)

// SettingKey names one of the four slot settings.
type SettingKey string

const (
	KeyMinRegistrations SettingKey = "min_registrations"
	KeyMaxRegistrations SettingKey = "max_registrations"
	KeyReturns          SettingKey = "returns"
	KeyIgnoreFailures   SettingKey = "ignore_failures"
)

// SettingKeys lists all setting keys in validation order.
var SettingKeys = []SettingKey{KeyMinRegistrations, KeyMaxRegistrations, KeyReturns, KeyIgnoreFailures}

func (k SettingKey) valid() bool {
	switch k {
	case KeyMinRegistrations, KeyMaxRegistrations, KeyReturns, KeyIgnoreFailures:
		return true
	}
	return false
}

// Settings is a fully populated set of slot settings.
//
// A zero MinRegistrations or MaxRegistrations means "no limit".
type Settings struct {
	MinRegistrations int
	MaxRegistrations int

	// Returns makes Invoke return per-registration records.
	Returns bool

	// IgnoreFailures keeps Invoke calling registrations after a failure.
	IgnoreFailures bool
}

// DefaultSettings returns the container defaults used when no option
// overrides them: no bounds, decoupled, failures ignored.
func DefaultSettings() Settings {
	return Settings{IgnoreFailures: true}
}

// String renders settings the way a container is constructed.
func (s Settings) String() string {
	return fmt.Sprintf("min_registrations=%d, max_registrations=%d, returns=%t, ignore_failures=%t",
		s.MinRegistrations, s.MaxRegistrations, s.Returns, s.IgnoreFailures)
}

// Overrides is a sparse set of settings. Nil fields are not set and fall
// through to the next precedence level.
type Overrides struct {
	MinRegistrations *int
	MaxRegistrations *int
	Returns          *bool
	IgnoreFailures   *bool
}

// IsZero reports whether no field is set.
func (o Overrides) IsZero() bool {
	return o.MinRegistrations == nil && o.MaxRegistrations == nil && o.Returns == nil && o.IgnoreFailures == nil
}

// Has reports whether key is set.
func (o Overrides) Has(key SettingKey) bool {
	switch key {
	case KeyMinRegistrations:
		return o.MinRegistrations != nil
	case KeyMaxRegistrations:
		return o.MaxRegistrations != nil
	case KeyReturns:
		return o.Returns != nil
	case KeyIgnoreFailures:
		return o.IgnoreFailures != nil
	}
	return false
}

// Keys returns the set keys in validation order.
func (o Overrides) Keys() []SettingKey {
	var keys []SettingKey
	for _, k := range SettingKeys {
		if o.Has(k) {
			keys = append(keys, k)
		}
	}
	return keys
}

func (o *Overrides) unset(key SettingKey) {
	switch key {
	case KeyMinRegistrations:
		o.MinRegistrations = nil
	case KeyMaxRegistrations:
		o.MaxRegistrations = nil
	case KeyReturns:
		o.Returns = nil
	case KeyIgnoreFailures:
		o.IgnoreFailures = nil
	}
}

// clone copies the pointed-to values so the copy shares nothing with o.
func (o Overrides) clone() Overrides {
	var out Overrides
	if o.MinRegistrations != nil {
		out.MinRegistrations = ptr.To(*o.MinRegistrations)
	}
	if o.MaxRegistrations != nil {
		out.MaxRegistrations = ptr.To(*o.MaxRegistrations)
	}
	if o.Returns != nil {
		out.Returns = ptr.To(*o.Returns)
	}
	if o.IgnoreFailures != nil {
		out.IgnoreFailures = ptr.To(*o.IgnoreFailures)
	}
	return out
}

// merge returns o with every field set in next taking its value.
func (o Overrides) merge(next Overrides) Overrides {
	out := o.clone()
	n := next.clone()
	if n.MinRegistrations != nil {
		out.MinRegistrations = n.MinRegistrations
	}
	if n.MaxRegistrations != nil {
		out.MaxRegistrations = n.MaxRegistrations
	}
	if n.Returns != nil {
		out.Returns = n.Returns
	}
	if n.IgnoreFailures != nil {
		out.IgnoreFailures = n.IgnoreFailures
	}
	return out
}

// apply layers o over s.
func (o Overrides) apply(s Settings) Settings {
	if o.MinRegistrations != nil {
		s.MinRegistrations = *o.MinRegistrations
	}
	if o.MaxRegistrations != nil {
		s.MaxRegistrations = *o.MaxRegistrations
	}
	if o.Returns != nil {
		s.Returns = *o.Returns
	}
	if o.IgnoreFailures != nil {
		s.IgnoreFailures = *o.IgnoreFailures
	}
	return s
}

// resolve computes effective settings: call-time over per-slot over
// container defaults. It is pure and evaluated on every read.
func resolve(callTime, perSlot Overrides, defaults Settings) Settings {
	return callTime.apply(perSlot.apply(defaults))
}

// checkMin validates a min registrations value against the effective max
// and the current registration count. It returns "" when value is valid.
func checkMin(value, max, count int) string {
	switch {
	case value < 0:
		return "min registrations must be positive or unset"
	case value == 0:
		return ""
	case max > 0 && value > max:
		return "min registrations must be <= max registrations"
	case count > 0 && value > count:
		return fmt.Sprintf("too few registrations (%d < %d)", count, value)
	}
	return ""
}

// checkMax mirrors checkMin for the upper bound.
func checkMax(value, min, count int) string {
	switch {
	case value < 0:
		return "max registrations must be positive or unset"
	case value == 0:
		return ""
	case min > 0 && value < min:
		return "max registrations must be >= min registrations"
	case count > 0 && value < count:
		return fmt.Sprintf("too many registrations (%d > %d)", count, value)
	}
	return ""
}
