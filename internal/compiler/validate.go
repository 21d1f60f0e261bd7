package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/wires/internal/ir"
)

// Validation error codes (E200-E299)
const (
	ErrNegativeBound     = "E201" // min/max registrations below zero
	ErrMinAboveMax       = "E202" // min registrations greater than max
	ErrTooManyWirings    = "E203" // more wirings than the effective max
	ErrUnknownHandler    = "E204" // handler not in the catalog
	ErrDuplicateSlot     = "E205" // slot declared twice
	ErrInvalidReportMode = "E206" // report is not mute, log or stream
	ErrEmptyName         = "E207" // empty slot or handler name
)

// ValidationError represents a manifest validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a manifest against the rules a container enforces when
// it is built from it. Returns all errors found (does not fail-fast).
//
// handlers is the catalog of known handler names. A nil catalog skips the
// unknown-handler check.
func Validate(m *ir.Manifest, handlers []string) []ValidationError {
	var errs []ValidationError

	errs = append(errs, validateSettings(m.Defaults, "defaults")...)
	errs = append(errs, validateReport(m.Report, "report")...)

	var known map[string]bool
	if handlers != nil {
		known = make(map[string]bool, len(handlers))
		for _, h := range handlers {
			known[h] = true
		}
	}

	seen := make(map[string]bool, len(m.Slots))
	for i, slot := range m.Slots {
		field := fmt.Sprintf("slots[%d]", i)
		if slot.Name != "" {
			field = "slots." + slot.Name
		}

		if strings.TrimSpace(slot.Name) == "" {
			errs = append(errs, ValidationError{Field: field + ".name", Message: "slot name is required", Code: ErrEmptyName})
		}
		if seen[slot.Name] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicate slot %q", slot.Name),
				Code:    ErrDuplicateSlot,
			})
		}
		seen[slot.Name] = true

		errs = append(errs, validateSettings(slot.Settings, field+".settings")...)
		errs = append(errs, validateReport(slot.Report, field+".report")...)

		// Effective bounds: per-slot over defaults, 0 = no limit. Only
		// mixed-level conflicts are reported here; same-level ones were
		// reported by validateSettings.
		min := pick(slot.Settings.MinRegistrations, m.Defaults.MinRegistrations)
		max := pick(slot.Settings.MaxRegistrations, m.Defaults.MaxRegistrations)
		mixed := (slot.Settings.MinRegistrations == nil) != (slot.Settings.MaxRegistrations == nil)
		if min > 0 && max > 0 && min > max && mixed {
			errs = append(errs, ValidationError{
				Field:   field + ".settings",
				Message: fmt.Sprintf("effective min registrations %d exceeds effective max %d", min, max),
				Code:    ErrMinAboveMax,
			})
		}
		if max > 0 && len(slot.Wirings) > max {
			errs = append(errs, ValidationError{
				Field:   field + ".wirings",
				Message: fmt.Sprintf("%d wirings exceed max registrations %d", len(slot.Wirings), max),
				Code:    ErrTooManyWirings,
			})
		}

		for j, w := range slot.Wirings {
			wfield := fmt.Sprintf("%s.wirings[%d].handler", field, j)
			if strings.TrimSpace(w.Handler) == "" {
				errs = append(errs, ValidationError{Field: wfield, Message: "handler name is required", Code: ErrEmptyName})
				continue
			}
			if known != nil && !known[w.Handler] {
				errs = append(errs, ValidationError{
					Field:   wfield,
					Message: fmt.Sprintf("unknown handler %q", w.Handler),
					Code:    ErrUnknownHandler,
				})
			}
		}
	}

	return errs
}

func validateSettings(s ir.SettingsSpec, field string) []ValidationError {
	var errs []ValidationError
	if s.MinRegistrations != nil && *s.MinRegistrations < 0 {
		errs = append(errs, ValidationError{
			Field:   field + ".min_registrations",
			Message: "min registrations must be positive or unset",
			Code:    ErrNegativeBound,
		})
	}
	if s.MaxRegistrations != nil && *s.MaxRegistrations < 0 {
		errs = append(errs, ValidationError{
			Field:   field + ".max_registrations",
			Message: "max registrations must be positive or unset",
			Code:    ErrNegativeBound,
		})
	}
	if s.MinRegistrations != nil && s.MaxRegistrations != nil &&
		*s.MinRegistrations > 0 && *s.MaxRegistrations > 0 && *s.MinRegistrations > *s.MaxRegistrations {
		errs = append(errs, ValidationError{
			Field:   field,
			Message: "max registrations must be >= min registrations",
			Code:    ErrMinAboveMax,
		})
	}
	return errs
}

func validateReport(mode, field string) []ValidationError {
	switch mode {
	case "", "mute", "log", "stream":
		return nil
	}
	return []ValidationError{{
		Field:   field,
		Message: fmt.Sprintf("invalid report mode %q: must be mute, log or stream", mode),
		Code:    ErrInvalidReportMode,
	}}
}

func pick(override, fallback *int) int {
	if override != nil {
		return *override
	}
	if fallback != nil {
		return *fallback
	}
	return 0
}
