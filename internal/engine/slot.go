package engine

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"k8s.io/utils/ptr"
)

// Slot is a named dispatch point holding an ordered list of registrations.
//
// Slots are created by a Container (see Container.Slot) and read their
// fallback settings from it. Settings resolve with three-level precedence:
// call-time overrides (one upcoming Invoke only), then per-slot overrides,
// then container defaults.
//
// Thread-safety: all methods are safe for concurrent use. Invoke does not
// hold the slot lock while handlers run, so a handler may register,
// deregister, or re-invoke on the same slot. Recursion is not guarded.
//
// INVARIANTS:
//   - registrations order is wiring order and invocation order
//   - Register never exceeds the effective max registrations
//   - Deregister never drops below the effective min registrations
//   - per-slot min <= effective max and max >= effective min when set
type Slot struct {
	c    *Container
	name string

	mu            sync.Mutex
	registrations []Registration
	perSlot       Overrides
	callTime      Overrides
	reportMode    ReportMode
}

func newSlot(c *Container, name string) *Slot {
	return &Slot{c: c, name: name}
}

// Name returns the slot name.
func (s *Slot) Name() string {
	return s.name
}

// String implements fmt.Stringer.
func (s *Slot) String() string {
	return fmt.Sprintf("<slot %q>", s.name)
}

// Len returns the registration count.
func (s *Slot) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.registrations)
}

// Registrations returns a copy of the registrations in wiring order.
func (s *Slot) Registrations() []Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Registration, len(s.registrations))
	for i, r := range s.registrations {
		out[i] = r.clone()
	}
	return out
}

// Settings returns the effective settings, including any pending
// call-time overrides.
func (s *Slot) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.effective()
}

// Overrides returns a copy of the per-slot overrides.
func (s *Slot) Overrides() Overrides {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.perSlot.clone()
}

// effective must be called with s.mu held.
func (s *Slot) effective() Settings {
	return resolve(s.callTime, s.perSlot, s.c.defaults)
}

// Register appends a registration for h with args bound to it.
//
// Returns an invalid handler error if h is nil or has no function, and a
// capacity error if the effective max registrations is already reached.
// A rejected Register leaves the slot unchanged.
func (s *Slot) Register(h *Handler, args Args) error {
	if !h.invocable() {
		return NewInvalidHandlerError(s.name, h)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if max := s.effective().MaxRegistrations; max > 0 && len(s.registrations) >= max {
		return NewCapacityError(s.name, h, "max registrations limit reached")
	}
	s.registrations = append(s.registrations, Registration{Handler: h, Args: args.clone()})
	return nil
}

// Deregister removes the first registration of h, whatever its bound
// arguments.
//
// Returns an invalid handler error if h is not invocable, a capacity error
// if the slot is at its effective min registrations, and an unknown
// handler error if h is not wired.
func (s *Slot) Deregister(h *Handler) error {
	return s.remove(h, false, func(r Registration) bool {
		return r.Handler == h
	})
}

// DeregisterExact removes the first registration of h whose bound
// arguments equal args. Use it to pick one of several registrations of
// the same handler.
func (s *Slot) DeregisterExact(h *Handler, args Args) error {
	return s.remove(h, true, func(r Registration) bool {
		return r.Handler == h && r.Args.Equal(args)
	})
}

func (s *Slot) remove(h *Handler, exact bool, match func(Registration) bool) error {
	if !h.invocable() {
		return NewInvalidHandlerError(s.name, h)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if min := s.effective().MinRegistrations; min > 0 && len(s.registrations) <= min {
		return NewCapacityError(s.name, h, "min registrations limit reached")
	}
	idx := slices.IndexFunc(s.registrations, match)
	if idx < 0 {
		return NewUnknownHandlerError(s.name, h, exact)
	}
	s.registrations = slices.Delete(s.registrations, idx, idx+1)
	return nil
}

// Invoke calls every registration in order with the combined bound and
// call-time arguments.
//
// Coupling:
//   - returns=false: handler failures go to the failure reporter and
//     Invoke returns (nil, nil).
//   - returns=true, no short-circuit: Invoke returns one Record per
//     registration, in order.
//   - returns=true, ignoreFailures=false, a handler failed: Invoke stops
//     at that handler and returns a *CoupledFailureError holding the
//     records so far, the failing one last.
//
// With ignoreFailures=false the first failure stops the loop regardless
// of returns. If the slot is below its effective min registrations no
// handler runs and an insufficient registrations error is returned.
//
// Call-time overrides are consumed by every Invoke, including rejected
// ones. Invoke never changes the registrations.
func (s *Slot) Invoke(ctx context.Context, args Args) ([]Record, error) {
	s.mu.Lock()
	settings := s.effective()
	s.callTime = Overrides{}
	count := len(s.registrations)
	if settings.MinRegistrations > 0 && count < settings.MinRegistrations {
		s.mu.Unlock()
		s.c.observe(Dispatch{
			Slot:           s.name,
			Args:           args.clone(),
			Returns:        settings.Returns,
			IgnoreFailures: settings.IgnoreFailures,
			Rejected:       true,
		})
		return nil, NewInsufficientRegistrationsError(s.name, count, settings.MinRegistrations)
	}
	wired := slices.Clone(s.registrations)
	s.mu.Unlock()

	calls := make([]HandlerCall, 0, len(wired))
	shortCircuited := false
	for _, reg := range wired {
		combined := combine(reg.Args, args)
		value, failure := callHandler(ctx, reg.Handler, combined)
		calls = append(calls, HandlerCall{
			Handler: reg.Handler.Name(),
			Args:    combined,
			Record:  Record{Failure: failure, Value: value},
		})
		if failure == nil {
			continue
		}
		if !settings.Returns {
			s.report(reg.Handler, failure)
		}
		if !settings.IgnoreFailures {
			shortCircuited = true
			break
		}
	}

	d := Dispatch{
		Slot:           s.name,
		Args:           args.clone(),
		Calls:          calls,
		Returns:        settings.Returns,
		IgnoreFailures: settings.IgnoreFailures,
		ShortCircuited: shortCircuited,
	}
	s.c.observe(d)

	if !settings.Returns {
		return nil, nil
	}
	if shortCircuited {
		return nil, &CoupledFailureError{Slot: s.name, Records: d.Records()}
	}
	return d.Records(), nil
}

// SetMinRegistrations sets the per-slot min registrations. Zero means no
// limit and is stored as an explicit override of the container default.
//
// Rejected, with no change, if n is negative, above the effective max, or
// above the current registration count when there are registrations.
func (s *Slot) SetMinRegistrations(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setMinLocked(n)
}

func (s *Slot) setMinLocked(n int) error {
	eff := s.effective()
	if msg := checkMin(n, eff.MaxRegistrations, len(s.registrations)); msg != "" {
		return NewInvalidSettingError(s.name, msg)
	}
	s.perSlot.MinRegistrations = ptr.To(n)
	return nil
}

// SetMaxRegistrations sets the per-slot max registrations. Zero means no
// limit.
//
// Rejected, with no change, if n is negative, below the effective min, or
// below the current registration count when there are registrations.
func (s *Slot) SetMaxRegistrations(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setMaxLocked(n)
}

func (s *Slot) setMaxLocked(n int) error {
	eff := s.effective()
	if msg := checkMax(n, eff.MinRegistrations, len(s.registrations)); msg != "" {
		return NewInvalidSettingError(s.name, msg)
	}
	s.perSlot.MaxRegistrations = ptr.To(n)
	return nil
}

// SetReturns sets the per-slot returns setting.
func (s *Slot) SetReturns(b bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.perSlot.Returns = ptr.To(b)
}

// SetIgnoreFailures sets the per-slot ignore failures setting.
func (s *Slot) SetIgnoreFailures(b bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.perSlot.IgnoreFailures = ptr.To(b)
}

// Set applies every field set in o as a per-slot override, validating
// bounds in key order. Either all fields are applied or none is.
func (s *Slot) Set(o Overrides) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := s.perSlot.clone()
	if o.MinRegistrations != nil {
		if err := s.setMinLocked(*o.MinRegistrations); err != nil {
			s.perSlot = saved
			return err
		}
	}
	if o.MaxRegistrations != nil {
		if err := s.setMaxLocked(*o.MaxRegistrations); err != nil {
			s.perSlot = saved
			return err
		}
	}
	if o.Returns != nil {
		s.perSlot.Returns = ptr.To(*o.Returns)
	}
	if o.IgnoreFailures != nil {
		s.perSlot.IgnoreFailures = ptr.To(*o.IgnoreFailures)
	}
	return nil
}

// SetNextCall merges o into the call-time overrides. They take precedence
// over everything else until the next Invoke consumes them.
//
// Call-time bounds are not checked against the registration count; they
// only affect Register, Deregister and the min check of the next Invoke.
func (s *Slot) SetNextCall(o Overrides) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callTime = s.callTime.merge(o)
}

// Unset removes the per-slot override for key so the container default
// applies again.
//
// Bounds are re-validated against the fallback value: if it is not valid
// for the current registrations, the override is kept and an invalid
// setting error is returned. Unsetting a key without an override is a
// no-op.
func (s *Slot) Unset(key SettingKey) error {
	if !key.valid() {
		return NewInvalidSettingError(s.name, fmt.Sprintf("unknown setting %q", key))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.perSlot.Has(key) {
		return nil
	}
	saved := s.perSlot.clone()
	s.perSlot.unset(key)

	next := s.effective()
	var msg string
	switch key {
	case KeyMinRegistrations:
		msg = checkMin(next.MinRegistrations, next.MaxRegistrations, len(s.registrations))
	case KeyMaxRegistrations:
		msg = checkMax(next.MaxRegistrations, next.MinRegistrations, len(s.registrations))
	}
	if msg != "" {
		s.perSlot = saved
		return NewInvalidSettingError(s.name, fmt.Sprintf("cannot unset %s: %s", key, msg))
	}
	return nil
}

// SetReportMode selects the failure reporting for this slot. ReportInherit
// defers to the container.
func (s *Slot) SetReportMode(m ReportMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reportMode = m
}

// ReportMode returns the effective report mode.
func (s *Slot) ReportMode() ReportMode {
	s.mu.Lock()
	m := s.reportMode
	s.mu.Unlock()
	if m == ReportInherit {
		return s.c.reportMode
	}
	return m
}

// report hands a decoupled failure to the selected reporter. A panicking
// reporter is recovered: reporting never fails the invocation.
func (s *Slot) report(h *Handler, f *Failure) {
	var r Reporter
	switch s.ReportMode() {
	case ReportLog:
		r = s.c.logReporter
	case ReportStream:
		r = s.c.streamReporter
	default:
		return
	}

	defer func() {
		if v := recover(); v != nil {
			s.c.logger.Warn("failure reporter panicked", "slot", s.name, "handler", h.Name(), "panic", v)
		}
	}()
	r.Report(s.name, h.Name(), f)
}
