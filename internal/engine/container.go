package engine

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Container owns a set of named slots and the default settings they fall
// back to.
//
// Slots spring into existence on first reference through Slot(name) and
// live until DeleteSlot. Default settings are fixed at construction; the
// only way to vary them per call is WithOverrides, which applies to the
// next slot referenced.
//
// Thread-safety: all methods are safe for concurrent use. WithOverrides
// followed by Slot is a two-step protocol: a concurrent Slot call from
// another goroutine may consume the pending overrides first.
type Container struct {
	defaults Settings

	mu      sync.Mutex
	slots   map[string]*Slot
	order   []string
	pending Overrides

	reportMode     ReportMode
	logReporter    Reporter
	streamReporter Reporter
	logger         *slog.Logger
	observers      []Observer
	traceIDs       TraceIDGenerator
	clock          *Clock
}

// Option configures a Container.
type Option func(*Container)

// WithMinRegistrations sets the default min registrations. Zero means no limit.
func WithMinRegistrations(n int) Option {
	return func(c *Container) {
		c.defaults.MinRegistrations = n
	}
}

// WithMaxRegistrations sets the default max registrations. Zero means no limit.
func WithMaxRegistrations(n int) Option {
	return func(c *Container) {
		c.defaults.MaxRegistrations = n
	}
}

// WithReturns sets the default returns setting (default: false).
func WithReturns(b bool) Option {
	return func(c *Container) {
		c.defaults.Returns = b
	}
}

// WithIgnoreFailures sets the default ignore failures setting (default: true).
func WithIgnoreFailures(b bool) Option {
	return func(c *Container) {
		c.defaults.IgnoreFailures = b
	}
}

// WithSettings replaces all default settings at once.
func WithSettings(s Settings) Option {
	return func(c *Container) {
		c.defaults = s
	}
}

// WithReportMode sets the report mode for slots that do not pick their
// own (default: ReportMute). ReportInherit is treated as ReportMute.
func WithReportMode(m ReportMode) Option {
	return func(c *Container) {
		c.reportMode = m
	}
}

// WithReporter replaces the reporter used for mode, which must be
// ReportLog or ReportStream. Other modes are ignored.
func WithReporter(mode ReportMode, r Reporter) Option {
	return func(c *Container) {
		switch mode {
		case ReportLog:
			c.logReporter = r
		case ReportStream:
			c.streamReporter = r
		}
	}
}

// WithLogger sets the logger for engine diagnostics and the default log
// reporter.
func WithLogger(l *slog.Logger) Option {
	return func(c *Container) {
		c.logger = l
	}
}

// WithObserver adds an observer notified after every Invoke.
func WithObserver(o Observer) Option {
	return func(c *Container) {
		c.observers = append(c.observers, o)
	}
}

// WithTraceIDGenerator sets the dispatch trace ID generator
// (default: UUIDv7Generator).
func WithTraceIDGenerator(g TraceIDGenerator) Option {
	return func(c *Container) {
		c.traceIDs = g
	}
}

// WithClock sets the logical clock stamping dispatches.
func WithClock(clock *Clock) Option {
	return func(c *Container) {
		c.clock = clock
	}
}

// New creates a Container.
//
// Defaults: no registration bounds, returns=false, ignoreFailures=true,
// failures muted. Returns an invalid setting error if a bound is negative
// or min exceeds max.
func New(opts ...Option) (*Container, error) {
	c := &Container{
		defaults:   DefaultSettings(),
		slots:      make(map[string]*Slot),
		reportMode: ReportMute,
		traceIDs:   UUIDv7Generator{},
		clock:      NewClock(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.reportMode == ReportInherit {
		c.reportMode = ReportMute
	}
	if c.logReporter == nil {
		c.logReporter = LogReporter{Logger: c.logger}
	}
	if c.streamReporter == nil {
		c.streamReporter = StreamReporter{}
	}

	if err := validateDefaults(c.defaults); err != nil {
		return nil, err
	}
	return c, nil
}

// MustNew is like New but panics on invalid options. Intended for
// package-level containers built from constant options.
func MustNew(opts ...Option) *Container {
	c, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return c
}

func validateDefaults(s Settings) error {
	if s.MinRegistrations < 0 {
		return NewInvalidSettingError("", "min registrations must be positive or unset")
	}
	if s.MaxRegistrations < 0 {
		return NewInvalidSettingError("", "max registrations must be positive or unset")
	}
	if s.MinRegistrations > 0 && s.MaxRegistrations > 0 && s.MinRegistrations > s.MaxRegistrations {
		return NewInvalidSettingError("", "max registrations must be >= min registrations")
	}
	return nil
}

// Defaults returns the container default settings.
func (c *Container) Defaults() Settings {
	return c.defaults
}

// String renders the container as its construction settings.
func (c *Container) String() string {
	return fmt.Sprintf("Container(%s)", c.defaults)
}

// Slot returns the slot called name, creating it on first reference.
//
// Pending overrides recorded by WithOverrides are moved into the returned
// slot's call-time overrides, whether the slot is new or not.
func (c *Container) Slot(name string) *Slot {
	c.mu.Lock()
	s, ok := c.slots[name]
	if !ok {
		s = newSlot(c, name)
		c.slots[name] = s
		c.order = append(c.order, name)
	}
	pending := c.pending
	c.pending = Overrides{}
	c.mu.Unlock()

	if !pending.IsZero() {
		s.SetNextCall(pending)
	}
	return s
}

// Lookup returns the slot called name without creating it and without
// consuming pending overrides.
func (c *Container) Lookup(name string) (*Slot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[name]
	return s, ok
}

// WithOverrides records o as the call-time overrides for the next slot
// referenced through Slot, replacing any still-pending ones, and returns c
// so the slot reference can follow directly:
//
//	records, err := c.WithOverrides(engine.Overrides{Returns: ptr.To(true)}).
//		Slot("saved").Invoke(ctx, engine.ArgsOf(doc))
func (c *Container) WithOverrides(o Overrides) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = o.clone()
	return c
}

// Pending returns a copy of the overrides waiting for the next Slot call.
func (c *Container) Pending() Overrides {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.clone()
}

// DeleteSlot forgets the slot called name with all its registrations and
// settings. Returns an unknown slot error if there is none.
func (c *Container) DeleteSlot(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.slots[name]; !ok {
		return NewUnknownSlotError(name)
	}
	delete(c.slots, name)
	if i := slices.Index(c.order, name); i >= 0 {
		c.order = slices.Delete(c.order, i, i+1)
	}
	return nil
}

// Names returns the slot names in creation order.
func (c *Container) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.order)
}

// Slots returns the slots in creation order.
func (c *Container) Slots() []*Slot {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Slot, len(c.order))
	for i, name := range c.order {
		out[i] = c.slots[name]
	}
	return out
}

// Len returns the number of slots.
func (c *Container) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.slots)
}

// Wire registers h with args on the slot called name.
func (c *Container) Wire(name string, h *Handler, args Args) error {
	return c.Slot(name).Register(h, args)
}

// Unwire removes the first registration of h from the slot called name.
func (c *Container) Unwire(name string, h *Handler) error {
	return c.Slot(name).Deregister(h)
}

// observe stamps d and hands it to every observer.
func (c *Container) observe(d Dispatch) {
	if len(c.observers) == 0 {
		return
	}
	d.Seq = c.clock.Next()
	d.TraceID = c.traceIDs.Generate()

	for _, o := range c.observers {
		c.notify(o, d)
	}
}

func (c *Container) notify(o Observer, d Dispatch) {
	defer func() {
		if v := recover(); v != nil {
			c.logger.Warn("dispatch observer panicked", "slot", d.Slot, "trace_id", d.TraceID, "panic", v)
		}
	}()
	o.Dispatched(d)
}
