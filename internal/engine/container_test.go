package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/ptr"
)

func TestNew_Defaults(t *testing.T) {
	c := newTestContainer(t)
	assert.Equal(t, DefaultSettings(), c.Defaults())
	assert.Equal(t, "Container(min_registrations=0, max_registrations=0, returns=false, ignore_failures=true)", c.String())
	assert.Equal(t, 0, c.Len())
}

func TestNew_InvalidDefaults(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		msg  string
	}{
		{"negative min", []Option{WithMinRegistrations(-42)}, "min registrations must be positive or unset"},
		{"negative max", []Option{WithMaxRegistrations(-42)}, "max registrations must be positive or unset"},
		{"min above max", []Option{WithMinRegistrations(42), WithMaxRegistrations(24)}, "max registrations must be >= min registrations"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.opts...)
			require.Error(t, err)
			assert.Nil(t, c)
			assert.True(t, IsInvalidSettingError(err))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}

	assert.Panics(t, func() { MustNew(WithMinRegistrations(-1)) })
}

func TestNew_WithSettings(t *testing.T) {
	want := Settings{MinRegistrations: 1, MaxRegistrations: 2, Returns: true}
	c := newTestContainer(t, WithSettings(want))
	assert.Equal(t, want, c.Defaults())
	assert.Equal(t, want, c.Slot("any").Settings())
}

func TestContainer_Slot_LazyAndStable(t *testing.T) {
	c := newTestContainer(t)

	_, ok := c.Lookup("this")
	assert.False(t, ok)

	s1 := c.Slot("this")
	s2 := c.Slot("this")
	assert.Same(t, s1, s2)
	assert.Equal(t, "this", s1.Name())
	assert.Equal(t, `<slot "this">`, s1.String())

	c.Slot("that")
	assert.Equal(t, []string{"this", "that"}, c.Names())
	assert.Equal(t, 2, c.Len())

	slots := c.Slots()
	require.Len(t, slots, 2)
	assert.Same(t, s1, slots[0])
}

func TestContainer_DeleteSlot(t *testing.T) {
	c := newTestContainer(t)
	h := newTracker("h", nil)
	require.NoError(t, c.Wire("this", h.handler, Args{}))
	c.Slot("this").SetReturns(true)

	require.NoError(t, c.DeleteSlot("this"))
	assert.Empty(t, c.Names())

	err := c.DeleteSlot("this")
	require.Error(t, err)
	assert.True(t, IsUnknownSlotError(err))

	// Recreated fresh: no registrations, no per-slot settings.
	s := c.Slot("this")
	assert.Equal(t, 0, s.Len())
	assert.False(t, s.Settings().Returns)
}

func TestContainer_WireUnwire(t *testing.T) {
	c := newTestContainer(t, WithReturns(true))
	h := newTracker("h", "hi")

	require.NoError(t, c.Wire("greet", h.handler, ArgsOf("x")))
	records, err := c.Slot("greet").Invoke(context.Background(), Args{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "hi", records[0].Value)

	require.NoError(t, c.Unwire("greet", h.handler))
	assert.True(t, IsUnknownHandlerError(c.Unwire("greet", h.handler)))
}

func TestContainer_WithOverrides_NextSlotOnly(t *testing.T) {
	c := newTestContainer(t)
	require.NoError(t, c.Wire("a", newTracker("h", 1).handler, Args{}))
	require.NoError(t, c.Wire("b", newTracker("h", 2).handler, Args{}))

	c.WithOverrides(Overrides{Returns: ptr.To(true)})
	assert.True(t, c.Pending().Has(KeyReturns))

	// Lookup does not consume pending overrides.
	_, ok := c.Lookup("b")
	require.True(t, ok)
	assert.True(t, c.Pending().Has(KeyReturns))

	a := c.Slot("a")
	assert.True(t, c.Pending().IsZero())
	assert.True(t, a.Settings().Returns)
	assert.False(t, c.Slot("b").Settings().Returns)

	records, err := a.Invoke(context.Background(), Args{})
	require.NoError(t, err)
	assert.Equal(t, []Record{{Value: 1}}, records)
}

func TestContainer_WithOverrides_ReplacesPending(t *testing.T) {
	c := newTestContainer(t)
	c.WithOverrides(Overrides{Returns: ptr.To(true)})
	c.WithOverrides(Overrides{IgnoreFailures: ptr.To(false)})

	got := c.Slot("a").Settings()
	assert.False(t, got.Returns)
	assert.False(t, got.IgnoreFailures)
}

func TestContainer_WithOverrides_NewSlot(t *testing.T) {
	c := newTestContainer(t)

	records, err := c.WithOverrides(Overrides{Returns: ptr.To(true)}).Slot("fresh").Invoke(context.Background(), Args{})
	require.NoError(t, err)
	assert.Equal(t, []Record{}, records)
}

func TestContainer_ConcurrentSlotsAndInvokes(t *testing.T) {
	c := newTestContainer(t)
	h := newTracker("h", nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := c.Slot("shared")
			assert.NoError(t, s.Register(h.handler, Args{}))
			_, err := s.Invoke(context.Background(), Args{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, c.Slot("shared").Len())
	assert.Equal(t, []string{"shared"}, c.Names())
}
