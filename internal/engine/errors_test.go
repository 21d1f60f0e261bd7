package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWiringError_Format(t *testing.T) {
	h := NewHandler("h", nil)

	assert.Equal(t, "INVALID_SETTING: bad (slot=s)", NewInvalidSettingError("s", "bad").Error())
	assert.Equal(t, "INVALID_SETTING: bad", NewInvalidSettingError("", "bad").Error())
	assert.Equal(t,
		`CAPACITY: max registrations limit reached (slot=s, handler=h)`,
		NewCapacityError("s", h, "max registrations limit reached").Error())
	assert.Equal(t,
		"INSUFFICIENT_REGISTRATIONS: less than min registrations wired (0 < 2) (slot=s)",
		NewInsufficientRegistrationsError("s", 0, 2).Error())
}

func TestCodeOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("wiring: %w", NewUnknownSlotError("gone"))

	assert.Equal(t, ErrCodeUnknownSlot, CodeOf(err))
	assert.True(t, IsUnknownSlotError(err))
	assert.False(t, IsCapacityError(err))
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
	assert.Equal(t, ErrorCode(""), CodeOf(nil))
}

func TestCoupledFailureError(t *testing.T) {
	f := captureError(errBoom)
	err := error(&CoupledFailureError{
		Slot:    "s",
		Records: []Record{{Value: 42}, {Failure: f}},
	})

	assert.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), "something bad")

	ce, ok := AsCoupledFailure(fmt.Errorf("wrapped: %w", err))
	assert.True(t, ok)
	assert.Same(t, f, ce.Failure())

	_, ok = AsCoupledFailure(errBoom)
	assert.False(t, ok)
}

func TestRecord_Err(t *testing.T) {
	assert.NoError(t, Record{Value: 1}.Err())
	assert.Nil(t, Record{}.Err())

	r := Record{Failure: captureError(errBoom)}
	assert.True(t, r.Failed())
	assert.ErrorIs(t, r.Err(), errBoom)
	assert.True(t, r.IsFailureOf(errBoom))
}
