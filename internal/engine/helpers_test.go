package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// errBoom is the failure returned by failing test handlers.
var errBoom = errors.New("something bad")

// tracker is a handler that records the arguments of every call.
type tracker struct {
	mu      sync.Mutex
	calls   []Args
	value   any
	err     error
	handler *Handler
}

func newTracker(name string, value any) *tracker {
	t := &tracker{value: value}
	t.handler = NewHandler(name, t.call)
	return t
}

func newFailingTracker(name string, err error) *tracker {
	t := &tracker{err: err}
	t.handler = NewHandler(name, t.call)
	return t
}

func (t *tracker) call(_ context.Context, args Args) (any, error) {
	t.mu.Lock()
	t.calls = append(t.calls, args)
	t.mu.Unlock()
	if t.err != nil {
		return nil, t.err
	}
	return t.value, nil
}

func (t *tracker) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

func (t *tracker) lastCall() Args {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.calls) == 0 {
		return Args{}
	}
	return t.calls[len(t.calls)-1]
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestContainer(t *testing.T, opts ...Option) *Container {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	c, err := New(opts...)
	require.NoError(t, err)
	return c
}
