package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wires/internal/engine"
	"github.com/roach88/wires/internal/ir"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWriteRead_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	rec := testRecord(t, "t-1", "saved", 1)

	require.NoError(t, s.WriteDispatch(ctx, rec))
	require.NoError(t, s.WriteDispatch(ctx, rec), "duplicate write is a no-op")

	got, err := s.ReadTrace(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
	assert.Equal(t, 1, got.Failures())
	assert.False(t, got.Outcomes[0].Failed())
	assert.Nil(t, got.Outcomes[1].Value)

	recs, err := s.ReadSlot(ctx, "saved")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestReadTrace_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReadTrace(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadDispatches_OrderAndFilters(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	ok := testRecord(t, "t-3", "a", 3)
	ok.Outcomes = ok.Outcomes[:1]
	rejected := testRecord(t, "t-4", "b", 4)
	rejected.Rejected = true
	rejected.Outcomes = nil

	for _, rec := range []DispatchRecord{
		testRecord(t, "t-2", "a", 2),
		ok,
		testRecord(t, "t-1", "b", 1),
		rejected,
	} {
		require.NoError(t, s.WriteDispatch(ctx, rec))
	}

	all, err := s.ReadDispatches(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i, want := range []int64{1, 2, 3, 4} {
		assert.Equal(t, want, all[i].Seq)
	}
	assert.Equal(t, []OutcomeRecord{}, all[3].Outcomes)

	slotA, err := s.ReadSlot(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, slotA, 2)

	failed, err := s.ReadDispatches(ctx, Filter{FailedOnly: true})
	require.NoError(t, err)
	var traces []string
	for _, r := range failed {
		traces = append(traces, r.TraceID)
	}
	assert.Equal(t, []string{"t-1", "t-2", "t-4"}, traces)

	none, err := s.ReadSlot(ctx, "missing")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

type unrepresentable struct{ N int }

func TestFromDispatch(t *testing.T) {
	d := engine.Dispatch{
		TraceID:        "t-1",
		Seq:            5,
		Slot:           "saved",
		Args:           engine.ArgsOf(1.5, "x").With("obj", unrepresentable{N: 2}),
		Returns:        false,
		IgnoreFailures: true,
		Calls: []engine.HandlerCall{
			{Handler: "ok", Args: engine.ArgsOf(int64(1)), Record: engine.Record{Value: map[string]any{"a": 1}}},
			{Handler: "bad", Record: engine.Record{Failure: &engine.Failure{Kind: engine.FailurePanic, Message: "panic: kaboom"}}},
		},
	}

	rec, err := FromDispatch(d)
	require.NoError(t, err)

	assert.Equal(t, ir.IRArray{ir.IRString("1.5"), ir.IRString("x")}, rec.Args)
	assert.Equal(t, ir.IRObject{"obj": ir.IRString("{2}")}, rec.Kwargs)
	assert.Equal(t, ir.MustDispatchID("t-1", "saved", rec.Args, rec.Kwargs, 5), rec.ID)
	assert.Equal(t, ir.WiresVersion, rec.WiresVersion)

	require.Len(t, rec.Outcomes, 2)
	assert.Equal(t, ir.IRObject{"a": ir.IRInt(1)}, rec.Outcomes[0].Value)
	assert.Equal(t, ir.IRArray{ir.IRInt(1)}, rec.Outcomes[0].Args)
	assert.Equal(t, "panic", rec.Outcomes[1].FailureKind)
	assert.Equal(t, "panic: kaboom", rec.Outcomes[1].Failure)
	assert.Nil(t, rec.Outcomes[1].Value)
}

func TestJournal_RecordsContainerDispatches(t *testing.T) {
	s := createTestStore(t)
	j := NewJournal(s, quietLogger())
	c, err := engine.New(
		engine.WithLogger(quietLogger()),
		engine.WithObserver(j),
		engine.WithTraceIDGenerator(engine.NewFixedGenerator("t-1", "t-2")),
	)
	require.NoError(t, err)

	echo := engine.NewHandler("echo", func(_ context.Context, a engine.Args) (any, error) {
		return a.Positional, nil
	})
	fail := engine.NewHandler("fail", func(context.Context, engine.Args) (any, error) {
		return nil, errors.New("boom")
	})
	require.NoError(t, c.Wire("saved", echo, engine.ArgsOf("bound")))
	require.NoError(t, c.Wire("saved", fail, engine.Args{}))

	ctx := context.Background()
	_, err = c.Slot("saved").Invoke(ctx, engine.ArgsOf("call"))
	require.NoError(t, err)

	require.NoError(t, c.Slot("empty").SetMinRegistrations(1))
	_, err = c.Slot("empty").Invoke(ctx, engine.Args{})
	require.Error(t, err)

	require.NoError(t, j.Err())
	assert.Equal(t, 2, j.Written())

	rec, err := s.ReadTrace(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "saved", rec.Slot)
	assert.Equal(t, int64(1), rec.Seq)
	require.Len(t, rec.Outcomes, 2)
	assert.Equal(t, ir.IRArray{ir.IRString("bound"), ir.IRString("call")}, rec.Outcomes[0].Value)
	assert.Equal(t, "boom", rec.Outcomes[1].Failure)

	rejected, err := s.ReadTrace(ctx, "t-2")
	require.NoError(t, err)
	assert.True(t, rejected.Rejected)
	assert.Empty(t, rejected.Outcomes)
}

func TestJournal_KeepsFirstError(t *testing.T) {
	s := createTestStore(t)
	j := NewJournal(s, quietLogger())
	require.NoError(t, s.Close())

	j.Dispatched(engine.Dispatch{TraceID: "t-1", Slot: "s", Seq: 1})
	assert.Error(t, j.Err())
	assert.Equal(t, 0, j.Written())
}
