package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/wires/internal/ir"
)

// createTestStore opens a fresh journal in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// testRecord builds a two-outcome dispatch record with a valid ID.
func testRecord(t *testing.T, traceID, slot string, seq int64) DispatchRecord {
	t.Helper()
	rec := DispatchRecord{
		TraceID:        traceID,
		Slot:           slot,
		Args:           ir.IRArray{ir.IRString("call")},
		Kwargs:         ir.IRObject{"k": ir.IRInt(1)},
		Seq:            seq,
		Returns:        true,
		IgnoreFailures: true,
		WiresVersion:   ir.WiresVersion,
		Outcomes: []OutcomeRecord{
			{
				Position: 0,
				Handler:  "echo",
				Args:     ir.IRArray{ir.IRString("bound"), ir.IRString("call")},
				Kwargs:   ir.IRObject{"k": ir.IRInt(1)},
				Value:    ir.IRArray{ir.IRString("bound"), ir.IRString("call")},
			},
			{
				Position:    1,
				Handler:     "fail",
				Args:        ir.IRArray{ir.IRString("call")},
				Kwargs:      ir.IRObject{"k": ir.IRInt(1)},
				FailureKind: "error",
				Failure:     "boom",
			},
		},
	}
	id, err := ir.DispatchID(traceID, slot, rec.Args, rec.Kwargs, seq)
	require.NoError(t, err)
	rec.ID = id
	return rec
}
