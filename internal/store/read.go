package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/wires/internal/ir"
)

// ErrNotFound is returned when a requested dispatch is not journaled.
var ErrNotFound = errors.New("dispatch not found")

// Filter narrows ReadDispatches. Zero fields match everything.
type Filter struct {
	Slot    string
	TraceID string

	// FailedOnly keeps dispatches with at least one failed outcome or a
	// rejection.
	FailedOnly bool
}

// ReadSlot returns every dispatch of slot in seq order.
// Returns an empty slice (not nil) if there are none.
func (s *Store) ReadSlot(ctx context.Context, slot string) ([]DispatchRecord, error) {
	return s.ReadDispatches(ctx, Filter{Slot: slot})
}

// ReadTrace returns the dispatch with the given trace ID, or ErrNotFound.
func (s *Store) ReadTrace(ctx context.Context, traceID string) (DispatchRecord, error) {
	recs, err := s.ReadDispatches(ctx, Filter{TraceID: traceID})
	if err != nil {
		return DispatchRecord{}, err
	}
	if len(recs) == 0 {
		return DispatchRecord{}, fmt.Errorf("trace %q: %w", traceID, ErrNotFound)
	}
	return recs[0], nil
}

// ReadDispatches returns the dispatches matching f with their outcomes.
// Results are ordered deterministically: ORDER BY seq ASC, id ASC COLLATE BINARY.
func (s *Store) ReadDispatches(ctx context.Context, f Filter) ([]DispatchRecord, error) {
	var (
		where []string
		args  []any
	)
	if f.Slot != "" {
		where = append(where, "d.slot = ?")
		args = append(args, f.Slot)
	}
	if f.TraceID != "" {
		where = append(where, "d.trace_id = ?")
		args = append(args, f.TraceID)
	}
	if f.FailedOnly {
		where = append(where, `(d.rejected = 1 OR EXISTS (
			SELECT 1 FROM outcomes o WHERE o.dispatch_id = d.id AND o.failure_kind IS NOT NULL))`)
	}

	query := `
		SELECT d.id, d.trace_id, d.slot, d.args, d.kwargs, d.seq,
		       d.returns, d.ignore_failures, d.short_circuited, d.rejected, d.wires_version
		FROM dispatches d`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	query += "\n\t\tORDER BY d.seq ASC, d.id COLLATE BINARY ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query dispatches: %w", err)
	}
	defer rows.Close()

	recs := []DispatchRecord{}
	for rows.Next() {
		rec, err := scanDispatch(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dispatches: %w", err)
	}
	rows.Close()

	for i := range recs {
		outcomes, err := s.readOutcomes(ctx, recs[i].ID)
		if err != nil {
			return nil, err
		}
		recs[i].Outcomes = outcomes
	}
	return recs, nil
}

func (s *Store) readOutcomes(ctx context.Context, dispatchID string) ([]OutcomeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position, handler, args, kwargs, value, failure_kind, failure
		FROM outcomes
		WHERE dispatch_id = ?
		ORDER BY position ASC
	`, dispatchID)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	outcomes := []OutcomeRecord{}
	for rows.Next() {
		var (
			o                    OutcomeRecord
			argsJSON, kwargsJSON string
			value, kind, failure sql.NullString
		)
		if err := rows.Scan(&o.Position, &o.Handler, &argsJSON, &kwargsJSON, &value, &kind, &failure); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		if o.Args, err = unmarshalArray(argsJSON); err != nil {
			return nil, err
		}
		if o.Kwargs, err = unmarshalObject(kwargsJSON); err != nil {
			return nil, err
		}
		if value.Valid {
			if o.Value, err = ir.UnmarshalIRValue([]byte(value.String)); err != nil {
				return nil, fmt.Errorf("unmarshal value: %w", err)
			}
		}
		o.FailureKind = kind.String
		o.Failure = failure.String
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return outcomes, nil
}

func scanDispatch(rows *sql.Rows) (DispatchRecord, error) {
	var (
		rec                  DispatchRecord
		argsJSON, kwargsJSON string
	)
	if err := rows.Scan(
		&rec.ID, &rec.TraceID, &rec.Slot, &argsJSON, &kwargsJSON, &rec.Seq,
		&rec.Returns, &rec.IgnoreFailures, &rec.ShortCircuited, &rec.Rejected, &rec.WiresVersion,
	); err != nil {
		return DispatchRecord{}, fmt.Errorf("scan dispatch: %w", err)
	}

	var err error
	if rec.Args, err = unmarshalArray(argsJSON); err != nil {
		return DispatchRecord{}, err
	}
	if rec.Kwargs, err = unmarshalObject(kwargsJSON); err != nil {
		return DispatchRecord{}, err
	}
	return rec, nil
}
