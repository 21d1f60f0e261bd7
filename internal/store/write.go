package store

import (
	"context"
	"database/sql"
	"fmt"
)

// WriteDispatch inserts a dispatch and its outcomes in one transaction.
// Uses ON CONFLICT(id) DO NOTHING for idempotency: writing the same record
// twice leaves a single copy.
func (s *Store) WriteDispatch(ctx context.Context, rec DispatchRecord) error {
	argsJSON, err := marshalJSON(rec.Args)
	if err != nil {
		return fmt.Errorf("write dispatch: args: %w", err)
	}
	kwargsJSON, err := marshalJSON(rec.Kwargs)
	if err != nil {
		return fmt.Errorf("write dispatch: kwargs: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write dispatch: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	res, err := tx.ExecContext(ctx, `
		INSERT INTO dispatches
		(id, trace_id, slot, args, kwargs, seq, returns, ignore_failures, short_circuited, rejected, wires_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID,
		rec.TraceID,
		rec.Slot,
		argsJSON,
		kwargsJSON,
		rec.Seq,
		rec.Returns,
		rec.IgnoreFailures,
		rec.ShortCircuited,
		rec.Rejected,
		rec.WiresVersion,
	)
	if err != nil {
		return fmt.Errorf("write dispatch: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Already journaled.
		return tx.Commit()
	}

	for _, o := range rec.Outcomes {
		if err := writeOutcome(ctx, tx, rec.ID, o); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write dispatch: commit: %w", err)
	}
	return nil
}

func writeOutcome(ctx context.Context, tx *sql.Tx, dispatchID string, o OutcomeRecord) error {
	argsJSON, err := marshalJSON(o.Args)
	if err != nil {
		return fmt.Errorf("write outcome %d: args: %w", o.Position, err)
	}
	kwargsJSON, err := marshalJSON(o.Kwargs)
	if err != nil {
		return fmt.Errorf("write outcome %d: kwargs: %w", o.Position, err)
	}

	var value, kind, failure sql.NullString
	if o.Failed() {
		kind = sql.NullString{String: o.FailureKind, Valid: true}
		failure = sql.NullString{String: o.Failure, Valid: true}
	} else {
		v, err := marshalJSON(o.Value)
		if err != nil {
			return fmt.Errorf("write outcome %d: value: %w", o.Position, err)
		}
		value = sql.NullString{String: v, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO outcomes
		(dispatch_id, position, handler, args, kwargs, value, failure_kind, failure)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		dispatchID,
		o.Position,
		o.Handler,
		argsJSON,
		kwargsJSON,
		value,
		kind,
		failure,
	)
	if err != nil {
		return fmt.Errorf("write outcome %d: %w", o.Position, err)
	}
	return nil
}
