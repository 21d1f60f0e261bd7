package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/wires/internal/engine"
)

// Journal records every dispatch of a container in a Store. It implements
// engine.Observer:
//
//	s, _ := store.Open("journal.db")
//	j := store.NewJournal(s, logger)
//	c, _ := engine.New(engine.WithObserver(j))
//
// Observers cannot fail an invocation, so write errors are logged and the
// first one is kept for Err.
type Journal struct {
	store  *Store
	logger *slog.Logger

	mu      sync.Mutex
	err     error
	written  int
}

// NewJournal creates a Journal writing to s. A nil logger uses slog.Default().
func NewJournal(s *Store, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{store: s, logger: logger}
}

// Dispatched implements engine.Observer.
func (j *Journal) Dispatched(d engine.Dispatch) {
	rec, err := FromDispatch(d)
	if err == nil {
		err = j.store.WriteDispatch(context.Background(), rec)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if err != nil {
		j.logger.Error("journal write failed", "slot", d.Slot, "trace_id", d.TraceID, "error", err)
		if j.err == nil {
			j.err = err
		}
		return
	}
	j.written++
	j.logger.Debug("dispatch journaled", "slot", d.Slot, "trace_id", d.TraceID, "seq", d.Seq, "calls", len(d.Calls))
}

// Err returns the first write error, if any.
func (j *Journal) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Written returns the number of dispatches journaled.
func (j *Journal) Written() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.written
}
