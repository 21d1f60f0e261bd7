package testutil

import (
	"fmt"
	"sync"
)

// SequentialTraceIDs generates trace IDs "<prefix>-0001", "<prefix>-0002", ...
//
// Unlike engine.FixedGenerator it never runs out, and it can be reset so the
// same scenario run twice produces byte-identical traces.
//
// Thread-safety: all methods are safe for concurrent use.
type SequentialTraceIDs struct {
	prefix string

	mu sync.Mutex
	n  int
}

// NewSequentialTraceIDs creates a generator. An empty prefix uses "trace".
func NewSequentialTraceIDs(prefix string) *SequentialTraceIDs {
	if prefix == "" {
		prefix = "trace"
	}
	return &SequentialTraceIDs{prefix: prefix}
}

// Generate implements engine.TraceIDGenerator.
func (g *SequentialTraceIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}

// Issued returns how many IDs have been generated since the last Reset.
func (g *SequentialTraceIDs) Issued() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n
}

// Reset restarts the sequence. The next Generate returns "<prefix>-0001".
func (g *SequentialTraceIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
