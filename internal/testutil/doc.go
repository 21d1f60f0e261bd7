// Package testutil provides deterministic collaborators for engine tests
// and the scenario harness: a resettable trace ID sequence and a handler
// call tracker.
package testutil
