// Package ir provides the value and manifest types shared by the wires
// compiler, harness, journal and CLI.
//
// ir imports nothing internal. The engine itself does not depend on ir:
// handlers exchange plain Go values, and ir is the boundary where those
// values are made canonical (for fingerprints and the journal) and where
// declarative wiring manifests are represented.
//
// Key constraints:
//   - NO float types (fingerprints must be deterministic) - use int64
//   - Canonical JSON follows RFC 8785 ordering with NFC strings
//   - All JSON tags use snake_case
package ir
