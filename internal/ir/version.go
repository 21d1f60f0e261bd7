package ir

// Version constants for manifests and the journal schema.
const (
	// ManifestVersion is the manifest IR version.
	ManifestVersion = "1"

	// WiresVersion is the wires tool version recorded in the journal.
	WiresVersion = "0.1.0"
)
