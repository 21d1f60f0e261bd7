package ir

import "encoding/json"

// Manifest is a compiled wiring manifest: container defaults plus the
// slots to create and the handlers to wire into them.
type Manifest struct {
	Version  string       `json:"version"`
	Defaults SettingsSpec `json:"defaults"`

	// Report is the container failure report mode: "", "mute", "log" or
	// "stream".
	Report string `json:"report,omitempty"`

	// Slots are kept in declaration order (CUE field order).
	Slots []SlotSpec `json:"slots"`
}

// SlotSpec declares one slot.
type SlotSpec struct {
	Name     string       `json:"name"`
	Settings SettingsSpec `json:"settings"`
	Report   string       `json:"report,omitempty"`
	Wirings  []WiringSpec `json:"wirings"`
}

// WiringSpec declares one registration: a handler from the catalog and
// the arguments bound to it.
type WiringSpec struct {
	Handler string   `json:"handler"`
	Args    IRArray  `json:"args"`
	Kwargs  IRObject `json:"kwargs"`
}

// SettingsSpec is a sparse set of slot settings. Nil fields are not set.
type SettingsSpec struct {
	MinRegistrations *int  `json:"min_registrations,omitempty"`
	MaxRegistrations *int  `json:"max_registrations,omitempty"`
	Returns          *bool `json:"returns,omitempty"`
	IgnoreFailures   *bool `json:"ignore_failures,omitempty"`
}

// IsZero reports whether no setting is present.
func (s SettingsSpec) IsZero() bool {
	return s.MinRegistrations == nil && s.MaxRegistrations == nil && s.Returns == nil && s.IgnoreFailures == nil
}

// Slot returns the slot declaration called name.
func (m *Manifest) Slot(name string) (*SlotSpec, bool) {
	for i := range m.Slots {
		if m.Slots[i].Name == name {
			return &m.Slots[i], true
		}
	}
	return nil, false
}

// Handlers returns the distinct handler names used, in first-use order.
func (m *Manifest) Handlers() []string {
	seen := make(map[string]bool)
	var names []string
	for _, s := range m.Slots {
		for _, w := range s.Wirings {
			if !seen[w.Handler] {
				seen[w.Handler] = true
				names = append(names, w.Handler)
			}
		}
	}
	return names
}

// CanonicalJSON renders the manifest as RFC 8785 canonical JSON.
func (m *Manifest) CanonicalJSON() ([]byte, error) {
	v, err := m.irValue()
	if err != nil {
		return nil, err
	}
	return MarshalCanonical(v)
}

// Fingerprint returns a content hash of the manifest, so journals can
// record which manifest produced a dispatch.
func (m *Manifest) Fingerprint() (string, error) {
	v, err := m.irValue()
	if err != nil {
		return "", err
	}
	return Fingerprint(DomainManifest, v)
}

func (m *Manifest) irValue() (IRValue, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return UnmarshalIRValue(data)
}
