package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for fingerprints. The version suffix allows the
// algorithm to change without colliding with old journal rows.
const (
	DomainRegistration = "wires/registration/v1"
	DomainDispatch     = "wires/dispatch/v1"
	DomainManifest     = "wires/manifest/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data). The null byte
// keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint returns the domain-separated SHA-256 of v's canonical JSON
// as lowercase hex.
func Fingerprint(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", domain, err)
	}
	return hashWithDomain(domain, canonical), nil
}

// RegistrationFingerprint identifies a wiring: the slot, the handler name
// and the bound arguments. Two wirings of the same handler with equal
// arguments share a fingerprint.
func RegistrationFingerprint(slot, handler string, args IRArray, kwargs IRObject) (string, error) {
	return Fingerprint(DomainRegistration, IRObject{
		"slot":    IRString(slot),
		"handler": IRString(handler),
		"args":    nonNilArray(args),
		"kwargs":  nonNilObject(kwargs),
	})
}

// DispatchID computes the journal key of a dispatch. It is stable given
// the same trace ID, slot, call-time arguments and sequence number.
func DispatchID(traceID, slot string, args IRArray, kwargs IRObject, seq int64) (string, error) {
	return Fingerprint(DomainDispatch, IRObject{
		"trace_id": IRString(traceID),
		"slot":     IRString(slot),
		"args":     nonNilArray(args),
		"kwargs":   nonNilObject(kwargs),
		"seq":      IRInt(seq),
	})
}

// MustDispatchID is like DispatchID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustDispatchID(traceID, slot string, args IRArray, kwargs IRObject, seq int64) string {
	id, err := DispatchID(traceID, slot, args, kwargs, seq)
	if err != nil {
		panic(err)
	}
	return id
}

func nonNilArray(a IRArray) IRArray {
	if a == nil {
		return IRArray{}
	}
	return a
}

func nonNilObject(o IRObject) IRObject {
	if o == nil {
		return IRObject{}
	}
	return o
}
