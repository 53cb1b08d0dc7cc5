// Package guid implements the 128-bit stable identifiers minted for every
// imported asset.
package guid

import (
	"encoding/hex"
	"errors"

	"github.com/google/uuid"
)

// GUID is a 128-bit identifier, stable for the lifetime of an asset.
type GUID [16]byte

// Nil is the zero GUID, never assigned to a real asset.
var Nil GUID

// New mints a fresh random GUID.
func New() GUID {
	return GUID(uuid.New())
}

// FromBytes copies b (must be 16 bytes) into a GUID.
func FromBytes(b []byte) (GUID, error) {
	var g GUID
	if len(b) != 16 {
		return g, errors.New("guid: want 16 bytes")
	}
	copy(g[:], b)
	return g, nil
}

// String renders the GUID as lowercase hex (no dashes).
func (g GUID) String() string {
	return hex.EncodeToString(g[:])
}

// Parse decodes a hex string produced by String.
func Parse(s string) (GUID, error) {
	var g GUID
	b, err := hex.DecodeString(s)
	if err != nil {
		return g, err
	}
	return FromBytes(b)
}

// IsNil reports whether g is the zero GUID.
func (g GUID) IsNil() bool { return g == Nil }
